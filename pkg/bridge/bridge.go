package bridge

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"scriptgate/sandbox-go/pkg/codegen"
	"scriptgate/sandbox-go/pkg/engine"
	"scriptgate/sandbox-go/pkg/manifest"
)

// External is a host-supplied implementation of a declared external
// function. The context is cancelled when the run's duration limit expires,
// so long host calls should honor it.
type External func(ctx context.Context, args []engine.Value, kwargs map[string]engine.Value) (engine.Value, error)

// Bridge drives engine sessions for one engine implementation. It holds no
// per-run state; one Bridge serves any number of concurrent runs.
type Bridge struct {
	engine engine.Engine
	logger *slog.Logger
}

// New builds a bridge over the given engine. A nil logger falls back to
// slog.Default.
func New(eng engine.Engine, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{engine: eng, logger: logger}
}

// Run executes one session to its single terminal outcome: a value or a
// classified error, never both, never partial.
//
// Contract validation happens before the engine starts: inputs must cover
// every required declaration with type-conforming values, and every declared
// external needs an implementation. The run's duration limit is enforced
// here with an independent wall clock, because engine-internal accounting
// excludes time spent awaiting host calls.
func (b *Bridge) Run(ctx context.Context, program *codegen.Program, mf *manifest.Manifest, inputs map[string]engine.Value, externals map[string]External, limits engine.Limits) (engine.Value, error) {
	if b.engine == nil {
		return nil, &ConfigError{Reason: "no engine configured"}
	}
	if err := limits.Validate(); err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}
	if err := validateInputs(mf, inputs); err != nil {
		return nil, err
	}
	if err := validateExternals(mf, externals); err != nil {
		return nil, err
	}

	log := b.logger.With("session", uuid.NewString())
	runCtx, cancel := context.WithTimeout(ctx, limits.Duration)
	defer cancel()

	sess, err := b.engine.Start(runCtx, program, limits, inputs)
	if err != nil {
		fault := &SandboxFault{Message: "engine start: " + err.Error()}
		log.Error("sandbox fault", "error", fault)
		return nil, fault
	}
	defer sess.Close()

	for {
		ev, err := sess.Step(runCtx)
		if err != nil {
			return nil, b.classifyStepError(ctx, runCtx, log, err)
		}
		switch ev.Kind {
		case engine.EventCompleted:
			log.Debug("session completed")
			return ev.Value, nil
		case engine.EventLimit:
			return nil, &LimitError{Kind: ev.Limit}
		case engine.EventFaulted:
			return nil, b.classifyFault(log, ev.Fault)
		case engine.EventSuspended:
			results, err := b.dispatch(runCtx, mf, externals, ev.Calls)
			if err != nil {
				if deadlineErr := expired(runCtx); deadlineErr != nil {
					return nil, deadlineErr
				}
				return nil, err
			}
			if deadlineErr := expired(runCtx); deadlineErr != nil {
				return nil, deadlineErr
			}
			if err := sess.Resume(results); err != nil {
				fault := &SandboxFault{Message: "resume: " + err.Error()}
				log.Error("sandbox fault", "error", fault)
				return nil, fault
			}
		default:
			fault := &SandboxFault{Message: "engine emitted an unknown event"}
			log.Error("sandbox fault", "error", fault)
			return nil, fault
		}
	}
}

func (b *Bridge) classifyStepError(ctx, runCtx context.Context, log *slog.Logger, err error) error {
	if deadlineErr := expired(runCtx); deadlineErr != nil {
		return deadlineErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	fault := &SandboxFault{Message: "engine step: " + err.Error()}
	log.Error("sandbox fault", "error", fault)
	return fault
}

func (b *Bridge) classifyFault(log *slog.Logger, fault *engine.Fault) error {
	if fault == nil {
		f := &SandboxFault{Message: "engine faulted without detail"}
		log.Error("sandbox fault", "error", f)
		return f
	}
	if fault.Internal {
		f := &SandboxFault{Message: fault.Message}
		log.Error("sandbox fault", "error", f)
		return f
	}
	return &ScriptRuntimeError{
		Message:  fault.Message,
		External: fault.External,
		Line:     fault.Line,
		Col:      fault.Col,
	}
}

// expired converts a fired duration watchdog into the limit error; any
// in-flight host call was cancelled through the shared context.
func expired(runCtx context.Context) error {
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return &LimitError{Kind: engine.LimitDuration}
	}
	return nil
}

func validateInputs(mf *manifest.Manifest, inputs map[string]engine.Value) error {
	for _, decl := range mf.Inputs {
		value, ok := inputs[decl.Name]
		if !ok {
			if decl.Required {
				return &InputValidationError{Name: decl.Name, Reason: "required input is missing"}
			}
			continue
		}
		if err := decl.Type.Check(value); err != nil {
			return &InputValidationError{Name: decl.Name, Reason: err.Error()}
		}
	}
	return nil
}

func validateExternals(mf *manifest.Manifest, externals map[string]External) error {
	for _, decl := range mf.Externals {
		if externals[decl.Name] == nil {
			return &MissingExternalError{Name: decl.Name}
		}
	}
	return nil
}
