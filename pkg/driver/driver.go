// Package driver wires the pipeline together: source text is validated,
// its artifact is fetched or built through the cache, and the bridge runs
// the result against the configured engine.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"scriptgate/sandbox-go/pkg/bridge"
	"scriptgate/sandbox-go/pkg/cache"
	"scriptgate/sandbox-go/pkg/codegen"
	"scriptgate/sandbox-go/pkg/engine"
	"scriptgate/sandbox-go/pkg/parser"
)

// Option configures a Runner.
type Option func(*Runner)

// WithCache injects a shared artifact cache; by default each Runner owns a
// private one.
func WithCache(c *cache.Cache) Option {
	return func(r *Runner) { r.cache = c }
}

// WithStore persists built artifacts in a content-addressed on-disk store.
func WithStore(s *cache.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithLogger sets the structured logger; the default is slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// Runner is the host-facing entry point. One Runner serves any number of
// concurrent Check and Run calls; the parser is the only serialized piece.
type Runner struct {
	mu     sync.Mutex
	parser *parser.ScriptParser

	eng    engine.Engine
	cache  *cache.Cache
	store  *cache.Store
	bridge *bridge.Bridge
	logger *slog.Logger
}

// NewRunner builds a runner over the given engine.
func NewRunner(eng engine.Engine, opts ...Option) (*Runner, error) {
	if eng == nil {
		return nil, fmt.Errorf("driver: nil engine")
	}
	p, err := parser.NewScriptParser()
	if err != nil {
		return nil, err
	}
	r := &Runner{parser: p, eng: eng, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = cache.New()
	}
	r.bridge = bridge.New(eng, r.logger)
	return r, nil
}

// Close releases the parser.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parser.Close()
	r.parser = nil
}

// Check validates source and dry-checks its generated program against the
// manifest without starting an engine run or touching any host external.
func (r *Runner) Check(source string) (bridge.CheckResult, error) {
	script, entry, err := r.compile(source)
	if err != nil {
		return bridge.CheckResult{}, err
	}
	result := bridge.Check(entry.Program, &script.Manifest)
	// Validation warnings ride along with the check findings.
	result.Diagnostics = append(script.Diagnostics, result.Diagnostics...)
	return result, nil
}

// Run validates source, obtains its artifact, and executes one session.
func (r *Runner) Run(ctx context.Context, source string, inputs map[string]engine.Value, externals map[string]bridge.External, limits engine.Limits) (engine.Value, error) {
	script, entry, err := r.compile(source)
	if err != nil {
		return nil, err
	}
	key := cache.Key{SourceHash: script.Source.Hash(), ManifestHash: script.Manifest.Hash()}

	value, runErr := r.bridge.Run(ctx, entry.Program, &script.Manifest, inputs, externals, limits)
	if r.store != nil {
		outcome := "ok"
		if runErr != nil {
			outcome = runErr.Error()
		}
		if err := r.store.RecordRun(key, outcome); err != nil {
			r.logger.Debug("run log not recorded", "error", err)
		}
	}
	return value, runErr
}

// compile validates the source and fetches or builds its artifact. Builds
// are single-flight per (source hash, manifest hash); the persisted store,
// when configured, is consulted before generating and updated after.
func (r *Runner) compile(source string) (*parser.ValidatedScript, *cache.Entry, error) {
	r.mu.Lock()
	if r.parser == nil {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("driver: runner is closed")
	}
	script, err := r.parser.Validate(parser.NewSource(source))
	r.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}

	key := cache.Key{SourceHash: script.Source.Hash(), ManifestHash: script.Manifest.Hash()}
	entry, err := r.cache.GetOrBuild(key, func() (*cache.Entry, error) {
		if r.store != nil {
			if stored, ok := r.store.Load(key); ok {
				return stored, nil
			}
		}
		program, err := codegen.Generate(script)
		if err != nil {
			return nil, err
		}
		built := &cache.Entry{
			Program:     program,
			Diagnostics: bridge.Check(program, &script.Manifest).Diagnostics,
		}
		if r.store != nil {
			if err := r.store.Save(key, built); err != nil {
				r.logger.Debug("artifact not persisted", "error", err)
			}
		}
		return built, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return script, entry, nil
}
