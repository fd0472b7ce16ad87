package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"scriptgate/sandbox-go/pkg/ast"
	"scriptgate/sandbox-go/pkg/codegen"
	"scriptgate/sandbox-go/pkg/parser"
)

// Store persists cache entries under a directory, one subdirectory per key.
// It is purely a performance cache: entries may be deleted at any time with
// no semantic consequence, and unreadable entries are treated as misses.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) a persisted artifact store rooted at
// dir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache: empty store directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create store: %w", err)
	}
	return &Store{dir: dir}, nil
}

type entryMeta struct {
	SourceHash   string           `yaml:"source_hash"`
	ManifestHash string           `yaml:"manifest_hash"`
	Generated    string           `yaml:"generated"`
	Diagnostics  []diagnosticMeta `yaml:"diagnostics,omitempty"`
	LastRunLog   []string         `yaml:"last_run_log,omitempty"`
}

type diagnosticMeta struct {
	Kind    string `yaml:"kind"`
	Message string `yaml:"message"`
	Line    int    `yaml:"line"`
	Column  int    `yaml:"column"`
}

func (s *Store) entryDir(key Key) string {
	return filepath.Join(s.dir, key.SourceHash+"-"+key.ManifestHash)
}

// Save writes the entry's program bytes and metadata.
func (s *Store) Save(key Key, entry *Entry) error {
	if entry == nil || entry.Program == nil {
		return fmt.Errorf("cache: nil entry")
	}
	program, err := entry.Program.Encode()
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	meta := entryMeta{
		SourceHash:   key.SourceHash,
		ManifestHash: key.ManifestHash,
		Generated:    time.Now().UTC().Format(time.RFC3339),
	}
	for _, d := range entry.Diagnostics {
		meta.Diagnostics = append(meta.Diagnostics, diagnosticMeta{
			Kind:    string(d.Kind),
			Message: d.Message,
			Line:    d.Location.Line,
			Column:  d.Location.Column,
		})
	}
	metaBytes, err := yaml.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("cache: encode entry metadata: %w", err)
	}

	dir := s.entryDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "program.json"), program, 0o644); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "entry.yaml"), metaBytes, 0o644); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

// Load reads an entry back; a missing or unreadable entry is a miss, not an
// error, because the store is always safe to delete underneath us.
func (s *Store) Load(key Key) (*Entry, bool) {
	dir := s.entryDir(key)
	metaBytes, err := os.ReadFile(filepath.Join(dir, "entry.yaml"))
	if err != nil {
		return nil, false
	}
	var meta entryMeta
	if err := yaml.Unmarshal(metaBytes, &meta); err != nil {
		return nil, false
	}
	if meta.SourceHash != key.SourceHash || meta.ManifestHash != key.ManifestHash {
		return nil, false
	}
	programBytes, err := os.ReadFile(filepath.Join(dir, "program.json"))
	if err != nil {
		return nil, false
	}
	program, err := codegen.Decode(programBytes)
	if err != nil {
		return nil, false
	}

	entry := &Entry{Program: program}
	for _, d := range meta.Diagnostics {
		entry.Diagnostics = append(entry.Diagnostics, parser.Diagnostic{
			Kind:     parser.DiagnosticKind(d.Kind),
			Message:  d.Message,
			Location: ast.Span{Line: d.Line, Column: d.Column},
		})
	}
	return entry, true
}

// RecordRun appends one line to the entry's last-run log, keeping the most
// recent runs only.
func (s *Store) RecordRun(key Key, line string) error {
	dir := s.entryDir(key)
	metaPath := filepath.Join(dir, "entry.yaml")
	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("cache: %w", err)
	}
	var meta entryMeta
	if err := yaml.Unmarshal(metaBytes, &meta); err != nil {
		return fmt.Errorf("cache: decode entry metadata: %w", err)
	}
	meta.LastRunLog = append(meta.LastRunLog, time.Now().UTC().Format(time.RFC3339)+" "+line)
	const keep = 32
	if len(meta.LastRunLog) > keep {
		meta.LastRunLog = meta.LastRunLog[len(meta.LastRunLog)-keep:]
	}
	out, err := yaml.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("cache: encode entry metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, out, 0o644); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

// Delete removes one persisted entry.
func (s *Store) Delete(key Key) error {
	if err := os.RemoveAll(s.entryDir(key)); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}
