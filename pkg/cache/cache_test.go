package cache

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"scriptgate/sandbox-go/pkg/ast"
	"scriptgate/sandbox-go/pkg/codegen"
	"scriptgate/sandbox-go/pkg/parser"
)

func testEntry(t *testing.T) *Entry {
	t.Helper()
	script, err := parser.Validate(`x = 1
x + 1
`)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	program, err := codegen.Generate(script)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	return &Entry{
		Program: program,
		Diagnostics: []parser.Diagnostic{
			{Kind: parser.DiagWarning, Message: "sample", Location: ast.Span{Line: 1, Column: 1}},
		},
	}
}

func TestGetOrBuildMemoizes(t *testing.T) {
	c := New()
	key := Key{SourceHash: "src", ManifestHash: "mf"}
	entry := testEntry(t)

	builds := 0
	got, err := c.GetOrBuild(key, func() (*Entry, error) {
		builds++
		return entry, nil
	})
	if err != nil {
		t.Fatalf("GetOrBuild() error = %v", err)
	}
	if got != entry {
		t.Fatalf("GetOrBuild() returned a different entry")
	}

	got, err = c.GetOrBuild(key, func() (*Entry, error) {
		builds++
		return nil, errors.New("must not rebuild")
	})
	if err != nil {
		t.Fatalf("second GetOrBuild() error = %v", err)
	}
	if got != entry || builds != 1 {
		t.Fatalf("entry rebuilt: builds = %d", builds)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestGetOrBuildSingleFlight(t *testing.T) {
	c := New()
	key := Key{SourceHash: "src", ManifestHash: "mf"}
	entry := testEntry(t)

	var builds atomic.Int64
	release := make(chan struct{})

	const workers = 16
	var wg sync.WaitGroup
	results := make([]*Entry, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := c.GetOrBuild(key, func() (*Entry, error) {
				builds.Add(1)
				<-release
				return entry, nil
			})
			if err != nil {
				t.Errorf("GetOrBuild() error = %v", err)
				return
			}
			results[i] = got
		}(i)
	}
	close(release)
	wg.Wait()

	if n := builds.Load(); n != 1 {
		t.Fatalf("build ran %d times for one key, want 1", n)
	}
	for i, got := range results {
		if got != entry {
			t.Fatalf("worker %d got a different entry", i)
		}
	}
}

func TestGetOrBuildFailureCachesNothing(t *testing.T) {
	c := New()
	key := Key{SourceHash: "src", ManifestHash: "mf"}

	if _, err := c.GetOrBuild(key, func() (*Entry, error) {
		return nil, errors.New("transient")
	}); err == nil {
		t.Fatalf("GetOrBuild() swallowed the build error")
	}
	if c.Len() != 0 {
		t.Fatalf("failed build left %d entries cached", c.Len())
	}

	entry := testEntry(t)
	got, err := c.GetOrBuild(key, func() (*Entry, error) { return entry, nil })
	if err != nil {
		t.Fatalf("retry GetOrBuild() error = %v", err)
	}
	if got != entry {
		t.Fatalf("retry returned a different entry")
	}
}

func TestClear(t *testing.T) {
	c := New()
	key := Key{SourceHash: "src", ManifestHash: "mf"}
	if _, err := c.GetOrBuild(key, func() (*Entry, error) { return testEntry(t), nil }); err != nil {
		t.Fatalf("GetOrBuild() error = %v", err)
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", c.Len())
	}
	if _, ok := c.Get(key); ok {
		t.Fatalf("Get() hit after Clear")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	entry := testEntry(t)
	key := Key{SourceHash: entry.Program.SourceHash, ManifestHash: entry.Program.ManifestHash}

	if err := store.Save(key, entry); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, ok := store.Load(key)
	if !ok {
		t.Fatalf("Load() missed a saved entry")
	}

	wantHash, _ := entry.Program.Hash()
	gotHash, _ := loaded.Program.Hash()
	if gotHash != wantHash {
		t.Fatalf("loaded program hash = %s, want %s", gotHash, wantHash)
	}
	if !reflect.DeepEqual(loaded.Diagnostics, entry.Diagnostics) {
		t.Fatalf("loaded diagnostics = %+v, want %+v", loaded.Diagnostics, entry.Diagnostics)
	}
}

func TestStoreMissesAreNotErrors(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, ok := store.Load(Key{SourceHash: "absent", ManifestHash: "absent"}); ok {
		t.Fatalf("Load() hit for an absent key")
	}
}

func TestStoreToleratesCorruption(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	entry := testEntry(t)
	key := Key{SourceHash: entry.Program.SourceHash, ManifestHash: entry.Program.ManifestHash}
	if err := store.Save(key, entry); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	programPath := filepath.Join(dir, key.SourceHash+"-"+key.ManifestHash, "program.json")
	if err := os.WriteFile(programPath, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("corrupting program: %v", err)
	}
	if _, ok := store.Load(key); ok {
		t.Fatalf("Load() returned a corrupt entry")
	}
}

func TestStoreDelete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	entry := testEntry(t)
	key := Key{SourceHash: entry.Program.SourceHash, ManifestHash: entry.Program.ManifestHash}
	if err := store.Save(key, entry); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Delete(key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := store.Load(key); ok {
		t.Fatalf("Load() hit after Delete")
	}
	// Deleting an absent entry is fine; the store is a pure cache.
	if err := store.Delete(key); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
}

func TestStoreRecordRun(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	entry := testEntry(t)
	key := Key{SourceHash: entry.Program.SourceHash, ManifestHash: entry.Program.ManifestHash}

	// Recording against an absent entry is a no-op.
	if err := store.RecordRun(key, "completed"); err != nil {
		t.Fatalf("RecordRun() on absent entry error = %v", err)
	}

	if err := store.Save(key, entry); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	for i := 0; i < 40; i++ {
		if err := store.RecordRun(key, "completed"); err != nil {
			t.Fatalf("RecordRun() error = %v", err)
		}
	}

	metaBytes, err := os.ReadFile(filepath.Join(dir, key.SourceHash+"-"+key.ManifestHash, "entry.yaml"))
	if err != nil {
		t.Fatalf("reading metadata: %v", err)
	}
	// The log is capped; 40 records must not all survive.
	count := 0
	for _, line := range strings.Split(string(metaBytes), "\n") {
		if strings.Contains(line, "completed") {
			count++
		}
	}
	if count == 0 || count > 32 {
		t.Fatalf("run log kept %d lines, want 1..32", count)
	}
}
