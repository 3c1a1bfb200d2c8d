package macros

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sambeau/roll/pkg/roll/roll"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    roll.Macros
		wantErr string
	}{
		{
			name:  "strings and scalars",
			input: "melee: \"[[15+4]]\"\nmelee attack: \"#melee\"\nthree: 3\n",
			want:  roll.Macros{"melee": "[[15+4]]", "melee attack": "#melee", "three": "3"},
		},
		{
			name:  "empty file",
			input: "",
			want:  roll.Macros{},
		},
		{
			name:    "not a mapping",
			input:   "- a\n- b\n",
			wantErr: "must be a mapping",
		},
		{
			name:    "nested body",
			input:   "melee:\n  dice: 1d20\n",
			wantErr: "line 2: body of \"melee\" must be a string",
		},
		{
			name:    "bad name",
			input:   "\"a}b\": 1\n",
			wantErr: "contains '}'",
		},
		{
			name:    "invalid yaml",
			input:   "a: [1\n",
			wantErr: "parsing macros",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.input))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Parse() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	override := filepath.Join(dir, "override.yaml")
	writeFile(t, base, "melee: \"[[1d20]]\"\nbonus: 2\n")
	writeFile(t, override, "bonus: 3\n")

	got, err := LoadFiles(base, override)
	if err != nil {
		t.Fatalf("LoadFiles failed: %v", err)
	}

	want := roll.Macros{"melee": "[[1d20]]", "bonus": "3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadFiles() mismatch (-want +got):\n%s", diff)
	}

	if _, err := LoadFiles(base, filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFileError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, "- not a map\n")

	_, err := loadFile(path)
	if err == nil || !strings.HasPrefix(err.Error(), path+":") {
		t.Errorf("loadFile() error = %v, want path prefix", err)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	macros := roll.Macros{"melee attack": "[[1d20+4]]", "three": "3"}
	data, err := Marshal(macros)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(macros, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"melee", true},
		{"melee attack", true},
		{"épée", true},
		{"", false},
		{"   ", false},
		{"a}b", false},
		{"two\nlines", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.name)
			if (err == nil) != tt.valid {
				t.Errorf("ValidateName(%q) = %v, want valid=%v", tt.name, err, tt.valid)
			}
		})
	}
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "macros.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "macros.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	if store.Path() != path {
		t.Errorf("Path() = %q, want %q", store.Path(), path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file was not created: %v", err)
	}
}

func TestStoreCRUD(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Set("melee", "[[1d20]]"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	body, ok, err := store.Get("melee")
	if err != nil || !ok || body != "[[1d20]]" {
		t.Errorf("Get() = (%q, %v, %v), want ([[1d20]], true, nil)", body, ok, err)
	}

	// Set replaces
	if err := store.Set("melee", "[[1d20+4]]"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	body, _, _ = store.Get("melee")
	if body != "[[1d20+4]]" {
		t.Errorf("Get() after replace = %q", body)
	}

	_, ok, err = store.Get("missing")
	if err != nil || ok {
		t.Errorf("Get(missing) = (_, %v, %v), want (_, false, nil)", ok, err)
	}

	if err := store.Delete("melee"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete("melee"); err == nil {
		t.Error("Delete of a missing macro should fail")
	}

	if err := store.Set("", "1"); err == nil {
		t.Error("Set with empty name should fail")
	}
}

func TestStoreListAndAll(t *testing.T) {
	store := setupTestStore(t)

	for name, body := range map[string]string{"b": "2", "a": "1", "c d": "3"} {
		if err := store.Set(name, body); err != nil {
			t.Fatalf("Set(%q) failed: %v", name, err)
		}
	}

	entries, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
		if e.UpdatedAt.IsZero() {
			t.Errorf("%s: UpdatedAt is zero", e.Name)
		}
	}
	if diff := cmp.Diff([]string{"a", "b", "c d"}, names); diff != "" {
		t.Errorf("List() names mismatch (-want +got):\n%s", diff)
	}

	all, err := store.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if diff := cmp.Diff(roll.Macros{"a": "1", "b": "2", "c d": "3"}, all); diff != "" {
		t.Errorf("All() mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreImport(t *testing.T) {
	store := setupTestStore(t)
	store.Set("keep", "1")
	store.Set("bonus", "2")

	n, err := store.Import(roll.Macros{"bonus": "5", "melee": "[[1d20]]"})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Import() = %d, want 2", n)
	}

	all, _ := store.All()
	want := roll.Macros{"keep": "1", "bonus": "5", "melee": "[[1d20]]"}
	if diff := cmp.Diff(want, all); diff != "" {
		t.Errorf("All() after import mismatch (-want +got):\n%s", diff)
	}

	// an invalid name aborts the whole import
	if _, err := store.Import(roll.Macros{"fine": "1", "bad}": "2"}); err == nil {
		t.Fatal("expected error for invalid name")
	}
	if _, ok, _ := store.Get("fine"); ok {
		t.Error("partial import was written")
	}
}

func TestStoreMacrosInterpret(t *testing.T) {
	store := setupTestStore(t)
	store.Set("melee attack", "[[15+4]]")

	all, err := store.All()
	if err != nil {
		t.Fatal(err)
	}

	out := roll.Interpret(roll.Config{Source: "I attack for #{melee attack}!", Macros: all})
	if out.Err != nil || out.String() != "I attack for 15+4=19!" {
		t.Errorf("Interpret() = (%q, %v)", out.String(), out.Err)
	}
}

func TestSet(t *testing.T) {
	source := roll.Macros{"a": "1"}
	set := NewSet(source)

	source["b"] = "2"
	if set.Len() != 1 {
		t.Errorf("NewSet did not copy its input")
	}

	snap := set.Snapshot()
	snap["c"] = "3"
	if set.Len() != 1 {
		t.Errorf("Snapshot is not a copy")
	}

	set.Replace(roll.Macros{"x": "1", "y": "2"})
	if diff := cmp.Diff([]string{"x", "y"}, set.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestSetConcurrent(t *testing.T) {
	set := NewSet(roll.Macros{"a": "1"})

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for range 100 {
				if i%2 == 0 {
					set.Replace(roll.Macros{"a": "2"})
				} else {
					_ = set.Snapshot()["a"]
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestMerge(t *testing.T) {
	got := Merge(roll.Macros{"a": "1", "b": "1"}, nil, roll.Macros{"b": "2"})
	if diff := cmp.Diff(roll.Macros{"a": "1", "b": "2"}, got); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
}

// syncBuffer is a bytes.Buffer safe for the watcher's goroutines
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "macros.yaml")
	writeFile(t, path, "bonus: 1\n")

	load := func() (roll.Macros, error) { return LoadFiles(path) }
	initial, err := load()
	if err != nil {
		t.Fatal(err)
	}
	set := NewSet(initial)

	var stdout, stderr syncBuffer
	w, err := NewWatcher(set, []string{path}, load, &stdout, &stderr)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	writeFile(t, path, "bonus: 5\n")
	waitFor(t, func() bool { return set.Snapshot()["bonus"] == "5" && w.Reloads() > 0 })

	if !strings.Contains(stdout.String(), "[WATCH] macros changed") {
		t.Errorf("stdout = %q", stdout.String())
	}

	// a broken file keeps the previous macros
	reloads := w.Reloads()
	writeFile(t, path, "- broken\n")
	waitFor(t, func() bool { return strings.Contains(stderr.String(), "[WATCH ERROR] reload failed") })
	if set.Snapshot()["bonus"] != "5" {
		t.Errorf("macros replaced by a broken file")
	}
	if w.Reloads() != reloads {
		t.Errorf("Reloads() = %d, want %d", w.Reloads(), reloads)
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "macros.yaml")
	writeFile(t, path, "bonus: 1\n")

	var calls int
	var mu sync.Mutex
	load := func() (roll.Macros, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return LoadFiles(path)
	}

	var out syncBuffer
	w, err := NewWatcher(NewSet(nil), []string{path}, load, &out, &out)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(dir, "notes.txt"), "hello")
	time.Sleep(3 * Debounce)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("load called %d times for an unrelated file", calls)
	}
}

func TestWatcherReloadNow(t *testing.T) {
	set := NewSet(nil)
	var out syncBuffer
	w, err := NewWatcher(set, nil, func() (roll.Macros, error) {
		return roll.Macros{"x": "1"}, nil
	}, &out, &out)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if set.Len() != 1 || w.Reloads() != 1 {
		t.Errorf("Len() = %d, Reloads() = %d", set.Len(), w.Reloads())
	}
	if !strings.Contains(out.String(), "[WATCH] loaded 1 macros") {
		t.Errorf("output = %q", out.String())
	}
}
