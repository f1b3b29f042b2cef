package models

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRegistryScan(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileRMVPE), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := NewRegistry(dir)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	defer r.Close()

	if !r.Available(FileRMVPE) {
		t.Fatalf("%s not reported available", FileRMVPE)
	}
	if r.Available(FileVocoder) {
		t.Fatalf("%s reported available but absent", FileVocoder)
	}
	if got, want := r.Path(FileRMVPE), filepath.Join(dir, FileRMVPE); got != want {
		t.Fatalf("path %q, want %q", got, want)
	}
}

func TestRegistryRefreshFiresCallbacks(t *testing.T) {
	dir := t.TempDir()
	// No watcher here so the directory writes below cannot race the
	// explicit refresh calls.
	r := &Registry{dir: dir, present: make(map[string]bool), done: make(chan struct{})}
	r.rescan()

	type change struct {
		name      string
		available bool
	}
	var seen []change
	r.OnChange(func(name string, available bool) {
		seen = append(seen, change{name, available})
	})

	if err := os.WriteFile(filepath.Join(dir, FileVocoder), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r.refresh(FileVocoder)
	if !r.Available(FileVocoder) {
		t.Fatalf("%s not available after refresh", FileVocoder)
	}

	// Unchanged state must not fire again.
	r.refresh(FileVocoder)

	if err := os.Remove(filepath.Join(dir, FileVocoder)); err != nil {
		t.Fatal(err)
	}
	r.refresh(FileVocoder)
	if r.Available(FileVocoder) {
		t.Fatalf("%s still available after removal", FileVocoder)
	}

	want := []change{{FileVocoder, true}, {FileVocoder, false}}
	if len(seen) != len(want) {
		t.Fatalf("got %d callbacks, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("callback %d = %+v, want %+v", i, seen[i], want[i])
		}
	}
}
