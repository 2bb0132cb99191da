package fsprobe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFastHashStable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mkv")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	h1, err := FastHash(path)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := FastHash(path)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("hash not stable: %s != %s", h1, h2)
	}
}

func TestFastHashDiffersOnContent(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.mkv")
	p2 := filepath.Join(dir, "b.mkv")
	os.WriteFile(p1, []byte("aaaa"), 0o644)
	os.WriteFile(p2, []byte("bbbb"), 0o644)

	h1, _ := FastHash(p1)
	h2, _ := FastHash(p2)
	if h1 == h2 {
		t.Fatalf("expected different hashes for different content")
	}
}

func TestPoolProbesAllPaths(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 5; i++ {
		p := filepath.Join(dir, string(rune('a'+i))+".mkv")
		os.WriteFile(p, []byte("content"), 0o644)
		paths = append(paths, p)
	}

	pool := NewPool(2, 0)
	results := make(chan Identity)
	go pool.Run(context.Background(), paths, results)

	seen := map[string]bool{}
	for id := range results {
		if id.Err != nil {
			t.Fatalf("unexpected error probing %s: %v", id.Path, id.Err)
		}
		seen[id.Path] = true
	}
	if len(seen) != len(paths) {
		t.Fatalf("expected %d results, got %d", len(paths), len(seen))
	}
}
