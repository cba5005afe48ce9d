package flatfile

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadMOTD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "motd.txt")
	if err := os.WriteFile(path, []byte("welcome\n\nplay nice\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	lines, err := LoadMOTD(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"welcome", "play nice"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("got %v, want %v", lines, want)
	}
}

func TestLoadMOTDMissingFile(t *testing.T) {
	lines, err := LoadMOTD(filepath.Join(t.TempDir(), "absent.txt"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if lines != nil {
		t.Fatalf("got %v, want nil", lines)
	}
}
