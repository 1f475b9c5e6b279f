package attach

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveAndRead(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "attachments"))

	data := []byte("%PDF-1.4 fake content")
	path, err := s.Save("report.pdf", data)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(path, "_report.pdf") {
		t.Errorf("expected prefixed name, got %q", path)
	}

	got, err := s.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("stored bytes differ: got %q", got)
	}
}

func TestSaveSameNameTwice(t *testing.T) {
	s := NewStore(t.TempDir())

	first, err := s.Save("invoice.pdf", []byte("one"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := s.Save("invoice.pdf", []byte("two"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if first == second {
		t.Fatalf("expected distinct paths, both are %q", first)
	}
	got, err := s.Read(first)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "one" {
		t.Errorf("first file overwritten: %q", got)
	}
}

func TestSaveStripsDirectories(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	path, err := s.Save("../../../etc/passwd", []byte("x"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Dir(path) != root {
		t.Errorf("file escaped root: %q", path)
	}
}

func TestRemove(t *testing.T) {
	s := NewStore(t.TempDir())

	path, err := s.Save("note.txt", []byte("bye"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}

	// A second removal of the same path is not an error.
	if err := s.Remove(path); err != nil {
		t.Errorf("Remove missing file: %v", err)
	}
}
