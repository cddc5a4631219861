package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"forge-market/internal/apperr"
)

func TestSaveWritesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	saver := NewSaver(dir, 0)

	stored, err := saver.Save("Before Photo.JPG", strings.NewReader("not really a jpeg"))
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if !strings.HasPrefix(stored.Filename, "photo-") || !strings.HasSuffix(stored.Filename, ".jpg") {
		t.Fatalf("unexpected filename: %s", stored.Filename)
	}
	if stored.URL != "/uploads/"+stored.Filename {
		t.Fatalf("unexpected URL: %s", stored.URL)
	}

	data, err := os.ReadFile(filepath.Join(dir, stored.Filename))
	if err != nil {
		t.Fatalf("reading stored file: %v", err)
	}
	if string(data) != "not really a jpeg" {
		t.Fatalf("stored content mismatch: %q", data)
	}
}

func TestSaveRejectsNonImage(t *testing.T) {
	t.Parallel()

	saver := NewSaver(t.TempDir(), 0)
	for _, name := range []string{"report.pdf", "script.sh", "noext"} {
		_, err := saver.Save(name, strings.NewReader("data"))
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("expected validation error for %s, got %v", name, err)
		}
	}
}

func TestSaveRejectsOversize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	saver := NewSaver(dir, 16)

	_, err := saver.Save("big.png", strings.NewReader(strings.Repeat("x", 17)))
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for oversize file, got %v", err)
	}

	// Exactly at the limit is fine.
	stored, err := saver.Save("ok.png", strings.NewReader(strings.Repeat("x", 16)))
	if err != nil {
		t.Fatalf("Save error at limit: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != stored.Filename {
		t.Fatalf("expected only the in-limit file on disk, got %v", entries)
	}
}
