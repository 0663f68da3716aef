package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-reportsum")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-reportsum" {
			t.Errorf("expected path /tmp/test-reportsum, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultDirName)
		if dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-reportsum")

	tests := map[string]string{
		dir.SummariesPath():   "/tmp/test-reportsum/summaries",
		dir.UploadsPath():     "/tmp/test-reportsum/uploads",
		dir.UploadPath("abc"): "/tmp/test-reportsum/uploads/abc.pdf",
		dir.ConfigPath():      "/tmp/test-reportsum/config.yaml",
	}
	for got, want := range tests {
		if got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	}
}

func TestDir_EnsureExists(t *testing.T) {
	dir, _ := New(filepath.Join(t.TempDir(), "home"))
	if dir.Exists() {
		t.Fatal("directory should not exist yet")
	}
	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists() error = %v", err)
	}
	for _, p := range []string{dir.SummariesPath(), dir.UploadsPath()} {
		if info, err := os.Stat(p); err != nil || !info.IsDir() {
			t.Errorf("%s not created", p)
		}
	}
	if dir.ConfigExists() {
		t.Error("config should not exist")
	}
}
