// Package home resolves the reportsum home directory layout.
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the reportsum home directory.
	DefaultDirName = ".reportsum"

	// SummariesDirName holds archived summary JSON files.
	SummariesDirName = "summaries"

	// UploadsDirName holds PDFs received through the upload endpoint.
	UploadsDirName = "uploads"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the reportsum home directory structure.
type Dir struct {
	path string
}

// New creates a Dir with the given path.
// If path is empty, uses the default (~/.reportsum).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}
	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// SummariesPath returns the archive directory.
func (d *Dir) SummariesPath() string {
	return filepath.Join(d.path, SummariesDirName)
}

// UploadsPath returns the upload directory.
func (d *Dir) UploadsPath() string {
	return filepath.Join(d.path, UploadsDirName)
}

// UploadPath returns the stored path for an upload with the given id.
func (d *Dir) UploadPath(id string) string {
	return filepath.Join(d.UploadsPath(), id+".pdf")
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and its subdirectories.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.SummariesPath(), d.UploadsPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
