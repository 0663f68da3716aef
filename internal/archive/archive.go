// Package archive stores completed summaries as JSON files on disk.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackzampolin/reportsum/internal/schema"
)

// ErrNotFound is returned when an archived file does not exist.
var ErrNotFound = errors.New("archived summary not found")

// ErrInvalidName is returned for file names that are not plain archive entries.
var ErrInvalidName = errors.New("invalid archive file name")

const timestampLayout = "20060102_150405"

// Entry describes one archived summary.
type Entry struct {
	Filename            string `json:"filename"`
	SourceFile          string `json:"source_file"`
	ProcessingTimestamp string `json:"processing_timestamp"`
	ModelUsed           string `json:"model_used"`
	modTime             time.Time
}

// Archive writes and reads summary files in a single directory.
type Archive struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
	now    func() time.Time
}

// New creates an Archive rooted at dir, creating it if needed.
func New(dir string, logger *slog.Logger) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{dir: dir, logger: logger, now: time.Now}, nil
}

// Dir returns the archive directory.
func (a *Archive) Dir() string { return a.dir }

// Save writes result as indented JSON and returns the file name, of the
// form <source-stem>_summary_<YYYYMMDD_HHMMSS>.json. Name collisions get a
// numeric suffix.
func (a *Archive) Save(result *schema.Result) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode summary: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	base := stem(result.Metadata.SourceFile) + "_summary_" + a.now().Format(timestampLayout)
	name := base + ".json"
	for i := 1; a.exists(name); i++ {
		name = base + "_" + strconv.Itoa(i) + ".json"
	}

	tmp, err := os.CreateTemp(a.dir, ".summary-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write summary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(a.dir, name)); err != nil {
		return "", fmt.Errorf("failed to store summary: %w", err)
	}

	a.logger.Info("summary archived", "file", name, "source", result.Metadata.SourceFile)
	return name, nil
}

func (a *Archive) exists(name string) bool {
	_, err := os.Stat(filepath.Join(a.dir, name))
	return err == nil
}

// List returns every readable archived summary, newest first. Files that
// cannot be read or decoded are skipped.
func (a *Archive) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		res, err := a.read(name)
		if err != nil {
			a.logger.Debug("skipping unreadable archive file", "file", name, "error", err)
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Filename:            name,
			SourceFile:          res.Metadata.SourceFile,
			ProcessingTimestamp: res.Metadata.ProcessingTimestamp,
			ModelUsed:           res.Metadata.ModelUsed,
			modTime:             info.ModTime(),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].modTime.Equal(entries[j].modTime) {
			return entries[i].modTime.After(entries[j].modTime)
		}
		return entries[i].Filename > entries[j].Filename
	})
	return entries, nil
}

// Get returns the archived summary stored under filename.
func (a *Archive) Get(filename string) (*schema.Result, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") ||
		!strings.HasSuffix(filename, ".json") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}
	res, err := a.read(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	return res, err
}

func (a *Archive) read(name string) (*schema.Result, error) {
	data, err := os.ReadFile(filepath.Join(a.dir, name))
	if err != nil {
		return nil, err
	}
	var res schema.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return &res, nil
}

// stem returns the source file name without directory or extension, with
// characters outside [A-Za-z0-9._-] replaced.
func stem(source string) string {
	s := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
	if s == "" || s == "." || s == ".." {
		return "report"
	}
	return s
}
