package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Validate checks that path is a readable, structurally sound PDF and
// returns its page count. Any failure is a CorruptInput error.
func Validate(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, corrupt(path, fmt.Errorf("failed to open PDF: %w", err))
	}
	defer f.Close()

	header := make([]byte, 5)
	if _, err := io.ReadFull(f, header); err != nil || !bytes.Equal(header[:4], []byte("%PDF")) {
		return 0, corrupt(path, ErrNotPDF)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, corrupt(path, err)
	}

	pageCount, err := api.PageCount(f, nil)
	if err != nil {
		return 0, corrupt(path, fmt.Errorf("failed to get page count: %w", err))
	}
	return pageCount, nil
}
