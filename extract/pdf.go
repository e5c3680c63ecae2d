package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/poiesic/lectern/core"
)

// PDFExtension is the suffix a file needs to be picked up from a directory.
const PDFExtension = ".pdf"

// PDFDirectory is a Source over the PDF files of one directory.
type PDFDirectory struct {
	dir    string
	logger *slog.Logger
}

var _ Source = (*PDFDirectory)(nil)

// Option configures a PDFDirectory.
type Option func(*PDFDirectory) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *PDFDirectory) error {
		if logger == nil {
			logger = slog.Default()
		}
		d.logger = logger.With("component", "pdf-source")
		return nil
	}
}

// NewPDFDirectory creates a source reading *.pdf files from dir.
func NewPDFDirectory(dir string, opts ...Option) (Source, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open document directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("document path %q is not a directory", dir)
	}

	d := &PDFDirectory{
		dir:    dir,
		logger: slog.Default().With("component", "pdf-source"),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Documents lists the PDF files in the directory.
// Matching is case-sensitive, so "SCAN.PDF" is ignored.
func (d *PDFDirectory) Documents(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), PDFExtension) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Pages extracts the plain text of every page of a PDF.
// A page that fails to extract is returned with empty text.
func (d *PDFDirectory) Pages(ctx context.Context, name string) ([]core.Page, error) {
	path := filepath.Join(d.dir, name)
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	total := reader.NumPage()
	pages := make([]core.Page, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages = append(pages, core.Page{Number: i, Text: d.pageText(reader, name, i)})
	}

	d.logger.Debug("extracted document", "document", name, "pages", total)
	return pages, nil
}

func (d *PDFDirectory) pageText(reader *pdf.Reader, name string, number int) string {
	page := reader.Page(number)
	if page.V.IsNull() {
		d.logger.Debug("page has no content", "document", name, "page", number)
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		d.logger.Debug("page extraction failed", "document", name, "page", number, "err", err)
		return ""
	}
	return text
}
