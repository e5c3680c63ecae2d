// Package extract turns documents into numbered pages of raw text.
package extract

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/poiesic/lectern/core"
)

// ErrDocumentNotFound is returned when a source has no document by that name.
var ErrDocumentNotFound = errors.New("document not found")

// Source enumerates documents and yields their pages.
type Source interface {
	// Documents returns the names of every document, sorted.
	Documents(ctx context.Context) ([]string, error)

	// Pages returns the pages of the named document, numbered from 1.
	// Pages whose text could not be extracted are returned with empty text.
	Pages(ctx context.Context, name string) ([]core.Page, error)
}

// Static is an in-memory Source.
type Static struct {
	docs map[string][]core.Page
}

var _ Source = (*Static)(nil)

// NewStatic builds a source from raw page texts keyed by document name.
func NewStatic(docs map[string][]string) *Static {
	s := &Static{docs: make(map[string][]core.Page, len(docs))}
	for name, texts := range docs {
		s.Add(name, texts...)
	}
	return s
}

// Add stores a document, replacing any document with the same name.
func (s *Static) Add(name string, texts ...string) {
	pages := make([]core.Page, len(texts))
	for i, text := range texts {
		pages[i] = core.Page{Number: i + 1, Text: text}
	}
	s.docs[name] = pages
}

// Documents returns the document names in lexical order.
func (s *Static) Documents(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(s.docs))
	for name := range s.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Pages returns a copy of the named document's pages.
func (s *Static) Pages(ctx context.Context, name string) ([]core.Page, error) {
	pages, ok := s.docs[name]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return append([]core.Page(nil), pages...), nil
}

// IsBlank reports whether a page has no extractable text.
func IsBlank(page core.Page) bool {
	return strings.TrimSpace(page.Text) == ""
}
