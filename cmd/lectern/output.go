package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/lectern/answer"
	"github.com/poiesic/lectern/citation"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/ingestion"
	"github.com/poiesic/lectern/search"
)

const noResults = "No relevant results found."

func printIngestResult(w io.Writer, r *ingestion.Result) {
	fmt.Fprintf(w, "Documents processed: %d\n", r.Documents)
	fmt.Fprintf(w, "Chunks produced:     %d\n", r.Chunks)
	fmt.Fprintf(w, "Points written:      %d\n", r.Written)
	if r.Skipped > 0 {
		fmt.Fprintf(w, "Chunks skipped:      %d\n", r.Skipped)
	}
	if r.EmptyPages > 0 {
		fmt.Fprintf(w, "Empty pages:         %d\n", r.EmptyPages)
	}
	for _, name := range r.Unreadable {
		fmt.Fprintf(w, "Unreadable: %s\n", name)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "Failed: %v\n", f)
	}
}

func printCitations(w io.Writer, c *citation.Citations) {
	if c.Empty() {
		fmt.Fprintln(w, noResults)
		return
	}

	p := c.Primary
	fmt.Fprintf(w, "Source: %s, Page %d (score %.3f)\n", p.Filename, p.PageNumber, p.Score)
	fmt.Fprintln(w, p.Text)

	if len(c.Groups) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Also relevant:")
	for _, g := range c.Groups {
		fmt.Fprintf(w, "\n  %s, %s (score %.3f)\n", g.Filename, g.Label, g.Score)
		for _, text := range g.Texts {
			fmt.Fprintln(w, indent(text, "    "))
		}
	}
}

func printAnswer(w io.Writer, a *answer.Answer) {
	fmt.Fprintln(w, a.Text)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sources:")
	p := a.Citations.Primary
	fmt.Fprintf(w, "  %s, Page %d\n", p.Filename, p.PageNumber)
	for _, g := range a.Citations.Groups {
		fmt.Fprintf(w, "  %s, %s\n", g.Filename, g.Label)
	}
}

func indent(text, prefix string) string {
	return prefix + strings.ReplaceAll(text, "\n", "\n"+prefix)
}

// explainMonitor prints each retrieval step.
type explainMonitor struct {
	w io.Writer
}

func (m *explainMonitor) Start(query string) {
	fmt.Fprintf(m.w, "Query: %q\n", query)
}

func (m *explainMonitor) AfterSearch(candidates []*core.RetrievalResult) {
	fmt.Fprintf(m.w, "Candidates: %d\n", len(candidates))
}

func (m *explainMonitor) Rejected(r *core.RetrievalResult, reason search.RejectReason) {
	fmt.Fprintf(m.w, "  rejected %s page %d (score %.3f): %s\n", r.Filename, r.PageNumber, r.Score, reason)
}

func (m *explainMonitor) Finish(results []*core.RetrievalResult) {
	fmt.Fprintf(m.w, "Kept: %d\n\n", len(results))
}
