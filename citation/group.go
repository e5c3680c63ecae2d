// Package citation groups retrieval results into per-document page ranges
// for presentation.
package citation

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/poiesic/lectern/core"
)

// Group is a run of consecutive pages from one document.
type Group struct {
	Filename string
	Pages    []int
	Label    string
	// Score is the score of the group's first member.
	Score float32
	Texts []string
}

// Citations is the presentation form of a query's results.
type Citations struct {
	// Primary is the highest scoring result, nil if there were no results.
	Primary *core.RetrievalResult
	Groups  []*Group
}

// Empty reports whether there is nothing to cite.
func (c *Citations) Empty() bool {
	return c.Primary == nil
}

// Results returns the number of passages cited, primary included.
func (c *Citations) Results() int {
	if c.Primary == nil {
		return 0
	}
	n := 1
	for _, g := range c.Groups {
		n += len(g.Texts)
	}
	return n
}

// PageLabel formats pages as "Page N" or "Pages N, N+1, ...".
func PageLabel(pages []int) string {
	if len(pages) == 1 {
		return fmt.Sprintf("Page %d", pages[0])
	}
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return "Pages " + strings.Join(parts, ", ")
}

// GroupResults builds citations from results ordered best first.
// The first result becomes the primary. The rest are partitioned by filename
// in order of first appearance, sorted by page, and split wherever two pages
// are not adjacent.
func GroupResults(results []*core.RetrievalResult) *Citations {
	c := &Citations{}
	if len(results) == 0 {
		return c
	}
	c.Primary = results[0]

	var order []string
	byFile := make(map[string][]*core.RetrievalResult)
	for _, r := range results[1:] {
		if _, ok := byFile[r.Filename]; !ok {
			order = append(order, r.Filename)
		}
		byFile[r.Filename] = append(byFile[r.Filename], r)
	}

	for _, filename := range order {
		members := byFile[filename]
		// Stable so results on the same page keep their rank order.
		slices.SortStableFunc(members, func(a, b *core.RetrievalResult) int {
			return a.PageNumber - b.PageNumber
		})

		var current *Group
		for _, r := range members {
			if current == nil || !continues(current, r.PageNumber) {
				current = &Group{Filename: filename, Score: r.Score}
				c.Groups = append(c.Groups, current)
			}
			if last := current.Pages; len(last) == 0 || last[len(last)-1] != r.PageNumber {
				current.Pages = append(current.Pages, r.PageNumber)
			}
			current.Texts = append(current.Texts, r.Text)
		}
	}

	for _, g := range c.Groups {
		g.Label = PageLabel(g.Pages)
	}
	return c
}

// continues reports whether page extends g's run.
func continues(g *Group, page int) bool {
	last := g.Pages[len(g.Pages)-1]
	return page == last || page == last+1
}
