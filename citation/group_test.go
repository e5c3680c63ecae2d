package citation

import (
	"testing"

	"github.com/poiesic/lectern/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(filename string, page int, score float32) *core.RetrievalResult {
	return &core.RetrievalResult{
		ID:         core.IDFor(filename, page, 1),
		Filename:   filename,
		PageNumber: page,
		Score:      score,
		Text:       filename + " text",
	}
}

func TestGroupResults_Empty(t *testing.T) {
	c := GroupResults(nil)
	assert.True(t, c.Empty())
	assert.Nil(t, c.Primary)
	assert.Empty(t, c.Groups)
	assert.Zero(t, c.Results())
}

func TestGroupResults_PrimaryOnly(t *testing.T) {
	c := GroupResults([]*core.RetrievalResult{result("a.pdf", 3, 0.9)})
	require.NotNil(t, c.Primary)
	assert.Equal(t, "a.pdf", c.Primary.Filename)
	assert.Empty(t, c.Groups)
	assert.Equal(t, 1, c.Results())
}

func TestGroupResults_PageRanges(t *testing.T) {
	c := GroupResults([]*core.RetrievalResult{
		result("primary.pdf", 1, 0.99),
		result("a.pdf", 7, 0.95),
		result("a.pdf", 3, 0.9),
		result("a.pdf", 2, 0.85),
		result("a.pdf", 8, 0.8),
		result("a.pdf", 4, 0.75),
	})

	require.Len(t, c.Groups, 2)
	assert.Equal(t, []int{2, 3, 4}, c.Groups[0].Pages)
	assert.Equal(t, "Pages 2, 3, 4", c.Groups[0].Label)
	assert.Equal(t, float32(0.85), c.Groups[0].Score)
	assert.Equal(t, []int{7, 8}, c.Groups[1].Pages)
	assert.Equal(t, "Pages 7, 8", c.Groups[1].Label)
	assert.Equal(t, float32(0.95), c.Groups[1].Score)
	assert.Equal(t, 6, c.Results())
}

func TestGroupResults_FileOrder(t *testing.T) {
	c := GroupResults([]*core.RetrievalResult{
		result("primary.pdf", 1, 0.99),
		result("b.pdf", 10, 0.9),
		result("a.pdf", 5, 0.8),
		result("b.pdf", 2, 0.7),
	})

	require.Len(t, c.Groups, 3)
	assert.Equal(t, "b.pdf", c.Groups[0].Filename)
	assert.Equal(t, "Page 2", c.Groups[0].Label)
	assert.Equal(t, "b.pdf", c.Groups[1].Filename)
	assert.Equal(t, "Page 10", c.Groups[1].Label)
	assert.Equal(t, "a.pdf", c.Groups[2].Filename)
	assert.Equal(t, "Page 5", c.Groups[2].Label)
}

func TestGroupResults_SamePageChunks(t *testing.T) {
	c := GroupResults([]*core.RetrievalResult{
		result("primary.pdf", 1, 0.99),
		result("a.pdf", 4, 0.9),
		result("a.pdf", 4, 0.8),
		result("a.pdf", 5, 0.7),
	})

	require.Len(t, c.Groups, 1)
	assert.Equal(t, []int{4, 5}, c.Groups[0].Pages)
	assert.Len(t, c.Groups[0].Texts, 3)
}

func TestPageLabel(t *testing.T) {
	tests := []struct {
		pages []int
		want  string
	}{
		{[]int{12}, "Page 12"},
		{[]int{1, 2}, "Pages 1, 2"},
		{[]int{9, 10, 11}, "Pages 9, 10, 11"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, PageLabel(tt.pages))
		})
	}
}
