package core

import (
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "same content produces same ID", content: "test content"},
		{name: "empty string", content: ""},
		{name: "long content", content: "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
			if uint64(id1) >= 1<<63 {
				t.Errorf("IDFromContent() = %d, outside [0, 2^63)", id1)
			}
		})
	}
}

func TestIDFor(t *testing.T) {
	base := IDFor("doc.pdf", 3, 1)

	if again := IDFor("doc.pdf", 3, 1); again != base {
		t.Fatalf("IDFor() not deterministic: %d vs %d", base, again)
	}
	if base != IDFromContent("doc.pdf_3_1") {
		t.Errorf("IDFor() must hash the filename_page_chunk form")
	}

	variants := map[string]PointID{
		"other chunk":    IDFor("doc.pdf", 3, 2),
		"other page":     IDFor("doc.pdf", 4, 1),
		"other filename": IDFor("other.pdf", 3, 1),
	}
	for name, id := range variants {
		if id == base {
			t.Errorf("%s produced the same id as the base location", name)
		}
	}
}

func TestIDFor_NoCollisionsAcrossCorpus(t *testing.T) {
	seen := make(map[PointID]struct{})
	for doc := 0; doc < 20; doc++ {
		for page := 1; page <= 100; page++ {
			for chunk := 1; chunk <= 10; chunk++ {
				id := IDFor("volume-"+string(rune('a'+doc))+".pdf", page, chunk)
				if _, dup := seen[id]; dup {
					t.Fatalf("collision at doc %d page %d chunk %d", doc, page, chunk)
				}
				seen[id] = struct{}{}
			}
		}
	}
}

func TestNewIndexedPoint(t *testing.T) {
	chunk := &Chunk{
		Filename:    "a.pdf",
		PageNumber:  2,
		ChunkNumber: 4,
		Text:        "some text",
		PageHeader:  "HEADER",
	}
	point := NewIndexedPoint(chunk, []float32{1, 0})

	if point.ID != IDFor("a.pdf", 2, 4) {
		t.Errorf("unexpected id %d", point.ID)
	}
	if point.Payload.Text != "some text" || point.Payload.PageHeader != "HEADER" {
		t.Errorf("payload not copied from chunk: %+v", point.Payload)
	}
	if !point.Payload.HasPageHeader() {
		t.Errorf("expected page header to be present")
	}

	res := ResultFromPayload(point.ID, &point.Payload, 0.9)
	if res.Filename != "a.pdf" || res.PageNumber != 2 || res.ChunkNumber != 4 || res.Score != 0.9 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestVectorMath(t *testing.T) {
	a := []float32{3, 4}
	if n := VectorNorm(a); n != 5 {
		t.Errorf("VectorNorm() = %v, want 5", n)
	}

	unit := NormalizeVector(a)
	if unit[0] != 0.6 || unit[1] != 0.8 {
		t.Errorf("NormalizeVector() = %v", unit)
	}
	if a[0] != 3 {
		t.Errorf("NormalizeVector() modified its input")
	}

	if s := CosineSimilarity([]float32{1, 0}, []float32{2, 0}); s != 1 {
		t.Errorf("CosineSimilarity() parallel = %v, want 1", s)
	}
	if s := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); s != 0 {
		t.Errorf("CosineSimilarity() orthogonal = %v, want 0", s)
	}
	if s := CosineSimilarity([]float32{0, 0}, []float32{0, 1}); s != 0 {
		t.Errorf("CosineSimilarity() zero vector = %v, want 0", s)
	}
	if d := EuclideanDistance([]float32{0, 0}, []float32{3, 4}); d != 5 {
		t.Errorf("EuclideanDistance() = %v, want 5", d)
	}
	if zero := NormalizeVector([]float32{0, 0}); zero[0] != 0 || zero[1] != 0 {
		t.Errorf("NormalizeVector() zero = %v", zero)
	}
}
