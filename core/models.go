package core

// Page is a single page of extracted document text.
// Number is 1-based. Text may be empty when extraction produced nothing.
type Page struct {
	Number int
	Text   string
}

// Chunk is a bounded slice of a page's text and the unit that gets embedded.
type Chunk struct {
	Filename    string
	PageNumber  int
	ChunkNumber int // 1-based, unique within its page
	Text        string
	PageHeader  string // running header of the source page, empty if none
}

// ID returns the deterministic point id for the chunk.
func (c *Chunk) ID() PointID {
	return IDFor(c.Filename, c.PageNumber, c.ChunkNumber)
}

// Payload is the metadata persisted alongside each vector.
type Payload struct {
	Text        string
	Filename    string
	PageNumber  int
	ChunkNumber int
	PageHeader  string // optional, empty means absent
}

// HasPageHeader reports whether the payload carries a running page header.
func (p *Payload) HasPageHeader() bool {
	return p.PageHeader != ""
}

// IndexedPoint is the persisted unit of the index.
type IndexedPoint struct {
	ID      PointID
	Vector  []float32
	Payload Payload
}

// NewIndexedPoint builds the point for an embedded chunk.
func NewIndexedPoint(chunk *Chunk, vector []float32) *IndexedPoint {
	return &IndexedPoint{
		ID:     chunk.ID(),
		Vector: vector,
		Payload: Payload{
			Text:        chunk.Text,
			Filename:    chunk.Filename,
			PageNumber:  chunk.PageNumber,
			ChunkNumber: chunk.ChunkNumber,
			PageHeader:  chunk.PageHeader,
		},
	}
}

// RetrievalResult is a scored passage returned by a similarity search.
// It is produced per query and never persisted.
type RetrievalResult struct {
	ID          PointID
	Text        string
	Filename    string
	PageNumber  int
	ChunkNumber int
	Score       float32
	PageHeader  string
}

// HasPageHeader reports whether the result carries a running page header.
func (r *RetrievalResult) HasPageHeader() bool {
	return r.PageHeader != ""
}

// ResultFromPayload converts a stored payload and score into a RetrievalResult.
func ResultFromPayload(id PointID, payload *Payload, score float32) *RetrievalResult {
	return &RetrievalResult{
		ID:          id,
		Text:        payload.Text,
		Filename:    payload.Filename,
		PageNumber:  payload.PageNumber,
		ChunkNumber: payload.ChunkNumber,
		Score:       score,
		PageHeader:  payload.PageHeader,
	}
}
