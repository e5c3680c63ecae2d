package core

import (
	"encoding/binary"
	"fmt"

	"github.com/go-crypt/x/blake2b"
)

// PointID identifies a point in the vector index.
// Values always fit in [0, 2^63) so stores with signed ids accept them.
type PointID uint64

const idMask = uint64(1)<<63 - 1

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// The 64-bit digest is reduced to 63 bits.
func IDFromContent(text string) PointID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return PointID(binary.LittleEndian.Uint64(sum) & idMask)
}

// IDFor derives the point id of a chunk from its location.
// Re-ingesting an unchanged document yields the same ids, so points are
// overwritten instead of duplicated.
func IDFor(filename string, pageNumber, chunkNumber int) PointID {
	return IDFromContent(fmt.Sprintf("%s_%d_%d", filename, pageNumber, chunkNumber))
}
