package badger

import (
	"bytes"
	"encoding/binary"

	"github.com/poiesic/lectern/core"
)

// Key layout, all scoped by collection name:
//
//	col:<name>:meta                      collection dimension and metric
//	col:<name>:pt:<id>                   point (8-byte big-endian id)
//	col:<name>:fn:<filename>\x00<id>     filename index
const (
	collectionPrefix = "col:"
	metaSuffix       = ":meta"
	pointSegment     = ":pt:"
	filenameSegment  = ":fn:"
	filenameTerm     = 0x00
)

// makeCollectionPrefix returns the prefix shared by every key of a collection.
func makeCollectionPrefix(name string) []byte {
	return []byte(collectionPrefix + name + ":")
}

// makeMetaKey generates the key holding a collection's configuration.
func makeMetaKey(name string) []byte {
	return []byte(collectionPrefix + name + metaSuffix)
}

// makePointPrefix returns the prefix of every point key in a collection.
func makePointPrefix(name string) []byte {
	return []byte(collectionPrefix + name + pointSegment)
}

// makePointKey generates the key for a point by id.
// Format: prefix:id, id in BigEndian so keys sort numerically.
func makePointKey(name string, id core.PointID) []byte {
	prefix := makePointPrefix(name)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeFilenamePrefix returns the prefix of the filename index.
func makeFilenamePrefix(name string) []byte {
	return []byte(collectionPrefix + name + filenameSegment)
}

// makeFilenameKey generates a filename index entry.
// Format: prefix:filename\x00id
func makeFilenameKey(name, filename string, id core.PointID) []byte {
	prefix := makeFilenamePrefix(name)
	buf := make([]byte, len(prefix)+len(filename)+1+8)
	offset := copy(buf, prefix)
	offset += copy(buf[offset:], filename)
	buf[offset] = filenameTerm
	offset++
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// filenameFromKey extracts the filename from a filename index key.
func filenameFromKey(name string, key []byte) (string, bool) {
	rest := bytes.TrimPrefix(key, makeFilenamePrefix(name))
	end := bytes.LastIndexByte(rest, filenameTerm)
	if end < 0 || len(rest)-end-1 != 8 {
		return "", false
	}
	return string(rest[:end]), true
}
