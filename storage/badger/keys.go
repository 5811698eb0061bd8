package badger

import (
	"encoding/binary"
)

// Key prefixes for different data types
const (
	objectManifestPrefix = "objman:"
	objectChunkPrefix    = "objchk:"
)

// makeManifestKey generates the key holding an object's manifest.
// Format: prefix name
func makeManifestKey(name string) []byte {
	return []byte(objectManifestPrefix + name)
}

// makeChunkPrefix generates the prefix shared by all chunks of one object
// generation.
// Format: prefix name 0x00 generation
func makeChunkPrefix(name string, generation uint64) []byte {
	prefix := objectChunkPrefix + name + "\x00"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// BigEndian so chunks iterate in order
	binary.BigEndian.PutUint64(buf[offset:], generation)
	return buf
}

// makeChunkKey generates the key of a single chunk.
// Format: prefix name 0x00 generation index
func makeChunkKey(name string, generation uint64, index uint32) []byte {
	prefix := makeChunkPrefix(name, generation)
	buf := make([]byte, len(prefix)+4)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint32(buf[offset:], index)
	return buf
}
