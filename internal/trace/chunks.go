// Package trace decodes pre-copied trace payloads and writes per-chunk
// artifact files.
//
// A pre-copied payload is a concatenation of chunks. Each chunk is encoded
// as an 8-byte little-endian length prefix followed by the chunk bytes,
// padded so the next prefix starts on an 8-byte boundary.
package trace

import (
	"encoding/binary"
	"fmt"
)

const prefixSize = 8

// Chunk is one demultiplexed trace segment.
type Chunk struct {
	Index uint32
	Data  []byte
}

// ErrCapacityExceeded reports a decoded payload larger than the buffer's
// declared capacity. This is a corruption indicator, fatal at the caller.
type ErrCapacityExceeded struct {
	Size     uint64
	Capacity uint64
}

func (e *ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("trace data size %d is out of the result buffer size %d", e.Size, e.Capacity)
}

// Demux walks a pre-copied payload and splits it into its chunks. It
// returns the chunks (subslices of buf, not copies) and the accumulated
// unpadded size. An ErrCapacityExceeded is returned if the accumulated
// size exceeds capacity; a plain error if a prefix or chunk runs past the
// end of the payload.
func Demux(buf []byte, instanceCount uint32, capacity uint64) ([]Chunk, uint64, error) {
	chunks := make([]Chunk, 0, instanceCount)
	var size uint64
	off := 0

	for i := uint32(0); i < instanceCount; i++ {
		if off+prefixSize > len(buf) {
			return nil, 0, fmt.Errorf("chunk %d: truncated length prefix at offset %d", i, off)
		}
		chunkSize := binary.LittleEndian.Uint64(buf[off:])
		data := buf[off+prefixSize:]
		if chunkSize > uint64(len(data)) {
			return nil, 0, fmt.Errorf("chunk %d: length %d runs past end of payload", i, chunkSize)
		}

		chunks = append(chunks, Chunk{Index: i, Data: data[:chunkSize]})
		size += chunkSize
		off += prefixSize + int(alignSize(chunkSize, prefixSize))
	}

	if size > capacity {
		return nil, 0, &ErrCapacityExceeded{Size: size, Capacity: capacity}
	}
	return chunks, size, nil
}

// EncodeChunks builds a pre-copied payload from raw chunk contents. Used
// by engines that deliver copied trace data and by tests.
func EncodeChunks(chunks [][]byte) []byte {
	var total int
	for _, c := range chunks {
		total += prefixSize + int(alignSize(uint64(len(c)), prefixSize))
	}

	buf := make([]byte, 0, total)
	var prefix [prefixSize]byte
	for _, c := range chunks {
		binary.LittleEndian.PutUint64(prefix[:], uint64(len(c)))
		buf = append(buf, prefix[:]...)
		buf = append(buf, c...)
		if pad := int(alignSize(uint64(len(c)), prefixSize)) - len(c); pad > 0 {
			buf = append(buf, make([]byte, pad)...)
		}
	}
	return buf
}

// alignSize rounds size up to the given power-of-two alignment.
func alignSize(size, alignment uint64) uint64 {
	return (size + alignment - 1) &^ (alignment - 1)
}
