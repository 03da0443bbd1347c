package postings

import (
	"encoding/binary"
	"fmt"
)

// encodeInline renders a short posting list (one that never grew past a
// single buffered block) as a self-contained blob meant to be embedded
// directly in a TermInfo record instead of referencing a block run. It
// reuses block.go's section encoders but drops the block-header framing
// in favor of explicit uvarint length prefixes, since an inlined list
// has no skip contract to support.
func encodeInline(postings []Posting, vf ValueFormat) []byte {
	if len(postings) == 0 {
		return appendUvarintInline(nil, 0)
	}
	idsRaw := encodeIDs(postings)
	mode, weightsRaw := encodeWeights(postings)
	valuesRaw := encodeValues(postings, vf)

	buf := appendUvarintInline(nil, uint64(len(postings)))
	buf = appendUvarintInline(buf, uint64(len(idsRaw)))
	buf = append(buf, idsRaw...)
	buf = append(buf, byte(mode))
	buf = appendUvarintInline(buf, uint64(len(weightsRaw)))
	buf = append(buf, weightsRaw...)
	buf = appendUvarintInline(buf, uint64(len(valuesRaw)))
	buf = append(buf, valuesRaw...)
	return buf
}

// DecodeInline parses a blob stored by a TermInfo's Inline field (the
// output of encodeInline) back into its per-posting ids, weights, and
// values, for callers that never flushed a full block and so have no
// Reader to open.
func DecodeInline(buf []byte, vf ValueFormat) (ids []uint32, weights []float32, values [][]byte, err error) {
	return decodeInline(buf, vf)
}

// decodeInline parses a blob produced by encodeInline back into its
// per-posting ids, weights, and values.
func decodeInline(buf []byte, vf ValueFormat) (ids []uint32, weights []float32, values [][]byte, err error) {
	count, n := binary.Uvarint(buf)
	if n <= 0 {
		return nil, nil, nil, fmt.Errorf("postings: malformed inline postings count")
	}
	pos := n
	if count == 0 {
		return nil, nil, nil, nil
	}

	idsLen, n := binary.Uvarint(buf[pos:])
	pos += n
	idsRaw := buf[pos : pos+int(idsLen)]
	pos += int(idsLen)
	ids = decodeIDs(idsRaw, int(count))

	if pos >= len(buf) {
		return nil, nil, nil, fmt.Errorf("postings: truncated inline postings")
	}
	mode := weightMode(buf[pos])
	pos++
	weightsLen, n := binary.Uvarint(buf[pos:])
	pos += n
	weightsRaw := buf[pos : pos+int(weightsLen)]
	pos += int(weightsLen)
	weights = decodeWeights(mode, weightsRaw, int(count))

	valuesLen, n := binary.Uvarint(buf[pos:])
	pos += n
	valuesRaw := buf[pos : pos+int(valuesLen)]
	values = decodeValues(valuesRaw, int(count), vf)

	return ids, weights, values, nil
}

func appendUvarintInline(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}
