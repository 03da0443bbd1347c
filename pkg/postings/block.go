// Package postings implements the posting block codec: a run of
// variable-length blocks carrying delta-encoded doc ids, elided
// weights, and per-field payload values, with enough information in
// each block's fixed header to decide skip eligibility without
// decoding the body.
package postings

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/golang/snappy"

	"github.com/fathom-index/fathom/pkg/lengths"
)

// Magic identifies a posting run (the 4 bytes every posting list
// begins with).
const Magic = "W3Bl"

const (
	compressedIDs    = 1 << 0
	compressedValues = 1 << 1
)

// DefaultCompressionThreshold is the section byte length above which
// encodeBlock snappy-compresses a section; sections at or below it are
// stored raw since compression overhead would outweigh the savings.
const DefaultCompressionThreshold = 32

// blockHeader is the fixed binary layout replacing the reference
// implementation's pickled block-info tuple: post count, last doc id,
// max weight, a packed compression-level byte, the block's min/max
// field-length bytes (via pkg/lengths), and the on-disk length of each
// of the three body sections.
type blockHeader struct {
	postCount   uint32
	lastID      uint32
	maxWeight   float32
	compression uint8
	minLenByte  uint8
	maxLenByte  uint8
	idsLen      uint32
	weightsLen  uint32
	valuesLen   uint32
}

const blockHeaderSize = 4 + 4 + 4 + 1 + 1 + 1 + 4 + 4 + 4 // 27 bytes

func (h blockHeader) encode() []byte {
	b := make([]byte, blockHeaderSize)
	binary.BigEndian.PutUint32(b[0:4], h.postCount)
	binary.BigEndian.PutUint32(b[4:8], h.lastID)
	binary.BigEndian.PutUint32(b[8:12], math.Float32bits(h.maxWeight))
	b[12] = h.compression
	b[13] = h.minLenByte
	b[14] = h.maxLenByte
	binary.BigEndian.PutUint32(b[15:19], h.idsLen)
	binary.BigEndian.PutUint32(b[19:23], h.weightsLen)
	binary.BigEndian.PutUint32(b[23:27], h.valuesLen)
	return b[:blockHeaderSize]
}

func decodeBlockHeader(b []byte) (blockHeader, error) {
	if len(b) < blockHeaderSize {
		return blockHeader{}, fmt.Errorf("postings: short block header (%d bytes)", len(b))
	}
	var h blockHeader
	h.postCount = binary.BigEndian.Uint32(b[0:4])
	h.lastID = binary.BigEndian.Uint32(b[4:8])
	h.maxWeight = math.Float32frombits(binary.BigEndian.Uint32(b[8:12]))
	h.compression = b[12]
	h.minLenByte = b[13]
	h.maxLenByte = b[14]
	h.idsLen = binary.BigEndian.Uint32(b[15:19])
	h.weightsLen = binary.BigEndian.Uint32(b[19:23])
	h.valuesLen = binary.BigEndian.Uint32(b[23:27])
	return h, nil
}

// Posting is a single entry in a posting list: a document id (or, for
// vector postings, a term encoded as a varint-prefixed byte string
// elsewhere), an optional weight, a payload value, and the field length
// at the time the posting was added (used for block min/max tracking
// and the quality upper bound).
type Posting struct {
	ID     uint32
	Weight float32
	Value  []byte
	Length int
}

// encodeIDs delta-encodes then varint-packs doc ids in ascending order.
func encodeIDs(postings []Posting) []byte {
	buf := make([]byte, 0, len(postings)*2)
	var prev uint64
	var tmp [binary.MaxVarintLen64]byte
	for _, p := range postings {
		delta := uint64(p.ID) - prev
		n := binary.PutUvarint(tmp[:], delta)
		buf = append(buf, tmp[:n]...)
		prev = uint64(p.ID)
	}
	return buf
}

func decodeIDs(buf []byte, count int) []uint32 {
	ids := make([]uint32, count)
	var prev uint64
	pos := 0
	for i := 0; i < count; i++ {
		delta, n := binary.Uvarint(buf[pos:])
		pos += n
		prev += delta
		ids[i] = uint32(prev)
	}
	return ids
}

// weightMode distinguishes the three ways a block's weights section can
// be elided: all 1.0 (no bytes), all equal (a single float), or a full
// array.
type weightMode uint8

const (
	weightsAllOne weightMode = iota
	weightsUniform
	weightsArray
)

func encodeWeights(postings []Posting) (weightMode, []byte) {
	allOne := true
	uniform := true
	for i, p := range postings {
		if p.Weight != 1.0 {
			allOne = false
		}
		if i > 0 && p.Weight != postings[0].Weight {
			uniform = false
		}
	}
	if allOne {
		return weightsAllOne, nil
	}
	if uniform {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, math.Float32bits(postings[0].Weight))
		return weightsUniform, b
	}
	b := make([]byte, 4*len(postings))
	for i, p := range postings {
		binary.BigEndian.PutUint32(b[i*4:], math.Float32bits(p.Weight))
	}
	return weightsArray, b
}

func decodeWeights(mode weightMode, buf []byte, count int) []float32 {
	out := make([]float32, count)
	switch mode {
	case weightsAllOne:
		for i := range out {
			out[i] = 1.0
		}
	case weightsUniform:
		w := math.Float32frombits(binary.BigEndian.Uint32(buf))
		for i := range out {
			out[i] = w
		}
	case weightsArray:
		for i := range out {
			out[i] = math.Float32frombits(binary.BigEndian.Uint32(buf[i*4:]))
		}
	}
	return out
}

// ValueFormat describes how a field's per-posting payload is shaped:
// fixed-size, variable-size, or absent.
type ValueFormat struct {
	FixedSize int // >0: every value is exactly this many bytes
	Variable  bool // ignored if FixedSize > 0
}

func encodeValues(postings []Posting, vf ValueFormat) []byte {
	if vf.FixedSize > 0 {
		buf := make([]byte, vf.FixedSize*len(postings))
		for i, p := range postings {
			copy(buf[i*vf.FixedSize:], p.Value)
		}
		return buf
	}
	if !vf.Variable {
		return nil
	}
	var buf []byte
	var tmp [binary.MaxVarintLen64]byte
	for _, p := range postings {
		n := binary.PutUvarint(tmp[:], uint64(len(p.Value)))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, p.Value...)
	}
	return buf
}

func decodeValues(buf []byte, count int, vf ValueFormat) [][]byte {
	if vf.FixedSize > 0 {
		out := make([][]byte, count)
		for i := range out {
			out[i] = buf[i*vf.FixedSize : (i+1)*vf.FixedSize]
		}
		return out
	}
	if !vf.Variable {
		return make([][]byte, count)
	}
	out := make([][]byte, count)
	pos := 0
	for i := 0; i < count; i++ {
		l, n := binary.Uvarint(buf[pos:])
		pos += n
		out[i] = buf[pos : pos+int(l)]
		pos += int(l)
	}
	return out
}

func maybeCompress(b []byte, threshold int) (out []byte, compressed bool) {
	if len(b) <= threshold {
		return b, false
	}
	return snappy.Encode(nil, b), true
}

func maybeDecompress(b []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return b, nil
	}
	return snappy.Decode(nil, b)
}

// encodeBlock renders postings (already sorted ascending by ID) as a
// single block: header followed by the ids/weights/values sections.
// minLen/maxLen are the block's observed field-length extremes, already
// packed through pkg/lengths by the caller.
func encodeBlock(postings []Posting, vf ValueFormat, minLenByte, maxLenByte byte, maxWeight float32, compressionThreshold int) []byte {
	idsRaw := encodeIDs(postings)
	_, weightsRaw := encodeWeights(postings)
	valuesRaw := encodeValues(postings, vf)

	ids, idsCompressed := maybeCompress(idsRaw, compressionThreshold)
	values, valuesCompressed := maybeCompress(valuesRaw, compressionThreshold)

	var compression uint8
	if idsCompressed {
		compression |= compressedIDs
	}
	if valuesCompressed {
		compression |= compressedValues
	}

	h := blockHeader{
		postCount:   uint32(len(postings)),
		lastID:      postings[len(postings)-1].ID,
		maxWeight:   maxWeight,
		compression: compression,
		minLenByte:  minLenByte,
		maxLenByte:  maxLenByte,
		idsLen:      uint32(len(ids)),
		weightsLen:  uint32(len(weightsRaw)),
		valuesLen:   uint32(len(values)),
	}

	body := make([]byte, 0, blockHeaderSize+len(ids)+len(weightsRaw)+len(values))
	body = append(body, h.encode()...)
	body = append(body, ids...)
	body = append(body, weightsRaw...)
	body = append(body, values...)
	return body
}

// decodedBlock is a fully materialized block: used by the reader after
// it decides (via the header alone) that the block should not be
// skipped.
type decodedBlock struct {
	header  blockHeader
	ids     []uint32
	weights []float32
	values  [][]byte
}

func decodeBlock(raw []byte, vf ValueFormat) (decodedBlock, error) {
	h, err := decodeBlockHeader(raw)
	if err != nil {
		return decodedBlock{}, err
	}
	pos := blockHeaderSize
	idsRaw, err := maybeDecompress(raw[pos:pos+int(h.idsLen)], h.compression&compressedIDs != 0)
	if err != nil {
		return decodedBlock{}, fmt.Errorf("postings: decompressing ids: %w", err)
	}
	pos += int(h.idsLen)
	weightsRaw := raw[pos : pos+int(h.weightsLen)]
	pos += int(h.weightsLen)
	valuesRaw, err := maybeDecompress(raw[pos:pos+int(h.valuesLen)], h.compression&compressedValues != 0)
	if err != nil {
		return decodedBlock{}, fmt.Errorf("postings: decompressing values: %w", err)
	}

	count := int(h.postCount)
	ids := decodeIDs(idsRaw, count)

	var mode weightMode
	switch {
	case len(weightsRaw) == 0:
		mode = weightsAllOne
	case len(weightsRaw) == 4:
		mode = weightsUniform
	default:
		mode = weightsArray
	}
	weights := decodeWeights(mode, weightsRaw, count)
	values := decodeValues(valuesRaw, count, vf)

	return decodedBlock{header: h, ids: ids, weights: weights, values: values}, nil
}

// MinLength and MaxLength unpack the block header's logarithmic-byte
// field-length bounds.
func (h blockHeader) MinLength() int { return lengths.ByteToLength(h.minLenByte) }
func (h blockHeader) MaxLength() int { return lengths.ByteToLength(h.maxLenByte) }
