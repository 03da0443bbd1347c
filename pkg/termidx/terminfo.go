// Package termidx implements TermInfo, the per-term statistics record
// stored as the value side of a segment's term dictionary, and the
// small field-name interning table that lets the dictionary key on a
// compact field id instead of repeating the field name in every term
// key.
package termidx

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/fathom-index/fathom/pkg/lengths"
	"github.com/fathom-index/fathom/pkg/postings"
)

// noID marks an unset min/max document id (a term with no postings
// yet).
const noID = 0xFFFFFFFF

// TermInfo is the per-term summary a segment's term dictionary maps
// every (field, term) key to: enough aggregate statistics to score the
// term without touching its posting list, plus either an Extent
// pointing at a block run or an inlined posting blob.
type TermInfo struct {
	TotalWeight float64
	DocFreq     uint32
	MinLength   int
	MaxLength   int
	MaxWeight   float32
	MinID       uint32 // noID if DocFreq == 0
	MaxID       uint32 // noID if DocFreq == 0

	Inlined bool
	Extent  postings.Extent // valid iff !Inlined
	Inline  []byte          // valid iff Inlined
}

// fixedHeaderSize covers every TermInfo field up to (but not including)
// the trailing extent/inline union.
const fixedHeaderSize = 1 + 8 + 4 + 1 + 1 + 4 + 4 + 4 // isInlined,totalWeight,df,minLen,maxLen,maxWeight,minID,maxID

// Encode renders a TermInfo as the bytes stored in the term dictionary.
func (ti TermInfo) Encode() []byte {
	buf := make([]byte, fixedHeaderSize)
	if ti.Inlined {
		buf[0] = 1
	}
	binary.BigEndian.PutUint64(buf[1:9], math.Float64bits(ti.TotalWeight))
	binary.BigEndian.PutUint32(buf[9:13], ti.DocFreq)
	buf[13] = lengths.LengthToByte(ti.MinLength)
	buf[14] = lengths.LengthToByte(ti.MaxLength)
	binary.BigEndian.PutUint32(buf[15:19], math.Float32bits(ti.MaxWeight))
	binary.BigEndian.PutUint32(buf[19:23], ti.MinID)
	binary.BigEndian.PutUint32(buf[23:27], ti.MaxID)

	if ti.Inlined {
		var tmp [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(tmp[:], uint64(len(ti.Inline)))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, ti.Inline...)
	} else {
		var tmp [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(tmp[:], uint64(ti.Extent.Offset))
		buf = append(buf, tmp[:n]...)
		n = binary.PutUvarint(tmp[:], uint64(ti.Extent.Length))
		buf = append(buf, tmp[:n]...)
	}
	return buf
}

// Decode parses a TermInfo from the bytes Encode produced.
func Decode(b []byte) (TermInfo, error) {
	if len(b) < fixedHeaderSize {
		return TermInfo{}, fmt.Errorf("termidx: short TermInfo (%d bytes)", len(b))
	}
	var ti TermInfo
	ti.Inlined = b[0] != 0
	ti.TotalWeight = math.Float64frombits(binary.BigEndian.Uint64(b[1:9]))
	ti.DocFreq = binary.BigEndian.Uint32(b[9:13])
	ti.MinLength = lengths.ByteToLength(b[13])
	ti.MaxLength = lengths.ByteToLength(b[14])
	ti.MaxWeight = math.Float32frombits(binary.BigEndian.Uint32(b[15:19]))
	ti.MinID = binary.BigEndian.Uint32(b[19:23])
	ti.MaxID = binary.BigEndian.Uint32(b[23:27])

	rest := b[fixedHeaderSize:]
	if ti.Inlined {
		l, n := binary.Uvarint(rest)
		if n <= 0 {
			return TermInfo{}, fmt.Errorf("termidx: malformed inline length")
		}
		rest = rest[n:]
		if uint64(len(rest)) < l {
			return TermInfo{}, fmt.Errorf("termidx: truncated inline postings")
		}
		ti.Inline = rest[:l]
		return ti, nil
	}
	off, n := binary.Uvarint(rest)
	if n <= 0 {
		return TermInfo{}, fmt.Errorf("termidx: malformed extent offset")
	}
	rest = rest[n:]
	length, n := binary.Uvarint(rest)
	if n <= 0 {
		return TermInfo{}, fmt.Errorf("termidx: malformed extent length")
	}
	ti.Extent = postings.Extent{Offset: int64(off), Length: int64(length)}
	return ti, nil
}

// HasPostings reports whether any document has been recorded for this
// term. An empty TermInfo, with DocFreq 0, carries the sentinel ids;
// callers constructing one for a real term should never finish it with
// DocFreq 0.
func (ti TermInfo) HasPostings() bool {
	return ti.MinID != noID && ti.MaxID != noID
}

// NewEmptyTermInfo returns a TermInfo with no postings recorded yet,
// ready to be widened by successive AddPosting-style updates before
// the writer calls Finish.
func NewEmptyTermInfo() TermInfo {
	return TermInfo{MinID: noID, MaxID: noID}
}

// Widen folds one posting's statistics into a term's running
// aggregate, keeping min <= max for both ids and lengths.
func (ti *TermInfo) Widen(id uint32, weight float32, length int) {
	ti.DocFreq++
	ti.TotalWeight += float64(weight)
	if weight > ti.MaxWeight {
		ti.MaxWeight = weight
	}
	if ti.MinID == noID || id < ti.MinID {
		ti.MinID = id
	}
	if ti.MaxID == noID || id > ti.MaxID {
		ti.MaxID = id
	}
	if ti.DocFreq == 1 || length < ti.MinLength {
		ti.MinLength = length
	}
	if length > ti.MaxLength {
		ti.MaxLength = length
	}
}
