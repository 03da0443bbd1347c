package postings

import (
	"encoding/binary"
	"fmt"

	"github.com/fathom-index/fathom/pkg/lengths"
	"github.com/fathom-index/fathom/pkg/storage"
)

// DefaultBlockSize is the number of postings buffered before a block is
// flushed to disk.
const DefaultBlockSize = 128

// DefaultInlineLimit is the largest single-block posting list that is
// stored directly in the TermInfo instead of as a block run.
const DefaultInlineLimit = 4

// Extent locates a posting run already flushed to the posting file.
type Extent struct {
	Offset int64
	Length int64
}

// Writer implements the block writer's three-call contract: begin a
// term's postings, add one posting at a time (ascending id), and
// finish, after which either Extent or InlinePostings holds the result.
type Writer struct {
	f                    storage.File
	vf                   ValueFormat
	blockSize            int
	compressionThreshold int

	startOffset int64
	buf         []Posting
	wroteAny    bool
	lastID      uint32
	haveID      bool

	// set by Finish
	Extent         Extent
	Inline         bool
	InlinePostings []byte
}

// NewWriter starts a new posting run at the current end of f. Nothing
// is written until the first block flush, so a term whose postings end
// up inlined leaves no trace in the posting file at all.
func NewWriter(f storage.File, vf ValueFormat) (*Writer, error) {
	off, err := f.Len()
	if err != nil {
		return nil, err
	}
	return &Writer{
		f:                    f,
		vf:                   vf,
		blockSize:            DefaultBlockSize,
		compressionThreshold: DefaultCompressionThreshold,
		startOffset:          off,
	}, nil
}

// SetBlockSize overrides the number of postings buffered per block
// before a flush. It must be called before the first Add; n <= 0
// leaves DefaultBlockSize in effect.
func (w *Writer) SetBlockSize(n int) {
	if n > 0 {
		w.blockSize = n
	}
}

// SetCompressionThreshold overrides the section byte length above which
// a flushed block's ids/values sections are snappy-compressed. It must
// be called before the first Add; n <= 0 leaves
// DefaultCompressionThreshold in effect.
func (w *Writer) SetCompressionThreshold(n int) {
	if n > 0 {
		w.compressionThreshold = n
	}
}

// Add buffers one posting, flushing a full block once the buffer
// grows past the configured block size. Postings must arrive in
// ascending ID order within a term. The flush happens one Add late so
// the final block, whenever it comes, is the one flagged as last.
func (w *Writer) Add(p Posting) error {
	if w.haveID && p.ID <= w.lastID {
		return fmt.Errorf("postings: ids must be strictly increasing within a term (got %d after %d)", p.ID, w.lastID)
	}
	w.lastID = p.ID
	w.haveID = true
	if len(w.buf) >= w.blockSize {
		if err := w.flush(false); err != nil {
			return err
		}
	}
	w.buf = append(w.buf, p)
	return nil
}

func (w *Writer) flush(last bool) error {
	if len(w.buf) == 0 {
		return nil
	}
	if !w.wroteAny {
		if _, err := w.f.Append([]byte(Magic)); err != nil {
			return err
		}
	}
	minLen, maxLen := w.buf[0].Length, w.buf[0].Length
	var maxWeight float32
	for _, p := range w.buf {
		if p.Length < minLen {
			minLen = p.Length
		}
		if p.Length > maxLen {
			maxLen = p.Length
		}
		if p.Weight > maxWeight {
			maxWeight = p.Weight
		}
	}
	body := encodeBlock(w.buf, w.vf, lengths.LengthToByte(minLen), lengths.LengthToByte(maxLen), maxWeight, w.compressionThreshold)

	n := int32(len(body))
	if last {
		n = -n
	}
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(n))
	if _, err := w.f.Append(lenBuf); err != nil {
		return err
	}
	if _, err := w.f.Append(body); err != nil {
		return err
	}
	w.wroteAny = true
	w.buf = w.buf[:0]
	return nil
}

// Finish closes out the term's posting run. If nothing was ever
// flushed as a full block and the buffered count is within
// inlineLimit, the postings are kept as an in-memory blob for the
// TermInfo to embed directly; otherwise any remaining buffered
// postings are flushed as the final block and Extent records the run's
// (offset, length) within f.
func (w *Writer) Finish(inlineLimit int) error {
	if !w.wroteAny && len(w.buf) <= inlineLimit {
		w.Inline = true
		w.InlinePostings = encodeInline(w.buf, w.vf)
		return nil
	}
	if err := w.flush(true); err != nil {
		return err
	}
	end, err := w.f.Len()
	if err != nil {
		return err
	}
	w.Extent = Extent{Offset: w.startOffset, Length: end - w.startOffset}
	return nil
}
