package postings

import (
	"encoding/binary"
	"fmt"

	"github.com/fathom-index/fathom/pkg/storage"
)

// Reader walks a posting run block by block, supporting the skip
// contract (skip_to / skip_to_quality) by inspecting a block's header
// before deciding whether its body needs decoding at all.
type Reader struct {
	f   storage.File
	vf  ValueFormat
	end int64

	pos       int64 // offset of the next block's length prefix
	lastBlock bool   // true once the currently loaded block is the final one

	blk    decodedBlock
	loaded bool
	idx    int
}

// NewReader opens a posting run previously written by Writer, located
// at ext within f.
func NewReader(f storage.File, ext Extent, vf ValueFormat) (*Reader, error) {
	magic := make([]byte, 4)
	if _, err := f.ReadAt(magic, ext.Offset); err != nil {
		return nil, err
	}
	if string(magic) != Magic {
		return nil, fmt.Errorf("postings: bad magic %q", magic)
	}
	return &Reader{f: f, vf: vf, pos: ext.Offset + 4, end: ext.Offset + ext.Length}, nil
}

// blockFraming reads the 4-byte signed length prefix at pos.
func (r *Reader) blockFraming(pos int64) (bodyLen int32, last bool, err error) {
	lenBuf := make([]byte, 4)
	if _, err := r.f.ReadAt(lenBuf, pos); err != nil {
		return 0, false, err
	}
	n := int32(binary.BigEndian.Uint32(lenBuf))
	if n < 0 {
		return -n, true, nil
	}
	return n, false, nil
}

// peekHeader reads just a block's fixed header (postCount, lastID,
// maxWeight, length bounds, section lengths) without touching the
// ids/weights/values sections, enough to decide skip eligibility.
func (r *Reader) peekHeader(pos int64) (h blockHeader, bodyLen int32, last bool, err error) {
	bodyLen, last, err = r.blockFraming(pos)
	if err != nil {
		return blockHeader{}, 0, false, err
	}
	hbuf := make([]byte, blockHeaderSize)
	if _, err := r.f.ReadAt(hbuf, pos+4); err != nil {
		return blockHeader{}, 0, false, err
	}
	h, err = decodeBlockHeader(hbuf)
	return h, bodyLen, last, err
}

// loadBlockAt fully decodes the block starting at pos and advances
// r.pos past it.
func (r *Reader) loadBlockAt(pos int64) error {
	bodyLen, last, err := r.blockFraming(pos)
	if err != nil {
		return err
	}
	raw := make([]byte, bodyLen)
	if _, err := r.f.ReadAt(raw, pos+4); err != nil {
		return err
	}
	blk, err := decodeBlock(raw, r.vf)
	if err != nil {
		return err
	}
	r.blk = blk
	r.loaded = true
	r.idx = 0
	r.lastBlock = last
	r.pos = pos + 4 + int64(bodyLen)
	return nil
}

// advance loads the next block in the run, returning false once the
// current block was the last one.
func (r *Reader) advance() (bool, error) {
	if r.loaded && r.lastBlock {
		return false, nil
	}
	if r.pos >= r.end {
		return false, nil
	}
	if err := r.loadBlockAt(r.pos); err != nil {
		return false, err
	}
	return true, nil
}

// Next returns the next posting in ascending id order, or ok=false once
// the run is exhausted.
func (r *Reader) Next() (p Posting, ok bool, err error) {
	for {
		if r.loaded && r.idx < len(r.blk.ids) {
			p = Posting{ID: r.blk.ids[r.idx], Weight: r.blk.weights[r.idx]}
			if r.idx < len(r.blk.values) {
				p.Value = r.blk.values[r.idx]
			}
			r.idx++
			return p, true, nil
		}
		more, err := r.advance()
		if err != nil {
			return Posting{}, false, err
		}
		if !more {
			return Posting{}, false, nil
		}
	}
}

// SkipTo advances the reader to the first posting whose id is >= target,
// using block headers' lastID to skip whole blocks without decoding
// their bodies. It returns ok=false if no such posting exists.
func (r *Reader) SkipTo(target uint32) (p Posting, ok bool, err error) {
	for {
		if r.loaded {
			for r.idx < len(r.blk.ids) {
				if r.blk.ids[r.idx] >= target {
					p = Posting{ID: r.blk.ids[r.idx], Weight: r.blk.weights[r.idx]}
					if r.idx < len(r.blk.values) {
						p.Value = r.blk.values[r.idx]
					}
					return p, true, nil
				}
				r.idx++
			}
			if r.lastBlock {
				return Posting{}, false, nil
			}
		}
		if r.pos >= r.end {
			return Posting{}, false, nil
		}

		h, bodyLen, last, err := r.peekHeader(r.pos)
		if err != nil {
			return Posting{}, false, err
		}
		if h.lastID < target && !last {
			r.pos += 4 + int64(bodyLen)
			r.loaded = false
			continue
		}
		if err := r.loadBlockAt(r.pos); err != nil {
			return Posting{}, false, err
		}
	}
}

// SkipToQuality advances past whole blocks whose header-derived upper
// bound on quality (as computed by qualityFn from the block's maxWeight
// and max field length) falls below minQ, without decoding their
// bodies. It then returns the next posting at or after target via the
// ordinary skip-to positioning. Rejection happens on header fields
// alone; only blocks that might matter are decoded.
func (r *Reader) SkipToQuality(target uint32, minQ float64, qualityFn func(maxWeight float32, maxLen int) float64) (p Posting, ok bool, err error) {
	for {
		if r.loaded || r.pos >= r.end {
			break
		}
		h, bodyLen, last, err := r.peekHeader(r.pos)
		if err != nil {
			return Posting{}, false, err
		}
		if qualityFn(h.maxWeight, h.MaxLength()) < minQ && !last {
			r.pos += 4 + int64(bodyLen)
			continue
		}
		break
	}
	return r.SkipTo(target)
}
