/*
Copyright 2013 The Camlistore Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package hashkv

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fathom-index/fathom/pkg/storage"
)

var (
	// ErrNotFound is returned when a lookup key is absent from a hash table.
	ErrNotFound = errors.New("hashkv: key not found")

	// ErrClosed is returned when a writer method is called after Close.
	ErrClosed = errors.New("hashkv: writer already closed")
)

const (
	magic = "HSH3"
	// legacyMagic identifies a hash file from before the typed extras
	// encoding in extras.go existed: same header and bucket-table layout,
	// but the trailer's extras blob is a flat sequence of byte-string
	// values with no kind byte or fieldmap support. Readable only — new
	// writers never emit it.
	legacyMagic  = "HASH"
	headerSize   = 4 + 1 + 8 + 8 // magic + hashtype + reserved + trailer offset
	dirEntrySize = 8 + 4         // offset:u64 + numslots:u32
	numBuckets   = 256
)

type bucketEntry struct {
	hash uint32
	pos  uint64
}

type dirEntry struct {
	offset   uint64
	numSlots uint32
}

// baseWriter implements the shared mechanics of every hash table flavor:
// serial append-only writes of key/value records, the two-level (256
// bucket, open-addressed) hash table, and the trailer.
type baseWriter struct {
	f        storage.File
	hashtype HashType
	hashfn   func([]byte) uint32
	startOff int64
	buckets  [numBuckets][]bucketEntry
	extras   extras
	closed   bool
}

func newBaseWriter(f storage.File, hashtype HashType) (*baseWriter, error) {
	start, err := f.Len()
	if err != nil {
		return nil, err
	}
	w := &baseWriter{
		f:        f,
		hashtype: hashtype,
		hashfn:   hashFunc(hashtype),
		startOff: start,
		extras:   make(extras),
	}
	hdr := make([]byte, headerSize)
	copy(hdr[0:4], magic)
	hdr[4] = byte(hashtype)
	// bytes 5..13 reserved, left zero; bytes 13..21 are the trailer
	// offset, patched in at Close.
	if _, err := f.Append(hdr); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *baseWriter) tell() (int64, error) { return w.f.Len() }

// add appends a key/value record and indexes it by hash; it returns the
// file offset the record was written at.
func (w *baseWriter) add(key, value []byte) (int64, error) {
	if w.closed {
		return 0, ErrClosed
	}
	rec := make([]byte, 8+len(key)+len(value))
	binary.BigEndian.PutUint32(rec[0:4], uint32(len(key)))
	binary.BigEndian.PutUint32(rec[4:8], uint32(len(value)))
	copy(rec[8:], key)
	copy(rec[8+len(key):], value)
	pos, err := w.f.Append(rec)
	if err != nil {
		return 0, err
	}
	h := w.hashfn(key)
	b := h & 0xFF
	w.buckets[b] = append(w.buckets[b], bucketEntry{hash: h, pos: uint64(pos)})
	return pos, nil
}

// writeHashes writes the 256 open-addressed hash tables and returns the
// directory describing them.
func (w *baseWriter) writeHashes() ([]dirEntry, error) {
	dir := make([]dirEntry, numBuckets)
	for i, entries := range w.buckets {
		pos, err := w.f.Len()
		if err != nil {
			return nil, err
		}
		numSlots := uint32(2 * len(entries))
		dir[i] = dirEntry{offset: uint64(pos), numSlots: numSlots}
		if numSlots == 0 {
			continue
		}
		slots := make([]bucketEntry, numSlots)
		for _, e := range entries {
			slot := (e.hash >> 8) % numSlots
			for slots[slot].pos != 0 || slots[slot].hash != 0 {
				slot = (slot + 1) % numSlots
			}
			slots[slot] = e
		}
		buf := make([]byte, 12*numSlots)
		for j, s := range slots {
			binary.BigEndian.PutUint32(buf[j*12:j*12+4], s.hash)
			binary.BigEndian.PutUint64(buf[j*12+4:j*12+12], s.pos)
		}
		if _, err := w.f.Append(buf); err != nil {
			return nil, err
		}
	}
	return dir, nil
}

func (w *baseWriter) writeDirectory(dir []dirEntry) error {
	buf := make([]byte, dirEntrySize*len(dir))
	for i, d := range dir {
		binary.BigEndian.PutUint64(buf[i*12:i*12+8], d.offset)
		binary.BigEndian.PutUint32(buf[i*12+8:i*12+12], d.numSlots)
	}
	_, err := w.f.Append(buf)
	return err
}

// finish writes the directory and extras trailer and patches the
// 8-byte trailer offset reserved in the header, returning the end
// position of the file.
func (w *baseWriter) finish() (int64, error) {
	if w.closed {
		return 0, ErrClosed
	}
	w.closed = true
	dir, err := w.writeHashes()
	if err != nil {
		return 0, err
	}
	trailerOff, err := w.f.Len()
	if err != nil {
		return 0, err
	}
	if err := w.writeDirectory(dir); err != nil {
		return 0, err
	}
	extrasBlob, err := encodeExtras(w.extras)
	if err != nil {
		return 0, err
	}
	if _, err := w.f.Append(extrasBlob); err != nil {
		return 0, err
	}
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(extrasBlob)))
	if _, err := w.f.Append(lenBuf); err != nil {
		return 0, err
	}
	var off [8]byte
	binary.BigEndian.PutUint64(off[:], uint64(trailerOff))
	if _, err := w.f.WriteAt(off[:], w.startOff+13); err != nil {
		return 0, err
	}
	if err := w.f.Flush(); err != nil {
		return 0, err
	}
	return w.f.Len()
}

// HashWriter writes a basic CDB-style unordered hash table: any byte
// string key, values may repeat, no ordering guarantee between entries.
type HashWriter struct {
	*baseWriter
}

func NewHashWriter(f storage.File, hashtype HashType) (*HashWriter, error) {
	b, err := newBaseWriter(f, hashtype)
	if err != nil {
		return nil, err
	}
	return &HashWriter{baseWriter: b}, nil
}

func (w *HashWriter) Add(key, value []byte) error {
	_, err := w.add(key, value)
	return err
}

func (w *HashWriter) AddAll(items [][2][]byte) error {
	for _, kv := range items {
		if err := w.Add(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

// Close finalizes the file and returns its end position.
func (w *HashWriter) Close() (int64, error) { return w.finish() }

// baseReader holds the parsed header and directory shared by every
// reader flavor.
type baseReader struct {
	f        storage.File
	hashtype HashType
	hashfn   func([]byte) uint32
	startOff int64
	dir      [numBuckets]dirEntry
	extras   extras
}

func openBaseReader(f storage.File, startOff int64) (*baseReader, error) {
	hdr := make([]byte, headerSize)
	if _, err := f.ReadAt(hdr, startOff); err != nil {
		return nil, fmt.Errorf("hashkv: reading header: %w", err)
	}
	legacy := false
	switch string(hdr[0:4]) {
	case magic:
	case legacyMagic:
		legacy = true
	default:
		return nil, fmt.Errorf("hashkv: bad magic %q", hdr[0:4])
	}
	hashtype := HashType(hdr[4])
	trailerOff := int64(binary.BigEndian.Uint64(hdr[13:21]))

	dirBuf := make([]byte, dirEntrySize*numBuckets)
	if _, err := f.ReadAt(dirBuf, trailerOff); err != nil {
		return nil, fmt.Errorf("hashkv: reading directory: %w", err)
	}
	r := &baseReader{f: f, hashtype: hashtype, hashfn: hashFunc(hashtype), startOff: startOff}
	for i := 0; i < numBuckets; i++ {
		off := binary.BigEndian.Uint64(dirBuf[i*12 : i*12+8])
		slots := binary.BigEndian.Uint32(dirBuf[i*12+8 : i*12+12])
		r.dir[i] = dirEntry{offset: off, numSlots: slots}
	}

	fileLen, err := f.Len()
	if err != nil {
		return nil, err
	}
	// A file can hold several tables (a column file holds three), so the
	// length word at the file's end belongs to the last one only; the
	// extras decoders are self-delimiting and ignore trailing bytes.
	extrasStart := trailerOff + dirEntrySize*numBuckets
	extrasLen := fileLen - 4 - extrasStart
	if extrasLen < 0 {
		return nil, fmt.Errorf("hashkv: extras start %d past end of file", extrasStart)
	}
	extrasBuf := make([]byte, extrasLen)
	if extrasLen > 0 {
		if _, err := f.ReadAt(extrasBuf, extrasStart); err != nil {
			return nil, fmt.Errorf("hashkv: reading extras: %w", err)
		}
	}
	var ex extras
	if legacy {
		ex, err = decodeLegacyExtras(extrasBuf)
	} else {
		ex, err = decodeExtras(extrasBuf)
	}
	if err != nil {
		return nil, fmt.Errorf("hashkv: decoding extras: %w", err)
	}
	r.extras = ex
	return r, nil
}

// readRecord reads the key/value pair stored at pos.
func (r *baseReader) readRecord(pos int64) (key, value []byte, err error) {
	lenBuf := make([]byte, 8)
	if _, err := r.f.ReadAt(lenBuf, pos); err != nil {
		return nil, nil, err
	}
	keyLen := binary.BigEndian.Uint32(lenBuf[0:4])
	valLen := binary.BigEndian.Uint32(lenBuf[4:8])
	body := make([]byte, keyLen+valLen)
	if _, err := r.f.ReadAt(body, pos+8); err != nil {
		return nil, nil, err
	}
	return body[:keyLen], body[keyLen:], nil
}

// get looks up a key via the two-level hash table, returning all values
// stored under it (a CDB-style table allows duplicate keys).
func (r *baseReader) get(key []byte) ([][]byte, error) {
	h := r.hashfn(key)
	d := r.dir[h&0xFF]
	if d.numSlots == 0 {
		return nil, nil
	}
	slotBuf := make([]byte, 12*d.numSlots)
	if _, err := r.f.ReadAt(slotBuf, int64(d.offset)); err != nil {
		return nil, err
	}
	start := (h >> 8) % d.numSlots
	var values [][]byte
	for i := uint32(0); i < d.numSlots; i++ {
		slot := (start + i) % d.numSlots
		sh := binary.BigEndian.Uint32(slotBuf[slot*12 : slot*12+4])
		sp := binary.BigEndian.Uint64(slotBuf[slot*12+4 : slot*12+12])
		if sh == 0 && sp == 0 {
			break
		}
		if sh != h {
			continue
		}
		k, v, err := r.readRecord(int64(sp))
		if err != nil {
			return nil, err
		}
		if string(k) == string(key) {
			values = append(values, v)
		}
	}
	return values, nil
}

// HashReader reads a table written by HashWriter.
type HashReader struct {
	*baseReader
}

// OpenHashReader opens a hash table starting at startOff in f (use 0 for
// a file dedicated to a single table).
func OpenHashReader(f storage.File, startOff int64) (*HashReader, error) {
	b, err := openBaseReader(f, startOff)
	if err != nil {
		return nil, err
	}
	return &HashReader{baseReader: b}, nil
}

// Get returns the first value stored under key, or ErrNotFound.
func (r *HashReader) Get(key []byte) ([]byte, error) {
	vs, err := r.get(key)
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, ErrNotFound
	}
	return vs[0], nil
}

// GetAll returns every value stored under key.
func (r *HashReader) GetAll(key []byte) ([][]byte, error) {
	return r.get(key)
}

func (r *HashReader) Close() error { return r.f.Close() }
