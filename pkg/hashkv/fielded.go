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
	"bytes"
	"errors"
	"fmt"

	"github.com/fathom-index/fathom/pkg/storage"
)

// ErrNoActiveField is returned by Add/EndField when called without a
// preceding StartField.
var ErrNoActiveField = errors.New("hashkv: no active field")

// FieldedOrderedHashWriter partitions an ordered hash into independent
// per-field regions: the ordering contract (and the position index that
// makes closest-key search possible) only needs to hold within a single
// field, not across the whole table. This is the structure backing the
// term dictionary, where each indexed field gets its own sorted run of
// terms.
type FieldedOrderedHashWriter struct {
	*baseWriter
	fieldname  string
	fieldStart int64
	lastKey    []byte
	haveKey    bool
	poses      []int64 // offsets relative to fieldStart
	fieldmap   map[string]fieldRegion
}

func NewFieldedOrderedHashWriter(f storage.File, hashtype HashType) (*FieldedOrderedHashWriter, error) {
	b, err := newBaseWriter(f, hashtype)
	if err != nil {
		return nil, err
	}
	return &FieldedOrderedHashWriter{baseWriter: b, fieldmap: make(map[string]fieldRegion)}, nil
}

// StartField begins a new field region. A previously started field must
// be closed with EndField first.
func (w *FieldedOrderedHashWriter) StartField(fieldname string) error {
	if w.fieldname != "" {
		return fmt.Errorf("hashkv: field %q still open", w.fieldname)
	}
	pos, err := w.tell()
	if err != nil {
		return err
	}
	w.fieldname = fieldname
	w.fieldStart = pos
	w.poses = w.poses[:0]
	w.lastKey = nil
	w.haveKey = false
	return nil
}

// Add adds a key/value pair to the currently open field. Keys must be
// strictly increasing within the field; ordering resets at each
// StartField.
func (w *FieldedOrderedHashWriter) Add(key, value []byte) error {
	if w.fieldname == "" {
		return ErrNoActiveField
	}
	if w.haveKey && bytes.Compare(key, w.lastKey) <= 0 {
		return ErrOutOfOrder
	}
	pos, err := w.tell()
	if err != nil {
		return err
	}
	w.poses = append(w.poses, pos-w.fieldStart)
	if _, err := w.add(key, value); err != nil {
		return err
	}
	w.lastKey = append(w.lastKey[:0], key...)
	w.haveKey = true
	return nil
}

// EndField closes the currently open field, writing its position index
// to the file immediately (not deferred to Close) and recording the
// field's region in the fieldmap.
func (w *FieldedOrderedHashWriter) EndField() error {
	if w.fieldname == "" {
		return ErrNoActiveField
	}
	indexOff, err := w.tell()
	if err != nil {
		return err
	}
	code, packed := packIndex(w.poses)
	if _, err := w.f.Append(packed); err != nil {
		return err
	}
	w.fieldmap[w.fieldname] = fieldRegion{
		start:     uint64(w.fieldStart),
		indexOff:  uint64(indexOff),
		indexLen:  uint32(len(w.poses)),
		indexCode: code,
	}
	w.fieldname = ""
	return nil
}

// Close writes the fieldmap into extras and finalizes the file. It is an
// error to call Close with a field still open.
func (w *FieldedOrderedHashWriter) Close() (int64, error) {
	if w.fieldname != "" {
		return 0, fmt.Errorf("hashkv: field %q not closed before Close", w.fieldname)
	}
	w.extras["fieldmap"] = w.fieldmap
	return w.finish()
}

// fieldReader is a closest-key view over one field's region of a
// fielded ordered hash.
type fieldReader struct {
	r         *FieldedOrderedHashReader
	region    fieldRegion
	indexData []byte
}

// FieldedOrderedHashReader reads a table written by
// FieldedOrderedHashWriter.
type FieldedOrderedHashReader struct {
	*baseReader
	fieldmap map[string]fieldRegion
}

func OpenFieldedOrderedHashReader(f storage.File, startOff int64) (*FieldedOrderedHashReader, error) {
	b, err := openBaseReader(f, startOff)
	if err != nil {
		return nil, err
	}
	fm, ok := b.extras["fieldmap"].(map[string]fieldRegion)
	if !ok {
		return nil, fmt.Errorf("hashkv: missing fieldmap in extras")
	}
	return &FieldedOrderedHashReader{baseReader: b, fieldmap: fm}, nil
}

// Fields returns the set of field names present in the table.
func (r *FieldedOrderedHashReader) Fields() []string {
	names := make([]string, 0, len(r.fieldmap))
	for name := range r.fieldmap {
		names = append(names, name)
	}
	return names
}

// Field returns a reader scoped to a single field's region, or
// ErrNotFound if the field is absent.
func (r *FieldedOrderedHashReader) Field(fieldname string) (*fieldReader, error) {
	region, ok := r.fieldmap[fieldname]
	if !ok {
		return nil, ErrNotFound
	}
	width := typecodeWidth(region.indexCode)
	buf := make([]byte, width*int(region.indexLen))
	if region.indexLen > 0 {
		if _, err := r.f.ReadAt(buf, int64(region.indexOff)); err != nil {
			return nil, err
		}
	}
	return &fieldReader{r: r, region: region, indexData: buf}, nil
}

func (fr *fieldReader) Len() int { return int(fr.region.indexLen) }

func (fr *fieldReader) keyAt(i int) ([]byte, error) {
	rel := unpackIndexAt(fr.indexData, fr.region.indexCode, i)
	k, _, err := fr.r.readRecord(int64(fr.region.start) + rel)
	return k, err
}

func (fr *fieldReader) closestIndex(k []byte) (int, error) {
	n := int(fr.region.indexLen)
	lo, hi := 0, n
	var searchErr error
	for lo < hi {
		mid := (lo + hi) / 2
		ki, err := fr.keyAt(mid)
		if err != nil {
			searchErr = err
			break
		}
		if bytes.Compare(ki, k) >= 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if searchErr != nil {
		return 0, searchErr
	}
	return lo, nil
}

// ClosestKey returns the smallest key >= k within the field, or
// ErrNotFound.
func (fr *fieldReader) ClosestKey(k []byte) ([]byte, error) {
	i, err := fr.closestIndex(k)
	if err != nil {
		return nil, err
	}
	if i >= fr.Len() {
		return nil, ErrNotFound
	}
	return fr.keyAt(i)
}

// Get returns the value stored under key within the field, or
// ErrNotFound.
func (fr *fieldReader) Get(key []byte) ([]byte, error) {
	i, err := fr.closestIndex(key)
	if err != nil {
		return nil, err
	}
	if i >= fr.Len() {
		return nil, ErrNotFound
	}
	k, err := fr.keyAt(i)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(k, key) {
		return nil, ErrNotFound
	}
	rel := unpackIndexAt(fr.indexData, fr.region.indexCode, i)
	_, v, err := fr.r.readRecord(int64(fr.region.start) + rel)
	return v, err
}

// KeysFrom returns every key >= k within the field in ascending order.
func (fr *fieldReader) KeysFrom(k []byte) ([][]byte, error) {
	i, err := fr.closestIndex(k)
	if err != nil {
		return nil, err
	}
	var keys [][]byte
	for ; i < fr.Len(); i++ {
		key, err := fr.keyAt(i)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
