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
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/fathom-index/fathom/pkg/storage"
)

// ErrOutOfOrder is returned by an ordered writer's Add when key does not
// strictly follow the previously added key.
var ErrOutOfOrder = errors.New("hashkv: keys must be added in strictly increasing order")

const (
	codeB byte = 'B' // uint8
	codeH byte = 'H' // uint16
	codeI byte = 'I' // uint32
	codeQ byte = 'Q' // uint64
)

// typecodeFor returns the smallest of B/H/I/Q that can represent max.
func typecodeFor(max uint64) byte {
	switch {
	case max <= 0xFF:
		return codeB
	case max <= 0xFFFF:
		return codeH
	case max <= 0xFFFFFFFF:
		return codeI
	default:
		return codeQ
	}
}

func typecodeWidth(code byte) int {
	switch code {
	case codeB:
		return 1
	case codeH:
		return 2
	case codeI:
		return 4
	default:
		return 8
	}
}

// packIndex encodes offsets (relative to some field's start) using the
// smallest-fitting typecode.
func packIndex(offsets []int64) (byte, []byte) {
	var max int64
	for _, o := range offsets {
		if o > max {
			max = o
		}
	}
	code := typecodeFor(uint64(max))
	width := typecodeWidth(code)
	buf := make([]byte, width*len(offsets))
	for i, o := range offsets {
		switch code {
		case codeB:
			buf[i] = byte(o)
		case codeH:
			binary.BigEndian.PutUint16(buf[i*2:], uint16(o))
		case codeI:
			binary.BigEndian.PutUint32(buf[i*4:], uint32(o))
		case codeQ:
			binary.BigEndian.PutUint64(buf[i*8:], uint64(o))
		}
	}
	return code, buf
}

func unpackIndexAt(buf []byte, code byte, i int) int64 {
	width := typecodeWidth(code)
	off := i * width
	switch code {
	case codeB:
		return int64(buf[off])
	case codeH:
		return int64(binary.BigEndian.Uint16(buf[off:]))
	case codeI:
		return int64(binary.BigEndian.Uint32(buf[off:]))
	default:
		return int64(binary.BigEndian.Uint64(buf[off:]))
	}
}

// OrderedHashWriter extends HashWriter with the requirement that keys be
// added in strictly increasing order, and maintains a position index
// enabling closest-key binary search at read time.
type OrderedHashWriter struct {
	*baseWriter
	lastKey []byte
	haveKey bool
	index   []int64
}

func NewOrderedHashWriter(f storage.File, hashtype HashType) (*OrderedHashWriter, error) {
	b, err := newBaseWriter(f, hashtype)
	if err != nil {
		return nil, err
	}
	return &OrderedHashWriter{baseWriter: b}, nil
}

func (w *OrderedHashWriter) Add(key, value []byte) error {
	if w.haveKey && bytes.Compare(key, w.lastKey) <= 0 {
		return ErrOutOfOrder
	}
	pos, err := w.add(key, value)
	if err != nil {
		return err
	}
	w.index = append(w.index, pos)
	w.lastKey = append(w.lastKey[:0], key...)
	w.haveKey = true
	return nil
}

// Close writes the position index into extras and finalizes the file.
func (w *OrderedHashWriter) Close() (int64, error) {
	code, packed := packIndex(w.index)
	w.extras["index_typecode"] = uint64(code)
	w.extras["index_len"] = uint64(len(w.index))
	w.extras["index_data"] = packed
	return w.finish()
}

// OrderedHashReader reads a table written by OrderedHashWriter, adding
// binary-searchable closest_key/keys_from/items_from over the position
// index.
type OrderedHashReader struct {
	*baseReader
	indexCode byte
	indexData []byte
	indexLen  int
}

func OpenOrderedHashReader(f storage.File, startOff int64) (*OrderedHashReader, error) {
	b, err := openBaseReader(f, startOff)
	if err != nil {
		return nil, err
	}
	code, ok := b.extras["index_typecode"].(uint64)
	if !ok {
		return nil, fmt.Errorf("hashkv: missing index_typecode in extras")
	}
	n, ok := b.extras["index_len"].(uint64)
	if !ok {
		return nil, fmt.Errorf("hashkv: missing index_len in extras")
	}
	data, ok := b.extras["index_data"].([]byte)
	if !ok {
		return nil, fmt.Errorf("hashkv: missing index_data in extras")
	}
	return &OrderedHashReader{baseReader: b, indexCode: byte(code), indexData: data, indexLen: int(n)}, nil
}

func (r *OrderedHashReader) keyAt(i int) ([]byte, error) {
	pos := unpackIndexAt(r.indexData, r.indexCode, i)
	k, _, err := r.readRecord(pos)
	return k, err
}

// closestIndex returns the index of the smallest key >= k, or
// r.indexLen if every stored key is smaller than k.
func (r *OrderedHashReader) closestIndex(k []byte) (int, error) {
	var searchErr error
	i := sort.Search(r.indexLen, func(i int) bool {
		ki, err := r.keyAt(i)
		if err != nil {
			searchErr = err
			return true
		}
		return bytes.Compare(ki, k) >= 0
	})
	if searchErr != nil {
		return 0, searchErr
	}
	return i, nil
}

// ClosestKey returns the smallest key >= k, or ErrNotFound if none.
func (r *OrderedHashReader) ClosestKey(k []byte) ([]byte, error) {
	i, err := r.closestIndex(k)
	if err != nil {
		return nil, err
	}
	if i >= r.indexLen {
		return nil, ErrNotFound
	}
	return r.keyAt(i)
}

// Get returns the value stored under the exact key, or ErrNotFound.
func (r *OrderedHashReader) Get(key []byte) ([]byte, error) {
	i, err := r.closestIndex(key)
	if err != nil {
		return nil, err
	}
	if i >= r.indexLen {
		return nil, ErrNotFound
	}
	pos := unpackIndexAt(r.indexData, r.indexCode, i)
	k, v, err := r.readRecord(pos)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(k, key) {
		return nil, ErrNotFound
	}
	return v, nil
}

// ClosestKeyPos is like ClosestKey but also returns the record's file
// offset, useful for callers that want the value without a second pass.
func (r *OrderedHashReader) ClosestKeyPos(k []byte) ([]byte, int64, error) {
	i, err := r.closestIndex(k)
	if err != nil {
		return nil, 0, err
	}
	if i >= r.indexLen {
		return nil, 0, ErrNotFound
	}
	pos := unpackIndexAt(r.indexData, r.indexCode, i)
	key, _, err := r.readRecord(pos)
	return key, pos, err
}

// KeysFrom returns every key >= k in ascending order.
func (r *OrderedHashReader) KeysFrom(k []byte) ([][]byte, error) {
	i, err := r.closestIndex(k)
	if err != nil {
		return nil, err
	}
	var keys [][]byte
	for ; i < r.indexLen; i++ {
		key, err := r.keyAt(i)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ItemsFrom returns every (key, value) pair with key >= k in ascending order.
func (r *OrderedHashReader) ItemsFrom(k []byte) ([][2][]byte, error) {
	i, err := r.closestIndex(k)
	if err != nil {
		return nil, err
	}
	var items [][2][]byte
	for ; i < r.indexLen; i++ {
		pos := unpackIndexAt(r.indexData, r.indexCode, i)
		key, val, err := r.readRecord(pos)
		if err != nil {
			return nil, err
		}
		items = append(items, [2][]byte{key, val})
	}
	return items, nil
}

// Len returns the number of keys stored.
func (r *OrderedHashReader) Len() int { return r.indexLen }
