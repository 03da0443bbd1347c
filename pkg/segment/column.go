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

package segment

import (
	"encoding/binary"

	"github.com/fathom-index/fathom/pkg/hashkv"
	"github.com/fathom-index/fathom/pkg/postings"
	"github.com/fathom-index/fathom/pkg/storage"
)

// columnHeaderSize reserves room, at the front of a "<segid>.<field>.col"
// file, for the three start offsets a fieldColumnReader needs to open
// the length, vector-extent, and vector-term-count tables it holds —
// one ordered hash each, all three sharing the same file, the way
// baseWriter already reserves a header slot for its own trailer offset.
const columnHeaderSize = 8 * 3

// docKey renders a document number as the big-endian uint32 key every
// per-field column orders its entries by.
func docKey(docnum uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], docnum)
	return b[:]
}

// fieldColumnWriter writes one schema field's per-document length,
// term-vector extent, and term-vector length columns. A document's
// absence as a key in a given table already means "no value recorded"
// for that document and column, so no separate presence bitmap is
// needed alongside it.
type fieldColumnWriter struct {
	f storage.File

	lenStart, vecStart, vecLStart int64
	lenW, vecW, vecLW             *hashkv.OrderedHashWriter
}

func newFieldColumnWriter(f storage.File, hashtype hashkv.HashType) (*fieldColumnWriter, error) {
	if _, err := f.Append(make([]byte, columnHeaderSize)); err != nil {
		return nil, err
	}
	lenStart, err := f.Len()
	if err != nil {
		return nil, err
	}
	lenW, err := hashkv.NewOrderedHashWriter(f, hashtype)
	if err != nil {
		return nil, err
	}
	vecStart, err := f.Len()
	if err != nil {
		return nil, err
	}
	vecW, err := hashkv.NewOrderedHashWriter(f, hashtype)
	if err != nil {
		return nil, err
	}
	vecLStart, err := f.Len()
	if err != nil {
		return nil, err
	}
	vecLW, err := hashkv.NewOrderedHashWriter(f, hashtype)
	if err != nil {
		return nil, err
	}
	return &fieldColumnWriter{
		f:         f,
		lenStart:  lenStart,
		vecStart:  vecStart,
		vecLStart: vecLStart,
		lenW:      lenW,
		vecW:      vecW,
		vecLW:     vecLW,
	}, nil
}

// AddLength records docnum's field length.
func (c *fieldColumnWriter) AddLength(docnum uint32, length int) error {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(length))
	return c.lenW.Add(docKey(docnum), tmp[:n])
}

// AddVector records docnum's term-vector location in the vector
// posting file and the number of terms it holds.
func (c *fieldColumnWriter) AddVector(docnum uint32, ext postings.Extent, termCount int) error {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(ext.Offset))
	buf := append([]byte(nil), tmp[:n]...)
	n = binary.PutUvarint(tmp[:], uint64(ext.Length))
	buf = append(buf, tmp[:n]...)
	if err := c.vecW.Add(docKey(docnum), buf); err != nil {
		return err
	}
	n = binary.PutUvarint(tmp[:], uint64(termCount))
	return c.vecLW.Add(docKey(docnum), tmp[:n])
}

// Close finalizes all three tables and patches the file's leading
// header with their start offsets.
func (c *fieldColumnWriter) Close() error {
	if _, err := c.lenW.Close(); err != nil {
		return err
	}
	if _, err := c.vecW.Close(); err != nil {
		return err
	}
	if _, err := c.vecLW.Close(); err != nil {
		return err
	}
	var hdr [columnHeaderSize]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(c.lenStart))
	binary.BigEndian.PutUint64(hdr[8:16], uint64(c.vecStart))
	binary.BigEndian.PutUint64(hdr[16:24], uint64(c.vecLStart))
	_, err := c.f.WriteAt(hdr[:], 0)
	return err
}

// fieldColumnReader reads back the three tables fieldColumnWriter
// wrote.
type fieldColumnReader struct {
	f           storage.File
	lenR, vecR, vecLR *hashkv.OrderedHashReader
}

func openFieldColumnReader(f storage.File) (*fieldColumnReader, error) {
	hdr := make([]byte, columnHeaderSize)
	if _, err := f.ReadAt(hdr, 0); err != nil {
		return nil, err
	}
	lenStart := int64(binary.BigEndian.Uint64(hdr[0:8]))
	vecStart := int64(binary.BigEndian.Uint64(hdr[8:16]))
	vecLStart := int64(binary.BigEndian.Uint64(hdr[16:24]))

	lenR, err := hashkv.OpenOrderedHashReader(f, lenStart)
	if err != nil {
		return nil, err
	}
	vecR, err := hashkv.OpenOrderedHashReader(f, vecStart)
	if err != nil {
		return nil, err
	}
	vecLR, err := hashkv.OpenOrderedHashReader(f, vecLStart)
	if err != nil {
		return nil, err
	}
	return &fieldColumnReader{f: f, lenR: lenR, vecR: vecR, vecLR: vecLR}, nil
}

// Length returns docnum's recorded field length, or ErrNotFound if
// the document has no value in this field.
func (c *fieldColumnReader) Length(docnum uint32) (int, error) {
	raw, err := c.lenR.Get(docKey(docnum))
	if err != nil {
		return 0, mapHashErr(err)
	}
	n, _ := binary.Uvarint(raw)
	return int(n), nil
}

// Vector returns docnum's term-vector extent and term count, or
// ErrNotFound if no vector was recorded.
func (c *fieldColumnReader) Vector(docnum uint32) (postings.Extent, int, error) {
	raw, err := c.vecR.Get(docKey(docnum))
	if err != nil {
		return postings.Extent{}, 0, mapHashErr(err)
	}
	off, n := binary.Uvarint(raw)
	length, _ := binary.Uvarint(raw[n:])
	countRaw, err := c.vecLR.Get(docKey(docnum))
	if err != nil {
		return postings.Extent{}, 0, mapHashErr(err)
	}
	count, _ := binary.Uvarint(countRaw)
	return postings.Extent{Offset: int64(off), Length: int64(length)}, int(count), nil
}

func (c *fieldColumnReader) Close() error { return c.f.Close() }
