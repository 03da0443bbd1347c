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
	"fmt"

	"github.com/fathom-index/fathom/pkg/hashkv"
	"github.com/fathom-index/fathom/pkg/storage"
)

// PerDocWriter drives the start_doc/add_field/add_vector_items/
// finish_doc contract: for each document, in ascending docnum order,
// zero or more fields each contribute a length (always) and a stored
// value and/or a term vector (optionally). Column entries are written as
// each field is added; finish_doc writes the document's stored-field blob.
type PerDocWriter struct {
	codec Codec
	seg   *Segment

	storedFile storage.File
	stored     *hashkv.OrderedHashWriter

	vecFile storage.File
	vw      *vectorWriter

	columns    map[string]*columnEntry
	fieldOrder []string // insertion order, for deterministic Close iteration

	curDoc    uint32
	haveDoc   bool
	docOpen   bool
	curExtras hashkv.Extras
	haveExtra bool
}

// columnEntry bundles the open column writer for one field together
// with the file it lives in, so Close can finalize both.
type columnEntry struct {
	file storage.File
	w    *fieldColumnWriter
}

func newPerDocWriter(c Codec, seg *Segment) (*PerDocWriter, error) {
	storedFile, err := seg.Dir.Create(seg.StoredFile())
	if err != nil {
		return nil, err
	}
	stored, err := hashkv.NewOrderedHashWriter(storedFile, hashkv.HashType(c.HashType))
	if err != nil {
		return nil, err
	}
	vecFile, err := seg.Dir.Create(seg.VectorsFile())
	if err != nil {
		return nil, err
	}
	vw, err := newVectorWriter(vecFile)
	if err != nil {
		return nil, err
	}
	return &PerDocWriter{
		codec:      c,
		seg:        seg,
		storedFile: storedFile,
		stored:     stored,
		vecFile:    vecFile,
		vw:         vw,
		columns:    make(map[string]*columnEntry),
	}, nil
}

func (w *PerDocWriter) columnFor(field string) (*columnEntry, error) {
	if err := validateFieldName(field); err != nil {
		return nil, err
	}
	if ce, ok := w.columns[field]; ok {
		return ce, nil
	}
	f, err := w.seg.Dir.Create(w.seg.FieldColumnFile(field))
	if err != nil {
		return nil, err
	}
	cw, err := newFieldColumnWriter(f, hashkv.HashType(w.codec.HashType))
	if err != nil {
		return nil, err
	}
	ce := &columnEntry{file: f, w: cw}
	w.columns[field] = ce
	w.fieldOrder = append(w.fieldOrder, field)
	return ce, nil
}

// StartDoc begins a new document. docnum must be strictly greater
// than the previous call's.
func (w *PerDocWriter) StartDoc(docnum uint32) error {
	if w.docOpen {
		return fmt.Errorf("%w: StartDoc called before the previous document's FinishDoc", ErrOrderViolation)
	}
	if w.haveDoc && docnum <= w.curDoc {
		return fmt.Errorf("%w: docnum %d arrived after %d", ErrOrderViolation, docnum, w.curDoc)
	}
	w.curDoc = docnum
	w.haveDoc = true
	w.docOpen = true
	w.curExtras = nil
	w.haveExtra = false
	return nil
}

// AddField records field's length for the current document, and, if
// storedValue is non-nil, includes it in the document's stored blob
// under field's name.
func (w *PerDocWriter) AddField(field string, length int, storedValue []byte) error {
	if !w.docOpen {
		return fmt.Errorf("%w: AddField called without an open document", ErrOrderViolation)
	}
	ce, err := w.columnFor(field)
	if err != nil {
		return err
	}
	if err := ce.w.AddLength(w.curDoc, length); err != nil {
		return err
	}
	w.seg.FieldLengths[field] += uint64(length)
	if storedValue != nil {
		w.curExtras = w.curExtras.SetBytes(field, storedValue)
		w.haveExtra = true
	}
	return nil
}

// AddVectorItems records field's term vector for the current
// document.
func (w *PerDocWriter) AddVectorItems(field string, items []VectorItem) error {
	if !w.docOpen {
		return fmt.Errorf("%w: AddVectorItems called without an open document", ErrOrderViolation)
	}
	ce, err := w.columnFor(field)
	if err != nil {
		return err
	}
	ext, err := w.vw.Write(items)
	if err != nil {
		return err
	}
	return ce.w.AddVector(w.curDoc, ext, len(items))
}

// FinishDoc closes out the current document, flushing its stored
// blob if any field was marked stored.
func (w *PerDocWriter) FinishDoc() error {
	if !w.docOpen {
		return fmt.Errorf("%w: FinishDoc called without an open document", ErrOrderViolation)
	}
	w.docOpen = false
	if !w.haveExtra {
		return nil
	}
	blob, err := hashkv.EncodeExtras(w.curExtras)
	if err != nil {
		return err
	}
	return w.stored.Add(docKey(w.curDoc), blob)
}

// Close finalizes every per-field column, the vector posting file,
// and the stored-field table.
func (w *PerDocWriter) Close() error {
	if w.docOpen {
		return fmt.Errorf("%w: Close called with a document still open", ErrOrderViolation)
	}
	for _, field := range w.fieldOrder {
		ce := w.columns[field]
		if err := ce.w.Close(); err != nil {
			return err
		}
		if err := ce.file.Close(); err != nil {
			return err
		}
	}
	if err := w.vecFile.Flush(); err != nil {
		return err
	}
	if err := w.vecFile.Close(); err != nil {
		return err
	}
	if _, err := w.stored.Close(); err != nil {
		return err
	}
	return w.storedFile.Close()
}

// PerDocReader reads back the stored-field blob, field lengths, and
// term vectors written by PerDocWriter.
type PerDocReader struct {
	seg *Segment

	storedFile storage.File
	stored     *hashkv.OrderedHashReader

	vecFile storage.File
	vr      *vectorReader

	columns map[string]*fieldColumnReader
}

func newPerDocReader(seg *Segment) (*PerDocReader, error) {
	storedFile, err := seg.Dir.Open(seg.StoredFile())
	if err != nil {
		return nil, err
	}
	stored, err := hashkv.OpenOrderedHashReader(storedFile, 0)
	if err != nil {
		return nil, err
	}
	vecFile, err := seg.Dir.Open(seg.VectorsFile())
	if err != nil {
		return nil, err
	}
	return &PerDocReader{
		seg:        seg,
		storedFile: storedFile,
		stored:     stored,
		vecFile:    vecFile,
		vr:         newVectorReader(vecFile),
		columns:    make(map[string]*fieldColumnReader),
	}, nil
}

// Stored returns docnum's stored-field blob, or ErrNotFound if the
// document stored no fields.
func (r *PerDocReader) Stored(docnum uint32) (hashkv.Extras, error) {
	v, err := r.stored.Get(docKey(docnum))
	if err != nil {
		return nil, mapHashErr(err)
	}
	return hashkv.DecodeExtras(v)
}

func (r *PerDocReader) columnFor(field string) (*fieldColumnReader, error) {
	if cr, ok := r.columns[field]; ok {
		return cr, nil
	}
	f, err := r.seg.Dir.Open(r.seg.FieldColumnFile(field))
	if err != nil {
		return nil, err
	}
	cr, err := openFieldColumnReader(f)
	if err != nil {
		return nil, err
	}
	r.columns[field] = cr
	return cr, nil
}

// Length returns docnum's recorded length for field, or ErrNotFound.
func (r *PerDocReader) Length(field string, docnum uint32) (int, error) {
	cr, err := r.columnFor(field)
	if err != nil {
		return 0, err
	}
	return cr.Length(docnum)
}

// Vector returns docnum's term vector for field, or ErrNotFound if
// none was recorded.
func (r *PerDocReader) Vector(field string, docnum uint32) ([]VectorItem, error) {
	cr, err := r.columnFor(field)
	if err != nil {
		return nil, err
	}
	ext, _, err := cr.Vector(docnum)
	if err != nil {
		return nil, err
	}
	return r.vr.Read(ext)
}

// Close releases every open column, the stored table, and the vector
// posting file.
func (r *PerDocReader) Close() error {
	for _, cr := range r.columns {
		if err := cr.Close(); err != nil {
			return err
		}
	}
	if err := r.vecFile.Close(); err != nil {
		return err
	}
	return r.storedFile.Close()
}
