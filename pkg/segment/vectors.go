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

	"github.com/fathom-index/fathom/pkg/postings"
	"github.com/fathom-index/fathom/pkg/storage"
)

// vectorsMagic identifies a segment's vector posting file. The magic
// occupies offset 0, so no run ever starts there, and
// a field column's "vec" entry can use the zero Extent as "no
// term-vector recorded for this document" without a separate presence
// bit.
const vectorsMagic = "VPST"

// VectorItem is one (term, weight) pair contributed by a document to a
// field's stored term vector, consumed in ascending term order the
// same way a field writer's postings are.
type VectorItem struct {
	Term   []byte
	Weight float32
}

// vectorWriter appends one document's term vector, for one field, as a
// posting run keyed by an incrementing synthetic id (the vector's
// position within the sorted term list) rather than a document id —
// a term vector has no doc-id axis of its own, it already belongs to
// exactly one document.
type vectorWriter struct {
	f   storage.File
	vf  postings.ValueFormat
}

func newVectorWriter(f storage.File) (*vectorWriter, error) {
	off, err := f.Len()
	if err != nil {
		return nil, err
	}
	if off == 0 {
		if _, err := f.Append([]byte(vectorsMagic)); err != nil {
			return nil, err
		}
	}
	return &vectorWriter{f: f, vf: postings.ValueFormat{Variable: true}}, nil
}

// Write appends items as a posting run and returns the Extent it was
// written at, or a zero Extent if items is empty (nothing is written;
// the column records the zero Extent as "no term vector").
func (vw *vectorWriter) Write(items []VectorItem) (postings.Extent, error) {
	if len(items) == 0 {
		return postings.Extent{}, nil
	}
	w, err := postings.NewWriter(vw.f, vw.vf)
	if err != nil {
		return postings.Extent{}, err
	}
	for i, it := range items {
		if err := w.Add(postings.Posting{ID: uint32(i), Weight: it.Weight, Value: it.Term}); err != nil {
			return postings.Extent{}, fmt.Errorf("segment: writing vector item %d: %w", i, err)
		}
	}
	// inlineLimit 0 forces every non-empty vector through the block
	// path, so Extent is always populated here.
	if err := w.Finish(0); err != nil {
		return postings.Extent{}, err
	}
	return w.Extent, nil
}

// vectorReader reads back a document's term vector for a field.
type vectorReader struct {
	f  storage.File
	vf postings.ValueFormat
}

func newVectorReader(f storage.File) *vectorReader {
	return &vectorReader{f: f, vf: postings.ValueFormat{Variable: true}}
}

// Read decodes every VectorItem stored at ext, in the order Write
// received them (ascending synthetic id, which is also the order the
// caller originally sorted the vector's terms in).
func (vr *vectorReader) Read(ext postings.Extent) ([]VectorItem, error) {
	if ext.Length == 0 {
		return nil, nil
	}
	r, err := postings.NewReader(vr.f, ext, vr.vf)
	if err != nil {
		return nil, err
	}
	var items []VectorItem
	for {
		p, ok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		items = append(items, VectorItem{Term: p.Value, Weight: p.Weight})
	}
	return items, nil
}
