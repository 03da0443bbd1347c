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
	"bytes"
	"errors"
	"fmt"

	"github.com/fathom-index/fathom/pkg/fsa"
	"github.com/fathom-index/fathom/pkg/fuzzy"
	"github.com/fathom-index/fathom/pkg/hashkv"
	"github.com/fathom-index/fathom/pkg/postings"
	"github.com/fathom-index/fathom/pkg/storage"
	"github.com/fathom-index/fathom/pkg/termidx"
)

// FieldWriter consumes the sorted (field, term, docnum, weight, value)
// stream and builds a segment's term dictionary (<segid>.trm), posting
// file (<segid>.pst), and per-field term DAG (<segid>.dag) together:
// each term's postings are written as they arrive, the term is fed to
// the field's DAG builder, and the moment a term ends (the next entry
// names a different term or field, or Close is called) its TermInfo
// is finalized and stored under the term's key.
type FieldWriter struct {
	codec Codec
	seg   *Segment

	trmFile storage.File
	pstFile storage.File
	trm     *hashkv.FieldedOrderedHashWriter

	dagFile storage.File
	dagW    *fsa.GraphFileWriter
	dag     *fsa.Builder

	fieldOpen bool
	field     string
	term      []byte
	haveTerm  bool

	pw       *postings.Writer
	ti       termidx.TermInfo
	sawDoc   bool // true once a real (non-sentinel) doc has been added for the current term
	lastDoc  int64
	haveDoc  bool

	closed bool
}

func newFieldWriter(c Codec, seg *Segment) (*FieldWriter, error) {
	trmFile, err := seg.Dir.Create(seg.TermsFile())
	if err != nil {
		return nil, err
	}
	pstFile, err := seg.Dir.Create(seg.PostingsFile())
	if err != nil {
		return nil, err
	}
	trm, err := hashkv.NewFieldedOrderedHashWriter(trmFile, hashkv.HashType(c.HashType))
	if err != nil {
		return nil, err
	}
	dagFile, err := seg.Dir.Create(seg.DagFile())
	if err != nil {
		return nil, err
	}
	dagW, err := fsa.NewGraphFileWriter(dagFile)
	if err != nil {
		return nil, err
	}
	return &FieldWriter{codec: c, seg: seg, trmFile: trmFile, pstFile: pstFile, trm: trm, dagFile: dagFile, dagW: dagW}, nil
}

func (w *FieldWriter) valueFormat() postings.ValueFormat {
	return postings.ValueFormat{Variable: true}
}

func (w *FieldWriter) inlineLimit() int {
	if w.codec.InlineLimit > 0 {
		return w.codec.InlineLimit
	}
	return postings.DefaultInlineLimit
}

// Add feeds one (field, term, docnum, weight, value, length) entry.
// docnum may be SpellingOnlyDocNum, in which case term is registered
// in the dictionary without contributing a posting; a spelling-only
// entry for a term must precede any real posting for that same term,
// since -1 sorts before every doc id.
func (w *FieldWriter) Add(field string, term []byte, docnum int64, weight float32, value []byte, length int) error {
	if w.closed {
		return hashkv.ErrClosed
	}
	if err := validateFieldName(field); err != nil {
		return err
	}

	if field != w.field || !w.fieldOpen {
		if w.fieldOpen && field < w.field {
			return fmt.Errorf("%w: field %q arrived after %q", ErrOrderViolation, field, w.field)
		}
		if err := w.endField(); err != nil {
			return err
		}
		if err := w.trm.StartField(field); err != nil {
			return err
		}
		w.field = field
		w.fieldOpen = true
		w.haveTerm = false
		w.dag = fsa.NewBuilder(nil)
	}

	if !w.haveTerm || !bytes.Equal(term, w.term) {
		if w.haveTerm && bytes.Compare(term, w.term) <= 0 {
			return fmt.Errorf("%w: term %q arrived after %q in field %q", ErrOrderViolation, term, w.term, field)
		}
		if err := w.endTerm(); err != nil {
			return err
		}
		if err := w.dag.Insert(term, struct{}{}); err != nil {
			return err
		}
		w.term = append(w.term[:0], term...)
		w.haveTerm = true
		pw, err := postings.NewWriter(w.pstFile, w.valueFormat())
		if err != nil {
			return err
		}
		pw.SetBlockSize(w.codec.BlockLimit)
		pw.SetCompressionThreshold(w.codec.CompressionThreshold)
		w.pw = pw
		w.ti = termidx.NewEmptyTermInfo()
		w.sawDoc = false
		w.haveDoc = false
	}

	if docnum == SpellingOnlyDocNum {
		if w.sawDoc {
			return fmt.Errorf("%w: spelling-only entry for %q arrived after a posting", ErrOrderViolation, term)
		}
		return nil
	}

	if w.haveDoc && docnum <= w.lastDoc {
		return fmt.Errorf("%w: docnum %d arrived after %d for term %q", ErrOrderViolation, docnum, w.lastDoc, term)
	}
	w.lastDoc = docnum
	w.haveDoc = true
	w.sawDoc = true

	if err := w.pw.Add(postings.Posting{ID: uint32(docnum), Weight: weight, Value: value, Length: length}); err != nil {
		return fmt.Errorf("%w: %v", ErrOrderViolation, err)
	}
	w.ti.Widen(uint32(docnum), weight, length)
	return nil
}

// endTerm finalizes the currently open term's postings run and stores
// its TermInfo, if a term is open.
func (w *FieldWriter) endTerm() error {
	if !w.haveTerm {
		return nil
	}
	if err := w.pw.Finish(w.inlineLimit()); err != nil {
		return err
	}
	if w.ti.HasPostings() {
		w.ti.Inlined = w.pw.Inline
		w.ti.Extent = w.pw.Extent
		w.ti.Inline = w.pw.InlinePostings
	} else {
		// Spelling-only term: no postings at all, but the dictionary
		// still needs an entry so fuzzy/wildcard lookups can find it.
		w.ti.Inlined = true
		w.ti.Inline = nil
	}
	if err := w.trm.Add(w.term, w.ti.Encode()); err != nil {
		return err
	}
	w.haveTerm = false
	w.pw = nil
	return nil
}

// endField finalizes the currently open field, if any: the last open
// term, the field's term-dictionary region, and its DAG.
func (w *FieldWriter) endField() error {
	if err := w.endTerm(); err != nil {
		return err
	}
	if !w.fieldOpen {
		return nil
	}
	if err := w.trm.EndField(); err != nil {
		return err
	}
	g, err := w.dag.Finish()
	if err != nil {
		return err
	}
	if err := w.dagW.AddField(w.field, g); err != nil {
		return err
	}
	w.fieldOpen = false
	return nil
}

// Close finalizes the last open term and field, then finishes the term
// dictionary and DAG writers and flushes the posting file.
func (w *FieldWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.endField(); err != nil {
		return err
	}
	if _, err := w.trm.Close(); err != nil {
		return err
	}
	if err := w.dagW.Close(); err != nil {
		return err
	}
	if err := w.pstFile.Flush(); err != nil {
		return err
	}
	return nil
}

// TermsReader provides closest-term lookup over a segment's term
// dictionary and reads back each term's postings.
type TermsReader struct {
	seg     *Segment
	trmFile storage.File
	pstFile storage.File
	trm     *hashkv.FieldedOrderedHashReader

	// DAG state, opened on the first fuzzy lookup.
	dagFile storage.File
	dag     *fsa.GraphFile
	graphs  map[string]*fsa.Graph
}

func newTermsReader(seg *Segment) (*TermsReader, error) {
	trmFile, err := seg.Dir.Open(seg.TermsFile())
	if err != nil {
		return nil, err
	}
	pstFile, err := seg.Dir.Open(seg.PostingsFile())
	if err != nil {
		return nil, err
	}
	trm, err := hashkv.OpenFieldedOrderedHashReader(trmFile, 0)
	if err != nil {
		return nil, err
	}
	return &TermsReader{seg: seg, trmFile: trmFile, pstFile: pstFile, trm: trm}, nil
}

// Fields returns the schema field names present in the dictionary.
func (r *TermsReader) Fields() []string { return r.trm.Fields() }

// TermInfo looks up the exact term within field, or ErrNotFound.
func (r *TermsReader) TermInfo(field string, term []byte) (termidx.TermInfo, error) {
	fr, err := r.trm.Field(field)
	if err != nil {
		if errors.Is(err, hashkv.ErrNotFound) {
			return termidx.TermInfo{}, ErrNotFound
		}
		return termidx.TermInfo{}, err
	}
	v, err := fr.Get(term)
	if err != nil {
		if errors.Is(err, hashkv.ErrNotFound) {
			return termidx.TermInfo{}, ErrNotFound
		}
		return termidx.TermInfo{}, err
	}
	return termidx.Decode(v)
}

// ClosestTerm returns the smallest term >= term within field, or
// ErrNotFound if the field has no term that large.
func (r *TermsReader) ClosestTerm(field string, term []byte) ([]byte, error) {
	fr, err := r.trm.Field(field)
	if err != nil {
		if errors.Is(err, hashkv.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	k, err := fr.ClosestKey(term)
	if err != nil {
		if errors.Is(err, hashkv.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return k, nil
}

// TermsFrom returns every term >= term within field in ascending
// order, for a scan-based fallback or a fuzzy-match dictionary walk.
func (r *TermsReader) TermsFrom(field string, term []byte) ([][]byte, error) {
	fr, err := r.trm.Field(field)
	if err != nil {
		if errors.Is(err, hashkv.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return fr.KeysFrom(term)
}

// dictGraph materializes field's term DAG, opening the segment's DAG
// file on first use and caching per-field graphs across calls.
func (r *TermsReader) dictGraph(field string) (*fsa.Graph, error) {
	if g, ok := r.graphs[field]; ok {
		return g, nil
	}
	if r.dag == nil {
		f, err := r.seg.Dir.Open(r.seg.DagFile())
		if err != nil {
			return nil, err
		}
		gf, err := fsa.OpenGraphFile(f, nil)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %v", ErrFormatError, err)
		}
		r.dagFile = f
		r.dag = gf
	}
	if _, ok := r.dag.Root(field); !ok {
		return nil, ErrNotFound
	}
	g, err := r.dag.Graph(field)
	if err != nil {
		return nil, err
	}
	if r.graphs == nil {
		r.graphs = make(map[string]*fsa.Graph)
	}
	r.graphs[field] = g
	return g, nil
}

// FuzzyTerms returns, in ascending order, every term in field within
// maxDist edits of term, walking a Levenshtein automaton in lockstep
// with the field's term DAG. prefixLen locks that many leading bytes
// to exact matches.
func (r *TermsReader) FuzzyTerms(field string, term []byte, maxDist, prefixLen int) ([][]byte, error) {
	g, err := r.dictGraph(field)
	if err != nil {
		return nil, err
	}
	dfa := fuzzy.LevenshteinAutomaton(term, maxDist, prefixLen)
	return fuzzy.FindAllMatches(dfa, g)
}

// PostingsReader opens a reader over ti's postings. It is an error to
// call this on an inlined TermInfo (ti.Inlined), whether or not it
// holds postings; read an inlined term's postings with
// postings.DecodeInline instead.
func (r *TermsReader) PostingsReader(ti termidx.TermInfo, vf postings.ValueFormat) (*postings.Reader, error) {
	if ti.Inlined {
		return nil, fmt.Errorf("segment: term is inlined; decode via postings.DecodeInline instead of opening a Reader")
	}
	return postings.NewReader(r.pstFile, ti.Extent, vf)
}

// Close releases the dictionary, DAG, and posting file handles.
func (r *TermsReader) Close() error {
	if r.dagFile != nil {
		if err := r.dagFile.Close(); err != nil {
			return err
		}
	}
	if err := r.trmFile.Close(); err != nil {
		return err
	}
	return r.pstFile.Close()
}
