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
	"testing"

	"github.com/fathom-index/fathom/pkg/postings"
	"github.com/fathom-index/fathom/pkg/storage"
)

func mustFieldWriter(t *testing.T, c Codec, seg *Segment) *FieldWriter {
	t.Helper()
	fw, err := c.FieldWriter(seg)
	if err != nil {
		t.Fatal(err)
	}
	return fw
}

func TestFieldWriterReadBack(t *testing.T) {
	dir := storage.NewMemDir()
	seg := NewSegment(dir, "seg0")
	c := Codec{BlockLimit: 3, InlineLimit: 1}
	fw := mustFieldWriter(t, c, seg)

	// Enough postings for "body"/"cat" to spill into real blocks.
	catDocs := []int64{1, 2, 3, 50, 51, 52, 100, 101, 102}
	for _, d := range catDocs {
		if err := fw.Add("body", []byte("cat"), d, 2.0, nil, 4); err != nil {
			t.Fatal(err)
		}
	}
	if err := fw.Add("body", []byte("dog"), 9, 1.0, []byte("v"), 2); err != nil {
		t.Fatal(err)
	}
	if err := fw.Add("title", []byte("cat"), 5, 1.0, nil, 1); err != nil {
		t.Fatal(err)
	}
	if err := fw.Close(); err != nil {
		t.Fatal(err)
	}

	tr, err := c.TermsReader(seg)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	ti, err := tr.TermInfo("body", []byte("cat"))
	if err != nil {
		t.Fatal(err)
	}
	if ti.Inlined {
		t.Fatal("expected a block run for body/cat, got inline postings")
	}
	if ti.DocFreq != uint32(len(catDocs)) {
		t.Errorf("DocFreq = %d; want %d", ti.DocFreq, len(catDocs))
	}
	if ti.MinID != 1 || ti.MaxID != 102 {
		t.Errorf("id range = [%d, %d]; want [1, 102]", ti.MinID, ti.MaxID)
	}
	if ti.MaxWeight != 2.0 {
		t.Errorf("MaxWeight = %v; want 2", ti.MaxWeight)
	}

	r, err := tr.PostingsReader(ti, postings.ValueFormat{Variable: true})
	if err != nil {
		t.Fatal(err)
	}
	var got []int64
	for {
		p, ok, err := r.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		got = append(got, int64(p.ID))
	}
	if len(got) != len(catDocs) {
		t.Fatalf("got %d postings; want %d", len(got), len(catDocs))
	}
	for i, d := range catDocs {
		if got[i] != d {
			t.Errorf("postings[%d] = %d; want %d", i, got[i], d)
		}
	}

	// skip_to lands on the exact target when present.
	r2, err := tr.PostingsReader(ti, postings.ValueFormat{Variable: true})
	if err != nil {
		t.Fatal(err)
	}
	p, ok, err := r2.SkipTo(50)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || p.ID != 50 {
		t.Errorf("SkipTo(50) = (%d, %v); want (50, true)", p.ID, ok)
	}

	// The second field is a separate region with its own ordering.
	if _, err := tr.TermInfo("title", []byte("cat")); err != nil {
		t.Errorf("title/cat: %v", err)
	}
	if _, err := tr.TermInfo("title", []byte("dog")); !errors.Is(err, ErrNotFound) {
		t.Errorf("title/dog: err = %v; want ErrNotFound", err)
	}

	k, err := tr.ClosestTerm("body", []byte("cb"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(k, []byte("dog")) {
		t.Errorf("ClosestTerm(body, cb) = %q; want dog", k)
	}
}

func TestInlinedTermWritesNoBlocks(t *testing.T) {
	dir := storage.NewMemDir()
	seg := NewSegment(dir, "seg0")
	c := Codec{InlineLimit: 1}
	fw := mustFieldWriter(t, c, seg)

	if err := fw.Add("body", []byte("only"), 7, 1.0, []byte{}, 3); err != nil {
		t.Fatal(err)
	}
	if err := fw.Close(); err != nil {
		t.Fatal(err)
	}

	// A fully inlined term must leave the posting file untouched: no
	// run magic, no block framing.
	pst, err := dir.Open(seg.PostingsFile())
	if err != nil {
		t.Fatal(err)
	}
	n, err := pst.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("posting file has %d bytes; want 0", n)
	}

	tr, err := c.TermsReader(seg)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	ti, err := tr.TermInfo("body", []byte("only"))
	if err != nil {
		t.Fatal(err)
	}
	if !ti.Inlined {
		t.Fatal("expected inline postings")
	}
	ids, weights, values, err := postings.DecodeInline(ti.Inline, postings.ValueFormat{Variable: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != 7 {
		t.Errorf("ids = %v; want [7]", ids)
	}
	if len(weights) != 1 || weights[0] != 1.0 {
		t.Errorf("weights = %v; want [1]", weights)
	}
	if len(values) != 1 || len(values[0]) != 0 {
		t.Errorf("values = %v; want one empty value", values)
	}
}

func TestFieldWriterRejectsOutOfOrder(t *testing.T) {
	t.Run("terms", func(t *testing.T) {
		dir := storage.NewMemDir()
		fw := mustFieldWriter(t, Codec{}, NewSegment(dir, "seg0"))
		if err := fw.Add("a", []byte("z"), 1, 1.0, nil, 1); err != nil {
			t.Fatal(err)
		}
		if err := fw.Add("a", []byte("a"), 2, 1.0, nil, 1); !errors.Is(err, ErrOrderViolation) {
			t.Errorf("err = %v; want ErrOrderViolation", err)
		}
	})
	t.Run("docnums", func(t *testing.T) {
		dir := storage.NewMemDir()
		fw := mustFieldWriter(t, Codec{}, NewSegment(dir, "seg0"))
		if err := fw.Add("a", []byte("t"), 9, 1.0, nil, 1); err != nil {
			t.Fatal(err)
		}
		if err := fw.Add("a", []byte("t"), 3, 1.0, nil, 1); !errors.Is(err, ErrOrderViolation) {
			t.Errorf("err = %v; want ErrOrderViolation", err)
		}
	})
	t.Run("fields", func(t *testing.T) {
		dir := storage.NewMemDir()
		fw := mustFieldWriter(t, Codec{}, NewSegment(dir, "seg0"))
		if err := fw.Add("b", []byte("t"), 1, 1.0, nil, 1); err != nil {
			t.Fatal(err)
		}
		if err := fw.Add("a", []byte("t"), 1, 1.0, nil, 1); !errors.Is(err, ErrOrderViolation) {
			t.Errorf("err = %v; want ErrOrderViolation", err)
		}
	})
}

func TestSpellingOnlyTerm(t *testing.T) {
	dir := storage.NewMemDir()
	seg := NewSegment(dir, "seg0")
	c := Codec{}
	fw := mustFieldWriter(t, c, seg)

	if err := fw.Add("body", []byte("ghost"), SpellingOnlyDocNum, 0, nil, 0); err != nil {
		t.Fatal(err)
	}
	if err := fw.Add("body", []byte("real"), 4, 1.0, nil, 2); err != nil {
		t.Fatal(err)
	}
	if err := fw.Close(); err != nil {
		t.Fatal(err)
	}

	tr, err := c.TermsReader(seg)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	// The spelling-only term is findable in the dictionary but carries
	// no postings.
	ti, err := tr.TermInfo("body", []byte("ghost"))
	if err != nil {
		t.Fatal(err)
	}
	if ti.HasPostings() {
		t.Errorf("spelling-only term has postings: df=%d ids=[%d,%d]", ti.DocFreq, ti.MinID, ti.MaxID)
	}
	terms, err := tr.TermsFrom("body", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(terms) != 2 || !bytes.Equal(terms[0], []byte("ghost")) || !bytes.Equal(terms[1], []byte("real")) {
		t.Errorf("terms = %q; want [ghost real]", terms)
	}
}

func TestFuzzyTerms(t *testing.T) {
	dir := storage.NewMemDir()
	seg := NewSegment(dir, "seg0")
	c := Codec{}
	fw := mustFieldWriter(t, c, seg)

	for i, term := range []string{"car", "cart", "cat", "dog"} {
		if err := fw.Add("body", []byte(term), int64(i+1), 1.0, nil, 1); err != nil {
			t.Fatal(err)
		}
	}
	if err := fw.Close(); err != nil {
		t.Fatal(err)
	}

	tr, err := c.TermsReader(seg)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	got, err := tr.FuzzyTerms("body", []byte("cat"), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"car", "cart", "cat"}
	if len(got) != len(want) {
		t.Fatalf("FuzzyTerms = %q; want %q", got, want)
	}
	for i := range want {
		if string(got[i]) != want[i] {
			t.Errorf("FuzzyTerms[%d] = %q; want %q", i, got[i], want[i])
		}
	}

	if _, err := tr.FuzzyTerms("missing", []byte("cat"), 1, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("FuzzyTerms(missing field) err = %v; want ErrNotFound", err)
	}
}

func TestPerDocWriterReader(t *testing.T) {
	dir := storage.NewMemDir()
	seg := NewSegment(dir, "seg0")
	c := Codec{}
	w, err := c.PerDocumentWriter(seg)
	if err != nil {
		t.Fatal(err)
	}

	if err := w.StartDoc(0); err != nil {
		t.Fatal(err)
	}
	if err := w.AddField("title", 3, []byte("A Title")); err != nil {
		t.Fatal(err)
	}
	if err := w.AddField("body", 120, nil); err != nil {
		t.Fatal(err)
	}
	if err := w.AddVectorItems("body", []VectorItem{
		{Term: []byte("cat"), Weight: 2},
		{Term: []byte("dog"), Weight: 1},
	}); err != nil {
		t.Fatal(err)
	}
	if err := w.FinishDoc(); err != nil {
		t.Fatal(err)
	}

	if err := w.StartDoc(3); err != nil {
		t.Fatal(err)
	}
	if err := w.AddField("body", 80, nil); err != nil {
		t.Fatal(err)
	}
	if err := w.FinishDoc(); err != nil {
		t.Fatal(err)
	}

	// Descending docnums are rejected before any state is touched.
	if err := w.StartDoc(2); !errors.Is(err, ErrOrderViolation) {
		t.Errorf("StartDoc(2) err = %v; want ErrOrderViolation", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if got := seg.FieldLengths["body"]; got != 200 {
		t.Errorf("FieldLengths[body] = %d; want 200", got)
	}

	r, err := c.PerDocumentReader(seg)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	stored, err := r.Stored(0)
	if err != nil {
		t.Fatal(err)
	}
	title, ok := stored.Bytes("title")
	if !ok || string(title) != "A Title" {
		t.Errorf("stored title = %q, %v; want \"A Title\"", title, ok)
	}
	if _, err := r.Stored(3); !errors.Is(err, ErrNotFound) {
		t.Errorf("Stored(3) err = %v; want ErrNotFound", err)
	}

	n, err := r.Length("body", 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 120 {
		t.Errorf("Length(body, 0) = %d; want 120", n)
	}
	if _, err := r.Length("body", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Length(body, 1) err = %v; want ErrNotFound", err)
	}

	vec, err := r.Vector("body", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 2 || string(vec[0].Term) != "cat" || string(vec[1].Term) != "dog" {
		t.Fatalf("vector = %v; want [cat dog]", vec)
	}
	if vec[0].Weight != 2 || vec[1].Weight != 1 {
		t.Errorf("vector weights = %v, %v; want 2, 1", vec[0].Weight, vec[1].Weight)
	}
	if _, err := r.Vector("body", 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("Vector(body, 3) err = %v; want ErrNotFound", err)
	}
}

func TestCompoundRoundTrip(t *testing.T) {
	dir := storage.NewMemDir()
	seg := NewSegment(dir, "seg0")
	c := Codec{}

	w, err := c.PerDocumentWriter(seg)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.StartDoc(1); err != nil {
		t.Fatal(err)
	}
	if err := w.AddField("body", 10, []byte("stored")); err != nil {
		t.Fatal(err)
	}
	if err := w.FinishDoc(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	fw := mustFieldWriter(t, c, seg)
	if err := fw.Add("body", []byte("term"), 1, 1.0, nil, 10); err != nil {
		t.Fatal(err)
	}
	if err := fw.Close(); err != nil {
		t.Fatal(err)
	}

	dst := storage.NewMemDir()
	if err := WriteCompound(dst, seg.CompoundFile(), dir, seg.ConstituentFiles()); err != nil {
		t.Fatal(err)
	}

	f, err := dst.Open(seg.CompoundFile())
	if err != nil {
		t.Fatal(err)
	}
	cd, err := OpenCompound(f)
	if err != nil {
		t.Fatal(err)
	}

	// The readers work unchanged against the compound form.
	cseg := NewSegment(cd, "seg0")
	tr, err := c.TermsReader(cseg)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	ti, err := tr.TermInfo("body", []byte("term"))
	if err != nil {
		t.Fatal(err)
	}
	if ti.DocFreq != 1 || ti.MinID != 1 {
		t.Errorf("terminfo = df %d, min %d; want 1, 1", ti.DocFreq, ti.MinID)
	}

	pr, err := c.PerDocumentReader(cseg)
	if err != nil {
		t.Fatal(err)
	}
	defer pr.Close()
	stored, err := pr.Stored(1)
	if err != nil {
		t.Fatal(err)
	}
	v, ok := stored.Bytes("body")
	if !ok || string(v) != "stored" {
		t.Errorf("stored body = %q, %v; want \"stored\"", v, ok)
	}

	if _, err := cd.Open("no-such-file"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open missing: err = %v; want ErrNotFound", err)
	}
	if _, err := cd.Create("x"); !errors.Is(err, ErrCompoundReadOnly) {
		t.Errorf("Create: err = %v; want ErrCompoundReadOnly", err)
	}
}

func TestNewCodecFromConfig(t *testing.T) {
	c, err := NewCodecFromConfig(map[string]interface{}{
		"blocklimit":  float64(16),
		"inlinelimit": float64(2),
		"hashtype":    "crc32",
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.BlockLimit != 16 || c.InlineLimit != 2 {
		t.Errorf("limits = %d, %d; want 16, 2", c.BlockLimit, c.InlineLimit)
	}

	if _, err := NewCodecFromConfig(map[string]interface{}{"hashtype": "fnv"}); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("unknown hashtype: err = %v; want ErrInvalidValue", err)
	}
}
