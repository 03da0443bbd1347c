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

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fathom-index/fathom/pkg/segment"
	"github.com/fathom-index/fathom/pkg/storage"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildPostingsThenReadBack(t *testing.T) {
	dir := t.TempDir()
	postingsPath := filepath.Join(dir, "postings.tsv")
	writeFile(t, postingsPath, strings.Join([]string{
		"body\tgo\t1\t1.5\t-\t4",
		"body\tgo\t2\t2.0\t-\t6",
		"body\trust\t3\t1.0\t-\t4",
	}, "\n")+"\n")

	codec := segment.Codec{}
	seg := segment.NewSegment(storage.NewOSDir(dir), "seg0")
	n, err := buildPostings(codec, seg, postingsPath)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("buildPostings wrote %d postings; want 3", n)
	}

	tr, err := codec.TermsReader(seg)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	ti, err := tr.TermInfo("body", []byte("go"))
	if err != nil {
		t.Fatal(err)
	}
	if ti.DocFreq != 2 {
		t.Errorf("TermInfo(body, go).DocFreq = %d; want 2", ti.DocFreq)
	}
	if ti.MaxID != 2 || ti.MinID != 1 {
		t.Errorf("TermInfo(body, go) id range = [%d, %d]; want [1, 2]", ti.MinID, ti.MaxID)
	}

	rustInfo, err := tr.TermInfo("body", []byte("rust"))
	if err != nil {
		t.Fatal(err)
	}
	if rustInfo.DocFreq != 1 {
		t.Errorf("TermInfo(body, rust).DocFreq = %d; want 1", rustInfo.DocFreq)
	}
}

func TestBuildPostingsSpellingOnly(t *testing.T) {
	dir := t.TempDir()
	postingsPath := filepath.Join(dir, "postings.tsv")
	writeFile(t, postingsPath, "body\tzzyzx\t-1\t0\t-\t0\n")

	codec := segment.Codec{}
	seg := segment.NewSegment(storage.NewOSDir(dir), "seg0")
	if _, err := buildPostings(codec, seg, postingsPath); err != nil {
		t.Fatal(err)
	}

	tr, err := codec.TermsReader(seg)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	ti, err := tr.TermInfo("body", []byte("zzyzx"))
	if err != nil {
		t.Fatal(err)
	}
	if ti.HasPostings() {
		t.Error("spelling-only term should have no postings")
	}
}

func TestBuildDocsPerDocument(t *testing.T) {
	dir := t.TempDir()
	docsPath := filepath.Join(dir, "docs.tsv")
	writeFile(t, docsPath, strings.Join([]string{
		"1\tbody\t4\thello",
		"1\ttitle\t1\t-",
		"2\tbody\t6\tworld",
	}, "\n")+"\n")

	codec := segment.Codec{}
	seg := segment.NewSegment(storage.NewOSDir(dir), "seg0")
	if err := buildDocs(codec, seg, docsPath); err != nil {
		t.Fatal(err)
	}

	pr, err := codec.PerDocumentReader(seg)
	if err != nil {
		t.Fatal(err)
	}
	defer pr.Close()

	if seg.FieldLengths["body"] != 10 {
		t.Errorf("FieldLengths[body] = %d; want 10", seg.FieldLengths["body"])
	}
}

func TestValueOrEmpty(t *testing.T) {
	if got := valueOrEmpty("-"); got != nil {
		t.Errorf("valueOrEmpty(-) = %q; want nil", got)
	}
	if got := string(valueOrEmpty("x")); got != "x" {
		t.Errorf("valueOrEmpty(x) = %q; want x", got)
	}
}
