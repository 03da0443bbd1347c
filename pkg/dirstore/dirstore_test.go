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

package dirstore

import (
	"testing"

	"github.com/fathom-index/fathom/pkg/sorted"
)

func TestCommitAndGet(t *testing.T) {
	s := New(sorted.NewMemoryKeyValue())
	defer s.Close()

	seg := Segment{ID: "seg0", Generation: 1, DocCount: 12}
	if err := s.Commit(seg); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get("seg0")
	if err != nil {
		t.Fatal(err)
	}
	if got != seg {
		t.Errorf("Get(seg0) = %+v; want %+v", got, seg)
	}
}

func TestGetMissing(t *testing.T) {
	s := New(sorted.NewMemoryKeyValue())
	defer s.Close()

	if _, err := s.Get("nope"); err != sorted.ErrNotFound {
		t.Errorf("Get(nope) error = %v; want sorted.ErrNotFound", err)
	}
}

func TestListOrderedAndLive(t *testing.T) {
	s := New(sorted.NewMemoryKeyValue())
	defer s.Close()

	for _, id := range []string{"seg2", "seg0", "seg1"} {
		if err := s.Commit(Segment{ID: id, Generation: 1, DocCount: 1}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.MarkDeleted("seg1"); err != nil {
		t.Fatal(err)
	}

	all, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	wantIDs := []string{"seg0", "seg1", "seg2"}
	for i, seg := range all {
		if seg.ID != wantIDs[i] {
			t.Fatalf("List()[%d].ID = %q; want %q", i, seg.ID, wantIDs[i])
		}
	}
	if !all[1].Deleted {
		t.Error("seg1 should be marked deleted")
	}

	live, err := s.Live()
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 2 {
		t.Fatalf("Live() returned %d segments; want 2", len(live))
	}
	for _, seg := range live {
		if seg.ID == "seg1" {
			t.Error("Live() should not include the deleted segment")
		}
	}
}

func TestRemove(t *testing.T) {
	s := New(sorted.NewMemoryKeyValue())
	defer s.Close()

	if err := s.Commit(Segment{ID: "seg0", Generation: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove("seg0"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("seg0"); err != sorted.ErrNotFound {
		t.Errorf("Get(seg0) after Remove = %v; want sorted.ErrNotFound", err)
	}
}

func TestNextGenerationMonotonicAndPersists(t *testing.T) {
	kv := sorted.NewMemoryKeyValue()
	s := New(kv)

	g1, err := s.NextGeneration()
	if err != nil {
		t.Fatal(err)
	}
	g2, err := s.NextGeneration()
	if err != nil {
		t.Fatal(err)
	}
	if g2 <= g1 {
		t.Fatalf("NextGeneration() not monotonic: %d then %d", g1, g2)
	}

	// A fresh Store wrapping the same backing KeyValue should resume
	// from the persisted counter rather than restarting at 1.
	s2 := New(kv)
	g3, err := s2.NextGeneration()
	if err != nil {
		t.Fatal(err)
	}
	if g3 <= g2 {
		t.Fatalf("NextGeneration() after reopen = %d; want > %d", g3, g2)
	}
}

func TestBufferedDefersWritesUntilFlush(t *testing.T) {
	backing := sorted.NewMemoryKeyValue()
	s := NewBuffered(backing, 0)
	defer s.Close()

	if err := s.Commit(Segment{ID: "seg0", Generation: 1, DocCount: 3}); err != nil {
		t.Fatal(err)
	}

	// Reading straight through the Store sees the buffered write...
	if _, err := s.Get("seg0"); err != nil {
		t.Fatalf("Get(seg0) before Flush = %v; want nil error", err)
	}
	// ...but it hasn't reached backing yet.
	direct := New(backing)
	if _, err := direct.Get("seg0"); err != sorted.ErrNotFound {
		t.Fatalf("backing Get(seg0) before Flush = %v; want sorted.ErrNotFound", err)
	}

	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	if _, err := direct.Get("seg0"); err != nil {
		t.Fatalf("backing Get(seg0) after Flush = %v; want nil error", err)
	}
}

func TestFlushNoopOnUnbufferedStore(t *testing.T) {
	s := New(sorted.NewMemoryKeyValue())
	defer s.Close()
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() on a non-buffered Store = %v; want nil", err)
	}
}
