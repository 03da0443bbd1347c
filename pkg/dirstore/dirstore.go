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

// Package dirstore tracks which segments currently make up an index:
// a small append-mostly manifest of committed segment ids and the
// generation they belong to, kept in a sorted.KeyValue so any of that
// package's backends (in-memory, LevelDB, or a local B+tree file) can
// hold it.
//
// Keys are prefixed by record kind so unrelated record families can
// share one KeyValue without colliding: "s:<segid>" for a committed
// segment's manifest line, and "g:" for the current generation
// counter.
package dirstore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fathom-index/fathom/pkg/idxconfig"
	"github.com/fathom-index/fathom/pkg/sorted"
	"github.com/fathom-index/fathom/pkg/sorted/buffer"
)

const (
	segPrefix      = "s:"
	segPrefixLimit = "s;"
	genKey         = "g:"
)

// Segment is one committed segment's manifest line: the fields a
// reader needs to open it and decide whether it is still live.
type Segment struct {
	ID         string
	Generation uint64
	DocCount   uint32
	Deleted    bool // true once MarkDeleted has been called and not yet compacted away
}

// encode renders a Segment as the tab-separated value stored under its
// "s:<id>" key. The id itself is not repeated in the value, since it's
// already the key suffix.
func (s Segment) encode() string {
	del := "0"
	if s.Deleted {
		del = "1"
	}
	return strings.Join([]string{
		strconv.FormatUint(s.Generation, 10),
		strconv.FormatUint(uint64(s.DocCount), 10),
		del,
	}, "\t")
}

func decodeSegment(id, value string) (Segment, error) {
	parts := strings.Split(value, "\t")
	if len(parts) != 3 {
		return Segment{}, fmt.Errorf("dirstore: malformed record for segment %q", id)
	}
	gen, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Segment{}, fmt.Errorf("dirstore: segment %q: bad generation: %w", id, err)
	}
	docCount, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Segment{}, fmt.Errorf("dirstore: segment %q: bad doc count: %w", id, err)
	}
	return Segment{
		ID:         id,
		Generation: gen,
		DocCount:   uint32(docCount),
		Deleted:    parts[2] == "1",
	}, nil
}

// Store is a registry of the segments that currently make up an
// index, backed by a sorted.KeyValue. It adds no locking of its own
// beyond what's needed to hand out a monotonic generation counter;
// the backing KeyValue is responsible for its own concurrency safety.
type Store struct {
	kv sorted.KeyValue

	mu     sync.Mutex
	curGen uint64
	genOK  bool
}

// New wraps an already-open sorted.KeyValue as a segment directory.
func New(kv sorted.KeyValue) *Store {
	return &Store{kv: kv}
}

// NewBuffered wraps backing behind an in-memory buffer.KeyValue: every
// Commit/MarkDeleted/Remove/NextGeneration call during a bulk operation
// (e.g. a merge rewriting many segments' manifest lines at once) lands
// in memory first, and only reaches backing when Flush is called or
// maxBufferBytes is exceeded. Use this instead of New when a caller is
// about to make many directory updates that don't need to be durable
// until the whole operation finishes.
func NewBuffered(backing sorted.KeyValue, maxBufferBytes int64) *Store {
	buffered := buffer.New(sorted.NewMemoryKeyValue(), backing, maxBufferBytes)
	return &Store{kv: buffered}
}

// Flush writes through a Store created by NewBuffered to its backing
// KeyValue. It is a no-op on a Store created by New or NewFromConfig,
// which have no buffer to flush.
func (s *Store) Flush() error {
	if b, ok := s.kv.(*buffer.KeyValue); ok {
		return b.Flush()
	}
	return nil
}

// NewFromConfig opens the sorted.KeyValue backend described by cfg
// (the same shape sorted.NewKeyValue expects: a "type" key naming the
// registered backend plus that backend's own options) and wraps it.
func NewFromConfig(cfg idxconfig.Obj) (*Store, error) {
	kv, err := sorted.NewKeyValue(cfg)
	if err != nil {
		return nil, err
	}
	return New(kv), nil
}

// NextGeneration returns a fresh, strictly increasing generation
// number, persisting the counter so it survives a restart.
func (s *Store) NextGeneration() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.genOK {
		v, err := s.kv.Get(genKey)
		if err != nil && err != sorted.ErrNotFound {
			return 0, err
		}
		if err == nil {
			n, perr := strconv.ParseUint(v, 10, 64)
			if perr != nil {
				return 0, fmt.Errorf("dirstore: bad generation counter %q: %w", v, perr)
			}
			s.curGen = n
		}
		s.genOK = true
	}

	s.curGen++
	if err := s.kv.Set(genKey, strconv.FormatUint(s.curGen, 10)); err != nil {
		s.curGen--
		return 0, err
	}
	return s.curGen, nil
}

// Commit records seg as live. Callers build seg.Generation from
// NextGeneration once the segment's files are durably written; Commit
// itself only publishes the manifest line.
func (s *Store) Commit(seg Segment) error {
	return s.kv.Set(segPrefix+seg.ID, seg.encode())
}

// Get looks up one segment's manifest line by id.
func (s *Store) Get(id string) (Segment, error) {
	v, err := s.kv.Get(segPrefix + id)
	if err == sorted.ErrNotFound {
		return Segment{}, sorted.ErrNotFound
	}
	if err != nil {
		return Segment{}, err
	}
	return decodeSegment(id, v)
}

// MarkDeleted flips a committed segment's Deleted flag without
// removing its manifest line, so a reader mid-scan still sees a
// consistent directory; a later compaction pass can call Remove once
// it has actually reclaimed the segment's files.
func (s *Store) MarkDeleted(id string) error {
	seg, err := s.Get(id)
	if err != nil {
		return err
	}
	seg.Deleted = true
	return s.Commit(seg)
}

// Remove drops a segment's manifest line entirely.
func (s *Store) Remove(id string) error {
	return s.kv.Delete(segPrefix + id)
}

// List returns every committed segment, live or deleted, ordered by
// id.
func (s *Store) List() ([]Segment, error) {
	it := s.kv.Find(segPrefix, segPrefixLimit)
	var out []Segment
	for it.Next() {
		id := strings.TrimPrefix(it.Key(), segPrefix)
		seg, err := decodeSegment(id, it.Value())
		if err != nil {
			it.Close()
			return nil, err
		}
		out = append(out, seg)
	}
	if err := it.Close(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Live returns the committed, non-deleted segments, ordered by id.
func (s *Store) Live() ([]Segment, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, seg := range all {
		if !seg.Deleted {
			out = append(out, seg)
		}
	}
	return out, nil
}

// Close releases the backing KeyValue.
func (s *Store) Close() error {
	return s.kv.Close()
}
