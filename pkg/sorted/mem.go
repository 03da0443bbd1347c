/*
Copyright 2011 Google Inc.

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

package sorted

import (
	"errors"
	"sort"
	"sync"

	"github.com/fathom-index/fathom/pkg/idxconfig"
)

// NewMemoryKeyValue returns a KeyValue implementation that's backed only
// by memory. It's mostly useful for tests and for a directory registry
// that doesn't need to survive process restart.
func NewMemoryKeyValue() KeyValue {
	return &memKeys{m: make(map[string]string)}
}

// memKeys is a naive in-memory implementation of KeyValue, a sorted
// map kept as a Go map plus a sorted key slice that is rebuilt lazily
// after a key is added or removed. It trades O(n log n) rebuilds for
// simplicity; fine for the segment
// directory's scale (one small key per committed segment) and for tests.
type memKeys struct {
	mu     sync.Mutex
	m      map[string]string
	keys   []string // sorted, lazily rebuilt
	keysOK bool
}

func (mk *memKeys) sortedKeys() []string {
	if mk.keysOK {
		return mk.keys
	}
	keys := make([]string, 0, len(mk.m))
	for k := range mk.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	mk.keys, mk.keysOK = keys, true
	return keys
}

func (mk *memKeys) Get(key string) (string, error) {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	v, ok := mk.m[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (mk *memKeys) Set(key, value string) error {
	if err := CheckSizes(key, value); err != nil {
		return err
	}
	mk.mu.Lock()
	defer mk.mu.Unlock()
	if _, exists := mk.m[key]; !exists {
		mk.keysOK = false
	}
	mk.m[key] = value
	return nil
}

func (mk *memKeys) Delete(key string) error {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	if _, ok := mk.m[key]; ok {
		delete(mk.m, key)
		mk.keysOK = false
	}
	return nil
}

func (mk *memKeys) Find(start, end string) Iterator {
	mk.mu.Lock()
	keys := mk.sortedKeys()
	i := sort.SearchStrings(keys, start)
	var within []string
	for ; i < len(keys); i++ {
		if end != "" && keys[i] >= end {
			break
		}
		within = append(within, keys[i])
	}
	vals := make([]string, len(within))
	for i, k := range within {
		vals[i] = mk.m[k]
	}
	mk.mu.Unlock()
	return &memIter{keys: within, vals: vals, i: -1}
}

type memIter struct {
	keys, vals []string
	i          int
}

func (it *memIter) Next() bool {
	it.i++
	return it.i < len(it.keys)
}

func (it *memIter) Key() string   { return it.keys[it.i] }
func (it *memIter) Value() string { return it.vals[it.i] }
func (it *memIter) Close() error  { return nil }

func (mk *memKeys) BeginBatch() BatchMutation {
	return &batch{}
}

func (mk *memKeys) CommitBatch(bm BatchMutation) error {
	b, ok := bm.(*batch)
	if !ok {
		return errors.New("invalid batch type; not an instance returned by BeginBatch")
	}
	mk.mu.Lock()
	defer mk.mu.Unlock()
	for _, m := range b.Mutations() {
		if m.IsDelete() {
			if _, ok := mk.m[m.Key()]; ok {
				delete(mk.m, m.Key())
				mk.keysOK = false
			}
			continue
		}
		if err := CheckSizes(m.Key(), m.Value()); err != nil {
			return err
		}
		if _, exists := mk.m[m.Key()]; !exists {
			mk.keysOK = false
		}
		mk.m[m.Key()] = m.Value()
	}
	return nil
}

func (mk *memKeys) Wipe() error {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	mk.m = make(map[string]string)
	mk.keys, mk.keysOK = nil, false
	return nil
}

func (mk *memKeys) Close() error { return nil }

func init() {
	RegisterKeyValue("memory", func(cfg idxconfig.Obj) (KeyValue, error) {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return NewMemoryKeyValue(), nil
	})
}
