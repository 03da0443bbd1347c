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
	"reflect"
	"testing"

	"github.com/fathom-index/fathom/pkg/storage"
)

func TestHashWriterReaderRoundTrip(t *testing.T) {
	f := storage.NewMemFile("t")
	w, err := NewHashWriter(f, HashCDB)
	if err != nil {
		t.Fatal(err)
	}
	items := map[string]string{
		"alpha": "1",
		"beta":  "2",
		"gamma": "3",
	}
	for k, v := range items {
		if err := w.Add([]byte(k), []byte(v)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := OpenHashReader(f, 0)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range items {
		got, err := r.Get([]byte(k))
		if err != nil {
			t.Fatalf("Get(%q): %v", k, err)
		}
		if string(got) != v {
			t.Errorf("Get(%q) = %q; want %q", k, got, v)
		}
	}
	if _, err := r.Get([]byte("missing")); err != ErrNotFound {
		t.Errorf("Get(missing) = %v; want ErrNotFound", err)
	}
}

func TestHashWriterDuplicateKeys(t *testing.T) {
	f := storage.NewMemFile("t")
	w, err := NewHashWriter(f, HashMD5)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Add([]byte("k"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := w.Add([]byte("k"), []byte("2")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Close(); err != nil {
		t.Fatal(err)
	}
	r, err := OpenHashReader(f, 0)
	if err != nil {
		t.Fatal(err)
	}
	vs, err := r.GetAll([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if len(vs) != 2 {
		t.Fatalf("GetAll(k) returned %d values; want 2", len(vs))
	}
}

// S1 from the on-disk hash table design notes: insert b"a", b"c", b"e";
// closest_key(b"b") == b"c", closest_key(b"f") == nil,
// keys_from(b"b") == [b"c", b"e"].
func TestOrderedHashBinarySearch(t *testing.T) {
	f := storage.NewMemFile("t")
	w, err := NewOrderedHashWriter(f, HashCDB)
	if err != nil {
		t.Fatal(err)
	}
	for _, kv := range []struct{ k, v string }{
		{"a", "1"}, {"c", "2"}, {"e", "3"},
	} {
		if err := w.Add([]byte(kv.k), []byte(kv.v)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := OpenOrderedHashReader(f, 0)
	if err != nil {
		t.Fatal(err)
	}

	got, err := r.ClosestKey([]byte("b"))
	if err != nil {
		t.Fatalf("ClosestKey(b): %v", err)
	}
	if string(got) != "c" {
		t.Errorf("ClosestKey(b) = %q; want c", got)
	}

	if _, err := r.ClosestKey([]byte("f")); err != ErrNotFound {
		t.Errorf("ClosestKey(f) = %v; want ErrNotFound", err)
	}

	keys, err := r.KeysFrom([]byte("b"))
	if err != nil {
		t.Fatal(err)
	}
	want := [][]byte{[]byte("c"), []byte("e")}
	if len(keys) != len(want) {
		t.Fatalf("KeysFrom(b) = %v; want %v", keys, want)
	}
	for i := range want {
		if !bytes.Equal(keys[i], want[i]) {
			t.Errorf("KeysFrom(b)[%d] = %q; want %q", i, keys[i], want[i])
		}
	}
}

func TestOrderedHashRejectsNonMonotonic(t *testing.T) {
	f := storage.NewMemFile("t")
	w, err := NewOrderedHashWriter(f, HashCDB)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Add([]byte("b"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := w.Add([]byte("a"), []byte("2")); err != ErrOutOfOrder {
		t.Errorf("Add(a) after Add(b) = %v; want ErrOutOfOrder", err)
	}
	if err := w.Add([]byte("b"), []byte("2")); err != ErrOutOfOrder {
		t.Errorf("Add(b) after Add(b) = %v; want ErrOutOfOrder", err)
	}
}

func TestOrderedHashItemsFrom(t *testing.T) {
	f := storage.NewMemFile("t")
	w, err := NewOrderedHashWriter(f, HashCRC32)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 300; i++ {
		k := []byte{byte(i >> 8), byte(i)}
		if err := w.Add(k, k); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := w.Close(); err != nil {
		t.Fatal(err)
	}
	r, err := OpenOrderedHashReader(f, 0)
	if err != nil {
		t.Fatal(err)
	}
	if r.Len() != 300 {
		t.Fatalf("Len() = %d; want 300", r.Len())
	}
	// 300 records means the offset index must not fit in a single byte,
	// exercising the H/I typecode path.
	items, err := r.ItemsFrom([]byte{0, 250})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 50 {
		t.Fatalf("ItemsFrom returned %d items; want 50", len(items))
	}
	if !reflect.DeepEqual(items[0][0], []byte{0, 250}) {
		t.Errorf("first item key = %v; want [0 250]", items[0][0])
	}
}

func TestFieldedOrderedHash(t *testing.T) {
	f := storage.NewMemFile("t")
	w, err := NewFieldedOrderedHashWriter(f, HashCDB)
	if err != nil {
		t.Fatal(err)
	}

	if err := w.StartField("title"); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"apple", "banana", "cherry"} {
		if err := w.Add([]byte(k), []byte("title:"+k)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.EndField(); err != nil {
		t.Fatal(err)
	}

	if err := w.StartField("body"); err != nil {
		t.Fatal(err)
	}
	// Ordering resets per field: "apple" < "banana" here would be fine,
	// but re-using a key smaller than the title field's last key must
	// still be allowed because fields are independent regions.
	for _, k := range []string{"ant", "bee"} {
		if err := w.Add([]byte(k), []byte("body:"+k)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.EndField(); err != nil {
		t.Fatal(err)
	}

	if _, err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := OpenFieldedOrderedHashReader(f, 0)
	if err != nil {
		t.Fatal(err)
	}

	title, err := r.Field("title")
	if err != nil {
		t.Fatal(err)
	}
	if title.Len() != 3 {
		t.Errorf("title field len = %d; want 3", title.Len())
	}
	got, err := title.Get([]byte("banana"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "title:banana" {
		t.Errorf("title.Get(banana) = %q; want title:banana", got)
	}

	body, err := r.Field("body")
	if err != nil {
		t.Fatal(err)
	}
	closest, err := body.ClosestKey([]byte("b"))
	if err != nil {
		t.Fatal(err)
	}
	if string(closest) != "bee" {
		t.Errorf("body.ClosestKey(b) = %q; want bee", closest)
	}

	if _, err := r.Field("nope"); err != ErrNotFound {
		t.Errorf("Field(nope) = %v; want ErrNotFound", err)
	}
}

func TestFieldedOrderedHashRequiresOpenField(t *testing.T) {
	f := storage.NewMemFile("t")
	w, err := NewFieldedOrderedHashWriter(f, HashCDB)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Add([]byte("x"), []byte("y")); err != ErrNoActiveField {
		t.Errorf("Add without StartField = %v; want ErrNoActiveField", err)
	}
	if err := w.StartField("f"); err != nil {
		t.Fatal(err)
	}
	if err := w.StartField("g"); err == nil {
		t.Error("StartField while a field is open should fail")
	}
}
