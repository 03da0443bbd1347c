package fsa

import (
	"testing"

	"github.com/fathom-index/fathom/pkg/storage"
)

func TestNFAConstructionPrimitives(t *testing.T) {
	// (cat|dog)+
	cat := String([]byte("cat"))
	dog := String([]byte("dog"))
	n := Plus(Choice(cat, dog))
	d := Minimize(Determinize(n))

	cases := map[string]bool{
		"cat":       true,
		"dog":       true,
		"catdog":    true,
		"catcatdog": true,
		"":          false,
		"ca":        false,
		"catx":      false,
	}
	for s, want := range cases {
		if got := d.Accepts([]byte(s)); got != want {
			t.Errorf("Accepts(%q) = %v; want %v", s, got, want)
		}
	}
}

func TestAnyDefaultTransition(t *testing.T) {
	// a.c matches "a" + any byte + "c"
	n := Concat(Concat(Basic('a'), AnyNFA()), Basic('c'))
	d := Minimize(Determinize(n))
	if !d.Accepts([]byte("abc")) {
		t.Error("a.c should accept abc")
	}
	if !d.Accepts([]byte("aZc")) {
		t.Error("a.c should accept aZc (any byte in the middle)")
	}
	if d.Accepts([]byte("ac")) {
		t.Error("a.c should not accept ac (any must consume exactly one byte)")
	}
}

func TestDaciukMihovBuilderNoValues(t *testing.T) {
	words := []string{"ant", "bee", "bees", "cat", "catalog"}
	b := NewBuilder(nil)
	for _, w := range words {
		if err := b.Insert([]byte(w), struct{}{}); err != nil {
			t.Fatal(err)
		}
	}
	g, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range words {
		if !g.Accepts([]byte(w)) {
			t.Errorf("graph should accept %q", w)
		}
	}
	for _, w := range []string{"an", "be", "dog", "catalogs"} {
		if g.Accepts([]byte(w)) {
			t.Errorf("graph should not accept %q", w)
		}
	}
}

func TestBuilderRejectsNonIncreasing(t *testing.T) {
	b := NewBuilder(nil)
	if err := b.Insert([]byte("b"), struct{}{}); err != nil {
		t.Fatal(err)
	}
	if err := b.Insert([]byte("a"), struct{}{}); err != ErrNotIncreasing {
		t.Errorf("Insert(a) after Insert(b) = %v; want ErrNotIncreasing", err)
	}
	if err := b.Insert([]byte("b"), struct{}{}); err != ErrNotIncreasing {
		t.Errorf("Insert(b) after Insert(b) = %v; want ErrNotIncreasing", err)
	}
	if err := b.Insert(nil, struct{}{}); err != ErrNotIncreasing {
		t.Errorf("Insert(empty) = %v; want ErrNotIncreasing", err)
	}
}

func TestFSTIntValuesSharedPrefix(t *testing.T) {
	b := NewBuilder(IntValues{})
	entries := []struct {
		key string
		val int64
	}{
		{"cat", 5},
		{"cats", 7},
		{"cup", 3},
	}
	for _, e := range entries {
		if err := b.Insert([]byte(e.key), e.val); err != nil {
			t.Fatal(err)
		}
	}
	g, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		got, ok := g.Lookup([]byte(e.key))
		if !ok {
			t.Fatalf("Lookup(%q) not found", e.key)
		}
		if got.(int64) != e.val {
			t.Errorf("Lookup(%q) = %d; want %d", e.key, got, e.val)
		}
	}
	if _, ok := g.Lookup([]byte("ca")); ok {
		t.Error("Lookup(ca) should not be found")
	}
}

func TestFSTBytesValues(t *testing.T) {
	b := NewBuilder(BytesValues{})
	entries := []struct {
		key, val string
	}{
		{"alpha", "A1"},
		{"alphabet", "A2"},
		{"beta", "B1"},
	}
	for _, e := range entries {
		if err := b.Insert([]byte(e.key), []byte(e.val)); err != nil {
			t.Fatal(err)
		}
	}
	g, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		got, ok := g.Lookup([]byte(e.key))
		if !ok {
			t.Fatalf("Lookup(%q) not found", e.key)
		}
		if string(got.([]byte)) != e.val {
			t.Errorf("Lookup(%q) = %q; want %q", e.key, got, e.val)
		}
	}
}

func TestCursorFlatten(t *testing.T) {
	b := NewBuilder(nil)
	words := []string{"ant", "bee", "cat"}
	for _, w := range words {
		if err := b.Insert([]byte(w), struct{}{}); err != nil {
			t.Fatal(err)
		}
	}
	g, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}
	c := NewCursor(g)
	got := c.Flatten()
	if len(got) != len(words) {
		t.Fatalf("Flatten returned %d keys; want %d", len(got), len(words))
	}
	for i, w := range words {
		if string(got[i]) != w {
			t.Errorf("Flatten()[%d] = %q; want %q", i, got[i], w)
		}
	}
}

func TestGraphSerializationRoundTrip(t *testing.T) {
	b := NewBuilder(IntValues{})
	entries := []struct {
		key string
		val int64
	}{
		{"cat", 5},
		{"cats", 7},
		{"cup", 3},
		{"dog", 1},
	}
	for _, e := range entries {
		if err := b.Insert([]byte(e.key), e.val); err != nil {
			t.Fatal(err)
		}
	}
	g, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}

	f := storage.NewMemFile("g")
	root, err := WriteGraph(f, g)
	if err != nil {
		t.Fatal(err)
	}

	g2, err := ReadGraph(f, root, IntValues{})
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		got, ok := g2.Lookup([]byte(e.key))
		if !ok {
			t.Fatalf("reloaded graph: Lookup(%q) not found", e.key)
		}
		if got.(int64) != e.val {
			t.Errorf("reloaded graph: Lookup(%q) = %d; want %d", e.key, got, e.val)
		}
	}
}

func TestGraphFileMultipleFields(t *testing.T) {
	build := func(words []string) *Graph {
		b := NewBuilder(nil)
		for _, w := range words {
			if err := b.Insert([]byte(w), struct{}{}); err != nil {
				t.Fatal(err)
			}
		}
		g, err := b.Finish()
		if err != nil {
			t.Fatal(err)
		}
		return g
	}
	bodyWords := []string{"ant", "bee", "cat"}
	titleWords := []string{"one", "two"}

	f := storage.NewMemFile("g")
	w, err := NewGraphFileWriter(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.AddField("body", build(bodyWords)); err != nil {
		t.Fatal(err)
	}
	if err := w.AddField("title", build(titleWords)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	gf, err := OpenGraphFile(f, nil)
	if err != nil {
		t.Fatal(err)
	}
	fields := gf.Fields()
	if len(fields) != 2 || fields[0] != "body" || fields[1] != "title" {
		t.Fatalf("Fields = %v; want [body title]", fields)
	}
	for field, words := range map[string][]string{"body": bodyWords, "title": titleWords} {
		g, err := gf.Graph(field)
		if err != nil {
			t.Fatal(err)
		}
		for _, w := range words {
			if !g.Accepts([]byte(w)) {
				t.Errorf("field %q should accept %q", field, w)
			}
		}
	}
	if _, err := gf.Graph("missing"); err == nil {
		t.Error("Graph(missing) should fail")
	}

	bad := storage.NewMemFile("bad")
	if _, err := bad.Append([]byte("XXXXxxxxxxxxxxxx")); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenGraphFile(bad, nil); err == nil {
		t.Error("OpenGraphFile on a non-graph file should fail")
	}
}
