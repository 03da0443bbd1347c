package fuzzy

import (
	"reflect"
	"sort"
	"testing"

	"github.com/fathom-index/fathom/pkg/fsa"
)

func buildDict(t *testing.T, words []string) *fsa.Graph {
	t.Helper()
	sorted := append([]string(nil), words...)
	sort.Strings(sorted)
	b := fsa.NewBuilder(nil)
	for _, w := range sorted {
		if err := b.Insert([]byte(w), struct{}{}); err != nil {
			t.Fatalf("Insert(%q): %v", w, err)
		}
	}
	g, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return g
}

func TestLevenshteinAutomatonAccepts(t *testing.T) {
	d := LevenshteinAutomaton([]byte("cat"), 1, 0)
	cases := map[string]bool{
		"cat":  true,
		"cats": true, // insertion
		"at":   true, // deletion
		"bat":  true, // substitution
		"cot":  true, // substitution
		"dog":  false,
		"caat": true, // insertion
		"cast": true, // insertion ("ca" + "s" + "t")
	}
	for s, want := range cases {
		if got := d.Accepts([]byte(s)); got != want {
			t.Errorf("Accepts(%q) = %v; want %v", s, got, want)
		}
	}
}

func TestLevenshteinAutomatonPrefixLock(t *testing.T) {
	d := LevenshteinAutomaton([]byte("cat"), 1, 2)
	if d.Accepts([]byte("bat")) {
		t.Error("prefixLen=2 should forbid edits in the first two bytes")
	}
	if !d.Accepts([]byte("cab")) {
		t.Error("prefixLen=2 should still allow edits from position 2 onward")
	}
}

func TestFindAllMatchesFuzzyDictionary(t *testing.T) {
	dict := buildDict(t, []string{"cat", "cot", "cast", "dog", "cats", "bat", "zzz"})
	dfa := LevenshteinAutomaton([]byte("cat"), 1, 0)

	got, err := FindAllMatches(dfa, dict)
	if err != nil {
		t.Fatal(err)
	}
	var gotStrs []string
	for _, w := range got {
		gotStrs = append(gotStrs, string(w))
	}
	sort.Strings(gotStrs)
	want := []string{"bat", "cast", "cat", "cats", "cot"}
	if !reflect.DeepEqual(gotStrs, want) {
		t.Errorf("FindAllMatches = %v; want %v", gotStrs, want)
	}
}

func TestFindAllMatchesEmptyDictionary(t *testing.T) {
	dict := buildDict(t, []string{"xyz"})
	dfa := LevenshteinAutomaton([]byte("cat"), 1, 0)
	got, err := FindAllMatches(dfa, dict)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("FindAllMatches = %v; want no matches", got)
	}
}

func TestWithinDistance(t *testing.T) {
	dict := buildDict(t, []string{"cat", "cot", "cast", "dog", "cats", "bat", "zzz"})
	got := WithinDistance(dict, []byte("cat"), 1)
	var gotStrs []string
	for _, w := range got {
		gotStrs = append(gotStrs, string(w))
	}
	sort.Strings(gotStrs)
	want := []string{"bat", "cast", "cat", "cats", "cot"}
	if !reflect.DeepEqual(gotStrs, want) {
		t.Errorf("WithinDistance = %v; want %v", gotStrs, want)
	}
}

func TestWithinDistanceZero(t *testing.T) {
	dict := buildDict(t, []string{"cat", "cot"})
	got := WithinDistance(dict, []byte("cat"), 0)
	if len(got) != 1 || string(got[0]) != "cat" {
		t.Errorf("WithinDistance(k=0) = %v; want [cat]", got)
	}
}
