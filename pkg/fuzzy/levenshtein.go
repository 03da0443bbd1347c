// Package fuzzy implements fuzzy term matching over the dictionary DAG
// built by pkg/fsa: a Levenshtein automaton for a query string and
// maximum edit distance, intersected lazily with a term dictionary to
// enumerate matches, plus a direct stack-based enumeration for small
// distances that never builds an automaton at all.
package fuzzy

import "github.com/fathom-index/fathom/pkg/fsa"

// LevenshteinAutomaton builds a minimized DFA recognizing exactly the
// byte strings within edit distance maxDist of query, with the first
// prefixLen bytes required to match exactly (an "exact prefix" common
// query-time optimization that also keeps the automaton smaller).
//
// The construction lays out one NFA state per (i, e) pair, i ranging
// over 0..len(query) (how much of query has been consumed) and e over
// 0..maxDist (edits spent so far): an exact arc on query[i] advances i
// without spending an edit, and — once i is past prefixLen and e <
// maxDist — three more arcs model the three single-character edits:
// Any to (i+1, e+1) for substitution, Any to (i, e+1) for insertion
// (the matched string has an extra byte not in query), and an epsilon
// to (i+1, e+1) for deletion (a query byte is skipped without
// consuming input). States (len(query), e) for every e <= maxDist are
// final.
func LevenshteinAutomaton(query []byte, maxDist, prefixLen int) *fsa.DFA {
	m := len(query)
	n := fsa.NewNFA()

	ids := make([][]int, m+1)
	for i := range ids {
		ids[i] = make([]int, maxDist+1)
		for e := range ids[i] {
			ids[i][e] = n.AddState(i == m)
		}
	}
	n.SetStart(ids[0][0])

	for i := 0; i <= m; i++ {
		for e := 0; e <= maxDist; e++ {
			s := ids[i][e]
			if i < m {
				n.AddArc(s, int32(query[i]), ids[i+1][e])
			}
			if e >= maxDist || i < prefixLen {
				continue
			}
			if i < m {
				n.AddArc(s, fsa.Any, ids[i+1][e+1]) // substitution
				n.AddArc(s, fsa.Epsilon, ids[i+1][e+1]) // deletion
			}
			n.AddArc(s, fsa.Any, ids[i][e+1]) // insertion
		}
	}

	return fsa.Minimize(fsa.Determinize(n))
}
