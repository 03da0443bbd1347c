package fuzzy

import (
	"bytes"

	"github.com/fathom-index/fathom/pkg/fsa"
)

// FindAllMatches enumerates every term in dict accepted by levenshtein, in
// ascending order, by lazily walking the two structures in lockstep
// instead of materializing either one: at each step it asks the
// automaton for the smallest accepted string at or after a cursor
// key, asks the dictionary for the smallest term at or after the
// automaton's answer, and either has a match (both agree) or jumps its cursor
// straight to whichever structure's answer is larger. Neither side is
// ever asked for more than one answer per round trip, so the cost is
// proportional to the number of dictionary terms actually visited
// rather than the size of either the automaton or the dictionary.
func FindAllMatches(levenshtein *fsa.DFA, dict *fsa.Graph) ([][]byte, error) {
	reach := computeReachFinal(levenshtein)
	var out [][]byte
	cursor := []byte{}
	for {
		match, ok := nextValidString(levenshtein, reach, cursor)
		if !ok {
			return out, nil
		}
		term, ok := closestInGraph(dict, match)
		if !ok {
			return out, nil
		}
		if bytes.Equal(term, match) {
			out = append(out, term)
			cursor = append(append([]byte(nil), term...), 0x00)
			continue
		}
		cursor = term
	}
}

// computeReachFinal returns, for every state of d, whether some final
// state is reachable from it. d.Step is the only transition accessor
// the DFA type exposes, so adjacency is rebuilt by probing every byte
// value once per state; the automata this package builds are small
// enough (one state per (query position, edit count) pair) that this
// is cheap, and the result is reused across every nextValidString call
// for a given automaton rather than recomputed per call.
func computeReachFinal(d *fsa.DFA) map[int]bool {
	n := d.NumStates()
	adj := make([][]int, n)
	for s := 0; s < n; s++ {
		seen := make(map[int]bool)
		for b := 0; b <= 255; b++ {
			to, ok := d.Step(s, int32(b))
			if ok && !seen[to] {
				seen[to] = true
				adj[s] = append(adj[s], to)
			}
		}
	}

	canReach := make(map[int]bool, n)
	for changed := true; changed; {
		changed = false
		for s := 0; s < n; s++ {
			if canReach[s] {
				continue
			}
			if d.IsFinal(s) {
				canReach[s] = true
				changed = true
				continue
			}
			for _, to := range adj[s] {
				if canReach[to] {
					canReach[s] = true
					changed = true
					break
				}
			}
		}
	}
	return canReach
}

// nextValidString returns the lexicographically smallest byte string
// accepted by d that is >= start, or ok=false if no such string
// exists (the automaton's language has nothing at or beyond start).
//
// It walks start through d one byte at a time while "tied" (the path
// so far spells exactly a prefix of start). On divergence — either d
// has no arc for the next byte of start, or every continuation that
// stays tied dead-ends — it backtracks to the smallest byte strictly
// greater than the one just tried that still leads toward a final
// state, breaking the tie, after which every following byte is chosen
// as small as possible. A tied path is only accepted once it has
// consumed all of start: a final state reached on a strict prefix of
// start is lexicographically smaller than start, not a valid answer.
func nextValidString(d *fsa.DFA, canReachFinal map[int]bool, start []byte) ([]byte, bool) {
	state := d.Start()
	tied := true
	var result []byte

	type frame struct {
		state  int
		tied   bool
		resume int
	}
	var stack []frame

	floorFor := func() int {
		level := len(result)
		if tied && level < len(start) {
			return int(start[level])
		}
		return 0
	}

	advance := func(floor int) bool {
		level := len(result)
		for b := floor; b <= 255; b++ {
			to, ok := d.Step(state, int32(b))
			if !ok || !canReachFinal[to] {
				continue
			}
			stack = append(stack, frame{state: state, tied: tied, resume: b + 1})
			result = append(result, byte(b))
			tied = tied && level < len(start) && b == int(start[level])
			state = to
			return true
		}
		return false
	}

	accept := func() bool {
		if tied && len(result) < len(start) {
			return false
		}
		return d.IsFinal(state)
	}

	floor := floorFor()
	for {
		if advance(floor) {
			if accept() {
				return append([]byte(nil), result...), true
			}
			floor = floorFor()
			continue
		}
		if len(stack) == 0 {
			return nil, false
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		result = result[:len(result)-1]
		state = top.state
		tied = top.tied
		floor = top.resume
	}
}

// closestInGraph returns the lexicographically smallest term reachable
// in g that is >= target, or ok=false if none exists. The search
// mirrors nextValidString's tie/divergence backtracking, but walks g's
// sorted Node.Arcs directly by index (Daciuk-Mihov insertion appends
// arcs to each node in ascending label order, so "smallest label >=
// floor" is a binary search, and an index, not a byte value, is what a
// backtrack needs to resume from) instead of probing 256 byte values
// through a DFA's Step. Every node g contains was built from an actual
// inserted term, so — unlike the Levenshtein DFA — no reachability
// guard is needed: a non-final node always has at least one arc.
func closestInGraph(g *fsa.Graph, target []byte) ([]byte, bool) {
	node := g.Root
	tied := true
	var result []byte

	type frame struct {
		node   int32
		tied   bool
		resume int
	}
	var stack []frame

	floorIdx := func() int {
		arcs := g.Nodes[node].Arcs
		level := len(result)
		if !(tied && level < len(target)) {
			return 0
		}
		floor := target[level]
		lo, hi := 0, len(arcs)
		for lo < hi {
			mid := (lo + hi) / 2
			if arcs[mid].Label < floor {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		return lo
	}

	advance := func(idx int) bool {
		arcs := g.Nodes[node].Arcs
		if idx >= len(arcs) {
			return false
		}
		level := len(result)
		arc := arcs[idx]
		stack = append(stack, frame{node: node, tied: tied, resume: idx + 1})
		result = append(result, arc.Label)
		tied = tied && level < len(target) && arc.Label == target[level]
		node = arc.Target
		return true
	}

	accept := func() bool {
		if tied && len(result) < len(target) {
			return false
		}
		return g.Nodes[node].Final
	}

	idx := floorIdx()
	for {
		if advance(idx) {
			if accept() {
				return append([]byte(nil), result...), true
			}
			idx = floorIdx()
			continue
		}
		if len(stack) == 0 {
			return nil, false
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		result = result[:len(result)-1]
		node = top.node
		tied = top.tied
		idx = top.resume
	}
}
