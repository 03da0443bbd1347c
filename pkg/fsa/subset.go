package fsa

import "sort"

type dfaArc struct {
	label int32
	to    int
}

// DFA is a deterministic automaton. A state may carry a default
// transition (defTo, hasDef) used for any label not covered by an
// explicit arc — the representation a subset construction produces
// when the source NFA used Any rather than 256 explicit byte arcs.
type DFA struct {
	states []dfaState
	start  int
}

type dfaState struct {
	arcs  []dfaArc
	final bool
	defTo int
	hasDef bool
}

func (d *DFA) addState(final bool) int {
	d.states = append(d.states, dfaState{final: final, defTo: -1})
	return len(d.states) - 1
}

// epsilonClosure returns the sorted, deduplicated set of NFA states
// reachable from seed via zero or more epsilon arcs.
func epsilonClosure(n *NFA, seed []int) []int {
	seen := make(map[int]bool, len(seed))
	var stack []int
	for _, s := range seed {
		if !seen[s] {
			seen[s] = true
			stack = append(stack, s)
		}
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, arc := range n.states[s].arcs {
			if arc.label == Epsilon && !seen[arc.to] {
				seen[arc.to] = true
				stack = append(stack, arc.to)
			}
		}
	}
	out := make([]int, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

func setKey(set []int) string {
	b := make([]byte, 0, len(set)*5)
	for _, s := range set {
		b = append(b, byte(s), byte(s>>8), byte(s>>16), byte(s>>24), ',')
	}
	return string(b)
}

func anyFinal(n *NFA, set []int) bool {
	for _, s := range set {
		if n.states[s].final {
			return true
		}
	}
	return false
}

// Determinize converts n to an equivalent DFA via powerset
// construction. An Any arc in the source contributes to every explicit
// label's target set (since it matches any concrete byte) and also
// becomes the resulting state's default transition for labels with no
// explicit arc.
func Determinize(n *NFA) *DFA {
	d := &DFA{}
	startSet := epsilonClosure(n, []int{n.start})
	ids := map[string]int{}
	startID := d.addState(anyFinal(n, startSet))
	ids[setKey(startSet)] = startID
	d.start = startID

	type pending struct {
		set []int
		id  int
	}
	queue := []pending{{startSet, startID}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		labels := map[int32]bool{}
		var anyTargets []int
		for _, s := range cur.set {
			for _, arc := range n.states[s].arcs {
				switch arc.label {
				case Epsilon:
				case Any:
					anyTargets = append(anyTargets, arc.to)
				default:
					labels[arc.label] = true
				}
			}
		}

		resolve := func(targets []int) int {
			set := epsilonClosure(n, targets)
			key := setKey(set)
			if id, ok := ids[key]; ok {
				return id
			}
			id := d.addState(anyFinal(n, set))
			ids[key] = id
			queue = append(queue, pending{set, id})
			return id
		}

		if len(anyTargets) > 0 {
			defTo := resolve(anyTargets)
			d.states[cur.id].hasDef = true
			d.states[cur.id].defTo = defTo
		}

		sortedLabels := make([]int32, 0, len(labels))
		for l := range labels {
			sortedLabels = append(sortedLabels, l)
		}
		sort.Slice(sortedLabels, func(i, j int) bool { return sortedLabels[i] < sortedLabels[j] })

		for _, label := range sortedLabels {
			var targets []int
			for _, s := range cur.set {
				for _, arc := range n.states[s].arcs {
					if arc.label == label || arc.label == Any {
						targets = append(targets, arc.to)
					}
				}
			}
			to := resolve(targets)
			d.states[cur.id].arcs = append(d.states[cur.id].arcs, dfaArc{label: label, to: to})
		}
	}
	return d
}

// Step returns the destination state for label from s (via an explicit
// arc or, failing that, the default transition), and whether a
// transition exists at all.
func (d *DFA) Step(s int, label int32) (int, bool) {
	st := d.states[s]
	lo, hi := 0, len(st.arcs)
	for lo < hi {
		mid := (lo + hi) / 2
		if st.arcs[mid].label < label {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(st.arcs) && st.arcs[lo].label == label {
		return st.arcs[lo].to, true
	}
	if st.hasDef {
		return st.defTo, true
	}
	return -1, false
}

// Start returns the DFA's initial state.
func (d *DFA) Start() int { return d.start }

// IsFinal reports whether s is an accepting state.
func (d *DFA) IsFinal(s int) bool { return d.states[s].final }

// NumStates returns the number of states in d, including unreachable
// ones (callers that care should run d through Minimize first, which
// already drops unreachable states).
func (d *DFA) NumStates() int { return len(d.states) }

// Accepts reports whether s matches the byte string input.
func (d *DFA) Accepts(input []byte) bool {
	s := d.start
	for _, b := range input {
		next, ok := d.Step(s, int32(b))
		if !ok {
			return false
		}
		s = next
	}
	return d.states[s].final
}
