// Package fsa implements the finite-state automaton and transducer
// engine backing the term dictionary: Thompson-construction NFA
// primitives, subset construction to a DFA, Hopcroft-style
// minimization, and a direct Daciuk-Mihov builder for the common case
// of building straight from an already-sorted term list.
package fsa

const (
	// Epsilon is the pseudo-label of a non-consuming NFA transition.
	Epsilon int32 = -2
	// Any is the pseudo-label matching every concrete byte value; it
	// becomes a DFA default transition rather than 256 explicit arcs.
	Any int32 = -1
)

type nfaArc struct {
	label int32
	to    int
}

type nfaState struct {
	arcs  []nfaArc
	final bool
}

// NFA is a Thompson-construction fragment with exactly one initial and
// one final state once built by the constructors in this file.
type NFA struct {
	states []nfaState
	start  int
	final  int
}

func newNFA() *NFA {
	n := &NFA{}
	n.start = n.addState()
	return n
}

func (n *NFA) addState() int {
	n.states = append(n.states, nfaState{})
	return len(n.states) - 1
}

func (n *NFA) addArc(from int, label int32, to int) {
	n.states[from].arcs = append(n.states[from].arcs, nfaArc{label: label, to: to})
}

// Basic builds the single-arc fragment matching exactly one label (a
// concrete byte value, Epsilon, or Any).
func Basic(label int32) *NFA {
	n := newNFA()
	f := n.addState()
	n.addArc(n.start, label, f)
	n.states[f].final = true
	n.final = f
	return n
}

// EpsilonNFA matches the empty string.
func EpsilonNFA() *NFA { return Basic(Epsilon) }

// AnyNFA matches exactly one arbitrary byte.
func AnyNFA() *NFA { return Basic(Any) }

// String builds a linear chain of arcs matching exactly the byte
// sequence s.
func String(s []byte) *NFA {
	if len(s) == 0 {
		return EpsilonNFA()
	}
	n := newNFA()
	cur := n.start
	for _, b := range s {
		next := n.addState()
		n.addArc(cur, int32(b), next)
		cur = next
	}
	n.states[cur].final = true
	n.final = cur
	return n
}

// Charset builds a one-step fragment with a parallel arc for every
// label in labels (e.g. a character class).
func Charset(labels []byte) *NFA {
	n := newNFA()
	f := n.addState()
	for _, b := range labels {
		n.addArc(n.start, int32(b), f)
	}
	n.states[f].final = true
	n.final = f
	return n
}

// merge appends b's states onto a, offsetting targets, and returns the
// offset applied to b's state indices.
func (a *NFA) merge(b *NFA) int {
	offset := len(a.states)
	for _, s := range b.states {
		ns := nfaState{final: s.final}
		for _, arc := range s.arcs {
			ns.arcs = append(ns.arcs, nfaArc{label: arc.label, to: arc.to + offset})
		}
		a.states = append(a.states, ns)
	}
	return offset
}

// Choice builds the union a|b: a new initial with epsilon arcs to each
// fragment's start, and a new final reached by epsilon from each
// fragment's final.
func Choice(a, b *NFA) *NFA {
	out := &NFA{}
	out.start = out.addState()
	aOff := out.merge(a)
	bOff := out.merge(b)
	fin := out.addState()
	out.addArc(out.start, Epsilon, a.start+aOff)
	out.addArc(out.start, Epsilon, b.start+bOff)
	out.states[a.final+aOff].final = false
	out.states[b.final+bOff].final = false
	out.addArc(a.final+aOff, Epsilon, fin)
	out.addArc(b.final+bOff, Epsilon, fin)
	out.states[fin].final = true
	out.final = fin
	return out
}

// Concat builds ab: an epsilon arc from a's final to b's start.
func Concat(a, b *NFA) *NFA {
	out := &NFA{}
	out.start = out.addState()
	aOff := out.merge(a)
	bOff := out.merge(b)
	out.addArc(out.start, Epsilon, a.start+aOff)
	out.states[a.final+aOff].final = false
	out.addArc(a.final+aOff, Epsilon, b.start+bOff)
	out.final = b.final + bOff
	out.states[out.final].final = true
	return out
}

// Star builds the Kleene closure a*: a forward epsilon from initial to
// final (to match zero repetitions) and a back epsilon from final to
// initial (to match another repetition).
func Star(a *NFA) *NFA {
	out := &NFA{}
	out.start = out.addState()
	aOff := out.merge(a)
	fin := out.addState()
	out.addArc(out.start, Epsilon, a.start+aOff)
	out.addArc(out.start, Epsilon, fin)
	out.states[a.final+aOff].final = false
	out.addArc(a.final+aOff, Epsilon, fin)
	out.addArc(fin, Epsilon, a.start+aOff)
	out.states[fin].final = true
	out.final = fin
	return out
}

// Plus builds a+ = concat(a, star(a)): one or more repetitions.
func Plus(a *NFA) *NFA { return Concat(a, Star(a)) }

// Optional builds a? = choice(a, epsilon()).
func Optional(a *NFA) *NFA { return Choice(a, EpsilonNFA()) }

// NewNFA returns an empty NFA with no states, for callers that need a
// shape the Thompson-construction primitives above don't express (e.g.
// a Levenshtein automaton's diagonal-band state layout in pkg/fuzzy).
// Build it up with AddState/AddArc, then SetStart.
func NewNFA() *NFA { return &NFA{} }

// AddState appends a new state, initially with no arcs, and returns its
// index.
func (n *NFA) AddState(final bool) int {
	s := n.addState()
	n.states[s].final = final
	return s
}

// AddArc adds a transition from state from to state to on label (a
// concrete byte value, Epsilon, or Any).
func (n *NFA) AddArc(from int, label int32, to int) { n.addArc(from, label, to) }

// SetStart designates s as the NFA's initial state.
func (n *NFA) SetStart(s int) { n.start = s }

// SetFinal marks s as an accepting state.
func (n *NFA) SetFinal(s int) { n.states[s].final = true }
