package fsa

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/cespare/xxhash/v2"
)

// ErrNotIncreasing is returned by Builder.Insert when a word does not
// strictly follow the previously inserted word, or is empty.
var ErrNotIncreasing = errors.New("fsa: words must be inserted in strictly increasing, non-empty order")

type buildArc struct {
	label  byte
	output Value
	child  *buildNode
}

type buildNode struct {
	seq         uint64 // stable identity for hashing/equality, assigned at creation
	arcs        []buildArc
	final       bool
	finalOutput Value
}

// digest computes a content fingerprint of a frozen node: the sorted
// (arcs, final flag) tuple described in the Daciuk-Mihov register, keyed
// by a 64-bit hash so the dedup table stays flat under a large
// dictionary. Two structurally distinct nodes may collide on digest;
// Builder.freeze falls back to a full equality check against every
// candidate sharing one.
func (n *buildNode) digest(values Values) uint64 {
	var buf bytes.Buffer
	var seqBuf [8]byte
	for _, a := range n.arcs {
		buf.WriteByte(a.label)
		buf.Write(values.ToBytes(a.output))
		binary.BigEndian.PutUint64(seqBuf[:], a.child.seq)
		buf.Write(seqBuf[:])
		buf.WriteByte('|')
	}
	if n.final {
		buf.WriteByte(1)
		buf.Write(values.ToBytes(n.finalOutput))
	}
	return xxhash.Sum64(buf.Bytes())
}

func (n *buildNode) equal(o *buildNode, values Values) bool {
	if n.final != o.final || len(n.arcs) != len(o.arcs) {
		return false
	}
	if n.final && !bytes.Equal(values.ToBytes(n.finalOutput), values.ToBytes(o.finalOutput)) {
		return false
	}
	for i, a := range n.arcs {
		b := o.arcs[i]
		if a.label != b.label || a.child != b.child {
			return false
		}
		if !bytes.Equal(values.ToBytes(a.output), values.ToBytes(b.output)) {
			return false
		}
	}
	return true
}

// Builder constructs a minimal acyclic FST directly from a stream of
// strictly increasing (word, output) pairs, per the Daciuk-Mihov
// incremental algorithm: a stack of uncommitted nodes tracks the
// longest common prefix with the previous word, and nodes are frozen
// (deduplicated against a register of structurally equal nodes already
// seen) as soon as the new word's prefix diverges from them.
type Builder struct {
	values   Values
	register map[uint64][]*buildNode
	stack    []*buildNode // stack[0] is the root
	lastWord []byte
	nextSeq  uint64
}

// NewBuilder returns a Builder whose arc and final outputs use values'
// algebra. Pass nil for an automaton with no output (a plain DFA over
// the term set).
func NewBuilder(values Values) *Builder {
	if values == nil {
		values = noValues{}
	}
	b := &Builder{
		values:   values,
		register: make(map[uint64][]*buildNode),
	}
	b.stack = []*buildNode{b.newNode()}
	return b
}

func (b *Builder) newNode() *buildNode {
	n := &buildNode{seq: b.nextSeq}
	b.nextSeq++
	return n
}

// noValues is used when the caller only wants set membership, not an
// FST output; every operation is a no-op over struct{}.
type noValues struct{}

func (noValues) Zero() Value                  { return struct{}{} }
func (noValues) IsValid(Value) bool           { return true }
func (noValues) Common(Value, Value) Value    { return struct{}{} }
func (noValues) Add(Value, Value) Value       { return struct{}{} }
func (noValues) Subtract(Value, Value) Value  { return struct{}{} }
func (noValues) Merge(Value, Value) Value     { return struct{}{} }
func (noValues) ToBytes(Value) []byte         { return nil }
func (noValues) Encode(Value) []byte          { return nil }
func (noValues) Decode([]byte) (Value, int)   { return struct{}{}, 0 }

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// freeze replaces node with a structurally-equal node already in the
// register, if one exists, else registers it and returns it unchanged.
func (b *Builder) freeze(node *buildNode) *buildNode {
	d := node.digest(b.values)
	for _, cand := range b.register[d] {
		if cand.equal(node, b.values) {
			return cand
		}
	}
	b.register[d] = append(b.register[d], node)
	return node
}

// Insert adds word with output to the automaton. word must be strictly
// greater than the previously inserted word (by byte-lexicographic
// order) and non-empty.
func (b *Builder) Insert(word []byte, output Value) error {
	if len(word) == 0 || bytes.Compare(word, b.lastWord) <= 0 {
		return ErrNotIncreasing
	}

	prefixLen := commonPrefixLen(word, b.lastWord)
	// Freeze every node beyond the shared prefix: its suffix of the
	// previous word is now fully determined and will never gain
	// another sibling arc.
	for i := len(b.stack) - 1; i > prefixLen; i-- {
		frozen := b.freeze(b.stack[i])
		parent := b.stack[i-1]
		parent.arcs[len(parent.arcs)-1].child = frozen
	}
	b.stack = b.stack[:prefixLen+1]

	// Push common output up through the shared-prefix arcs, factoring
	// a common value fragment out of sibling arcs instead of repeating
	// it on every one.
	remaining := output
	for i := 1; i <= prefixLen; i++ {
		parent := b.stack[i-1]
		arc := &parent.arcs[len(parent.arcs)-1]
		common := b.values.Common(arc.output, remaining)
		residual := b.values.Subtract(arc.output, common)
		arc.output = common
		remaining = b.values.Subtract(remaining, common)
		if !isZero(b.values, residual) {
			pushDown(b.values, b.stack[i], residual)
		}
	}

	// Extend the stack with fresh nodes for the residual suffix.
	for i := prefixLen; i < len(word); i++ {
		parent := b.stack[len(b.stack)-1]
		child := b.newNode()
		arcOut := remaining
		if i > prefixLen {
			arcOut = b.values.Zero()
		}
		parent.arcs = append(parent.arcs, buildArc{label: word[i], output: arcOut, child: child})
		b.stack = append(b.stack, child)
		if i > prefixLen {
			remaining = b.values.Zero()
		}
	}

	leaf := b.stack[len(b.stack)-1]
	leaf.final = true
	leaf.finalOutput = b.values.Zero()

	b.lastWord = append(b.lastWord[:0], word...)
	return nil
}

// pushDown adds residual (as an output prefix) onto every arc leaving
// node, and onto node's final output if node is itself final, the
// second half of hoisting a common output fragment onto a shared arc.
func pushDown(values Values, node *buildNode, residual Value) {
	for i := range node.arcs {
		node.arcs[i].output = values.Add(residual, node.arcs[i].output)
	}
	if node.final {
		node.finalOutput = values.Add(residual, node.finalOutput)
	}
}

func isZero(values Values, v Value) bool {
	return bytes.Equal(values.ToBytes(v), values.ToBytes(values.Zero()))
}

// Finish freezes every remaining uncommitted node and returns the
// completed graph. The Builder must not be used afterward.
func (b *Builder) Finish() (*Graph, error) {
	for i := len(b.stack) - 1; i > 0; i-- {
		frozen := b.freeze(b.stack[i])
		parent := b.stack[i-1]
		if len(parent.arcs) > 0 {
			parent.arcs[len(parent.arcs)-1].child = frozen
		}
	}
	root := b.freeze(b.stack[0])
	return flatten(root, b.values)
}

// flatten assigns stable integer ids to every distinct node reachable
// from root (structurally-equal nodes have already collapsed to a
// single pointer by the register, so pointer identity is exact here)
// and renders them into the Graph representation used by the cursor
// and on-disk serializer.
func flatten(root *buildNode, values Values) (*Graph, error) {
	ids := map[*buildNode]int32{}
	var order []*buildNode
	var visit func(n *buildNode)
	visit = func(n *buildNode) {
		if _, ok := ids[n]; ok {
			return
		}
		ids[n] = int32(len(order))
		order = append(order, n)
		for _, a := range n.arcs {
			visit(a.child)
		}
	}
	visit(root)

	g := &Graph{Values: values, Root: ids[root]}
	g.Nodes = make([]Node, len(order))
	for i, n := range order {
		gn := Node{Final: n.final, FinalOutput: n.finalOutput}
		for _, a := range n.arcs {
			gn.Arcs = append(gn.Arcs, Arc{Label: a.label, Output: a.output, Target: ids[a.child]})
		}
		g.Nodes[i] = gn
	}
	return g, nil
}

// Node is one state of a flattened Graph: its final status, final
// output, and outgoing arcs in ascending label order.
type Node struct {
	Arcs        []Arc
	Final       bool
	FinalOutput Value
}

// Arc is one transition of a flattened Graph.
type Arc struct {
	Label  byte
	Output Value
	Target int32
}

// Graph is a complete, immutable automaton/transducer ready for
// traversal (via Cursor) or on-disk serialization.
type Graph struct {
	Nodes  []Node
	Root   int32
	Values Values
}

// Accepts reports whether word is in the automaton's language.
func (g *Graph) Accepts(word []byte) bool {
	_, ok := g.Lookup(word)
	return ok
}

// Lookup returns the accumulated output for word, if present.
func (g *Graph) Lookup(word []byte) (Value, bool) {
	cur := g.Root
	out := g.Values.Zero()
	for _, b := range word {
		node := &g.Nodes[cur]
		i, ok := findArc(node, b)
		if !ok {
			return nil, false
		}
		arc := node.Arcs[i]
		out = g.Values.Add(out, arc.Output)
		cur = arc.Target
	}
	node := &g.Nodes[cur]
	if !node.Final {
		return nil, false
	}
	return g.Values.Add(out, node.FinalOutput), true
}

func findArc(n *Node, label byte) (int, bool) {
	lo, hi := 0, len(n.Arcs)
	for lo < hi {
		mid := (lo + hi) / 2
		if n.Arcs[mid].Label < label {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(n.Arcs) && n.Arcs[lo].Label == label {
		return lo, true
	}
	return 0, false
}
