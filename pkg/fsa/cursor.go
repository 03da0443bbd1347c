package fsa

// frame is one entry of a Cursor's arc stack: the node the arc departs
// from, the index of the current arc within that node, and the
// accumulated output up to (but not including) that arc.
type frame struct {
	node    int32
	arcIdx  int
	prefixV Value // accumulated output strictly before this arc
}

// Cursor walks a Graph one arc at a time. Unlike a node-oriented walk,
// a Cursor always rests "on an arc": this is what lets SkipTo and
// Flatten report a key and its accumulated value without a node's
// identity leaking into the API.
type Cursor struct {
	g      *Graph
	frames []frame
	active bool
}

// NewCursor returns a Cursor positioned before the first arc of the
// graph's root node. Call NextArc to enter the automaton.
func NewCursor(g *Graph) *Cursor {
	return &Cursor{g: g, frames: []frame{{node: g.Root, arcIdx: -1, prefixV: g.Values.Zero()}}}
}

func (c *Cursor) top() *frame { return &c.frames[len(c.frames)-1] }

func (c *Cursor) curArc() (*Node, *Arc, bool) {
	f := c.top()
	n := &c.g.Nodes[f.node]
	if f.arcIdx < 0 || f.arcIdx >= len(n.Arcs) {
		return n, nil, false
	}
	return n, &n.Arcs[f.arcIdx], true
}

// Label returns the label of the arc the cursor rests on.
func (c *Cursor) Label() (byte, bool) {
	_, a, ok := c.curArc()
	if !ok {
		return 0, false
	}
	return a.Label, true
}

// Prefix returns the sequence of labels from the root to the current
// arc, inclusive.
func (c *Cursor) Prefix() []byte {
	out := make([]byte, 0, len(c.frames))
	for _, f := range c.frames {
		if f.arcIdx < 0 {
			continue
		}
		n := &c.g.Nodes[f.node]
		out = append(out, n.Arcs[f.arcIdx].Label)
	}
	return out
}

// Value returns the accumulated FST output up to and including the
// current arc.
func (c *Cursor) Value() Value {
	_, a, ok := c.curArc()
	f := c.top()
	if !ok {
		return f.prefixV
	}
	return c.g.Values.Add(f.prefixV, a.Output)
}

// Accept reports whether the state the current arc leads to is final.
func (c *Cursor) Accept() bool {
	_, a, ok := c.curArc()
	if !ok {
		return false
	}
	return c.g.Nodes[a.Target].Final
}

// Stopped reports whether the state the current arc leads to has no
// outgoing arcs (a dictionary leaf).
func (c *Cursor) Stopped() bool {
	_, a, ok := c.curArc()
	if !ok {
		return true
	}
	return len(c.g.Nodes[a.Target].Arcs) == 0
}

// NextArc advances to the next sibling arc, popping frames (moving back
// up toward the root) until a frame with a remaining sibling is found.
// It returns false, leaving the cursor inactive, when the traversal is
// exhausted.
func (c *Cursor) NextArc() bool {
	for len(c.frames) > 0 {
		f := c.top()
		n := &c.g.Nodes[f.node]
		f.arcIdx++
		if f.arcIdx < len(n.Arcs) {
			return true
		}
		c.frames = c.frames[:len(c.frames)-1]
	}
	c.active = false
	return false
}

// Follow descends into the target state of the current arc, pushing a
// new frame so the next NextArc call walks that state's children. It
// fails if the cursor is Stopped.
func (c *Cursor) Follow() bool {
	_, a, ok := c.curArc()
	if !ok {
		return false
	}
	target := &c.g.Nodes[a.Target]
	if len(target.Arcs) == 0 {
		return false
	}
	c.frames = append(c.frames, frame{node: a.Target, arcIdx: -1, prefixV: c.Value()})
	return true
}

// SwitchTo moves the current frame to the sibling arc with the given
// label, used by Find-style exact lookups. It returns false (leaving
// the cursor positioned at the first arc whose label is >= label, or
// past the end) if no arc has that exact label.
func (c *Cursor) SwitchTo(label byte) bool {
	f := c.top()
	n := &c.g.Nodes[f.node]
	lo, hi := 0, len(n.Arcs)
	for lo < hi {
		mid := (lo + hi) / 2
		if n.Arcs[mid].Label < label {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	f.arcIdx = lo
	return lo < len(n.Arcs) && n.Arcs[lo].Label == label
}

// SkipTo follows key label by label from the current position and
// reports whether the whole path exists. It returns false as soon as a
// label is absent; it does not move to the next greater key in that case.
func (c *Cursor) SkipTo(key []byte) (exact bool, err error) {
	for i, label := range key {
		if !c.SwitchTo(label) {
			return false, nil
		}
		if i < len(key)-1 {
			if !c.Follow() {
				return false, nil
			}
		}
	}
	return true, nil
}

// Flatten returns every key of the graph in lexicographic order. It
// always walks from the graph's root; the cursor's current position is
// not taken into account.
func (c *Cursor) Flatten() [][]byte {
	var out [][]byte
	var walk func(node int32, prefix []byte)
	walk = func(node int32, prefix []byte) {
		n := &c.g.Nodes[node]
		if n.Final {
			out = append(out, append([]byte(nil), prefix...))
		}
		for _, a := range n.Arcs {
			walk(a.Target, append(prefix, a.Label))
		}
	}
	walk(c.g.Root, nil)
	return out
}

// FlattenV is Flatten but also returning each key's accumulated value.
func (c *Cursor) FlattenV() ([][]byte, []Value) {
	var keys [][]byte
	var values []Value
	var walk func(node int32, prefix []byte, acc Value)
	walk = func(node int32, prefix []byte, acc Value) {
		n := &c.g.Nodes[node]
		if n.Final {
			keys = append(keys, append([]byte(nil), prefix...))
			values = append(values, c.g.Values.Add(acc, n.FinalOutput))
		}
		for _, a := range n.Arcs {
			walk(a.Target, append(prefix, a.Label), c.g.Values.Add(acc, a.Output))
		}
	}
	walk(c.g.Root, nil, c.g.Values.Zero())
	return keys, values
}
