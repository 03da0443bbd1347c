package fsa

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/fathom-index/fathom/pkg/storage"
)

const (
	graphMagic   = "GRPH"
	graphVersion = 1
	// fixedSizeFlag marks the pseudo-arc an emitter inserts when every
	// arc of a node serializes to the same byte width, letting a reader
	// binary-search the arc table instead of scanning it linearly.
	fixedSizeFlag = 0xFF
)

// WriteGraph serializes g to f starting at the current end of file,
// bottom-up (every node is written only after all the nodes its arcs
// target), and returns the offset of the root node. Callers building a
// segment's term dictionary combine this offset with a field name into
// the field-name -> root-offset trailer map that GraphFileWriter writes.
func WriteGraph(f storage.File, g *Graph) (rootOffset int64, err error) {
	offsets := make([]int64, len(g.Nodes))
	order := postOrder(g)
	for _, idx := range order {
		off, err := writeNode(f, g, offsets, idx)
		if err != nil {
			return 0, err
		}
		offsets[idx] = off
	}
	return offsets[g.Root], nil
}

// postOrder returns node indices in an order where every node appears
// after all nodes reachable from its arcs, so that by the time a node
// is emitted, every arc target's file offset is already known — the
// "serialized bottom-up" requirement, independent of how flatten
// happened to number nodes (a shared suffix node can have a lower id
// than a node that references it).
func postOrder(g *Graph) []int32 {
	visited := make([]bool, len(g.Nodes))
	order := make([]int32, 0, len(g.Nodes))
	var visit func(idx int32)
	visit = func(idx int32) {
		if visited[idx] {
			return
		}
		visited[idx] = true
		for _, a := range g.Nodes[idx].Arcs {
			visit(a.Target)
		}
		order = append(order, idx)
	}
	visit(g.Root)
	return order
}

func writeNode(f storage.File, g *Graph, offsets []int64, idx int32) (int64, error) {
	n := &g.Nodes[idx]
	var buf []byte

	encodedArcs := make([][]byte, len(n.Arcs))
	width := -1
	uniform := len(n.Arcs) > 0
	for i, a := range n.Arcs {
		target := offsets[a.Target]
		e := encodeArc(g.Values, a, target)
		encodedArcs[i] = e
		if width == -1 {
			width = len(e)
		} else if len(e) != width {
			uniform = false
		}
	}

	var headerByte byte
	if n.Final {
		headerByte |= 0x01
	}
	buf = append(buf, headerByte)
	if n.Final {
		fo := g.Values.Encode(n.FinalOutput)
		buf = appendUvarint(buf, uint64(len(fo)))
		buf = append(buf, fo...)
	}

	if uniform && len(n.Arcs) > 1 {
		buf = append(buf, fixedSizeFlag)
		buf = appendUvarint(buf, uint64(width))
		buf = appendUvarint(buf, uint64(len(n.Arcs)))
	}
	buf = appendUvarint(buf, uint64(len(n.Arcs)))
	for _, e := range encodedArcs {
		buf = append(buf, e...)
	}

	return f.Append(buf)
}

// encodeArc renders one arc as label, output, target-offset, each
// length-prefixed as needed so a FIXED_SIZE node can be binary searched
// by treating every encoded arc as an opaque fixed-width record.
func encodeArc(values Values, a Arc, targetOffset int64) []byte {
	out := values.Encode(a.Output)
	buf := make([]byte, 0, 1+binary.MaxVarintLen64+len(out)+binary.MaxVarintLen64)
	buf = append(buf, a.Label)
	buf = appendUvarint(buf, uint64(len(out)))
	buf = append(buf, out...)
	buf = appendUvarint(buf, uint64(targetOffset))
	return buf
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// graphHeaderSize covers the fixed file header GraphFileWriter emits:
// the 4-byte magic, a 4-byte version, and the 8-byte trailer offset
// patched in at Close.
const graphHeaderSize = 4 + 4 + 8

// GraphFileWriter writes one or more field dictionaries' graphs into a
// single file: a fixed header, each field's nodes (bottom-up, via
// WriteGraph), and a trailer mapping field name to root offset, whose
// position is patched into the header at Close.
type GraphFileWriter struct {
	f      storage.File
	fields []string
	roots  map[string]int64
	closed bool
}

// NewGraphFileWriter starts a graph file at the current end of f,
// reserving the header slot the trailer offset is patched into later.
func NewGraphFileWriter(f storage.File) (*GraphFileWriter, error) {
	hdr := make([]byte, graphHeaderSize)
	copy(hdr, graphMagic)
	binary.BigEndian.PutUint32(hdr[4:8], graphVersion)
	if _, err := f.Append(hdr); err != nil {
		return nil, err
	}
	return &GraphFileWriter{f: f, roots: make(map[string]int64)}, nil
}

// AddField serializes g as fieldname's dictionary. Adding the same
// field twice replaces the trailer entry; the earlier nodes become
// unreferenced dead bytes.
func (w *GraphFileWriter) AddField(fieldname string, g *Graph) error {
	root, err := WriteGraph(w.f, g)
	if err != nil {
		return err
	}
	if _, ok := w.roots[fieldname]; !ok {
		w.fields = append(w.fields, fieldname)
	}
	w.roots[fieldname] = root
	return nil
}

// Close appends the field-name to root-offset trailer and patches its
// position into the header.
func (w *GraphFileWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	trailerOff, err := w.f.Len()
	if err != nil {
		return err
	}
	buf := appendUvarint(nil, uint64(len(w.fields)))
	for _, name := range w.fields {
		buf = appendUvarint(buf, uint64(len(name)))
		buf = append(buf, name...)
		buf = appendUvarint(buf, uint64(w.roots[name]))
	}
	if _, err := w.f.Append(buf); err != nil {
		return err
	}
	var off [8]byte
	binary.BigEndian.PutUint64(off[:], uint64(trailerOff))
	if _, err := w.f.WriteAt(off[:], 8); err != nil {
		return err
	}
	return w.f.Flush()
}

// GraphFile reads a file written by GraphFileWriter.
type GraphFile struct {
	f      storage.File
	values Values
	roots  map[string]int64
}

// OpenGraphFile validates the header and loads the trailer map.
// values must match the value type the graphs were built with; pass
// nil for graphs built with no output.
func OpenGraphFile(f storage.File, values Values) (*GraphFile, error) {
	if values == nil {
		values = noValues{}
	}
	hdr := make([]byte, graphHeaderSize)
	if _, err := f.ReadAt(hdr, 0); err != nil {
		return nil, err
	}
	if string(hdr[:4]) != graphMagic {
		return nil, fmt.Errorf("fsa: bad graph magic %q", hdr[:4])
	}
	if v := binary.BigEndian.Uint32(hdr[4:8]); v != graphVersion {
		return nil, fmt.Errorf("fsa: unsupported graph version %d", v)
	}
	trailerOff := int64(binary.BigEndian.Uint64(hdr[8:16]))

	pos := trailerOff
	count, n := readUvarintAt(f, pos)
	if n <= 0 {
		return nil, fmt.Errorf("fsa: malformed graph trailer")
	}
	pos += int64(n)
	roots := make(map[string]int64, count)
	for i := uint64(0); i < count; i++ {
		nameLen, n := readUvarintAt(f, pos)
		pos += int64(n)
		name := make([]byte, nameLen)
		if nameLen > 0 {
			if _, err := f.ReadAt(name, pos); err != nil {
				return nil, err
			}
		}
		pos += int64(nameLen)
		root, n := readUvarintAt(f, pos)
		pos += int64(n)
		roots[string(name)] = int64(root)
	}
	return &GraphFile{f: f, values: values, roots: roots}, nil
}

// Fields returns the field names present in the file, sorted.
func (gf *GraphFile) Fields() []string {
	names := make([]string, 0, len(gf.roots))
	for name := range gf.roots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Root returns fieldname's root node offset within the file.
func (gf *GraphFile) Root(fieldname string) (int64, bool) {
	off, ok := gf.roots[fieldname]
	return off, ok
}

// Graph materializes fieldname's dictionary.
func (gf *GraphFile) Graph(fieldname string) (*Graph, error) {
	off, ok := gf.roots[fieldname]
	if !ok {
		return nil, fmt.Errorf("fsa: no graph for field %q", fieldname)
	}
	return ReadGraph(gf.f, off, gf.values)
}

// ReadGraph loads the node reachable from rootOffset (and everything
// beneath it) back into an in-memory Graph. ReadGraph materializes the
// whole reachable subgraph; it is meant for dictionaries that fit
// comfortably in memory, which every per-field term DAG built by this
// module does.
func ReadGraph(f storage.File, rootOffset int64, values Values) (*Graph, error) {
	g := &Graph{Values: values}
	cache := map[int64]int32{}
	var read func(off int64) (int32, error)
	read = func(off int64) (int32, error) {
		if id, ok := cache[off]; ok {
			return id, nil
		}
		node, arcOffsets, err := decodeNode(f, off, values)
		if err != nil {
			return 0, err
		}
		id := int32(len(g.Nodes))
		cache[off] = id
		g.Nodes = append(g.Nodes, Node{Final: node.Final, FinalOutput: node.FinalOutput})
		arcs := make([]Arc, len(node.Arcs))
		for i, a := range node.Arcs {
			targetID, err := read(arcOffsets[i])
			if err != nil {
				return 0, err
			}
			arcs[i] = Arc{Label: a.Label, Output: a.Output, Target: targetID}
		}
		g.Nodes[id].Arcs = arcs
		return id, nil
	}
	rootID, err := read(rootOffset)
	if err != nil {
		return nil, err
	}
	g.Root = rootID
	return g, nil
}

type decodedNode struct {
	Final       bool
	FinalOutput Value
	Arcs        []Arc
}

// decodeNode parses one node at off, returning the node (with Arc.Target
// left as 0) and the parallel slice of target file offsets.
func decodeNode(f storage.File, off int64, values Values) (decodedNode, []int64, error) {
	// There is no node length prefix, so the node is read field by field:
	// single bytes for the flag and labels, readUvarintAt for varints.
	head := make([]byte, 1)
	if _, err := f.ReadAt(head, off); err != nil {
		return decodedNode{}, nil, err
	}
	pos := off + 1
	var node decodedNode
	node.Final = head[0]&0x01 != 0
	if node.Final {
		foLen, n := readUvarintAt(f, pos)
		pos += int64(n)
		fo := make([]byte, foLen)
		if foLen > 0 {
			if _, err := f.ReadAt(fo, pos); err != nil {
				return decodedNode{}, nil, err
			}
		}
		pos += int64(foLen)
		v, _ := values.Decode(fo)
		node.FinalOutput = v
	} else {
		node.FinalOutput = values.Zero()
	}

	peek := make([]byte, 1)
	if _, err := f.ReadAt(peek, pos); err == nil && peek[0] == fixedSizeFlag {
		pos++
		_, n := readUvarintAt(f, pos) // width, unused by this simple reader
		pos += int64(n)
		_, n = readUvarintAt(f, pos) // count, redundant with the count below
		pos += int64(n)
	}

	count, n := readUvarintAt(f, pos)
	pos += int64(n)
	node.Arcs = make([]Arc, count)
	offsets := make([]int64, count)
	for i := uint64(0); i < count; i++ {
		lbl := make([]byte, 1)
		if _, err := f.ReadAt(lbl, pos); err != nil {
			return decodedNode{}, nil, err
		}
		pos++
		outLen, n := readUvarintAt(f, pos)
		pos += int64(n)
		out := make([]byte, outLen)
		if outLen > 0 {
			if _, err := f.ReadAt(out, pos); err != nil {
				return decodedNode{}, nil, err
			}
		}
		pos += int64(outLen)
		v, _ := values.Decode(out)
		target, n := readUvarintAt(f, pos)
		pos += int64(n)
		node.Arcs[i] = Arc{Label: lbl[0], Output: v}
		offsets[i] = int64(target)
	}
	return node, offsets, nil
}

// readUvarintAt decodes a uvarint at off from a single ReadAt of up to
// binary.MaxVarintLen64 bytes, since storage.File has no buffered reader.
func readUvarintAt(f storage.File, off int64) (uint64, int) {
	var buf [binary.MaxVarintLen64]byte
	n, _ := f.ReadAt(buf[:], off)
	v, w := binary.Uvarint(buf[:n])
	return v, w
}
