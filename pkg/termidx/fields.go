package termidx

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// FieldTable interns field names to small integer ids, so a term
// dictionary key carries a u16 field id instead of repeating the field
// name on every entry.
type FieldTable struct {
	names []string
	ids   map[string]uint16
}

// NewFieldTable returns an empty interning table.
func NewFieldTable() *FieldTable {
	return &FieldTable{ids: make(map[string]uint16)}
}

// Intern returns name's id, assigning the next free id the first time
// name is seen.
func (t *FieldTable) Intern(name string) uint16 {
	if id, ok := t.ids[name]; ok {
		return id
	}
	id := uint16(len(t.names))
	t.names = append(t.names, name)
	t.ids[name] = id
	return id
}

// Name returns the field name for id, or "" if id was never interned.
func (t *FieldTable) Name(id uint16) string {
	if int(id) >= len(t.names) {
		return ""
	}
	return t.names[id]
}

// ID reports the id for name and whether it has been interned.
func (t *FieldTable) ID(name string) (uint16, bool) {
	id, ok := t.ids[name]
	return id, ok
}

// Names returns the interned field names, in id order.
func (t *FieldTable) Names() []string {
	return append([]string(nil), t.names...)
}

// Encode renders the table as a length-prefixed list of names in id
// order, suitable for storing once per segment.
func (t *FieldTable) Encode() []byte {
	var buf []byte
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(t.names)))
	buf = append(buf, tmp[:n]...)
	for _, name := range t.names {
		n := binary.PutUvarint(tmp[:], uint64(len(name)))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, name...)
	}
	return buf
}

// DecodeFieldTable parses a table written by Encode.
func DecodeFieldTable(b []byte) (*FieldTable, error) {
	count, n := binary.Uvarint(b)
	if n <= 0 {
		return nil, fmt.Errorf("termidx: malformed field table count")
	}
	pos := n
	t := NewFieldTable()
	for i := uint64(0); i < count; i++ {
		l, n := binary.Uvarint(b[pos:])
		if n <= 0 {
			return nil, fmt.Errorf("termidx: malformed field table entry")
		}
		pos += n
		if pos+int(l) > len(b) {
			return nil, fmt.Errorf("termidx: truncated field table")
		}
		t.Intern(string(b[pos : pos+int(l)]))
		pos += int(l)
	}
	return t, nil
}

// TermKey builds the (field-id, term-bytes) key a `<segid>.trm` entry
// is stored under, as a single byte slice suitable for the
// fielded ordered hash's per-field Add — the field id need not be
// embedded since FieldedOrderedHashWriter already partitions by field,
// but TermKey is provided for callers (e.g. a compound dictionary
// across segments) that key on a flat (field, term) byte string
// instead.
func TermKey(fieldID uint16, term []byte) []byte {
	buf := make([]byte, 2+len(term))
	binary.BigEndian.PutUint16(buf[:2], fieldID)
	copy(buf[2:], term)
	return buf
}

// SortFieldNames returns a table's field names sorted lexically, used
// when a segment writer wants deterministic field iteration order
// independent of interning order.
func SortFieldNames(t *FieldTable) []string {
	names := t.Names()
	sort.Strings(names)
	return names
}
