/*
Copyright 2013 The Camlistore Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package hashkv

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Extras is a small, explicit, self-delimiting ordered key/value
// encoding, exported so segment-level callers (a per-document
// stored-field column, a compound segment's TOC) can reuse it instead
// of inventing their own. Unlike the hash table's internal trailer
// extras (which carries the fixed fieldmap/index-array shape every
// hash file needs), Extras carries only four general-purpose scalar
// kinds.
type Extras []ExtrasEntry

// ExtrasEntry is one named value in an Extras list. Order is
// significant and preserved by EncodeExtras/DecodeExtras: callers that
// want map-like lookup use Extras.Get*, callers that want positional
// access (e.g. a compound TOC's file list) range over the slice
// directly.
type ExtrasEntry struct {
	Name    string
	Kind    ExtrasKind
	Payload []byte
}

// ExtrasKind identifies how an ExtrasEntry's Payload should be
// interpreted.
type ExtrasKind byte

const (
	KindUint64 ExtrasKind = 1
	KindInt64  ExtrasKind = 2
	KindBytes  ExtrasKind = 3
	KindString ExtrasKind = 4
)

// SetUint64 appends (or, if name is already present, replaces) a u64
// entry and returns the updated list.
func (e Extras) SetUint64(name string, v uint64) Extras {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return e.set(name, KindUint64, b[:])
}

// SetInt64 appends or replaces an i64 entry.
func (e Extras) SetInt64(name string, v int64) Extras {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return e.set(name, KindInt64, b[:])
}

// SetBytes appends or replaces a raw-bytes entry.
func (e Extras) SetBytes(name string, v []byte) Extras {
	return e.set(name, KindBytes, append([]byte(nil), v...))
}

// SetString appends or replaces a string entry.
func (e Extras) SetString(name string, v string) Extras {
	return e.set(name, KindString, []byte(v))
}

func (e Extras) set(name string, kind ExtrasKind, payload []byte) Extras {
	for i := range e {
		if e[i].Name == name {
			e[i] = ExtrasEntry{Name: name, Kind: kind, Payload: payload}
			return e
		}
	}
	return append(e, ExtrasEntry{Name: name, Kind: kind, Payload: payload})
}

// Uint64 returns the named entry's value, or ok=false if absent or of
// the wrong kind.
func (e Extras) Uint64(name string) (v uint64, ok bool) {
	ent, ok := e.find(name, KindUint64)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint64(ent.Payload), true
}

// Int64 returns the named entry's value, or ok=false if absent or of
// the wrong kind.
func (e Extras) Int64(name string) (v int64, ok bool) {
	ent, ok := e.find(name, KindInt64)
	if !ok {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(ent.Payload)), true
}

// Bytes returns the named entry's raw payload, or ok=false if absent or
// of the wrong kind.
func (e Extras) Bytes(name string) (v []byte, ok bool) {
	ent, ok := e.find(name, KindBytes)
	if !ok {
		return nil, false
	}
	return ent.Payload, true
}

// String returns the named entry's value, or ok=false if absent or of
// the wrong kind.
func (e Extras) String(name string) (v string, ok bool) {
	ent, ok := e.find(name, KindString)
	if !ok {
		return "", false
	}
	return string(ent.Payload), true
}

func (e Extras) find(name string, kind ExtrasKind) (ExtrasEntry, bool) {
	for _, ent := range e {
		if ent.Name == name && ent.Kind == kind {
			return ent, true
		}
	}
	return ExtrasEntry{}, false
}

// EncodeExtras renders e as: entry-count(u16), then per entry
// namelen(u16) name kind(u8) payloadlen(u32) payload, in list order.
func EncodeExtras(e Extras) ([]byte, error) {
	var buf bytes.Buffer
	if len(e) > 0xFFFF {
		return nil, fmt.Errorf("hashkv: too many Extras entries (%d)", len(e))
	}
	writeU16(&buf, uint16(len(e)))
	for _, ent := range e {
		if len(ent.Name) > 0xFFFF {
			return nil, fmt.Errorf("hashkv: Extras key %q too long", ent.Name)
		}
		writeU16(&buf, uint16(len(ent.Name)))
		buf.WriteString(ent.Name)
		buf.WriteByte(byte(ent.Kind))
		writeU32(&buf, uint32(len(ent.Payload)))
		buf.Write(ent.Payload)
	}
	return buf.Bytes(), nil
}

// DecodeExtras parses the format written by EncodeExtras.
func DecodeExtras(b []byte) (Extras, error) {
	r := bytes.NewReader(b)
	count, err := readU16(r)
	if err != nil {
		return nil, err
	}
	e := make(Extras, 0, count)
	for i := 0; i < int(count); i++ {
		nameLen, err := readU16(r)
		if err != nil {
			return nil, err
		}
		name := make([]byte, nameLen)
		if _, err := readFull(r, name); err != nil {
			return nil, err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		plen, err := readU32(r)
		if err != nil {
			return nil, err
		}
		payload := make([]byte, plen)
		if _, err := readFull(r, payload); err != nil {
			return nil, err
		}
		e = append(e, ExtrasEntry{Name: string(name), Kind: ExtrasKind(kind), Payload: payload})
	}
	return e, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
