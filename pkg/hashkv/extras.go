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

// extras is the small, explicit, self-delimiting trailer map written at
// close of every hash file. It replaces the reference implementation's
// pickled extras dict: the set of value kinds it can carry is closed and
// versioned by this file, not by whatever a pickler happened to see.
type extras map[string]interface{}

// fieldRegion is the value type stored per field name by a fielded
// ordered hash: the byte range it occupies, and the shape of its
// position index.
type fieldRegion struct {
	start     uint64
	indexOff  uint64
	indexLen  uint32
	indexCode byte // 'B', 'H', 'I', or 'Q'
}

const (
	kindUint64   = 1
	kindBytes    = 2
	kindFieldmap = 3
)

// encodeExtras serializes e as: entry-count(u16), then per entry
// namelen(u16) name kind(u8) payload.
func encodeExtras(e extras) ([]byte, error) {
	var buf bytes.Buffer
	if len(e) > 0xFFFF {
		return nil, fmt.Errorf("hashkv: too many extras entries (%d)", len(e))
	}
	writeU16(&buf, uint16(len(e)))
	for name, val := range e {
		if len(name) > 0xFFFF {
			return nil, fmt.Errorf("hashkv: extras key %q too long", name)
		}
		writeU16(&buf, uint16(len(name)))
		buf.WriteString(name)
		switch v := val.(type) {
		case uint64:
			buf.WriteByte(kindUint64)
			writeU64(&buf, v)
		case []byte:
			buf.WriteByte(kindBytes)
			writeU32(&buf, uint32(len(v)))
			buf.Write(v)
		case map[string]fieldRegion:
			buf.WriteByte(kindFieldmap)
			if err := encodeFieldmap(&buf, v); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("hashkv: extras value for %q has unsupported type %T", name, val)
		}
	}
	return buf.Bytes(), nil
}

func encodeFieldmap(buf *bytes.Buffer, m map[string]fieldRegion) error {
	if len(m) > 0xFFFF {
		return fmt.Errorf("hashkv: too many fields in fieldmap (%d)", len(m))
	}
	writeU16(buf, uint16(len(m)))
	for name, r := range m {
		if len(name) > 0xFFFF {
			return fmt.Errorf("hashkv: field name %q too long", name)
		}
		writeU16(buf, uint16(len(name)))
		buf.WriteString(name)
		writeU64(buf, r.start)
		writeU64(buf, r.indexOff)
		writeU32(buf, r.indexLen)
		buf.WriteByte(r.indexCode)
	}
	return nil
}

// decodeExtras parses the format written by encodeExtras.
func decodeExtras(b []byte) (extras, error) {
	r := bytes.NewReader(b)
	count, err := readU16(r)
	if err != nil {
		return nil, err
	}
	e := make(extras, count)
	for i := 0; i < int(count); i++ {
		nameLen, err := readU16(r)
		if err != nil {
			return nil, err
		}
		name := make([]byte, nameLen)
		if _, err := r.Read(name); err != nil {
			return nil, err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		switch kind {
		case kindUint64:
			v, err := readU64(r)
			if err != nil {
				return nil, err
			}
			e[string(name)] = v
		case kindBytes:
			n, err := readU32(r)
			if err != nil {
				return nil, err
			}
			v := make([]byte, n)
			if _, err := r.Read(v); err != nil {
				return nil, err
			}
			e[string(name)] = v
		case kindFieldmap:
			m, err := decodeFieldmap(r)
			if err != nil {
				return nil, err
			}
			e[string(name)] = m
		default:
			return nil, fmt.Errorf("hashkv: unknown extras value kind %d for %q", kind, name)
		}
	}
	return e, nil
}

// decodeLegacyExtras parses the extras tail of a "HASH"-magic file: a flat
// entry-count(u16), then per entry namelen(u16) name vallen(u32) value,
// with no kind byte — every value is raw bytes, since the legacy format
// predates typed uint64/fieldmap entries.
func decodeLegacyExtras(b []byte) (extras, error) {
	r := bytes.NewReader(b)
	count, err := readU16(r)
	if err != nil {
		return nil, err
	}
	e := make(extras, count)
	for i := 0; i < int(count); i++ {
		nameLen, err := readU16(r)
		if err != nil {
			return nil, err
		}
		name := make([]byte, nameLen)
		if _, err := r.Read(name); err != nil {
			return nil, err
		}
		valLen, err := readU32(r)
		if err != nil {
			return nil, err
		}
		v := make([]byte, valLen)
		if _, err := r.Read(v); err != nil {
			return nil, err
		}
		e[string(name)] = v
	}
	return e, nil
}

func decodeFieldmap(r *bytes.Reader) (map[string]fieldRegion, error) {
	count, err := readU16(r)
	if err != nil {
		return nil, err
	}
	m := make(map[string]fieldRegion, count)
	for i := 0; i < int(count); i++ {
		nameLen, err := readU16(r)
		if err != nil {
			return nil, err
		}
		name := make([]byte, nameLen)
		if _, err := r.Read(name); err != nil {
			return nil, err
		}
		start, err := readU64(r)
		if err != nil {
			return nil, err
		}
		indexOff, err := readU64(r)
		if err != nil {
			return nil, err
		}
		indexLen, err := readU32(r)
		if err != nil {
			return nil, err
		}
		code, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		m[string(name)] = fieldRegion{start: start, indexOff: indexOff, indexLen: indexLen, indexCode: code}
	}
	return m, nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readU16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}
