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

package segment

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fathom-index/fathom/pkg/hashkv"
	"github.com/fathom-index/fathom/pkg/storage"
)

// compoundMagic identifies a segment's concatenated, TOC-indexed form:
// every constituent file's bytes placed back to back, followed by a
// hashkv.Extras table-of-contents and a 4-byte length footer pointing
// back at it. This lets a segment be shipped or opened as one file
// without changing any of its readers, which only ever ask a
// storage.Dir to Open a name.
const compoundMagic = "SEGC"

// ErrCompoundReadOnly is returned by every mutating storage.Dir/File
// method on a CompoundDir or the windows it opens: a compound segment
// is produced once, by WriteCompound, from an already-closed set of
// constituent files, never written to incrementally.
var ErrCompoundReadOnly = errors.New("segment: compound segment is read-only")

// WriteCompound concatenates the named files from src into a single
// new file dstName in dst, recording each one's (offset, length) in a
// trailing table of contents.
func WriteCompound(dst storage.Dir, dstName string, src storage.Dir, names []string) error {
	out, err := dst.Create(dstName)
	if err != nil {
		return err
	}
	if _, err := out.Append([]byte(compoundMagic)); err != nil {
		return err
	}

	var toc hashkv.Extras
	for _, name := range names {
		in, err := src.Open(name)
		if err != nil {
			return fmt.Errorf("segment: opening %q for compound: %w", name, err)
		}
		n, err := in.Len()
		if err != nil {
			in.Close()
			return err
		}
		buf := make([]byte, n)
		if n > 0 {
			if _, err := in.ReadAt(buf, 0); err != nil {
				in.Close()
				return fmt.Errorf("segment: reading %q for compound: %w", name, err)
			}
		}
		if err := in.Close(); err != nil {
			return err
		}
		off, err := out.Len()
		if err != nil {
			return err
		}
		if len(buf) > 0 {
			if _, err := out.Append(buf); err != nil {
				return err
			}
		}
		toc = toc.SetUint64(name+"#off", uint64(off))
		toc = toc.SetUint64(name+"#len", uint64(n))
	}

	tocBytes, err := hashkv.EncodeExtras(toc)
	if err != nil {
		return err
	}
	if _, err := out.Append(tocBytes); err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(tocBytes)))
	if _, err := out.Append(lenBuf[:]); err != nil {
		return err
	}
	return out.Flush()
}

// CompoundDir is a read-only storage.Dir backed by a single file
// produced by WriteCompound: Open translates a constituent file's
// name into a byte-range window over the shared underlying file.
type CompoundDir struct {
	f   storage.File
	toc hashkv.Extras
}

// OpenCompound opens a file written by WriteCompound.
func OpenCompound(f storage.File) (*CompoundDir, error) {
	magic := make([]byte, len(compoundMagic))
	if _, err := f.ReadAt(magic, 0); err != nil {
		return nil, err
	}
	if string(magic) != compoundMagic {
		return nil, fmt.Errorf("%w: bad compound magic %q", ErrFormatError, magic)
	}
	fileLen, err := f.Len()
	if err != nil {
		return nil, err
	}
	var lenBuf [4]byte
	if _, err := f.ReadAt(lenBuf[:], fileLen-4); err != nil {
		return nil, err
	}
	tocLen := int64(binary.BigEndian.Uint32(lenBuf[:]))
	tocStart := fileLen - 4 - tocLen
	tocBytes := make([]byte, tocLen)
	if tocLen > 0 {
		if _, err := f.ReadAt(tocBytes, tocStart); err != nil {
			return nil, err
		}
	}
	toc, err := hashkv.DecodeExtras(tocBytes)
	if err != nil {
		return nil, err
	}
	return &CompoundDir{f: f, toc: toc}, nil
}

// Open returns a window over name's bytes within the compound file,
// or ErrNotFound if name was not one of the files WriteCompound
// concatenated.
func (d *CompoundDir) Open(name string) (storage.File, error) {
	off, ok := d.toc.Uint64(name + "#off")
	if !ok {
		return nil, ErrNotFound
	}
	length, _ := d.toc.Uint64(name + "#len")
	return &compoundWindow{f: d.f, base: int64(off), length: int64(length)}, nil
}

// Create and Remove always fail: see ErrCompoundReadOnly.
func (d *CompoundDir) Create(name string) (storage.File, error) { return nil, ErrCompoundReadOnly }
func (d *CompoundDir) Remove(name string) error                 { return ErrCompoundReadOnly }

// compoundWindow is a read-only storage.File over [base, base+length)
// of a shared underlying file.
type compoundWindow struct {
	f      storage.File
	base   int64
	length int64
}

func (w *compoundWindow) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > w.length {
		return 0, ErrReadPastEnd
	}
	return w.f.ReadAt(p, w.base+off)
}

func (w *compoundWindow) Len() (int64, error) { return w.length, nil }

func (w *compoundWindow) Append(p []byte) (int64, error) { return 0, ErrCompoundReadOnly }
func (w *compoundWindow) WriteAt(p []byte, off int64) (int, error) {
	return 0, ErrCompoundReadOnly
}
func (w *compoundWindow) Flush() error { return nil }

// Close is a no-op: a window does not own the underlying shared file.
func (w *compoundWindow) Close() error { return nil }
