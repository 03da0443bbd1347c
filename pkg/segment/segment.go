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
	"errors"
	"fmt"
	"sort"

	"github.com/fathom-index/fathom/pkg/hashkv"
	"github.com/fathom-index/fathom/pkg/idxconfig"
	"github.com/fathom-index/fathom/pkg/postings"
	"github.com/fathom-index/fathom/pkg/storage"
)

// mapHashErr translates a pkg/hashkv sentinel error into the
// equivalent pkg/segment one, so a caller working only against this
// package's readers never needs to import hashkv just to check errors.
func mapHashErr(err error) error {
	if errors.Is(err, hashkv.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// fileSuffix builds the "<segid>.<suffix>" filename used for one of a
// segment's constituent files.
func fileSuffix(segID, suffix string) string {
	return segID + "." + suffix
}

const (
	termsFileSuffix    = "trm"
	postingsFileSuffix = "pst"
	vectorsFileSuffix  = "vps"
	dagFileSuffix      = "dag"
)

func columnFileSuffix(fieldname string) string {
	return fieldname + ".col"
}

func storedFileSuffix() string {
	return "_stored.col"
}

// Segment is the mutable-while-writing, immutable-once-closed handle
// for one segment's file set: the deleted-docs set (the one thing
// still allowed to grow after the writer closes) and the in-memory
// per-field total-length table the per-document writer adds to.
type Segment struct {
	ID  string
	Dir storage.Dir

	deleted map[uint32]struct{}

	// FieldLengths holds, per field, the sum of every document's field
	// length recorded for it by the per-document writer's AddField, used
	// by a scorer to compute average field length without scanning every
	// document's column. It is held in memory only; no segment file
	// stores it.
	FieldLengths map[string]uint64

	docCount uint32
}

// NewSegment returns a fresh, empty Segment ready to be handed to a
// Codec's writer constructors. docCount is filled in as documents are
// written.
func NewSegment(dir storage.Dir, segID string) *Segment {
	return &Segment{
		ID:           segID,
		Dir:          dir,
		deleted:      make(map[uint32]struct{}),
		FieldLengths: make(map[string]uint64),
	}
}

// TermsFile, PostingsFile, VectorsFile, DagFile, StoredFile, and
// FieldColumnFile return the
// filename a Codec component should Create/Open for the corresponding
// part of the segment.
func (s *Segment) TermsFile() string    { return fileSuffix(s.ID, termsFileSuffix) }
func (s *Segment) PostingsFile() string { return fileSuffix(s.ID, postingsFileSuffix) }
func (s *Segment) VectorsFile() string  { return fileSuffix(s.ID, vectorsFileSuffix) }
func (s *Segment) DagFile() string      { return fileSuffix(s.ID, dagFileSuffix) }
func (s *Segment) StoredFile() string   { return fileSuffix(s.ID, storedFileSuffix()) }
func (s *Segment) FieldColumnFile(fieldname string) string {
	return fileSuffix(s.ID, columnFileSuffix(fieldname))
}

// ConstituentFiles returns the filenames of every file a fully
// written segment with this field set owns: the term dictionary,
// posting file, vector posting file, DAG file, stored-field table, and one
// column file per field named in FieldLengths. Suitable as the names
// argument to WriteCompound.
func (s *Segment) ConstituentFiles() []string {
	names := []string{s.TermsFile(), s.PostingsFile(), s.VectorsFile(), s.DagFile(), s.StoredFile()}
	fields := make([]string, 0, len(s.FieldLengths))
	for field := range s.FieldLengths {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		names = append(names, s.FieldColumnFile(field))
	}
	return names
}

// CompoundFile returns the name of the concatenated, TOC-indexed form
// of this segment (see compound.go). The suffix must never collide
// with one of the segment's own constituent files, which "<segid>.seg"
// cannot since no constituent file uses a bare ".seg" suffix.
func (s *Segment) CompoundFile() string { return fileSuffix(s.ID, "seg") }

// DocCount returns the number of documents written to this segment
// (including deleted ones — deletion only marks a doc-id, it does not
// shrink the segment).
func (s *Segment) DocCount() uint32 { return s.docCount }

// MarkDeleted adds docnum to the deleted-docs set. Unlike every other
// part of a closed segment, this set may grow after the writer closes.
func (s *Segment) MarkDeleted(docnum uint32) { s.deleted[docnum] = struct{}{} }

// IsDeleted reports whether docnum has been marked deleted.
func (s *Segment) IsDeleted(docnum uint32) bool {
	_, ok := s.deleted[docnum]
	return ok
}

// DeletedCount returns the number of documents currently marked deleted.
func (s *Segment) DeletedCount() int { return len(s.deleted) }

// DeletedDocs returns the marked doc-ids in ascending order.
func (s *Segment) DeletedDocs() []uint32 {
	out := make([]uint32, 0, len(s.deleted))
	for id := range s.deleted {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Codec bundles the constructors an indexer drives a segment through:
// a per-document writer for stored fields/lengths/vectors, a field
// writer for the sorted (field, term, docnum, weight, value) stream, and
// terms/per-document readers.
type Codec struct {
	// BlockLimit is the number of postings buffered per block before a
	// flush, and InlineLimit the largest single-block list stored
	// directly in a TermInfo. Zero selects pkg/postings' defaults.
	BlockLimit  int
	InlineLimit int
	HashType    byte
	// CompressionThreshold is the section byte length above which a
	// flushed block's ids/values sections are snappy-compressed. Zero
	// selects postings.DefaultCompressionThreshold.
	CompressionThreshold int
}

// NewCodecFromConfig builds a Codec from a JSON config object, e.g.:
//
//	{"blocklimit": 256, "inlinelimit": 1, "hashtype": "crc32", "compressionthreshold": 64}
//
// Every key is optional; an absent "blocklimit"/"inlinelimit"/
// "compressionthreshold" sets the corresponding Codec field to
// pkg/postings' matching Default* constant, and an absent
// "hashtype" selects hashkv.HashCDB, the on-disk default hash-type byte.
func NewCodecFromConfig(conf idxconfig.Obj) (Codec, error) {
	c := Codec{
		BlockLimit:           conf.OptionalInt("blocklimit", postings.DefaultBlockSize),
		InlineLimit:          conf.OptionalInt("inlinelimit", postings.DefaultInlineLimit),
		CompressionThreshold: conf.OptionalInt("compressionthreshold", postings.DefaultCompressionThreshold),
	}
	switch ht := conf.OptionalString("hashtype", "cdb"); ht {
	case "md5":
		c.HashType = byte(hashkv.HashMD5)
	case "crc32":
		c.HashType = byte(hashkv.HashCRC32)
	case "cdb":
		c.HashType = byte(hashkv.HashCDB)
	default:
		return Codec{}, fmt.Errorf("%w: unknown hashtype %q", ErrInvalidValue, ht)
	}
	if err := conf.Validate(); err != nil {
		return Codec{}, err
	}
	return c, nil
}

// PerDocumentWriter opens the stored-field, length, and vector column
// writers for seg.
func (c Codec) PerDocumentWriter(seg *Segment) (*PerDocWriter, error) {
	return newPerDocWriter(c, seg)
}

// PerDocumentReader opens the stored-field, length, and vector column
// readers for seg.
func (c Codec) PerDocumentReader(seg *Segment) (*PerDocReader, error) {
	return newPerDocReader(seg)
}

// FieldWriter opens the term-dictionary writer for seg, consuming
// (field, term, docnum, weight, value) entries sorted by
// (field, term, docnum).
func (c Codec) FieldWriter(seg *Segment) (*FieldWriter, error) {
	return newFieldWriter(c, seg)
}

// TermsReader opens the term-dictionary reader for seg.
func (c Codec) TermsReader(seg *Segment) (*TermsReader, error) {
	return newTermsReader(seg)
}

// validateFieldName guards against filenames that would escape the
// segment's own file set (a stray "/" or "\" in a schema field name).
func validateFieldName(name string) error {
	for i := 0; i < len(name); i++ {
		if name[i] == '/' || name[i] == '\\' {
			return fmt.Errorf("%w: field name %q contains a path separator", ErrInvalidValue, name)
		}
	}
	return nil
}
