/*
Copyright 2011 Google Inc.

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

// Package storage defines the minimal byte-addressable random-access file
// abstraction that the hash table, posting block, and segment codecs are
// built against. The higher-level filesystem/blob storage layer (where
// segment files actually live) is out of scope for this module; Dir and
// File exist only so the codec packages have something concrete to
// compile, test, and be driven through.
package storage

import "io"

// File is a byte-addressable random-access file: read, append,
// write, flush, and length. Implementations need not be safe for
// concurrent use by multiple goroutines; a segment is owned by exactly
// one writer or shared read-only by many readers.
type File interface {
	io.ReaderAt
	io.Closer

	// Append writes p at the current end of the file and returns the
	// offset at which it was written.
	Append(p []byte) (offset int64, err error)

	// Len returns the current length of the file.
	Len() (int64, error)

	// WriteAt patches bytes at an existing offset; used only to rewrite
	// header pointers (e.g. a trailer offset) at close, never to extend
	// the file or overwrite data belonging to a prior write.
	WriteAt(p []byte, off int64) (n int, err error)

	// Flush ensures previously written bytes are durable before the
	// caller reads them back through a different handle (e.g. before
	// handing a just-closed segment to a new reader).
	Flush() error
}

// Dir opens and creates Files by name within some directory-like
// namespace (an OS directory, a compound segment's internal TOC, etc).
type Dir interface {
	// Create creates a new, empty, writable File. It is an error for
	// name to already exist.
	Create(name string) (File, error)

	// Open opens an existing File for reading.
	Open(name string) (File, error)

	// Remove deletes a file by name. Removing a file that is currently
	// open for reading is implementation-defined.
	Remove(name string) error
}
