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

// Package segment implements a Fathom segment: the on-disk file set
// sharing a segment id (term dictionary, posting file, vector posting
// file, per-field columns), the writer contract that builds one from a
// sorted field stream plus a per-document stream, and the optional
// compound-file post-process that concatenates a segment's files
// behind a single TOC.
package segment

// TODO(fields): the field writer's input tuple still carries doc-num
// -1 as the "spelling-only" sentinel (SpellingOnlyDocNum) rather than
// arriving on a separate stream. Splitting spelling entries out would
// change the upward Codec interface that a query parser/scorer is
// assumed to already target, so it stays a single annotated stream
// here; revisit only alongside a Codec interface version bump.
