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

import "errors"

var (
	// ErrOrderViolation is returned when the field writer's input stream
	// (or the per-document writer's doc-num sequence) arrives out of the
	// required ascending order.
	ErrOrderViolation = errors.New("segment: input arrived out of order")

	// ErrFormatError wraps an unrecognized or corrupt on-disk magic or
	// version, carrying the offending value via %w/errors.Is on the
	// underlying cause when one is available.
	ErrFormatError = errors.New("segment: format error")

	// ErrNotFound is returned by lookups (a term, a stored-field value, a
	// column entry) absent from the segment.
	ErrNotFound = errors.New("segment: not found")

	// ErrInvalidValue is returned when a caller supplies a value the
	// writer contract rejects (e.g. a field value wider than its
	// declared fixed size).
	ErrInvalidValue = errors.New("segment: invalid value")

	// ErrReadPastEnd is returned when a reader is asked to decode past
	// the bounds of the region it was opened on.
	ErrReadPastEnd = errors.New("segment: read past end")
)

// SpellingOnlyDocNum is the field-writer input stream's sentinel
// doc-num: a (field, term, SpellingOnlyDocNum, weight, value) entry
// feeds the term into the dictionary DAG (so fuzzy/wildcard lookups
// can find it) without contributing a posting. Implementations that
// never enable spelling support may simply skip entries carrying it.
const SpellingOnlyDocNum = -1
