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

// Command fathomtool builds and inspects segments of the on-disk index
// core described by this module: point it at a sorted, line-oriented
// postings file to build a segment, or at an existing segment directory
// to dump its term dictionary and posting lists.
package main

import (
	"log"

	"github.com/fathom-index/fathom/pkg/cliutil"
)

func main() {
	log.SetFlags(0)
	cliutil.Main()
}
