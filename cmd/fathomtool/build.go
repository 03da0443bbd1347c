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

package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fathom-index/fathom/pkg/cliutil"
	"github.com/fathom-index/fathom/pkg/segment"
	"github.com/fathom-index/fathom/pkg/storage"
)

type buildCmd struct {
	postings string
	docs     string
	dir      string
	segID    string
}

func init() {
	cliutil.RegisterCommand("build", func(flags *flag.FlagSet) cliutil.CommandRunner {
		cmd := new(buildCmd)
		flags.StringVar(&cmd.postings, "postings", "", "path to a tab-separated postings file, lines sorted by (field, term, docnum): field\\tterm\\tdocnum\\tweight\\tvalue\\tlength")
		flags.StringVar(&cmd.docs, "docs", "", "optional path to a tab-separated per-document file, lines sorted by docnum: docnum\\tfield\\tlength\\tstored (stored may be \"-\")")
		flags.StringVar(&cmd.dir, "dir", ".", "segment directory")
		flags.StringVar(&cmd.segID, "segid", "seg0", "segment id")
		return cmd
	})
}

func (c *buildCmd) Describe() string { return "Build a segment from sorted postings/doc files." }

func (c *buildCmd) Usage() {
	cliutil.Errorf("Usage: fathomtool build -postings=<file> [-docs=<file>] -dir=<dir> -segid=<id>\n")
}

func (c *buildCmd) Examples() []string {
	return []string{"-postings=postings.tsv -dir=/tmp/idx -segid=seg0"}
}

func (c *buildCmd) RunCommand(args []string) error {
	if c.postings == "" {
		return cliutil.UsageError("-postings is required")
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	dir := storage.NewOSDir(c.dir)
	seg := segment.NewSegment(dir, c.segID)
	codec := segment.Codec{}

	if c.docs != "" {
		if err := buildDocs(codec, seg, c.docs); err != nil {
			return fmt.Errorf("building per-document data: %w", err)
		}
	}
	n, err := buildPostings(codec, seg, c.postings)
	if err != nil {
		return fmt.Errorf("building term dictionary: %w", err)
	}
	fmt.Fprintf(cliutil.Stdout, "wrote segment %q in %s: %d postings across %s\n", c.segID, c.dir, n, seg.TermsFile())
	return nil
}

// buildPostings drives segment.FieldWriter over postings, a tab
// separated stream of (field, term, docnum, weight, value, length)
// sorted by (field, term, docnum). docnum may be -1
// (segment.SpellingOnlyDocNum) to register a term with no posting.
func buildPostings(codec segment.Codec, seg *segment.Segment, postingsPath string) (int, error) {
	f, err := os.Open(postingsPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	fw, err := codec.FieldWriter(seg)
	if err != nil {
		return 0, err
	}

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) != 6 {
			return n, fmt.Errorf("postings line %d: want 6 tab-separated fields, got %d", lineNo, len(parts))
		}
		field, term := parts[0], []byte(parts[1])
		docnum, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return n, fmt.Errorf("postings line %d: bad docnum: %w", lineNo, err)
		}
		weight64, err := strconv.ParseFloat(parts[3], 32)
		if err != nil {
			return n, fmt.Errorf("postings line %d: bad weight: %w", lineNo, err)
		}
		value := valueOrEmpty(parts[4])
		length, err := strconv.Atoi(parts[5])
		if err != nil {
			return n, fmt.Errorf("postings line %d: bad length: %w", lineNo, err)
		}
		if err := fw.Add(field, term, docnum, float32(weight64), value, length); err != nil {
			return n, fmt.Errorf("postings line %d: %w", lineNo, err)
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, err
	}
	return n, fw.Close()
}

// buildDocs drives segment.PerDocWriter over a tab-separated stream of
// (docnum, field, length, stored) lines sorted by docnum; stored is "-"
// for "not stored", else the literal stored bytes.
func buildDocs(codec segment.Codec, seg *segment.Segment, docsPath string) error {
	f, err := os.Open(docsPath)
	if err != nil {
		return err
	}
	defer f.Close()

	pw, err := codec.PerDocumentWriter(seg)
	if err != nil {
		return err
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	curDoc := int64(-1)
	docOpen := false
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) != 4 {
			return fmt.Errorf("docs line %d: want 4 tab-separated fields, got %d", lineNo, len(parts))
		}
		docnum, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return fmt.Errorf("docs line %d: bad docnum: %w", lineNo, err)
		}
		if int64(docnum) != curDoc {
			if docOpen {
				if err := pw.FinishDoc(); err != nil {
					return err
				}
			}
			if err := pw.StartDoc(uint32(docnum)); err != nil {
				return err
			}
			curDoc, docOpen = int64(docnum), true
		}
		field := parts[1]
		length, err := strconv.Atoi(parts[2])
		if err != nil {
			return fmt.Errorf("docs line %d: bad length: %w", lineNo, err)
		}
		stored := valueOrEmpty(parts[3])
		if err := pw.AddField(field, length, stored); err != nil {
			return fmt.Errorf("docs line %d: %w", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if docOpen {
		if err := pw.FinishDoc(); err != nil {
			return err
		}
	}
	return pw.Close()
}

func valueOrEmpty(s string) []byte {
	if s == "-" {
		return nil
	}
	return []byte(s)
}
