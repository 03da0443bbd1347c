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
	"flag"
	"fmt"

	"github.com/fathom-index/fathom/pkg/cliutil"
	"github.com/fathom-index/fathom/pkg/postings"
	"github.com/fathom-index/fathom/pkg/segment"
	"github.com/fathom-index/fathom/pkg/storage"
)

type dumpCmd struct {
	dir       string
	segID     string
	field     string
	postings  bool
	varValues bool
}

func init() {
	cliutil.RegisterCommand("dump", func(flags *flag.FlagSet) cliutil.CommandRunner {
		cmd := new(dumpCmd)
		flags.StringVar(&cmd.dir, "dir", ".", "segment directory")
		flags.StringVar(&cmd.segID, "segid", "seg0", "segment id")
		flags.StringVar(&cmd.field, "field", "", "restrict the dump to one field (default: all fields)")
		flags.BoolVar(&cmd.postings, "postings", false, "also print each term's posting list")
		flags.BoolVar(&cmd.varValues, "var-values", false, "posting values are variable length (default: no stored value)")
		return cmd
	})
}

func (c *dumpCmd) Describe() string { return "Dump a segment's term dictionary to stdout." }

func (c *dumpCmd) Usage() {
	cliutil.Errorf("Usage: fathomtool dump -dir=<dir> -segid=<id> [-field=<name>] [-postings]\n")
}

func (c *dumpCmd) Examples() []string {
	return []string{"-dir=/tmp/idx -segid=seg0 -field=body -postings"}
}

func (c *dumpCmd) RunCommand(args []string) error {
	dir := storage.NewOSDir(c.dir)
	seg := segment.NewSegment(dir, c.segID)
	codec := segment.Codec{}

	tr, err := codec.TermsReader(seg)
	if err != nil {
		return fmt.Errorf("opening term dictionary: %w", err)
	}
	defer tr.Close()

	fields := tr.Fields()
	if c.field != "" {
		fields = []string{c.field}
	}

	vf := postings.ValueFormat{}
	if c.varValues {
		vf.Variable = true
	}

	for _, field := range fields {
		terms, err := tr.TermsFrom(field, nil)
		if err != nil {
			return fmt.Errorf("field %q: %w", field, err)
		}
		for _, term := range terms {
			ti, err := tr.TermInfo(field, term)
			if err != nil {
				return fmt.Errorf("field %q term %q: %w", field, term, err)
			}
			fmt.Fprintf(cliutil.Stdout, "%s\t%s\tdf=%d\ttotalWeight=%g\tmaxWeight=%g\tminLen=%d\tmaxLen=%d\tminID=%d\tmaxID=%d\tinlined=%v\n",
				field, term, ti.DocFreq, ti.TotalWeight, ti.MaxWeight, ti.MinLength, ti.MaxLength, ti.MinID, ti.MaxID, ti.Inlined)

			if !c.postings || !ti.HasPostings() {
				continue
			}
			if ti.Inlined {
				ids, weights, values, err := postings.DecodeInline(ti.Inline, vf)
				if err != nil {
					return fmt.Errorf("field %q term %q: decoding inline postings: %w", field, term, err)
				}
				for i, id := range ids {
					fmt.Fprintf(cliutil.Stdout, "\t%d\tweight=%g\tvalue=%q\n", id, weights[i], values[i])
				}
				continue
			}
			pr, err := tr.PostingsReader(ti, vf)
			if err != nil {
				return fmt.Errorf("field %q term %q: opening postings: %w", field, term, err)
			}
			for {
				p, ok, err := pr.Next()
				if err != nil {
					return fmt.Errorf("field %q term %q: reading postings: %w", field, term, err)
				}
				if !ok {
					break
				}
				fmt.Fprintf(cliutil.Stdout, "\t%d\tweight=%g\tvalue=%q\n", p.ID, p.Weight, p.Value)
			}
		}
	}
	return nil
}
