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

package cliutil

import (
	"bytes"
	"flag"
	"testing"
)

type fakeCmd struct {
	ran  []string
	fail bool
}

func (c *fakeCmd) Usage() {}
func (c *fakeCmd) RunCommand(args []string) error {
	c.ran = args
	if c.fail {
		return UsageError("bad args")
	}
	return nil
}

func withStderr(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	origErr, origExit := Stderr, Exit
	Stderr = &buf
	Exit = func(int) {}
	t.Cleanup(func() { Stderr, Exit = origErr, origExit })
	return &buf
}

func TestMainDispatchesRegisteredMode(t *testing.T) {
	withStderr(t)
	cmd := &fakeCmd{}
	RegisterCommand("fake-dispatch", func(*flag.FlagSet) CommandRunner { return cmd })

	origArgs := flag.CommandLine
	flag.CommandLine = flag.NewFlagSet("fathomtool", flag.ContinueOnError)
	FlagHelp = flag.Bool("help", false, "print usage")
	FlagVerbose = flag.Bool("verbose", false, "extra debug logging")
	t.Cleanup(func() { flag.CommandLine = origArgs })

	flag.CommandLine.Parse([]string{"fake-dispatch", "a", "b"})
	Main()

	if len(cmd.ran) != 2 || cmd.ran[0] != "a" || cmd.ran[1] != "b" {
		t.Errorf("RunCommand args = %v; want [a b]", cmd.ran)
	}
}

func TestUsageErrorMessage(t *testing.T) {
	err := UsageError("missing -dir")
	if got, want := err.Error(), "Usage error: missing -dir"; got != want {
		t.Errorf("Error() = %q; want %q", got, want)
	}
}
