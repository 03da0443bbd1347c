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

package idxconfig

import "testing"

func TestRequiredString(t *testing.T) {
	obj, err := ReadBytes([]byte(`{"type": "leveldb", "file": "/tmp/x"}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := obj.RequiredString("type"); got != "leveldb" {
		t.Errorf("RequiredString(type) = %q; want leveldb", got)
	}
	if got := obj.RequiredString("file"); got != "/tmp/x" {
		t.Errorf("RequiredString(file) = %q; want /tmp/x", got)
	}
	if err := obj.Validate(); err != nil {
		t.Errorf("Validate() = %v; want nil once every key is read", err)
	}
}

func TestRequiredStringMissing(t *testing.T) {
	obj, err := ReadBytes([]byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	obj.RequiredString("type")
	if err := obj.Validate(); err == nil {
		t.Error("Validate() = nil; want error for missing required key")
	}
}

func TestUnknownKeyRejected(t *testing.T) {
	obj, err := ReadBytes([]byte(`{"type": "mem", "typo": true}`))
	if err != nil {
		t.Fatal(err)
	}
	obj.RequiredString("type")
	if err := obj.Validate(); err == nil {
		t.Error("Validate() = nil; want error for unread key \"typo\"")
	}
}

func TestOptionalDefaults(t *testing.T) {
	obj, err := ReadBytes([]byte(`{"type": "mem"}`))
	if err != nil {
		t.Fatal(err)
	}
	obj.RequiredString("type")
	if got := obj.OptionalBool("strict", false); got != false {
		t.Errorf("OptionalBool(strict, false) = %v; want false", got)
	}
	if got := obj.OptionalInt("cacheSize", 42); got != 42 {
		t.Errorf("OptionalInt(cacheSize, 42) = %d; want 42", got)
	}
	if err := obj.Validate(); err != nil {
		t.Errorf("Validate() = %v; want nil, optional keys don't need to be present", err)
	}
}

func TestNestedObject(t *testing.T) {
	obj, err := ReadBytes([]byte(`{"type": "mem", "options": {"a": 1}}`))
	if err != nil {
		t.Fatal(err)
	}
	obj.RequiredString("type")
	sub := obj.RequiredObject("options")
	sub.RequiredInt("a")
	if err := obj.Validate(); err != nil {
		t.Errorf("Validate() = %v; want nil", err)
	}
}
