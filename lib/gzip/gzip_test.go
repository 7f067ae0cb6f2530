// Copyright 2019 The Wuffs Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gzip

import (
	"bytes"
	"io/ioutil"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRoundTrip(t *testing.T) {
	src := []byte(strings.Repeat("the quick brown fox ", 300))
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Name = "fox.txt"
	if _, err := w.Write(src); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.Name != "fox.txt" {
		t.Errorf("Name = %q, want %q", r.Name, "fox.txt")
	}
	got, err := ioutil.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if diff := cmp.Diff(src, got); diff != "" {
		t.Errorf("round trip mismatch (-src +got):\n%s", diff)
	}
}

func TestMultiMemberConcatenation(t *testing.T) {
	var buf bytes.Buffer
	for _, s := range []string{"first member\n", "second member\n", "third member\n"} {
		w := NewWriter(&buf)
		if _, err := w.Write([]byte(s)); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := ioutil.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := "first member\nsecond member\nthird member\n"
	if string(got) != want {
		t.Errorf("concatenated read = %q, want %q", got, want)
	}
}

func TestChecksumMismatchDetected(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if _, err := w.Write([]byte("payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF

	r, err := NewReader(bytes.NewReader(corrupted))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := ioutil.ReadAll(r); err != ErrChecksum {
		t.Errorf("ReadAll: got err %v, want ErrChecksum", err)
	}
}

func TestInvalidMagicRejected(t *testing.T) {
	_, err := NewReader(bytes.NewReader(make([]byte, 10)))
	if err != ErrHeader {
		t.Errorf("NewReader: got err %v, want ErrHeader", err)
	}
}
