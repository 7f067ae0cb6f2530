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

package zlib

import (
	"bytes"
	"io/ioutil"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/flatecore/flatecore/lib/deflate"
)

func TestEmptyInputGolden(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	want := []byte{0x78, 0x9C, 0x03, 0x00, 0x00, 0x00, 0x00, 0x01}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("empty-input zlib stream = % x, want % x", buf.Bytes(), want)
	}
}

func TestRoundTrip(t *testing.T) {
	src := []byte(strings.Repeat("Hello, World! ", 100))
	var buf bytes.Buffer
	w := NewWriter(&buf)
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
	got, err := ioutil.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if diff := cmp.Diff(src, got); diff != "" {
		t.Errorf("round trip mismatch (-src +got):\n%s", diff)
	}
}

func TestRoundTripWithDictionary(t *testing.T) {
	dict := []byte("common preamble text shared by many messages")
	src := []byte("common preamble text shared by many messages, and then some more")

	var buf bytes.Buffer
	w := NewWriterLevel(&buf, deflate.DefaultLevel)
	if err := w.SetDictionary(dict); err != nil {
		t.Fatalf("SetDictionary: %v", err)
	}
	if _, err := w.Write(src); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := &Reader{raw: deflate.NewReader()}
	if err := r.Reset(bytes.NewReader(buf.Bytes()), dict); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	got, err := ioutil.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if diff := cmp.Diff(src, got); diff != "" {
		t.Errorf("round trip with dictionary mismatch (-src +got):\n%s", diff)
	}
}

func TestChecksumMismatchDetected(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if _, err := w.Write([]byte("some data")); err != nil {
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

func TestInvalidHeaderRejected(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte{0x00, 0x00}))
	if err != ErrHeader {
		t.Errorf("NewReader: got err %v, want ErrHeader", err)
	}
}

func TestFlushProducesOutputBeforeClose(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if _, err := w.Write([]byte("partial")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if buf.Len() == 0 {
		t.Errorf("Flush: no output produced before Close")
	}
}
