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

// ----------------

package deflate

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// compress drives w to Finish, returning every byte it ever produced.
func compress(t *testing.T, w *Writer, src []byte) []byte {
	t.Helper()
	var out bytes.Buffer
	in := src
	buf := make([]byte, 17) // deliberately small/odd to exercise BufError retries.
	for {
		if len(in) > 0 {
			n := len(in)
			if n > 5 {
				n = 5
			}
			w.NextIn = append(w.NextIn, in[:n]...)
			in = in[n:]
		}
		w.NextOut = buf
		flush := NoFlush
		if len(in) == 0 {
			flush = Finish
		}
		code := w.Step(flush)
		out.Write(buf[:len(buf)-len(w.NextOut)])
		if code == StreamEnd {
			break
		}
		if code != OK && code != BufError {
			t.Fatalf("Step: unexpected code %v", code)
		}
	}
	return out.Bytes()
}

// decompress drives r over compressed, returning every byte it produced.
func decompress(t *testing.T, r *Reader, compressed []byte) []byte {
	t.Helper()
	var out bytes.Buffer
	in := compressed
	buf := make([]byte, 13)
	for {
		if len(r.NextIn) == 0 && len(in) > 0 {
			n := len(in)
			if n > 7 {
				n = 7
			}
			r.NextIn = in[:n]
			in = in[n:]
		}
		r.NextOut = buf
		code := r.Step(NoFlush)
		out.Write(buf[:len(buf)-len(r.NextOut)])
		switch code {
		case StreamEnd:
			return out.Bytes()
		case DataError:
			t.Fatalf("Step: data error: %v", r.Err())
		case OK, BufError:
			if code == BufError && len(in) == 0 && len(r.NextIn) == 0 {
				t.Fatalf("Step: stuck wanting more input past end of compressed data")
			}
		default:
			t.Fatalf("Step: unexpected code %v", code)
		}
	}
}

func roundTrip(t *testing.T, level Level, strategy Strategy, src []byte) {
	t.Helper()
	w := NewWriter(level, strategy)
	compressed := compress(t, w, src)

	r := NewReader()
	got := decompress(t, r, compressed)
	if diff := cmp.Diff(src, got); diff != "" {
		t.Errorf("round trip mismatch, level %d strategy %d (-src +got):\n%s", level, strategy, diff)
	}
}

func TestRoundTripEmpty(t *testing.T) {
	roundTrip(t, DefaultLevel, DefaultStrategy, nil)
}

func TestRoundTripSmallLiteral(t *testing.T) {
	roundTrip(t, DefaultLevel, DefaultStrategy, []byte("Hello, World!"))
}

func TestRoundTripRepetitive(t *testing.T) {
	src := bytes.Repeat([]byte("abcabcabcabcabcabcabc "), 500)
	for level := Level(0); level <= 9; level++ {
		roundTrip(t, level, DefaultStrategy, src)
	}
}

func TestRoundTripRandom(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	src := make([]byte, 70000)
	rnd.Read(src)
	roundTrip(t, DefaultLevel, DefaultStrategy, src)
}

func TestRoundTripStoreOnly(t *testing.T) {
	src := []byte("incompressible-ish but short, level 0 forces stored blocks")
	roundTrip(t, 0, DefaultStrategy, src)
}

func TestRoundTripAcrossBlockBoundary(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	src := make([]byte, blockByteCap*3+17)
	rnd.Read(src)
	roundTrip(t, 6, DefaultStrategy, src)
}

func TestEmptyInputGolden(t *testing.T) {
	w := NewWriter(DefaultLevel, DefaultStrategy)
	got := compress(t, w, nil)
	want := []byte{0x03, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("empty-input raw deflate = % x, want % x", got, want)
	}
}

func TestStoredBlockLengthMismatch(t *testing.T) {
	// Final stored block (BFINAL=1, BTYPE=00), byte-aligned, LEN=0x0005,
	// NLEN deliberately wrong (should be ^LEN).
	data := []byte{0x01, 0x05, 0x00, 0x00, 0x00}
	r := NewReader()
	r.NextIn = data
	r.NextOut = make([]byte, 16)
	code := r.Step(NoFlush)
	if code != DataError {
		t.Fatalf("Step: got %v, want DataError", code)
	}
	if r.Err() == nil {
		t.Fatalf("Err: got nil, want non-nil")
	}
}

func TestSyncFlushMarker(t *testing.T) {
	buf := make([]byte, 64)
	w := NewWriter(DefaultLevel, DefaultStrategy)
	w.NextIn = []byte("abc")
	w.NextOut = buf
	w.Step(SyncFlush)
	tail := buf[:64-len(w.NextOut)]
	if len(tail) < 4 || !bytes.Equal(tail[len(tail)-4:], []byte{0x00, 0x00, 0xFF, 0xFF}) {
		t.Errorf("sync flush tail = % x, want it to end with 00 00 ff ff", tail)
	}
}

func TestDictionaryRoundTrip(t *testing.T) {
	dict := []byte("the quick brown fox jumps over the lazy dog")
	src := []byte("the quick brown fox jumps over the lazy dog again and again")

	w := NewWriter(DefaultLevel, DefaultStrategy)
	if err := w.SetDictionary(dict); err != nil {
		t.Fatalf("SetDictionary: %v", err)
	}
	compressed := compress(t, w, src)

	r := NewReader()
	if err := r.SetDictionary(dict); err != nil {
		t.Fatalf("SetDictionary: %v", err)
	}
	got := decompress(t, r, compressed)
	if diff := cmp.Diff(src, got); diff != "" {
		t.Errorf("round trip with dictionary mismatch (-src +got):\n%s", diff)
	}
}

func TestInflateBackRoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte("the rain in spain falls mainly on the plain. "), 200)
	w := NewWriter(6, DefaultStrategy)
	compressed := compress(t, w, src)

	pos := 0
	var out bytes.Buffer
	ib := NewInflateBack(
		func() []byte {
			if pos >= len(compressed) {
				return nil
			}
			n := pos + 97
			if n > len(compressed) {
				n = len(compressed)
			}
			chunk := compressed[pos:n]
			pos = n
			return chunk
		},
		func(chunk []byte) error {
			out.Write(chunk)
			return nil
		},
	)
	if code := ib.Run(); code != StreamEnd {
		t.Fatalf("Run: got %v, want StreamEnd (err=%v)", code, ib.Err())
	}
	if diff := cmp.Diff(src, out.Bytes()); diff != "" {
		t.Errorf("inflate-back round trip mismatch (-src +got):\n%s", diff)
	}
}

func TestBoundNeverUndershoots(t *testing.T) {
	for _, n := range []int{0, 1, 100, 65000, 200000} {
		for _, level := range []Level{0, 1, 6, 9} {
			w := NewWriter(level, DefaultStrategy)
			src := make([]byte, n)
			for i := range src {
				src[i] = byte(i)
			}
			got := len(compress(t, w, src))
			if want := Bound(n, level); got > want {
				t.Errorf("Bound(%d, %d) = %d, but actual compressed size was %d", n, level, want, got)
			}
		}
	}
}
