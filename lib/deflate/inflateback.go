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

// InflateBackIn is called to obtain more compressed input. It returns a
// slice of available bytes (which InflateBack will not retain past the
// next call) or a zero-length slice to signal end of input.
type InflateBackIn func() []byte

// InflateBackOut is called with a full (or final, partial) chunk of
// decompressed output. Returning a non-nil error aborts the decode with
// BufError: either callback signaling failure takes this same path.
type InflateBackOut func(chunk []byte) error

// InflateBack is a callback-driven decoder: it reuses a raw Reader's
// Huffman/state-machine logic but, instead of a caller cursor pair, pulls
// input through in and pushes output through out a window's worth at a
// time. It decodes through an internal Reader into a window-sized scratch
// buffer and hands that buffer to out, so each output byte is still
// copied once more than by the Reader alone; output is not written
// straight into a caller-owned window. It accepts raw DEFLATE only;
// wrapper framing is the caller's responsibility.
type InflateBack struct {
	r   *Reader
	in  InflateBackIn
	out InflateBackOut
}

// NewInflateBack returns an InflateBack ready to decode a single raw
// DEFLATE stream, pulling input via in and flushing output via out.
func NewInflateBack(in InflateBackIn, out InflateBackOut) *InflateBack {
	return &InflateBack{r: NewReader(), in: in, out: out}
}

// Run decodes the stream to completion, returning StreamEnd on success,
// DataError on malformed input (Err() holds the reason), or BufError if
// either callback could not supply/accept data. A BufError with Err()
// still nil means a callback failed; a DataError always carries a reason
// through Err().
func (ib *InflateBack) Run() Code {
	scratch := make([]byte, maxWindowSize)
	filled := 0
	for {
		if len(ib.r.NextIn) == 0 {
			chunk := ib.in()
			if len(chunk) == 0 {
				return BufError
			}
			ib.r.NextIn = chunk
		}
		ib.r.NextOut = scratch[filled:]
		code := ib.r.Step(NoFlush)
		filled = len(scratch) - len(ib.r.NextOut)
		if filled > 0 && (filled == len(scratch) || code == StreamEnd || code == DataError) {
			if err := ib.out(scratch[:filled]); err != nil {
				return BufError
			}
			filled = 0
		}
		switch code {
		case StreamEnd, DataError:
			return code
		case OK, BufError:
			// OK with produced==0 and NextIn exhausted means Step wants
			// more input; BufError from Step itself means the same.
			// Either way the loop above refills NextIn and retries.
		}
	}
}

// Err returns the error that produced a DataError return from Run, if
// any.
func (ib *InflateBack) Err() error { return ib.r.Err() }
