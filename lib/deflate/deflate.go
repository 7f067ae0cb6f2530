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

// Package deflate implements the streaming DEFLATE codec engine described
// by RFC 1951: the inflate (decompress) state machine, the inflate-back
// callback-driven variant, the deflate (compress) encoder, and the
// prefix-code table builder they share.
//
// Both the encoder and decoder operate on caller-supplied byte slices
// through the NextIn/NextOut cursor fields of a Reader or Writer, in the
// shape of zlib's z_stream:
// a single Step (or Write/Read pair) call advances as far as it can given
// the bytes currently available and returns, never reading past the given
// input nor writing past the given output. Higher-level, io.Reader/
// io.Writer-shaped wrappers live in the sibling zlib and gzip packages.
package deflate

import "errors"

// Code is the outcome of a single Step call, mirroring zlib's own
// return-code set.
type Code int

const (
	// OK means progress was made; more Step calls may be needed.
	OK Code = iota
	// StreamEnd means the stream finished: the final block was seen (and,
	// for inflate, any trailer verified) or written.
	StreamEnd
	// NeedDict means the decoder requires a preset dictionary. A raw
	// Reader never returns it; lib/zlib reports a missing dictionary as
	// its own ErrDictionary error instead.
	NeedDict
	// BufError means no forward progress is possible without more input
	// or output space. It is not sticky: the caller may retry after
	// supplying more of either.
	BufError
	// DataError means the compressed input is malformed. It is sticky:
	// once set, the Stream refuses further Step calls until Reset.
	DataError
	// MemError means a required allocation failed. Fatal.
	MemError
	// StreamError means the Stream handle itself is misused: nil state,
	// wrong direction, or an invalid parameter.
	StreamError
	// VersionError is returned only from initialization, on ABI/version
	// mismatch. This module has no ABI skew to report, but the code is
	// kept so callers written against zlib's full return-code taxonomy
	// compile unchanged.
	VersionError
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case StreamEnd:
		return "stream end"
	case NeedDict:
		return "need dict"
	case BufError:
		return "buffer error"
	case DataError:
		return "data error"
	case MemError:
		return "memory error"
	case StreamError:
		return "stream error"
	case VersionError:
		return "version error"
	}
	return "unknown deflate code"
}

// Flush selects how eagerly Step should emit pending output, from
// how eagerly Step should emit pending output.
type Flush int

const (
	NoFlush Flush = iota
	PartialFlush
	SyncFlush
	FullFlush
	Block
	Trees
	Finish
)

// Strategy tunes the match finder's behavior.
type Strategy int

const (
	DefaultStrategy Strategy = iota
	Filtered
	HuffmanOnly
	RLE
	Fixed
)

// Level selects the speed/size trade-off. -1 means "use the default".
// 0 means "no compression" (stored blocks only). 1..9 trade speed for
// size.
type Level int

const DefaultLevel Level = -1

// Wrapper selects the outer framing a stream expects to parse or emit.
// lib/zlib and lib/gzip each drive a raw Reader or Writer and handle their own
// framing, so the deflate engine itself only ever runs in WrapperRaw;
// the other values are retained because zlib's wbits parameter defines
// its semantics in terms of them, and InflateBack in particular only
// ever runs raw.
type Wrapper int

const (
	WrapperRaw Wrapper = iota
	WrapperZlib
	WrapperGzip
	WrapperAuto
)

var (
	// ErrStreamError is returned by Writer.SetDictionary once input has
	// already been given.
	ErrStreamError = errors.New("deflate: stream error")
)

// RFC 1951 section 3.2.7: the order in which code-length-code lengths are
// transmitted.
var codeLengthOrder = [19]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

// RFC 1951 section 3.2.5: length and distance base/extra-bits tables.
// Index i of the length tables describes length code 257+i.
var lengthBase = [29]int{
	3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
	35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258,
}
var lengthExtraBits = [29]int{
	0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
	3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0,
}
var distBase = [30]int{
	1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193,
	257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577,
}
var distExtraBits = [30]int{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
	7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
}

const (
	maxCodeBits  = 15  // RFC 1951 section 3.2.2.
	maxLitCodes  = 286 // 0..255 literals, 256 end-of-block, 257..285 lengths.
	maxDistCodes = 30
	maxCLCodes   = 19 // the code-length meta-code.

	minMatchLen = 3
	maxMatchLen = 258
)

// fixedLitLens and fixedDistLens are the canonical fixed Huffman code
// lengths for a Type 1 (static Huffman) block, from RFC 1951 section
// 3.2.6.
func fixedLitLens() [maxLitCodes]uint8 {
	var lens [maxLitCodes]uint8
	i := 0
	for ; i < 144; i++ {
		lens[i] = 8
	}
	for ; i < 256; i++ {
		lens[i] = 9
	}
	for ; i < 280; i++ {
		lens[i] = 7
	}
	for ; i < maxLitCodes; i++ {
		lens[i] = 8
	}
	return lens
}

func fixedDistLens() [maxDistCodes]uint8 {
	var lens [maxDistCodes]uint8
	for i := range lens {
		lens[i] = 5
	}
	return lens
}
