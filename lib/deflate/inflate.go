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

import "errors"

// ErrDictionary is returned by SetDictionary when called outside of the
// one window in which a raw Stream can accept one: before any block
// header has been parsed.
var ErrDictionary = errors.New("deflate: dictionary set too late")

// state is the raw-DEFLATE decode state machine,
// trimmed to the subset that belongs to the bitstream itself: the outer
// zlib and gzip header/trailer states live in their own packages, each
// driving a Reader that only ever sees WrapperRaw framing.
type state uint8

const (
	stTypeDo state = iota
	stStoredLen
	stCopy
	stTable
	stLenLens
	stCodeLens
	stLen
	stLenExtra
	stDist
	stDistExtra
	stMatch
	stLitEmit
	stDone
	stBad
)

var (
	fixedLitPool  []entry
	fixedLitRoot  int
	fixedDistPool []entry
	fixedDistRoot int
)

// The fixed codes are complete only over 288 literal/length and 32
// distance symbols, so the tables are built over those counts with a
// neutral alphabet and then retagged. Both codes fit their root tables,
// so every entry is a leaf; symbols 286, 287, 30 and 31 decode as
// invalid.
func init() {
	litLens := fixedLitLens()
	distLens := fixedDistLens()
	fixedLitPool, fixedLitRoot, _ = buildTable(append(litLens[:], 8, 8), alphaCodeLength, 9)
	fixedDistPool, fixedDistRoot, _ = buildTable(append(distLens[:], 5, 5), alphaCodeLength, 6)
	retag := func(pool []entry, alphabet uint8, n int) {
		for i, e := range pool {
			if int(e.val) < n {
				pool[i].op, pool[i].val = codeLeaf(alphabet, int(e.val))
			} else {
				pool[i] = entry{op: kindSpecial << opKindShift, bits: e.bits, val: specialInvalid}
			}
		}
	}
	retag(fixedLitPool, alphaLitLen, maxLitCodes)
	retag(fixedDistPool, alphaDist, maxDistCodes)
}

var clExtraBits = [3]uint{2, 3, 7}
var clExtraBase = [3]int{3, 3, 11}

// Reader decodes a raw DEFLATE bitstream, cursor-style: the caller loads
// NextIn/NextOut before every Step and drains NextOut/refills NextIn
// between calls. A Reader never reads past
// NextIn nor writes past NextOut; reaching either boundary before a
// block finishes is not an error; the caller resumes by calling Step
// again with more of one or the other.
type Reader struct {
	NextIn  []byte
	NextOut []byte

	win window
	br  bitReader

	state state
	final bool
	err   error

	// STORED block header and body.
	storedHdrIdx int
	storedHdr    [4]byte
	storedLen    int

	// DYNAMIC block header.
	nlen, ndist, ncode int
	clLens             [maxCLCodes]uint8
	clIdx              int
	clPool             []entry
	clRoot             int

	lensBuf    [maxLitCodes + maxDistCodes]uint8
	lensFilled int
	lensTotal  int
	clPending  int // -1, or 16/17/18 awaiting its extra bits

	litPool  []entry
	litRoot  int
	distPool []entry
	distRoot int

	// Current literal/length/distance token.
	length         int
	lenExtraNeed   uint
	dist           int
	distExtraNeed  uint
	pendingByte    byte

	dictPrimed bool
}

// NewReader returns a Reader ready to decode a new raw DEFLATE stream.
func NewReader() *Reader {
	r := &Reader{}
	r.Reset()
	return r
}

// Reset discards any in-progress stream and prepares r to decode a new
// one from the start.
func (r *Reader) Reset() {
	r.win.reset()
	r.br = bitReader{}
	r.state = stTypeDo
	r.final = false
	r.err = nil
	r.clPending = -1
	r.dictPrimed = false
}

// SetDictionary primes the sliding window with a preset dictionary, as a
// zlib stream's FDICT flag and ID direct its outer wrapper to do before
// the first Step. It is only valid immediately after Reset.
func (r *Reader) SetDictionary(dict []byte) error {
	if r.state != stTypeDo || r.dictPrimed {
		return ErrDictionary
	}
	r.win.init(dict)
	r.dictPrimed = true
	return nil
}

func (r *Reader) refill() { r.NextIn = r.NextIn[r.br.pull(r.NextIn):] }

// fail moves the Reader into its sticky error state.
func (r *Reader) fail(err error) Code {
	r.state = stBad
	r.err = err
	return DataError
}

// Err returns the error that produced the most recent DataError, if any.
func (r *Reader) Err() error { return r.err }

// decodeSymbol attempts to decode one symbol from pool/root against br,
// without consuming any bits unless the full code is available. It is
// safe to call repeatedly across suspensions: on a false return, br is
// untouched.
func decodeSymbol(br *bitReader, pool []entry, root int) (entry, bool) {
	// Bits of the accumulator above count are zero, so the root entry is
	// the right one whenever its own code fits in the bits available.
	e := pool[br.peek(uint(root))]
	if !e.isLink() {
		if !br.need(uint(e.bits)) {
			return entry{}, false
		}
		br.drop(uint(e.bits))
		return e, true
	}
	linkBits := uint(e.op & opLinkMask)
	total := uint(root) + linkBits
	if !br.need(total) {
		return entry{}, false
	}
	idx := int(e.val) + int(br.peek(total)>>uint(root))
	sub := pool[idx]
	br.drop(uint(root) + uint(sub.bits))
	return sub, true
}

// Step advances the decoder as far as NextIn/NextOut allow. flush is
// accepted for contract symmetry with Writer.Step; raw inflate has no
// flush modes of its own to honor.
func (r *Reader) Step(flush Flush) Code {
	_ = flush
	for {
		switch r.state {
		case stBad:
			return DataError
		case stDone:
			// Whole bytes the bit accumulator pulled past the end of the
			// final block go back in front of NextIn, where a wrapper
			// reading its trailer expects them.
			r.br.alignToByte()
			if r.br.count > 0 {
				back := make([]byte, 0, int(r.br.count/8)+len(r.NextIn))
				for r.br.count > 0 {
					back = append(back, byte(r.br.take(8)))
				}
				r.NextIn = append(back, r.NextIn...)
			}
			return StreamEnd

		case stTypeDo:
			r.refill()
			if !r.br.need(3) {
				return BufError
			}
			final := r.br.peek(1) != 0
			typ := (r.br.peek(3) >> 1) & 0x3
			r.br.drop(3)
			r.final = final
			switch typ {
			case 0:
				r.br.alignToByte()
				r.storedHdrIdx = 0
				r.state = stStoredLen
			case 1:
				r.litPool, r.litRoot = fixedLitPool, fixedLitRoot
				r.distPool, r.distRoot = fixedDistPool, fixedDistRoot
				r.state = stLen
			case 2:
				r.state = stTable
			default:
				return r.fail(errors.New("deflate: reserved block type"))
			}

		case stStoredLen:
			for r.storedHdrIdx < 4 {
				r.refill()
				if !r.br.need(8) {
					return BufError
				}
				r.storedHdr[r.storedHdrIdx] = byte(r.br.take(8))
				r.storedHdrIdx++
			}
			length := int(r.storedHdr[0]) | int(r.storedHdr[1])<<8
			nlength := int(r.storedHdr[2]) | int(r.storedHdr[3])<<8
			if length != nlength^0xFFFF {
				return r.fail(errors.New("deflate: stored block length mismatch"))
			}
			r.storedLen = length
			r.state = stCopy

		case stCopy:
			for r.storedLen > 0 {
				if r.br.count >= 8 {
					if len(r.NextOut) == 0 {
						return OK
					}
					b := byte(r.br.take(8))
					r.NextOut[0] = b
					r.NextOut = r.NextOut[1:]
					r.win.putByte(b)
					r.storedLen--
					continue
				}
				if len(r.NextOut) == 0 {
					return OK
				}
				if len(r.NextIn) == 0 {
					return BufError
				}
				n := r.storedLen
				if n > len(r.NextOut) {
					n = len(r.NextOut)
				}
				if n > len(r.NextIn) {
					n = len(r.NextIn)
				}
				copy(r.NextOut[:n], r.NextIn[:n])
				r.win.putSlice(r.NextIn[:n])
				r.NextIn = r.NextIn[n:]
				r.NextOut = r.NextOut[n:]
				r.storedLen -= n
			}
			if r.final {
				r.state = stDone
				continue
			}
			r.state = stTypeDo

		case stTable:
			r.refill()
			if !r.br.need(14) {
				return BufError
			}
			hlit := r.br.peek(5)
			r.br.drop(5)
			hdist := r.br.peek(5)
			r.br.drop(5)
			hclen := r.br.peek(4)
			r.br.drop(4)
			r.nlen = 257 + int(hlit)
			r.ndist = 1 + int(hdist)
			r.ncode = 4 + int(hclen)
			if r.nlen > maxLitCodes || r.ndist > maxDistCodes {
				return r.fail(errors.New("deflate: too many length or distance codes"))
			}
			for i := range r.clLens {
				r.clLens[i] = 0
			}
			r.clIdx = 0
			r.state = stLenLens

		case stLenLens:
			for r.clIdx < r.ncode {
				r.refill()
				if !r.br.need(3) {
					return BufError
				}
				v := r.br.take(3)
				r.clLens[codeLengthOrder[r.clIdx]] = uint8(v)
				r.clIdx++
			}
			pool, root, status := buildTable(r.clLens[:], alphaCodeLength, 7)
			if status == statusOverSubscribed {
				return r.fail(errors.New("deflate: over-subscribed code-length code"))
			}
			if pool == nil {
				return r.fail(errors.New("deflate: incomplete code-length code"))
			}
			r.clPool, r.clRoot = pool, root
			r.lensFilled = 0
			r.lensTotal = r.nlen + r.ndist
			r.clPending = -1
			r.state = stCodeLens

		case stCodeLens:
			if r.lensFilled >= r.lensTotal {
				litLens := r.lensBuf[:r.nlen]
				distLens := r.lensBuf[r.nlen : r.nlen+r.ndist]
				if litLens[256] == 0 {
					return r.fail(errors.New("deflate: no end-of-block code"))
				}
				litPool, litRoot, litStatus := buildTable(litLens, alphaLitLen, 9)
				if litStatus == statusOverSubscribed {
					return r.fail(errors.New("deflate: over-subscribed literal/length code"))
				}
				if litPool == nil {
					return r.fail(errors.New("deflate: incomplete literal/length code"))
				}
				distPool, distRoot, distStatus := buildTable(distLens, alphaDist, 6)
				if distStatus == statusOverSubscribed {
					return r.fail(errors.New("deflate: over-subscribed distance code"))
				}
				if distPool == nil {
					return r.fail(errors.New("deflate: incomplete distance code"))
				}
				r.litPool, r.litRoot = litPool, litRoot
				r.distPool, r.distRoot = distPool, distRoot
				r.state = stLen
				continue
			}
			if r.clPending == -1 {
				r.refill()
				e, ok := decodeSymbol(&r.br, r.clPool, r.clRoot)
				if !ok {
					return BufError
				}
				sym := int(e.val)
				if sym <= 15 {
					r.lensBuf[r.lensFilled] = uint8(sym)
					r.lensFilled++
					continue
				}
				if sym > 18 {
					return r.fail(errors.New("deflate: invalid code-length symbol"))
				}
				r.clPending = sym
			}
			i := r.clPending - 16
			r.refill()
			if !r.br.need(clExtraBits[i]) {
				return BufError
			}
			n := clExtraBase[i] + int(r.br.take(clExtraBits[i]))
			var fill uint8
			if r.clPending == 16 {
				if r.lensFilled == 0 {
					return r.fail(errors.New("deflate: repeat code with no preceding length"))
				}
				fill = r.lensBuf[r.lensFilled-1]
			}
			for j := 0; j < n; j++ {
				if r.lensFilled >= r.lensTotal {
					return r.fail(errors.New("deflate: code-length repeat overruns table"))
				}
				r.lensBuf[r.lensFilled] = fill
				r.lensFilled++
			}
			r.clPending = -1

		case stLen:
			r.refill()
			e, ok := decodeSymbol(&r.br, r.litPool, r.litRoot)
			if !ok {
				return BufError
			}
			switch (e.op >> opKindShift) & opKindMask {
			case kindLiteral:
				r.pendingByte = byte(e.val)
				r.state = stLitEmit
			case kindSpecial:
				if e.val == specialEndOfBlock {
					if r.final {
						r.state = stDone
						continue
					}
					r.state = stTypeDo
				} else {
					return r.fail(errors.New("deflate: invalid literal/length code"))
				}
			default: // kindLength
				r.length = int(e.val)
				r.lenExtraNeed = uint(e.op & opExtraMask)
				r.state = stLenExtra
			}

		case stLenExtra:
			r.refill()
			if !r.br.need(r.lenExtraNeed) {
				return BufError
			}
			if r.lenExtraNeed > 0 {
				r.length += int(r.br.take(r.lenExtraNeed))
			}
			r.state = stDist

		case stDist:
			r.refill()
			e, ok := decodeSymbol(&r.br, r.distPool, r.distRoot)
			if !ok {
				return BufError
			}
			if (e.op>>opKindShift)&opKindMask != kindDist {
				return r.fail(errors.New("deflate: invalid distance code"))
			}
			r.dist = int(e.val)
			r.distExtraNeed = uint(e.op & opExtraMask)
			r.state = stDistExtra

		case stDistExtra:
			r.refill()
			if !r.br.need(r.distExtraNeed) {
				return BufError
			}
			if r.distExtraNeed > 0 {
				r.dist += int(r.br.take(r.distExtraNeed))
			}
			if r.dist > r.win.available() {
				return r.fail(errors.New("deflate: distance too far back"))
			}
			r.state = stMatch

		case stMatch:
			for r.length > 0 {
				if len(r.NextOut) == 0 {
					return OK
				}
				b := r.win.byteBack(r.dist)
				r.NextOut[0] = b
				r.NextOut = r.NextOut[1:]
				r.win.putByte(b)
				r.length--
			}
			r.state = stLen

		case stLitEmit:
			if len(r.NextOut) == 0 {
				return OK
			}
			r.NextOut[0] = r.pendingByte
			r.NextOut = r.NextOut[1:]
			r.win.putByte(r.pendingByte)
			r.state = stLen

		default:
			return r.fail(errors.New("deflate: invalid decoder state"))
		}
	}
}
