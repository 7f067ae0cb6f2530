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

// blockByteCap bounds how many raw input bytes a single block's tokens
// may cover. It must stay under 65536 so a stored-block fallback's
// 16-bit LEN field can always represent the block's raw span.
const blockByteCap = 65000

var fixedLitCodes []uint16
var fixedDistCodes []uint16

func init() {
	litLens := fixedLitLens()
	distLens := fixedDistLens()
	fixedLitCodes = generateCodes(append(litLens[:], 8, 8), maxCodeBits)
	fixedDistCodes = generateCodes(distLens[:], maxCodeBits)
}

type wToken struct {
	isMatch bool
	lit     byte
	length  int
	dist    int
}

// Writer is the raw-DEFLATE encoder: the mirror image of Reader, driven
// the same cursor way (load NextIn/NextOut, call Step, drain/refill,
// repeat). It buffers whatever of NextIn it has not yet tokenized,
// finds LZ77 matches against it with matcher, and every blockByteCap
// bytes (or on an explicit flush) picks whichever of a stored, fixed-
// Huffman, or dynamic-Huffman encoding of the pending block is smallest
// and emits it - the same three-way comparison zlib's _tr_flush_block
// makes, grounded on the same bit-cost accounting RFC 1951 defines for
// each block type.
type Writer struct {
	NextIn  []byte
	NextOut []byte

	level    int
	strategy Strategy

	m   *matcher
	pos int

	bw      bitWriter
	pending []byte

	blockStart int
	tokens     []wToken
	litFreq    [maxLitCodes]int32
	distFreq   [maxDistCodes]int32

	finishRequested bool
	finished        bool
}

// NewWriter returns a Writer at the given level and strategy, ready to
// encode a new raw DEFLATE stream. A level below -1 is treated as 0 and
// one above 9 as 9.
func NewWriter(level Level, strategy Strategy) *Writer {
	w := &Writer{level: resolveLevel(level), strategy: strategy}
	w.m = newMatcher(w.level)
	return w
}

// Reset discards any in-progress stream and prepares w to encode a new
// one from the start.
func (w *Writer) Reset() {
	lvl, strat := w.level, w.strategy
	*w = Writer{level: lvl, strategy: strat}
	w.m = newMatcher(lvl)
}

// SetDictionary seeds the matcher's history with a preset dictionary, as
// if it had already been compressed and discarded. Only valid before
// any input has been given.
func (w *Writer) SetDictionary(dict []byte) error {
	if len(w.m.data) != 0 {
		return ErrStreamError
	}
	if len(dict) > maxWindowSize {
		dict = dict[len(dict)-maxWindowSize:]
	}
	w.m.data = append(w.m.data, dict...)
	w.pos = len(w.m.data)
	w.blockStart = w.pos
	for i := 0; i+hashSeed <= w.pos; i++ {
		// Hash every position so matches can reach back into the
		// dictionary; the dictionary itself is never tokenized.
		w.m.insert(i)
	}
	return nil
}

// SetParams changes the compression level and strategy mid-stream, as
// zlib's deflateParams does. Like deflateParams, it first flushes
// whatever has already been tokenized as its own block under the old
// configuration, so the new level/strategy only governs blocks started
// after this call.
func (w *Writer) SetParams(level Level, strategy Strategy) {
	if w.pos > w.blockStart || len(w.tokens) > 0 {
		w.flushBlock(false)
	}
	w.level = resolveLevel(level)
	w.strategy = strategy
	w.m.cfg = levelConfigs[w.level]
}

// Tune overrides the match finder's good/lazy/nice/chain parameters
// directly, as zlib's deflateTune does for benchmarking and fine-tuning
// beyond the ten canned levels.
func (w *Writer) Tune(good, lazy, nice, chain int) {
	w.m.cfg.goodLength = good
	w.m.cfg.maxLazy = lazy
	w.m.cfg.niceLength = nice
	w.m.cfg.maxChain = chain
}

// Bound returns a worst-case compressed size for an n-byte input at the
// given level, the way zlib's deflateBound lets a caller size a
// single-shot output buffer without risking BufError. It assumes the
// worst case degenerates to stored blocks (five bytes of header per
// blockByteCap-sized chunk) plus the handful of bytes deflateBound itself
// budgets for the zlib-style framing overhead of a short or empty input.
func Bound(n int, level Level) int {
	if resolveLevel(level) == 0 {
		return n + (n+blockByteCap-1)/blockByteCap*5 + 6
	}
	return n + (n+blockByteCap-1)/blockByteCap*5 + 6 + (n >> 12)
}

func (w *Writer) emitLiteral(b byte) {
	w.tokens = append(w.tokens, wToken{lit: b})
	w.litFreq[b]++
}

func (w *Writer) emitMatch(length, dist int) {
	w.tokens = append(w.tokens, wToken{isMatch: true, length: length, dist: dist})
	sym, _, _ := lengthCodeOf(length)
	w.litFreq[sym]++
	dsym, _, _ := distCodeOf(dist)
	w.distFreq[dsym]++
}

func lengthCodeOf(length int) (sym int, extraBits uint, extraVal uint32) {
	for i := len(lengthBase) - 1; i >= 0; i-- {
		if lengthBase[i] <= length {
			return 257 + i, uint(lengthExtraBits[i]), uint32(length - lengthBase[i])
		}
	}
	return 257, 0, 0
}

func distCodeOf(dist int) (sym int, extraBits uint, extraVal uint32) {
	for i := len(distBase) - 1; i >= 0; i-- {
		if distBase[i] <= dist {
			return i, uint(distExtraBits[i]), uint32(dist - distBase[i])
		}
	}
	return 0, 0, 0
}

// Step advances the encoder as far as NextIn/NextOut allow, per
// zlib's own Flush contract: NoFlush buffers for the best compression,
// SyncFlush/FullFlush additionally force an empty stored block (the
// well-known 00 00 FF FF marker) so a decoder reading up to this point
// can resynchronize, and Finish drains and terminates the stream.
func (w *Writer) Step(flush Flush) Code {
	if flush == Finish {
		w.finishRequested = true
	}
	if len(w.NextIn) > 0 {
		w.m.data = append(w.m.data, w.NextIn...)
		w.NextIn = nil
	}

	limitPos := len(w.m.data)
	if !w.finishRequested && flush == NoFlush {
		limitPos -= maxMatchLen
		if limitPos < 0 {
			limitPos = 0
		}
	}

	matchable := w.strategy != HuffmanOnly && w.strategy != Fixed && w.level > 0
	for w.pos < limitPos {
		length, dist := 0, 0
		if matchable {
			length, dist = w.m.find(w.pos)
			if w.strategy == RLE && dist != 1 {
				length, dist = 0, 0
			}
		}
		w.m.insert(w.pos)

		useMatch := length >= minMatchLen
		if useMatch && w.m.cfg.lazy && length < w.m.cfg.maxLazy && w.pos+1 < limitPos {
			if nextLen, _ := w.m.find(w.pos + 1); nextLen > length {
				useMatch = false
			}
		}

		if useMatch {
			w.emitMatch(length, dist)
			end := w.pos + length
			if end > len(w.m.data) {
				end = len(w.m.data)
			}
			for k := w.pos + 1; k < end; k++ {
				w.m.insert(k)
			}
			w.pos += length
		} else {
			w.emitLiteral(w.m.data[w.pos])
			w.pos++
		}

		if w.pos-w.blockStart >= blockByteCap {
			w.flushBlock(false)
		}
	}

	switch flush {
	case SyncFlush, FullFlush:
		w.flushBlock(false)
		w.emitStoredBlock(false, nil)
	case PartialFlush, Block, Trees:
		w.flushBlock(false)
	case Finish:
		if !w.finished && w.pos >= len(w.m.data) {
			w.flushBlock(true)
			w.bw.alignToByte()
			w.pending = w.bw.flushBytes(w.pending)
			w.finished = true
		}
	}

	n := copy(w.NextOut, w.pending)
	w.NextOut = w.NextOut[n:]
	w.pending = w.pending[n:]

	if w.finished && len(w.pending) == 0 {
		return StreamEnd
	}
	return OK
}

// flushBlock emits the pending token run (possibly empty) as whichever
// of stored/fixed/dynamic Huffman is cheapest, then clears it.
func (w *Writer) flushBlock(final bool) {
	tokens := w.tokens
	raw := w.m.data[w.blockStart:w.pos]

	storedBits := 3 + 32 + 8*len(raw)

	fixedLens := fixedLitLens()
	fixedDLens := fixedDistLens()
	fixedBits := 3 + int(fixedLens[256])
	for _, t := range tokens {
		if t.isMatch {
			sym, extra, _ := lengthCodeOf(t.length)
			dsym, dextra, _ := distCodeOf(t.dist)
			fixedBits += int(fixedLens[sym]) + int(extra) + int(fixedDLens[dsym]) + int(dextra)
		} else {
			fixedBits += int(fixedLens[t.lit])
		}
	}

	litLens, distLens, clLens19, clTokens, nlenTx, ndistTx, ncodeTx := w.buildDynamicTrees(tokens)
	dynamicBits := 3 + 5 + 5 + 4 + 3*ncodeTx
	for _, ct := range clTokens {
		dynamicBits += int(clLens19[ct.sym])
		switch ct.sym {
		case 16:
			dynamicBits += 2
		case 17:
			dynamicBits += 3
		case 18:
			dynamicBits += 7
		}
	}
	dynamicBits += int(litLens[256])
	for _, t := range tokens {
		if t.isMatch {
			sym, extra, _ := lengthCodeOf(t.length)
			dsym, dextra, _ := distCodeOf(t.dist)
			dynamicBits += int(litLens[sym]) + int(extra) + int(distLens[dsym]) + int(dextra)
		} else {
			dynamicBits += int(litLens[t.lit])
		}
	}

	switch {
	case w.level == 0:
		w.emitStoredBlock(final, raw)
	case storedBits <= fixedBits && storedBits <= dynamicBits:
		w.emitStoredBlock(final, raw)
	case w.strategy == Fixed || fixedBits <= dynamicBits:
		w.emitFixedBlock(final, tokens)
	default:
		w.emitDynamicBlock(final, tokens, litLens, distLens, clLens19, clTokens, nlenTx, ndistTx, ncodeTx)
	}

	w.tokens = nil
	for i := range w.litFreq {
		w.litFreq[i] = 0
	}
	for i := range w.distFreq {
		w.distFreq[i] = 0
	}
	w.blockStart = w.pos
}

func (w *Writer) buildDynamicTrees(tokens []wToken) (litLens []uint8, distLens []uint8, clLens19 []uint8, clTokens []clToken, nlenTx, ndistTx, ncodeTx int) {
	nlenTx = 257
	for sym := len(w.litFreq) - 1; sym > 256; sym-- {
		if w.litFreq[sym] > 0 {
			nlenTx = sym + 1
			break
		}
	}
	ndistTx = 1
	for sym := len(w.distFreq) - 1; sym > 0; sym-- {
		if w.distFreq[sym] > 0 {
			ndistTx = sym + 1
			break
		}
	}

	// The end-of-block symbol is always present, even in an empty block.
	freqWithEOB := w.litFreq
	freqWithEOB[256]++
	litLens = buildLengths(freqWithEOB[:nlenTx], maxCodeBits)
	distLens = buildLengths(w.distFreq[:ndistTx], maxCodeBits)

	combined := make([]uint8, 0, nlenTx+ndistTx)
	combined = append(combined, litLens...)
	combined = append(combined, distLens...)
	clTokens = codeLengthsRLE(combined)

	var clFreq [maxCLCodes]int32
	for _, ct := range clTokens {
		clFreq[ct.sym]++
	}
	clLens19 = buildLengths(clFreq[:], 7)

	ncodeTx = 4
	for i := maxCLCodes - 1; i >= 4; i-- {
		if clLens19[codeLengthOrder[i]] != 0 {
			ncodeTx = i + 1
			break
		}
	}
	return
}

func (w *Writer) writeBlockHeader(final bool, btype uint32) {
	v := btype << 1
	if final {
		v |= 1
	}
	w.bw.writeBits(v, 3)
	w.pending = w.bw.flushBytes(w.pending)
}

func (w *Writer) emitStoredBlock(final bool, data []byte) {
	w.writeBlockHeader(final, 0)
	w.bw.alignToByte()
	w.pending = w.bw.flushBytes(w.pending)

	length := len(data)
	nlength := (^uint16(length)) & 0xFFFF
	w.pending = append(w.pending, byte(length), byte(length>>8), byte(nlength), byte(nlength>>8))
	w.pending = append(w.pending, data...)
}

func (w *Writer) emitFixedBlock(final bool, tokens []wToken) {
	w.writeBlockHeader(final, 1)
	for _, t := range tokens {
		if t.isMatch {
			sym, extra, extraVal := lengthCodeOf(t.length)
			dsym, dextra, dextraVal := distCodeOf(t.dist)
			w.bw.writeBits(uint32(fixedLitCodes[sym]), uint(fixedLitLens()[sym]))
			if extra > 0 {
				w.bw.writeBits(extraVal, extra)
			}
			w.bw.writeBits(uint32(fixedDistCodes[dsym]), uint(fixedDistLens()[dsym]))
			if dextra > 0 {
				w.bw.writeBits(dextraVal, dextra)
			}
		} else {
			w.bw.writeBits(uint32(fixedLitCodes[t.lit]), uint(fixedLitLens()[t.lit]))
		}
		w.pending = w.bw.flushBytes(w.pending)
	}
	w.bw.writeBits(uint32(fixedLitCodes[256]), uint(fixedLitLens()[256]))
	w.pending = w.bw.flushBytes(w.pending)
}

func (w *Writer) emitDynamicBlock(final bool, tokens []wToken, litLens, distLens, clLens19 []uint8, clTokens []clToken, nlenTx, ndistTx, ncodeTx int) {
	w.writeBlockHeader(final, 2)
	w.bw.writeBits(uint32(nlenTx-257), 5)
	w.bw.writeBits(uint32(ndistTx-1), 5)
	w.bw.writeBits(uint32(ncodeTx-4), 4)
	for i := 0; i < ncodeTx; i++ {
		w.bw.writeBits(uint32(clLens19[codeLengthOrder[i]]), 3)
		w.pending = w.bw.flushBytes(w.pending)
	}
	w.pending = w.bw.flushBytes(w.pending)

	clCodes := generateCodes(clLens19, 7)
	for _, ct := range clTokens {
		w.bw.writeBits(uint32(clCodes[ct.sym]), uint(clLens19[ct.sym]))
		switch ct.sym {
		case 16:
			w.bw.writeBits(uint32(ct.extra), 2)
		case 17:
			w.bw.writeBits(uint32(ct.extra), 3)
		case 18:
			w.bw.writeBits(uint32(ct.extra), 7)
		}
		w.pending = w.bw.flushBytes(w.pending)
	}

	litCodes := generateCodes(litLens, maxCodeBits)
	distCodes := generateCodes(distLens, maxCodeBits)
	for _, t := range tokens {
		if t.isMatch {
			sym, extra, extraVal := lengthCodeOf(t.length)
			dsym, dextra, dextraVal := distCodeOf(t.dist)
			w.bw.writeBits(uint32(litCodes[sym]), uint(litLens[sym]))
			if extra > 0 {
				w.bw.writeBits(extraVal, extra)
			}
			w.bw.writeBits(uint32(distCodes[dsym]), uint(distLens[dsym]))
			if dextra > 0 {
				w.bw.writeBits(dextraVal, dextra)
			}
		} else {
			w.bw.writeBits(uint32(litCodes[t.lit]), uint(litLens[t.lit]))
		}
		w.pending = w.bw.flushBytes(w.pending)
	}
	w.bw.writeBits(uint32(litCodes[256]), uint(litLens[256]))
	w.pending = w.bw.flushBytes(w.pending)
}
