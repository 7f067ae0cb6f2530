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

import "sort"

// buildLengths turns a symbol frequency table into a set of canonical,
// length-limited (<= maxLen bits) Huffman code lengths, one per symbol.
// Symbols with zero frequency get length 0 (unused).
//
// The tree itself is built with the classic two-queue linear-time
// merge (sort the leaves once, then repeatedly combine the two
// smallest-frequency nodes drawn from either the leaf queue or the
// growing internal-node queue, the latter's frequencies being
// non-decreasing by construction). Lengths exceeding maxLen are then
// redistributed by the reference DEFLATE bit-length-limiting procedure
// (RFC 1951's informative Appendix, as implemented by zlib's
// gen_bitlen/build_tree): clamp overlong leaves to maxLen, then repair
// the resulting Kraft-inequality deficit by repeatedly borrowing one
// leaf from the deepest non-empty shorter level and splitting it across
// maxLen-1/maxLen. The final per-length counts are then handed back out
// to leaves in descending-frequency order, so the most frequent symbols
// get the shortest codes.
func buildLengths(freq []int32, maxLen int) []uint8 {
	lens := make([]uint8, len(freq))

	type leaf struct {
		sym  int
		freq int32
	}
	var leaves []leaf
	for sym, f := range freq {
		if f > 0 {
			leaves = append(leaves, leaf{sym, f})
		}
	}
	n := len(leaves)
	if n == 0 {
		return lens
	}
	if n == 1 {
		lens[leaves[0].sym] = 1
		return lens
	}
	sort.Slice(leaves, func(i, j int) bool {
		if leaves[i].freq != leaves[j].freq {
			return leaves[i].freq < leaves[j].freq
		}
		return leaves[i].sym < leaves[j].sym
	})

	total := 2*n - 1
	freqArr := make([]int64, total)
	parent := make([]int, total)
	for i, lf := range leaves {
		freqArr[i] = int64(lf.freq)
	}

	leafPtr, internPtr, nextIdx := 0, n, n
	pick := func() int {
		if leafPtr < n && (internPtr >= nextIdx || freqArr[leafPtr] <= freqArr[internPtr]) {
			idx := leafPtr
			leafPtr++
			return idx
		}
		idx := internPtr
		internPtr++
		return idx
	}
	for nextIdx < total {
		a, b := pick(), pick()
		freqArr[nextIdx] = freqArr[a] + freqArr[b]
		parent[a] = nextIdx
		parent[b] = nextIdx
		nextIdx++
	}

	depth := make([]int, total)
	for i := total - 2; i >= 0; i-- {
		depth[i] = depth[parent[i]] + 1
	}

	var blCount [maxCodeBits + 1]int
	for i := 0; i < n; i++ {
		d := depth[i]
		if d > maxLen {
			d = maxLen
		}
		blCount[d]++
	}
	// kraft is the Kraft sum in units of 2^-maxLen; a complete code has
	// kraft == 1<<maxLen, and each repair step lowers it by exactly one.
	kraft := 0
	for l := 1; l <= maxLen; l++ {
		kraft += blCount[l] << uint(maxLen-l)
	}
	for kraft > 1<<uint(maxLen) {
		bits := maxLen - 1
		for blCount[bits] == 0 {
			bits--
		}
		blCount[bits]--
		blCount[bits+1] += 2
		blCount[maxLen]--
		kraft--
	}

	li := n - 1
	for l := 1; l <= maxLen; l++ {
		for c := blCount[l]; c > 0; c-- {
			lens[leaves[li].sym] = uint8(l)
			li--
		}
	}
	return lens
}

// generateCodes assigns canonical codes to a set of code lengths, per
// RFC 1951 section 3.2.2, already bit-reversed so that writeBits (which
// emits its argument's low bit first) reproduces DEFLATE's
// most-significant-bit-first Huffman packing.
func generateCodes(lens []uint8, maxLen int) []uint16 {
	var count [maxCodeBits + 1]int
	for _, l := range lens {
		if l > 0 {
			count[l]++
		}
	}
	var nextCode [maxCodeBits + 2]int
	code := 0
	for bits := 1; bits <= maxLen; bits++ {
		code = (code + count[bits-1]) << 1
		nextCode[bits] = code
	}
	codes := make([]uint16, len(lens))
	for sym, l := range lens {
		if l == 0 {
			continue
		}
		c := nextCode[l]
		nextCode[l]++
		codes[sym] = uint16(reverseBits(uint32(c), int(l)))
	}
	return codes
}

// codeLengthsRLE packs a combined literal/length + distance code-length
// vector into the 19-symbol meta-alphabet DEFLATE's dynamic block header
// uses to describe it compactly (RFC 1951 section 3.2.7): runs of 3..6
// repeats of a nonzero length become symbol 16, runs of zero length
// become symbol 17 (3..10 zeros) or 18 (11..138 zeros).
type clToken struct {
	sym   uint8
	extra uint8 // extra-bits value for sym 16/17/18; unused otherwise
}

func codeLengthsRLE(lens []uint8) []clToken {
	var out []clToken
	n := len(lens)
	i := 0
	for i < n {
		v := lens[i]
		run := 1
		for i+run < n && lens[i+run] == v {
			run++
		}
		i += run

		if v == 0 {
			for run > 0 {
				switch {
				case run < 3:
					out = append(out, clToken{sym: 0})
					run--
				case run <= 10:
					out = append(out, clToken{sym: 17, extra: uint8(run - 3)})
					run = 0
				default:
					take := run
					if take > 138 {
						take = 138
					}
					out = append(out, clToken{sym: 18, extra: uint8(take - 11)})
					run -= take
				}
			}
			continue
		}

		out = append(out, clToken{sym: v})
		run--
		for run > 0 {
			if run < 3 {
				out = append(out, clToken{sym: v})
				run--
				continue
			}
			take := run
			if take > 6 {
				take = 6
			}
			out = append(out, clToken{sym: 16, extra: uint8(take - 3)})
			run -= take
		}
	}
	return out
}
