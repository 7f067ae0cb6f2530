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

// This file implements an LZ77 match finder:
// a hash-chain index over the last maxWindowSize bytes of input, walked
// lazily (defer committing to a match at position p until position p+1
// has been checked for something strictly longer), exactly as zlib's
// deflate.c longest_match/deflate_slow does. The chain walk is bounded
// by maxChain per level so compression time stays roughly proportional
// to level, and a match at least as long as goodLength shortens the
// chain walk for the remaining positions, matching zlib's per-level
// config table.

const (
	hashBits = 15
	hashSize = 1 << hashBits
	hashMask = hashSize - 1
	hashSeed = 3 // number of bytes folded into the rolling hash.
)

// levelConfig mirrors one row of zlib's configuration_table: how hard
// the matcher should look for matches at a given compression Level.
type levelConfig struct {
	goodLength int // once a match this long is found, shorten the chain search.
	maxLazy    int // stop trying to improve on a match at least this long.
	niceLength int // a match this long ends the search immediately.
	maxChain   int
	lazy       bool // whether to defer a match by one byte to check for a better one.
}

var levelConfigs = [10]levelConfig{
	{0, 0, 0, 0, false},      // level 0: store only, see Writer.
	{4, 4, 8, 4, false},      // 1
	{4, 5, 16, 8, false},     // 2
	{4, 6, 32, 32, false},    // 3
	{4, 4, 16, 16, true},     // 4
	{8, 16, 32, 32, true},    // 5
	{8, 16, 128, 128, true},  // 6 (default)
	{8, 32, 128, 256, true},  // 7
	{32, 128, 258, 1024, true}, // 8
	{32, 258, 258, 4096, true}, // 9
}

func resolveLevel(l Level) int {
	if l == DefaultLevel {
		return 6
	}
	if l < 0 {
		return 0
	}
	if int(l) > 9 {
		return 9
	}
	return int(l)
}

// matcher finds LZ77 matches over a history buffer the caller appends
// to; it never owns the buffer's memory, only the hash chains into it.
type matcher struct {
	cfg levelConfig

	data []byte // all bytes seen so far (literal history + pending block).
	head [hashSize]int32
	prev []int32 // prev[pos & (maxWindowSize-1)] chains to the previous occurrence of the same hash.
}

func newMatcher(level int) *matcher {
	m := &matcher{cfg: levelConfigs[level]}
	for i := range m.head {
		m.head[i] = -1
	}
	m.prev = make([]int32, maxWindowSize)
	return m
}

func hash3(b0, b1, b2 byte) uint32 {
	h := uint32(b0)<<16 | uint32(b1)<<8 | uint32(b2)
	h *= 0x9E3779B1
	return h >> (32 - hashBits)
}

// insert records the hash of data[pos:pos+3] (if in range) into the
// chain table. Callers insert every position they pass over, matched
// or not, so later matches can still find it.
func (m *matcher) insert(pos int) {
	if pos+hashSeed > len(m.data) {
		return
	}
	h := hash3(m.data[pos], m.data[pos+1], m.data[pos+2])
	m.prev[pos&(maxWindowSize-1)] = m.head[h]
	m.head[h] = int32(pos)
}

// find returns the longest match starting at pos, if any, at least
// minMatchLen long and no longer than the bytes actually available.
func (m *matcher) find(pos int) (length, dist int) {
	limit := len(m.data) - pos
	if limit > maxMatchLen {
		limit = maxMatchLen
	}
	if limit < minMatchLen {
		return 0, 0
	}
	h := hash3(m.data[pos], m.data[pos+1], m.data[pos+2])
	cand := m.head[h]
	chain := m.cfg.maxChain
	if chain == 0 {
		chain = 1
	}

	lowest := pos - maxWindowSize
	bestLen := 0
	bestDist := 0
	shortened := false
	for cand >= 0 && int(cand) > lowest && chain > 0 {
		c := int(cand)
		if c != pos {
			l := matchLength(m.data, c, pos, limit)
			if l > bestLen {
				bestLen, bestDist = l, pos-c
				if l >= m.cfg.niceLength || l >= limit {
					break
				}
				if l >= m.cfg.goodLength && !shortened {
					chain /= 2
					shortened = true
				}
			}
		}
		cand = m.prev[c&(maxWindowSize-1)]
		chain--
	}
	if bestLen < minMatchLen {
		return 0, 0
	}
	return bestLen, bestDist
}

func matchLength(data []byte, a, b, limit int) int {
	n := 0
	for n < limit && data[a+n] == data[b+n] {
		n++
	}
	return n
}
