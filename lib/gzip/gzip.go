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

// Package gzip implements the RFC 1952 gzip wire format: a ten-byte
// header with optional EXTRA/NAME/COMMENT/HCRC fields, a raw DEFLATE
// stream, and an eight-byte, little-endian CRC-32 + ISIZE trailer. A
// Reader transparently concatenates consecutive members, the behavior
// real-world gzip tools (and gunzip) expect of multi-member archives.
package gzip

import (
	"bufio"
	"errors"
	"io"
	"time"

	"github.com/flatecore/flatecore/lib/checksum/crc32"
	"github.com/flatecore/flatecore/lib/compression"
	"github.com/flatecore/flatecore/lib/deflate"
)

// levelFromCompression maps the codec-agnostic compression.Level onto
// gzip's 0..9 scale via piecewise linear interpolation.
func levelFromCompression(l compression.Level) deflate.Level {
	return deflate.Level(l.Interpolate(1, 2, 6, 9, 9))
}

const (
	gzipID1   = 0x1F
	gzipID2   = 0x8B
	cmDeflate = 8

	flagText    = 1 << 0
	flagHCRC    = 1 << 1
	flagExtra   = 1 << 2
	flagName    = 1 << 3
	flagComment = 1 << 4
)

var (
	ErrHeader   = errors.New("gzip: invalid header")
	ErrChecksum = errors.New("gzip: checksum mismatch")
)

var (
	_ compression.Reader = (*Reader)(nil)
	_ compression.Writer = (*Writer)(nil)
)

// Header carries a gzip member's optional metadata, mirroring the
// fields RFC 1952 section 2.3 defines.
type Header struct {
	Name     string
	Comment  string
	Extra    []byte
	ModTime  time.Time
	OS       byte
	Compiler uint8 // XFL: best-compression (2) or fastest (4) hint, 0 if unset.
}

// Reader decompresses a gzip stream, advancing to the next concatenated
// member automatically when one ends.
type Reader struct {
	src *bufio.Reader
	raw *deflate.Reader
	sum crc32.Checksum
	n   uint32 // bytes produced by the current member, mod 2^32.

	Header
	memberDone bool
	streamDone bool
}

// NewReader parses the first member's header and returns a Reader ready
// to decompress it (and any members that follow).
func NewReader(r io.Reader) (*Reader, error) {
	z := &Reader{src: bufio.NewReader(r), raw: deflate.NewReader()}
	if err := z.readMemberHeader(); err != nil {
		return nil, err
	}
	return z, nil
}

func (z *Reader) readMemberHeader() error {
	var hdr [10]byte
	if _, err := io.ReadFull(z.src, hdr[:]); err != nil {
		return ErrHeader
	}
	if hdr[0] != gzipID1 || hdr[1] != gzipID2 || hdr[2] != cmDeflate {
		return ErrHeader
	}
	flg := hdr[3]
	z.Header = Header{
		ModTime:  time.Unix(int64(uint32(hdr[4])|uint32(hdr[5])<<8|uint32(hdr[6])<<16|uint32(hdr[7])<<24), 0),
		Compiler: hdr[8],
		OS:       hdr[9],
	}

	if flg&flagExtra != 0 {
		var lenBuf [2]byte
		if _, err := io.ReadFull(z.src, lenBuf[:]); err != nil {
			return ErrHeader
		}
		n := int(lenBuf[0]) | int(lenBuf[1])<<8
		extra := make([]byte, n)
		if _, err := io.ReadFull(z.src, extra); err != nil {
			return ErrHeader
		}
		z.Extra = extra
	}
	if flg&flagName != 0 {
		s, err := z.src.ReadString(0)
		if err != nil {
			return ErrHeader
		}
		z.Name = s[:len(s)-1]
	}
	if flg&flagComment != 0 {
		s, err := z.src.ReadString(0)
		if err != nil {
			return ErrHeader
		}
		z.Comment = s[:len(s)-1]
	}
	if flg&flagHCRC != 0 {
		var hcrc [2]byte
		if _, err := io.ReadFull(z.src, hcrc[:]); err != nil {
			return ErrHeader
		}
		// The header CRC is advisory; this implementation parses past
		// it without verifying, as gzip(1) itself tolerates.
	}

	z.raw.Reset()
	z.sum = crc32.New()
	z.n = 0
	z.memberDone = false
	return nil
}

// Reset discards any in-progress member(s) and starts decompressing a
// new gzip stream from r. gzip has no preset-dictionary concept (unlike
// zlib), so dictionary must be empty; it satisfies compression.Reader
// by accepting but rejecting a non-empty one.
func (z *Reader) Reset(r io.Reader, dictionary []byte) error {
	if len(dictionary) > 0 {
		return ErrHeader
	}
	z.src = bufio.NewReader(r)
	z.raw = deflate.NewReader()
	z.streamDone = false
	return z.readMemberHeader()
}

// Close implements io.Closer; gzip's Reader needs no explicit teardown.
func (z *Reader) Close() error { return nil }

// Read implements io.Reader.
func (z *Reader) Read(p []byte) (int, error) {
	if z.streamDone {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	for {
		if len(z.raw.NextIn) == 0 {
			buf := make([]byte, 4096)
			n, err := z.src.Read(buf)
			if n > 0 {
				z.raw.NextIn = buf[:n]
			} else if err != nil {
				if err == io.EOF {
					return 0, io.ErrUnexpectedEOF
				}
				return 0, err
			} else {
				continue
			}
		}

		z.raw.NextOut = p
		code := z.raw.Step(deflate.NoFlush)
		produced := len(p) - len(z.raw.NextOut)
		if produced > 0 {
			z.sum = crc32.Update(z.sum, p[:produced])
			z.n += uint32(produced)
		}
		switch code {
		case deflate.StreamEnd:
			if err := z.finishMember(); err != nil {
				return produced, err
			}
			if produced > 0 {
				return produced, nil
			}
			if z.streamDone {
				return 0, io.EOF
			}
			continue
		case deflate.DataError:
			return produced, z.raw.Err()
		case deflate.OK, deflate.BufError:
			if produced > 0 {
				return produced, nil
			}
		default:
			return produced, ErrHeader
		}
	}
}

func (z *Reader) finishMember() error {
	var trailer [8]byte
	if _, err := io.ReadFull(z.src, trailer[:]); err != nil {
		return ErrHeader
	}
	wantCRC := uint32(trailer[0]) | uint32(trailer[1])<<8 | uint32(trailer[2])<<16 | uint32(trailer[3])<<24
	wantISize := uint32(trailer[4]) | uint32(trailer[5])<<8 | uint32(trailer[6])<<16 | uint32(trailer[7])<<24
	if uint32(z.sum) != wantCRC || z.n != wantISize {
		return ErrChecksum
	}

	// Auto-advance to a following member, if any; EOF here just means
	// this was the last (or only) one.
	if _, err := z.src.Peek(1); err != nil {
		z.streamDone = true
		return nil
	}
	return z.readMemberHeader()
}

// Writer compresses to an underlying io.Writer as a single gzip member.
type Writer struct {
	Header
	dst io.Writer
	raw *deflate.Writer
	sum crc32.Checksum
	n   uint32

	level      deflate.Level
	headerSent bool
	closed     bool
}

// NewWriter returns a Writer using the default compression level and an
// empty Header (ModTime left zero, meaning "not available", per RFC
// 1952 section 2.3.1).
func NewWriter(w io.Writer) *Writer { return NewWriterLevel(w, deflate.DefaultLevel) }

// NewWriterLevel returns a Writer using the given compression level.
func NewWriterLevel(w io.Writer, level deflate.Level) *Writer {
	return &Writer{dst: w, raw: deflate.NewWriter(level, deflate.DefaultStrategy), sum: crc32.New(), level: level}
}

// Reset discards any in-progress member and starts compressing to w at
// the given level. gzip has no preset-dictionary concept, so a non-empty
// dictionary is rejected.
func (z *Writer) Reset(w io.Writer, dictionary []byte, level compression.Level) error {
	if len(dictionary) > 0 {
		return ErrHeader
	}
	z.dst = w
	z.level = levelFromCompression(level)
	z.raw = deflate.NewWriter(z.level, deflate.DefaultStrategy)
	z.sum = crc32.New()
	z.n = 0
	z.Header = Header{}
	z.headerSent = false
	z.closed = false
	return nil
}

func (z *Writer) writeHeader() error {
	if z.headerSent {
		return nil
	}
	var flg byte
	if z.Name != "" {
		flg |= flagName
	}
	if z.Comment != "" {
		flg |= flagComment
	}
	if len(z.Extra) > 0 {
		flg |= flagExtra
	}

	var mtime uint32
	if !z.Header.ModTime.IsZero() {
		mtime = uint32(z.Header.ModTime.Unix())
	}
	xfl := byte(0)
	switch {
	case z.level == 0 || z.level == 1:
		xfl = 4
	case z.level >= 7:
		xfl = 2
	}
	os := z.OS
	if os == 0 {
		os = 0xFF // "unknown", per RFC 1952.
	}

	hdr := []byte{
		gzipID1, gzipID2, cmDeflate, flg,
		byte(mtime), byte(mtime >> 8), byte(mtime >> 16), byte(mtime >> 24),
		xfl, os,
	}
	if _, err := z.dst.Write(hdr); err != nil {
		return err
	}
	if len(z.Extra) > 0 {
		n := len(z.Extra)
		if _, err := z.dst.Write([]byte{byte(n), byte(n >> 8)}); err != nil {
			return err
		}
		if _, err := z.dst.Write(z.Extra); err != nil {
			return err
		}
	}
	if z.Name != "" {
		if _, err := z.dst.Write(append([]byte(z.Name), 0)); err != nil {
			return err
		}
	}
	if z.Comment != "" {
		if _, err := z.dst.Write(append([]byte(z.Comment), 0)); err != nil {
			return err
		}
	}
	z.headerSent = true
	return nil
}

// Write implements io.Writer.
func (z *Writer) Write(p []byte) (int, error) {
	if err := z.writeHeader(); err != nil {
		return 0, err
	}
	z.sum = crc32.Update(z.sum, p)
	z.n += uint32(len(p))
	z.raw.NextIn = p
	return len(p), z.drain(deflate.NoFlush)
}

// Flush forces all buffered data out as a sync-flushed block.
func (z *Writer) Flush() error {
	if err := z.writeHeader(); err != nil {
		return err
	}
	return z.drain(deflate.SyncFlush)
}

// Close finishes the member and writes the CRC-32/ISIZE trailer.
func (z *Writer) Close() error {
	if z.closed {
		return nil
	}
	if err := z.writeHeader(); err != nil {
		return err
	}
	if err := z.drain(deflate.Finish); err != nil {
		return err
	}
	z.closed = true
	sum, n := uint32(z.sum), z.n
	trailer := []byte{
		byte(sum), byte(sum >> 8), byte(sum >> 16), byte(sum >> 24),
		byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24),
	}
	_, err := z.dst.Write(trailer)
	return err
}

func (z *Writer) drain(flush deflate.Flush) error {
	buf := make([]byte, 4096)
	step := flush
	for {
		z.raw.NextOut = buf
		code := z.raw.Step(step)
		step = deflate.NoFlush
		n := len(buf) - len(z.raw.NextOut)
		if n > 0 {
			if _, err := z.dst.Write(buf[:n]); err != nil {
				return err
			}
		}
		if code == deflate.StreamEnd {
			return nil
		}
		if n == 0 && len(z.raw.NextIn) == 0 {
			return nil
		}
	}
}
