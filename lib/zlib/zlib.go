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

// Package zlib implements the RFC 1950 zlib wire format: a two-byte
// CMF/FLG header (with an optional four-byte preset-dictionary ID),
// a raw DEFLATE stream, and a four-byte, big-endian Adler-32 trailer.
// It drives lib/deflate's cursor-based Reader/Writer with WrapperRaw
// framing and handles the format's own header and trailer itself,
// exposing the conventional io.Reader/io.Writer surface callers expect
// at this layer (the raw engine underneath stays cursor-based).
package zlib

import (
	"bufio"
	"errors"
	"io"

	"github.com/flatecore/flatecore/lib/checksum/adler32"
	"github.com/flatecore/flatecore/lib/compression"
	"github.com/flatecore/flatecore/lib/deflate"
)

// levelFromCompression maps the codec-agnostic compression.Level onto
// zlib's 0..9 scale via piecewise linear interpolation, the same
// translation Interpolate's doc comment describes.
func levelFromCompression(l compression.Level) deflate.Level {
	return deflate.Level(l.Interpolate(1, 2, 6, 9, 9))
}

var (
	ErrHeader     = errors.New("zlib: invalid header")
	ErrChecksum   = errors.New("zlib: checksum mismatch")
	ErrDictionary = errors.New("zlib: missing or incorrect dictionary")
)

var (
	_ compression.Reader = (*Reader)(nil)
	_ compression.Writer = (*Writer)(nil)
)

const cmDeflate = 8

// Reader decompresses a zlib stream read from an underlying io.Reader.
// Grounded on the Reset(r, dict)-shaped API of a cgo zlib wrapper
// elsewhere in this module's lineage: the caller learns a dictionary is
// required via ErrDictionary and retries through Reset, rather than a
// constructor taking the dictionary speculatively.
type Reader struct {
	src  *bufio.Reader
	raw  *deflate.Reader
	sum  adler32.Checksum
	dict uint32 // expected preset-dictionary Adler-32, valid once header parsed.

	headerDone bool
	done       bool
}

// NewReader parses r's zlib header and returns a Reader ready to
// decompress the stream that follows. If the stream specifies a preset
// dictionary, NewReader returns ErrDictionary; call Reset with the
// dictionary bytes to proceed.
func NewReader(r io.Reader) (*Reader, error) {
	z := &Reader{raw: deflate.NewReader()}
	if err := z.Reset(r, nil); err != nil {
		return nil, err
	}
	return z, nil
}

// Reset discards any in-progress stream and starts decompressing a new
// one from r, priming the window with dict if the header's FDICT flag
// is set; when the flag is clear, dict is ignored.
func (z *Reader) Reset(r io.Reader, dict []byte) error {
	z.src = bufio.NewReader(r)
	z.raw.Reset()
	z.sum = adler32.New()
	z.headerDone = false
	z.done = false

	var hdr [2]byte
	if _, err := io.ReadFull(z.src, hdr[:]); err != nil {
		return ErrHeader
	}
	cmf, flg := hdr[0], hdr[1]
	if (uint16(cmf)*256+uint16(flg))%31 != 0 {
		return ErrHeader
	}
	if cmf&0x0F != cmDeflate {
		return ErrHeader
	}
	if flg&0x20 != 0 {
		var id [4]byte
		if _, err := io.ReadFull(z.src, id[:]); err != nil {
			return ErrHeader
		}
		z.dict = uint32(id[0])<<24 | uint32(id[1])<<16 | uint32(id[2])<<8 | uint32(id[3])
		if len(dict) == 0 {
			return ErrDictionary
		}
		if adler32.Update(adler32.New(), dict) != adler32.Checksum(z.dict) {
			return ErrDictionary
		}
		z.raw.SetDictionary(dict)
	}
	z.headerDone = true
	return nil
}

// Close implements io.Closer. It does not verify the trailer if the
// stream hasn't been fully read; callers that need that guarantee
// should read to io.EOF first.
func (z *Reader) Close() error { return nil }

// Read implements io.Reader, decompressing into p. Like any io.Reader,
// it may return fewer than len(p) bytes even mid-stream; it only
// returns (0, nil) never, looping internally until either some output
// is produced or the stream ends or fails.
func (z *Reader) Read(p []byte) (int, error) {
	if z.done {
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
			z.sum = adler32.Update(z.sum, p[:produced])
		}
		switch code {
		case deflate.StreamEnd:
			if err := z.readTrailer(); err != nil {
				return produced, err
			}
			z.done = true
			if produced == 0 {
				return 0, io.EOF
			}
			return produced, nil
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

func (z *Reader) readTrailer() error {
	// Any bytes already pulled into NextIn but not consumed by the raw
	// decoder belong to the trailer; splice them back in front of
	// whatever else remains unread on src.
	leftover := z.raw.NextIn
	need := 4 - len(leftover)
	var tail [4]byte
	copy(tail[:], leftover)
	if need > 0 {
		if _, err := io.ReadFull(z.src, tail[len(leftover):]); err != nil {
			return ErrHeader
		}
	}
	want := uint32(tail[0])<<24 | uint32(tail[1])<<16 | uint32(tail[2])<<8 | uint32(tail[3])
	if uint32(z.sum) != want {
		return ErrChecksum
	}
	return nil
}

// Writer compresses to an underlying io.Writer, emitting a zlib header
// before the first byte of compressed output and an Adler-32 trailer on
// Close.
type Writer struct {
	dst io.Writer
	raw *deflate.Writer
	sum adler32.Checksum

	level      deflate.Level
	dict       []byte
	headerSent bool
	closed     bool
}

// NewWriter returns a Writer using the default compression level.
func NewWriter(w io.Writer) *Writer { return NewWriterLevel(w, deflate.DefaultLevel) }

// NewWriterLevel returns a Writer using the given compression level.
func NewWriterLevel(w io.Writer, level deflate.Level) *Writer {
	return &Writer{dst: w, raw: deflate.NewWriter(level, deflate.DefaultStrategy), sum: adler32.New(), level: level}
}

// SetDictionary primes the stream with a preset dictionary. It must be
// called before the first Write.
func (z *Writer) SetDictionary(dict []byte) error {
	if z.headerSent {
		return ErrHeader
	}
	if err := z.raw.SetDictionary(dict); err != nil {
		return err
	}
	z.dict = dict
	return nil
}

// Reset discards any in-progress stream and starts compressing to w at
// the given level, priming the window with dictionary if non-empty.
// It satisfies compression.Writer.
func (z *Writer) Reset(w io.Writer, dictionary []byte, level compression.Level) error {
	z.dst = w
	z.raw = deflate.NewWriter(levelFromCompression(level), deflate.DefaultStrategy)
	z.sum = adler32.New()
	z.level = levelFromCompression(level)
	z.dict = nil
	z.headerSent = false
	z.closed = false
	if len(dictionary) > 0 {
		return z.SetDictionary(dictionary)
	}
	return nil
}

func (z *Writer) writeHeader() error {
	if z.headerSent {
		return nil
	}
	cmf := byte(0x78) // CINFO=7 (32 KiB window), CM=8 (deflate).
	var flevel byte
	switch {
	case z.level == 0 || z.level == 1:
		flevel = 0
	case z.level >= 2 && z.level <= 5:
		flevel = 1
	case z.level == deflate.DefaultLevel || z.level == 6:
		flevel = 2
	default:
		flevel = 3
	}
	flg := flevel << 6
	if len(z.dict) > 0 {
		flg |= 0x20
	}
	if rem := (uint16(cmf)*256 + uint16(flg)) % 31; rem != 0 {
		flg |= byte(31 - rem)
	}
	if _, err := z.dst.Write([]byte{cmf, flg}); err != nil {
		return err
	}
	if len(z.dict) > 0 {
		id := uint32(adler32.Update(adler32.New(), z.dict))
		if _, err := z.dst.Write([]byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}); err != nil {
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
	z.sum = adler32.Update(z.sum, p)
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

// Close finishes the stream and writes the Adler-32 trailer.
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
	sum := uint32(z.sum)
	_, err := z.dst.Write([]byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)})
	return err
}

// drain runs flush once (absorbing any pending NextIn and, for
// Sync/Full/Finish, forcing the corresponding block out) and then keeps
// calling Step with NoFlush purely to copy out whatever ends up in
// pending, so a multi-buf drain never re-triggers the flush's one-time
// side effects (a second empty sync-marker block, a second final
// block).
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
