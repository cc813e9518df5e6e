/*
 * MIT License
 *
 * Copyright (c) 2026 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package compress is the optional per-datagram compression stage of
// spec.md §4.2(c): LZ4 block compression via github.com/pierrec/lz4/v4,
// the same algorithm family the teacher's archive/compress package
// exposes through its pluggable Algorithm enum. A datagram is only sent
// compressed when doing so actually shrinks it (§4.2(c)'s "skip if not
// smaller"); the FlagCompressed bit on the outer header is the
// self-describing marker, so no magic-byte sniffing is needed on decode.
package compress

import (
	"github.com/pierrec/lz4/v4"

	"github.com/sabouaram/relaynet/errcode"
)

// Compress LZ4-compresses src into a freshly sized buffer. It reports
// ok=false when the compressed form is not smaller than src, in which
// case the caller should send src uncompressed.
func Compress(src []byte) (out []byte, ok bool, err error) {
	bound := lz4.CompressBlockBound(len(src))
	dst := make([]byte, bound)

	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst)
	if err != nil {
		return nil, false, errcode.New(errcode.ApplicationInvalidArgument, err)
	}
	if n == 0 || n >= len(src) {
		return nil, false, nil
	}
	return dst[:n], true, nil
}

// Decompress expands an LZ4 block into a buffer no larger than maxOut,
// enforcing spec.md §4.2(d)'s decompression-bound defense against a
// maliciously crafted compression ratio.
func Decompress(src []byte, originalLen int, maxOut uint32) ([]byte, error) {
	if originalLen < 0 || uint32(originalLen) > maxOut {
		return nil, errcode.New(errcode.ProtocolDecompressBound)
	}

	dst := make([]byte, originalLen)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, errcode.New(errcode.ApplicationInvalidArgument, err)
	}
	return dst[:n], nil
}
