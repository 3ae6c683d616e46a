// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package wire

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/NHR-FAU/entrace/pkg/span"
)

// WriteIETMagic writes the 10-byte header for an IET or IET-prefixed
// artifact.
func WriteIETMagic(w io.Writer, lengthPrefixed bool) error {
	format := FormatIET
	if lengthPrefixed {
		format = FormatIETPrefixed
	}
	m := Magic(DiskVersion, format)
	_, err := w.Write(m[:])
	return err
}

// EncodeIETRecord writes one span record to w, optionally preceded by
// an 8-byte little-endian length prefix (used for TCP streams so the
// reader can bound the decode by the advertised length).
func EncodeIETRecord(w *bufio.Writer, s span.Span, lengthPrefixed bool) error {
	if !lengthPrefixed {
		return EncodeSpan(w, s)
	}
	var scratch bufScratch
	if err := EncodeSpan(&scratch, s); err != nil {
		return err
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(scratch.buf)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(scratch.buf)
	return err
}

// bufScratch is a minimal in-memory ByteWriter used to pre-encode a
// record so its length is known before the 8-byte prefix is written.
type bufScratch struct{ buf []byte }

func (s *bufScratch) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}
func (s *bufScratch) WriteByte(b byte) error {
	s.buf = append(s.buf, b)
	return nil
}

// DecodeIETStream decodes every complete span record from r in order.
// A truncated trailing record (EOF mid-record) is not an error: it is
// silently discarded, per the IET format's crash-safety guarantee, and
// DecodeIETStream returns the complete records decoded so far.
func DecodeIETStream(r *bufio.Reader) ([]span.Span, error) {
	var spans []span.Span
	for {
		s, err := DecodeSpan(r)
		if err == io.EOF {
			return spans, nil
		}
		if err == io.ErrUnexpectedEOF {
			return spans, nil
		}
		if err != nil {
			return spans, err
		}
		spans = append(spans, s)
	}
}

// DecodeIETPrefixedStream decodes every complete length-prefixed record
// from r, stopping cleanly on EOF before a length header (the TCP
// client's clean-close case) and treating a truncated payload as a
// recoverable end of stream, matching DecodeIETStream.
func DecodeIETPrefixedStream(r *bufio.Reader) ([]span.Span, error) {
	var spans []span.Span
	for {
		var lenBuf [8]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err == io.EOF {
				return spans, nil
			}
			return spans, nil
		}
		n := binary.LittleEndian.Uint64(lenBuf[:])
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			return spans, nil
		}
		cur := NewCursor(payload)
		s, err := DecodeSpan(cur)
		if err != nil {
			return spans, err
		}
		spans = append(spans, s)
	}
}
