// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package wire

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/NHR-FAU/entrace/pkg/span"
)

// EncodeSpan appends the self-delimiting encoding of s to w. Field
// order (parent, message, metadata, attributes) is canonical and part
// of the wire format.
func EncodeSpan(w ByteWriter, s span.Span) error {
	if err := writeUvarint(w, uint64(s.Parent)); err != nil {
		return err
	}
	if err := writeOptionalString(w, s.Message); err != nil {
		return err
	}
	if err := encodeMetadata(w, s.Metadata); err != nil {
		return err
	}
	if err := writeUvarint(w, uint64(len(s.Attributes))); err != nil {
		return err
	}
	for _, a := range s.Attributes {
		if err := writeString(w, a.Name); err != nil {
			return err
		}
		if err := encodeValue(w, a.Value); err != nil {
			return err
		}
	}
	return nil
}

// DecodeSpan reads one self-delimiting span record from r. io.EOF is
// returned verbatim when the reader has no more bytes at a record
// boundary; io.ErrUnexpectedEOF (or any wrapped read error) signals a
// truncated record.
func DecodeSpan(r ByteReader) (span.Span, error) {
	var s span.Span

	parent, err := binary.ReadUvarint(r)
	if err != nil {
		return s, err
	}
	s.Parent = uint32(parent)

	msg, err := readOptionalString(r)
	if err != nil {
		return s, unexpectedIfEOF(err)
	}
	s.Message = msg

	meta, err := decodeMetadata(r)
	if err != nil {
		return s, unexpectedIfEOF(err)
	}
	s.Metadata = meta

	n, err := binary.ReadUvarint(r)
	if err != nil {
		return s, unexpectedIfEOF(err)
	}
	if n > 0 {
		s.Attributes = make([]span.Attr, 0, n)
		for i := uint64(0); i < n; i++ {
			name, err := readString(r)
			if err != nil {
				return s, unexpectedIfEOF(err)
			}
			val, err := decodeValue(r)
			if err != nil {
				return s, unexpectedIfEOF(err)
			}
			s.Attributes = append(s.Attributes, span.Attr{Name: name, Value: val})
		}
	}
	return s, nil
}

// DecodeHeader reads just enough of a span record to populate its
// rendering Header, avoiding the allocations a full attribute decode
// would cost. It still walks past the attribute section byte-by-byte
// (there is no seek on a streaming ByteReader), but none of the
// attribute values are retained.
func DecodeHeader(r ByteReader) (span.Header, error) {
	var h span.Header

	if _, err := binary.ReadUvarint(r); err != nil { // parent, unused by Header
		return h, err
	}
	message, err := readOptionalString(r)
	if err != nil {
		return h, unexpectedIfEOF(err)
	}
	h.Message = message

	name, err := readString(r)
	if err != nil {
		return h, unexpectedIfEOF(err)
	}
	h.Name = name

	if _, err := readString(r); err != nil { // target, unused by Header
		return h, unexpectedIfEOF(err)
	}

	lvl, err := r.ReadByte()
	if err != nil {
		return h, unexpectedIfEOF(err)
	}
	h.Level = span.Level(lvl)

	if _, err := readOptionalString(r); err != nil { // module_path, unused by Header
		return h, unexpectedIfEOF(err)
	}

	file, err := readOptionalString(r)
	if err != nil {
		return h, unexpectedIfEOF(err)
	}
	h.File = file

	line, err := readOptionalU32(r)
	if err != nil {
		return h, unexpectedIfEOF(err)
	}
	h.Line = line

	n, err := binary.ReadUvarint(r)
	if err != nil {
		return h, unexpectedIfEOF(err)
	}
	for i := uint64(0); i < n; i++ {
		if _, err := readString(r); err != nil {
			return h, unexpectedIfEOF(err)
		}
		if _, err := decodeValue(r); err != nil {
			return h, unexpectedIfEOF(err)
		}
	}
	return h, nil
}

func unexpectedIfEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func encodeMetadata(w ByteWriter, m span.Metadata) error {
	if err := writeString(w, m.Name); err != nil {
		return err
	}
	if err := writeString(w, m.Target); err != nil {
		return err
	}
	if err := w.WriteByte(byte(m.Level)); err != nil {
		return err
	}
	if err := writeOptionalString(w, m.ModulePath); err != nil {
		return err
	}
	if err := writeOptionalString(w, m.File); err != nil {
		return err
	}
	return writeOptionalU32(w, m.Line)
}

func decodeMetadata(r ByteReader) (span.Metadata, error) {
	var m span.Metadata
	name, err := readString(r)
	if err != nil {
		return m, err
	}
	m.Name = name

	target, err := readString(r)
	if err != nil {
		return m, err
	}
	m.Target = target

	lvl, err := r.ReadByte()
	if err != nil {
		return m, err
	}
	m.Level = span.Level(lvl)

	modPath, err := readOptionalString(r)
	if err != nil {
		return m, err
	}
	m.ModulePath = modPath

	file, err := readOptionalString(r)
	if err != nil {
		return m, err
	}
	m.File = file

	line, err := readOptionalU32(r)
	if err != nil {
		return m, err
	}
	m.Line = line
	return m, nil
}

func encodeValue(w ByteWriter, v span.Value) error {
	if err := w.WriteByte(byte(v.Kind)); err != nil {
		return err
	}
	switch v.Kind {
	case span.KindString:
		return writeString(w, v.Str)
	case span.KindBytes:
		if err := writeUvarint(w, uint64(len(v.Bytes))); err != nil {
			return err
		}
		_, err := w.Write(v.Bytes)
		return err
	case span.KindBool:
		var b byte
		if v.Bool {
			b = 1
		}
		return w.WriteByte(b)
	case span.KindFloat64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v.Float64))
		_, err := w.Write(buf[:])
		return err
	case span.KindU64:
		return writeUvarint(w, v.U64)
	case span.KindI64:
		return writeVarint(w, v.I64)
	case span.KindU128:
		_, err := w.Write(v.U128[:])
		return err
	case span.KindI128:
		_, err := w.Write(v.I128[:])
		return err
	default:
		return errUnknownValueKind
	}
}

func decodeValue(r ByteReader) (span.Value, error) {
	var v span.Value
	kind, err := r.ReadByte()
	if err != nil {
		return v, err
	}
	v.Kind = span.ValueKind(kind)
	switch v.Kind {
	case span.KindString:
		s, err := readString(r)
		if err != nil {
			return v, err
		}
		v.Str = s
	case span.KindBytes:
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return v, err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return v, err
		}
		v.Bytes = buf
	case span.KindBool:
		b, err := r.ReadByte()
		if err != nil {
			return v, err
		}
		v.Bool = b != 0
	case span.KindFloat64:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return v, err
		}
		v.Float64 = math.Float64frombits(binary.LittleEndian.Uint64(buf[:]))
	case span.KindU64:
		u, err := binary.ReadUvarint(r)
		if err != nil {
			return v, err
		}
		v.U64 = u
	case span.KindI64:
		i, err := binary.ReadVarint(r)
		if err != nil {
			return v, err
		}
		v.I64 = i
	case span.KindU128:
		if _, err := io.ReadFull(r, v.U128[:]); err != nil {
			return v, err
		}
	case span.KindI128:
		if _, err := io.ReadFull(r, v.I128[:]); err != nil {
			return v, err
		}
	default:
		return v, errUnknownValueKind
	}
	return v, nil
}

func writeUvarint(w ByteWriter, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

func writeVarint(w ByteWriter, v int64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutVarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

func writeString(w ByteWriter, s string) error {
	if err := writeUvarint(w, uint64(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r ByteReader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeOptionalString(w ByteWriter, s *string) error {
	if s == nil {
		return w.WriteByte(0)
	}
	if err := w.WriteByte(1); err != nil {
		return err
	}
	return writeString(w, *s)
}

func readOptionalString(r ByteReader) (*string, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	s, err := readString(r)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func writeOptionalU32(w ByteWriter, v *uint32) error {
	if v == nil {
		return w.WriteByte(0)
	}
	if err := w.WriteByte(1); err != nil {
		return err
	}
	return writeUvarint(w, uint64(*v))
}

func readOptionalU32(r ByteReader) (*uint32, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	u, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	val := uint32(u)
	return &val, nil
}
