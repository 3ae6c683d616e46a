// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package wire

import (
	"bufio"
	"io"

	"github.com/NHR-FAU/entrace/pkg/span"
)

// TableData is the (offset, pool) pair computed by scanning an IET data
// section once. ETWriter keeps one of these up to date incrementally so
// Shutdown can skip the scan entirely (see pkg/storage); GatherIETTable
// is the one-shot equivalent used for IET files that were never tracked
// incrementally (e.g. ones found already on disk).
type TableData struct {
	Offsets []uint64
	Pool    []span.PoolEntry
}

// GatherIETTable scans raw IET span data (the bytes after the 10-byte
// magic) once, recording each span's byte offset and reconstructing the
// pool's children lists from each span's Parent field. A truncated
// trailing record is tolerated and simply excluded from the table,
// matching IET's crash-safety guarantee.
func GatherIETTable(data []byte) (TableData, error) {
	cur := NewCursor(data)
	var table TableData
	for {
		offset := cur.Pos()
		s, err := DecodeSpan(cur)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return table, nil
		}
		if err != nil {
			return table, &GatherError{Inner: err}
		}
		id := uint32(len(table.Offsets))
		table.Offsets = append(table.Offsets, uint64(offset))
		table.Pool = append(table.Pool, span.PoolEntry{})
		if id != 0 {
			table.Pool[s.Parent].Children = append(table.Pool[s.Parent].Children, id)
		}
	}
}

// IETToET converts a full IET artifact (magic included) read from r
// into an ET artifact written to w, scanning the data once to build the
// offset/pool tables.
func IETToET(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	var magic [MagicSize]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return &ConvertError{Op: "read iet magic", Err: err}
	}
	if _, _, err := ParseMagic(magic); err != nil {
		return &ConvertError{Op: "parse iet magic", Err: err}
	}

	data, err := io.ReadAll(br)
	if err != nil {
		return &ConvertError{Op: "read iet data", Err: err}
	}
	table, err := GatherIETTable(data)
	if err != nil {
		return &ConvertError{Op: "gather iet table", Err: err}
	}
	return IETToETWithTable(data, table, w)
}

// IETToETWithTable writes an ET artifact given raw IET span data and an
// already-known table, skipping the scan. This is the fast path an
// ETWriter takes on Shutdown, since it has maintained the table
// incrementally during capture.
func IETToETWithTable(data []byte, table TableData, w io.Writer) error {
	if err := WriteETMagic(w); err != nil {
		return &ConvertError{Op: "write et magic", Err: err}
	}
	bw := bufio.NewWriter(w)
	if err := WriteETIndex(bw, table.Offsets, table.Pool); err != nil {
		return &ConvertError{Op: "write et index", Err: err}
	}
	if _, err := bw.Write(data); err != nil {
		return &ConvertError{Op: "write et data", Err: err}
	}
	if err := bw.Flush(); err != nil {
		return &ConvertError{Op: "flush et writer", Err: err}
	}
	return nil
}

// ETToIET converts a full ET artifact (magic included) read from r into
// an IET artifact written to w by skipping the index section (whose
// length is recoverable from the codec without touching the data) and
// copying the raw span bytes verbatim.
func ETToIET(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	var magic [MagicSize]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return &ConvertError{Op: "read et magic", Err: err}
	}
	if _, _, err := ParseMagic(magic); err != nil {
		return &ConvertError{Op: "parse et magic", Err: err}
	}

	if _, _, _, err := ReadETIndex(br); err != nil {
		return &ConvertError{Op: "read et index", Err: err}
	}

	if err := WriteIETMagic(w, false); err != nil {
		return &ConvertError{Op: "write iet magic", Err: err}
	}
	if _, err := io.Copy(w, br); err != nil {
		return &ConvertError{Op: "copy iet data", Err: err}
	}
	return nil
}
