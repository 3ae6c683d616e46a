// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package provider

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/NHR-FAU/entrace/pkg/span"
	"github.com/NHR-FAU/entrace/pkg/wire"
)

// MmapProvider serves an ET file directly out of mapped memory. The
// offset table and pool are decoded once at open time; every other
// accessor reads straight out of the mapping at a known byte offset.
type MmapProvider struct {
	data             []byte
	offsets          []uint64
	pool             []span.PoolEntry
	entriesStartOffs int
}

// MapFileError wraps a failure to establish the mapping itself.
type MapFileError struct{ Err error }

func (e *MapFileError) Error() string { return fmt.Sprintf("provider: mmap failed: %v", e.Err) }
func (e *MapFileError) Unwrap() error { return e.Err }

// OpenMmapProvider maps f and decodes its ET index. f must remain open
// for the lifetime of the returned provider; Close unmaps it.
func OpenMmapProvider(f *os.File) (*MmapProvider, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, &MapFileError{Err: err}
	}
	size := st.Size()
	if size < wire.MagicSize {
		return nil, &MapFileError{Err: fmt.Errorf("file too small to contain a magic header")}
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, &MapFileError{Err: err}
	}

	var magic [wire.MagicSize]byte
	copy(magic[:], data[:wire.MagicSize])
	_, format, err := wire.ParseMagic(magic)
	if err != nil {
		_ = unix.Munmap(data)
		return nil, err
	}
	if format != wire.FormatET {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("provider: mmap provider requires ET-formatted data, got %s", format)
	}

	cur := wire.NewCursorAt(data, wire.MagicSize)
	offsets, pool, _, err := wire.ReadETIndex(cur)
	if err != nil {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("provider: decoding ET index: %w", err)
	}

	return &MmapProvider{
		data:             data,
		offsets:          offsets,
		pool:             pool,
		entriesStartOffs: cur.Pos(),
	}, nil
}

// Close unmaps the underlying file. The provider must not be used
// afterwards.
func (p *MmapProvider) Close() error {
	return unix.Munmap(p.data)
}

func (p *MmapProvider) offsetOf(x uint32) (int, bool) {
	if int(x) >= len(p.offsets) {
		return 0, false
	}
	return int(p.offsets[x]) + p.entriesStartOffs, true
}

func (p *MmapProvider) Children(x uint32) ([]uint32, error) {
	if int(x) >= len(p.pool) {
		return nil, oob(x, len(p.pool))
	}
	return p.pool[x].Children, nil
}

func (p *MmapProvider) Parent(x uint32) (uint32, error) {
	offset, ok := p.offsetOf(x)
	if !ok {
		return 0, oob(x, p.Len())
	}
	cur := wire.NewCursorAt(p.data, offset)
	s, err := wire.DecodeSpan(cur)
	if err != nil {
		return 0, fmt.Errorf("provider: decoding span %d: %w", x, err)
	}
	return s.Parent, nil
}

func (p *MmapProvider) Attrs(x uint32) ([]span.Attr, error) {
	offset, ok := p.offsetOf(x)
	if !ok {
		return nil, oob(x, p.Len())
	}
	cur := wire.NewCursorAt(p.data, offset)
	s, err := wire.DecodeSpan(cur)
	if err != nil {
		return nil, fmt.Errorf("provider: decoding span %d: %w", x, err)
	}
	return s.Attributes, nil
}

func (p *MmapProvider) Header(x uint32) (span.Header, error) {
	offset, ok := p.offsetOf(x)
	if !ok {
		return span.Header{}, oob(x, p.Len())
	}
	cur := wire.NewCursorAt(p.data, offset)
	h, err := wire.DecodeHeader(cur)
	if err != nil {
		return span.Header{}, fmt.Errorf("provider: decoding header %d: %w", x, err)
	}
	return h, nil
}

func (p *MmapProvider) Meta(x uint32) (span.Metadata, error) {
	offset, ok := p.offsetOf(x)
	if !ok {
		return span.Metadata{}, oob(x, p.Len())
	}
	cur := wire.NewCursorAt(p.data, offset)
	s, err := wire.DecodeSpan(cur)
	if err != nil {
		return span.Metadata{}, fmt.Errorf("provider: decoding span %d: %w", x, err)
	}
	return s.Metadata, nil
}

func (p *MmapProvider) Len() int { return len(p.pool) }

// FrameCallback is a no-op: mmap data is immutable once opened.
func (p *MmapProvider) FrameCallback() {}
