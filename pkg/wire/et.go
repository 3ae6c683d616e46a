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

// WriteETMagic writes the 10-byte header for an ET artifact.
func WriteETMagic(w io.Writer) error {
	m := Magic(DiskVersion, FormatET)
	_, err := w.Write(m[:])
	return err
}

// WriteETIndex writes the offset table and pool array that make up the
// indexed part of an ET file, ahead of the raw span data. Both the
// offset table and the pool are length-prefixed so their combined size
// is recoverable without consulting the data section (required by
// ET->IET conversion, which must skip exactly this many bytes).
func WriteETIndex(w *bufio.Writer, offsets []uint64, pool []span.PoolEntry) error {
	if err := writeUvarint(w, uint64(len(offsets))); err != nil {
		return err
	}
	for _, off := range offsets {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], off)
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	if err := writeUvarint(w, uint64(len(pool))); err != nil {
		return err
	}
	for _, entry := range pool {
		if err := writeUvarint(w, uint64(len(entry.Children))); err != nil {
			return err
		}
		for _, c := range entry.Children {
			if err := writeUvarint(w, uint64(c)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadETIndex decodes the offset table and pool array from r, returning
// them along with the number of bytes consumed (so the caller,
// typically the mmap provider, knows where the raw data section
// starts).
func ReadETIndex(r ByteReader) ([]uint64, []span.PoolEntry, int, error) {
	counted := &countingByteReader{r: r}

	nOffsets, err := binary.ReadUvarint(counted)
	if err != nil {
		return nil, nil, counted.n, err
	}
	offsets := make([]uint64, nOffsets)
	for i := range offsets {
		var buf [8]byte
		if _, err := io.ReadFull(counted, buf[:]); err != nil {
			return nil, nil, counted.n, err
		}
		offsets[i] = binary.LittleEndian.Uint64(buf[:])
	}

	nPool, err := binary.ReadUvarint(counted)
	if err != nil {
		return nil, nil, counted.n, err
	}
	pool := make([]span.PoolEntry, nPool)
	for i := range pool {
		nChildren, err := binary.ReadUvarint(counted)
		if err != nil {
			return nil, nil, counted.n, err
		}
		if nChildren > 0 {
			pool[i].Children = make([]uint32, nChildren)
			for j := range pool[i].Children {
				c, err := binary.ReadUvarint(counted)
				if err != nil {
					return nil, nil, counted.n, err
				}
				pool[i].Children[j] = uint32(c)
			}
		}
	}
	return offsets, pool, counted.n, nil
}

// countingByteReader tracks how many bytes have been pulled through it,
// used to report ReadETIndex's total consumed length.
type countingByteReader struct {
	r ByteReader
	n int
}

func (c *countingByteReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func (c *countingByteReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}
