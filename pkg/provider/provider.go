// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package provider implements the read side of the span store: the
// LogProvider contract and its four concrete implementations (mmap,
// in-memory, file-watch, TCP server). Callers enumerate the known
// implementations directly rather than relying on open-ended runtime
// polymorphism, so the hot children/parent/attrs calls stay inlinable.
package provider

import (
	"fmt"

	"github.com/NHR-FAU/entrace/pkg/span"
)

// LogProvider is the uniform read interface every span-store backend
// implements.
type LogProvider interface {
	// Children returns the pool ids whose parent is x.
	Children(x uint32) ([]uint32, error)
	// Parent returns x's parent pool id.
	Parent(x uint32) (uint32, error)
	// Attrs returns x's attribute list in insertion order.
	Attrs(x uint32) ([]span.Attr, error)
	// Header returns the cheap rendering subset of x.
	Header(x uint32) (span.Header, error)
	// Meta returns x's full metadata.
	Meta(x uint32) (span.Metadata, error)
	// Len returns the number of spans currently known. Must be O(1):
	// called once per display frame by consumers.
	Len() int
	// FrameCallback drains pending inserts. Must return quickly.
	FrameCallback()
}

// OutOfBoundsError is returned by every accessor when x is not (yet) a
// known pool id.
type OutOfBoundsError struct {
	Idx uint32
	Len int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("provider: index %d out of bounds (len %d)", e.Idx, e.Len)
}

func oob(x uint32, n int) error { return &OutOfBoundsError{Idx: x, Len: n} }
