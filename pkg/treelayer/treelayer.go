// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package treelayer is the producer-side adapter between an
// instrumented application's span-creation events and a Storage sink:
// it allocates monotonic pool ids, resolves each span's parent, and
// hands off the resulting Span for serialization.
package treelayer

import (
	"sync"
	"sync/atomic"

	"github.com/NHR-FAU/entrace/pkg/enlog"
	"github.com/NHR-FAU/entrace/pkg/span"
)

// Storage is the sink a TreeLayer hands fully-resolved spans to. Both
// *storage.IETWriter and *storage.ETWriter satisfy it.
type Storage interface {
	NewSpan(s span.Span)
}

// TreeLayer assigns pool ids using its own atomic counter that skips 0
// (reserved for the synthetic root) and maps the producer's own
// span identifiers to pool ids via a mapping guarded by a read-write
// lock, since multiple producer threads may create spans concurrently.
type TreeLayer struct {
	counter  atomic.Uint32
	mu       sync.RWMutex
	idToPool map[uint64]uint32
	storage  Storage
}

// New returns a TreeLayer that hands resolved spans to storage.
func New(storage Storage) *TreeLayer {
	return &TreeLayer{idToPool: make(map[uint64]uint32), storage: storage}
}

// poolIDFor looks up the pool id assigned to a producer-side tracing
// id, returning ok=false if it is unknown (already closed, or never
// registered).
func (t *TreeLayer) poolIDFor(tracingID uint64) (uint32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.idToPool[tracingID]
	return id, ok
}

// resolveParent implements the precedence explicit parent > root flag >
// contextual current span > fallback to root. A lookup miss on either
// the explicit or contextual tracing id reparents to root and emits a
// diagnostic rather than dropping the span.
func (t *TreeLayer) resolveParent(explicitParent *uint64, isRoot bool, contextual *uint64) uint32 {
	if explicitParent != nil {
		if id, ok := t.poolIDFor(*explicitParent); ok {
			return id
		}
		enlog.Errorf("treelayer: explicit parent tracing id %d not found, reparenting span to root", *explicitParent)
		return 0
	}
	if isRoot {
		return 0
	}
	if contextual != nil {
		if id, ok := t.poolIDFor(*contextual); ok {
			return id
		}
		enlog.Errorf("treelayer: contextual parent tracing id %d not found, reparenting span to root", *contextual)
		return 0
	}
	return 0
}

// NewSpan resolves the parent, allocates a pool id, extracts the
// well-known "message" attribute, and forwards the finished Span to
// storage. It registers tracingID -> pool id in the mapping so
// descendants created later in the same call can resolve this span as
// their parent or contextual ancestor.
func (t *TreeLayer) NewSpan(
	tracingID uint64,
	explicitParent *uint64,
	isRoot bool,
	contextual *uint64,
	meta span.Metadata,
	attrs []span.Attr,
) uint32 {
	parent := t.resolveParent(explicitParent, isRoot, contextual)
	poolID := t.counter.Add(1)

	var message *string
	for _, a := range attrs {
		if a.Name == "message" && a.Value.Kind == span.KindString {
			m := a.Value.Str
			message = &m
			break
		}
	}

	t.mu.Lock()
	t.idToPool[tracingID] = poolID
	t.mu.Unlock()

	t.storage.NewSpan(span.Span{
		Parent:     parent,
		Message:    message,
		Metadata:   meta,
		Attributes: attrs,
	})
	return poolID
}

// Close removes tracingID's mapping entry once its span ends, since
// pool ids are never reused and the producer's own identifier may be
// reused by its tracing runtime after this.
func (t *TreeLayer) Close(tracingID uint64) {
	t.mu.Lock()
	delete(t.idToPool, tracingID)
	t.mu.Unlock()
}
