// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package provider

import (
	"sync"

	"github.com/NHR-FAU/entrace/pkg/span"
)

// frameBatchSize bounds how much work a single FrameCallback call does,
// so the consumer's per-frame budget is never blown by a burst of
// inserts.
const frameBatchSize = 50

type mainThreadMsgKind uint8

const (
	mtmInsert mainThreadMsgKind = iota
	mtmInsertMany
	mtmReplacePool
	mtmReplaceData
)

// MainThreadMessage is what a provider's background worker sends to be
// applied on the consumer's thread via FrameCallback.
type MainThreadMessage struct {
	kind  mainThreadMsgKind
	span  span.Span
	spans []span.Span
	pool  []span.PoolEntry
	data  []span.Span
}

func InsertMessage(s span.Span) MainThreadMessage {
	return MainThreadMessage{kind: mtmInsert, span: s}
}
func InsertManyMessage(spans []span.Span) MainThreadMessage {
	return MainThreadMessage{kind: mtmInsertMany, spans: spans}
}
func ReplacePoolMessage(pool []span.PoolEntry) MainThreadMessage {
	return MainThreadMessage{kind: mtmReplacePool, pool: pool}
}
func ReplaceDataMessage(data []span.Span) MainThreadMessage {
	return MainThreadMessage{kind: mtmReplaceData, data: data}
}

// BaseProvider holds the entire decoded span array and pool in memory.
// A background worker (owned by whichever concrete reader embeds this
// type — file-watch or remote) sends MainThreadMessage values through a
// channel; FrameCallback drains a bounded batch per invocation so a
// fast producer cannot stall the consumer's frame budget. Initial state
// is empty: the worker is responsible for sending the root via
// ReplaceData/ReplacePool or as the very first Insert.
type BaseProvider struct {
	mu   sync.RWMutex
	ch   <-chan MainThreadMessage
	pool []span.PoolEntry
	data []span.Span
}

// NewBaseProvider returns a BaseProvider draining ch.
func NewBaseProvider(ch <-chan MainThreadMessage) *BaseProvider {
	return &BaseProvider{ch: ch}
}

func (p *BaseProvider) applyInsert(s span.Span) {
	pl := uint32(len(p.pool))
	p.pool = append(p.pool, span.PoolEntry{})
	if pl != 0 {
		p.pool[s.Parent].Children = append(p.pool[s.Parent].Children, pl)
	}
	p.data = append(p.data, s)
}

func (p *BaseProvider) applyInsertMany(spans []span.Span) {
	oldPl := len(p.pool)
	for range spans {
		p.pool = append(p.pool, span.PoolEntry{})
	}
	for idx, s := range spans {
		id := uint32(oldPl + idx)
		if id != 0 {
			p.pool[s.Parent].Children = append(p.pool[s.Parent].Children, id)
		}
	}
	p.data = append(p.data, spans...)
}

// FrameCallback drains up to frameBatchSize messages. If the writer
// outruns the reader, messages accumulate in the channel rather than in
// a single large allocation.
func (p *BaseProvider) FrameCallback() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < frameBatchSize; i++ {
		select {
		case msg, ok := <-p.ch:
			if !ok {
				return
			}
			switch msg.kind {
			case mtmInsert:
				p.applyInsert(msg.span)
			case mtmInsertMany:
				p.applyInsertMany(msg.spans)
			case mtmReplacePool:
				p.pool = msg.pool
			case mtmReplaceData:
				p.data = msg.data
			}
		default:
			return
		}
	}
}

func (p *BaseProvider) Children(x uint32) ([]uint32, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if int(x) >= len(p.pool) {
		return nil, oob(x, len(p.pool))
	}
	return p.pool[x].Children, nil
}

func (p *BaseProvider) Parent(x uint32) (uint32, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if int(x) >= len(p.data) {
		return 0, oob(x, len(p.data))
	}
	return p.data[x].Parent, nil
}

func (p *BaseProvider) Attrs(x uint32) ([]span.Attr, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if int(x) >= len(p.data) {
		return nil, oob(x, len(p.data))
	}
	return p.data[x].Attributes, nil
}

func (p *BaseProvider) Header(x uint32) (span.Header, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if int(x) >= len(p.data) {
		return span.Header{}, oob(x, len(p.data))
	}
	s := p.data[x]
	return span.Header{
		Name:    s.Metadata.Name,
		Level:   s.Metadata.Level,
		File:    s.Metadata.File,
		Line:    s.Metadata.Line,
		Message: s.Message,
	}, nil
}

func (p *BaseProvider) Meta(x uint32) (span.Metadata, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if int(x) >= len(p.data) {
		return span.Metadata{}, oob(x, len(p.data))
	}
	return p.data[x].Metadata, nil
}

func (p *BaseProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.data)
}
