// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package provider

import (
	"testing"

	"github.com/NHR-FAU/entrace/pkg/span"
)

func TestBaseProviderDrainsInsertsAndLinksChildren(t *testing.T) {
	ch := make(chan MainThreadMessage, 8)
	p := NewBaseProvider(ch)

	ch <- ReplaceDataMessage([]span.Span{span.RootSpan()})
	ch <- ReplacePoolMessage([]span.PoolEntry{{}})
	ch <- InsertMessage(span.Span{Parent: 0, Metadata: span.Metadata{Name: "a"}})
	ch <- InsertMessage(span.Span{Parent: 1, Metadata: span.Metadata{Name: "b"}})

	p.FrameCallback()

	if p.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", p.Len())
	}
	children, err := p.Children(0)
	if err != nil || len(children) != 1 || children[0] != 1 {
		t.Fatalf("Children(0) = %v, %v; want [1]", children, err)
	}
	children, err = p.Children(1)
	if err != nil || len(children) != 1 || children[0] != 2 {
		t.Fatalf("Children(1) = %v, %v; want [2]", children, err)
	}
}

func TestBaseProviderInsertManyLinksChildren(t *testing.T) {
	ch := make(chan MainThreadMessage, 4)
	p := NewBaseProvider(ch)

	ch <- ReplaceDataMessage([]span.Span{span.RootSpan()})
	ch <- ReplacePoolMessage([]span.PoolEntry{{}})
	ch <- InsertManyMessage([]span.Span{
		{Parent: 0, Metadata: span.Metadata{Name: "a"}},
		{Parent: 0, Metadata: span.Metadata{Name: "b"}},
	})
	p.FrameCallback()

	children, err := p.Children(0)
	if err != nil || len(children) != 2 {
		t.Fatalf("Children(0) = %v, %v; want 2 children", children, err)
	}
}

func TestBaseProviderOutOfBounds(t *testing.T) {
	ch := make(chan MainThreadMessage)
	p := NewBaseProvider(ch)

	if _, err := p.Parent(0); err == nil {
		t.Fatal("expected OutOfBoundsError on empty provider")
	}
}

func TestBaseProviderFrameCallbackBoundsBatch(t *testing.T) {
	ch := make(chan MainThreadMessage, frameBatchSize*2)
	p := NewBaseProvider(ch)
	ch <- ReplaceDataMessage([]span.Span{span.RootSpan()})
	ch <- ReplacePoolMessage([]span.PoolEntry{{}})
	for i := 0; i < frameBatchSize*2-2; i++ {
		ch <- InsertMessage(span.Span{Parent: 0, Metadata: span.Metadata{Name: "x"}})
	}

	p.FrameCallback()
	first := p.Len()
	p.FrameCallback()
	second := p.Len()

	if first >= second {
		t.Fatalf("expected second FrameCallback to drain remaining messages: first=%d second=%d", first, second)
	}
	if first > frameBatchSize {
		t.Fatalf("first FrameCallback drained more than frameBatchSize: %d", first)
	}
}
