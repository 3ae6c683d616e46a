// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package treelayer

import (
	"testing"

	"github.com/NHR-FAU/entrace/pkg/span"
)

type recordingStorage struct {
	spans []span.Span
}

func (r *recordingStorage) NewSpan(s span.Span) { r.spans = append(r.spans, s) }

func TestPoolIdsAreMonotonicAndSkipZero(t *testing.T) {
	rec := &recordingStorage{}
	tl := New(rec)

	id1 := tl.NewSpan(100, nil, true, nil, span.Metadata{Name: "a"}, nil)
	id2 := tl.NewSpan(101, nil, false, nil, span.Metadata{Name: "b"}, nil)

	if id1 != 1 || id2 != 2 {
		t.Fatalf("got ids %d, %d; want 1, 2 (0 is reserved for root)", id1, id2)
	}
}

func TestMissingParentReparentsToRoot(t *testing.T) {
	rec := &recordingStorage{}
	tl := New(rec)

	missing := uint64(9999)
	tl.NewSpan(1, &missing, false, nil, span.Metadata{Name: "orphan"}, nil)

	if rec.spans[0].Parent != 0 {
		t.Fatalf("parent = %d, want 0 (reparented to root)", rec.spans[0].Parent)
	}
}

func TestExplicitParentTakesPrecedenceOverContextual(t *testing.T) {
	rec := &recordingStorage{}
	tl := New(rec)

	explicitParentTracingID := uint64(1)
	contextualTracingID := uint64(2)
	tl.NewSpan(explicitParentTracingID, nil, true, nil, span.Metadata{Name: "p1"}, nil)
	tl.NewSpan(contextualTracingID, nil, true, nil, span.Metadata{Name: "p2"}, nil)

	explicit := explicitParentTracingID
	contextual := contextualTracingID
	tl.NewSpan(3, &explicit, false, &contextual, span.Metadata{Name: "child"}, nil)

	if rec.spans[2].Parent != 1 {
		t.Fatalf("parent = %d, want 1 (explicit parent's pool id)", rec.spans[2].Parent)
	}
}

func TestCloseRemovesMapping(t *testing.T) {
	rec := &recordingStorage{}
	tl := New(rec)

	tl.NewSpan(1, nil, true, nil, span.Metadata{Name: "a"}, nil)
	tl.Close(1)

	if _, ok := tl.poolIDFor(1); ok {
		t.Fatalf("expected mapping for closed span to be removed")
	}
}

func TestMessageAttributeExtracted(t *testing.T) {
	rec := &recordingStorage{}
	tl := New(rec)

	var b AttrBuilder
	b.RecordString("message", "hello")
	b.RecordUint64("count", 3)
	tl.NewSpan(1, nil, true, nil, span.Metadata{Name: "a"}, b.Attrs())

	if rec.spans[0].Message == nil || *rec.spans[0].Message != "hello" {
		t.Fatalf("message not extracted: %+v", rec.spans[0].Message)
	}
	if len(rec.spans[0].Attributes) != 2 {
		t.Fatalf("expected attributes to be preserved alongside message extraction")
	}
}
