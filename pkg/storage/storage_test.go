// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package storage

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/NHR-FAU/entrace/pkg/span"
	"github.com/NHR-FAU/entrace/pkg/wire"
)

func TestIETWriterRootThenSpans(t *testing.T) {
	var sink bytes.Buffer
	w, err := NewIETWriter(&sink, false)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	w.NewSpan(span.Span{Parent: 0, Metadata: span.Metadata{Name: "a"}})
	w.NewSpan(span.Span{Parent: 0, Metadata: span.Metadata{Name: "b"}})

	if err := w.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	raw := sink.Bytes()
	if len(raw) < wire.MagicSize {
		t.Fatalf("sink too short")
	}
	_, format, err := wire.ParseMagic([wire.MagicSize]byte(raw[:wire.MagicSize]))
	if err != nil {
		t.Fatalf("parse magic: %v", err)
	}
	if format != wire.FormatIET {
		t.Fatalf("format = %v, want IET", format)
	}

	spans, err := wire.DecodeIETStream(bufio.NewReader(bytes.NewReader(raw[wire.MagicSize:])))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(spans) != 3 {
		t.Fatalf("expected root + 2 spans, got %d", len(spans))
	}
	if spans[0].Metadata.Name != "root" {
		t.Fatalf("first span should be synthetic root, got %q", spans[0].Metadata.Name)
	}
}

func TestETWriterShutdownProducesValidET(t *testing.T) {
	var sink bytes.Buffer
	w, err := NewETWriter(&sink)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	w.NewSpan(span.Span{Parent: 0, Metadata: span.Metadata{Name: "child"}})

	var etSink bytes.Buffer
	result := w.Shutdown(&etSink)
	if result.ConvertErr != nil {
		t.Fatalf("convert: %v", result.ConvertErr)
	}

	var ietAgain bytes.Buffer
	if err := wire.ETToIET(bytes.NewReader(etSink.Bytes()), &ietAgain); err != nil {
		t.Fatalf("et->iet: %v", err)
	}

	spans, err := wire.DecodeIETStream(bufio.NewReader(bytes.NewReader(ietAgain.Bytes()[wire.MagicSize:])))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("expected root + 1 span, got %d", len(spans))
	}
}
