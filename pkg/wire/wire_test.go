// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package wire

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/NHR-FAU/entrace/pkg/span"
)

func msg(s string) *string { return &s }

func helloTrace() []span.Span {
	return []span.Span{
		span.RootSpan(),
		{
			Parent:  0,
			Message: msg("h"),
			Metadata: span.Metadata{
				Name:  "hello",
				Level: span.LevelInfo,
			},
		},
	}
}

func encodeIET(t *testing.T, spans []span.Span, lengthPrefixed bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteIETMagic(&buf, lengthPrefixed); err != nil {
		t.Fatalf("write magic: %v", err)
	}
	bw := bufio.NewWriter(&buf)
	for _, s := range spans {
		if err := EncodeIETRecord(bw, s, lengthPrefixed); err != nil {
			t.Fatalf("encode record: %v", err)
		}
	}
	if err := bw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	return buf.Bytes()
}

func TestHelloRoundTripMagic(t *testing.T) {
	raw := encodeIET(t, helloTrace(), false)
	want := []byte{0, 'E', 'N', 'T', 'R', 'A', 'C', 'E', 1, byte(FormatIET)}
	if !bytes.Equal(raw[:MagicSize], want) {
		t.Fatalf("magic = % x, want % x", raw[:MagicSize], want)
	}
}

func TestIETRoundTripThroughET(t *testing.T) {
	iet := encodeIET(t, helloTrace(), false)

	var etBuf bytes.Buffer
	if err := IETToET(bytes.NewReader(iet), &etBuf); err != nil {
		t.Fatalf("iet->et: %v", err)
	}

	var iet2 bytes.Buffer
	if err := ETToIET(bytes.NewReader(etBuf.Bytes()), &iet2); err != nil {
		t.Fatalf("et->iet: %v", err)
	}

	if !bytes.Equal(iet, iet2.Bytes()) {
		t.Fatalf("round trip mismatch:\n got  % x\n want % x", iet2.Bytes(), iet)
	}
}

func TestETRoundTripThroughIET(t *testing.T) {
	iet := encodeIET(t, helloTrace(), false)
	var etBuf bytes.Buffer
	if err := IETToET(bytes.NewReader(iet), &etBuf); err != nil {
		t.Fatalf("iet->et: %v", err)
	}
	et := etBuf.Bytes()

	var iet2 bytes.Buffer
	if err := ETToIET(bytes.NewReader(et), &iet2); err != nil {
		t.Fatalf("et->iet: %v", err)
	}
	var et2 bytes.Buffer
	if err := IETToET(bytes.NewReader(iet2.Bytes()), &et2); err != nil {
		t.Fatalf("iet->et: %v", err)
	}

	if !bytes.Equal(et, et2.Bytes()) {
		t.Fatalf("round trip mismatch:\n got  % x\n want % x", et2.Bytes(), et)
	}
}

func TestCrashSafeTruncatedTail(t *testing.T) {
	raw := encodeIET(t, helloTrace(), false)
	truncated := raw[:len(raw)-3]

	r := bufio.NewReader(bytes.NewReader(truncated[MagicSize:]))
	spans, err := DecodeIETStream(r)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("expected to recover exactly the complete root record, got %d spans", len(spans))
	}
}

func TestValueKindsRoundTrip(t *testing.T) {
	one := span.Span{
		Parent:   0,
		Metadata: span.Metadata{Name: "n", Target: "t", Level: span.LevelWarn},
		Attributes: []span.Attr{
			{Name: "s", Value: span.StringValue("hi")},
			{Name: "b", Value: span.BytesValue([]byte{1, 2, 3})},
			{Name: "bool", Value: span.BoolValue(true)},
			{Name: "f", Value: span.Float64Value(3.5)},
			{Name: "u", Value: span.U64Value(42)},
			{Name: "i", Value: span.I64Value(-7)},
		},
	}

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	if err := EncodeSpan(bw, one); err != nil {
		t.Fatalf("encode: %v", err)
	}
	bw.Flush()

	got, err := DecodeSpan(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Attributes) != len(one.Attributes) {
		t.Fatalf("attribute count mismatch: got %d want %d", len(got.Attributes), len(one.Attributes))
	}
	for i, a := range got.Attributes {
		if a.Value.Kind != one.Attributes[i].Value.Kind {
			t.Errorf("attr %d kind = %d, want %d", i, a.Value.Kind, one.Attributes[i].Value.Kind)
		}
	}
}
