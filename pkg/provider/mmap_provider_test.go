// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package provider

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/NHR-FAU/entrace/pkg/span"
	"github.com/NHR-FAU/entrace/pkg/wire"
)

func TestMmapProviderReadsETFile(t *testing.T) {
	msg := "hi"
	spans := []span.Span{
		span.RootSpan(),
		{Parent: 0, Message: &msg, Metadata: span.Metadata{Name: "child"}},
	}

	var iet bytes.Buffer
	if err := wire.WriteIETMagic(&iet, false); err != nil {
		t.Fatalf("writing IET magic: %v", err)
	}
	bw := bufio.NewWriter(&iet)
	for _, s := range spans {
		if err := wire.EncodeIETRecord(bw, s, false); err != nil {
			t.Fatalf("encoding: %v", err)
		}
	}
	if err := bw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	var et bytes.Buffer
	if err := wire.IETToET(&iet, &et); err != nil {
		t.Fatalf("IETToET: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "trace.et")
	if err := os.WriteFile(path, et.Bytes(), 0o644); err != nil {
		t.Fatalf("writing ET file: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	p, err := OpenMmapProvider(f)
	if err != nil {
		t.Fatalf("OpenMmapProvider: %v", err)
	}
	defer p.Close()

	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}
	h, err := p.Header(1)
	if err != nil {
		t.Fatalf("Header(1): %v", err)
	}
	if h.Message == nil || *h.Message != "hi" {
		t.Fatalf("Header(1).Message = %v, want hi", h.Message)
	}
	parent, err := p.Parent(1)
	if err != nil || parent != 0 {
		t.Fatalf("Parent(1) = %d, %v; want 0", parent, err)
	}
	children, err := p.Children(0)
	if err != nil || len(children) != 1 || children[0] != 1 {
		t.Fatalf("Children(0) = %v, %v; want [1]", children, err)
	}
}
