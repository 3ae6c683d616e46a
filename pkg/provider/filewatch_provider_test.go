// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package provider

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/NHR-FAU/entrace/pkg/span"
	"github.com/NHR-FAU/entrace/pkg/wire"
)

func writeIETFile(t *testing.T, path string, spans []span.Span) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := wire.WriteIETMagic(f, false); err != nil {
		t.Fatalf("writing magic: %v", err)
	}
	bw := bufio.NewWriter(f)
	for _, s := range spans {
		if err := wire.EncodeIETRecord(bw, s, false); err != nil {
			t.Fatalf("encoding record: %v", err)
		}
	}
	if err := bw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestFileWatchProviderLoadsInitialData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.iet")
	msg := "hi"
	writeIETFile(t, path, []span.Span{
		span.RootSpan(),
		{Parent: 0, Message: &msg, Metadata: span.Metadata{Name: "child"}},
	})

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := f.Seek(wire.MagicSize, 0); err != nil {
		t.Fatalf("seek past magic: %v", err)
	}

	p, err := OpenFileWatchProvider(f, false, FileWatchConfig{Watch: false}, nil)
	if err != nil {
		t.Fatalf("OpenFileWatchProvider: %v", err)
	}
	p.FrameCallback()

	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}
	children, err := p.Children(0)
	if err != nil || len(children) != 1 || children[0] != 1 {
		t.Fatalf("Children(0) = %v, %v; want [1]", children, err)
	}
}

func TestFileWatchProviderFollowsAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.iet")
	writeIETFile(t, path, []span.Span{span.RootSpan()})

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := f.Seek(wire.MagicSize, 0); err != nil {
		t.Fatalf("seek past magic: %v", err)
	}

	p, err := OpenFileWatchProvider(f, false, FileWatchConfig{Watch: true, Path: path}, nil)
	if err != nil {
		t.Fatalf("OpenFileWatchProvider: %v", err)
	}
	p.FrameCallback()
	if p.Len() != 1 {
		t.Fatalf("initial Len() = %d, want 1", p.Len())
	}

	appendF, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	msg := "appended"
	bw := bufio.NewWriter(appendF)
	if err := wire.EncodeIETRecord(bw, span.Span{Parent: 0, Message: &msg, Metadata: span.Metadata{Name: "late"}}, false); err != nil {
		t.Fatalf("encoding appended record: %v", err)
	}
	if err := bw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	appendF.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p.FrameCallback()
		if p.Len() > 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if p.Len() != 2 {
		t.Fatalf("Len() after append = %d, want 2", p.Len())
	}
}
