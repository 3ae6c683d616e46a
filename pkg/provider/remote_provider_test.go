// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package provider

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/NHR-FAU/entrace/pkg/span"
	"github.com/NHR-FAU/entrace/pkg/wire"
)

func writeIETPrefixedRecord(t *testing.T, conn net.Conn, s span.Span) {
	t.Helper()
	w := bufio.NewWriter(conn)
	if err := wire.EncodeIETRecord(w, s, true); err != nil {
		t.Fatalf("encoding record: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flushing: %v", err)
	}
}

func TestRemoteProviderStreamsRecords(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	p := ListenRemoteProvider(l, nil)

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := wire.WriteIETMagic(conn, true); err != nil {
		t.Fatalf("writing magic: %v", err)
	}
	msg := "hello"
	writeIETPrefixedRecord(t, conn, span.Span{Parent: 0, Message: &msg, Metadata: span.Metadata{Name: "root"}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p.FrameCallback()
		if p.Len() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if p.Len() == 0 {
		t.Fatal("expected at least one span to arrive over the connection")
	}
	h, err := p.Header(0)
	if err != nil {
		t.Fatalf("Header(0): %v", err)
	}
	if h.Message == nil || *h.Message != "hello" {
		t.Fatalf("Header(0).Message = %v, want hello", h.Message)
	}
}

func TestRemoteProviderReportsConnectionLifecycle(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	p := ListenRemoteProvider(l, nil)

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	ev := <-p.Events()
	if !ev.IsInfo || ev.Info != ServerStarted {
		t.Fatalf("expected ServerStarted event first, got %+v", ev)
	}
	ev = <-p.Events()
	if !ev.IsInfo || ev.Info != ReceivedConnection {
		t.Fatalf("expected ReceivedConnection event next, got %+v", ev)
	}

	conn.Close()
	ev = <-p.Events()
	if !ev.IsInfo || ev.Info != RemoteClosedConnection {
		t.Fatalf("expected RemoteClosedConnection event on close, got %+v", ev)
	}
}
