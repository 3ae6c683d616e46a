// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package provider

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/NHR-FAU/entrace/pkg/enlog"
	"github.com/NHR-FAU/entrace/pkg/span"
	"github.com/NHR-FAU/entrace/pkg/wire"
)

// shortTimeout is the read deadline used while draining a connection
// that might have more data queued up; it lets the worker periodically
// flush whatever has accumulated instead of blocking indefinitely on
// the next record.
const shortTimeout = 50 * time.Millisecond

// RemoteProvider serves spans streamed in over a single accepted TCP
// connection using the IET-prefixed wire framing (10-byte magic
// followed by repeated 8-byte-length-prefixed span records).
type RemoteProvider struct {
	*BaseProvider
	events chan Event
}

func (p *RemoteProvider) Events() <-chan Event { return p.events }

// ListenRemoteProvider accepts exactly one connection on l and serves
// its stream as a LogProvider. The accept and subsequent read loop run
// on a background goroutine; r is notified after every delivered
// batch.
func ListenRemoteProvider(l net.Listener, r Refresh) *RemoteProvider {
	if r == nil {
		r = DummyRefresher{}
	}
	ch := make(chan MainThreadMessage, 256)
	p := &RemoteProvider{
		BaseProvider: NewBaseProvider(ch),
		events:       make(chan Event, 16),
	}
	go p.worker(l, ch, r)
	return p
}

type remoteReadState uint8

const (
	wantMagic remoteReadState = iota
	wantMessage
)

type remoteWorker struct {
	conn      net.Conn
	br        *bufio.Reader
	ch        chan<- MainThreadMessage
	events    chan<- Event
	refresher Refresh
	state     remoteReadState
	pending   []span.Span
}

func (p *RemoteProvider) worker(l net.Listener, ch chan<- MainThreadMessage, r Refresh) {
	p.events <- InfoEvent(ServerStarted)
	conn, err := l.Accept()
	if err != nil {
		p.events <- ErrEvent(fmt.Errorf("remote provider: accept failed: %w", err))
		r.Refresh()
		return
	}
	p.events <- InfoEvent(ReceivedConnection)
	r.Refresh()

	w := &remoteWorker{
		conn:      conn,
		br:        bufio.NewReader(conn),
		ch:        ch,
		events:    p.events,
		refresher: r,
		state:     wantMagic,
	}
	if err := w.setShortTimeout(); err != nil {
		w.events <- ErrEvent(err)
	}

	for {
		done, err := w.step()
		if err != nil {
			w.events <- ErrEvent(err)
			return
		}
		if done {
			return
		}
	}
}

func (w *remoteWorker) setShortTimeout() error {
	return w.conn.SetReadDeadline(time.Now().Add(shortTimeout))
}

func (w *remoteWorker) setNoTimeout() error {
	return w.conn.SetReadDeadline(time.Time{})
}

// blockOnData waits, with no deadline, for at least one more byte to
// become available, then restores the short timeout. This is what lets
// the worker sit idle between bursts without busy-polling.
func (w *remoteWorker) blockOnData() error {
	if err := w.setNoTimeout(); err != nil {
		return err
	}
	if _, err := w.br.Peek(1); err != nil {
		return err
	}
	return w.setShortTimeout()
}

func (w *remoteWorker) sendPending() {
	switch len(w.pending) {
	case 0:
		return
	case 1:
		w.ch <- InsertMessage(w.pending[0])
	default:
		w.ch <- InsertManyMessage(w.pending)
	}
	w.pending = nil
	w.refresher.Refresh()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// step runs one iteration of the WantMagic/WantMessage state machine,
// reporting whether the client closed the connection cleanly. A
// non-nil error is fatal and ends the worker as well.
func (w *remoteWorker) step() (bool, error) {
	switch w.state {
	case wantMagic:
		var buf [wire.MagicSize]byte
		if _, err := io.ReadFull(w.br, buf[:]); err != nil {
			if errors.Is(err, io.EOF) {
				w.events <- InfoEvent(RemoteClosedConnection)
				w.refresher.Refresh()
				return true, nil
			}
			return false, fmt.Errorf("remote provider: reading magic: %w", err)
		}
		if _, _, err := wire.ParseMagic(buf); err != nil {
			return false, err
		}
		w.state = wantMessage
		return false, nil

	case wantMessage:
		var lenBuf [8]byte
		if _, err := io.ReadFull(w.br, lenBuf[:]); err != nil {
			if isTimeout(err) {
				w.sendPending()
				if berr := w.blockOnData(); berr != nil {
					return false, berr
				}
				return false, nil
			}
			if errors.Is(err, io.EOF) {
				w.events <- InfoEvent(RemoteClosedConnection)
				w.sendPending()
				w.refresher.Refresh()
				return true, nil
			}
			return false, fmt.Errorf("remote provider: reading length prefix: %w", err)
		}

		contentLen := binary.LittleEndian.Uint64(lenBuf[:])
		payload := make([]byte, contentLen)
		if _, err := io.ReadFull(w.br, payload); err != nil {
			return false, fmt.Errorf("remote provider: reading record of length %d: %w", contentLen, err)
		}
		s, err := wire.DecodeSpan(wire.NewCursor(payload))
		if err != nil {
			enlog.Errorf("remote provider: dropping undecodable record: %v", err)
			return false, nil
		}
		w.pending = append(w.pending, s)
		return false, nil
	}
	return true, fmt.Errorf("remote provider: unreachable read state %d", w.state)
}
