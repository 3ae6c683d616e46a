// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package storage

import (
	"bufio"
	"fmt"
	"io"

	"github.com/NHR-FAU/entrace/pkg/enlog"
	"github.com/NHR-FAU/entrace/pkg/span"
	"github.com/NHR-FAU/entrace/pkg/wire"
)

type etMessage struct {
	s        *span.Span
	shutdown *etShutdownRequest
}

type etShutdownRequest struct {
	tempSink io.Writer
	resp     chan ETShutdownResult
}

// ETShutdownResult is what ETWriter.Shutdown hands back: the captured
// IET bytes and the conversion outcome. It does not carry the sinks
// themselves; the caller, which passed in both, swaps them: rename
// tempSink's backing file over the original's path, or discard it on
// ConvertErr and keep serving the IET file while surfacing the failure.
type ETShutdownResult struct {
	// Data is the raw, unconverted IET span bytes written during
	// capture. It is always populated, even when ConvertErr is set, so
	// a conversion failure never loses captured data.
	Data []byte
	// ConvertErr is set if flushing the IET sink or the IET->ET
	// conversion failed; tempSink's contents are then undefined and
	// must not be used.
	ConvertErr error
}

// ETWriter behaves like an IETWriter during capture — so a crash still
// yields a readable IET sink — while additionally maintaining an
// in-memory offset table and pool so Shutdown can build the ET index
// without rescanning.
type ETWriter struct {
	ch   chan etMessage
	done chan struct{}
}

// NewETWriter mirrors NewIETWriter's magic/root setup, then starts a
// worker that both appends to sink and mirrors every encoded record
// into an in-memory buffer used for the eventual ET conversion.
func NewETWriter(sink io.Writer) (*ETWriter, error) {
	bw := bufio.NewWriter(sink)
	if err := wire.WriteIETMagic(bw, false); err != nil {
		return nil, fmt.Errorf("storage: write iet magic: %w", err)
	}

	w := &ETWriter{
		ch:   make(chan etMessage, 256),
		done: make(chan struct{}),
	}
	go w.run(bw)

	// The root record goes through the same append path as every other
	// span so the mirrored table stays consistent.
	w.NewSpan(span.RootSpan())
	return w, nil
}

func (w *ETWriter) run(bw *bufio.Writer) {
	defer close(w.done)

	var data []byte
	var table wire.TableData

	appendSpan := func(s span.Span) error {
		scratch := newScratchBuf()
		if err := wire.EncodeSpan(scratch, s); err != nil {
			return err
		}
		id := uint32(len(table.Offsets))
		table.Offsets = append(table.Offsets, uint64(len(data)))
		table.Pool = append(table.Pool, span.PoolEntry{})
		if id != 0 {
			table.Pool[s.Parent].Children = append(table.Pool[s.Parent].Children, id)
		}
		data = append(data, scratch.buf...)
		_, err := bw.Write(scratch.buf)
		return err
	}

	for msg := range w.ch {
		if msg.shutdown != nil {
			flushErr := bw.Flush()
			result := ETShutdownResult{Data: data}
			if flushErr != nil {
				result.ConvertErr = fmt.Errorf("storage: flush iet sink before conversion: %w", flushErr)
				msg.shutdown.resp <- result
				return
			}
			if err := wire.IETToETWithTable(data, table, msg.shutdown.tempSink); err != nil {
				result.ConvertErr = err
			}
			msg.shutdown.resp <- result
			return
		}
		if err := appendSpan(*msg.s); err != nil {
			enlog.Errorf("storage: failed to encode span, dropping record: %v", err)
		}
	}
}

// NewSpan enqueues one span; see IETWriter.NewSpan for the backpressure
// note.
func (w *ETWriter) NewSpan(s span.Span) {
	w.ch <- etMessage{s: &s}
}

// Shutdown converts the captured trace into ET format using the
// already-known offset/pool tables (the fast path — no rescan) and
// writes the result into tempSink. Both the raw IET bytes and any
// conversion error are returned so the caller never loses data on
// failure.
func (w *ETWriter) Shutdown(tempSink io.Writer) ETShutdownResult {
	resp := make(chan ETShutdownResult, 1)
	w.ch <- etMessage{shutdown: &etShutdownRequest{tempSink: tempSink, resp: resp}}
	result := <-resp
	<-w.done
	return result
}

type scratchBuf struct{ buf []byte }

func newScratchBuf() *scratchBuf { return &scratchBuf{} }

func (s *scratchBuf) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}
func (s *scratchBuf) WriteByte(b byte) error {
	s.buf = append(s.buf, b)
	return nil
}
