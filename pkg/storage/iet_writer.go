// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package storage implements the two span store writers: IETWriter,
// which appends a crash-safe log, and ETWriter, which additionally
// produces an indexed snapshot on shutdown. Both run a single worker
// goroutine fed by a buffered channel of 256 messages, so the producer
// thread (TreeLayer) does not block on I/O; it blocks only once that
// buffer is full.
package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/NHR-FAU/entrace/pkg/enlog"
	"github.com/NHR-FAU/entrace/pkg/span"
	"github.com/NHR-FAU/entrace/pkg/wire"
)

// ErrAlreadyShutdown is returned by IETWriter.Shutdown once the writer
// has already been shut down. NewSpan has no error result and does not
// report it.
var ErrAlreadyShutdown = errors.New("storage: writer already shut down")

type ietMessage struct {
	s        *span.Span
	shutdown chan error
}

// IETWriter appends span records to a sink in IET (or IET-prefixed)
// framing. Configurations: length-prefixed is recommended for TCP
// streams, non-length-prefixed for files.
type IETWriter struct {
	ch             chan ietMessage
	done           chan struct{}
	lengthPrefixed bool
}

// NewIETWriter writes the magic header and a synthetic root record to
// sink, then starts the background worker. Per spec, the writer owns
// exactly one worker goroutine for the lifetime of the sink.
func NewIETWriter(sink io.Writer, lengthPrefixed bool) (*IETWriter, error) {
	bw := bufio.NewWriter(sink)
	if err := wire.WriteIETMagic(bw, lengthPrefixed); err != nil {
		return nil, fmt.Errorf("storage: write iet magic: %w", err)
	}
	if err := wire.EncodeIETRecord(bw, span.RootSpan(), lengthPrefixed); err != nil {
		return nil, fmt.Errorf("storage: write root record: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("storage: flush root record: %w", err)
	}

	w := &IETWriter{
		ch:             make(chan ietMessage, 256),
		done:           make(chan struct{}),
		lengthPrefixed: lengthPrefixed,
	}
	go w.run(bw)
	return w, nil
}

func (w *IETWriter) run(bw *bufio.Writer) {
	defer close(w.done)
	for msg := range w.ch {
		if msg.shutdown != nil {
			msg.shutdown <- bw.Flush()
			return
		}
		if err := wire.EncodeIETRecord(bw, *msg.s, w.lengthPrefixed); err != nil {
			enlog.Errorf("storage: failed to encode span, dropping record: %v", err)
		}
	}
}

// NewSpan enqueues one span for serialization. The caller never blocks
// on I/O: the channel only blocks if the worker has fallen far enough
// behind to fill the buffer, which is an accepted backpressure
// tradeoff, not a design goal.
func (w *IETWriter) NewSpan(s span.Span) {
	w.ch <- ietMessage{s: &s}
}

// Shutdown flushes the sink and stops the worker. Go has no Drop, so
// unlike the original's implicit-shutdown-on-drop guarantee, callers
// MUST call Shutdown explicitly (typically via defer) to flush the
// final batch.
func (w *IETWriter) Shutdown() error {
	select {
	case <-w.done:
		return ErrAlreadyShutdown
	default:
	}
	resp := make(chan error, 1)
	w.ch <- ietMessage{shutdown: resp}
	err := <-resp
	<-w.done
	return err
}
