// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package provider

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/NHR-FAU/entrace/pkg/enlog"
	"github.com/NHR-FAU/entrace/pkg/span"
	"github.com/NHR-FAU/entrace/pkg/wire"
)

// maxRetries bounds how many consecutive non-EOF decode failures a
// watcher tolerates (an in-progress partial write looks identical to
// corruption until the writer finishes its append) before giving up and
// surfacing a fatal error.
const maxRetries = 8

// sendBatchThreshold is how many buffered inserts accumulate before the
// watcher flushes them as a single InsertMany rather than waiting for
// end-of-batch.
const sendBatchThreshold = 32

// FileIETError distinguishes fatal watcher failures (stop watching)
// from recoverable ones (log and keep watching).
type FileIETError struct {
	Err   error
	Fatal bool
}

func (e *FileIETError) Error() string { return e.Err.Error() }
func (e *FileIETError) Unwrap() error { return e.Err }

// LoadIET reads a full IET stream from r (typically the initial
// contents of a file, opened before the watcher attaches) into a pool
// and data array ready to hand a BaseProvider. lengthPrefixed selects
// the stream framing.
func LoadIET(r io.Reader, lengthPrefixed bool) ([]span.PoolEntry, []span.Span, error) {
	br := bufio.NewReader(r)
	var spans []span.Span
	for {
		if lengthPrefixed {
			var lenBuf [8]byte
			if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, nil, err
			}
		}
		s, err := wire.DecodeSpan(br)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, nil, err
		}
		spans = append(spans, s)
	}

	pool := make([]span.PoolEntry, len(spans))
	for id, s := range spans {
		if id == 0 {
			continue
		}
		pool[s.Parent].Children = append(pool[s.Parent].Children, uint32(id))
	}
	return pool, spans, nil
}

// FileWatchConfig selects whether a FileWatchProvider follows new
// appends to its backing file after the initial load.
type FileWatchConfig struct {
	Watch bool
	Path  string
}

// FileWatchProvider serves an IET file loaded fully into memory at
// open time, optionally following further appends via fsnotify.
type FileWatchProvider struct {
	*BaseProvider
	events chan Event
}

// Events returns the channel the watcher worker publishes its errors
// to. An error wrapping a FileIETError with Fatal set is the last event
// before the worker stops.
func (p *FileWatchProvider) Events() <-chan Event { return p.events }

// OpenFileWatchProvider loads f (length-prefixed or not, per
// lengthPrefixed) and, if cfg.Watch is set, starts a background worker
// that follows further appends to cfg.Path using r to request a
// repaint after each batch.
func OpenFileWatchProvider(f *os.File, lengthPrefixed bool, cfg FileWatchConfig, r Refresh) (*FileWatchProvider, error) {
	if r == nil {
		r = DummyRefresher{}
	}
	pool, data, err := LoadIET(f, lengthPrefixed)
	if err != nil {
		return nil, fmt.Errorf("provider: loading initial IET data: %w", err)
	}

	ch := make(chan MainThreadMessage, 256)
	ch <- ReplaceDataMessage(data)
	ch <- ReplacePoolMessage(pool)

	p := &FileWatchProvider{
		BaseProvider: NewBaseProvider(ch),
		events:       make(chan Event, 16),
	}

	if cfg.Watch {
		pos, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("provider: getting stream position: %w", err)
		}
		go p.watch(f, pos, lengthPrefixed, cfg.Path, ch, r)
	}
	return p, nil
}

// countingReader tracks the logical number of bytes pulled through it,
// since a bufio.Reader in front of the file will read ahead of what the
// decoder has actually consumed and os.File.Seek(0, SeekCurrent) would
// therefore overstate the last known-good position.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type notifyWorker struct {
	ch             chan<- MainThreadMessage
	events         chan<- Event
	refresher      Refresh
	lengthPrefixed bool
	file           *os.File
	counted        *countingReader
	br             *bufio.Reader
	lastGoodPos    int64
	retries        int
	pendingEntries []span.Span
}

// resetReaderAt discards any buffered-ahead bytes and starts reading
// fresh at pos, keeping the counting reader's logical position in sync
// with the real file offset.
func (w *notifyWorker) resetReaderAt(pos int64) error {
	if _, err := w.file.Seek(pos, io.SeekStart); err != nil {
		return err
	}
	w.counted = &countingReader{r: w.file, n: pos}
	w.br = bufio.NewReader(w.counted)
	return nil
}

func (p *FileWatchProvider) watch(f *os.File, startPos int64, lengthPrefixed bool, path string, ch chan<- MainThreadMessage, r Refresh) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.events <- ErrEvent(&FileIETError{Err: fmt.Errorf("creating file watcher: %w", err), Fatal: true})
		return
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		p.events <- ErrEvent(&FileIETError{Err: fmt.Errorf("watching %s: %w", path, err), Fatal: true})
		return
	}

	w := &notifyWorker{
		ch:             ch,
		events:         p.events,
		refresher:      r,
		lengthPrefixed: lengthPrefixed,
		file:           f,
		lastGoodPos:    startPos,
	}
	if err := w.resetReaderAt(startPos); err != nil {
		p.events <- ErrEvent(&FileIETError{Err: fmt.Errorf("seeking to start position: %w", err), Fatal: true})
		return
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Write == 0 {
				continue
			}
			enlog.Debugf("provider: file watcher fired for %s", path)
			if err := w.onModify(); err != nil {
				var fe *FileIETError
				if errors.As(err, &fe) && fe.Fatal {
					p.events <- ErrEvent(err)
					return
				}
				p.events <- ErrEvent(err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			enlog.Errorf("provider: file watcher error: %v", err)
		}
	}
}

func (w *notifyWorker) sendEntries() {
	switch len(w.pendingEntries) {
	case 0:
		return
	case 1:
		w.ch <- InsertMessage(w.pendingEntries[0])
	default:
		w.ch <- InsertManyMessage(w.pendingEntries)
	}
	w.pendingEntries = nil
	w.refresher.Refresh()
}

// onModify drains whatever new complete records have been appended
// since lastGoodPos, seeking back to lastGoodPos on a partial trailing
// record so the next wake-up picks up where this one left off.
func (w *notifyWorker) onModify() error {
	for {
		if w.lengthPrefixed {
			var lenBuf [8]byte
			if _, err := io.ReadFull(w.br, lenBuf[:]); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					if rerr := w.resetReaderAt(w.lastGoodPos); rerr != nil {
						return &FileIETError{Err: rerr, Fatal: true}
					}
					break
				}
				return &FileIETError{Err: err, Fatal: true}
			}
		}

		s, err := wire.DecodeSpan(w.br)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if rerr := w.resetReaderAt(w.lastGoodPos); rerr != nil {
					return &FileIETError{Err: rerr, Fatal: true}
				}
				w.sendEntries()
				break
			}
			w.retries++
			if w.retries > maxRetries {
				w.sendEntries()
				return &FileIETError{Err: fmt.Errorf("decode failed after %d retries: %w", maxRetries, err), Fatal: true}
			}
			if rerr := w.resetReaderAt(w.lastGoodPos); rerr != nil {
				return &FileIETError{Err: rerr, Fatal: true}
			}
			break
		}

		w.pendingEntries = append(w.pendingEntries, s)
		if len(w.pendingEntries) > sendBatchThreshold {
			w.sendEntries()
		}
		w.lastGoodPos = w.counted.n - int64(w.br.Buffered())
		w.retries = 0
	}
	w.sendEntries()
	return nil
}
