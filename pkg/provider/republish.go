// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package provider

import (
	"context"
	"encoding/json"

	"github.com/NHR-FAU/entrace/pkg/enlog"
)

// EventSource is implemented by providers that expose a lifecycle Event
// channel: FileWatchProvider and RemoteProvider, not MmapProvider or
// BaseProvider, since those never run a background worker that could
// observe a connection or fatal error.
type EventSource interface {
	Events() <-chan Event
}

// Publisher is the slice of *nats.Client's API a Republisher needs;
// accepting the interface rather than the concrete type keeps this
// package testable without a live NATS server.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// eventWire is the JSON shape an Event republishes as. Err is flattened
// to its message since an error value does not round-trip through JSON.
type eventWire struct {
	Info   string `json:"info,omitempty"`
	Err    string `json:"err,omitempty"`
	IsInfo bool   `json:"is_info"`
}

// Republisher mirrors an EventSource's lifecycle notices onto a NATS
// subject for external dashboards that want provider state without
// embedding entrace itself. Purely additive: nothing in pkg/provider or
// pkg/query depends on a Republisher existing.
type Republisher struct {
	client  Publisher
	subject string
	source  EventSource
}

// NewRepublisher returns a Republisher, or nil if client is nil so
// callers can unconditionally defer to Run without a nil check at every
// call site.
func NewRepublisher(client Publisher, subject string, source EventSource) *Republisher {
	if client == nil {
		return nil
	}
	return &Republisher{client: client, subject: subject, source: source}
}

// Run drains the source's Event channel until it closes or ctx is
// canceled, publishing each event as JSON. A publish failure is logged
// and skipped, never fatal: a dashboard outage must not interrupt span
// ingestion.
func (r *Republisher) Run(ctx context.Context) {
	if r == nil {
		return
	}
	ch := r.source.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.publish(ev)
		}
	}
}

func (r *Republisher) publish(ev Event) {
	wire := eventWire{IsInfo: ev.IsInfo}
	if ev.IsInfo {
		wire.Info = ev.Info.String()
	}
	if ev.Err != nil {
		wire.Err = ev.Err.Error()
	}

	data, err := json.Marshal(wire)
	if err != nil {
		enlog.Errorf("provider: event republish marshal failed: %v", err)
		return
	}
	if err := r.client.Publish(r.subject, data); err != nil {
		enlog.Warnf("provider: event republish to %q failed: %v", r.subject, err)
	}
}
