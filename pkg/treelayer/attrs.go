// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package treelayer

import "github.com/NHR-FAU/entrace/pkg/span"

// AttrBuilder accumulates (name, Value) pairs in the order a producer
// records them, mirroring the original's field Visitor: every typed
// field-recording call becomes one append into the canonical Value
// taxonomy.
type AttrBuilder struct {
	attrs []span.Attr
}

func (b *AttrBuilder) RecordString(name, v string) { b.attrs = append(b.attrs, span.Attr{Name: name, Value: span.StringValue(v)}) }
func (b *AttrBuilder) RecordBytes(name string, v []byte) {
	b.attrs = append(b.attrs, span.Attr{Name: name, Value: span.BytesValue(v)})
}
func (b *AttrBuilder) RecordBool(name string, v bool) {
	b.attrs = append(b.attrs, span.Attr{Name: name, Value: span.BoolValue(v)})
}
func (b *AttrBuilder) RecordFloat64(name string, v float64) {
	b.attrs = append(b.attrs, span.Attr{Name: name, Value: span.Float64Value(v)})
}
func (b *AttrBuilder) RecordUint64(name string, v uint64) {
	b.attrs = append(b.attrs, span.Attr{Name: name, Value: span.U64Value(v)})
}
func (b *AttrBuilder) RecordInt64(name string, v int64) {
	b.attrs = append(b.attrs, span.Attr{Name: name, Value: span.I64Value(v)})
}

// RecordError records an error's message as a string attribute, the
// same fallback the original visitor uses for non-primitive fields.
func (b *AttrBuilder) RecordError(name string, err error) {
	if err == nil {
		return
	}
	b.RecordString(name, err.Error())
}

// Attrs returns the accumulated attribute list in insertion order.
func (b *AttrBuilder) Attrs() []span.Attr { return b.attrs }
