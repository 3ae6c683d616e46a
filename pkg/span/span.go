// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package span holds the data model shared by every storage writer,
// every LogProvider implementation, and the filter-set evaluator: the
// Span record itself, its Metadata, the tagged-union attribute Value,
// and the PoolEntry children list that makes the span store a tree.
package span

// Level mirrors a tracing severity level as a single byte so it can be
// stored compactly in Metadata and compared against predicate constants.
type Level uint8

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Metadata is the producer-side descriptor attached to a span. Field
// order is canonical and must not change: it is part of the wire
// format (every encoder walks these fields in this order).
type Metadata struct {
	Name       string
	Target     string
	Level      Level
	ModulePath *string
	File       *string
	Line       *uint32
}

// RootMetadata returns the synthetic metadata used for pool id 0.
func RootMetadata() Metadata {
	return Metadata{
		Name:  "root",
		Level: LevelTrace,
	}
}

// ValueKind tags the variant held by a Value. The declared order
// (String, Bytes, Bool, Float64, U64, I64, U128, I128) is the wire tag
// order and must not be reordered.
type ValueKind uint8

const (
	KindString ValueKind = iota
	KindBytes
	KindBool
	KindFloat64
	KindU64
	KindI64
	KindU128
	KindI128
)

// Value is a tagged union over the attribute value types a producer can
// record. Go has no native sum type, so exactly one of the typed fields
// is meaningful, selected by Kind. U128/I128 are stored as raw 16-byte
// big-endian-free buffers: the comparison rules (see pkg/filterset)
// never decode them arithmetically, so no native 128-bit type is
// needed.
type Value struct {
	Kind    ValueKind
	Str     string
	Bytes   []byte
	Bool    bool
	Float64 float64
	U64     uint64
	I64     int64
	U128    [16]byte
	I128    [16]byte
}

func StringValue(s string) Value    { return Value{Kind: KindString, Str: s} }
func BytesValue(b []byte) Value     { return Value{Kind: KindBytes, Bytes: b} }
func BoolValue(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func Float64Value(f float64) Value  { return Value{Kind: KindFloat64, Float64: f} }
func U64Value(u uint64) Value       { return Value{Kind: KindU64, U64: u} }
func I64Value(i int64) Value        { return Value{Kind: KindI64, I64: i} }
func U128Value(b [16]byte) Value    { return Value{Kind: KindU128, U128: b} }
func I128Value(b [16]byte) Value    { return Value{Kind: KindI128, I128: b} }

// Attr is one (name, Value) pair in a span's attribute list. Insertion
// order is preserved and names are not guaranteed unique.
type Attr struct {
	Name  string
	Value Value
}

// Span is the unit of capture. Field order is canonical and is part of
// the wire format: parent, message, metadata, attributes.
type Span struct {
	Parent     uint32
	Message    *string
	Metadata   Metadata
	Attributes []Attr
}

// RootSpan returns the synthetic span stored at pool id 0.
func RootSpan() Span {
	return Span{Parent: 0, Metadata: RootMetadata()}
}

// PoolEntry is the tree-structure counterpart to a Span: the ordered
// list of pool ids whose Parent equals this entry's own index.
type PoolEntry struct {
	Children []uint32
}

// Header is the cheap rendering subset of a span, avoiding a full
// attribute decode on the hot display path.
type Header struct {
	Name    string
	Level   Level
	File    *string
	Line    *uint32
	Message *string
}
