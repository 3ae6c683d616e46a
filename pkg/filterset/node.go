// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package filterset implements the arena-based filter-set DAG that
// backs query evaluation: a rewrite normalizer, a two-phase DFS
// materializer and the predicate matcher they call into.
package filterset

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/NHR-FAU/entrace/pkg/span"
)

// NodeID indexes into an Evaluator's node arena. 0 is a perfectly
// ordinary id here (unlike pool ids, there is no reserved root).
type NodeID = int

// PredID indexes into an Evaluator's predicate arena.
type PredID = int

// CompareRel is the relational operator a Predicate tests.
type CompareRel uint8

const (
	RelLess CompareRel = iota
	RelEqual
	RelGreater
)

func (r CompareRel) String() string {
	switch r {
	case RelLess:
		return "<"
	case RelEqual:
		return "=="
	case RelGreater:
		return ">"
	default:
		return "?"
	}
}

// Predicate tests one attribute against a constant. Attribute names
// beginning with "meta." address metadata fields (name, target, level,
// module_path, file, line); any other name addresses a span attribute.
type Predicate struct {
	Attr     string
	Rel      CompareRel
	Constant span.Value
}

// Kind discriminates the Filterset variants.
type Kind uint8

const (
	KindDead Kind = iota
	KindPrimitive
	KindBlackBox
	KindRelDnf
	KindAnd
	KindOr
	KindNot
)

func (k Kind) String() string {
	switch k {
	case KindDead:
		return "Dead"
	case KindPrimitive:
		return "Primitive"
	case KindBlackBox:
		return "BlackBox"
	case KindRelDnf:
		return "RelDnf"
	case KindAnd:
		return "And"
	case KindOr:
		return "Or"
	case KindNot:
		return "Not"
	default:
		return "?"
	}
}

// Node is one entry in the filter-set arena. Only the fields relevant
// to Kind are meaningful; this is Go's stand-in for a tagged union.
type Node struct {
	Kind Kind

	Bitmap *roaring.Bitmap // Primitive

	Src NodeID // BlackBox, RelDnf, Not

	// Clauses is a RelDnf node's disjunctive normal form: an id
	// matches iff any inner slice's predicates all hold (OR of ANDs).
	Clauses [][]PredID

	Items []NodeID // And, Or
}

// childrenKind classifies how many direct children Children reports,
// mirroring the original's ChildrenRef enum so the post-order walk and
// the materializer share one traversal shape.
type childrenKind uint8

const (
	childrenNone childrenKind = iota
	childrenOne
	childrenMany
)

func (n Node) children() (childrenKind, NodeID, []NodeID) {
	switch n.Kind {
	case KindDead, KindPrimitive:
		return childrenNone, 0, nil
	case KindBlackBox, KindRelDnf, KindNot:
		return childrenOne, n.Src, nil
	case KindAnd, KindOr:
		return childrenMany, 0, n.Items
	default:
		return childrenNone, 0, nil
	}
}
