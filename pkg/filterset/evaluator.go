// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package filterset

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/NHR-FAU/entrace/pkg/span"
)

// Evaluator owns a filter-set arena, the predicate arena it
// references, the per-node materialized results, and the injected
// Matcher used to evaluate RelDnf leaves. Every non-Primitive node has
// exactly one owner (the parent referencing it); rewrites that absorb
// a child mark its slot Dead rather than remove it, so indices stay
// stable throughout a Normalize/Materialize pass.
type Evaluator struct {
	Nodes   []Node
	Preds   []Predicate
	Results map[NodeID]*roaring.Bitmap
	Matcher Matcher
}

// NewEvaluator returns an empty Evaluator using m to test RelDnf
// clauses during materialization.
func NewEvaluator(m Matcher) *Evaluator {
	return &Evaluator{Matcher: m, Results: make(map[NodeID]*roaring.Bitmap)}
}

func (e *Evaluator) addNode(n Node) NodeID {
	id := len(e.Nodes)
	e.Nodes = append(e.Nodes, n)
	return id
}

// NewPredicate interns a predicate and returns its id for use in a
// RelDnf clause.
func (e *Evaluator) NewPredicate(attr string, rel CompareRel, constant span.Value) PredID {
	id := len(e.Preds)
	e.Preds = append(e.Preds, Predicate{Attr: attr, Rel: rel, Constant: constant})
	return id
}

func (e *Evaluator) Dead() NodeID                     { return e.addNode(Node{Kind: KindDead}) }
func (e *Evaluator) Primitive(bm *roaring.Bitmap) NodeID {
	return e.addNode(Node{Kind: KindPrimitive, Bitmap: bm})
}
func (e *Evaluator) BlackBox(src NodeID) NodeID { return e.addNode(Node{Kind: KindBlackBox, Src: src}) }
func (e *Evaluator) RelDnf(clauses [][]PredID, src NodeID) NodeID {
	return e.addNode(Node{Kind: KindRelDnf, Clauses: clauses, Src: src})
}
func (e *Evaluator) And(items []NodeID) NodeID { return e.addNode(Node{Kind: KindAnd, Items: items}) }
func (e *Evaluator) Or(items []NodeID) NodeID  { return e.addNode(Node{Kind: KindOr, Items: items}) }
func (e *Evaluator) Not(src NodeID) NodeID     { return e.addNode(Node{Kind: KindNot, Src: src}) }

// IsAnd and IsOr are used by the rewrite actions to classify a node's
// children without exposing the Kind field everywhere.
func (e *Evaluator) IsAnd(id NodeID) bool { return e.Nodes[id].Kind == KindAnd }
func (e *Evaluator) IsOr(id NodeID) bool  { return e.Nodes[id].Kind == KindOr }
