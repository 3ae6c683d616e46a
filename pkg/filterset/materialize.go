// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package filterset

import (
	"math"

	"github.com/RoaringBitmap/roaring"

	"github.com/NHR-FAU/entrace/pkg/enlog"
)

// fullRangeEnd is one past the largest representable 32-bit pool id,
// the exclusive upper bound passed to AddRange/RemoveRange to cover
// the entire roaring domain.
const fullRangeEnd = uint64(math.MaxUint32) + 1

type materializeFrame struct {
	node  NodeID
	ready bool
}

// Materialize computes id's bitmap (and every node it transitively
// depends on) via a two-phase DFS: a node is first pushed unready so
// its children are scheduled ahead of it, then re-pushed ready once
// they are, at which point Results holds every child's bitmap.
//
// Callers should Normalize before calling Materialize for good
// performance. Not's result may contain ids beyond the real id range
// since the evaluator has no notion of the universe size; callers
// MUST clamp against their own len() before using it.
func (e *Evaluator) Materialize(id NodeID) {
	stack := []materializeFrame{{id, false}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !top.ready {
			stack = append(stack, materializeFrame{top.node, true})
			kind, one, many := e.Nodes[top.node].children()
			switch kind {
			case childrenOne:
				stack = append(stack, materializeFrame{one, false})
			case childrenMany:
				for _, c := range many {
					stack = append(stack, materializeFrame{c, false})
				}
			}
			continue
		}

		e.materializeOne(top.node)
	}
}

func (e *Evaluator) materializeOne(id NodeID) {
	n := e.Nodes[id]
	switch n.Kind {
	case KindDead:
		enlog.Errorf("filterset: materializing a dead node %d", id)
		e.Results[id] = roaring.New()
	case KindPrimitive:
		e.Results[id] = n.Bitmap.Clone()
	case KindBlackBox:
		e.Results[id] = e.Results[n.Src].Clone()
	case KindRelDnf:
		e.Results[id] = e.Matcher.SubsetMatchingDNF(e.resolveClauses(n.Clauses), e.Results[n.Src])
	case KindAnd:
		e.Results[id] = e.intersectAll(n.Items)
	case KindOr:
		e.Results[id] = e.unionAll(n.Items)
	case KindNot:
		// Complement against roaring's full 32-bit universe: ids
		// beyond the real data range leak in here, by design; see
		// the doc comment above.
		full := roaring.New()
		full.AddRange(0, fullRangeEnd)
		full.AndNot(e.Results[n.Src])
		e.Results[id] = full
	}
}

func (e *Evaluator) resolveClauses(clauses [][]PredID) [][]Predicate {
	out := make([][]Predicate, len(clauses))
	for i, clause := range clauses {
		preds := make([]Predicate, len(clause))
		for j, pid := range clause {
			preds[j] = e.Preds[pid]
		}
		out[i] = preds
	}
	return out
}

func (e *Evaluator) intersectAll(items []NodeID) *roaring.Bitmap {
	if len(items) == 0 {
		return roaring.New()
	}
	result := e.Results[items[0]].Clone()
	for _, it := range items[1:] {
		result.And(e.Results[it])
	}
	return result
}

func (e *Evaluator) unionAll(items []NodeID) *roaring.Bitmap {
	result := roaring.New()
	for _, it := range items {
		result.Or(e.Results[it])
	}
	return result
}

// Clamp restricts a materialized result (typically one rooted in a Not)
// to [0, universeLen), per the documented limitation that Not cannot
// know the true universe size on its own.
func Clamp(bm *roaring.Bitmap, universeLen uint32) *roaring.Bitmap {
	out := bm.Clone()
	out.RemoveRange(uint64(universeLen), fullRangeEnd)
	return out
}
