// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package filterset

import (
	"fmt"
	"sort"
)

// MaxDNFClauses bounds a single DnfDnf fusion's clause-count product.
const MaxDNFClauses = 128

// MaxMergeDNFClauses bounds a MergeDnfsInAnd cartesian product, half
// of MaxDNFClauses since the result still has to survive a later
// DnfDnf fusion against an outer scope.
const MaxMergeDNFClauses = MaxDNFClauses / 2

// RewriteAction names the normalization step that fired, mostly useful
// for tests that assert a specific rewrite took place.
type RewriteAction uint8

const (
	ActionNone RewriteAction = iota
	ActionEliminateSingleAnd
	ActionEliminateSingleOr
	ActionCompressAnd
	ActionCompressOr
	ActionEliminateNotNot
	ActionDnfDnf
	ActionMergeDnfsInOr
	ActionMergeDnfsInAnd
)

// postOrder returns a DFS post-order of root's subgraph plus a
// parent_of table (parentOf[x] == -1 means unknown/root).
func (e *Evaluator) postOrder(root NodeID) (order []NodeID, parentOf []NodeID) {
	stack := []NodeID{root}
	order = make([]NodeID, 0, len(e.Nodes))
	parentOf = make([]NodeID, len(e.Nodes))
	for i := range parentOf {
		parentOf[i] = -1
	}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, v)
		kind, one, many := e.Nodes[v].children()
		switch kind {
		case childrenOne:
			stack = append(stack, one)
			parentOf[one] = v
		case childrenMany:
			stack = append(stack, many...)
			for _, c := range many {
				parentOf[c] = v
			}
		}
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, parentOf
}

// Normalize repeatedly rewrites root's subgraph to a fixpoint using a
// FIFO worklist seeded by a post-order walk. Calling it after
// Materialize has populated Results is a programmer error: the
// materialized node ids would no longer correspond to the rewritten
// graph.
func (e *Evaluator) Normalize(root NodeID) {
	if len(e.Results) != 0 {
		panic("filterset: normalizing after materialization is unsafe")
	}
	order, parentOf := e.postOrder(root)
	worklist := make([]NodeID, 0, len(order))

	process := func(x NodeID) {
		if e.rewriteUntilStable(x) && x != root {
			p := parentOf[x]
			if p < 0 {
				panic(fmt.Sprintf("filterset: parent of %d unknown after rewrite", x))
			}
			worklist = append(worklist, p)
		}
	}
	for _, x := range order {
		process(x)
	}
	for len(worklist) > 0 {
		x := worklist[0]
		worklist = worklist[1:]
		process(x)
	}
}

// rewriteUntilStable applies rewrite actions to id until none apply,
// reporting whether at least one fired.
func (e *Evaluator) rewriteUntilStable(id NodeID) bool {
	changed := false
	for e.tryRewrite(id) != ActionNone {
		changed = true
	}
	return changed
}

func (e *Evaluator) tryRewrite(id NodeID) RewriteAction {
	switch e.Nodes[id].Kind {
	case KindAnd:
		return e.tryRewriteAndOr(id, true)
	case KindOr:
		return e.tryRewriteAndOr(id, false)
	case KindNot:
		src := e.Nodes[id].Src
		if e.Nodes[src].Kind == KindNot {
			e.eliminateNotNot(id, src)
			return ActionEliminateNotNot
		}
	case KindRelDnf:
		src := e.Nodes[id].Src
		if e.Nodes[src].Kind == KindRelDnf {
			outer, inner := e.Nodes[id].Clauses, e.Nodes[src].Clauses
			if len(outer)*len(inner) < MaxDNFClauses {
				e.fuseDnfDnf(id, src)
				return ActionDnfDnf
			}
		}
	}
	return ActionNone
}

func (e *Evaluator) tryRewriteAndOr(id NodeID, isAnd bool) RewriteAction {
	n := e.Nodes[id]
	if len(n.Items) == 1 {
		e.replaceWithChild(id, n.Items[0])
		if isAnd {
			return ActionEliminateSingleAnd
		}
		return ActionEliminateSingleOr
	}

	sameKind := KindOr
	compressAction := ActionCompressOr
	if isAnd {
		sameKind = KindAnd
		compressAction = ActionCompressAnd
	}
	var inner []NodeID
	for _, it := range n.Items {
		if e.Nodes[it].Kind == sameKind {
			inner = append(inner, it)
		}
	}
	if len(inner) > 0 {
		e.compressInto(id, inner)
		return compressAction
	}

	if action := e.mergeDnfsIn(id, isAnd); action != ActionNone {
		return action
	}
	return ActionNone
}

// replaceWithChild makes id become a copy of child's node and
// tombstones child, preserving the ownership invariant: whoever held
// id's index now transparently owns what child used to represent.
func (e *Evaluator) replaceWithChild(id, child NodeID) {
	e.Nodes[id] = e.Nodes[child]
	e.Nodes[child] = Node{Kind: KindDead}
}

// compressInto flattens id's nested same-kind children (inner) into
// id's own item list, deduplicating via set insertion, and tombstones
// the absorbed nodes.
func (e *Evaluator) compressInto(id NodeID, inner []NodeID) {
	items := e.Nodes[id].Items
	set := make(map[NodeID]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	for _, ptr := range inner {
		delete(set, ptr)
		for _, child := range e.Nodes[ptr].Items {
			set[child] = struct{}{}
		}
	}
	newItems := make([]NodeID, 0, len(set))
	for it := range set {
		newItems = append(newItems, it)
	}
	sort.Ints(newItems)
	e.Nodes[id].Items = newItems
	for _, ptr := range inner {
		e.Nodes[ptr] = Node{Kind: KindDead}
	}
}

// eliminateNotNot rewrites Not(Not(x)) -> x: id becomes x's old
// content, and both the inner Not node (mid) and x's old slot are
// tombstoned.
func (e *Evaluator) eliminateNotNot(id, mid NodeID) {
	inner := e.Nodes[mid].Src
	e.Nodes[id] = e.Nodes[inner]
	e.Nodes[inner] = Node{Kind: KindDead}
	e.Nodes[mid] = Node{Kind: KindDead}
}

// fuseDnfDnf fuses RelDnf(outer, src) where src is itself
// RelDnf(inner, src2) into a single RelDnf(outer x inner, src2) by
// cartesian product, appending each outer clause to each inner clause.
func (e *Evaluator) fuseDnfDnf(id, src NodeID) {
	outer := e.Nodes[id].Clauses
	innerNode := e.Nodes[src]
	fused := make([][]PredID, 0, len(outer)*len(innerNode.Clauses))
	for _, oc := range outer {
		for _, ic := range innerNode.Clauses {
			merged := make([]PredID, 0, len(oc)+len(ic))
			merged = append(merged, oc...)
			merged = append(merged, ic...)
			fused = append(fused, merged)
		}
	}
	e.Nodes[id].Clauses = fused
	e.Nodes[id].Src = innerNode.Src
	e.Nodes[src] = Node{Kind: KindDead}
}

// mergeDnfsIn groups id's RelDnf children by source and merges each
// group sharing a source into a single RelDnf: by clause-list
// concatenation in an Or (the OR-of-AND shape already matches set
// union), or by a bounded cartesian product in an And (the
// distributive-law equivalent of intersecting two OR-of-AND sets).
func (e *Evaluator) mergeDnfsIn(id NodeID, isAnd bool) RewriteAction {
	items := e.Nodes[id].Items
	bySrc := make(map[NodeID][]NodeID)
	var srcs []NodeID
	for _, it := range items {
		if e.Nodes[it].Kind == KindRelDnf {
			src := e.Nodes[it].Src
			if _, ok := bySrc[src]; !ok {
				srcs = append(srcs, src)
			}
			bySrc[src] = append(bySrc[src], it)
		}
	}
	sort.Ints(srcs)

	for _, src := range srcs {
		group := bySrc[src]
		if len(group) < 2 {
			continue
		}
		first, rest := group[0], group[1:]
		clauses := append([][]PredID{}, e.Nodes[first].Clauses...)

		if isAnd {
			bailed := false
			for _, other := range rest {
				oc := e.Nodes[other].Clauses
				if len(clauses)*len(oc) > MaxMergeDNFClauses {
					bailed = true
					break
				}
				merged := make([][]PredID, 0, len(clauses)*len(oc))
				for _, c1 := range clauses {
					for _, c2 := range oc {
						m := make([]PredID, 0, len(c1)+len(c2))
						m = append(m, c1...)
						m = append(m, c2...)
						merged = append(merged, m)
					}
				}
				clauses = merged
			}
			if bailed {
				continue
			}
		} else {
			for _, other := range rest {
				clauses = append(clauses, e.Nodes[other].Clauses...)
			}
		}

		e.Nodes[first].Clauses = clauses
		removed := make(map[NodeID]struct{}, len(rest))
		for _, other := range rest {
			e.Nodes[other] = Node{Kind: KindDead}
			removed[other] = struct{}{}
		}
		newItems := make([]NodeID, 0, len(items))
		for _, it := range items {
			if _, ok := removed[it]; !ok {
				newItems = append(newItems, it)
			}
		}
		e.Nodes[id].Items = newItems

		if isAnd {
			return ActionMergeDnfsInAnd
		}
		return ActionMergeDnfsInOr
	}
	return ActionNone
}
