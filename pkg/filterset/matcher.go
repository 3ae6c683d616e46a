// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package filterset

import (
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/NHR-FAU/entrace/pkg/span"
)

// Matcher is the injected predicate engine a RelDnf node delegates to.
// A well-implemented matcher batches predicate evaluation per id
// rather than materializing one bitmap per predicate.
type Matcher interface {
	// SubsetMatchingDNF returns the subset of input whose id matches
	// at least one clause (an AND of predicates).
	SubsetMatchingDNF(clauses [][]Predicate, input *roaring.Bitmap) *roaring.Bitmap
}

// AttrLookup resolves a span attribute (or, for names beginning with
// "meta.", a metadata field) by pool id.
type AttrLookup interface {
	Lookup(id uint32, attr string) (span.Value, bool)
}

// DefaultMatcher is the reference Matcher: it scans every id in the
// input set and tests every clause in order, short-circuiting at the
// first match.
type DefaultMatcher struct {
	Lookup AttrLookup
}

func (m DefaultMatcher) SubsetMatchingDNF(clauses [][]Predicate, input *roaring.Bitmap) *roaring.Bitmap {
	out := roaring.New()
	it := input.Iterator()
	for it.HasNext() {
		id := it.Next()
		if m.matchesAnyClause(id, clauses) {
			out.Add(id)
		}
	}
	return out
}

func (m DefaultMatcher) matchesAnyClause(id uint32, clauses [][]Predicate) bool {
	for _, clause := range clauses {
		if m.matchesAllPredicates(id, clause) {
			return true
		}
	}
	return false
}

func (m DefaultMatcher) matchesAllPredicates(id uint32, preds []Predicate) bool {
	for _, p := range preds {
		v, ok := m.Lookup.Lookup(id, p.Attr)
		if !ok {
			return false
		}
		if !compareValue(v, p.Rel, p.Constant) {
			return false
		}
	}
	return true
}

func compareValue(v span.Value, rel CompareRel, constant span.Value) bool {
	cmp, ok := compareValues(v, constant)
	if !ok {
		return false
	}
	switch rel {
	case RelLess:
		return cmp < 0
	case RelEqual:
		return cmp == 0
	case RelGreater:
		return cmp > 0
	default:
		return false
	}
}

// compareValues implements the value-comparison rules: strings compare
// lexicographically, booleans as 0/1, floats by total ordering
// (float-to-float only), integers are cross-convertible between U64
// and I64, and Bytes/128-bit integers never match anything, including
// themselves. Any other mismatched kind pairing yields not-ok.
func compareValues(a, b span.Value) (int, bool) {
	switch a.Kind {
	case span.KindString:
		if b.Kind != span.KindString {
			return 0, false
		}
		return strings.Compare(a.Str, b.Str), true
	case span.KindBool:
		if b.Kind != span.KindBool {
			return 0, false
		}
		return int(boolToInt(a.Bool)) - int(boolToInt(b.Bool)), true
	case span.KindFloat64:
		if b.Kind != span.KindFloat64 {
			return 0, false
		}
		switch {
		case a.Float64 < b.Float64:
			return -1, true
		case a.Float64 > b.Float64:
			return 1, true
		default:
			return 0, true
		}
	case span.KindU64, span.KindI64:
		if b.Kind != span.KindU64 && b.Kind != span.KindI64 {
			return 0, false
		}
		ai, bi := asInt64(a), asInt64(b)
		switch {
		case ai < bi:
			return -1, true
		case ai > bi:
			return 1, true
		default:
			return 0, true
		}
	default:
		// Bytes, U128, I128: explicit design choice, never match.
		return 0, false
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func asInt64(v span.Value) int64 {
	if v.Kind == span.KindU64 {
		return int64(v.U64)
	}
	return v.I64
}
