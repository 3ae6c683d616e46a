// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package query

import (
	"errors"
	"sync"
	"testing"

	"github.com/NHR-FAU/entrace/pkg/span"
)

type stubProvider struct{ length int }

func (s stubProvider) Children(uint32) ([]uint32, error)  { return nil, nil }
func (s stubProvider) Parent(uint32) (uint32, error)      { return 0, nil }
func (s stubProvider) Attrs(uint32) ([]span.Attr, error)  { return nil, nil }
func (s stubProvider) Header(uint32) (span.Header, error) { return span.Header{}, nil }
func (s stubProvider) Meta(uint32) (span.Metadata, error) { return span.Metadata{}, nil }
func (s stubProvider) Len() int                           { return s.length }
func (s stubProvider) FrameCallback()                     {}

func TestShardDividesRangeAmongThreads(t *testing.T) {
	ranges := Shard(100, 4)
	if len(ranges) != 4 {
		t.Fatalf("expected 4 shards, got %d", len(ranges))
	}
	if ranges[0].Start != 0 || ranges[0].End != 25 {
		t.Fatalf("unexpected first shard: %+v", ranges[0])
	}
	if ranges[3].End != 100 {
		t.Fatalf("last shard must absorb the remainder: %+v", ranges[3])
	}
	total := 0
	for _, r := range ranges {
		total += r.Len()
	}
	if total != 100 {
		t.Fatalf("shards must cover every id exactly once, got total %d", total)
	}
}

func TestShardCollapsesWhenFewerItemsThanThreads(t *testing.T) {
	ranges := Shard(2, 8)
	if len(ranges) != 1 {
		t.Fatalf("expected a single shard when items < threads, got %d", len(ranges))
	}
	if ranges[0].Start != 0 || ranges[0].End != 2 {
		t.Fatalf("unexpected collapsed shard: %+v", ranges[0])
	}
}

func TestJoinCtxOnlyLastArrivalMerges(t *testing.T) {
	j := NewJoinCtx(3)
	var wg sync.WaitGroup
	results := make([][]uint32, 3)
	errs := make([]error, 3)
	wg.Add(3)
	for i := 0; i < 3; i++ {
		go func(i int) {
			defer wg.Done()
			merged, err := j.Join([]uint32{uint32(i)})
			results[i] = merged
			errs[i] = err
		}(i)
	}
	wg.Wait()

	shutdowns, merges := 0, 0
	var mergedResult []uint32
	for i := 0; i < 3; i++ {
		switch {
		case errors.Is(errs[i], ErrJoinShutdown):
			shutdowns++
		case errs[i] == nil:
			merges++
			mergedResult = results[i]
		default:
			t.Fatalf("unexpected error: %v", errs[i])
		}
	}
	if shutdowns != 2 || merges != 1 {
		t.Fatalf("expected 2 shutdowns and 1 merge, got %d shutdowns and %d merges", shutdowns, merges)
	}
	if len(mergedResult) != 3 {
		t.Fatalf("merged result should contain all 3 contributions, got %v", mergedResult)
	}
}

type constEngine struct {
	perShard func(Range) []uint32
}

func (e constEngine) Eval(_ string, b Binding) ([]uint32, error) {
	return e.perShard(b.Shard), nil
}

func TestDispatchReconcilesPartials(t *testing.T) {
	p := stubProvider{length: 10}
	engine := constEngine{perShard: func(r Range) []uint32 {
		ids := make([]uint32, 0, r.Len())
		for i := r.Start; i < r.End; i++ {
			ids = append(ids, i)
		}
		return ids
	}}

	result, err := Dispatch(engine, "", p, 4)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if len(result.IDs) != 10 {
		t.Fatalf("expected 10 reconciled ids, got %d: %v", len(result.IDs), result.IDs)
	}
	seen := make(map[uint32]bool)
	for _, id := range result.IDs {
		seen[id] = true
	}
	for i := uint32(0); i < 10; i++ {
		if !seen[i] {
			t.Fatalf("missing id %d in reconciled result", i)
		}
	}
}

type failEngine struct{}

func (failEngine) Eval(_ string, b Binding) ([]uint32, error) {
	if b.Shard.Start == 0 {
		return nil, errors.New("boom")
	}
	return []uint32{}, nil
}

func TestDispatchPropagatesRealErrors(t *testing.T) {
	p := stubProvider{length: 10}
	_, err := Dispatch(failEngine{}, "", p, 4)
	if err == nil {
		t.Fatalf("expected Dispatch to propagate the shard error")
	}
}

type joinEngine struct{}

func (joinEngine) Eval(_ string, b Binding) ([]uint32, error) {
	partial := make([]uint32, 0, b.Shard.Len())
	for i := b.Shard.Start; i < b.Shard.End; i++ {
		partial = append(partial, i)
	}
	return b.Join.Join(partial)
}

func TestDispatchWithCooperativeJoinMatchesSingleThreaded(t *testing.T) {
	p := stubProvider{length: 100}
	result, err := Dispatch(joinEngine{}, "", p, 4)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if len(result.IDs) != 100 {
		t.Fatalf("cooperative join must produce every id exactly once, got %d", len(result.IDs))
	}
}
