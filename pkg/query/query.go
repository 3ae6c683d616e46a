// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package query implements the parallel script dispatcher: shard the
// span store across worker goroutines, run a script per shard, and
// reconcile the partial results into one QueryResult. The cooperative
// en_join barrier lets a script opt into a single-coordinator merge
// instead of per-shard results.
package query

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NHR-FAU/entrace/pkg/enlog"
	"github.com/NHR-FAU/entrace/pkg/provider"
)

// PageSize bounds how many ids a single QueryResult page holds. Pages
// exists so a GUI can paginate a large id set instead of rendering it
// all at once; entrace itself never enforces a page boundary beyond
// reporting the count.
const PageSize = 256

// ErrJoinShutdown is the join sentinel: a shard that calls en_join and
// is not the last to arrive returns this instead of a real result. It
// must never surface as a user-visible error.
var ErrJoinShutdown = errors.New("query: join shutdown sentinel")

// Range is a half-open shard of pool ids, [Start, End).
type Range struct {
	Start uint32
	End   uint32
}

func (r Range) Len() int { return int(r.End) - int(r.Start) }

// Shard divides [0, spansLen) into at most threadCount contiguous
// ranges, the last absorbing any remainder. If spansLen has fewer
// items than threadCount, a single shard covering everything is
// returned instead of producing empty shards.
func Shard(spansLen uint32, threadCount int) []Range {
	if threadCount <= 0 {
		threadCount = 1
	}
	itemsPerThread := int(spansLen) / threadCount
	if itemsPerThread == 0 {
		return []Range{{Start: 0, End: spansLen}}
	}
	ranges := make([]Range, threadCount)
	for i := 0; i < threadCount; i++ {
		ranges[i] = Range{Start: uint32(i * itemsPerThread), End: uint32((i + 1) * itemsPerThread)}
	}
	ranges[threadCount-1].End = spansLen
	return ranges
}

// JoinCtx is the shared barrier state for one query's en_join calls.
// All threads but the last to arrive contribute their partial list and
// drop out with ErrJoinShutdown; the last arrival receives every
// contribution concatenated and keeps running its script.
type JoinCtx struct {
	mu            sync.Mutex
	isJoining     bool
	threadsJoined int
	threadCount   int
	results       [][]uint32
}

// NewJoinCtx constructs a JoinCtx sized for threadCount shard workers.
func NewJoinCtx(threadCount int) *JoinCtx {
	return &JoinCtx{threadCount: threadCount}
}

// Join registers partial as this thread's contribution. The last
// thread to arrive gets back the merged list of every contribution and
// a nil error; every earlier arrival gets ErrJoinShutdown.
func (j *JoinCtx) Join(partial []uint32) ([]uint32, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.isJoining = true
	j.results = append(j.results, partial)
	j.threadsJoined++

	if j.threadsJoined < j.threadCount {
		return nil, ErrJoinShutdown
	}

	merged := make([]uint32, 0, j.mergedLenLocked())
	for _, r := range j.results {
		merged = append(merged, r...)
	}
	return merged, nil
}

func (j *JoinCtx) mergedLenLocked() int {
	n := 0
	for _, r := range j.results {
		n += len(r)
	}
	return n
}

// QueryResult is the reconciled output of a dispatched script: the
// matched ids and the page count they imply under PageSize.
type QueryResult struct {
	IDs     []uint32
	Pages   int
	Elapsed time.Duration
}

// Engine runs a single script against a bound shard. Implementations
// live under pkg/query/luaengine and similar sub-packages; Dispatch is
// engine-agnostic.
type Engine interface {
	Eval(script string, binding Binding) ([]uint32, error)
}

// Binding is everything a shard's script invocation is given: its id
// range, the span store it may read, and the shared join barrier.
type Binding struct {
	Shard    Range
	Provider provider.LogProvider
	Join     *JoinCtx
}

// Dispatch shards provider.Len() into threadCount ranges, evaluates
// script once per shard concurrently, and reconciles the results. A
// shard returning ErrJoinShutdown contributes no ids and is not an
// error; any other error aborts the whole query.
func Dispatch(engine Engine, script string, p provider.LogProvider, threadCount int) (QueryResult, error) {
	start := time.Now()
	spansLen := uint32(p.Len())
	ranges := Shard(spansLen, threadCount)
	n := len(ranges)

	join := NewJoinCtx(n)
	partials := make([][]uint32, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i, r := range ranges {
		go func(i int, r Range) {
			defer wg.Done()
			ids, err := engine.Eval(script, Binding{Shard: r, Provider: p, Join: join})
			if err != nil {
				if errors.Is(err, ErrJoinShutdown) {
					return
				}
				errs[i] = err
				return
			}
			partials[i] = ids
		}(i, r)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return QueryResult{}, fmt.Errorf("query: shard %d: %w", i, err)
		}
	}

	totalLen := 0
	for _, p := range partials {
		totalLen += len(p)
	}
	ids := make([]uint32, 0, totalLen)
	for _, p := range partials {
		ids = append(ids, p...)
	}

	pages := (len(ids) + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}

	enlog.Debugf("query: dispatched %d shards over %d spans, %d ids matched in %s", n, spansLen, len(ids), time.Since(start))

	return QueryResult{IDs: ids, Pages: pages, Elapsed: time.Since(start)}, nil
}
