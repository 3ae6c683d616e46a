// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package querycache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// ChunkCache compiles Lua query scripts to a *lua.FunctionProto once
// and caches the result keyed by the script's source hash, so a query
// re-run (or the same script dispatched to one goroutine per shard)
// pays the parse/compile cost once rather than once per shard per run.
type ChunkCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewChunkCache returns a ChunkCache bounded to approximately
// maxmemory bytes of cached source text, expiring each entry ttl after
// it was compiled (cache hits do not extend it).
func NewChunkCache(maxmemory int, ttl time.Duration) *ChunkCache {
	return &ChunkCache{cache: New(maxmemory), ttl: ttl}
}

// GetOrCompile returns the compiled chunk for source, compiling and
// caching it on a miss.
func (cc *ChunkCache) GetOrCompile(source string) (*lua.FunctionProto, error) {
	key := hashSource(source)

	var compileErr error
	value := cc.cache.Get(key, func() (interface{}, time.Duration, int) {
		chunk, err := parse.Parse(strings.NewReader(source), "<query>")
		if err != nil {
			compileErr = fmt.Errorf("querycache: parse: %w", err)
			return nil, 0, 0
		}
		proto, err := lua.Compile(chunk, "<query>")
		if err != nil {
			compileErr = fmt.Errorf("querycache: compile: %w", err)
			return nil, 0, 0
		}
		return proto, cc.ttl, len(source)
	})

	if compileErr != nil {
		cc.cache.Del(key)
		return nil, compileErr
	}

	proto, ok := value.(*lua.FunctionProto)
	if !ok || proto == nil {
		return nil, fmt.Errorf("querycache: no cached chunk for key %s", key)
	}
	return proto, nil
}

func hashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
