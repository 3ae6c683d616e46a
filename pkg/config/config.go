// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides the top-level, JSON-tagged configuration for
// an entrace process: which LogProvider backend to serve from, the
// parallel-query worker pool, the compiled-chunk cache, and optional
// NATS connection settings for republishing a provider's Event stream.
//
// # Configuration Hierarchy
//
//	Config
//	├─ Provider: which backend and its connection details
//	│  ├─ Kind: "mmap", "filewatch", or "remote"
//	│  ├─ Path: file path for "mmap"/"filewatch"
//	│  └─ ListenAddress: TCP listen address for "remote"
//	├─ Query: parallel dispatcher tuning
//	│  ├─ ThreadCount: worker goroutines per query (0 = NumCPU)
//	│  ├─ ChunkCacheMemory: approximate bytes budgeted to compiled chunks
//	│  └─ ChunkCacheTTL: duration string, expiry after compilation
//	└─ Nats: optional event-republishing subscriber (nil = disabled)
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"github.com/NHR-FAU/entrace/pkg/enlog"
	"github.com/NHR-FAU/entrace/pkg/nats"
)

const (
	DefaultChunkCacheMemory = 1 << 20 // 1 MiB of cached script source per ChunkCache
	DefaultChunkCacheTTL    = 5 * time.Minute
	DefaultPageSize         = 256
)

// ProviderConfig selects and configures one LogProvider backend.
type ProviderConfig struct {
	// Kind is one of "mmap", "filewatch", "remote".
	Kind string `json:"kind"`
	// Path is the backing file for "mmap"/"filewatch".
	Path string `json:"path"`
	// Watch enables fsnotify-based tailing for "filewatch"; ignored
	// otherwise.
	Watch bool `json:"watch"`
	// ListenAddress is the TCP address "remote" listens on, e.g.
	// ":7777".
	ListenAddress string `json:"listen-address"`
}

// QueryConfig tunes the parallel script dispatcher.
type QueryConfig struct {
	// ThreadCount is the number of shard-worker goroutines per query.
	// 0 defaults to runtime.NumCPU().
	ThreadCount int `json:"thread-count"`
	// ChunkCacheMemory bounds the compiled-chunk cache in bytes of
	// cached source text. 0 defaults to DefaultChunkCacheMemory.
	ChunkCacheMemory int `json:"chunk-cache-memory"`
	// ChunkCacheTTL is a duration string (e.g. "5m") after which a
	// compiled chunk expires, counted from when it was compiled; cache
	// hits do not extend it. Empty defaults to DefaultChunkCacheTTL.
	ChunkCacheTTL string `json:"chunk-cache-ttl"`
}

// EffectiveThreadCount resolves ThreadCount's 0-means-NumCPU default.
func (q QueryConfig) EffectiveThreadCount() int {
	if q.ThreadCount > 0 {
		return q.ThreadCount
	}
	return runtime.NumCPU()
}

// EffectiveChunkCacheTTL resolves ChunkCacheTTL's empty-string default,
// falling back to DefaultChunkCacheTTL on a malformed duration string
// rather than failing the whole config load.
func (q QueryConfig) EffectiveChunkCacheTTL() time.Duration {
	if q.ChunkCacheTTL == "" {
		return DefaultChunkCacheTTL
	}
	d, err := time.ParseDuration(q.ChunkCacheTTL)
	if err != nil {
		enlog.Warnf("config: invalid chunk-cache-ttl %q, using default: %s", q.ChunkCacheTTL, err.Error())
		return DefaultChunkCacheTTL
	}
	return d
}

// EffectiveChunkCacheMemory resolves ChunkCacheMemory's 0-means-default.
func (q QueryConfig) EffectiveChunkCacheMemory() int {
	if q.ChunkCacheMemory > 0 {
		return q.ChunkCacheMemory
	}
	return DefaultChunkCacheMemory
}

// Config is the root configuration for an entrace process.
type Config struct {
	Provider ProviderConfig   `json:"provider"`
	Query    QueryConfig      `json:"query"`
	Nats     *nats.NatsConfig `json:"nats"`
}

// Keys is the global configuration instance, populated by Init.
var Keys Config

// Init decodes rawConfig into the global Keys, rejecting unknown
// fields so a typo in a config file surfaces immediately rather than
// silently being ignored.
func Init(rawConfig json.RawMessage) error {
	if rawConfig == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(rawConfig))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
