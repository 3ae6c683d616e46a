// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

// ConfigSchema is the JSON Schema for Config, validated via Validate
// before Init is trusted to decode a config file.
const ConfigSchema = `{
  "type": "object",
  "description": "Configuration for an entrace process.",
  "properties": {
    "provider": {
      "description": "Which LogProvider backend to serve from.",
      "type": "object",
      "properties": {
        "kind": {
          "description": "Backend kind.",
          "type": "string",
          "enum": ["mmap", "filewatch", "remote"]
        },
        "path": {
          "description": "Backing file path for 'mmap'/'filewatch'.",
          "type": "string"
        },
        "watch": {
          "description": "Enable fsnotify-based tailing for 'filewatch'.",
          "type": "boolean"
        },
        "listen-address": {
          "description": "TCP listen address for 'remote', e.g. ':7777'.",
          "type": "string"
        }
      },
      "required": ["kind"]
    },
    "query": {
      "description": "Parallel script dispatcher tuning.",
      "type": "object",
      "properties": {
        "thread-count": {
          "description": "Shard-worker goroutines per query. 0 = NumCPU.",
          "type": "integer",
          "minimum": 0
        },
        "chunk-cache-memory": {
          "description": "Compiled-chunk cache budget in bytes of cached source text. 0 = default.",
          "type": "integer",
          "minimum": 0
        },
        "chunk-cache-ttl": {
          "description": "Duration string after which a compiled chunk expires, counted from compilation, e.g. '5m'.",
          "type": "string"
        }
      }
    },
    "nats": {
      "description": "Optional event-republishing subscriber; omit to disable.",
      "type": "object",
      "properties": {
        "address": {
          "description": "NATS server address, e.g. 'nats://localhost:4222'.",
          "type": "string"
        },
        "username": {
          "type": "string"
        },
        "password": {
          "type": "string"
        },
        "creds-file-path": {
          "type": "string"
        }
      },
      "required": ["address"]
    }
  },
  "required": ["provider"]
}`
