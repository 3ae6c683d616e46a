// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package filterset

import (
	"strings"

	"github.com/NHR-FAU/entrace/pkg/provider"
	"github.com/NHR-FAU/entrace/pkg/span"
)

// ProviderLookup resolves predicate attributes against a live
// LogProvider, handling the "meta." prefix by reading Meta(id) instead
// of scanning Attrs(id).
type ProviderLookup struct {
	Provider provider.LogProvider
}

func (p ProviderLookup) Lookup(id uint32, attr string) (span.Value, bool) {
	if rest, ok := strings.CutPrefix(attr, "meta."); ok {
		return p.lookupMeta(id, rest)
	}
	attrs, err := p.Provider.Attrs(id)
	if err != nil {
		return span.Value{}, false
	}
	for _, a := range attrs {
		if a.Name == attr {
			return a.Value, true
		}
	}
	return span.Value{}, false
}

func (p ProviderLookup) lookupMeta(id uint32, field string) (span.Value, bool) {
	m, err := p.Provider.Meta(id)
	if err != nil {
		return span.Value{}, false
	}
	switch field {
	case "name":
		return span.StringValue(m.Name), true
	case "target":
		return span.StringValue(m.Target), true
	case "level":
		return span.U64Value(uint64(m.Level)), true
	case "module_path":
		if m.ModulePath == nil {
			return span.Value{}, false
		}
		return span.StringValue(*m.ModulePath), true
	case "file":
		if m.File == nil {
			return span.Value{}, false
		}
		return span.StringValue(*m.File), true
	case "line":
		if m.Line == nil {
			return span.Value{}, false
		}
		return span.U64Value(uint64(*m.Line)), true
	default:
		return span.Value{}, false
	}
}
