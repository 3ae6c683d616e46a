// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package luaengine implements query.Engine over gopher-lua: one fresh
// *lua.LState per shard, a small set of builtins bridging the span
// store into Lua values, and en_join wired straight into the shared
// JoinCtx barrier.
package luaengine

import (
	"errors"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/NHR-FAU/entrace/pkg/query"
	"github.com/NHR-FAU/entrace/pkg/querycache"
	"github.com/NHR-FAU/entrace/pkg/span"
)

// joinShutdownMarker is smuggled through lua.LState's error-message
// string since gopher-lua has no typed-error escape hatch out of
// RaiseError; Eval recognizes it and converts back to
// query.ErrJoinShutdown before returning.
const joinShutdownMarker = "__entrace_join_shutdown__"

// Engine is the gopher-lua query.Engine. The zero value is ready to
// use and recompiles its script on every Eval call; set Chunks to
// reuse a compiled chunk across shards and across repeated runs of
// the same script.
type Engine struct {
	Chunks *querycache.ChunkCache
}

func (e Engine) Eval(script string, binding query.Binding) ([]uint32, error) {
	L := lua.NewState()
	defer L.Close()

	registerBuiltins(L, binding)

	fn, err := e.load(L, script)
	if err != nil {
		return nil, fmt.Errorf("luaengine: %w", err)
	}

	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		if strings.Contains(err.Error(), joinShutdownMarker) {
			return nil, query.ErrJoinShutdown
		}
		return nil, fmt.Errorf("luaengine: script error: %w", err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	ids, err := tableToIDs(ret)
	if err != nil {
		return nil, fmt.Errorf("luaengine: script did not return an id list: %w", err)
	}
	return ids, nil
}

func (e Engine) load(L *lua.LState, script string) (*lua.LFunction, error) {
	if e.Chunks == nil {
		fn, err := L.LoadString(script)
		if err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
		return fn, nil
	}
	proto, err := e.Chunks.GetOrCompile(script)
	if err != nil {
		return nil, err
	}
	return L.NewFunctionFromProto(proto), nil
}

func registerBuiltins(L *lua.LState, b query.Binding) {
	L.SetGlobal("shard_start", lua.LNumber(b.Shard.Start))
	L.SetGlobal("shard_end", lua.LNumber(b.Shard.End))

	L.SetGlobal("children", L.NewFunction(func(L *lua.LState) int {
		id := uint32(L.CheckNumber(1))
		children, err := b.Provider.Children(id)
		if err != nil {
			L.RaiseError("children(%d): %s", id, err.Error())
		}
		L.Push(idsToTable(L, children))
		return 1
	}))

	L.SetGlobal("parent", L.NewFunction(func(L *lua.LState) int {
		id := uint32(L.CheckNumber(1))
		p, err := b.Provider.Parent(id)
		if err != nil {
			L.RaiseError("parent(%d): %s", id, err.Error())
		}
		L.Push(lua.LNumber(p))
		return 1
	}))

	L.SetGlobal("metadata", L.NewFunction(func(L *lua.LState) int {
		id := uint32(L.CheckNumber(1))
		m, err := b.Provider.Meta(id)
		if err != nil {
			L.RaiseError("metadata(%d): %s", id, err.Error())
		}
		L.Push(metadataToTable(L, m))
		return 1
	}))

	L.SetGlobal("attr", L.NewFunction(func(L *lua.LState) int {
		id := uint32(L.CheckNumber(1))
		name := L.CheckString(2)
		attrs, err := b.Provider.Attrs(id)
		if err != nil {
			L.RaiseError("attr(%d, %q): %s", id, name, err.Error())
		}
		for _, a := range attrs {
			if a.Name == name {
				L.Push(valueToLua(L, a.Value))
				return 1
			}
		}
		L.Push(lua.LNil)
		return 1
	}))

	L.SetGlobal("en_join", L.NewFunction(func(L *lua.LState) int {
		partial, err := tableToIDs(L.CheckTable(1))
		if err != nil {
			L.RaiseError("en_join: %s", err.Error())
		}
		merged, err := b.Join.Join(partial)
		if err != nil {
			if errors.Is(err, query.ErrJoinShutdown) {
				L.RaiseError(joinShutdownMarker)
			}
			L.RaiseError("en_join: %s", err.Error())
		}
		L.Push(idsToTable(L, merged))
		return 1
	}))
}

func idsToTable(L *lua.LState, ids []uint32) *lua.LTable {
	tbl := L.NewTable()
	for _, id := range ids {
		tbl.Append(lua.LNumber(id))
	}
	return tbl
}

func tableToIDs(v lua.LValue) ([]uint32, error) {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("expected a table, got %s", v.Type().String())
	}
	ids := make([]uint32, 0, tbl.Len())
	var convErr error
	tbl.ForEach(func(_, val lua.LValue) {
		n, ok := val.(lua.LNumber)
		if !ok {
			convErr = fmt.Errorf("expected numeric id, got %s", val.Type().String())
			return
		}
		ids = append(ids, uint32(n))
	})
	if convErr != nil {
		return nil, convErr
	}
	return ids, nil
}

func metadataToTable(L *lua.LState, m span.Metadata) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("name", lua.LString(m.Name))
	tbl.RawSetString("target", lua.LString(m.Target))
	tbl.RawSetString("level", lua.LNumber(m.Level))
	if m.ModulePath != nil {
		tbl.RawSetString("module_path", lua.LString(*m.ModulePath))
	}
	if m.File != nil {
		tbl.RawSetString("file", lua.LString(*m.File))
	}
	if m.Line != nil {
		tbl.RawSetString("line", lua.LNumber(*m.Line))
	}
	return tbl
}

// valueToLua bridges a span.Value to the closest native Lua type.
// Bytes, U128 and I128 are exposed as their raw bytes converted to a
// Lua string, since predicates never compare them anyway (see
// pkg/filterset's compareValues) and scripts have no other practical
// use for a 128-bit integer.
func valueToLua(L *lua.LState, v span.Value) lua.LValue {
	switch v.Kind {
	case span.KindString:
		return lua.LString(v.Str)
	case span.KindBytes:
		return lua.LString(string(v.Bytes))
	case span.KindBool:
		return lua.LBool(v.Bool)
	case span.KindFloat64:
		return lua.LNumber(v.Float64)
	case span.KindU64:
		return lua.LNumber(v.U64)
	case span.KindI64:
		return lua.LNumber(v.I64)
	case span.KindU128:
		return lua.LString(string(v.U128[:]))
	case span.KindI128:
		return lua.LString(string(v.I128[:]))
	default:
		return lua.LNil
	}
}
