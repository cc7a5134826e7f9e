package typegraph

import (
	"strings"

	"typelift/internal/ir"
)

// TypeGraph maintains the two-level mapping from IR values to candidate
// type sets: a global map for module-level values (globals, functions and
// their return entries) and one local map per function for arguments and
// instruction results.
//
// The graph is monotone: Put only ever adds names (apart from the opaque
// `ptr` canonicalisation inside TypeSet), which is what guarantees the
// solver terminates.
type TypeGraph struct {
	global map[ir.Value]*TypeSet
	local  map[*ir.Func]map[ir.Value]*TypeSet
}

// New returns an empty graph.
func New() *TypeGraph {
	return &TypeGraph{
		global: make(map[ir.Value]*TypeSet),
		local:  make(map[*ir.Func]map[ir.Value]*TypeSet),
	}
}

// moduleScope reports whether the key is a module-level value. Writes to
// such keys are routed to the global map regardless of the supplied scope.
func moduleScope(key ir.Value) bool {
	switch key.(type) {
	case *ir.Global, *ir.Func:
		return true
	}
	return false
}

// Get returns the type set of a value, checking the local map of the scope
// first and falling through to the global map. Returns nil when the value
// has no entry.
func (tg *TypeGraph) Get(scope *ir.Func, key ir.Value) *TypeSet {
	if key == nil {
		return nil
	}
	if scope != nil {
		if bucket, ok := tg.local[scope]; ok {
			if ts, ok := bucket[key]; ok {
				return ts
			}
		}
	}
	return tg.global[key]
}

// store routes a set to the right bucket, allocating local buckets lazily.
func (tg *TypeGraph) store(scope *ir.Func, key ir.Value, ts *TypeSet) {
	if scope == nil || moduleScope(key) {
		tg.global[key] = ts
		return
	}
	bucket, ok := tg.local[scope]
	if !ok {
		bucket = make(map[ir.Value]*TypeSet)
		tg.local[scope] = bucket
	}
	bucket[key] = ts
}

// Put merges one type name into a value's set. Inserts that would add a
// redundant dereference level are dropped: when the set already holds `T*`,
// inserting `T` is a no-op, and when it holds `T`, inserting `T*` is a
// no-op. Returns true iff the stored set strictly grew; the solver uses
// this to decide propagation.
func (tg *TypeGraph) Put(scope *ir.Func, key ir.Value, ty string) bool {
	if key == nil || ty == "" {
		return false
	}
	old := tg.Get(scope, key)
	if old != nil {
		if old.Has(ty + "*") {
			return false
		}
		if strings.HasSuffix(ty, "*") && old.Has(ty[:len(ty)-1]) {
			return false
		}
		if old.Has(ty) {
			return false
		}
	}
	if old == nil {
		old = NewTypeSet()
	}
	old.Insert(ty)
	tg.store(scope, key, old)
	return true
}

// PutSet merges a whole set into a value's set under the same suppression
// rules as Put. A payload that still shares any name with the stored set
// after suppression is skipped whole, its other names included. Returns
// true iff the stored set strictly grew.
func (tg *TypeGraph) PutSet(scope *ir.Func, key ir.Value, value *TypeSet) bool {
	if key == nil || value == nil {
		return false
	}
	toAdd := NewTypeSet()
	toAdd.InsertSet(value)

	old := tg.Get(scope, key)
	if old != nil {
		for _, ty := range toAdd.Types() {
			if old.Has(ty + "*") {
				toAdd.Erase(ty)
			} else if strings.HasSuffix(ty, "*") && old.Has(ty[:len(ty)-1]) {
				toAdd.Erase(ty)
			}
		}
	}
	if toAdd.Empty() {
		return false
	}
	if old != nil && old.Equals(toAdd) {
		return false
	}
	if old == nil {
		old = NewTypeSet()
	}
	old.InsertSet(toAdd)
	tg.store(scope, key, old)
	return true
}

// PutReturn records a function's return type: routed to the global map and
// flagged as a function entry.
func (tg *TypeGraph) PutReturn(key ir.Value, ty string) bool {
	grew := tg.Put(nil, key, ty)
	if ts := tg.Get(nil, key); ts != nil {
		ts.IsFunc = true
	}
	return grew
}

// IsOpaque reports whether a value's set still carries the opaque token.
func (tg *TypeGraph) IsOpaque(scope *ir.Func, key ir.Value) bool {
	ts := tg.Get(scope, key)
	return ts != nil && ts.HasPtr()
}

// Reference returns the pointer type set of a value: every name gains one
// `*`. The opaque token does not reference, and names that already carry
// two `*`s are skipped so the graph never holds triple indirection; the cap
// keeps pointer chains from growing without bound through load/store
// cycles.
func (tg *TypeGraph) Reference(scope *ir.Func, key ir.Value) *TypeSet {
	ret := NewTypeSet()
	old := tg.Get(scope, key)
	if old == nil {
		return ret
	}
	for _, ty := range old.Types() {
		if strings.HasSuffix(ty, "**") {
			continue
		}
		if ty != "ptr" {
			ret.Insert(ty + "*")
		}
	}
	return ret
}

// Dereference returns the pointee type set of a value: every name carrying
// a `*` loses one. The opaque token dereferences to nothing.
func (tg *TypeGraph) Dereference(scope *ir.Func, key ir.Value) *TypeSet {
	ret := NewTypeSet()
	old := tg.Get(scope, key)
	if old == nil {
		return ret
	}
	for _, ty := range old.Types() {
		if strings.HasSuffix(ty, "*") {
			ret.Insert(ty[:len(ty)-1])
		}
	}
	return ret
}

// AllMaps exposes the underlying buckets, global first. A partitioned
// solver can merge per-function graphs through this surface; the engine
// itself never mutates the graph from more than one goroutine.
func (tg *TypeGraph) AllMaps() []map[ir.Value]*TypeSet {
	out := make([]map[ir.Value]*TypeSet, 0, 1+len(tg.local))
	out = append(out, tg.global)
	for _, bucket := range tg.local {
		out = append(out, bucket)
	}
	return out
}
