package typegraph

import "typelift/internal/ir"

// Entry is one dump line: the owning scope (empty for module-level
// values), the value name and its recovered types.
type Entry struct {
	Scope string
	Name  string
	Types []string
}

// Coverage counts how many trackable values carry a non-opaque set.
type Coverage struct {
	Total   int
	Covered int
}

// Percent returns the covered share in percent.
func (c Coverage) Percent() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Covered) / float64(c.Total) * 100
}

// Entries collects one dump entry for every named value of the module in
// lexical order: globals, function return entries, then per function the
// arguments and instruction results. Unnamed values and values with no
// recorded set are skipped.
func (tg *TypeGraph) Entries(m *ir.Module) []Entry {
	var out []Entry
	add := func(scope *ir.Func, v ir.Value) {
		if v == nil || v.Name() == "" {
			return
		}
		ts := tg.Get(scope, v)
		if ts == nil {
			return
		}
		scopeName := ""
		if scope != nil {
			scopeName = scope.Ident
		}
		out = append(out, Entry{Scope: scopeName, Name: v.Name(), Types: ts.Types()})
	}

	for _, g := range m.Globals {
		add(nil, g)
	}
	for _, f := range m.Funcs {
		add(nil, f)
	}
	for _, f := range m.Funcs {
		for _, p := range f.Params {
			add(f, p)
		}
		for _, bb := range f.Blocks {
			for _, inst := range bb.Instrs {
				add(f, inst)
			}
		}
	}
	return out
}

// Coverage counts globals, arguments and non-store instructions, and the
// subset whose set is present and not opaque.
func (tg *TypeGraph) Coverage(m *ir.Module) Coverage {
	var cov Coverage
	count := func(scope *ir.Func, v ir.Value) {
		cov.Total++
		if ts := tg.Get(scope, v); ts != nil && !ts.IsOpaque() {
			cov.Covered++
		}
	}

	for _, g := range m.Globals {
		count(nil, g)
	}
	for _, f := range m.Funcs {
		for _, p := range f.Params {
			count(f, p)
		}
		for _, bb := range f.Blocks {
			for _, inst := range bb.Instrs {
				if inst.Op == ir.OpStore {
					continue
				}
				count(f, inst)
			}
		}
	}
	return cov
}

// Stats counts globals and non-store instructions that are still opaque
// after solving.
func (tg *TypeGraph) Stats(m *ir.Module) (total, opaque int) {
	for _, g := range m.Globals {
		total++
		if tg.IsOpaque(nil, g) {
			opaque++
		}
	}
	for _, f := range m.Funcs {
		for _, bb := range f.Blocks {
			for _, inst := range bb.Instrs {
				if inst.Op == ir.OpStore {
					continue
				}
				total++
				if tg.IsOpaque(f, inst) {
					opaque++
				}
			}
		}
	}
	return total, opaque
}

// Misses returns the names of trackable values that have no entry at all:
// globals and named non-void, non-store instruction results.
func (tg *TypeGraph) Misses(m *ir.Module) []Entry {
	var out []Entry
	for _, g := range m.Globals {
		if tg.Get(nil, g) == nil {
			out = append(out, Entry{Name: g.Ident})
		}
	}
	for _, f := range m.Funcs {
		for _, bb := range f.Blocks {
			for _, inst := range bb.Instrs {
				if inst.Op == ir.OpStore || inst.Ident == "" {
					continue
				}
				if inst.Ty.IsVoid() {
					continue
				}
				if tg.Get(f, inst) == nil {
					out = append(out, Entry{Scope: f.Ident, Name: inst.Ident})
				}
			}
		}
	}
	return out
}
