package infer

import (
	"typelift/internal/ir"
	"typelift/internal/typegraph"
)

// seedMig seeds the graph from the module's own IR types. On a fully
// typed (pre-migration) module this recovers everything; on an opaque
// module it records `ptr` placeholders the solver then refines.
func (s *Seeder) seedMig(m *ir.Module, tg *typegraph.TypeGraph) {
	// Globals are always addresses.
	for _, g := range m.Globals {
		tg.Put(nil, g, ReferenceType(g.ValueTy))
	}

	for _, f := range m.Funcs {
		for _, p := range f.Params {
			tg.Put(f, p, TypeName(p.Ty))
		}
		for _, bb := range f.Blocks {
			for _, inst := range bb.Instrs {
				tg.Put(f, storedValue(inst), instTypeName(inst))
			}
		}
	}

	// Function return types, flagged so signature entries are
	// recognisable.
	for _, f := range m.Funcs {
		tg.PutReturn(f, TypeName(f.Sig.Ret))
	}
}

// instTypeName picks the seed spelling for one instruction result.
func instTypeName(inst *ir.Instr) string {
	switch inst.Op {
	case ir.OpLoad:
		return TypeName(inst.Load.Elem)
	case ir.OpStore:
		return TypeName(inst.Store.Val.Type())
	case ir.OpAlloca:
		// An alloca is the address of its allocation.
		allocated := inst.Alloca.Allocated
		if !allocated.IsOpaquePtr() {
			return ReferenceType(allocated)
		}
		return TypeName(allocated)
	case ir.OpCall:
		return CallTypeName(inst.Call.Sig)
	default:
		return TypeName(inst.Ty)
	}
}
