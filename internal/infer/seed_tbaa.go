package infer

import (
	"typelift/internal/ir"
	"typelift/internal/typegraph"
)

// scalarNames are the spellings TBAA attaches directly to a load/store
// pointer; everything else is treated as a struct access.
var scalarNames = map[string]bool{
	"i1": true, "i8": true, "i16": true, "i32": true, "i64": true,
	"float": true, "double": true,
}

// seedTBAA seeds the graph from the TBAA roots attached to memory
// operations. The base-type name of the access describes what the
// pointer operand points at.
func (s *Seeder) seedTBAA(m *ir.Module, tg *typegraph.TypeGraph) {
	m.ForEachInstr(func(f *ir.Func, inst *ir.Instr) {
		if inst.TBAA == nil {
			return
		}
		base := ir.TBAABaseName(inst.TBAA)
		if base == "" || base == "omnipotent char" {
			return
		}
		name := s.Cfg.DIToIR(base)

		var ptr ir.Value
		switch inst.Op {
		case ir.OpLoad:
			ptr = inst.Load.Ptr
		case ir.OpStore:
			ptr = inst.Store.Ptr
		default:
			return
		}

		if name != "any pointer" && !scalarNames[name] {
			name = "%struct." + name
		}

		if scalarNames[name] {
			tg.Put(f, ptr, name)
			return
		}

		// Struct accesses attribute to the underlying base operand:
		// globals go to the global map, chained gep/load pointers are
		// peeled one level.
		switch v := ptr.(type) {
		case *ir.Global:
			tg.Put(nil, v, name)
		case *ir.Instr:
			switch v.Op {
			case ir.OpGEP:
				tg.Put(f, v.GEP.Base, name)
			case ir.OpLoad:
				tg.Put(f, v.Load.Ptr, name)
			}
		}
	})
}
