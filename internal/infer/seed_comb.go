package infer

import (
	"typelift/internal/ir"
	"typelift/internal/typegraph"
)

// seedComb layers the evidence sources in trust order: debug info first,
// then TBAA, then the module's own IR types. Put only suppresses
// duplicates and redundant `*` levels, so a later source adds its
// spellings beside the earlier ones rather than replacing them.
func (s *Seeder) seedComb(m *ir.Module, tg *typegraph.TypeGraph) {
	// Globals: the DI expression when present, the IR value type
	// otherwise.
	for _, g := range m.Globals {
		if len(g.DI) == 0 {
			tg.Put(nil, g, ReferenceType(g.ValueTy))
			continue
		}
		for _, v := range g.DI {
			if name := s.diSpelling(v.Type); name != "" {
				tg.Put(nil, g, s.Cfg.DIToIR(name+"*"))
			}
		}
	}

	// Values described by DI local variables.
	m.ForEachInstr(func(f *ir.Func, inst *ir.Instr) {
		s.seedDIValue(f, storedValue(inst), tg)
	})

	// TBAA-annotated pointers.
	s.seedTBAA(m, tg)

	// The IR seed is layered on every instruction, so values the metadata
	// did not reach still get a seed.
	m.ForEachInstr(func(f *ir.Func, inst *ir.Instr) {
		tg.Put(f, storedValue(inst), instTypeName(inst))
	})

	// Function prototypes: subprogram when present, IR type otherwise.
	s.seedSubprograms(m, tg)

	// Parameters the subprogram did not describe fall back to their IR
	// type.
	for _, f := range m.Funcs {
		for _, param := range f.Params {
			if tg.Get(f, param) == nil {
				tg.Put(f, param, TypeName(param.Ty))
			}
		}
	}
}
