package infer

import (
	"strings"

	"typelift/internal/di"
	"typelift/internal/ir"
	"typelift/internal/trace"
	"typelift/internal/typegraph"
)

// StructFields maps identified struct types to their debug-info
// composites so the gep rule can recover field types the IR erased.
type StructFields struct {
	cfg Config
	m   map[*ir.Type]*di.Type
}

// Field returns the canonicalised spelling of one field of a struct, or
// "" when the struct or field has no debug-info mapping.
func (sf *StructFields) Field(st *ir.Type, index uint64) string {
	if sf == nil || sf.m == nil {
		return ""
	}
	comp, ok := sf.m[st]
	if !ok {
		return ""
	}
	if index >= uint64(len(comp.Elements)) {
		return ""
	}
	el := comp.Elements[index]
	if el == nil || el.Tag != di.TagMember {
		return ""
	}
	return sf.cfg.DIToIR(di.TypeName(el.Base, sf.cfg.ResolveTypedef))
}

// prepareDI builds the struct-field index and the value→DILocalVariable
// map the DI and combined seeders share.
func (s *Seeder) prepareDI(m *ir.Module) {
	s.fields = &StructFields{cfg: s.Cfg, m: make(map[*ir.Type]*di.Type)}

	// Map each identified struct to its composite, resolving typedef
	// indirection and skipping composites with no members.
	for _, st := range m.IdentifiedStructs() {
		name := strings.TrimPrefix(st.Name, "%")
		name = strings.TrimPrefix(name, "struct.")
		for _, node := range m.DITypes {
			if node.Name != name {
				continue
			}
			if node.Tag == di.TagTypedef {
				s.fields.m[st] = node.Base
				break
			}
			if node.Tag == di.TagStruct {
				if len(node.Elements) == 0 {
					continue
				}
				s.fields.m[st] = node
				break
			}
		}
	}

	// Debug intrinsics carry (value, DILocalVariable); one value can be
	// described more than once.
	s.diLocals = make(map[ir.Value][]*di.LocalVariable)
	m.ForEachInstr(func(_ *ir.Func, inst *ir.Instr) {
		if inst.Op != ir.OpCall || !inst.Call.IsDebug() {
			return
		}
		if inst.Call.DbgValue == nil {
			return
		}
		s.diLocals[inst.Call.DbgValue] = append(s.diLocals[inst.Call.DbgValue], inst.Call.DbgVar)
	})
}

// diSpelling canonicalises one DI type, reporting each unknown tag it
// meets to the tracer.
func (s *Seeder) diSpelling(t *di.Type) string {
	name := di.TypeName(t, s.Cfg.ResolveTypedef)
	if name == "" && t != nil {
		trace.Eventf(s.Tracer, trace.LevelWarn, "unhandled debug-info tag %s", t.Tag)
		return ""
	}
	return name
}

// seedDI seeds the graph from debug info alone.
func (s *Seeder) seedDI(m *ir.Module, tg *typegraph.TypeGraph) {
	// Globals carrying DI expressions. The variable type describes the
	// value; the global itself is its address.
	for _, g := range m.Globals {
		for _, v := range g.DI {
			if name := s.diSpelling(v.Type); name != "" {
				tg.Put(nil, g, s.Cfg.DIToIR(name+"*"))
			}
		}
	}

	m.ForEachInstr(func(f *ir.Func, inst *ir.Instr) {
		s.seedDIValue(f, storedValue(inst), tg)
	})

	s.seedSubprograms(m, tg)
}

// seedDIValue applies the recorded local-variable types to one value. An
// alloca-backed value is the address of the described variable, so its
// spelling gains one `*`.
func (s *Seeder) seedDIValue(f *ir.Func, value ir.Value, tg *typegraph.TypeGraph) {
	locals, ok := s.diLocals[value]
	if !ok {
		return
	}
	for _, local := range locals {
		name := s.diSpelling(local.Type)
		if name == "" {
			continue
		}
		if inst, ok := value.(*ir.Instr); ok && inst.Op == ir.OpAlloca {
			name += "*"
		}
		tg.Put(f, value, s.Cfg.DIToIR(name))
	}
}

// seedSubprograms records function return and parameter types, from the
// DI subprogram when present and from the IR signature otherwise.
func (s *Seeder) seedSubprograms(m *ir.Module, tg *typegraph.TypeGraph) {
	for _, f := range m.Funcs {
		sp := f.Subprogram
		if sp == nil {
			tg.PutReturn(f, TypeName(f.Sig.Ret))
			for _, param := range f.Params {
				tg.Put(f, param, TypeName(param.Ty))
			}
			continue
		}

		// Index 0 of the type array is the return type.
		var ret *di.Type
		if len(sp.Types) > 0 {
			ret = sp.Types[0]
		}
		tg.PutReturn(f, s.Cfg.DIToIR(s.diSpelling(ret)))

		// The remaining entries align with parameter positions; nil
		// entries (variadic markers) are skipped.
		for i := 1; i < len(sp.Types); i++ {
			t := sp.Types[i]
			if t == nil {
				continue
			}
			if i-1 >= len(f.Params) {
				break
			}
			param := f.Params[i-1]
			if name := s.diSpelling(t); name != "" {
				tg.Put(f, param, s.Cfg.DIToIR(name))
			}
			for _, local := range s.diLocals[param] {
				if name := s.diSpelling(local.Type); name != "" {
					tg.Put(f, param, s.Cfg.DIToIR(name))
				}
			}
		}
	}
}
