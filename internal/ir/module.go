package ir

import "typelift/internal/di"

// Module is one loaded IR translation unit: named types, globals and
// functions in lexical order, plus the decoded debug-info type nodes the
// metadata section carried.
type Module struct {
	Path     string
	TypeDefs []*Type
	Globals  []*Global
	Funcs    []*Func

	// DITypes lists every decoded debug-info type node, used to map
	// identified struct types to their composites.
	DITypes []*di.Type
}

// Global is a module-level variable. ValueTy is the declared value type
// (what the global's address points at); the global value itself is an
// address.
type Global struct {
	Ident   string
	ValueTy *Type
	DI      []*di.Variable
}

// Name implements Value.
func (g *Global) Name() string { return g.Ident }

// Type implements Value. A global value is an address.
func (g *Global) Type() *Type { return Ptr }

// Func is a declared or defined function.
type Func struct {
	Ident      string
	Sig        *Type
	Params     []*Param
	Blocks     []*Block
	Subprogram *di.Subprogram
	Declared   bool
}

// Name implements Value.
func (f *Func) Name() string { return f.Ident }

// Type implements Value.
func (f *Func) Type() *Type { return f.Sig }

// Param is one formal parameter of a function.
type Param struct {
	Ident string
	Ty    *Type
	Index int
}

// Name implements Value.
func (p *Param) Name() string { return p.Ident }

// Type implements Value.
func (p *Param) Type() *Type { return p.Ty }

// Block is a basic block: a label and its instructions in lexical order.
type Block struct {
	Label  string
	Instrs []*Instr
}

// FuncByName returns the function with the given identifier, or nil.
func (m *Module) FuncByName(name string) *Func {
	for _, f := range m.Funcs {
		if f.Ident == name {
			return f
		}
	}
	return nil
}

// IdentifiedStructs returns the named struct/union definitions of the
// module, in definition order.
func (m *Module) IdentifiedStructs() []*Type {
	out := make([]*Type, 0, len(m.TypeDefs))
	for _, t := range m.TypeDefs {
		if t.Kind == TypeStruct && t.Name != "" {
			out = append(out, t)
		}
	}
	return out
}

// ForEachInstr visits every instruction in module order.
func (m *Module) ForEachInstr(fn func(f *Func, inst *Instr)) {
	for _, f := range m.Funcs {
		for _, bb := range f.Blocks {
			for _, inst := range bb.Instrs {
				fn(f, inst)
			}
		}
	}
}

// HasDebugInfo reports whether any debug-info evidence is attached to the
// module: a function subprogram, a debug intrinsic or a global DI
// expression.
func (m *Module) HasDebugInfo() bool {
	for _, g := range m.Globals {
		if len(g.DI) > 0 {
			return true
		}
	}
	for _, f := range m.Funcs {
		if f.Subprogram != nil {
			return true
		}
		for _, bb := range f.Blocks {
			for _, inst := range bb.Instrs {
				if inst.Op == OpCall && inst.Call.IsDebug() {
					return true
				}
			}
		}
	}
	return false
}

// Uses builds the user map: for every value, the instructions that take it
// as an operand. The worklist uses it to enqueue affected users when a
// value's type set grows.
func (m *Module) Uses() map[Value][]*Instr {
	users := make(map[Value][]*Instr)
	m.ForEachInstr(func(_ *Func, inst *Instr) {
		for _, op := range inst.Operands() {
			if op == nil {
				continue
			}
			if _, ok := op.(*Const); ok {
				continue
			}
			users[op] = append(users[op], inst)
		}
	})
	return users
}
