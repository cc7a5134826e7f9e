package ir

import "typelift/internal/di"

// Op enumerates instruction opcodes in the type-erased IR.
type Op uint8

const (
	// OpAlloca represents a stack allocation.
	OpAlloca Op = iota
	// OpLoad represents a memory load.
	OpLoad
	// OpStore represents a memory store.
	OpStore
	// OpGEP represents a getelementptr field/element access.
	OpGEP
	// OpCall represents a direct or indirect call.
	OpCall
	// OpCast represents any of the conversion opcodes (bitcast, trunc,
	// zext, sext, ptrtoint, inttoptr, fptosi, ...).
	OpCast
	// OpPhi represents a phi node.
	OpPhi
	// OpSelect represents a select between two arms.
	OpSelect
	// OpBinary represents a two-operand arithmetic or bitwise op.
	OpBinary
	// OpCmp represents an integer or float comparison.
	OpCmp
	// OpRet represents a return terminator.
	OpRet
	// OpBr represents a branch terminator.
	OpBr
	// OpSwitch represents a switch terminator.
	OpSwitch
	// OpUnreachable represents the unreachable terminator.
	OpUnreachable
)

// Instr is one instruction. Op selects which payload struct is meaningful.
// Ident is the result name without the `%` sigil, empty for void results
// and terminators. Ty is the result type.
type Instr struct {
	Op     Op
	Ident  string
	Ty     *Type
	Parent *Func

	// TBAA is the instruction's !tbaa root tuple, when present.
	TBAA *MDTuple

	Alloca AllocaInstr
	Load   LoadInstr
	Store  StoreInstr
	GEP    GEPInstr
	Call   CallInstr
	Cast   CastInstr
	Phi    PhiInstr
	Select SelectInstr
	Binary BinaryInstr
	Cmp    CmpInstr
	Ret    RetInstr
}

// AllocaInstr carries the allocated type of an alloca.
type AllocaInstr struct {
	Allocated *Type
}

// LoadInstr carries the loaded element type and the pointer operand.
type LoadInstr struct {
	Elem *Type
	Ptr  Value
}

// StoreInstr carries the stored value and the pointer operand.
type StoreInstr struct {
	Val Value
	Ptr Value
}

// GEPInstr carries the source element type, the base pointer and the index
// chain.
type GEPInstr struct {
	Source  *Type
	Base    Value
	Indices []Value
}

// CallInstr carries the callee and argument list. Callee is nil for
// indirect calls; CalleeName keeps the spelled name for direct calls so
// intrinsics can be recognised without touching the function table.
// Debug intrinsics (llvm.dbg.*) additionally carry the described value and
// its DILocalVariable.
type CallInstr struct {
	Callee     *Func
	CalleeName string
	Sig        *Type
	Args       []Value
	DbgValue   Value
	DbgVar     *di.LocalVariable
}

// IsDebug reports whether the call is a debug intrinsic.
func (c *CallInstr) IsDebug() bool { return c.DbgVar != nil }

// CastInstr carries the conversion mnemonic, source operand and target
// type.
type CastInstr struct {
	Mnemonic string
	Src      Value
	To       *Type
}

// PhiInstr carries the incoming values and their predecessor labels.
type PhiInstr struct {
	Incoming []Value
	Labels   []string
}

// SelectInstr carries the condition and the two arms.
type SelectInstr struct {
	Cond  Value
	True  Value
	False Value
}

// BinaryInstr carries a two-operand op and its mnemonic.
type BinaryInstr struct {
	Mnemonic string
	X        Value
	Y        Value
}

// CmpInstr carries a comparison predicate and its operands.
type CmpInstr struct {
	Mnemonic string
	Pred     string
	X        Value
	Y        Value
}

// RetInstr carries the optional returned value.
type RetInstr struct {
	Val Value
}

// Name implements Value.
func (i *Instr) Name() string { return i.Ident }

// Type implements Value.
func (i *Instr) Type() *Type { return i.Ty }

// Operands returns every value operand of the instruction, in operand
// order. Labels and metadata slots are not values and do not appear.
func (i *Instr) Operands() []Value {
	switch i.Op {
	case OpLoad:
		return []Value{i.Load.Ptr}
	case OpStore:
		return []Value{i.Store.Val, i.Store.Ptr}
	case OpGEP:
		ops := make([]Value, 0, 1+len(i.GEP.Indices))
		ops = append(ops, i.GEP.Base)
		ops = append(ops, i.GEP.Indices...)
		return ops
	case OpCall:
		if i.Call.DbgValue != nil {
			return []Value{i.Call.DbgValue}
		}
		return i.Call.Args
	case OpCast:
		return []Value{i.Cast.Src}
	case OpPhi:
		return i.Phi.Incoming
	case OpSelect:
		return []Value{i.Select.Cond, i.Select.True, i.Select.False}
	case OpBinary:
		return []Value{i.Binary.X, i.Binary.Y}
	case OpCmp:
		return []Value{i.Cmp.X, i.Cmp.Y}
	case OpRet:
		if i.Ret.Val != nil {
			return []Value{i.Ret.Val}
		}
	}
	return nil
}
