package infer

import (
	"fmt"
	"strings"

	"typelift/internal/ir"
	"typelift/internal/trace"
	"typelift/internal/typegraph"
)

// Rules holds the per-opcode constraint rules. Each rule reads and writes
// the type graph through Put/Get/Reference/Dereference only, and pushes
// the users of any value whose set strictly grew.
type Rules struct {
	tg     *typegraph.TypeGraph
	wl     *Worklist
	fields *StructFields
	tracer trace.Tracer
}

// NewRules wires the rule set to a graph, a worklist and the DI
// struct-field index.
func NewRules(tg *typegraph.TypeGraph, wl *Worklist, fields *StructFields, tracer trace.Tracer) *Rules {
	if tracer == nil {
		tracer = trace.Nop
	}
	return &Rules{tg: tg, wl: wl, fields: fields, tracer: tracer}
}

// Cast types the result with the destination type of the conversion.
func (r *Rules) Cast(scope *ir.Func, inst *ir.Instr) {
	if r.tg.Put(scope, inst, TypeName(inst.Cast.To)) {
		r.wl.PushUsers(inst)
	}
}

// Load flows both ways across the memory edge: the result is the
// dereference of the pointer, the pointer is the reference of the result.
func (r *Rules) Load(scope *ir.Func, inst *ir.Instr) {
	src := inst.Load.Ptr

	deref := r.tg.Dereference(scope, src)
	if CanFlowSet(deref) {
		if r.tg.PutSet(scope, inst, deref) {
			r.wl.PushUsers(inst)
		}
	}

	ref := r.tg.Reference(scope, inst)
	if CanFlowSet(ref) {
		if r.tg.PutSet(scope, src, ref) {
			r.wl.PushUsers(src)
		}
	}
}

// Store is the mirror image of Load: the pointer is the reference of the
// stored value, the value is the dereference of the pointer.
func (r *Rules) Store(scope *ir.Func, inst *ir.Instr) {
	src := inst.Store.Val
	dst := inst.Store.Ptr

	ref := r.tg.Reference(scope, src)
	if CanFlowSet(ref) {
		if r.tg.PutSet(scope, dst, ref) {
			r.wl.PushUsers(dst)
		}
	}

	deref := r.tg.Dereference(scope, dst)
	if CanFlowSet(deref) {
		if r.tg.PutSet(scope, src, deref) {
			r.wl.PushUsers(src)
		}
	}
}

// FieldOf walks a gep's constant index chain through the source element
// type. An opaque base acquires the reference of the source type; the
// result acquires the reference of the final field type, consulting the
// DI struct-field index when the IR field type is itself opaque. A
// non-constant index on a struct base is malformed IR and aborts the run.
func (r *Rules) FieldOf(scope *ir.Func, inst *ir.Instr) error {
	gep := &inst.GEP
	base := gep.Base
	baseType := gep.Source

	baseName := TypeName(baseType)
	if r.tg.IsOpaque(scope, base) && CanFlowName(baseName) {
		if r.tg.Put(scope, base, Reference(baseName)) {
			r.wl.PushUsers(base)
		}
	}

	// Walk from the second index: the first steps over the base pointer
	// and never changes the element type.
	var typeName string
	for i := 1; i < len(gep.Indices); i++ {
		idx := gep.Indices[i]
		if c, ok := constInt(idx); ok {
			switch baseType.Kind {
			case ir.TypeStruct:
				if c < uint64(len(baseType.Fields)) {
					st := baseType
					baseType = baseType.Fields[c]
					typeName = TypeName(baseType)

					// Opaque field at the final index: divert to the
					// debug-info composite.
					if IsOpaqueName(typeName) && i == len(gep.Indices)-1 {
						typeName = r.fields.Field(st, c)
					}
				}
			case ir.TypeArray, ir.TypeVector:
				baseType = baseType.Elem
				typeName = TypeName(baseType)
			default:
				trace.Eventf(r.tracer, trace.LevelWarn,
					"gep into non-aggregate %s", baseType.String())
			}
		} else {
			switch baseType.Kind {
			case ir.TypeArray, ir.TypeVector:
				baseType = baseType.Elem
				typeName = TypeName(baseType)
			default:
				return fmt.Errorf("non-constant gep index on %s in %s",
					baseType.String(), scope.Ident)
			}
		}
	}

	if r.tg.IsOpaque(scope, inst) && CanFlowName(typeName) {
		if r.tg.Put(scope, inst, Reference(typeName)) {
			r.wl.PushUsers(inst)
		}
	}
	return nil
}

// constInt extracts a non-negative constant index.
func constInt(v ir.Value) (uint64, bool) {
	c, ok := v.(*ir.Const)
	if !ok {
		return 0, false
	}
	var n uint64
	if _, err := fmt.Sscanf(c.Text, "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}

// Call flows argument types into the callee's parameters and the callee's
// return set into the result. Memory-copy intrinsics flow symmetrically
// between their two pointer operands; other intrinsics are skipped.
// Indirect calls are not propagated.
func (r *Rules) Call(scope *ir.Func, inst *ir.Instr) {
	call := &inst.Call
	callee := call.Callee

	if callee != nil {
		name := call.CalleeName
		if strings.HasPrefix(name, "llvm.memcpy") || strings.HasPrefix(name, "llvm.memmove") {
			r.copyFlow(scope, call)
		} else if strings.HasPrefix(name, "llvm.") {
			return
		}

		for i, param := range callee.Params {
			if i >= len(call.Args) {
				break
			}
			argType := r.tg.Get(scope, call.Args[i])
			if CanFlowSet(argType) {
				if r.tg.PutSet(callee, param, argType) {
					r.wl.PushUsers(param)
				}
			}
		}
	}

	var calleeValue ir.Value
	if callee != nil {
		calleeValue = callee
	}
	retType := r.tg.Get(nil, calleeValue)
	if CanFlowSet(retType) {
		if r.tg.PutSet(scope, inst, retType) {
			r.wl.PushUsers(inst)
		}
	}
}

// copyFlow treats memcpy/memmove as a symmetric copy: each pointer
// operand flows into the other.
func (r *Rules) copyFlow(scope *ir.Func, call *ir.CallInstr) {
	if len(call.Args) < 2 {
		return
	}
	dst := call.Args[0]
	src := call.Args[1]

	dstType := r.tg.Get(scope, dst)
	if CanFlowSet(dstType) {
		if r.tg.PutSet(scope, src, dstType) {
			r.wl.PushUsers(src)
		}
	}

	srcType := r.tg.Get(scope, src)
	if CanFlowSet(srcType) {
		if r.tg.PutSet(scope, dst, srcType) {
			r.wl.PushUsers(dst)
		}
	}
}

// Phi fills an opaque result from its non-opaque incomings, merged over
// all of them.
func (r *Rules) Phi(scope *ir.Func, inst *ir.Instr) {
	if !r.tg.IsOpaque(scope, inst) {
		return
	}
	updated := false
	for _, v := range inst.Phi.Incoming {
		if !r.tg.IsOpaque(scope, v) {
			if r.tg.PutSet(scope, inst, r.tg.Get(scope, v)) {
				updated = true
			}
		}
	}
	if updated {
		r.wl.PushUsers(inst)
	}
}

// Select flows symmetrically between the two arms, and both into the
// result.
func (r *Rules) Select(scope *ir.Func, inst *ir.Instr) {
	updated := false
	a := inst.Select.True
	b := inst.Select.False

	typeB := r.tg.Get(scope, b)
	if CanFlowSet(typeB) {
		if r.tg.PutSet(scope, a, typeB) {
			r.wl.PushUsers(a)
		}
		if r.tg.PutSet(scope, inst, r.tg.Get(scope, b)) {
			updated = true
		}
	}

	typeA := r.tg.Get(scope, a)
	if CanFlowSet(typeA) {
		if r.tg.PutSet(scope, b, typeA) {
			r.wl.PushUsers(b)
		}
		if r.tg.PutSet(scope, inst, r.tg.Get(scope, a)) {
			updated = true
		}
	}

	if updated {
		r.wl.PushUsers(inst)
	}
}

// Binary flows symmetrically between the operands, and the known
// operand's set into the result.
func (r *Rules) Binary(scope *ir.Func, inst *ir.Instr) {
	updated := false
	a := inst.Binary.X
	b := inst.Binary.Y

	typeB := r.tg.Get(scope, b)
	if CanFlowSet(typeB) {
		if r.tg.PutSet(scope, a, typeB) {
			r.wl.PushUsers(a)
		}
		if r.tg.PutSet(scope, inst, r.tg.Get(scope, b)) {
			updated = true
		}
	}

	typeA := r.tg.Get(scope, a)
	if CanFlowSet(typeA) {
		if r.tg.PutSet(scope, b, typeA) {
			r.wl.PushUsers(b)
		}
		if r.tg.PutSet(scope, inst, r.tg.Get(scope, a)) {
			updated = true
		}
	}

	if updated {
		r.wl.PushUsers(inst)
	}
}

// Cmp repairs a type mismatch between the compared operands: when exactly
// one side is opaque it copies the other side's set. The i1 result is
// never updated.
func (r *Rules) Cmp(scope *ir.Func, inst *ir.Instr) {
	a := inst.Cmp.X
	b := inst.Cmp.Y

	switch {
	case r.tg.IsOpaque(scope, a) && !r.tg.IsOpaque(scope, b):
		if r.tg.PutSet(scope, a, r.tg.Get(scope, b)) {
			r.wl.PushUsers(a)
		}
	case r.tg.IsOpaque(scope, b) && !r.tg.IsOpaque(scope, a):
		if r.tg.PutSet(scope, b, r.tg.Get(scope, a)) {
			r.wl.PushUsers(b)
		}
	}
}
