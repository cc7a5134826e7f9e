package parse

import (
	"strconv"

	"typelift/internal/ir"
)

var castOps = map[string]bool{
	"bitcast": true, "trunc": true, "zext": true, "sext": true,
	"fptrunc": true, "fpext": true, "fptoui": true, "fptosi": true,
	"uitofp": true, "sitofp": true, "ptrtoint": true, "inttoptr": true,
	"addrspacecast": true,
}

var binaryOps = map[string]bool{
	"add": true, "fadd": true, "sub": true, "fsub": true, "mul": true,
	"fmul": true, "udiv": true, "sdiv": true, "fdiv": true, "urem": true,
	"srem": true, "frem": true, "shl": true, "lshr": true, "ashr": true,
	"and": true, "or": true, "xor": true,
}

// constWords are bare value keywords.
var constWords = map[string]bool{
	"null": true, "undef": true, "poison": true, "true": true,
	"false": true, "zeroinitializer": true, "none": true,
}

// parseInstr parses one instruction. Returns nil for constructs the
// analysis does not model (fences and the like), which are skipped line
// by line.
func (p *parser) parseInstr(f *ir.Func, scope *funcScope) (*ir.Instr, error) {
	t := p.cur()

	var inst *ir.Instr
	if t.kind == tokLocal {
		// `%x = opcode ...`; the shell was registered in the first pass.
		v := scope.lookup(t.text)
		shell, ok := v.(*ir.Instr)
		if !ok {
			return nil, errf(p.path, t.line, "result %%%s has no shell", t.text)
		}
		inst = shell
		p.pos++
		if err := p.expect(tokPunct, "="); err != nil {
			return nil, err
		}
	} else {
		inst = &ir.Instr{Parent: f}
	}

	op := p.cur()
	if op.kind != tokIdent {
		return nil, errf(p.path, op.line, "expected opcode, found %q", op.text)
	}

	var err error
	switch {
	case op.text == "alloca":
		err = p.parseAlloca(inst)
	case op.text == "load":
		err = p.parseLoad(inst, scope)
	case op.text == "store":
		err = p.parseStore(inst, scope)
	case op.text == "getelementptr":
		err = p.parseGEP(inst, scope)
	case op.text == "call" || op.text == "tail" || op.text == "musttail" || op.text == "notail":
		err = p.parseCall(inst, scope)
	case castOps[op.text]:
		err = p.parseCast(inst, scope)
	case binaryOps[op.text]:
		err = p.parseBinary(inst, scope)
	case op.text == "icmp" || op.text == "fcmp":
		err = p.parseCmp(inst, scope)
	case op.text == "phi":
		err = p.parsePhi(inst, scope)
	case op.text == "select":
		err = p.parseSelect(inst, scope)
	case op.text == "ret":
		err = p.parseRet(inst, scope)
	case op.text == "br":
		inst.Op = ir.OpBr
		inst.Ty = ir.Void
		p.skipLine()
	case op.text == "switch":
		inst.Op = ir.OpSwitch
		inst.Ty = ir.Void
		p.skipSwitch()
	case op.text == "unreachable":
		inst.Op = ir.OpUnreachable
		inst.Ty = ir.Void
		p.pos++
	default:
		// Unmodelled instruction; drop the line.
		p.skipLine()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.parseInstrTail(inst)
	return inst, nil
}

// parseInstrTail consumes trailing `, align N` / `, !tbaa !N` / `, !dbg !N`
// attachments.
func (p *parser) parseInstrTail(inst *ir.Instr) {
	for p.cur().is(tokPunct, ",") {
		save := p.pos
		p.pos++
		t := p.cur()
		switch {
		case t.kind == tokIdent && t.text == "align":
			p.pos++
			p.pos++
		case t.kind == tokMeta:
			kindTok := p.next()
			ref := p.cur()
			if ref.kind == tokMeta && allDigits(ref.text) {
				p.pos++
				id, err := strconv.ParseInt(ref.text, 10, 64)
				if err == nil && kindTok.text == "tbaa" {
					p.instTBAA[inst] = id
				} else if err == nil && kindTok.text == "dbg" {
					p.instDbg[inst] = id
				}
			}
		default:
			p.pos = save
			return
		}
	}
}

// parseValue parses one operand of a known type: a local, a global or a
// constant literal.
func (p *parser) parseValue(ty *ir.Type, scope *funcScope) (ir.Value, error) {
	t := p.cur()
	switch {
	case t.kind == tokLocal:
		p.pos++
		v := scope.lookup(t.text)
		if v == nil {
			return nil, errf(p.path, t.line, "unknown local %%%s", t.text)
		}
		return v, nil
	case t.kind == tokGlobal:
		p.pos++
		if g := p.globalByName(t.text); g != nil {
			return g, nil
		}
		if f := p.mod.FuncByName(t.text); f != nil {
			return f, nil
		}
		// Forward reference to a later global; keep a constant stand-in.
		return &ir.Const{Ty: ty, Text: "@" + t.text}, nil
	case t.kind == tokNumber || t.kind == tokString:
		p.pos++
		return &ir.Const{Ty: ty, Text: t.text}, nil
	case t.kind == tokIdent && constWords[t.text]:
		p.pos++
		return &ir.Const{Ty: ty, Text: t.text}, nil
	default:
		return nil, errf(p.path, t.line, "expected value, found %q", t.text)
	}
}

func (p *parser) globalByName(name string) *ir.Global {
	for _, g := range p.mod.Globals {
		if g.Ident == name {
			return g
		}
	}
	return nil
}

func (p *parser) parseAlloca(inst *ir.Instr) error {
	p.next() // alloca
	ty, err := p.parseType()
	if err != nil {
		return err
	}
	inst.Op = ir.OpAlloca
	inst.Ty = ir.Ptr
	inst.Alloca = ir.AllocaInstr{Allocated: ty}
	return nil
}

func (p *parser) parseLoad(inst *ir.Instr, scope *funcScope) error {
	p.next() // load
	p.skipAttrs()
	elem, err := p.parseType()
	if err != nil {
		return err
	}
	if err := p.expect(tokPunct, ","); err != nil {
		return err
	}
	ptrTy, err := p.parseType()
	if err != nil {
		return err
	}
	ptr, err := p.parseValue(ptrTy, scope)
	if err != nil {
		return err
	}
	inst.Op = ir.OpLoad
	inst.Ty = elem
	inst.Load = ir.LoadInstr{Elem: elem, Ptr: ptr}
	return nil
}

func (p *parser) parseStore(inst *ir.Instr, scope *funcScope) error {
	p.next() // store
	p.skipAttrs()
	valTy, err := p.parseType()
	if err != nil {
		return err
	}
	val, err := p.parseValue(valTy, scope)
	if err != nil {
		return err
	}
	if err := p.expect(tokPunct, ","); err != nil {
		return err
	}
	ptrTy, err := p.parseType()
	if err != nil {
		return err
	}
	ptr, err := p.parseValue(ptrTy, scope)
	if err != nil {
		return err
	}
	inst.Op = ir.OpStore
	inst.Ty = ir.Void
	inst.Store = ir.StoreInstr{Val: val, Ptr: ptr}
	return nil
}

func (p *parser) parseGEP(inst *ir.Instr, scope *funcScope) error {
	p.next() // getelementptr
	p.skipAttrs()
	src, err := p.parseType()
	if err != nil {
		return err
	}
	if err := p.expect(tokPunct, ","); err != nil {
		return err
	}
	baseTy, err := p.parseType()
	if err != nil {
		return err
	}
	base, err := p.parseValue(baseTy, scope)
	if err != nil {
		return err
	}
	gep := ir.GEPInstr{Source: src, Base: base}
	for p.cur().is(tokPunct, ",") {
		// Stop at attachments; an index always starts with a type.
		if p.peek().kind == tokMeta || (p.peek().kind == tokIdent && p.peek().text == "align") {
			break
		}
		p.pos++
		idxTy, err := p.parseType()
		if err != nil {
			return err
		}
		idx, err := p.parseValue(idxTy, scope)
		if err != nil {
			return err
		}
		gep.Indices = append(gep.Indices, idx)
	}
	inst.Op = ir.OpGEP
	inst.Ty = resultPtrType(baseTy)
	inst.GEP = gep
	return nil
}

// resultPtrType keeps typed-pointer results typed and opaque results
// opaque; in both shapes a gep result is an address.
func resultPtrType(baseTy *ir.Type) *ir.Type {
	if baseTy != nil && baseTy.Kind == ir.TypePtrTo {
		return baseTy
	}
	return ir.Ptr
}

func (p *parser) parseCall(inst *ir.Instr, scope *funcScope) error {
	for p.cur().kind == tokIdent && p.cur().text != "call" {
		p.pos++ // tail / musttail / notail
	}
	p.next() // call
	p.skipAttrs()
	ret, err := p.parseType()
	if err != nil {
		return err
	}

	call := ir.CallInstr{}
	callee := p.cur()
	switch callee.kind {
	case tokGlobal:
		p.pos++
		call.CalleeName = callee.text
		call.Callee = p.mod.FuncByName(callee.text)
	case tokLocal:
		// Indirect call through a value.
		p.pos++
		// The called value is not an argument; parameter flow never
		// crosses indirect calls.
	default:
		return errf(p.path, callee.line, "expected callee, found %q", callee.text)
	}

	if err := p.expect(tokPunct, "("); err != nil {
		return err
	}
	sig := &ir.Type{Kind: ir.TypeFunc, Ret: ret}
	if !p.accept(tokPunct, ")") {
		for {
			argTy, err := p.parseType()
			if err != nil {
				return err
			}
			p.skipAttrs()
			if argTy == ir.Metadata {
				if err := p.parseMetadataArg(&call, scope); err != nil {
					return err
				}
			} else {
				arg, err := p.parseValue(argTy, scope)
				if err != nil {
					return err
				}
				sig.Params = append(sig.Params, argTy)
				call.Args = append(call.Args, arg)
			}
			if !p.accept(tokPunct, ",") {
				break
			}
		}
		if err := p.expect(tokPunct, ")"); err != nil {
			return err
		}
	}
	call.Sig = sig
	inst.Op = ir.OpCall
	inst.Ty = ret
	inst.Call = call
	// The variable reference was recorded against the local copy; move it
	// to the call held by the instruction so finalisation fills that one.
	if id, ok := p.dbgVarRefs[&call]; ok {
		delete(p.dbgVarRefs, &call)
		p.dbgVarRefs[&inst.Call] = id
	}
	return nil
}

// parseMetadataArg handles the `metadata ...` arguments of debug
// intrinsics: a wrapped value reference, a node reference (the
// DILocalVariable), or an inline DIExpression.
func (p *parser) parseMetadataArg(call *ir.CallInstr, scope *funcScope) error {
	t := p.cur()
	switch {
	case t.kind == tokMeta && t.text == "DIExpression":
		p.pos++
		p.skipBalanced("(", ")")
	case t.kind == tokMeta && allDigits(t.text):
		p.pos++
		if id, err := strconv.ParseInt(t.text, 10, 64); err == nil {
			p.dbgVarRefs[call] = id
		}
	default:
		// `metadata <type> <value>`
		ty, err := p.parseType()
		if err != nil {
			return err
		}
		v, err := p.parseValue(ty, scope)
		if err != nil {
			return err
		}
		call.DbgValue = v
	}
	return nil
}

// skipSwitch consumes a switch terminator including its multi-line case
// table.
func (p *parser) skipSwitch() {
	for p.cur().kind != tokEOF && !p.cur().is(tokPunct, "[") && !p.cur().is(tokPunct, "}") {
		p.pos++
	}
	p.skipBalanced("[", "]")
}

func (p *parser) parseCast(inst *ir.Instr, scope *funcScope) error {
	op := p.next() // mnemonic
	p.skipAttrs()
	srcTy, err := p.parseType()
	if err != nil {
		return err
	}
	src, err := p.parseValue(srcTy, scope)
	if err != nil {
		return err
	}
	if err := p.expect(tokIdent, "to"); err != nil {
		return err
	}
	to, err := p.parseType()
	if err != nil {
		return err
	}
	inst.Op = ir.OpCast
	inst.Ty = to
	inst.Cast = ir.CastInstr{Mnemonic: op.text, Src: src, To: to}
	return nil
}

func (p *parser) parseBinary(inst *ir.Instr, scope *funcScope) error {
	op := p.next() // mnemonic
	p.skipAttrs()
	ty, err := p.parseType()
	if err != nil {
		return err
	}
	x, err := p.parseValue(ty, scope)
	if err != nil {
		return err
	}
	if err := p.expect(tokPunct, ","); err != nil {
		return err
	}
	y, err := p.parseValue(ty, scope)
	if err != nil {
		return err
	}
	inst.Op = ir.OpBinary
	inst.Ty = ty
	inst.Binary = ir.BinaryInstr{Mnemonic: op.text, X: x, Y: y}
	return nil
}

func (p *parser) parseCmp(inst *ir.Instr, scope *funcScope) error {
	op := p.next() // icmp / fcmp
	p.skipAttrs()
	pred := p.next() // eq, ne, slt, olt, ...
	ty, err := p.parseType()
	if err != nil {
		return err
	}
	x, err := p.parseValue(ty, scope)
	if err != nil {
		return err
	}
	if err := p.expect(tokPunct, ","); err != nil {
		return err
	}
	y, err := p.parseValue(ty, scope)
	if err != nil {
		return err
	}
	inst.Op = ir.OpCmp
	inst.Ty = ir.I1
	inst.Cmp = ir.CmpInstr{Mnemonic: op.text, Pred: pred.text, X: x, Y: y}
	return nil
}

func (p *parser) parsePhi(inst *ir.Instr, scope *funcScope) error {
	p.next() // phi
	p.skipAttrs()
	ty, err := p.parseType()
	if err != nil {
		return err
	}
	phi := ir.PhiInstr{}
	for {
		if err := p.expect(tokPunct, "["); err != nil {
			return err
		}
		v, err := p.parseValue(ty, scope)
		if err != nil {
			return err
		}
		if err := p.expect(tokPunct, ","); err != nil {
			return err
		}
		lbl := p.cur()
		if lbl.kind != tokLocal {
			return errf(p.path, lbl.line, "expected predecessor label, found %q", lbl.text)
		}
		p.pos++
		if err := p.expect(tokPunct, "]"); err != nil {
			return err
		}
		phi.Incoming = append(phi.Incoming, v)
		phi.Labels = append(phi.Labels, lbl.text)
		if !p.accept(tokPunct, ",") {
			break
		}
		// A trailing attachment also starts with a comma.
		if p.cur().kind == tokMeta || (p.cur().kind == tokIdent && p.cur().text == "align") {
			p.pos--
			break
		}
	}
	inst.Op = ir.OpPhi
	inst.Ty = ty
	inst.Phi = phi
	return nil
}

func (p *parser) parseSelect(inst *ir.Instr, scope *funcScope) error {
	p.next() // select
	p.skipAttrs()
	condTy, err := p.parseType()
	if err != nil {
		return err
	}
	cond, err := p.parseValue(condTy, scope)
	if err != nil {
		return err
	}
	if err := p.expect(tokPunct, ","); err != nil {
		return err
	}
	ty, err := p.parseType()
	if err != nil {
		return err
	}
	tv, err := p.parseValue(ty, scope)
	if err != nil {
		return err
	}
	if err := p.expect(tokPunct, ","); err != nil {
		return err
	}
	fty, err := p.parseType()
	if err != nil {
		return err
	}
	fv, err := p.parseValue(fty, scope)
	if err != nil {
		return err
	}
	inst.Op = ir.OpSelect
	inst.Ty = ty
	inst.Select = ir.SelectInstr{Cond: cond, True: tv, False: fv}
	return nil
}

func (p *parser) parseRet(inst *ir.Instr, scope *funcScope) error {
	p.next() // ret
	inst.Op = ir.OpRet
	inst.Ty = ir.Void
	if p.accept(tokIdent, "void") {
		return nil
	}
	ty, err := p.parseType()
	if err != nil {
		return err
	}
	v, err := p.parseValue(ty, scope)
	if err != nil {
		return err
	}
	inst.Ret = ir.RetInstr{Val: v}
	return nil
}
