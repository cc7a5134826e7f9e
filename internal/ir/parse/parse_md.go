package parse

import (
	"sort"
	"strconv"

	"typelift/internal/di"
	"typelift/internal/ir"
)

// rawValKind classifies undecoded metadata operands and field values.
type rawValKind uint8

const (
	rvRef rawValKind = iota
	rvStr
	rvInt
	rvIdent
	rvTuple
)

type rawVal struct {
	kind  rawValKind
	ref   int64
	str   string
	n     int64
	tuple []rawVal
}

// rawMD is one `!N = ...` metadata definition before decoding: either a
// generic tuple or a specialised `!DI...` node with named fields.
type rawMD struct {
	isTuple bool
	tuple   []rawVal
	kind    string
	fields  map[string]rawVal
}

// parseMetadataDef handles `!N = [distinct] (!{...} | !DIxxx(...))` and
// skips named metadata like `!llvm.dbg.cu = !{...}`.
func (p *parser) parseMetadataDef() error {
	name := p.next() // tokMeta
	if !allDigits(name.text) {
		// Named metadata; nothing in it feeds the analysis.
		p.skipLine()
		if p.cur().is(tokPunct, "{") {
			p.skipBalanced("{", "}")
		}
		return nil
	}
	id, err := strconv.ParseInt(name.text, 10, 64)
	if err != nil {
		return errf(p.path, name.line, "bad metadata id %q", name.text)
	}
	if err := p.expect(tokPunct, "="); err != nil {
		return err
	}
	p.accept(tokIdent, "distinct")

	t := p.cur()
	switch {
	case t.kind == tokMeta && t.text == "":
		ops, err := p.parseMDTuple()
		if err != nil {
			return err
		}
		p.md[id] = &rawMD{isTuple: true, tuple: ops}
	case t.kind == tokMeta:
		node, err := p.parseMDSpecial()
		if err != nil {
			return err
		}
		p.md[id] = node
	default:
		return errf(p.path, t.line, "expected metadata node, found %q", t.text)
	}
	return nil
}

// parseMDTuple parses `!{ op, op, ... }` starting at the `!` token.
func (p *parser) parseMDTuple() ([]rawVal, error) {
	p.next() // the bare `!`
	if err := p.expect(tokPunct, "{"); err != nil {
		return nil, err
	}
	var ops []rawVal
	if p.accept(tokPunct, "}") {
		return ops, nil
	}
	for {
		v, err := p.parseMDValue()
		if err != nil {
			return nil, err
		}
		ops = append(ops, v)
		if !p.accept(tokPunct, ",") {
			break
		}
	}
	if err := p.expect(tokPunct, "}"); err != nil {
		return nil, err
	}
	return ops, nil
}

// parseMDSpecial parses `!DIxxx(key: value, ...)` starting at the name.
func (p *parser) parseMDSpecial() (*rawMD, error) {
	name := p.next() // tokMeta with the node kind
	node := &rawMD{kind: name.text, fields: make(map[string]rawVal)}
	if err := p.expect(tokPunct, "("); err != nil {
		return nil, err
	}
	if p.accept(tokPunct, ")") {
		return node, nil
	}
	for {
		key := p.cur()
		if key.kind != tokIdent {
			return nil, errf(p.path, key.line, "expected field name, found %q", key.text)
		}
		p.pos++
		if err := p.expect(tokPunct, ":"); err != nil {
			return nil, err
		}
		v, err := p.parseMDValue()
		if err != nil {
			return nil, err
		}
		node.fields[key.text] = v
		p.skipFieldTail()
		if !p.accept(tokPunct, ",") {
			break
		}
	}
	if err := p.expect(tokPunct, ")"); err != nil {
		return nil, err
	}
	return node, nil
}

// skipFieldTail drops whatever follows a parsed field value up to the next
// comma or closing paren: or-ed flag words, arithmetic the decoder does
// not care about.
func (p *parser) skipFieldTail() {
	depth := 0
	for {
		t := p.cur()
		switch {
		case t.kind == tokEOF:
			return
		case depth == 0 && (t.is(tokPunct, ",") || t.is(tokPunct, ")")):
			return
		case t.is(tokPunct, "("):
			depth++
		case t.is(tokPunct, ")"):
			depth--
		}
		p.pos++
	}
}

// parseMDValue parses one metadata operand or field value.
func (p *parser) parseMDValue() (rawVal, error) {
	t := p.cur()
	switch {
	case t.kind == tokMeta && allDigits(t.text):
		p.pos++
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return rawVal{}, errf(p.path, t.line, "bad metadata ref %q", t.text)
		}
		return rawVal{kind: rvRef, ref: n}, nil
	case t.kind == tokMeta && t.text == "":
		if p.peek().is(tokPunct, "{") {
			ops, err := p.parseMDTuple()
			if err != nil {
				return rawVal{}, err
			}
			return rawVal{kind: rvTuple, tuple: ops}, nil
		}
		p.pos++
		if p.cur().kind == tokString {
			s := p.next()
			return rawVal{kind: rvStr, str: s.text}, nil
		}
		return rawVal{kind: rvIdent}, nil
	case t.kind == tokMeta:
		// Inline specialised node such as `!DIExpression()`.
		p.pos++
		p.skipBalanced("(", ")")
		return rawVal{kind: rvIdent, str: t.text}, nil
	case t.kind == tokString:
		p.pos++
		return rawVal{kind: rvStr, str: t.text}, nil
	case t.kind == tokNumber:
		p.pos++
		n, _ := strconv.ParseInt(t.text, 10, 64)
		return rawVal{kind: rvInt, n: n}, nil
	case t.kind == tokIdent:
		p.pos++
		if t.text == "i1" || t.text == "i8" || t.text == "i16" ||
			t.text == "i32" || t.text == "i64" {
			// `i64 0` style typed integer.
			num := p.cur()
			if num.kind == tokNumber {
				p.pos++
				n, _ := strconv.ParseInt(num.text, 10, 64)
				return rawVal{kind: rvInt, n: n}, nil
			}
		}
		return rawVal{kind: rvIdent, str: t.text}, nil
	default:
		return rawVal{}, errf(p.path, t.line, "expected metadata value, found %q", t.text)
	}
}

// diTypeKinds are the specialised node kinds that decode into di.Type.
var diTypeKinds = map[string]bool{
	"DIBasicType": true, "DIDerivedType": true, "DICompositeType": true,
	"DISubroutineType": true, "DISubrange": true,
}

// decoder resolves raw metadata into the typed debug-info and TBAA views.
type decoder struct {
	p      *parser
	types  map[int64]*di.Type
	tuples map[int64]*ir.MDTuple
}

// finalize resolves forward references and decodes the metadata section,
// attaching DI types, subprograms, local and global variables and TBAA
// tuples to the module.
func (p *parser) finalize() error {
	// Calls may name functions defined later in the file.
	p.mod.ForEachInstr(func(_ *ir.Func, inst *ir.Instr) {
		if inst.Op == ir.OpCall && inst.Call.Callee == nil && inst.Call.CalleeName != "" {
			inst.Call.Callee = p.mod.FuncByName(inst.Call.CalleeName)
		}
	})

	d := &decoder{
		p:      p,
		types:  make(map[int64]*di.Type),
		tuples: make(map[int64]*ir.MDTuple),
	}

	// Decode every DI type node so struct mapping can see all of them,
	// in id order for deterministic DITypes.
	ids := make([]int64, 0, len(p.md))
	for id := range p.md {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if node := p.md[id]; node != nil && diTypeKinds[node.kind] {
			d.diType(id)
		}
	}

	for g, refs := range p.globalDI {
		for _, ref := range refs {
			if v := d.globalVariable(ref); v != nil {
				g.DI = append(g.DI, v)
			}
		}
	}
	for f, ref := range p.funcSP {
		f.Subprogram = d.subprogram(ref)
	}
	for inst, ref := range p.instTBAA {
		inst.TBAA = d.tuple(ref)
	}
	for call, ref := range p.dbgVarRefs {
		call.DbgVar = d.localVariable(ref)
	}
	return nil
}

func tagFromString(s string) di.Tag {
	switch s {
	case "DW_TAG_base_type":
		return di.TagBase
	case "DW_TAG_enumeration_type":
		return di.TagEnum
	case "DW_TAG_pointer_type":
		return di.TagPointer
	case "DW_TAG_structure_type":
		return di.TagStruct
	case "DW_TAG_union_type":
		return di.TagUnion
	case "DW_TAG_typedef":
		return di.TagTypedef
	case "DW_TAG_array_type":
		return di.TagArray
	case "DW_TAG_const_type":
		return di.TagConst
	case "DW_TAG_volatile_type":
		return di.TagVolatile
	case "DW_TAG_restrict_type":
		return di.TagRestrict
	case "DW_TAG_subroutine_type":
		return di.TagSubroutine
	case "DW_TAG_member":
		return di.TagMember
	case "DW_TAG_subrange_type":
		return di.TagSubrange
	default:
		return di.TagUnknown
	}
}

// diType decodes one DI type node, memoised so cyclic struct references
// terminate.
func (d *decoder) diType(id int64) *di.Type {
	if t, ok := d.types[id]; ok {
		return t
	}
	node := d.p.md[id]
	if node == nil || node.isTuple || !diTypeKinds[node.kind] {
		return nil
	}

	t := &di.Type{}
	d.types[id] = t
	d.p.mod.DITypes = append(d.p.mod.DITypes, t)

	name := ""
	if v, ok := node.fields["name"]; ok && v.kind == rvStr {
		name = v.str
	}
	t.Name = name

	switch node.kind {
	case "DIBasicType":
		t.Tag = di.TagBase
	case "DISubrange":
		t.Tag = di.TagSubrange
		if v, ok := node.fields["count"]; ok && v.kind == rvInt {
			t.Count = v.n
		}
	case "DISubroutineType":
		t.Tag = di.TagSubroutine
	case "DIDerivedType", "DICompositeType":
		t.Tag = di.TagUnknown
		if v, ok := node.fields["tag"]; ok && v.kind == rvIdent {
			t.Tag = tagFromString(v.str)
		}
	}

	if v, ok := node.fields["baseType"]; ok && v.kind == rvRef {
		t.Base = d.diType(v.ref)
	}
	if v, ok := node.fields["elements"]; ok {
		t.Elements = d.typeList(v)
	}
	return t
}

// typeList resolves an `elements:`/`types:` field into type nodes. The
// field is either a ref to a tuple node or an inline tuple.
func (d *decoder) typeList(v rawVal) []*di.Type {
	var ops []rawVal
	switch v.kind {
	case rvTuple:
		ops = v.tuple
	case rvRef:
		node := d.p.md[v.ref]
		if node == nil || !node.isTuple {
			return nil
		}
		ops = node.tuple
	default:
		return nil
	}
	out := make([]*di.Type, 0, len(ops))
	for _, op := range ops {
		switch op.kind {
		case rvRef:
			out = append(out, d.diType(op.ref))
		case rvIdent:
			// `null` marks a variadic slot.
			out = append(out, nil)
		}
	}
	return out
}

// subprogram decodes a DISubprogram and its subroutine type array.
func (d *decoder) subprogram(id int64) *di.Subprogram {
	node := d.p.md[id]
	if node == nil || node.kind != "DISubprogram" {
		return nil
	}
	sp := &di.Subprogram{}
	if v, ok := node.fields["name"]; ok && v.kind == rvStr {
		sp.Name = v.str
	}
	tv, ok := node.fields["type"]
	if !ok || tv.kind != rvRef {
		return sp
	}
	tyNode := d.p.md[tv.ref]
	if tyNode == nil || tyNode.kind != "DISubroutineType" {
		return sp
	}
	if v, ok := tyNode.fields["types"]; ok {
		sp.Types = d.typeList(v)
	}
	return sp
}

// localVariable decodes a DILocalVariable.
func (d *decoder) localVariable(id int64) *di.LocalVariable {
	node := d.p.md[id]
	if node == nil || node.kind != "DILocalVariable" {
		return nil
	}
	v := &di.LocalVariable{}
	if f, ok := node.fields["name"]; ok && f.kind == rvStr {
		v.Name = f.str
	}
	if f, ok := node.fields["type"]; ok && f.kind == rvRef {
		v.Type = d.diType(f.ref)
	}
	return v
}

// globalVariable decodes a DIGlobalVariableExpression down to its
// variable.
func (d *decoder) globalVariable(id int64) *di.Variable {
	node := d.p.md[id]
	if node == nil {
		return nil
	}
	if node.kind == "DIGlobalVariableExpression" {
		ref, ok := node.fields["var"]
		if !ok || ref.kind != rvRef {
			return nil
		}
		node = d.p.md[ref.ref]
		if node == nil {
			return nil
		}
	}
	if node.kind != "DIGlobalVariable" {
		return nil
	}
	v := &di.Variable{}
	if f, ok := node.fields["name"]; ok && f.kind == rvStr {
		v.Name = f.str
	}
	if f, ok := node.fields["type"]; ok && f.kind == rvRef {
		v.Type = d.diType(f.ref)
	}
	return v
}

// tuple decodes a generic metadata tuple, memoised for shared TBAA nodes.
func (d *decoder) tuple(id int64) *ir.MDTuple {
	if t, ok := d.tuples[id]; ok {
		return t
	}
	node := d.p.md[id]
	if node == nil || !node.isTuple {
		return nil
	}
	t := &ir.MDTuple{}
	d.tuples[id] = t
	for _, op := range node.tuple {
		switch op.kind {
		case rvStr:
			t.Ops = append(t.Ops, ir.MDOperand{Kind: ir.MDString, Str: op.str})
		case rvRef:
			if sub := d.tuple(op.ref); sub != nil {
				t.Ops = append(t.Ops, ir.MDOperand{Kind: ir.MDNode, Node: sub})
			}
		case rvInt:
			t.Ops = append(t.Ops, ir.MDOperand{Kind: ir.MDInt, Int: op.n})
		}
	}
	return t
}
