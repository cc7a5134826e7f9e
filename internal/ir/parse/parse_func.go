package parse

import (
	"strconv"

	"typelift/internal/ir"
)

// parseDeclare handles `declare <retty> @name(<types>)`. Declared
// functions get parameter slots with empty names so call-site flow has
// somewhere to land.
func (p *parser) parseDeclare() error {
	p.next() // declare
	p.skipAttrs()
	ret, err := p.parseType()
	if err != nil {
		return err
	}
	name := p.cur()
	if name.kind != tokGlobal {
		return errf(p.path, name.line, "expected function name, found %q", name.text)
	}
	p.pos++

	sig := &ir.Type{Kind: ir.TypeFunc, Ret: ret}
	f := &ir.Func{Ident: name.text, Sig: sig, Declared: true}
	if err := p.expect(tokPunct, "("); err != nil {
		return err
	}
	if !p.accept(tokPunct, ")") {
		for {
			if p.accept(tokIdent, "...") {
				sig.Variadic = true
				break
			}
			ty, err := p.parseType()
			if err != nil {
				return err
			}
			p.skipAttrs()
			// Parameter names are legal but unusual in declares.
			pname := ""
			if p.cur().kind == tokLocal {
				pname = p.next().text
			}
			sig.Params = append(sig.Params, ty)
			f.Params = append(f.Params, &ir.Param{Ident: pname, Ty: ty, Index: len(f.Params)})
			if !p.accept(tokPunct, ",") {
				break
			}
		}
		if err := p.expect(tokPunct, ")"); err != nil {
			return err
		}
	}
	p.skipFuncTail(f)
	p.mod.Funcs = append(p.mod.Funcs, f)
	return nil
}

// parseDefine handles a function definition header and its body.
func (p *parser) parseDefine() error {
	p.next() // define
	p.skipAttrs()
	ret, err := p.parseType()
	if err != nil {
		return err
	}
	name := p.cur()
	if name.kind != tokGlobal {
		return errf(p.path, name.line, "expected function name, found %q", name.text)
	}
	p.pos++

	sig := &ir.Type{Kind: ir.TypeFunc, Ret: ret}
	f := &ir.Func{Ident: name.text, Sig: sig}
	if err := p.expect(tokPunct, "("); err != nil {
		return err
	}
	if !p.accept(tokPunct, ")") {
		for {
			if p.accept(tokIdent, "...") {
				sig.Variadic = true
				break
			}
			ty, err := p.parseType()
			if err != nil {
				return err
			}
			p.skipAttrs()
			pname := ""
			if p.cur().kind == tokLocal {
				pname = p.next().text
			}
			sig.Params = append(sig.Params, ty)
			f.Params = append(f.Params, &ir.Param{Ident: pname, Ty: ty, Index: len(f.Params)})
			if !p.accept(tokPunct, ",") {
				break
			}
		}
		if err := p.expect(tokPunct, ")"); err != nil {
			return err
		}
	}
	p.skipFuncTail(f)
	if err := p.expect(tokPunct, "{"); err != nil {
		return err
	}
	if err := p.parseBody(f); err != nil {
		return err
	}
	p.mod.Funcs = append(p.mod.Funcs, f)
	return nil
}

// skipAttrs consumes attribute words, attribute-group refs and
// align/dereferenceable payloads.
func (p *parser) skipAttrs() {
	for {
		t := p.cur()
		switch {
		case t.kind == tokIdent && (attrWords[t.text] || linkageWords[t.text]):
			p.pos++
			if t.text == "align" || t.text == "dereferenceable" {
				if p.cur().is(tokPunct, "(") {
					p.skipBalanced("(", ")")
				} else if p.cur().kind == tokNumber {
					p.pos++
				}
			}
		case t.kind == tokAttrRef:
			p.pos++
		default:
			return
		}
	}
}

// skipFuncTail consumes header attachments between the parameter list and
// the body: attribute refs, attrs, and the `!dbg !N` subprogram link.
func (p *parser) skipFuncTail(f *ir.Func) {
	for {
		t := p.cur()
		switch {
		case t.kind == tokAttrRef:
			p.pos++
		case t.kind == tokIdent && (attrWords[t.text] || linkageWords[t.text]):
			p.skipAttrs()
		case t.kind == tokMeta && t.text == "dbg":
			p.pos++
			ref := p.cur()
			if ref.kind == tokMeta && allDigits(ref.text) {
				p.pos++
				if id, err := strconv.ParseInt(ref.text, 10, 64); err == nil {
					p.funcSP[f] = id
				}
			}
		default:
			return
		}
	}
}

// funcScope resolves local names while a body parses. Shell instructions
// are registered up front so operands can reference results that are
// defined later (phi back edges).
type funcScope struct {
	values map[string]ir.Value
}

func (s *funcScope) lookup(name string) ir.Value {
	return s.values[name]
}

// parseBody reads a function body. It runs two passes over the buffered
// body tokens: the first registers every `%name =` result with a shell
// instruction, the second parses instructions in full, resolving operands
// against the shells.
func (p *parser) parseBody(f *ir.Func) error {
	start := p.pos

	scope := &funcScope{values: make(map[string]ir.Value, len(f.Params)+8)}
	for _, prm := range f.Params {
		if prm.Ident != "" {
			scope.values[prm.Ident] = prm
		}
	}

	// First pass: register result shells and find the body end.
	depth := 1
	lineStart := -1
	for p.cur().kind != tokEOF && depth > 0 {
		t := p.cur()
		switch {
		case t.is(tokPunct, "{"):
			depth++
		case t.is(tokPunct, "}"):
			depth--
		case t.kind == tokLocal && t.line != lineStart && p.peek().is(tokPunct, "="):
			inst := &ir.Instr{Ident: t.text, Parent: f}
			scope.values[t.text] = inst
			lineStart = t.line
		}
		p.pos++
	}
	end := p.pos // one past the closing brace

	// Second pass: parse instructions into the shells.
	p.pos = start
	block := &ir.Block{}
	blockHasEntry := false
	for p.pos < end-1 {
		t := p.cur()
		switch {
		case t.kind == tokIdent && p.peek().is(tokPunct, ":"):
			// Block label.
			if blockHasEntry || len(block.Instrs) > 0 {
				f.Blocks = append(f.Blocks, block)
			}
			block = &ir.Block{Label: t.text}
			blockHasEntry = true
			p.pos += 2
		case t.kind == tokNumber && p.peek().is(tokPunct, ":"):
			if blockHasEntry || len(block.Instrs) > 0 {
				f.Blocks = append(f.Blocks, block)
			}
			block = &ir.Block{Label: t.text}
			blockHasEntry = true
			p.pos += 2
		default:
			inst, err := p.parseInstr(f, scope)
			if err != nil {
				return err
			}
			if inst != nil {
				block.Instrs = append(block.Instrs, inst)
			}
		}
	}
	p.pos = end
	if blockHasEntry || len(block.Instrs) > 0 {
		f.Blocks = append(f.Blocks, block)
	}
	return nil
}
