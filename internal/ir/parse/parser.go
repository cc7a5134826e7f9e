package parse

import (
	"os"
	"strconv"

	"fortio.org/safecast"

	"typelift/internal/ir"
)

// linkage and visibility words that may precede a global or function body;
// the loader skips them, they carry nothing the analysis needs.
var linkageWords = map[string]bool{
	"private": true, "internal": true, "external": true, "linkonce": true,
	"linkonce_odr": true, "weak": true, "weak_odr": true, "common": true,
	"appending": true, "extern_weak": true, "available_externally": true,
	"dso_local": true, "dso_preemptable": true, "hidden": true,
	"protected": true, "default": true, "unnamed_addr": true,
	"local_unnamed_addr": true, "global": true, "constant": true,
	"thread_local": true, "externally_initialized": true,
}

// attribute words that may decorate function headers, params and call
// sites.
var attrWords = map[string]bool{
	"noundef": true, "nonnull": true, "noalias": true, "nocapture": true,
	"readonly": true, "writeonly": true, "readnone": true, "zeroext": true,
	"signext": true, "inreg": true, "byval": true, "sret": true,
	"immarg": true, "returned": true, "nest": true, "dereferenceable": true,
	"align": true, "nsw": true, "nuw": true, "exact": true, "inbounds": true,
	"nnan": true, "ninf": true, "nsz": true, "arcp": true, "contract": true,
	"afn": true, "reassoc": true, "fast": true, "tail": true,
	"musttail": true, "notail": true, "volatile": true, "atomic": true,
}

type parser struct {
	path string
	toks []token
	pos  int

	mod   *ir.Module
	types map[string]*ir.Type

	// raw metadata nodes by numeric id, decoded after the module body.
	md map[int64]*rawMD

	// attachment refs resolved during finalisation.
	globalDI   map[*ir.Global][]int64
	funcSP     map[*ir.Func]int64
	instTBAA   map[*ir.Instr]int64
	instDbg    map[*ir.Instr]int64
	dbgVarRefs map[*ir.CallInstr]int64
}

// File loads a module from a file on disk.
func File(path string) (*ir.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Module(path, string(data))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Module parses a module from source text. The path is used in error
// messages only.
func Module(path, src string) (*ir.Module, error) {
	p := &parser{
		path:       path,
		toks:       lex(src),
		mod:        &ir.Module{Path: path},
		types:      make(map[string]*ir.Type),
		md:         make(map[int64]*rawMD),
		globalDI:   make(map[*ir.Global][]int64),
		funcSP:     make(map[*ir.Func]int64),
		instTBAA:   make(map[*ir.Instr]int64),
		instDbg:    make(map[*ir.Instr]int64),
		dbgVarRefs: make(map[*ir.CallInstr]int64),
	}
	if err := p.parseModule(); err != nil {
		return nil, err
	}
	if err := p.finalize(); err != nil {
		return nil, err
	}
	return p.mod, nil
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) peek() token { return p.toks[p.pos+1] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(kind tokKind, text string) bool {
	if p.cur().is(kind, text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(kind tokKind, text string) error {
	t := p.cur()
	if !t.is(kind, text) {
		return errf(p.path, t.line, "expected %q, found %q", text, t.text)
	}
	p.pos++
	return nil
}

// skipLine advances to the first token of the next source line.
func (p *parser) skipLine() {
	line := p.cur().line
	for p.cur().kind != tokEOF && p.cur().line == line {
		p.pos++
	}
}

// skipBalanced consumes one balanced `open ... close` group.
func (p *parser) skipBalanced(open, close string) {
	if !p.accept(tokPunct, open) {
		return
	}
	depth := 1
	for depth > 0 && p.cur().kind != tokEOF {
		t := p.next()
		if t.is(tokPunct, open) {
			depth++
		} else if t.is(tokPunct, close) {
			depth--
		}
	}
}

func (p *parser) parseModule() error {
	for {
		t := p.cur()
		switch {
		case t.kind == tokEOF:
			return nil
		case t.kind == tokIdent && (t.text == "source_filename" || t.text == "target"):
			p.skipLine()
		case t.kind == tokIdent && t.text == "declare":
			if err := p.parseDeclare(); err != nil {
				return err
			}
		case t.kind == tokIdent && t.text == "define":
			if err := p.parseDefine(); err != nil {
				return err
			}
		case t.kind == tokIdent && t.text == "attributes":
			// attributes #0 = { ... }
			p.next()
			p.next() // #N
			p.next() // =
			p.skipBalanced("{", "}")
		case t.kind == tokLocal:
			if err := p.parseTypeDef(); err != nil {
				return err
			}
		case t.kind == tokGlobal:
			if err := p.parseGlobal(); err != nil {
				return err
			}
		case t.kind == tokMeta:
			if err := p.parseMetadataDef(); err != nil {
				return err
			}
		default:
			return errf(p.path, t.line, "unexpected token %q at module level", t.text)
		}
	}
}

// namedType interns a named struct/union type, creating an opaque
// placeholder on first reference so every mention shares one instance.
func (p *parser) namedType(name string) *ir.Type {
	full := "%" + name
	if t, ok := p.types[full]; ok {
		return t
	}
	t := &ir.Type{Kind: ir.TypeStruct, Name: full, Opaque: true}
	p.types[full] = t
	return t
}

// parseTypeDef handles `%struct.S = type { ... }` and `%t = type opaque`.
func (p *parser) parseTypeDef() error {
	name := p.next() // tokLocal
	if err := p.expect(tokPunct, "="); err != nil {
		return err
	}
	if err := p.expect(tokIdent, "type"); err != nil {
		return err
	}
	st := p.namedType(name.text)
	if p.accept(tokIdent, "opaque") {
		st.Opaque = true
		p.mod.TypeDefs = append(p.mod.TypeDefs, st)
		return nil
	}
	if err := p.expect(tokPunct, "{"); err != nil {
		return err
	}
	var fields []*ir.Type
	if !p.accept(tokPunct, "}") {
		for {
			f, err := p.parseType()
			if err != nil {
				return err
			}
			fields = append(fields, f)
			if !p.accept(tokPunct, ",") {
				break
			}
		}
		if err := p.expect(tokPunct, "}"); err != nil {
			return err
		}
	}
	st.Fields = fields
	st.Opaque = false
	p.mod.TypeDefs = append(p.mod.TypeDefs, st)
	return nil
}

// parseType parses one type, including `*` and function-type suffixes.
func (p *parser) parseType() (*ir.Type, error) {
	t := p.cur()
	var base *ir.Type

	switch {
	case t.kind == tokIdent:
		switch {
		case t.text == "void":
			base = ir.Void
		case t.text == "ptr":
			base = ir.Ptr
		case t.text == "half":
			base = &ir.Type{Kind: ir.TypeFloat, Float: ir.FloatHalf}
		case t.text == "float":
			base = ir.Float
		case t.text == "double":
			base = ir.Double
		case t.text == "label":
			base = ir.Label
		case t.text == "metadata":
			base = ir.Metadata
		case len(t.text) > 1 && t.text[0] == 'i' && allDigits(t.text[1:]):
			bits, err := strconv.ParseUint(t.text[1:], 10, 32)
			if err != nil {
				return nil, errf(p.path, t.line, "bad integer type %q", t.text)
			}
			width, err := safecast.Conv[uint32](bits)
			if err != nil {
				return nil, errf(p.path, t.line, "integer width overflow in %q", t.text)
			}
			base = ir.Int(width)
		default:
			return nil, errf(p.path, t.line, "unknown type %q", t.text)
		}
		p.pos++
	case t.kind == tokLocal:
		p.pos++
		base = p.namedType(t.text)
	case t.is(tokPunct, "["):
		p.pos++
		var err error
		base, err = p.parseSizedType(ir.TypeArray, "]")
		if err != nil {
			return nil, err
		}
	case t.is(tokPunct, "<"):
		p.pos++
		var err error
		base, err = p.parseSizedType(ir.TypeVector, ">")
		if err != nil {
			return nil, err
		}
	case t.is(tokPunct, "{"):
		p.pos++
		var fields []*ir.Type
		if !p.accept(tokPunct, "}") {
			for {
				f, err := p.parseType()
				if err != nil {
					return nil, err
				}
				fields = append(fields, f)
				if !p.accept(tokPunct, ",") {
					break
				}
			}
			if err := p.expect(tokPunct, "}"); err != nil {
				return nil, err
			}
		}
		base = &ir.Type{Kind: ir.TypeStruct, Fields: fields}
	default:
		return nil, errf(p.path, t.line, "expected type, found %q", t.text)
	}

	// Suffixes: pointer stars and function parameter lists.
	for {
		switch {
		case p.cur().is(tokPunct, "*"):
			p.pos++
			base = ir.PointerTo(base)
		case p.cur().is(tokPunct, "("):
			p.pos++
			ft := &ir.Type{Kind: ir.TypeFunc, Ret: base}
			if !p.accept(tokPunct, ")") {
				for {
					if p.accept(tokIdent, "...") {
						ft.Variadic = true
						break
					}
					param, err := p.parseType()
					if err != nil {
						return nil, err
					}
					ft.Params = append(ft.Params, param)
					if !p.accept(tokPunct, ",") {
						break
					}
				}
				if err := p.expect(tokPunct, ")"); err != nil {
					return nil, err
				}
			}
			base = ft
		default:
			return base, nil
		}
	}
}

// parseSizedType parses the `N x T` tail of an array or vector type.
func (p *parser) parseSizedType(kind ir.TypeKind, close string) (*ir.Type, error) {
	t := p.cur()
	if t.kind != tokNumber {
		return nil, errf(p.path, t.line, "expected element count, found %q", t.text)
	}
	p.pos++
	count, err := strconv.ParseUint(t.text, 10, 64)
	if err != nil {
		return nil, errf(p.path, t.line, "bad element count %q", t.text)
	}
	if err := p.expect(tokIdent, "x"); err != nil {
		return nil, err
	}
	elem, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokPunct, close); err != nil {
		return nil, err
	}
	return &ir.Type{Kind: kind, Len: count, Elem: elem}, nil
}

// parseGlobal handles `@g = <linkage>* global <type> <init>, attach...`.
func (p *parser) parseGlobal() error {
	name := p.next() // tokGlobal
	if err := p.expect(tokPunct, "="); err != nil {
		return err
	}
	for p.cur().kind == tokIdent && linkageWords[p.cur().text] {
		p.pos++
	}
	ty, err := p.parseType()
	if err != nil {
		return err
	}
	g := &ir.Global{Ident: name.text, ValueTy: ty}
	p.mod.Globals = append(p.mod.Globals, g)

	// Skip the initializer: everything up to the first comma at depth 0 or
	// the end of the line.
	line := name.line
	depth := 0
	for {
		t := p.cur()
		if t.kind == tokEOF || t.line != line {
			return nil
		}
		if depth == 0 && t.is(tokPunct, ",") {
			break
		}
		switch {
		case t.is(tokPunct, "(") || t.is(tokPunct, "[") || t.is(tokPunct, "{") || t.is(tokPunct, "<"):
			depth++
		case t.is(tokPunct, ")") || t.is(tokPunct, "]") || t.is(tokPunct, "}") || t.is(tokPunct, ">"):
			depth--
		}
		p.pos++
	}

	// Trailing attachments: `, align N`, `, !dbg !N`, section names...
	for p.accept(tokPunct, ",") {
		t := p.cur()
		switch {
		case t.kind == tokIdent && t.text == "align":
			p.pos++
			p.pos++ // the number
		case t.kind == tokMeta:
			kindTok := p.next()
			ref := p.cur()
			if ref.kind == tokMeta && allDigits(ref.text) {
				p.pos++
				if kindTok.text == "dbg" {
					id, err := strconv.ParseInt(ref.text, 10, 64)
					if err != nil {
						return errf(p.path, ref.line, "bad metadata id %q", ref.text)
					}
					p.globalDI[g] = append(p.globalDI[g], id)
				}
			}
		default:
			p.skipLine()
			return nil
		}
	}
	return nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}
