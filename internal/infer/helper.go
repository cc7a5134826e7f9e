// Package infer implements the type-inference engine: the seeding passes
// that populate the type graph from IR types, debug info and TBAA
// metadata, and the constraint solver that propagates types along the
// dataflow to a fixed point.
package infer

import (
	"regexp"
	"strings"

	"typelift/internal/ir"
	"typelift/internal/typegraph"
)

// Config folds the knobs the engine consults: the DI→IR spelling
// translation table, typedef resolution and the bounded-solver iteration
// cap. The zero value is not useful; start from DefaultConfig.
type Config struct {
	Translate      map[string]string
	ResolveTypedef bool
	MaxIters       int
}

// defaultTranslate maps source-level scalar spellings to IR spellings.
var defaultTranslate = map[string]string{
	"bool":               "i1",
	"char":               "i8",
	"short":              "i16",
	"int":                "i32",
	"long":               "i64",
	"long long":          "i64",
	"unsigned char":      "i8",
	"unsigned short":     "i16",
	"unsigned int":       "i32",
	"unsigned long":      "i64",
	"unsigned long long": "i64",
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	tr := make(map[string]string, len(defaultTranslate))
	for k, v := range defaultTranslate {
		tr[k] = v
	}
	return Config{
		Translate:      tr,
		ResolveTypedef: true,
		MaxIters:       5,
	}
}

// structSuffix matches the trailing `.N` disambiguator the IR printer
// appends to renamed struct types.
var structSuffix = regexp.MustCompile(`(%struct\.[a-zA-Z_]\w*)\.\d+(\*?)`)

// TrimStructSuffix strips trailing `.N` disambiguators from struct
// spellings: `%struct.foo.123*` becomes `%struct.foo*`.
func TrimStructSuffix(name string) string {
	return structSuffix.ReplaceAllString(name, "$1$2")
}

// DIToIR canonicalises a source-level spelling into the IR spelling:
// scalars through the translation table, `struct X` to `%struct.X`,
// enums to i32. Pointer suffixes are preserved.
func (c Config) DIToIR(diName string) string {
	name := diName
	level := 0
	for strings.HasSuffix(name, "*") {
		name = name[:len(name)-1]
		level++
	}

	if mapped, ok := c.Translate[name]; ok {
		name = mapped
	} else if strings.HasPrefix(name, "struct ") {
		name = "%struct." + name[len("struct "):]
	} else if strings.HasPrefix(name, "enum") {
		name = "i32"
	}

	return TrimStructSuffix(name + strings.Repeat("*", level))
}

// TypeName produces the canonical string of an IR type. Named structs
// print as their identifier without the layout; arrays and vectors
// flatten to their element type with one `*` per dimension, except when
// the element is itself opaque.
func TypeName(t *ir.Type) string {
	if t == nil {
		return "void"
	}
	if t.Kind == ir.TypeArray || t.Kind == ir.TypeVector {
		stars := 0
		for t.Kind == ir.TypeArray || t.Kind == ir.TypeVector {
			stars++
			t = t.Elem
		}
		name := TypeName(t)
		if IsOpaqueName(name) {
			return name
		}
		return name + strings.Repeat("*", stars)
	}
	return t.String()
}

// CallTypeName renders a call's function type as its return type: the
// printed signature with the parenthesised parameter list erased.
func CallTypeName(sig *ir.Type) string {
	s := sig.String()
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, " ")
}

// IsOpaqueName reports whether the spelling is the opaque token.
func IsOpaqueName(name string) bool { return name == "ptr" }

// Reference returns the pointer spelling of a name. The opaque token has
// no reference.
func Reference(name string) string {
	if IsOpaqueName(name) {
		return name
	}
	return name + "*"
}

// ReferenceType returns the pointer spelling of an IR type.
func ReferenceType(t *ir.Type) string {
	return Reference(TypeName(t))
}

// CanFlowName reports whether a spelling carries information worth
// propagating: non-empty and not the opaque token.
func CanFlowName(name string) bool {
	return name != "" && !IsOpaqueName(name)
}

// CanFlowSet extends CanFlowName to sets: non-empty, not purely opaque
// and not purely the generic `void*`.
func CanFlowSet(ts *typegraph.TypeSet) bool {
	if ts == nil {
		return false
	}
	return !ts.Empty() && !ts.IsOpaque() && !ts.IsGenericPtr()
}
