package ir

import (
	"fmt"
	"strings"
)

// TypeKind enumerates the kinds of IR types the module view carries.
type TypeKind uint8

const (
	// TypeVoid represents the void type.
	TypeVoid TypeKind = iota
	// TypeInt represents an integer type of some bit width.
	TypeInt
	// TypeFloat represents a floating-point type.
	TypeFloat
	// TypePtr represents the opaque pointer token `ptr`.
	TypePtr
	// TypePtrTo represents a typed pointer `T*`, as found in pre-opaque
	// (migration) modules.
	TypePtrTo
	// TypeStruct represents a struct or union type, named or literal.
	TypeStruct
	// TypeArray represents an array type `[N x T]`.
	TypeArray
	// TypeVector represents a vector type `<N x T>`.
	TypeVector
	// TypeFunc represents a function type.
	TypeFunc
	// TypeLabel represents a basic-block label.
	TypeLabel
	// TypeMetadata represents a metadata operand slot.
	TypeMetadata
)

// FloatKind distinguishes floating-point widths.
type FloatKind uint8

const (
	// FloatHalf is the 16-bit float type.
	FloatHalf FloatKind = iota
	// FloatSingle is the 32-bit float type.
	FloatSingle
	// FloatDouble is the 64-bit float type.
	FloatDouble
)

// Type is one IR type. Which fields are meaningful depends on Kind:
// integers carry Bits, named structs carry Name (the full `%struct.X`
// identifier) and optionally Fields, literal structs carry only Fields,
// arrays and vectors carry Len and Elem, typed pointers carry Elem,
// function types carry Ret, Params and Variadic.
type Type struct {
	Kind     TypeKind
	Bits     uint32
	Float    FloatKind
	Name     string
	Fields   []*Type
	Opaque   bool
	Len      uint64
	Elem     *Type
	Ret      *Type
	Params   []*Type
	Variadic bool
}

// Shared singletons for the types with no payload.
var (
	Void     = &Type{Kind: TypeVoid}
	Ptr      = &Type{Kind: TypePtr}
	Label    = &Type{Kind: TypeLabel}
	Metadata = &Type{Kind: TypeMetadata}
	I1       = &Type{Kind: TypeInt, Bits: 1}
	I8       = &Type{Kind: TypeInt, Bits: 8}
	I16      = &Type{Kind: TypeInt, Bits: 16}
	I32      = &Type{Kind: TypeInt, Bits: 32}
	I64      = &Type{Kind: TypeInt, Bits: 64}
	I128     = &Type{Kind: TypeInt, Bits: 128}
	Float    = &Type{Kind: TypeFloat, Float: FloatSingle}
	Double   = &Type{Kind: TypeFloat, Float: FloatDouble}
)

// Int returns the integer type of the given width, reusing the common
// singletons.
func Int(bits uint32) *Type {
	switch bits {
	case 1:
		return I1
	case 8:
		return I8
	case 16:
		return I16
	case 32:
		return I32
	case 64:
		return I64
	case 128:
		return I128
	}
	return &Type{Kind: TypeInt, Bits: bits}
}

// PointerTo returns the typed pointer `elem*`.
func PointerTo(elem *Type) *Type {
	return &Type{Kind: TypePtrTo, Elem: elem}
}

// IsOpaquePtr reports whether the type is the opaque `ptr` token.
func (t *Type) IsOpaquePtr() bool {
	return t != nil && t.Kind == TypePtr
}

// IsVoid reports whether the type is void.
func (t *Type) IsVoid() bool {
	return t == nil || t.Kind == TypeVoid
}

// String prints the type the way the IR text spells it. Named structs print
// as their identifier only, never with their body.
func (t *Type) String() string {
	if t == nil {
		return "void"
	}
	switch t.Kind {
	case TypeVoid:
		return "void"
	case TypeInt:
		return fmt.Sprintf("i%d", t.Bits)
	case TypeFloat:
		switch t.Float {
		case FloatHalf:
			return "half"
		case FloatSingle:
			return "float"
		default:
			return "double"
		}
	case TypePtr:
		return "ptr"
	case TypePtrTo:
		return t.Elem.String() + "*"
	case TypeStruct:
		if t.Name != "" {
			return t.Name
		}
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.String()
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	case TypeArray:
		return fmt.Sprintf("[%d x %s]", t.Len, t.Elem.String())
	case TypeVector:
		return fmt.Sprintf("<%d x %s>", t.Len, t.Elem.String())
	case TypeFunc:
		parts := make([]string, 0, len(t.Params)+1)
		for _, p := range t.Params {
			parts = append(parts, p.String())
		}
		if t.Variadic {
			parts = append(parts, "...")
		}
		return t.Ret.String() + " (" + strings.Join(parts, ", ") + ")"
	case TypeLabel:
		return "label"
	case TypeMetadata:
		return "metadata"
	}
	return "void"
}
