package di

import "strings"

// TypeName renders a debug-info type node into its source-level spelling:
// base types keep their name (`_Bool` becomes `bool`), enums become
// `enum X`, structs `struct X`, unions `union X`, pointers append `*`,
// arrays append one `*` per subrange dimension, cv-qualifiers are
// transparent. A nil node spells `void`. Unknown tags spell as the empty
// string so the caller can skip them.
//
// When resolveTypedef is true a typedef spells as its underlying type,
// falling back to the typedef name when the base is missing or unknown.
func TypeName(t *Type, resolveTypedef bool) string {
	if t == nil {
		return "void"
	}

	switch t.Tag {
	case TagBase:
		if t.Name == "_Bool" {
			return "bool"
		}
		return t.Name
	case TagEnum:
		return "enum " + t.Name
	case TagStruct:
		return "struct " + t.Name
	case TagUnion:
		return "union " + t.Name
	case TagPointer:
		base := "void"
		if t.Base != nil {
			base = TypeName(t.Base, resolveTypedef)
		}
		return base + "*"
	case TagArray:
		base := "void"
		if t.Base != nil {
			base = TypeName(t.Base, resolveTypedef)
		}
		dims := 0
		for _, el := range t.Elements {
			if el != nil && el.Tag == TagSubrange {
				dims++
			}
		}
		return base + strings.Repeat("*", dims)
	case TagTypedef:
		if resolveTypedef && t.Base != nil {
			if name := TypeName(t.Base, resolveTypedef); name != "" {
				return name
			}
		}
		return t.Name
	case TagConst, TagVolatile, TagRestrict:
		if t.Base == nil {
			return "void"
		}
		return TypeName(t.Base, resolveTypedef)
	case TagMember:
		// Members spell as their underlying field type.
		return TypeName(t.Base, resolveTypedef)
	case TagSubroutine:
		return t.Name
	default:
		return ""
	}
}
