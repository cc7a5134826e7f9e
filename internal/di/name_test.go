package di

import "testing"

func TestTypeName(t *testing.T) {
	intTy := &Type{Tag: TagBase, Name: "int"}
	charTy := &Type{Tag: TagBase, Name: "char"}
	boolTy := &Type{Tag: TagBase, Name: "_Bool"}
	pageTy := &Type{Tag: TagStruct, Name: "page"}

	tests := []struct {
		name string
		ty   *Type
		want string
	}{
		{"nil is void", nil, "void"},
		{"base", intTy, "int"},
		{"bool spelling", boolTy, "bool"},
		{"enum", &Type{Tag: TagEnum, Name: "order"}, "enum order"},
		{"struct", pageTy, "struct page"},
		{"union", &Type{Tag: TagUnion, Name: "u"}, "union u"},
		{"pointer", &Type{Tag: TagPointer, Base: charTy}, "char*"},
		{"void pointer", &Type{Tag: TagPointer}, "void*"},
		{"pointer to struct", &Type{Tag: TagPointer, Base: pageTy}, "struct page*"},
		{"const is transparent", &Type{Tag: TagConst, Base: intTy}, "int"},
		{"volatile is transparent", &Type{Tag: TagVolatile, Base: intTy}, "int"},
		{"restrict pointer", &Type{Tag: TagPointer, Base: &Type{Tag: TagRestrict, Base: charTy}}, "char*"},
		{
			"array one dim",
			&Type{Tag: TagArray, Base: intTy, Elements: []*Type{{Tag: TagSubrange, Count: 4}}},
			"int*",
		},
		{
			"array two dims",
			&Type{Tag: TagArray, Base: charTy, Elements: []*Type{
				{Tag: TagSubrange, Count: 2}, {Tag: TagSubrange, Count: 3},
			}},
			"char**",
		},
		{"member spells its field type", &Type{Tag: TagMember, Name: "next", Base: &Type{Tag: TagPointer, Base: pageTy}}, "struct page*"},
		{"subroutine", &Type{Tag: TagSubroutine, Name: "cb"}, "cb"},
		{"unknown is empty", &Type{Tag: TagUnknown, Name: "x"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TypeName(tt.ty, true); got != tt.want {
				t.Errorf("TypeName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTypeName_Typedef(t *testing.T) {
	base := &Type{Tag: TagStruct, Name: "list_head"}
	td := &Type{Tag: TagTypedef, Name: "list_t", Base: base}

	if got := TypeName(td, true); got != "struct list_head" {
		t.Errorf("resolved typedef = %q", got)
	}
	if got := TypeName(td, false); got != "list_t" {
		t.Errorf("unresolved typedef = %q", got)
	}

	// A typedef with an unknown base falls back to its own name.
	broken := &Type{Tag: TagTypedef, Name: "opaque_t", Base: &Type{Tag: TagUnknown}}
	if got := TypeName(broken, true); got != "opaque_t" {
		t.Errorf("fallback typedef = %q", got)
	}
}
