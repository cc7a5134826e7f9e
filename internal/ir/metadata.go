package ir

// MDTuple is a generic `!{...}` metadata node. TBAA roots and type
// descriptors are tuples of strings, node references and integers.
type MDTuple struct {
	Ops []MDOperand
}

// MDOperandKind distinguishes tuple operand shapes.
type MDOperandKind uint8

const (
	// MDString is a `!"..."` operand.
	MDString MDOperandKind = iota
	// MDNode is a reference to another tuple.
	MDNode
	// MDInt is an integer operand like `i64 0`.
	MDInt
)

// MDOperand is one operand of an MDTuple.
type MDOperand struct {
	Kind MDOperandKind
	Str  string
	Node *MDTuple
	Int  int64
}

// TBAABaseName extracts the base-type name from a TBAA access tuple: the
// first operand is the base-type node, whose first operand is the name
// string. Returns "" when the tuple does not have that shape.
func TBAABaseName(root *MDTuple) string {
	if root == nil || len(root.Ops) == 0 {
		return ""
	}
	base := root.Ops[0]
	if base.Kind != MDNode || base.Node == nil || len(base.Node.Ops) == 0 {
		return ""
	}
	name := base.Node.Ops[0]
	if name.Kind != MDString {
		return ""
	}
	return name.Str
}
