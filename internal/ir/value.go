package ir

// Value is anything the type graph can key on: globals, functions,
// parameters, instruction results and constants. Name returns the bare
// identifier without the `@`/`%` sigil; unnamed values return "".
type Value interface {
	Name() string
	Type() *Type
}

// Const is a literal operand: integer, float, null, undef. Constants are
// never tracked in the type graph; they exist so operand lists stay total.
type Const struct {
	Ty   *Type
	Text string
}

// Name implements Value. Constants are unnamed.
func (c *Const) Name() string { return "" }

// Type implements Value.
func (c *Const) Type() *Type { return c.Ty }
