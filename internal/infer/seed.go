package infer

import (
	"errors"
	"fmt"

	"typelift/internal/di"
	"typelift/internal/ir"
	"typelift/internal/trace"
	"typelift/internal/typegraph"
)

// ErrNoDebugInfo is returned when the combined or debug-info seeder is
// selected but the module carries no debug info.
var ErrNoDebugInfo = errors.New("no debug info found")

// Source selects which evidence seeds the graph.
type Source uint8

const (
	// SourceMig seeds from the module's own (possibly opaque) IR types.
	SourceMig Source = iota
	// SourceDI seeds from debug-info metadata.
	SourceDI
	// SourceTBAA seeds from TBAA metadata.
	SourceTBAA
	// SourceComb layers DI over TBAA over IR types; the default.
	SourceComb
)

// ParseSource maps the CLI spelling to a Source.
func ParseSource(s string) (Source, error) {
	switch s {
	case "mig":
		return SourceMig, nil
	case "di":
		return SourceDI, nil
	case "tbaa":
		return SourceTBAA, nil
	case "comb":
		return SourceComb, nil
	default:
		return SourceComb, fmt.Errorf("unknown type source %q (want mig, di, tbaa or comb)", s)
	}
}

func (s Source) String() string {
	switch s {
	case SourceMig:
		return "mig"
	case SourceDI:
		return "di"
	case SourceTBAA:
		return "tbaa"
	default:
		return "comb"
	}
}

// Seeder populates a type graph with initial facts from one evidence
// source before solving. Seeding is idempotent with respect to Put, so
// repeated runs can only keep or grow information.
type Seeder struct {
	Source Source
	Cfg    Config
	Tracer trace.Tracer

	fields   *StructFields
	diLocals map[ir.Value][]*di.LocalVariable
}

// NewSeeder builds a seeder for the given source.
func NewSeeder(src Source, cfg Config, tracer trace.Tracer) *Seeder {
	if tracer == nil {
		tracer = trace.Nop
	}
	return &Seeder{Source: src, Cfg: cfg, Tracer: tracer}
}

// Seed populates the graph from the module. The combined and debug-info
// sources require the module to carry debug info.
func (s *Seeder) Seed(m *ir.Module, tg *typegraph.TypeGraph) error {
	switch s.Source {
	case SourceMig:
		s.seedMig(m, tg)
	case SourceDI:
		if !m.HasDebugInfo() {
			return ErrNoDebugInfo
		}
		s.prepareDI(m)
		s.seedDI(m, tg)
	case SourceTBAA:
		s.seedTBAA(m, tg)
	default:
		if !m.HasDebugInfo() {
			return ErrNoDebugInfo
		}
		s.prepareDI(m)
		s.seedComb(m, tg)
	}
	return nil
}

// Fields exposes the DI struct-field index built during seeding, for the
// gep rule's fallback lookup. Empty when the source carries no DI.
func (s *Seeder) Fields() *StructFields {
	if s.fields == nil {
		s.fields = &StructFields{cfg: s.Cfg}
	}
	return s.fields
}

// storedValue returns the value an instruction's seed is keyed on: the
// value operand for stores, the instruction itself otherwise.
func storedValue(inst *ir.Instr) ir.Value {
	if inst.Op == ir.OpStore {
		return inst.Store.Val
	}
	return inst
}
