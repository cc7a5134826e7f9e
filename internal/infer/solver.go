package infer

import (
	"fmt"

	"typelift/internal/ir"
	"typelift/internal/trace"
	"typelift/internal/typegraph"
)

// SolverKind selects the fixed-point driver.
type SolverKind uint8

const (
	// SolverWorklist drains an edge-triggered instruction queue; the
	// preferred driver.
	SolverWorklist SolverKind = iota
	// SolverBounded sweeps every instruction a fixed number of times; the
	// fail-safe driver.
	SolverBounded
)

// ParseSolver maps the CLI spelling to a SolverKind.
func ParseSolver(s string) (SolverKind, error) {
	switch s {
	case "worklist":
		return SolverWorklist, nil
	case "bounded":
		return SolverBounded, nil
	default:
		return SolverWorklist, fmt.Errorf("unknown solver %q (want worklist or bounded)", s)
	}
}

// Analyzer owns one inference run over one module: it seeds the graph,
// then propagates the constraint rules to a fixed point. The analyzer is
// strictly single-threaded; the graph it returns must not be mutated
// concurrently.
type Analyzer struct {
	m      *ir.Module
	cfg    Config
	seeder *Seeder
	tracer trace.Tracer

	tg    *typegraph.TypeGraph
	rules *Rules
	wl    *Worklist
}

// NewAnalyzer builds an analyzer for one module and evidence source.
func NewAnalyzer(m *ir.Module, src Source, cfg Config, tracer trace.Tracer) *Analyzer {
	if tracer == nil {
		tracer = trace.Nop
	}
	return &Analyzer{
		m:      m,
		cfg:    cfg,
		seeder: NewSeeder(src, cfg, tracer),
		tracer: tracer,
	}
}

// Init creates the graph and runs the seeding pass. It fails when the
// selected source requires debug info the module does not carry.
func (a *Analyzer) Init() (*typegraph.TypeGraph, error) {
	a.tg = typegraph.New()
	if err := a.seeder.Seed(a.m, a.tg); err != nil {
		return nil, err
	}
	a.wl = NewWorklist(a.m)
	a.rules = NewRules(a.tg, a.wl, a.seeder.Fields(), a.tracer)
	return a.tg, nil
}

// Graph returns the graph of the current run.
func (a *Analyzer) Graph() *typegraph.TypeGraph { return a.tg }

// Solve drains the worklist: pop one instruction, apply its rule, repeat
// until no rule grows any set. Termination follows from monotonicity of
// the graph and the finite name domain of the module.
func (a *Analyzer) Solve() error {
	for !a.wl.Empty() {
		inst := a.wl.Pop()
		if err := a.step(inst); err != nil {
			return err
		}
	}
	return nil
}

// SolveBounded sweeps every instruction in module order, MaxIters times.
func (a *Analyzer) SolveBounded() error {
	iters := a.cfg.MaxIters
	if iters <= 0 {
		iters = DefaultConfig().MaxIters
	}
	for n := 0; n < iters; n++ {
		var sweepErr error
		a.m.ForEachInstr(func(_ *ir.Func, inst *ir.Instr) {
			if sweepErr != nil {
				return
			}
			sweepErr = a.step(inst)
		})
		if sweepErr != nil {
			return sweepErr
		}
	}
	return nil
}

// step dispatches one instruction to its rule.
func (a *Analyzer) step(inst *ir.Instr) error {
	scope := inst.Parent
	switch inst.Op {
	case ir.OpCast:
		a.rules.Cast(scope, inst)
	case ir.OpLoad:
		a.rules.Load(scope, inst)
	case ir.OpStore:
		a.rules.Store(scope, inst)
	case ir.OpBinary:
		a.rules.Binary(scope, inst)
	case ir.OpPhi:
		a.rules.Phi(scope, inst)
	case ir.OpGEP:
		return a.rules.FieldOf(scope, inst)
	case ir.OpCmp:
		a.rules.Cmp(scope, inst)
	case ir.OpCall:
		a.rules.Call(scope, inst)
	case ir.OpSelect:
		a.rules.Select(scope, inst)
	}
	return nil
}
