package infer

import (
	"errors"
	"reflect"
	"testing"

	"typelift/internal/ir"
	"typelift/internal/ir/parse"
	"typelift/internal/typegraph"
)

func mustParse(t *testing.T, src string) *ir.Module {
	t.Helper()
	m, err := parse.Module("test.ll", src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return m
}

func solve(t *testing.T, m *ir.Module, src Source) (*Analyzer, *typegraph.TypeGraph) {
	t.Helper()
	a := NewAnalyzer(m, src, DefaultConfig(), nil)
	tg, err := a.Init()
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := a.Solve(); err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	return a, tg
}

func local(t *testing.T, m *ir.Module, fn, name string) (*ir.Func, ir.Value) {
	t.Helper()
	f := m.FuncByName(fn)
	if f == nil {
		t.Fatalf("no function %s", fn)
	}
	for _, p := range f.Params {
		if p.Ident == name {
			return f, p
		}
	}
	for _, bb := range f.Blocks {
		for _, inst := range bb.Instrs {
			if inst.Ident == name {
				return f, inst
			}
		}
	}
	t.Fatalf("no value %%%s in %s", name, fn)
	return nil, nil
}

func wantTypes(t *testing.T, ts *typegraph.TypeSet, want ...string) {
	t.Helper()
	if ts == nil {
		t.Fatalf("no entry, want %v", want)
	}
	for _, ty := range want {
		if !ts.Has(ty) {
			t.Fatalf("missing %q in %v", ty, ts.Types())
		}
	}
}

func wantExactly(t *testing.T, ts *typegraph.TypeSet, want ...string) {
	t.Helper()
	if ts == nil {
		t.Fatalf("no entry, want %v", want)
	}
	if !reflect.DeepEqual(ts.Types(), want) {
		t.Fatalf("got %v, want %v", ts.Types(), want)
	}
}

// A plain global is an address of its value type.
func TestSolve_GlobalReference(t *testing.T) {
	m := mustParse(t, `@g = global i32 0, align 4`)
	_, tg := solve(t, m, SourceMig)
	wantExactly(t, tg.Get(nil, m.Globals[0]), "i32*")
}

// Typed-pointer migration input: the alloca of a pointer slot and the
// stored pointer both keep their full indirection.
func TestSolve_TypedPointerStore(t *testing.T) {
	m := mustParse(t, `
%struct.S = type { i32 }

define void @f(%struct.S* %p) {
  %a = alloca %struct.S*, align 8
  store %struct.S* %p, %struct.S** %a, align 8
  ret void
}
`)
	_, tg := solve(t, m, SourceMig)

	f, a := local(t, m, "f", "a")
	wantExactly(t, tg.Get(f, a), "%struct.S**")
	_, p := local(t, m, "f", "p")
	wantExactly(t, tg.Get(f, p), "%struct.S*")
}

// A load's element type flows back into its opaque pointer operand.
func TestSolve_LoadRefinesPointer(t *testing.T) {
	m := mustParse(t, `
define i32 @f(ptr %q) {
  %l = load i32, ptr %q, align 4
  ret i32 %l
}
`)
	_, tg := solve(t, m, SourceMig)

	f, l := local(t, m, "f", "l")
	wantTypes(t, tg.Get(f, l), "i32")
	_, q := local(t, m, "f", "q")
	wantTypes(t, tg.Get(f, q), "i32*")
}

// A phi result fills from its non-opaque incoming, and the recovered set
// flows onward into the still-opaque operand of a comparison.
func TestSolve_PhiAndCompare(t *testing.T) {
	m := mustParse(t, `
define void @f(ptr %in, i1 %c) {
entry:
  %x = alloca i8, align 1
  br i1 %c, label %a, label %b
a:
  br label %join
b:
  %y = load ptr, ptr %in, align 8
  br label %join
join:
  %r = phi ptr [ %x, %a ], [ %y, %b ]
  %eq = icmp eq ptr %r, %y
  ret void
}
`)
	_, tg := solve(t, m, SourceMig)

	f, r := local(t, m, "f", "r")
	wantExactly(t, tg.Get(f, r), "i8*")
	_, y := local(t, m, "f", "y")
	wantExactly(t, tg.Get(f, y), "i8*")
}

// memcpy flows symmetrically between its pointer operands.
func TestSolve_MemcpyCopiesTypes(t *testing.T) {
	m := mustParse(t, `
%struct.T = type { i64, i64 }

declare void @llvm.memcpy.p0.p0.i64(ptr, ptr, i64, i1)

define void @f(ptr %d) {
  %s = alloca %struct.T, align 8
  call void @llvm.memcpy.p0.p0.i64(ptr %d, ptr %s, i64 16, i1 false)
  ret void
}
`)
	_, tg := solve(t, m, SourceMig)

	f, s := local(t, m, "f", "s")
	wantTypes(t, tg.Get(f, s), "%struct.T*")
	_, d := local(t, m, "f", "d")
	wantTypes(t, tg.Get(f, d), "%struct.T*")
}

// A gep whose IR field type is opaque falls back to the debug-info
// composite for the field spelling.
func TestSolve_GEPFieldFromDebugInfo(t *testing.T) {
	m := mustParse(t, `
%struct.S = type { i32, i64, ptr }

define ptr @f(ptr %p) !dbg !1 {
  %fld = getelementptr inbounds %struct.S, ptr %p, i64 0, i32 2
  ret ptr %fld
}

!1 = distinct !DISubprogram(name: "f", type: !2)
!2 = !DISubroutineType(types: !3)
!3 = !{null}
!4 = !DICompositeType(tag: DW_TAG_structure_type, name: "S", elements: !5)
!5 = !{!6, !7, !8}
!6 = !DIDerivedType(tag: DW_TAG_member, name: "a", baseType: !10)
!7 = !DIDerivedType(tag: DW_TAG_member, name: "b", baseType: !11)
!8 = !DIDerivedType(tag: DW_TAG_member, name: "s", baseType: !9)
!9 = !DIDerivedType(tag: DW_TAG_pointer_type, baseType: !12)
!10 = !DIBasicType(name: "int", size: 32)
!11 = !DIBasicType(name: "long", size: 64)
!12 = !DIBasicType(name: "char", size: 8)
`)
	_, tg := solve(t, m, SourceComb)

	f, fld := local(t, m, "f", "fld")
	wantTypes(t, tg.Get(f, fld), "i8**")
	// The opaque base also acquires the reference of the source type.
	_, p := local(t, m, "f", "p")
	wantTypes(t, tg.Get(f, p), "%struct.S*")
}

// Call arguments flow into callee parameters; the callee's return set
// flows into the call result.
func TestSolve_CallFlow(t *testing.T) {
	m := mustParse(t, `
define void @callee(ptr %x) {
  ret void
}

define void @caller() {
  %buf = alloca i64, align 8
  call void @callee(ptr %buf)
  ret void
}
`)
	_, tg := solve(t, m, SourceMig)

	callee, x := local(t, m, "callee", "x")
	wantTypes(t, tg.Get(callee, x), "i64*")
}

func TestSolve_CallResultFromReturnSet(t *testing.T) {
	m := mustParse(t, `
declare i32 @get()

define void @f() {
  %v = call i32 @get()
  ret void
}
`)
	_, tg := solve(t, m, SourceMig)
	f, v := local(t, m, "f", "v")
	wantTypes(t, tg.Get(f, v), "i32")
}

// A cast types its result with the destination type.
func TestSolve_Cast(t *testing.T) {
	m := mustParse(t, `
define i64 @f(ptr %p) {
  %n = ptrtoint ptr %p to i64
  ret i64 %n
}
`)
	_, tg := solve(t, m, SourceMig)
	f, n := local(t, m, "f", "n")
	wantTypes(t, tg.Get(f, n), "i64")
}

// Select flows symmetrically between its arms.
func TestSolve_SelectSymmetric(t *testing.T) {
	m := mustParse(t, `
define void @f(i1 %c, ptr %other) {
  %a = alloca i32, align 4
  %b = load ptr, ptr %other, align 8
  %r = select i1 %c, ptr %a, ptr %b
  ret void
}
`)
	_, tg := solve(t, m, SourceMig)
	f, b := local(t, m, "f", "b")
	wantTypes(t, tg.Get(f, b), "i32*")
	_, r := local(t, m, "f", "r")
	wantTypes(t, tg.Get(f, r), "i32*")
}

// Store keying: the type recorded for a store lands on its value operand.
func TestSolve_StoreKeyedOnValueOperand(t *testing.T) {
	m := mustParse(t, `
define void @f(i32 %v, ptr %p) {
  store i32 %v, ptr %p, align 4
  ret void
}
`)
	_, tg := solve(t, m, SourceMig)
	f, v := local(t, m, "f", "v")
	wantTypes(t, tg.Get(f, v), "i32")
	_, p := local(t, m, "f", "p")
	wantTypes(t, tg.Get(f, p), "i32*")
}

// TBAA attaches the access type to the pointer operand.
func TestSolve_TBAASeeding(t *testing.T) {
	m := mustParse(t, `
define void @f(ptr %p, i32 %v) {
  store i32 %v, ptr %p, align 4, !tbaa !0
  ret void
}

!0 = !{!1, !1, i64 0}
!1 = !{!"int", !2, i64 0}
!2 = !{!"omnipotent char", !3, i64 0}
!3 = !{!"Simple C/C++ TBAA"}
`)
	a := NewAnalyzer(m, SourceTBAA, DefaultConfig(), nil)
	tg, err := a.Init()
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	f, p := local(t, m, "f", "p")
	wantTypes(t, tg.Get(f, p), "i32")
}

// Omnipotent char accesses carry no information and are discarded.
func TestSolve_TBAADiscardsOmnipotentChar(t *testing.T) {
	m := mustParse(t, `
define void @f(ptr %p, i8 %v) {
  store i8 %v, ptr %p, align 1, !tbaa !0
  ret void
}

!0 = !{!1, !1, i64 0}
!1 = !{!"omnipotent char", !2, i64 0}
!2 = !{!"Simple C/C++ TBAA"}
`)
	a := NewAnalyzer(m, SourceTBAA, DefaultConfig(), nil)
	tg, err := a.Init()
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	f, p := local(t, m, "f", "p")
	if tg.Get(f, p) != nil {
		t.Fatalf("omnipotent char must be discarded: %v", tg.Get(f, p).Types())
	}
}

// Struct TBAA on a gep pointer attributes to the underlying base operand.
func TestSolve_TBAAStructAttribution(t *testing.T) {
	m := mustParse(t, `
%struct.S = type { i32, i32 }

define void @f(ptr %p, i32 %v) {
  %fld = getelementptr inbounds %struct.S, ptr %p, i64 0, i32 1
  store i32 %v, ptr %fld, align 4, !tbaa !0
  ret void
}

!0 = !{!1, !2, i64 4}
!1 = !{!"S", !2, i64 0, !2, i64 4}
!2 = !{!"int", !3, i64 0}
!3 = !{!"omnipotent char", !4, i64 0}
!4 = !{!"Simple C/C++ TBAA"}
`)
	a := NewAnalyzer(m, SourceTBAA, DefaultConfig(), nil)
	tg, err := a.Init()
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	f, p := local(t, m, "f", "p")
	wantTypes(t, tg.Get(f, p), "%struct.S")
}

// Debug info outranks the IR seed but does not erase it.
func TestSolve_SeederPriority(t *testing.T) {
	m := mustParse(t, `
define void @f() !dbg !1 {
  %a = alloca i32, align 4
  call void @llvm.dbg.declare(metadata ptr %a, metadata !5, metadata !DIExpression())
  ret void
}

declare void @llvm.dbg.declare(metadata, metadata, metadata)

!1 = distinct !DISubprogram(name: "f", type: !2)
!2 = !DISubroutineType(types: !3)
!3 = !{null}
!4 = !DIBasicType(name: "long", size: 64)
!5 = !DILocalVariable(name: "n", type: !4)
`)
	_, tg := solve(t, m, SourceComb)
	f, a := local(t, m, "f", "a")
	// DI spells the slot i64*; the IR spelling i32* is layered after it.
	wantTypes(t, tg.Get(f, a), "i64*")
}

// The DI seeder aborts without debug info.
func TestSolve_MissingDebugInfo(t *testing.T) {
	m := mustParse(t, `@g = global i32 0`)
	for _, src := range []Source{SourceDI, SourceComb} {
		a := NewAnalyzer(m, src, DefaultConfig(), nil)
		if _, err := a.Init(); !errors.Is(err, ErrNoDebugInfo) {
			t.Fatalf("source %s: want ErrNoDebugInfo, got %v", src, err)
		}
	}
}

// Function prototypes come from the subprogram when present.
func TestSolve_SubprogramPrototype(t *testing.T) {
	m := mustParse(t, `
define i32 @f(i32 %x) !dbg !1 {
  ret i32 %x
}

!1 = distinct !DISubprogram(name: "f", type: !2)
!2 = !DISubroutineType(types: !3)
!3 = !{!4, !5}
!4 = !DIBasicType(name: "long", size: 64)
!5 = !DIBasicType(name: "char", size: 8)
`)
	_, tg := solve(t, m, SourceComb)

	f := m.FuncByName("f")
	ret := tg.Get(nil, f)
	wantTypes(t, ret, "i64")
	if !ret.IsFunc {
		t.Fatalf("return entry must carry the function flag")
	}
	_, x := local(t, m, "f", "x")
	wantTypes(t, tg.Get(f, x), "i8")
}

// A non-constant index into a struct base is malformed IR.
func TestSolve_IllFormedGEP(t *testing.T) {
	m := mustParse(t, `
%struct.S = type { i32, i32 }

define void @f(ptr %p, i64 %i) {
  %fld = getelementptr %struct.S, ptr %p, i64 0, i64 %i
  ret void
}
`)
	a := NewAnalyzer(m, SourceMig, DefaultConfig(), nil)
	if _, err := a.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := a.Solve(); err == nil {
		t.Fatalf("want structural error for non-constant struct index")
	}
}

// Non-copy intrinsics are skipped without error.
func TestSolve_IntrinsicsSkipped(t *testing.T) {
	m := mustParse(t, `
declare void @llvm.lifetime.start.p0(i64, ptr)

define void @f() {
  %a = alloca i32, align 4
  call void @llvm.lifetime.start.p0(i64 4, ptr %a)
  ret void
}
`)
	_, tg := solve(t, m, SourceMig)
	f, a := local(t, m, "f", "a")
	wantExactly(t, tg.Get(f, a), "i32*")
}

// After solving, one extra sweep changes nothing.
func TestSolve_FixedPointStable(t *testing.T) {
	m := mustParse(t, `
%struct.T = type { i64 }

define void @f(ptr %q, i1 %c) {
entry:
  %a = alloca %struct.T, align 8
  %l = load ptr, ptr %q, align 8
  %r = select i1 %c, ptr %a, ptr %l
  %eq = icmp eq ptr %r, %q
  ret void
}
`)
	a, tg := solve(t, m, SourceMig)

	before := tg.Entries(m)
	cfg := DefaultConfig()
	cfg.MaxIters = 1
	a.cfg = cfg
	if err := a.SolveBounded(); err != nil {
		t.Fatalf("extra sweep failed: %v", err)
	}
	after := tg.Entries(m)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("extra sweep changed the graph:\nbefore %v\nafter  %v", before, after)
	}
}

// The bounded driver reaches the same result on these modules.
func TestSolve_BoundedMatchesWorklist(t *testing.T) {
	src := `
define i32 @f(ptr %q) {
  %l = load i32, ptr %q, align 4
  ret i32 %l
}
`
	m1 := mustParse(t, src)
	_, tgW := solve(t, m1, SourceMig)

	m2 := mustParse(t, src)
	a := NewAnalyzer(m2, SourceMig, DefaultConfig(), nil)
	if _, err := a.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := a.SolveBounded(); err != nil {
		t.Fatalf("bounded solve failed: %v", err)
	}
	tgB := a.Graph()

	f1, q1 := local(t, m1, "f", "q")
	f2, q2 := local(t, m2, "f", "q")
	if !reflect.DeepEqual(tgW.Get(f1, q1).Types(), tgB.Get(f2, q2).Types()) {
		t.Fatalf("drivers disagree: %v vs %v",
			tgW.Get(f1, q1).Types(), tgB.Get(f2, q2).Types())
	}
}

// Coverage counts globals, arguments and non-store instructions.
func TestCoverageCounts(t *testing.T) {
	m := mustParse(t, `
@g = global i32 0

define void @f(ptr %p) {
  %l = load i32, ptr %p, align 4
  store i32 %l, ptr %p, align 4
  ret void
}
`)
	_, tg := solve(t, m, SourceMig)
	cov := tg.Coverage(m)
	// g + %p + %l + ret; the store is skipped.
	if cov.Total != 4 {
		t.Fatalf("total = %d, want 4", cov.Total)
	}
	if cov.Covered < 3 {
		t.Fatalf("covered = %d, want at least 3", cov.Covered)
	}
}
