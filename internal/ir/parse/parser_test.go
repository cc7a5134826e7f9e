package parse

import (
	"testing"

	"typelift/internal/di"
	"typelift/internal/ir"
)

func mustParse(t *testing.T, src string) *ir.Module {
	t.Helper()
	m, err := Module("test.ll", src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return m
}

func TestParse_GlobalsAndTypes(t *testing.T) {
	m := mustParse(t, `
%struct.pair = type { i32, ptr }

@counter = global i32 0, align 4
@name = constant [4 x i8] c"abc\00"
`)
	if len(m.Globals) != 2 {
		t.Fatalf("want 2 globals, got %d", len(m.Globals))
	}
	if m.Globals[0].Ident != "counter" || m.Globals[0].ValueTy != ir.I32 {
		t.Fatalf("bad first global: %+v", m.Globals[0])
	}
	if m.Globals[1].ValueTy.Kind != ir.TypeArray {
		t.Fatalf("bad array global type: %v", m.Globals[1].ValueTy)
	}

	defs := m.IdentifiedStructs()
	if len(defs) != 1 || defs[0].Name != "%struct.pair" {
		t.Fatalf("bad type defs: %v", defs)
	}
	if len(defs[0].Fields) != 2 || defs[0].Fields[1] != ir.Ptr {
		t.Fatalf("bad struct fields: %v", defs[0].Fields)
	}
}

func TestParse_FunctionBody(t *testing.T) {
	m := mustParse(t, `
define i32 @main(i32 %argc, ptr %argv) {
entry:
  %a = alloca i32, align 4
  store i32 %argc, ptr %a, align 4
  %v = load i32, ptr %a, align 4
  %sum = add nsw i32 %v, 1
  %cmp = icmp slt i32 %sum, 10
  br i1 %cmp, label %then, label %done
then:
  br label %done
done:
  %r = phi i32 [ %sum, %then ], [ 0, %entry ]
  ret i32 %r
}
`)
	f := m.FuncByName("main")
	if f == nil || len(f.Params) != 2 {
		t.Fatalf("function not parsed: %+v", f)
	}
	if len(f.Blocks) != 3 {
		t.Fatalf("want 3 blocks, got %d", len(f.Blocks))
	}

	entry := f.Blocks[0].Instrs
	if entry[0].Op != ir.OpAlloca || entry[0].Alloca.Allocated != ir.I32 {
		t.Fatalf("bad alloca: %+v", entry[0])
	}
	if entry[1].Op != ir.OpStore || entry[1].Store.Val != f.Params[0] {
		t.Fatalf("store value operand not resolved to param")
	}
	if entry[2].Op != ir.OpLoad || entry[2].Load.Ptr != entry[0] {
		t.Fatalf("load pointer operand not resolved to alloca")
	}
	if entry[3].Op != ir.OpBinary || entry[3].Binary.Mnemonic != "add" {
		t.Fatalf("bad binary: %+v", entry[3])
	}
	if entry[4].Op != ir.OpCmp || entry[4].Cmp.Pred != "slt" {
		t.Fatalf("bad cmp: %+v", entry[4])
	}

	done := f.Blocks[2].Instrs
	phi := done[0]
	if phi.Op != ir.OpPhi || len(phi.Phi.Incoming) != 2 {
		t.Fatalf("bad phi: %+v", phi)
	}
	// The phi references %sum, defined in an earlier block.
	if phi.Phi.Incoming[0] != entry[3] {
		t.Fatalf("phi incoming not resolved across blocks")
	}
}

func TestParse_TypedPointers(t *testing.T) {
	m := mustParse(t, `
%struct.S = type { i32 }

define void @f(%struct.S* %p) {
  %a = alloca %struct.S*, align 8
  store %struct.S* %p, %struct.S** %a, align 8
  ret void
}
`)
	f := m.FuncByName("f")
	alloca := f.Blocks[0].Instrs[0]
	if alloca.Alloca.Allocated.Kind != ir.TypePtrTo {
		t.Fatalf("typed pointer not parsed: %v", alloca.Alloca.Allocated)
	}
	if got := alloca.Alloca.Allocated.String(); got != "%struct.S*" {
		t.Fatalf("typed pointer prints %q", got)
	}
}

func TestParse_CallsAndGEP(t *testing.T) {
	m := mustParse(t, `
%struct.S = type { i32, ptr }

declare ptr @malloc(i64)

define ptr @mk() {
  %m = call ptr @malloc(i64 16)
  %f = getelementptr inbounds %struct.S, ptr %m, i64 0, i32 1
  ret ptr %m
}
`)
	f := m.FuncByName("mk")
	call := f.Blocks[0].Instrs[0]
	if call.Op != ir.OpCall || call.Call.Callee != m.FuncByName("malloc") {
		t.Fatalf("callee not resolved: %+v", call.Call)
	}
	if len(call.Call.Args) != 1 {
		t.Fatalf("bad call args: %+v", call.Call.Args)
	}

	gep := f.Blocks[0].Instrs[1]
	if gep.Op != ir.OpGEP || len(gep.GEP.Indices) != 2 {
		t.Fatalf("bad gep: %+v", gep.GEP)
	}
	if gep.GEP.Source != m.IdentifiedStructs()[0] {
		t.Fatalf("gep source type not interned with the definition")
	}
	if gep.GEP.Base != call {
		t.Fatalf("gep base not resolved to the call result")
	}
}

func TestParse_ForwardCallResolution(t *testing.T) {
	m := mustParse(t, `
define void @caller() {
  call void @callee()
  ret void
}

define void @callee() {
  ret void
}
`)
	call := m.FuncByName("caller").Blocks[0].Instrs[0]
	if call.Call.Callee != m.FuncByName("callee") {
		t.Fatalf("forward callee not resolved")
	}
}

func TestParse_TBAAMetadata(t *testing.T) {
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
	store := m.FuncByName("f").Blocks[0].Instrs[0]
	if store.TBAA == nil {
		t.Fatalf("tbaa attachment missing")
	}
	if got := ir.TBAABaseName(store.TBAA); got != "int" {
		t.Fatalf("TBAABaseName = %q, want int", got)
	}
}

func TestParse_DebugInfo(t *testing.T) {
	m := mustParse(t, `
@g = global i64 0, align 8, !dbg !0

define i32 @f(i32 %x) !dbg !6 {
  %a = alloca i32, align 4
  call void @llvm.dbg.declare(metadata ptr %a, metadata !11, metadata !DIExpression()), !dbg !12
  store i32 %x, ptr %a, align 4
  ret i32 %x
}

declare void @llvm.dbg.declare(metadata, metadata, metadata)

!0 = !DIGlobalVariableExpression(var: !1, expr: !DIExpression())
!1 = distinct !DIGlobalVariable(name: "g", type: !2)
!2 = !DIBasicType(name: "long", size: 64, encoding: DW_ATE_signed)
!6 = distinct !DISubprogram(name: "f", type: !7)
!7 = !DISubroutineType(types: !8)
!8 = !{!9, !9}
!9 = !DIBasicType(name: "int", size: 32, encoding: DW_ATE_signed)
!11 = !DILocalVariable(name: "a", type: !9)
!12 = !DILocation(line: 3, column: 7, scope: !6)
`)
	if !m.HasDebugInfo() {
		t.Fatalf("debug info not detected")
	}

	g := m.Globals[0]
	if len(g.DI) != 1 || g.DI[0].Name != "g" {
		t.Fatalf("global DI not attached: %+v", g.DI)
	}
	if got := di.TypeName(g.DI[0].Type, true); got != "long" {
		t.Fatalf("global DI type = %q", got)
	}

	f := m.FuncByName("f")
	if f.Subprogram == nil || len(f.Subprogram.Types) != 2 {
		t.Fatalf("subprogram not attached: %+v", f.Subprogram)
	}
	if got := di.TypeName(f.Subprogram.Types[0], true); got != "int" {
		t.Fatalf("return DI type = %q", got)
	}

	dbg := f.Blocks[0].Instrs[1]
	if !dbg.Call.IsDebug() {
		t.Fatalf("debug intrinsic not recognised")
	}
	if dbg.Call.DbgValue != f.Blocks[0].Instrs[0] {
		t.Fatalf("described value not resolved to the alloca")
	}
	if dbg.Call.DbgVar.Name != "a" {
		t.Fatalf("local variable = %+v", dbg.Call.DbgVar)
	}
}

func TestParse_StructDI(t *testing.T) {
	m := mustParse(t, `
%struct.S = type { i32, ptr }

define void @f(ptr %p) !dbg !1 {
  ret void
}

!1 = distinct !DISubprogram(name: "f", type: !2)
!2 = !DISubroutineType(types: !3)
!3 = !{null}
!4 = !DICompositeType(tag: DW_TAG_structure_type, name: "S", elements: !5)
!5 = !{!6, !7}
!6 = !DIDerivedType(tag: DW_TAG_member, name: "n", baseType: !8)
!7 = !DIDerivedType(tag: DW_TAG_member, name: "s", baseType: !9)
!8 = !DIBasicType(name: "int", size: 32)
!9 = !DIDerivedType(tag: DW_TAG_pointer_type, baseType: !10)
!10 = !DIBasicType(name: "char", size: 8)
`)
	var comp *di.Type
	for _, node := range m.DITypes {
		if node.Tag == di.TagStruct && node.Name == "S" {
			comp = node
		}
	}
	if comp == nil {
		t.Fatalf("composite not decoded")
	}
	if len(comp.Elements) != 2 {
		t.Fatalf("want 2 members, got %d", len(comp.Elements))
	}
	if got := di.TypeName(comp.Elements[1].Base, true); got != "char*" {
		t.Fatalf("member type = %q", got)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"bad type", `@g = global badtype 0`},
		{"unknown local", "define void @f() {\n  %x = add i32 %nope, 1\n  ret void\n}"},
		{"module-level junk", `( nonsense`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Module("bad.ll", tt.src); err == nil {
				t.Fatalf("want parse error")
			}
		})
	}
}
