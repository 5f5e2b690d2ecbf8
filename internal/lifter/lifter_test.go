package lifter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/20000419/LISA-IR/internal/ast"
	"github.com/20000419/LISA-IR/internal/ir"
	"github.com/20000419/LISA-IR/internal/lifter"
)

func id(name string) *ast.Ident { return &ast.Ident{Name: name} }

func intLit(v string) *ast.BasicLit { return &ast.BasicLit{Kind: ast.LitInt, Value: v} }

func call(fn string, args ...ast.Expr) *ast.CallExpr { return &ast.CallExpr{Fun: fn, Args: args} }

func ret(e ast.Expr) *ast.ReturnStmt { return &ast.ReturnStmt{Value: e} }

func lower(t *testing.T, fd *ast.FuncDecl) *ir.FuncDef {
	t.Helper()
	fn, serr := lifter.LowerFunction(fd)
	require.Nil(t, serr)
	require.NoError(t, fn.Validate())
	return fn
}

func TestLowerStraightLine(t *testing.T) {
	fn := lower(t, &ast.FuncDecl{
		Name:   "f",
		Params: []ast.Param{{Name: "x", Type: "int"}},
		Body: []ast.Stmt{
			&ast.DeclStmt{Name: "y", Type: "int", Init: id("x")},
			ret(id("y")),
		},
	})

	assert.Equal(t, "entry", fn.Entry)
	require.Equal(t, []string{"entry"}, fn.Order)
	assert.Equal(t, "int", fn.Locals["y"])

	entry := fn.Blocks["entry"]
	require.Len(t, entry.Ops, 1)
	asg, ok := entry.Ops[0].(*ir.Assign)
	require.True(t, ok)
	assert.Equal(t, "y", asg.Target)

	retTerm, ok := entry.Term.(*ir.Return)
	require.True(t, ok)
	v, ok := retTerm.Value.(*ir.Variable)
	require.True(t, ok)
	assert.Equal(t, "y", v.Name)
}

func TestImplicitReturn(t *testing.T) {
	fn := lower(t, &ast.FuncDecl{
		Name: "f",
		Body: []ast.Stmt{
			&ast.ExprStmt{X: call("helper")},
		},
	})

	retTerm, ok := fn.Blocks["entry"].Term.(*ir.Return)
	require.True(t, ok)
	assert.Nil(t, retTerm.Value)
}

func TestLowerIfElse(t *testing.T) {
	fn := lower(t, &ast.FuncDecl{
		Name:   "f",
		Params: []ast.Param{{Name: "flag", Type: "int"}},
		Body: []ast.Stmt{
			&ast.IfStmt{
				Cond: id("flag"),
				Then: []ast.Stmt{&ast.AssignStmt{Target: id("x"), Value: intLit("1")}},
				Else: []ast.Stmt{&ast.AssignStmt{Target: id("x"), Value: intLit("2")}},
			},
			ret(id("x")),
		},
	})

	require.Equal(t, []string{"entry", "then_1", "else_2", "merge_3"}, fn.Order)

	br, ok := fn.Blocks["entry"].Term.(*ir.BranchIf)
	require.True(t, ok)
	assert.Equal(t, "then_1", br.True)
	assert.Equal(t, "else_2", br.False)

	// 两个分支都汇到 merge，merge 持有后续的 return
	assert.Equal(t, []string{"merge_3"}, fn.Successors("then_1"))
	assert.Equal(t, []string{"merge_3"}, fn.Successors("else_2"))
	assert.IsType(t, &ir.Return{}, fn.Blocks["merge_3"].Term)
}

func TestLowerIfWithoutElse(t *testing.T) {
	fn := lower(t, &ast.FuncDecl{
		Name:   "f",
		Params: []ast.Param{{Name: "flag", Type: "int"}},
		Body: []ast.Stmt{
			&ast.IfStmt{
				Cond: id("flag"),
				Then: []ast.Stmt{ret(intLit("1"))},
			},
			ret(intLit("0")),
		},
	})

	require.Equal(t, []string{"entry", "then_1", "merge_2"}, fn.Order)

	br := fn.Blocks["entry"].Term.(*ir.BranchIf)
	assert.Equal(t, "then_1", br.True)
	assert.Equal(t, "merge_2", br.False)

	// then 分支直接 return，不汇入 merge
	assert.Nil(t, fn.Successors("then_1"))
	assert.IsType(t, &ir.Return{}, fn.Blocks["merge_2"].Term)
}

func TestLowerWhile(t *testing.T) {
	fn := lower(t, &ast.FuncDecl{
		Name:   "f",
		Params: []ast.Param{{Name: "n", Type: "int"}},
		Body: []ast.Stmt{
			&ast.WhileStmt{
				Cond: &ast.BinaryExpr{Op: "<", X: id("i"), Y: id("n")},
				Body: []ast.Stmt{
					&ast.AssignStmt{Target: id("i"), Value: &ast.BinaryExpr{Op: "+", X: id("i"), Y: intLit("1")}},
				},
			},
			ret(intLit("0")),
		},
	})

	require.Equal(t, []string{"entry", "loop_head_1", "loop_body_2", "loop_exit_3"}, fn.Order)

	assert.Equal(t, []string{"loop_head_1"}, fn.Successors("entry"))
	assert.Equal(t, []string{"loop_body_2", "loop_exit_3"}, fn.Successors("loop_head_1"))
	// 回边
	assert.Equal(t, []string{"loop_head_1"}, fn.Successors("loop_body_2"))
}

func TestLowerForWithStep(t *testing.T) {
	fn := lower(t, &ast.FuncDecl{
		Name:   "f",
		Params: []ast.Param{{Name: "n", Type: "int"}},
		Body: []ast.Stmt{
			&ast.ForStmt{
				Init: &ast.AssignStmt{Target: id("i"), Value: intLit("0")},
				Cond: &ast.BinaryExpr{Op: "<", X: id("i"), Y: id("n")},
				Post: &ast.AssignStmt{Target: id("i"), Value: &ast.BinaryExpr{Op: "+", X: id("i"), Y: intLit("1")}},
				Body: []ast.Stmt{
					&ast.ContinueStmt{},
				},
			},
			ret(intLit("0")),
		},
	})

	// continue 跳到步进块，步进块回到循环头
	assert.Equal(t, []string{"loop_step_4"}, fn.Successors("loop_body_2"))
	assert.Equal(t, []string{"loop_head_1"}, fn.Successors("loop_step_4"))
}

func TestLowerDoWhile(t *testing.T) {
	fn := lower(t, &ast.FuncDecl{
		Name: "f",
		Body: []ast.Stmt{
			&ast.DoWhileStmt{
				Body: []ast.Stmt{&ast.ExprStmt{X: call("work")}},
				Cond: id("again"),
			},
			ret(intLit("0")),
		},
	})

	// 循环体先执行，条件块在后
	assert.Equal(t, []string{"loop_body_1"}, fn.Successors("entry"))
	assert.Equal(t, []string{"loop_cond_2"}, fn.Successors("loop_body_1"))
	assert.Equal(t, []string{"loop_body_1", "loop_exit_3"}, fn.Successors("loop_cond_2"))
}

func TestLowerSwitchFallthrough(t *testing.T) {
	fn := lower(t, &ast.FuncDecl{
		Name:   "f",
		Params: []ast.Param{{Name: "x", Type: "int"}},
		Body: []ast.Stmt{
			&ast.SwitchStmt{
				Tag: id("x"),
				Cases: []ast.SwitchCase{
					{Values: []ast.Expr{intLit("1")}, Body: []ast.Stmt{
						&ast.AssignStmt{Target: id("y"), Value: intLit("10")},
					}},
					{Values: []ast.Expr{intLit("2")}, Body: []ast.Stmt{
						&ast.AssignStmt{Target: id("y"), Value: intLit("20")},
						&ast.BreakStmt{},
					}},
					{Values: nil, Body: []ast.Stmt{ret(intLit("-1"))}},
				},
			},
			ret(id("y")),
		},
	})

	sw, ok := fn.Blocks["entry"].Term.(*ir.Switch)
	require.True(t, ok)
	require.Len(t, sw.Cases, 2)
	assert.Equal(t, "1", sw.Cases[0].Value)
	assert.Equal(t, "2", sw.Cases[1].Value)
	assert.Equal(t, "switch_default_4", sw.Default)

	// 没有 break 的 case 落入下一个 case 块
	assert.Equal(t, []string{sw.Cases[1].Target}, fn.Successors(sw.Cases[0].Target))
	// break 跳到 switch 出口
	assert.Equal(t, []string{"switch_exit_1"}, fn.Successors(sw.Cases[1].Target))
	// default 直接 return
	assert.Nil(t, fn.Successors(sw.Default))
}

func TestDeadCodeAfterReturn(t *testing.T) {
	fn := lower(t, &ast.FuncDecl{
		Name: "f",
		Body: []ast.Stmt{
			ret(intLit("0")),
			&ast.ExprStmt{X: call("never_runs")},
		},
	})

	unreachable := fn.UnreachableBlocks()
	require.Len(t, unreachable, 1)
	assert.Equal(t, "dead_1", unreachable[0])

	// 函数体以死代码收尾时，dead 块封口为 Unreachable 而不是隐式 return
	assert.IsType(t, &ir.Unreachable{}, fn.Blocks["dead_1"].Term)
	assert.NotContains(t, fn.TerminalBlocks(), "dead_1")
	assert.IsType(t, &ir.Return{}, fn.Blocks["entry"].Term)
}

func TestNestedCallMaterialization(t *testing.T) {
	fn := lower(t, &ast.FuncDecl{
		Name: "f",
		Body: []ast.Stmt{
			ret(call("PyLong_FromLong", intLit("1"))),
		},
	})

	entry := fn.Blocks["entry"]
	require.Len(t, entry.Ops, 1)
	asg := entry.Ops[0].(*ir.Assign)
	assert.Equal(t, "_t1", asg.Target)
	assert.IsType(t, &ir.Call{}, asg.Value)

	retTerm := entry.Term.(*ir.Return)
	v, ok := retTerm.Value.(*ir.Variable)
	require.True(t, ok)
	assert.Equal(t, "_t1", v.Name)
}

func TestDirectCallAssignStaysInPlace(t *testing.T) {
	fn := lower(t, &ast.FuncDecl{
		Name: "f",
		Body: []ast.Stmt{
			&ast.DeclStmt{Name: "obj", Type: "PyObject *", Init: call("PyDict_New")},
			ret(id("obj")),
		},
	})

	entry := fn.Blocks["entry"]
	require.Len(t, entry.Ops, 1)
	asg := entry.Ops[0].(*ir.Assign)
	assert.Equal(t, "obj", asg.Target)
	c, ok := asg.Value.(*ir.Call)
	require.True(t, ok)
	assert.Equal(t, "PyDict_New", c.Callee)
}

func TestStoreThroughPointer(t *testing.T) {
	fn := lower(t, &ast.FuncDecl{
		Name:   "f",
		Params: []ast.Param{{Name: "p", Type: "int *"}},
		Body: []ast.Stmt{
			&ast.AssignStmt{Target: &ast.DerefExpr{X: id("p")}, Value: intLit("1")},
			ret(intLit("0")),
		},
	})

	entry := fn.Blocks["entry"]
	require.Len(t, entry.Ops, 1)
	st, ok := entry.Ops[0].(*ir.Store)
	require.True(t, ok)
	assert.IsType(t, &ir.Load{}, st.Address)
}

func TestStructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		body []ast.Stmt
	}{
		{"unrecognized statement", []ast.Stmt{&ast.BadStmt{Reason: "inline asm"}}},
		{"unrecognized expression", []ast.Stmt{ret(&ast.BadExpr{Reason: "comma expression"})}},
		{"break outside loop", []ast.Stmt{&ast.BreakStmt{}}},
		{"continue outside loop", []ast.Stmt{&ast.ContinueStmt{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, serr := lifter.LowerFunction(&ast.FuncDecl{Name: "broken", Body: tt.body})
			assert.Nil(t, fn)
			require.NotNil(t, serr)
			assert.Equal(t, "broken", serr.Func)
			assert.NotEmpty(t, serr.Error())
		})
	}
}

func TestLowerModuleSkipsFailedFunctions(t *testing.T) {
	file := &ast.File{
		Name: "unit.c",
		Funcs: []*ast.FuncDecl{
			{Name: "good", Body: []ast.Stmt{ret(intLit("0"))}},
			{Name: "bad", Body: []ast.Stmt{&ast.BadStmt{Reason: "goto"}}},
			{Name: "also_good", Body: []ast.Stmt{ret(intLit("1"))}},
		},
	}

	mod, errs := lifter.LowerModule(file)
	require.Len(t, errs, 1)
	assert.Equal(t, "bad", errs[0].Func)
	assert.Equal(t, []string{"good", "also_good"}, mod.Order)
}
