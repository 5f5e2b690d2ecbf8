package inject_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/20000419/LISA-IR/internal/ast"
	"github.com/20000419/LISA-IR/internal/catalog"
	"github.com/20000419/LISA-IR/internal/inject"
	"github.com/20000419/LISA-IR/internal/ir"
	"github.com/20000419/LISA-IR/internal/lifter"
)

func id(name string) *ast.Ident { return &ast.Ident{Name: name} }

func intLit(v string) *ast.BasicLit { return &ast.BasicLit{Kind: ast.LitInt, Value: v} }

func nullLit() *ast.BasicLit { return &ast.BasicLit{Kind: ast.LitNull, Value: "NULL"} }

func call(fn string, args ...ast.Expr) *ast.CallExpr { return &ast.CallExpr{Fun: fn, Args: args} }

func builtins(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat := catalog.New()
	require.NoError(t, catalog.LoadBuiltins(cat))
	cat.Freeze()
	return cat
}

func annotate(t *testing.T, fd *ast.FuncDecl, cat *catalog.Catalog) *ir.FuncDef {
	t.Helper()
	fn, serr := lifter.LowerFunction(fd)
	require.Nil(t, serr)
	inject.AnnotateFunction(fn, cat)
	return fn
}

func semanticOps(b *ir.BasicBlock) []*ir.SemanticOp {
	var out []*ir.SemanticOp
	for _, op := range b.Ops {
		if s, ok := op.(*ir.SemanticOp); ok {
			out = append(out, s)
		}
	}
	return out
}

func TestAnnotateNewRef(t *testing.T) {
	fn := annotate(t, &ast.FuncDecl{
		Name: "f",
		Body: []ast.Stmt{
			&ast.DeclStmt{Name: "obj", Type: "PyObject *", Init: call("PyDict_New")},
			&ast.ReturnStmt{Value: id("obj")},
		},
	}, builtins(t))

	sems := semanticOps(fn.Blocks["entry"])
	require.Len(t, sems, 1)
	assert.Equal(t, ir.SemNewRef, sems[0].Kind)
	assert.Equal(t, "obj", sems[0].Subject)
	assert.Equal(t, "PyDict_New", sems[0].Call)
	assert.Empty(t, sems[0].Caveat)
}

func TestAnnotateDiscardedResult(t *testing.T) {
	fn := annotate(t, &ast.FuncDecl{
		Name: "f",
		Body: []ast.Stmt{
			&ast.ExprStmt{X: call("PyDict_New")},
			&ast.ReturnStmt{Value: nullLit()},
		},
	}, builtins(t))

	sems := semanticOps(fn.Blocks["entry"])
	require.Len(t, sems, 1)
	assert.Equal(t, ir.SemNewRef, sems[0].Kind)
	assert.Empty(t, sems[0].Subject)
	assert.Equal(t, "call result discarded", sems[0].Caveat)
}

func TestAnnotateStealAndDecref(t *testing.T) {
	fn := annotate(t, &ast.FuncDecl{
		Name:   "f",
		Params: []ast.Param{{Name: "list", Type: "PyObject *"}, {Name: "item", Type: "PyObject *"}},
		Body: []ast.Stmt{
			&ast.ExprStmt{X: call("PyList_SetItem", id("list"), intLit("0"), id("item"))},
			&ast.ExprStmt{X: call("Py_DECREF", id("item"))},
			&ast.ReturnStmt{Value: intLit("0")},
		},
	}, builtins(t))

	sems := semanticOps(fn.Blocks["entry"])
	require.Len(t, sems, 2)
	assert.Equal(t, ir.SemStealRef, sems[0].Kind)
	assert.Equal(t, "item", sems[0].Subject)
	assert.False(t, sems[0].Conditional)
	assert.Equal(t, ir.SemDecrRef, sems[1].Kind)
	assert.Equal(t, "item", sems[1].Subject)
}

func TestAnnotateComplexArgumentGetsCaveat(t *testing.T) {
	fn := annotate(t, &ast.FuncDecl{
		Name:   "f",
		Params: []ast.Param{{Name: "obj", Type: "PyObject *"}},
		Body: []ast.Stmt{
			// 实参是字段访问而不是简单变量
			&ast.ExprStmt{X: call("Py_DECREF", &ast.SelectorExpr{X: id("obj"), Sel: "field", Arrow: true})},
			&ast.ReturnStmt{Value: intLit("0")},
		},
	}, builtins(t))

	sems := semanticOps(fn.Blocks["entry"])
	require.Len(t, sems, 1)
	assert.Equal(t, ir.SemDecrRef, sems[0].Kind)
	assert.Empty(t, sems[0].Subject)
	assert.Equal(t, "argument is not a simple variable", sems[0].Caveat)
}

func TestAnnotateUnknownCallIsSkipped(t *testing.T) {
	fn := annotate(t, &ast.FuncDecl{
		Name: "f",
		Body: []ast.Stmt{
			&ast.DeclStmt{Name: "x", Type: "int", Init: call("local_helper")},
			&ast.ReturnStmt{Value: id("x")},
		},
	}, builtins(t))

	assert.Empty(t, semanticOps(fn.Blocks["entry"]))
}

func TestErrorCheckLabelsEdges(t *testing.T) {
	fn := annotate(t, &ast.FuncDecl{
		Name: "f",
		Body: []ast.Stmt{
			&ast.DeclStmt{Name: "obj", Type: "PyObject *", Init: call("PyList_New", intLit("0"))},
			&ast.IfStmt{
				Cond: &ast.UnaryExpr{Op: "!", X: id("obj")},
				Then: []ast.Stmt{&ast.ReturnStmt{Value: nullLit()}},
			},
			&ast.ReturnStmt{Value: id("obj")},
		},
	}, builtins(t))

	sems := semanticOps(fn.Blocks["entry"])
	require.Len(t, sems, 2)
	assert.Equal(t, ir.SemNewRef, sems[0].Kind)
	assert.Equal(t, ir.SemErrorCheck, sems[1].Kind)
	assert.Equal(t, "obj", sems[1].Subject)

	// if (!obj) 的真分支是错误路径
	errLabel, ok := fn.EdgeLabelOf("entry", "then_1")
	require.True(t, ok)
	assert.Equal(t, ir.EdgeError, errLabel.Kind)
	assert.Equal(t, "obj", errLabel.Subject)
	assert.Equal(t, "PyList_New", errLabel.Call)

	okLabel, ok := fn.EdgeLabelOf("entry", "merge_2")
	require.True(t, ok)
	assert.Equal(t, ir.EdgeSuccess, okLabel.Kind)
}

func TestErrorCheckSentinelForms(t *testing.T) {
	// 各种哨兵写法都应识别出同一条错误边
	tests := []struct {
		name        string
		callee      string
		cond        ast.Expr
		errorOnTrue bool
	}{
		{"truthiness", "PyList_New", id("obj"), false},
		{"negation", "PyList_New", &ast.UnaryExpr{Op: "!", X: id("obj")}, true},
		{"eq null", "PyList_New", &ast.BinaryExpr{Op: "==", X: id("obj"), Y: nullLit()}, true},
		{"ne null", "PyList_New", &ast.BinaryExpr{Op: "!=", X: id("obj"), Y: nullLit()}, false},
		{"null eq swapped", "PyList_New", &ast.BinaryExpr{Op: "==", X: nullLit(), Y: id("obj")}, true},
		{"lt zero", "PyLong_AsLong", &ast.BinaryExpr{Op: "<", X: id("obj"), Y: intLit("0")}, true},
		{"ge zero", "PyLong_AsLong", &ast.BinaryExpr{Op: ">=", X: id("obj"), Y: intLit("0")}, false},
		{"zero gt swapped", "PyLong_AsLong", &ast.BinaryExpr{Op: ">", X: intLit("0"), Y: id("obj")}, true},
		{"eq minus one", "PyLong_AsLong", &ast.BinaryExpr{Op: "==", X: id("obj"), Y: &ast.UnaryExpr{Op: "-", X: intLit("1")}}, true},
	}

	cat := builtins(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := annotate(t, &ast.FuncDecl{
				Name:   "f",
				Params: []ast.Param{{Name: "seq", Type: "PyObject *"}},
				Body: []ast.Stmt{
					&ast.DeclStmt{Name: "obj", Type: "PyObject *", Init: call(tt.callee, id("seq"))},
					&ast.IfStmt{
						Cond: tt.cond,
						Then: []ast.Stmt{&ast.ReturnStmt{Value: nullLit()}},
					},
					&ast.ReturnStmt{Value: nullLit()},
				},
			}, cat)

			errTarget := "then_1"
			if !tt.errorOnTrue {
				errTarget = "merge_2"
			}
			label, ok := fn.EdgeLabelOf("entry", errTarget)
			require.True(t, ok)
			assert.Equal(t, ir.EdgeError, label.Kind)
			assert.Equal(t, "obj", label.Subject)
		})
	}
}

func TestConditionalStealOnErrorEdge(t *testing.T) {
	cat := builtins(t)
	fn := annotate(t, &ast.FuncDecl{
		Name:   "f",
		Params: []ast.Param{{Name: "mod", Type: "PyObject *"}, {Name: "obj", Type: "PyObject *"}},
		Body: []ast.Stmt{
			&ast.DeclStmt{
				Name: "rc", Type: "int",
				Init: call("PyModule_AddObject", id("mod"), &ast.BasicLit{Kind: ast.LitString, Value: "\"name\""}, id("obj")),
			},
			&ast.IfStmt{
				Cond: &ast.BinaryExpr{Op: "<", X: id("rc"), Y: intLit("0")},
				Then: []ast.Stmt{&ast.ReturnStmt{Value: &ast.UnaryExpr{Op: "-", X: intLit("1")}}},
			},
			&ast.ReturnStmt{Value: intLit("0")},
		},
	}, cat)

	sems := semanticOps(fn.Blocks["entry"])
	require.Len(t, sems, 2)
	assert.Equal(t, ir.SemStealRef, sems[0].Kind)
	assert.True(t, sems[0].Conditional)

	label, ok := fn.EdgeLabelOf("entry", "then_1")
	require.True(t, ok)
	assert.Equal(t, ir.EdgeError, label.Kind)
	assert.Equal(t, []string{"obj"}, label.CondSteal)
}

func TestAnnotateIsIdempotent(t *testing.T) {
	fd := &ast.FuncDecl{
		Name: "f",
		Body: []ast.Stmt{
			&ast.DeclStmt{Name: "obj", Type: "PyObject *", Init: call("PyList_New", intLit("0"))},
			&ast.IfStmt{
				Cond: &ast.UnaryExpr{Op: "!", X: id("obj")},
				Then: []ast.Stmt{&ast.ReturnStmt{Value: nullLit()}},
			},
			&ast.ReturnStmt{Value: id("obj")},
		},
	}
	fn, serr := lifter.LowerFunction(fd)
	require.Nil(t, serr)

	cat := builtins(t)
	inject.AnnotateFunction(fn, cat)
	opsAfterFirst := len(fn.Blocks["entry"].Ops)
	labelsAfterFirst := len(fn.EdgeLabels)

	inject.AnnotateFunction(fn, cat)
	assert.Equal(t, opsAfterFirst, len(fn.Blocks["entry"].Ops))
	assert.Equal(t, labelsAfterFirst, len(fn.EdgeLabels))
}
