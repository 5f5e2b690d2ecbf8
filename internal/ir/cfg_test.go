package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// diamond 构造 entry → then/else → merge 的菱形 CFG
func diamond(t *testing.T) *FuncDef {
	t.Helper()
	fn := NewFuncDef("diamond", "")
	fn.Entry = "entry"

	entry := &BasicBlock{Name: "entry"}
	require.NoError(t, entry.SetTerm(&BranchIf{
		Cond:  &Variable{Name: "flag"},
		True:  "then",
		False: "else",
	}))
	thenBlk := &BasicBlock{Name: "then", Term: &Jump{Target: "merge"}}
	elseBlk := &BasicBlock{Name: "else", Term: &Jump{Target: "merge"}}
	mergeBlk := &BasicBlock{Name: "merge", Term: &Return{}}

	fn.AddBlock(entry)
	fn.AddBlock(thenBlk)
	fn.AddBlock(elseBlk)
	fn.AddBlock(mergeBlk)
	return fn
}

func TestSetTermRejectsSecondTerminator(t *testing.T) {
	b := &BasicBlock{Name: "b"}
	require.NoError(t, b.SetTerm(&Return{}))
	assert.Error(t, b.SetTerm(&Jump{Target: "x"}))
}

func TestSuccessors(t *testing.T) {
	fn := diamond(t)

	assert.Equal(t, []string{"then", "else"}, fn.Successors("entry"))
	assert.Equal(t, []string{"merge"}, fn.Successors("then"))
	assert.Nil(t, fn.Successors("merge"))
	assert.Nil(t, fn.Successors("no_such_block"))
}

func TestSuccessorsDeduplicates(t *testing.T) {
	fn := NewFuncDef("f", "")
	fn.Entry = "entry"

	entry := &BasicBlock{Name: "entry", Term: &Switch{
		Selector: &Variable{Name: "x"},
		Cases: []SwitchCase{
			{Value: "1", Target: "a"},
			{Value: "2", Target: "a"},
			{Value: "3", Target: "b"},
		},
		Default: "b",
	}}
	fn.AddBlock(entry)
	fn.AddBlock(&BasicBlock{Name: "a", Term: &Return{}})
	fn.AddBlock(&BasicBlock{Name: "b", Term: &Return{}})

	assert.Equal(t, []string{"a", "b"}, fn.Successors("entry"))

	// 两个目标相同的条件分支只算一个后继
	same := &BasicBlock{Name: "same", Term: &BranchIf{
		Cond: &Variable{Name: "x"}, True: "a", False: "a",
	}}
	fn.AddBlock(same)
	assert.Equal(t, []string{"a"}, fn.Successors("same"))
}

func TestPredecessors(t *testing.T) {
	fn := diamond(t)
	preds := fn.Predecessors()

	assert.Empty(t, preds["entry"])
	assert.Equal(t, []string{"entry"}, preds["then"])
	assert.Equal(t, []string{"then", "else"}, preds["merge"])
}

func TestReversePostorder(t *testing.T) {
	fn := diamond(t)
	rpo := fn.ReversePostorder()

	require.Len(t, rpo, 4)
	assert.Equal(t, "entry", rpo[0])
	assert.Equal(t, "merge", rpo[3])
}

func TestTerminalBlocks(t *testing.T) {
	fn := diamond(t)
	assert.Equal(t, []string{"merge"}, fn.TerminalBlocks())
}

func TestUnreachableBlocks(t *testing.T) {
	fn := diamond(t)
	fn.AddBlock(&BasicBlock{Name: "orphan", Term: &Unreachable{}})

	assert.Equal(t, []string{"orphan"}, fn.UnreachableBlocks())
	assert.False(t, fn.Reachable()["orphan"])
	assert.True(t, fn.Reachable()["merge"])
}

func TestValidate(t *testing.T) {
	fn := diamond(t)
	assert.NoError(t, fn.Validate())

	noEntry := NewFuncDef("f", "")
	noEntry.Entry = "entry"
	assert.Error(t, noEntry.Validate())

	noTerm := NewFuncDef("f", "")
	noTerm.Entry = "entry"
	noTerm.AddBlock(&BasicBlock{Name: "entry"})
	assert.Error(t, noTerm.Validate())

	badTarget := NewFuncDef("f", "")
	badTarget.Entry = "entry"
	badTarget.AddBlock(&BasicBlock{Name: "entry", Term: &Jump{Target: "nowhere"}})
	assert.Error(t, badTarget.Validate())
}

func TestEdgeLabels(t *testing.T) {
	fn := diamond(t)

	_, ok := fn.EdgeLabelOf("entry", "then")
	assert.False(t, ok)

	fn.LabelEdge("entry", "then", EdgeLabel{Kind: EdgeError, Subject: "obj", Call: "PyList_New"})
	label, ok := fn.EdgeLabelOf("entry", "then")
	require.True(t, ok)
	assert.Equal(t, EdgeError, label.Kind)
	assert.Equal(t, "obj", label.Subject)
}

func TestModuleOrder(t *testing.T) {
	mod := NewModule("unit.c", "")
	mod.AddFunction(NewFuncDef("zeta", ""))
	mod.AddFunction(NewFuncDef("alpha", ""))

	// Order 保留注册顺序，排序视图按名字
	assert.Equal(t, []string{"zeta", "alpha"}, mod.Order)
	assert.Equal(t, []string{"alpha", "zeta"}, mod.SortedFunctionNames())

	// 重复注册替换函数体但不重复记录顺序
	mod.AddFunction(NewFuncDef("zeta", ""))
	assert.Equal(t, []string{"zeta", "alpha"}, mod.Order)
}

func TestExprSexp(t *testing.T) {
	e := &BinaryOp{
		Op:    "<",
		Left:  &Variable{Name: "i"},
		Right: &Constant{Type: "int", Value: "10"},
	}
	assert.Equal(t, `(binop "<" (var "i") (const int "10"))`, ExprSexp(e))

	call := &Call{Callee: "PyList_New", Args: []Expr{&Constant{Type: "int", Value: "0"}}}
	assert.Equal(t, `(call "PyList_New" (const int "0"))`, ExprSexp(call))

	assert.Equal(t, "()", ExprSexp(nil))
}

func TestDumpSexp(t *testing.T) {
	fn := NewFuncDef("f", "")
	fn.Entry = "entry"
	fn.Params = append(fn.Params, Param{Name: "x", Type: "int"})

	entry := &BasicBlock{Name: "entry"}
	entry.Append(&Assign{Target: "y", Value: &Variable{Name: "x"}})
	require.NoError(t, entry.SetTerm(&Return{Value: &Variable{Name: "y"}}))
	fn.AddBlock(entry)

	want := `(funcdef (name "f") (params ("x" "int")) (entry "entry") ` +
		`(block (name "entry") (assign "y" (var "x")) (return (var "y"))))`
	assert.Equal(t, want, DumpSexp(fn))
}

func TestDumpJSONIsDeterministic(t *testing.T) {
	fn := diamond(t)
	fn.Blocks["entry"].Append(&SemanticOp{
		Kind:    SemNewRef,
		Subject: "obj",
		Call:    "PyDict_New",
	})

	first, err := DumpJSON(fn)
	require.NoError(t, err)
	second, err := DumpJSON(fn)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Contains(t, string(first), `"entry_point": "entry"`)
	assert.Contains(t, string(first), `"op_type": "new-ref"`)
}
