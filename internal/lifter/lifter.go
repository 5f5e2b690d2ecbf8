// Package lifter 把 C 子集 AST 降级为基本块形式的 IR 控制流图。
// 降级是纯结构性的：不查语义目录，不做任何所有权推理。
package lifter

import (
	"fmt"

	"github.com/20000419/LISA-IR/internal/ast"
	"github.com/20000419/LISA-IR/internal/ir"
)

// StructuralError 单个函数的结构性降级失败。
// 遇到它时该函数被放弃，同一翻译单元的其他函数不受影响。
type StructuralError struct {
	Func   string
	Coord  string
	Reason string
}

func (e *StructuralError) Error() string {
	if e.Coord != "" {
		return fmt.Sprintf("structural error in %s at %s: %s", e.Func, e.Coord, e.Reason)
	}
	return fmt.Sprintf("structural error in %s: %s", e.Func, e.Reason)
}

// LowerModule 降级一个翻译单元的全部函数。
// 结构错误按函数收集，失败的函数不出现在结果模块中。
func LowerModule(file *ast.File) (*ir.Module, []*StructuralError) {
	mod := ir.NewModule(file.Name, "")
	var errs []*StructuralError
	for _, fd := range file.Funcs {
		fn, err := LowerFunction(fd)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		mod.AddFunction(fn)
	}
	return mod, errs
}

// LowerFunction 降级单个函数为 CFG
func LowerFunction(fd *ast.FuncDecl) (fn *ir.FuncDef, serr *StructuralError) {
	b := &builder{
		fn:         ir.NewFuncDef(fd.Name, fd.Coord.String()),
		funcName:   fd.Name,
		deadBlocks: map[string]bool{},
	}
	for _, p := range fd.Params {
		b.fn.Params = append(b.fn.Params, ir.Param{Name: p.Name, Type: p.Type, Coord: p.Coord.String()})
	}

	defer func() {
		if r := recover(); r != nil {
			if se, ok := r.(*StructuralError); ok {
				fn, serr = nil, se
				return
			}
			panic(r)
		}
	}()

	entry := b.newNamedBlock("entry", fd.Coord.String())
	b.fn.Entry = entry.Name
	b.cur = entry

	b.lowerStmts(fd.Body)

	// 函数体走到末尾的隐式 return；死代码块即使仍开口也不算走到末尾
	if b.cur.Term == nil && !b.deadBlocks[b.cur.Name] {
		b.cur.Term = &ir.Return{Coord: fd.Coord.String()}
	}
	// 其余未封口的块只能是死代码链的残端
	for _, name := range b.fn.Order {
		if blk := b.fn.Blocks[name]; blk.Term == nil {
			blk.Term = &ir.Unreachable{Coord: blk.Coord}
		}
	}

	if err := b.fn.Validate(); err != nil {
		return nil, &StructuralError{Func: fd.Name, Coord: fd.Coord.String(), Reason: err.Error()}
	}
	return b.fn, nil
}

// builder 单个函数的降级状态机
type builder struct {
	fn       *ir.FuncDef
	cur      *ir.BasicBlock
	funcName string

	blockSeq int
	tempSeq  int

	// 为容纳死代码而新开的块，函数末尾封口时不给它们隐式 return
	deadBlocks map[string]bool

	breakTargets    []string
	continueTargets []string
}

func (b *builder) fail(coord ast.Coord, format string, args ...any) {
	panic(&StructuralError{
		Func:   b.funcName,
		Coord:  coord.String(),
		Reason: fmt.Sprintf(format, args...),
	})
}

func (b *builder) newNamedBlock(name, coord string) *ir.BasicBlock {
	blk := &ir.BasicBlock{Name: name, Coord: coord}
	b.fn.AddBlock(blk)
	return blk
}

// newBlock 按前缀加递增序号命名新块（then_1、merge_4 这样的名字）
func (b *builder) newBlock(prefix, coord string) *ir.BasicBlock {
	b.blockSeq++
	return b.newNamedBlock(fmt.Sprintf("%s_%d", prefix, b.blockSeq), coord)
}

func (b *builder) newTemp() string {
	b.tempSeq++
	return fmt.Sprintf("_t%d", b.tempSeq)
}

// emit 向当前块追加操作。当前块已终结时说明后面的语句是死代码，
// 把它们降级到独立的 dead 块里（不是任何跳转的目标）。
func (b *builder) emit(op ir.Op) {
	b.ensureOpen(op.Coordinate())
	b.cur.Append(op)
}

func (b *builder) ensureOpen(coord string) {
	if b.cur.Term != nil {
		b.cur = b.newBlock("dead", coord)
		b.deadBlocks[b.cur.Name] = true
	}
}

func (b *builder) terminate(t ir.Term) {
	b.ensureOpen(t.Coordinate())
	if err := b.cur.SetTerm(t); err != nil {
		panic(err)
	}
}

// ---------------------------------------------------------------------------
// 语句降级
// ---------------------------------------------------------------------------

func (b *builder) lowerStmts(stmts []ast.Stmt) {
	for _, s := range stmts {
		b.lowerStmt(s)
	}
}

func (b *builder) lowerStmt(s ast.Stmt) {
	switch st := s.(type) {
	case *ast.DeclStmt:
		b.fn.Locals[st.Name] = st.Type
		if st.Init != nil {
			b.emit(&ir.Assign{Target: st.Name, Value: b.lowerRHS(st.Init), Coord: st.Coord.String()})
		}

	case *ast.AssignStmt:
		b.lowerAssign(st)

	case *ast.ExprStmt:
		b.emit(&ir.ExprStatement{X: b.lowerRHS(st.X), Coord: st.Coord.String()})

	case *ast.CompoundStmt:
		b.lowerStmts(st.Body)

	case *ast.IfStmt:
		b.lowerIf(st)

	case *ast.WhileStmt:
		b.lowerWhile(st)

	case *ast.DoWhileStmt:
		b.lowerDoWhile(st)

	case *ast.ForStmt:
		b.lowerFor(st)

	case *ast.SwitchStmt:
		b.lowerSwitch(st)

	case *ast.BreakStmt:
		if len(b.breakTargets) == 0 {
			b.fail(st.Coord, "break outside loop or switch")
		}
		b.terminate(&ir.Jump{Target: b.breakTargets[len(b.breakTargets)-1], Coord: st.Coord.String()})

	case *ast.ContinueStmt:
		if len(b.continueTargets) == 0 {
			b.fail(st.Coord, "continue outside loop")
		}
		b.terminate(&ir.Jump{Target: b.continueTargets[len(b.continueTargets)-1], Coord: st.Coord.String()})

	case *ast.ReturnStmt:
		var val ir.Expr
		if st.Value != nil {
			val = b.lowerValue(st.Value)
		}
		b.terminate(&ir.Return{Value: val, Coord: st.Coord.String()})

	case *ast.BadStmt:
		b.fail(st.Coord, "unrecognized statement: %s", st.Reason)

	default:
		b.fail(s.Pos(), "unsupported statement type %T", s)
	}
}

func (b *builder) lowerAssign(st *ast.AssignStmt) {
	switch target := st.Target.(type) {
	case *ast.Ident:
		b.emit(&ir.Assign{Target: target.Name, Value: b.lowerRHS(st.Value), Coord: st.Coord.String()})
	case *ast.DerefExpr, *ast.IndexExpr, *ast.SelectorExpr:
		addr := b.lowerValue(st.Target)
		b.emit(&ir.Store{Address: addr, Value: b.lowerValue(st.Value), Coord: st.Coord.String()})
	default:
		b.fail(st.Coord, "unsupported assignment target %T", st.Target)
	}
}

func (b *builder) lowerIf(st *ast.IfStmt) {
	cond := b.lowerValue(st.Cond)
	coord := st.Coord.String()

	thenBlk := b.newBlock("then", coord)
	var elseBlk *ir.BasicBlock
	if len(st.Else) > 0 {
		elseBlk = b.newBlock("else", coord)
	}

	// merge 块按需创建：两个分支都终结时没有汇合点
	var mergeBlk *ir.BasicBlock
	merge := func() *ir.BasicBlock {
		if mergeBlk == nil {
			mergeBlk = b.newBlock("merge", coord)
		}
		return mergeBlk
	}

	falseTarget := ""
	if elseBlk != nil {
		falseTarget = elseBlk.Name
	} else {
		falseTarget = merge().Name
	}
	b.terminate(&ir.BranchIf{Cond: cond, True: thenBlk.Name, False: falseTarget, Coord: coord})

	b.cur = thenBlk
	b.lowerStmts(st.Then)
	if b.cur.Term == nil {
		b.cur.Term = &ir.Jump{Target: merge().Name, Coord: coord}
	}

	if elseBlk != nil {
		b.cur = elseBlk
		b.lowerStmts(st.Else)
		if b.cur.Term == nil {
			b.cur.Term = &ir.Jump{Target: merge().Name, Coord: coord}
		}
	}

	if mergeBlk != nil {
		b.cur = mergeBlk
	}
	// 两个分支都不再汇合时当前块保持已终结状态，
	// 后续语句（若有）由 ensureOpen 落进独立的 dead 块
}

func (b *builder) lowerWhile(st *ast.WhileStmt) {
	coord := st.Coord.String()
	head := b.newBlock("loop_head", coord)
	body := b.newBlock("loop_body", coord)
	exit := b.newBlock("loop_exit", coord)

	b.terminate(&ir.Jump{Target: head.Name, Coord: coord})

	b.cur = head
	cond := b.lowerValue(st.Cond)
	b.terminate(&ir.BranchIf{Cond: cond, True: body.Name, False: exit.Name, Coord: coord})

	b.pushLoop(exit.Name, head.Name)
	b.cur = body
	b.lowerStmts(st.Body)
	if b.cur.Term == nil {
		b.cur.Term = &ir.Jump{Target: head.Name, Coord: coord}
	}
	b.popLoop()

	b.cur = exit
}

func (b *builder) lowerDoWhile(st *ast.DoWhileStmt) {
	coord := st.Coord.String()
	body := b.newBlock("loop_body", coord)
	cond := b.newBlock("loop_cond", coord)
	exit := b.newBlock("loop_exit", coord)

	b.terminate(&ir.Jump{Target: body.Name, Coord: coord})

	b.pushLoop(exit.Name, cond.Name)
	b.cur = body
	b.lowerStmts(st.Body)
	if b.cur.Term == nil {
		b.cur.Term = &ir.Jump{Target: cond.Name, Coord: coord}
	}
	b.popLoop()

	b.cur = cond
	condExpr := b.lowerValue(st.Cond)
	b.terminate(&ir.BranchIf{Cond: condExpr, True: body.Name, False: exit.Name, Coord: coord})

	b.cur = exit
}

func (b *builder) lowerFor(st *ast.ForStmt) {
	coord := st.Coord.String()
	if st.Init != nil {
		b.lowerStmt(st.Init)
	}

	head := b.newBlock("loop_head", coord)
	body := b.newBlock("loop_body", coord)
	exit := b.newBlock("loop_exit", coord)

	// continue 的目标：有步进语句时先走步进块
	continueTarget := head.Name
	var step *ir.BasicBlock
	if st.Post != nil {
		step = b.newBlock("loop_step", coord)
		continueTarget = step.Name
	}

	b.terminate(&ir.Jump{Target: head.Name, Coord: coord})

	b.cur = head
	if st.Cond != nil {
		cond := b.lowerValue(st.Cond)
		b.terminate(&ir.BranchIf{Cond: cond, True: body.Name, False: exit.Name, Coord: coord})
	} else {
		b.terminate(&ir.Jump{Target: body.Name, Coord: coord})
	}

	b.pushLoop(exit.Name, continueTarget)
	b.cur = body
	b.lowerStmts(st.Body)
	if b.cur.Term == nil {
		b.cur.Term = &ir.Jump{Target: continueTarget, Coord: coord}
	}
	b.popLoop()

	if step != nil {
		b.cur = step
		b.lowerStmt(st.Post)
		if b.cur.Term == nil {
			b.cur.Term = &ir.Jump{Target: head.Name, Coord: coord}
		}
	}

	b.cur = exit
}

func (b *builder) lowerSwitch(st *ast.SwitchStmt) {
	coord := st.Coord.String()
	selector := b.lowerValue(st.Tag)
	exit := b.newBlock("switch_exit", coord)

	// 先为每个 case 创建目标块，落入语义需要知道下一个 case 的名字
	caseBlks := make([]*ir.BasicBlock, len(st.Cases))
	defaultTarget := exit.Name
	for i, c := range st.Cases {
		if c.Values == nil {
			caseBlks[i] = b.newBlock("switch_default", c.Coord.String())
			defaultTarget = caseBlks[i].Name
		} else {
			caseBlks[i] = b.newBlock("switch_case", c.Coord.String())
		}
	}

	var cases []ir.SwitchCase
	for i, c := range st.Cases {
		for _, v := range c.Values {
			cases = append(cases, ir.SwitchCase{Value: b.caseLabel(v), Target: caseBlks[i].Name})
		}
	}
	b.terminate(&ir.Switch{Selector: selector, Cases: cases, Default: defaultTarget, Coord: coord})

	b.pushBreak(exit.Name)
	for i, c := range st.Cases {
		b.cur = caseBlks[i]
		b.lowerStmts(c.Body)
		if b.cur.Term == nil {
			// 没有 break 的 case 落入下一个 case 块
			next := exit.Name
			if i+1 < len(caseBlks) {
				next = caseBlks[i+1].Name
			}
			b.cur.Term = &ir.Jump{Target: next, Coord: c.Coord.String()}
		}
	}
	b.popBreak()

	b.cur = exit
}

// caseLabel case 标签的文本形式；只接受字面量和具名常量
func (b *builder) caseLabel(e ast.Expr) string {
	switch v := e.(type) {
	case *ast.BasicLit:
		return v.Value
	case *ast.Ident:
		return v.Name
	case *ast.UnaryExpr:
		if lit, ok := v.X.(*ast.BasicLit); ok && v.Op == "-" {
			return "-" + lit.Value
		}
	}
	b.fail(e.Pos(), "unsupported case label")
	return ""
}

func (b *builder) pushLoop(breakTarget, continueTarget string) {
	b.breakTargets = append(b.breakTargets, breakTarget)
	b.continueTargets = append(b.continueTargets, continueTarget)
}

func (b *builder) popLoop() {
	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.continueTargets = b.continueTargets[:len(b.continueTargets)-1]
}

func (b *builder) pushBreak(target string) {
	b.breakTargets = append(b.breakTargets, target)
}

func (b *builder) popBreak() {
	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
}

// ---------------------------------------------------------------------------
// 表达式降级
// ---------------------------------------------------------------------------

// lowerRHS 降级赋值右侧或表达式语句：调用保持原位，
// 让注入器能直接把语义操作绑定到 Assign/ExprStatement 上。
func (b *builder) lowerRHS(e ast.Expr) ir.Expr {
	if call, ok := e.(*ast.CallExpr); ok {
		return b.lowerCall(call)
	}
	return b.lowerValue(e)
}

// lowerValue 降级值上下文中的表达式。嵌套的调用被实体化为临时变量，
// 保证每个 Call 只作为 Assign 的直接右值或裸 ExprStatement 出现。
func (b *builder) lowerValue(e ast.Expr) ir.Expr {
	switch ex := e.(type) {
	case *ast.Ident:
		return &ir.Variable{Name: ex.Name, Coord: ex.Coord.String()}

	case *ast.BasicLit:
		return &ir.Constant{Type: ex.Kind, Value: ex.Value, Coord: ex.Coord.String()}

	case *ast.BinaryExpr:
		left := b.lowerValue(ex.X)
		right := b.lowerValue(ex.Y)
		return &ir.BinaryOp{Op: ex.Op, Left: left, Right: right, Coord: ex.Coord.String()}

	case *ast.UnaryExpr:
		return &ir.UnaryOp{Op: ex.Op, Operand: b.lowerValue(ex.X), Coord: ex.Coord.String()}

	case *ast.DerefExpr:
		return &ir.Load{Address: b.lowerValue(ex.X), Coord: ex.Coord.String()}

	case *ast.CallExpr:
		tmp := b.newTemp()
		b.emit(&ir.Assign{Target: tmp, Value: b.lowerCall(ex), Coord: ex.Coord.String()})
		return &ir.Variable{Name: tmp, Coord: ex.Coord.String()}

	case *ast.IndexExpr:
		return &ir.IndexRef{Base: b.lowerValue(ex.X), Index: b.lowerValue(ex.Index), Coord: ex.Coord.String()}

	case *ast.SelectorExpr:
		return &ir.FieldRef{Base: b.lowerValue(ex.X), Field: ex.Sel, Arrow: ex.Arrow, Coord: ex.Coord.String()}

	case *ast.CastExpr:
		return &ir.Cast{TargetType: ex.Type, Operand: b.lowerValue(ex.X), Coord: ex.Coord.String()}

	case *ast.BadExpr:
		b.fail(ex.Coord, "unrecognized expression: %s", ex.Reason)
		return nil

	default:
		b.fail(e.Pos(), "unsupported expression type %T", e)
		return nil
	}
}

// lowerCall 降级一次调用；实参中的嵌套调用先被实体化
func (b *builder) lowerCall(c *ast.CallExpr) *ir.Call {
	args := make([]ir.Expr, 0, len(c.Args))
	for _, a := range c.Args {
		args = append(args, b.lowerValue(a))
	}
	return &ir.Call{Callee: c.Fun, Args: args, Coord: c.Coord.String()}
}
