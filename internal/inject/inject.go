// Package inject 语义注入器：对照目录把所有权标注写进 CFG。
// 注入是幂等的，对同一函数重复运行不会产生重复标注。
package inject

import (
	"sort"

	"github.com/20000419/LISA-IR/internal/catalog"
	"github.com/20000419/LISA-IR/internal/ir"
)

// callInfo 记录一次已标注调用的结果变量信息，供错误检查识别用
type callInfo struct {
	call      string
	coord     string
	sentinel  catalog.Sentinel
	condSteal []string
}

// AnnotateModule 标注模块内全部函数
func AnnotateModule(mod *ir.Module, cat *catalog.Catalog) {
	for _, name := range mod.Order {
		AnnotateFunction(mod.Functions[name], cat)
	}
}

// AnnotateFunction 两遍标注：先给调用点挂语义操作，
// 再识别对调用结果的错误检查分支并给边打标签。
func AnnotateFunction(fn *ir.FuncDef, cat *catalog.Catalog) {
	results := make(map[string]callInfo)

	for _, name := range fn.Order {
		annotateBlock(fn.Blocks[name], cat, results)
	}
	for _, name := range fn.Order {
		annotateErrorCheck(fn, fn.Blocks[name], results)
	}
}

func annotateBlock(b *ir.BasicBlock, cat *catalog.Catalog, results map[string]callInfo) {
	ops := make([]ir.Op, 0, len(b.Ops))
	for i, op := range b.Ops {
		ops = append(ops, op)

		var call *ir.Call
		var target string
		switch o := op.(type) {
		case *ir.Assign:
			if c, ok := o.Value.(*ir.Call); ok {
				call, target = c, o.Target
			}
		case *ir.ExprStatement:
			if c, ok := o.X.(*ir.Call); ok {
				call = c
			}
		}
		if call == nil {
			continue
		}
		entry, ok := cat.Lookup(call.Callee)
		if !ok {
			continue
		}

		info := callInfo{call: call.Callee, coord: call.Coord, sentinel: entry.ErrorReturn}
		sem := buildSemanticOps(call, target, entry, &info)
		if target != "" {
			results[target] = info
		}

		// 幂等性：紧随其后的同坐标语义操作说明这次调用已标注过
		if i+1 < len(b.Ops) {
			if next, isSem := b.Ops[i+1].(*ir.SemanticOp); isSem && next.CallCoord == call.Coord {
				continue
			}
		}
		ops = append(ops, sem...)
	}
	b.Ops = ops
}

// buildSemanticOps 按固定顺序生成一次调用的语义操作：
// 返回值标注在前，然后按实参索引升序生成 steal/incr/decr。
func buildSemanticOps(call *ir.Call, target string, entry catalog.Entry, info *callInfo) []ir.Op {
	var sem []ir.Op
	add := func(kind ir.SemKind, subject, caveat string, conditional bool) {
		sem = append(sem, &ir.SemanticOp{
			Kind:        kind,
			Subject:     subject,
			Call:        call.Callee,
			CallCoord:   call.Coord,
			Conditional: conditional,
			Caveat:      caveat,
			Coord:       call.Coord,
		})
	}

	switch entry.ReturnRef {
	case catalog.RefNew:
		if target != "" {
			add(ir.SemNewRef, target, "", false)
		} else {
			add(ir.SemNewRef, "", "call result discarded", false)
		}
	case catalog.RefBorrowed:
		if target != "" {
			add(ir.SemBorrowRef, target, "", false)
		}
	}

	for _, idx := range sortedIndices(entry.ArgSteal) {
		subject, caveat := argSubject(call, idx)
		add(ir.SemStealRef, subject, caveat, entry.StealOn == catalog.StealOnSuccess)
		if subject != "" && entry.StealOn == catalog.StealOnSuccess {
			info.condSteal = append(info.condSteal, subject)
		}
	}
	for _, idx := range sortedIndices(entry.ArgIncr) {
		subject, caveat := argSubject(call, idx)
		add(ir.SemIncrRef, subject, caveat, false)
	}
	for _, idx := range sortedIndices(entry.ArgDecr) {
		subject, caveat := argSubject(call, idx)
		add(ir.SemDecrRef, subject, caveat, false)
	}
	return sem
}

// argSubject 取第 idx 个实参作为语义主体；复杂实参主体留空并附注原因
func argSubject(call *ir.Call, idx int) (subject, caveat string) {
	if idx >= len(call.Args) {
		return "", "argument index out of range"
	}
	if v, ok := call.Args[idx].(*ir.Variable); ok {
		return v.Name, ""
	}
	return "", "argument is not a simple variable"
}

func sortedIndices(m map[int]bool) []int {
	if len(m) == 0 {
		return nil
	}
	idx := make([]int, 0, len(m))
	for i := range m {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// ---------------------------------------------------------------------------
// 错误检查识别
// ---------------------------------------------------------------------------

// annotateErrorCheck 识别形如 if (!obj) / if (rc == -1) 的哨兵检查分支，
// 追加 error-check 语义操作并在两条出边上写入成功/错误标签。
func annotateErrorCheck(fn *ir.FuncDef, b *ir.BasicBlock, results map[string]callInfo) {
	br, ok := b.Term.(*ir.BranchIf)
	if !ok {
		return
	}
	subject, errorOnTrue, matched := matchSentinel(br.Cond, results)
	if !matched {
		return
	}
	info := results[subject]

	// 幂等性：该检查已标注过则跳过
	if n := len(b.Ops); n > 0 {
		if last, isSem := b.Ops[n-1].(*ir.SemanticOp); isSem &&
			last.Kind == ir.SemErrorCheck && last.Subject == subject && last.CallCoord == info.coord {
			return
		}
	}

	b.Append(&ir.SemanticOp{
		Kind:      ir.SemErrorCheck,
		Subject:   subject,
		Call:      info.call,
		CallCoord: info.coord,
		Coord:     br.Coord,
	})

	errTarget, okTarget := br.False, br.True
	if errorOnTrue {
		errTarget, okTarget = br.True, br.False
	}
	fn.LabelEdge(b.Name, errTarget, ir.EdgeLabel{
		Kind:      ir.EdgeError,
		Subject:   subject,
		Call:      info.call,
		CondSteal: info.condSteal,
	})
	if okTarget != errTarget {
		fn.LabelEdge(b.Name, okTarget, ir.EdgeLabel{
			Kind:    ir.EdgeSuccess,
			Subject: subject,
			Call:    info.call,
		})
	}
}

// matchSentinel 对照调用结果变量的错误哨兵匹配分支条件。
// 返回被检查的变量名，以及 true 分支是否为错误路径。
func matchSentinel(cond ir.Expr, results map[string]callInfo) (subject string, errorOnTrue, ok bool) {
	switch c := cond.(type) {
	case *ir.Variable:
		// if (x)：真值测试，对 NULL 和 0 哨兵来说假分支是错误路径
		if info, found := results[c.Name]; found {
			if info.sentinel == catalog.SentinelNull || info.sentinel == catalog.SentinelZero {
				return c.Name, false, true
			}
		}

	case *ir.UnaryOp:
		if c.Op == "!" {
			if v, isVar := c.Operand.(*ir.Variable); isVar {
				if info, found := results[v.Name]; found {
					if info.sentinel == catalog.SentinelNull || info.sentinel == catalog.SentinelZero {
						return v.Name, true, true
					}
				}
			}
		}

	case *ir.BinaryOp:
		return matchComparison(c, results)
	}
	return "", false, false
}

func matchComparison(c *ir.BinaryOp, results map[string]callInfo) (string, bool, bool) {
	v, other, op := splitComparison(c)
	if v == nil {
		return "", false, false
	}
	info, found := results[v.Name]
	if !found {
		return "", false, false
	}

	switch info.sentinel {
	case catalog.SentinelNull:
		if isNullConst(other) {
			switch op {
			case "==":
				return v.Name, true, true
			case "!=":
				return v.Name, false, true
			}
		}
	case catalog.SentinelNegOne:
		if isIntConst(other, "-1") {
			switch op {
			case "==":
				return v.Name, true, true
			case "!=":
				return v.Name, false, true
			}
		}
		if isIntConst(other, "0") {
			switch op {
			case "<":
				return v.Name, true, true
			case ">=":
				return v.Name, false, true
			}
		}
	case catalog.SentinelZero:
		if isIntConst(other, "0") {
			switch op {
			case "==":
				return v.Name, true, true
			case "!=":
				return v.Name, false, true
			}
		}
	}
	return "", false, false
}

// splitComparison 把比较拆成变量一侧和常量一侧，必要时翻转关系运算符
func splitComparison(c *ir.BinaryOp) (*ir.Variable, ir.Expr, string) {
	if v, ok := c.Left.(*ir.Variable); ok {
		return v, c.Right, c.Op
	}
	if v, ok := c.Right.(*ir.Variable); ok {
		return v, c.Left, flipOp(c.Op)
	}
	return nil, nil, ""
}

func flipOp(op string) string {
	switch op {
	case "<":
		return ">"
	case ">":
		return "<"
	case "<=":
		return ">="
	case ">=":
		return "<="
	}
	return op
}

func isNullConst(e ir.Expr) bool {
	c, ok := e.(*ir.Constant)
	if !ok {
		return false
	}
	return c.Type == "null" || c.Value == "NULL" || (c.Type == "int" && c.Value == "0")
}

func isIntConst(e ir.Expr, value string) bool {
	if c, ok := e.(*ir.Constant); ok {
		return c.Type == "int" && c.Value == value
	}
	if u, ok := e.(*ir.UnaryOp); ok && u.Op == "-" && len(value) > 1 && value[0] == '-' {
		return isIntConst(u.Operand, value[1:])
	}
	return false
}
