// Package analysis 引用状态分析器：在注入语义标注后的 CFG 上做
// 前向不动点抽象解释，对每个变量在每个程序点计算 RefState 并产出违规记录。
package analysis

import (
	"fmt"
	"sort"

	"github.com/20000419/LISA-IR/internal/ir"
)

// Analyzer 对单个模块或函数做引用状态分析。
// 分析器无共享可变状态，同一实例可被多个 goroutine 并发使用。
type Analyzer struct{}

// New 创建分析器
func New() *Analyzer {
	return &Analyzer{}
}

// AnalyzeModule 逐函数分析并汇总所有发现
func (a *Analyzer) AnalyzeModule(mod *ir.Module) []Finding {
	var findings []Finding
	for _, name := range mod.Order {
		findings = append(findings, a.AnalyzeFunction(mod.Functions[name])...)
	}
	return findings
}

// AnalyzeFunction 两阶段分析：
// 先按逆后序迭代到不动点算出每个可达块的入口/出口状态，
// 再做一遍确定性的报告遍历，在最终状态上产出发现。
func (a *Analyzer) AnalyzeFunction(fn *ir.FuncDef) []Finding {
	rpo := fn.ReversePostorder()
	preds := fn.Predecessors()
	reachable := fn.Reachable()

	entryIn := stateMap{}
	for _, p := range fn.Params {
		entryIn[p.Name] = varState{State: StateUnknown}
	}

	in := make(map[string]stateMap, len(rpo))
	out := make(map[string]stateMap, len(rpo))

	// 防御性迭代上限：格高度有限、转移函数单调，正常情况远在上限内收敛
	maxPasses := 4*len(rpo) + 16
	for pass := 0; pass < maxPasses; pass++ {
		changed := false
		for _, name := range rpo {
			blockIn := a.blockInState(fn, name, preds[name], reachable, out, entryIn)
			blockOut := a.transferBlock(fn, fn.Blocks[name], blockIn, nil)
			if !statesEqual(out[name], blockOut) {
				changed = true
			}
			in[name] = blockIn
			out[name] = blockOut
		}
		if !changed {
			break
		}
	}

	errPath := a.errorPathBlocks(fn, rpo, preds, reachable)

	// 报告遍历：只在最终状态上发现违规，保证与迭代次数无关
	var findings []Finding
	emit := func(f Finding) {
		f.Function = fn.Name
		findings = append(findings, f)
	}
	for _, name := range rpo {
		b := fn.Blocks[name]
		a.reportDivergence(fn, name, preds[name], reachable, out, emit)
		final := a.transferBlock(fn, b, in[name], emit)
		a.reportTerminalLeaks(b, final, errPath[name], emit)
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Coord != findings[j].Coord {
			return findings[i].Coord < findings[j].Coord
		}
		if findings[i].Kind != findings[j].Kind {
			return findings[i].Kind < findings[j].Kind
		}
		return findings[i].Variable < findings[j].Variable
	})
	return findings
}

// blockInState 合并所有已计算前驱的出口状态，并套用边上的错误路径修正
func (a *Analyzer) blockInState(fn *ir.FuncDef, name string, predList []string, reachable map[string]bool, out map[string]stateMap, entryIn stateMap) stateMap {
	var contributions []stateMap
	if name == fn.Entry {
		contributions = append(contributions, entryIn)
	}
	for _, p := range predList {
		if !reachable[p] || out[p] == nil {
			continue
		}
		contributions = append(contributions, a.edgeState(fn, p, name, out[p]))
	}
	return mergeState(contributions)
}

// edgeState 沿一条边传播前驱出口状态。错误边上被检查的调用结果
// 退化为 Unknown（调用失败，结果不持有引用），条件性 steal 被撤销。
func (a *Analyzer) edgeState(fn *ir.FuncDef, from, to string, s stateMap) stateMap {
	label, ok := fn.EdgeLabelOf(from, to)
	if !ok || label.Kind != ir.EdgeError {
		return s
	}
	adjusted := cloneState(s)
	if label.Subject != "" {
		adjusted[label.Subject] = varState{State: StateUnknown}
	}
	for _, name := range label.CondSteal {
		if vs, tracked := adjusted[name]; tracked && vs.State == StateStolen {
			vs.State = StateOwned
			adjusted[name] = vs
		}
	}
	return adjusted
}

// transferBlock 把入口状态推过块内全部操作和终结符。
// emit 为 nil 时只做状态传播（不动点阶段），非 nil 时产出发现（报告阶段）。
func (a *Analyzer) transferBlock(fn *ir.FuncDef, b *ir.BasicBlock, in stateMap, emit func(Finding)) stateMap {
	st := cloneState(in)
	for _, op := range b.Ops {
		a.transferOp(st, op, emit)
	}

	// return 一个 Owned 变量是所有权移交调用方的合法终局处置
	if ret, ok := b.Term.(*ir.Return); ok {
		if v, isVar := ret.Value.(*ir.Variable); isVar {
			if vs, tracked := st[v.Name]; tracked && vs.State == StateOwned {
				vs.State = StateReleased
				st[v.Name] = vs
			}
		}
	}
	return st
}

func (a *Analyzer) transferOp(st stateMap, op ir.Op, emit func(Finding)) {
	switch o := op.(type) {
	case *ir.Assign:
		// 重新赋值使旧的跟踪状态失效；编目调用的结果状态
		// 由紧随其后的语义操作重建
		if _, tracked := st[o.Target]; tracked {
			st[o.Target] = varState{State: StateUnknown}
		} else if _, isCall := o.Value.(*ir.Call); isCall {
			st[o.Target] = varState{State: StateUnknown}
		}

	case *ir.SemanticOp:
		a.transferSemantic(st, o, emit)
	}
}

func (a *Analyzer) transferSemantic(st stateMap, o *ir.SemanticOp, emit func(Finding)) {
	if o.Subject == "" {
		return
	}
	cur := st[o.Subject]

	switch o.Kind {
	case ir.SemNewRef:
		st[o.Subject] = varState{State: StateOwned, Origin: o.Call, OriginCoord: o.CallCoord}

	case ir.SemBorrowRef:
		st[o.Subject] = varState{State: StateBorrowed, Origin: o.Call, OriginCoord: o.CallCoord}

	case ir.SemIncrRef:
		// 显式增计数把借用变成持有
		st[o.Subject] = varState{State: StateOwned, Origin: o.Call, OriginCoord: o.Coord}

	case ir.SemStealRef:
		vs := cur
		vs.State = StateStolen
		if vs.Origin == "" {
			vs.Origin = o.Call
			vs.OriginCoord = o.CallCoord
		}
		st[o.Subject] = vs

	case ir.SemDecrRef:
		switch cur.State {
		case StateOwned:
			cur.State = StateReleased
			st[o.Subject] = cur
		case StateBorrowed:
			if emit != nil {
				emit(Finding{
					Kind:       KindBorrowedMisuse,
					Variable:   o.Subject,
					Coord:      o.Coord,
					Message:    fmt.Sprintf("releasing borrowed reference %q (borrowed from %s)", o.Subject, cur.Origin),
					Severity:   SeverityHigh,
					Confidence: ConfidenceHigh,
					CWE:        CWE763,
				})
			}
			cur.State = StateReleased
			st[o.Subject] = cur
		case StateStolen:
			if emit != nil {
				emit(Finding{
					Kind:       KindDoubleFree,
					Variable:   o.Subject,
					Coord:      o.Coord,
					Message:    fmt.Sprintf("releasing %q whose ownership was already transferred away", o.Subject),
					Severity:   SeverityHigh,
					Confidence: ConfidenceHigh,
					CWE:        CWE415,
				})
			}
			cur.State = StateReleased
			st[o.Subject] = cur
		case StateReleased:
			if emit != nil {
				emit(Finding{
					Kind:       KindDoubleFree,
					Variable:   o.Subject,
					Coord:      o.Coord,
					Message:    fmt.Sprintf("releasing %q which was already released", o.Subject),
					Severity:   SeverityHigh,
					Confidence: ConfidenceHigh,
					CWE:        CWE415,
				})
			}
		default:
			// Unknown：无法证明曾持有引用，低置信度报告
			if emit != nil {
				emit(Finding{
					Kind:       KindIncorrectDecrement,
					Variable:   o.Subject,
					Coord:      o.Coord,
					Message:    fmt.Sprintf("releasing %q without provable ownership", o.Subject),
					Severity:   SeverityLow,
					Confidence: ConfidenceLow,
					CWE:        CWE911,
				})
			}
		}

	case ir.SemErrorCheck:
		// 状态不变，错误语义体现在出边标签上
	}
}

// reportDivergence 在汇合点上找同一变量沿不同入边处于
// 不同已知状态的情况，逐变量报告 divergent-disposal。
func (a *Analyzer) reportDivergence(fn *ir.FuncDef, name string, predList []string, reachable map[string]bool, out map[string]stateMap, emit func(Finding)) {
	var incoming []stateMap
	for _, p := range predList {
		if reachable[p] && out[p] != nil {
			incoming = append(incoming, a.edgeState(fn, p, name, out[p]))
		}
	}
	if len(incoming) < 2 {
		return
	}

	vars := make(map[string]bool)
	for _, s := range incoming {
		for v := range s {
			vars[v] = true
		}
	}
	names := make([]string, 0, len(vars))
	for v := range vars {
		names = append(names, v)
	}
	sort.Strings(names)

	blockCoord := fn.Blocks[name].Coord
	for _, v := range names {
		known := make(map[RefState]bool)
		for _, s := range incoming {
			if vs, tracked := s[v]; tracked && vs.State != StateUnknown {
				known[vs.State] = true
			}
		}
		if len(known) >= 2 {
			emit(Finding{
				Kind:       KindDivergentDisposal,
				Variable:   v,
				Coord:      blockCoord,
				Message:    fmt.Sprintf("disposal of %q diverges between merging paths (%s)", v, stateSetString(known)),
				Severity:   SeverityMedium,
				Confidence: ConfidenceMedium,
				CWE:        CWE911,
			})
		}
	}
}

func stateSetString(states map[RefState]bool) string {
	var list []string
	for s := range states {
		list = append(list, s.String())
	}
	sort.Strings(list)
	out := ""
	for i, s := range list {
		if i > 0 {
			out += " vs "
		}
		out += s
	}
	return out
}

// reportTerminalLeaks 在终端块上报告仍处于 Owned 的变量。
// return 的变量已在转移阶段转为 Released，不会被重复报告。
func (a *Analyzer) reportTerminalLeaks(b *ir.BasicBlock, final stateMap, onErrorPath bool, emit func(Finding)) {
	switch b.Term.(type) {
	case *ir.Return, *ir.Unreachable:
	default:
		return
	}

	names := make([]string, 0, len(final))
	for v := range final {
		names = append(names, v)
	}
	sort.Strings(names)

	for _, v := range names {
		vs := final[v]
		if vs.State != StateOwned {
			continue
		}
		msg := fmt.Sprintf("reference held by %q (created by %s at %s) is never released", v, vs.Origin, vs.OriginCoord)
		if onErrorPath {
			msg += " on this error handling path"
		}
		emit(Finding{
			Kind:       KindLeak,
			Variable:   v,
			Coord:      b.Term.Coordinate(),
			Message:    msg,
			Severity:   SeverityMedium,
			Confidence: ConfidenceMedium,
			CWE:        CWE401,
			ErrorPath:  onErrorPath,
		})
	}
}

// errorPathBlocks 标记处于错误处理路径上的块：
// 有一条入边是错误边，或所有前驱都已在错误路径上。
func (a *Analyzer) errorPathBlocks(fn *ir.FuncDef, rpo []string, preds map[string][]string, reachable map[string]bool) map[string]bool {
	errPath := make(map[string]bool)
	for changed := true; changed; {
		changed = false
		for _, name := range rpo {
			if errPath[name] {
				continue
			}
			mark := false
			for _, p := range preds[name] {
				if !reachable[p] {
					continue
				}
				if l, ok := fn.EdgeLabelOf(p, name); ok && l.Kind == ir.EdgeError {
					mark = true
					break
				}
			}
			if !mark && len(preds[name]) > 0 {
				all := true
				for _, p := range preds[name] {
					if reachable[p] && !errPath[p] {
						all = false
						break
					}
				}
				mark = all
			}
			if mark {
				errPath[name] = true
				changed = true
			}
		}
	}
	return errPath
}
