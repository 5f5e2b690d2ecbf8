package ir

import (
	"fmt"
	"sort"
)

// BasicBlock 基本块：有序操作序列加恰好一个终结符。
// 操作序列中不会出现终结符（类型系统保证），终结符只能设置一次。
type BasicBlock struct {
	Name  string
	Ops   []Op
	Term  Term
	Coord string
}

// Append 向块尾追加一个操作
func (b *BasicBlock) Append(op Op) {
	b.Ops = append(b.Ops, op)
}

// SetTerm 设置终结符；重复设置是构建器的 bug
func (b *BasicBlock) SetTerm(t Term) error {
	if b.Term != nil {
		return fmt.Errorf("block %s already has a terminator", b.Name)
	}
	b.Term = t
	return nil
}

// Param 函数形参
type Param struct {
	Name  string
	Type  string
	Coord string
}

// EdgeKind CFG 边的语义标签
type EdgeKind int

const (
	EdgeNormal EdgeKind = iota
	EdgeSuccess
	EdgeError
)

// Edge 一条有向边
type Edge struct {
	From string
	To   string
}

// EdgeLabel 边上的错误路径元数据（由语义注入器写入）。
// Subject 是被检查的调用结果变量；CondSteal 列出该调用条件性窃取的变量，
// 沿错误边传播时这些变量的 Stolen 状态要被撤销。
type EdgeLabel struct {
	Kind      EdgeKind
	Subject   string
	Call      string
	CondSteal []string
}

// FuncDef 单个函数的控制流图。
// Blocks 按名字索引；Order 保留创建顺序以保证遍历和序列化确定性。
type FuncDef struct {
	Name       string
	Params     []Param
	Entry      string
	Blocks     map[string]*BasicBlock
	Order      []string
	Locals     map[string]string
	EdgeLabels map[Edge]EdgeLabel
	Coord      string
}

// NewFuncDef 创建空的函数定义
func NewFuncDef(name string, coord string) *FuncDef {
	return &FuncDef{
		Name:       name,
		Blocks:     make(map[string]*BasicBlock),
		Locals:     make(map[string]string),
		EdgeLabels: make(map[Edge]EdgeLabel),
		Coord:      coord,
	}
}

// AddBlock 注册一个基本块
func (f *FuncDef) AddBlock(b *BasicBlock) {
	f.Blocks[b.Name] = b
	f.Order = append(f.Order, b.Name)
}

// Block 按名字取块，不存在返回 nil
func (f *FuncDef) Block(name string) *BasicBlock {
	return f.Blocks[name]
}

// Successors 返回块终结符指向的后继块名（按终结符内的固定顺序）
func (f *FuncDef) Successors(name string) []string {
	b := f.Blocks[name]
	if b == nil || b.Term == nil {
		return nil
	}
	switch t := b.Term.(type) {
	case *Return, *Unreachable:
		return nil
	case *Jump:
		return []string{t.Target}
	case *BranchIf:
		if t.True == t.False {
			return []string{t.True}
		}
		return []string{t.True, t.False}
	case *Switch:
		seen := make(map[string]bool)
		var succs []string
		for _, c := range t.Cases {
			if !seen[c.Target] {
				seen[c.Target] = true
				succs = append(succs, c.Target)
			}
		}
		if !seen[t.Default] {
			succs = append(succs, t.Default)
		}
		return succs
	}
	return nil
}

// Predecessors 计算每个块的前驱列表（按 Order 顺序，确定性）
func (f *FuncDef) Predecessors() map[string][]string {
	preds := make(map[string][]string, len(f.Blocks))
	for _, name := range f.Order {
		for _, succ := range f.Successors(name) {
			preds[succ] = append(preds[succ], name)
		}
	}
	return preds
}

// TerminalBlocks 返回以 Return 或 Unreachable 结束的块名
func (f *FuncDef) TerminalBlocks() []string {
	var out []string
	for _, name := range f.Order {
		switch f.Blocks[name].Term.(type) {
		case *Return, *Unreachable:
			out = append(out, name)
		}
	}
	return out
}

// Reachable 返回从入口可达的块集合
func (f *FuncDef) Reachable() map[string]bool {
	visited := make(map[string]bool)
	worklist := []string{f.Entry}
	for len(worklist) > 0 {
		cur := worklist[0]
		worklist = worklist[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, succ := range f.Successors(cur) {
			if !visited[succ] {
				worklist = append(worklist, succ)
			}
		}
	}
	return visited
}

// UnreachableBlocks 返回从入口不可达的块（死代码，仅用于诊断，不参与分析）
func (f *FuncDef) UnreachableBlocks() []string {
	reachable := f.Reachable()
	var out []string
	for _, name := range f.Order {
		if !reachable[name] {
			out = append(out, name)
		}
	}
	return out
}

// ReversePostorder 返回可达块的逆后序。前向数据流按此顺序迭代收敛最快。
func (f *FuncDef) ReversePostorder() []string {
	visited := make(map[string]bool)
	var postorder []string

	var visit func(name string)
	visit = func(name string) {
		if visited[name] || f.Blocks[name] == nil {
			return
		}
		visited[name] = true
		for _, succ := range f.Successors(name) {
			visit(succ)
		}
		postorder = append(postorder, name)
	}
	visit(f.Entry)

	for i, j := 0, len(postorder)-1; i < j; i, j = i+1, j-1 {
		postorder[i], postorder[j] = postorder[j], postorder[i]
	}
	return postorder
}

// Validate 检查 CFG 结构不变式：
// 入口块存在、每个块有终结符、终结符引用的目标块都存在
func (f *FuncDef) Validate() error {
	if f.Blocks[f.Entry] == nil {
		return fmt.Errorf("function %s: entry block %q does not exist", f.Name, f.Entry)
	}
	for _, name := range f.Order {
		b := f.Blocks[name]
		if b.Term == nil {
			return fmt.Errorf("function %s: block %s has no terminator", f.Name, name)
		}
		for _, succ := range f.Successors(name) {
			if f.Blocks[succ] == nil {
				return fmt.Errorf("function %s: block %s jumps to unknown block %q", f.Name, name, succ)
			}
		}
	}
	return nil
}

// LabelEdge 给一条边打语义标签
func (f *FuncDef) LabelEdge(from, to string, label EdgeLabel) {
	f.EdgeLabels[Edge{From: from, To: to}] = label
}

// EdgeLabelOf 查询边标签
func (f *FuncDef) EdgeLabelOf(from, to string) (EdgeLabel, bool) {
	l, ok := f.EdgeLabels[Edge{From: from, To: to}]
	return l, ok
}

// Module 一个翻译单元的全部函数
type Module struct {
	Name      string
	Functions map[string]*FuncDef
	Order     []string
	Coord     string
}

// NewModule 创建空模块
func NewModule(name, coord string) *Module {
	return &Module{
		Name:      name,
		Functions: make(map[string]*FuncDef),
		Coord:     coord,
	}
}

// AddFunction 注册函数
func (m *Module) AddFunction(f *FuncDef) {
	if _, exists := m.Functions[f.Name]; !exists {
		m.Order = append(m.Order, f.Name)
	}
	m.Functions[f.Name] = f
}

// SortedFunctionNames 按名字排序的函数列表（报告输出用）
func (m *Module) SortedFunctionNames() []string {
	names := make([]string, 0, len(m.Functions))
	for name := range m.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
