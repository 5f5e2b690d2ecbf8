package ir

import "fmt"

// MakeCoord 构造 "file:line:col" 格式的坐标字符串
func MakeCoord(file string, line, col int) string {
	return fmt.Sprintf("%s:%d:%d", file, line, col)
}

// ---------------------------------------------------------------------------
// 表达式：纯的、无副作用，只出现在操作和终结符内部，不单独作为 CFG 节点
// ---------------------------------------------------------------------------

// Expr IR 表达式接口
type Expr interface {
	exprNode()
	// Coordinate 返回源码坐标（可能为空字符串）
	Coordinate() string
}

// Variable 变量引用
type Variable struct {
	Name  string
	Coord string
}

// Constant 字面量常量；值统一存为字符串以保证序列化确定性
type Constant struct {
	Type  string
	Value string
	Coord string
}

// BinaryOp 二元运算
type BinaryOp struct {
	Op    string
	Left  Expr
	Right Expr
	Coord string
}

// UnaryOp 一元运算
type UnaryOp struct {
	Op      string
	Operand Expr
	Coord   string
}

// Load 从地址读取（解引用变量或字段地址）
type Load struct {
	Address Expr
	Coord   string
}

// Cast 类型转换
type Cast struct {
	TargetType string
	Operand    Expr
	Coord      string
}

// Call 按名调用外部 API；参数按源码顺序排列
type Call struct {
	Callee string
	Args   []Expr
	Coord  string
}

// FieldRef 字段访问 base.field / base->field
type FieldRef struct {
	Base  Expr
	Field string
	Arrow bool
	Coord string
}

// IndexRef 下标访问 base[index]
type IndexRef struct {
	Base  Expr
	Index Expr
	Coord string
}

func (e *Variable) exprNode() {}
func (e *Constant) exprNode() {}
func (e *BinaryOp) exprNode() {}
func (e *UnaryOp) exprNode()  {}
func (e *Load) exprNode()     {}
func (e *Cast) exprNode()     {}
func (e *Call) exprNode()     {}
func (e *FieldRef) exprNode() {}
func (e *IndexRef) exprNode() {}

func (e *Variable) Coordinate() string { return e.Coord }
func (e *Constant) Coordinate() string { return e.Coord }
func (e *BinaryOp) Coordinate() string { return e.Coord }
func (e *UnaryOp) Coordinate() string  { return e.Coord }
func (e *Load) Coordinate() string     { return e.Coord }
func (e *Cast) Coordinate() string     { return e.Coord }
func (e *Call) Coordinate() string     { return e.Coord }
func (e *FieldRef) Coordinate() string { return e.Coord }
func (e *IndexRef) Coordinate() string { return e.Coord }

// ---------------------------------------------------------------------------
// 操作：基本块内的有序指令序列，顺序即执行顺序
// ---------------------------------------------------------------------------

// Op IR 操作接口
type Op interface {
	opNode()
	Coordinate() string
}

// Assign 把表达式的值赋给目标变量
type Assign struct {
	Target string
	Value  Expr
	Coord  string
}

// ExprStatement 为副作用求值的表达式（裸调用）
type ExprStatement struct {
	X     Expr
	Coord string
}

// Store 向地址写入值
type Store struct {
	Address Expr
	Value   Expr
	Coord   string
}

// SemKind 语义操作种类
type SemKind string

const (
	SemNewRef     SemKind = "new-ref"     // 主体持有一个新引用
	SemBorrowRef  SemKind = "borrow-ref"  // 主体持有借用引用，禁止释放
	SemStealRef   SemKind = "steal-ref"   // 实参的引用所有权被转移给被调方
	SemDecrRef    SemKind = "decr-ref"    // 主体持有的引用被释放
	SemIncrRef    SemKind = "incr-ref"    // 主体引用计数被显式增加
	SemErrorCheck SemKind = "error-check" // 随后的分支依赖 API 错误哨兵值
)

// SemanticOp 由语义注入器追加的所有权标注。
// Subject 为空表示主体无法确定（复杂实参），此时 Caveat 记录原因。
// Conditional 标记仅在调用成功时才发生的 steal（目录 steal_on: success）。
type SemanticOp struct {
	Kind        SemKind
	Subject     string
	Call        string
	CallCoord   string
	Conditional bool
	Caveat      string
	Coord       string
}

func (o *Assign) opNode()        {}
func (o *ExprStatement) opNode() {}
func (o *Store) opNode()         {}
func (o *SemanticOp) opNode()    {}

func (o *Assign) Coordinate() string        { return o.Coord }
func (o *ExprStatement) Coordinate() string { return o.Coord }
func (o *Store) Coordinate() string         { return o.Coord }
func (o *SemanticOp) Coordinate() string    { return o.Coord }

// ---------------------------------------------------------------------------
// 终结符：每个基本块恰好以一个终结符结束
// ---------------------------------------------------------------------------

// Term IR 终结符接口
type Term interface {
	termNode()
	Coordinate() string
}

// Return 函数返回，Value 可以为 nil
type Return struct {
	Value Expr
	Coord string
}

// BranchIf 条件分支
type BranchIf struct {
	Cond  Expr
	True  string
	False string
	Coord string
}

// Jump 无条件跳转
type Jump struct {
	Target string
	Coord  string
}

// SwitchCase switch 的一个目标
type SwitchCase struct {
	Value  string
	Target string
}

// Switch 多路分支；Default 必须非空
type Switch struct {
	Selector Expr
	Cases    []SwitchCase
	Default  string
	Coord    string
}

// Unreachable 不可达终结符（死代码块的结尾）
type Unreachable struct {
	Coord string
}

func (t *Return) termNode()      {}
func (t *BranchIf) termNode()    {}
func (t *Jump) termNode()        {}
func (t *Switch) termNode()      {}
func (t *Unreachable) termNode() {}

func (t *Return) Coordinate() string      { return t.Coord }
func (t *BranchIf) Coordinate() string    { return t.Coord }
func (t *Jump) Coordinate() string        { return t.Coord }
func (t *Switch) Coordinate() string      { return t.Coord }
func (t *Unreachable) Coordinate() string { return t.Coord }
