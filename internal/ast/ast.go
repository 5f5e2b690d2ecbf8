package ast

import "fmt"

// Coord 源码坐标（文件、行、列），仅用于诊断输出
type Coord struct {
	File string
	Line int
	Col  int
}

// String 返回 "file:line:col" 格式的坐标字符串
func (c Coord) String() string {
	if c.File == "" && c.Line == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", c.File, c.Line, c.Col)
}

// Node AST 节点的公共接口
type Node interface {
	Pos() Coord
}

// Stmt 语句节点
type Stmt interface {
	Node
	stmtNode()
}

// Expr 表达式节点
type Expr interface {
	Node
	exprNode()
}

// File 一个翻译单元中所有已识别的函数定义
type File struct {
	Name  string
	Funcs []*FuncDecl
}

// FuncDecl 函数定义：名称、形参列表、语句序列
type FuncDecl struct {
	Name   string
	Params []Param
	Body   []Stmt
	Coord  Coord
}

// Param 函数形参
type Param struct {
	Name  string
	Type  string
	Coord Coord
}

// ---------------------------------------------------------------------------
// 语句
// ---------------------------------------------------------------------------

// DeclStmt 带类型的局部变量声明，Init 可以为 nil
type DeclStmt struct {
	Name  string
	Type  string
	Init  Expr
	Coord Coord
}

// AssignStmt 赋值语句；Target 为 Ident 时是简单赋值，否则是内存写入
type AssignStmt struct {
	Target Expr
	Value  Expr
	Coord  Coord
}

// ExprStmt 为副作用求值的表达式语句（通常是一次裸调用）
type ExprStmt struct {
	X     Expr
	Coord Coord
}

// CompoundStmt 花括号块
type CompoundStmt struct {
	Body  []Stmt
	Coord Coord
}

// IfStmt if/else 语句，Else 可以为空
type IfStmt struct {
	Cond  Expr
	Then  []Stmt
	Else  []Stmt
	Coord Coord
}

// WhileStmt while 循环
type WhileStmt struct {
	Cond  Expr
	Body  []Stmt
	Coord Coord
}

// DoWhileStmt do-while 循环（后测条件）
type DoWhileStmt struct {
	Body  []Stmt
	Cond  Expr
	Coord Coord
}

// ForStmt for 循环；Init/Cond/Post 均可为 nil
type ForStmt struct {
	Init  Stmt
	Cond  Expr
	Post  Stmt
	Body  []Stmt
	Coord Coord
}

// SwitchStmt 多路分支
type SwitchStmt struct {
	Tag   Expr
	Cases []SwitchCase
	Coord Coord
}

// SwitchCase 单个 case；Values 为 nil 表示 default。
// 不以 break/return 结尾的 case 体落入（fall through）下一个 case。
type SwitchCase struct {
	Values []Expr
	Body   []Stmt
	Coord  Coord
}

// BreakStmt break 语句
type BreakStmt struct {
	Coord Coord
}

// ContinueStmt continue 语句
type ContinueStmt struct {
	Coord Coord
}

// ReturnStmt return 语句，Value 可以为 nil
type ReturnStmt struct {
	Value Expr
	Coord Coord
}

// BadStmt 前端无法识别的语句。提升器遇到它时对整个函数报结构错误。
type BadStmt struct {
	Reason string
	Coord  Coord
}

func (s *DeclStmt) stmtNode()     {}
func (s *AssignStmt) stmtNode()   {}
func (s *ExprStmt) stmtNode()     {}
func (s *CompoundStmt) stmtNode() {}
func (s *IfStmt) stmtNode()       {}
func (s *WhileStmt) stmtNode()    {}
func (s *DoWhileStmt) stmtNode()  {}
func (s *ForStmt) stmtNode()      {}
func (s *SwitchStmt) stmtNode()   {}
func (s *BreakStmt) stmtNode()    {}
func (s *ContinueStmt) stmtNode() {}
func (s *ReturnStmt) stmtNode()   {}
func (s *BadStmt) stmtNode()      {}

func (s *DeclStmt) Pos() Coord     { return s.Coord }
func (s *AssignStmt) Pos() Coord   { return s.Coord }
func (s *ExprStmt) Pos() Coord     { return s.Coord }
func (s *CompoundStmt) Pos() Coord { return s.Coord }
func (s *IfStmt) Pos() Coord       { return s.Coord }
func (s *WhileStmt) Pos() Coord    { return s.Coord }
func (s *DoWhileStmt) Pos() Coord  { return s.Coord }
func (s *ForStmt) Pos() Coord      { return s.Coord }
func (s *SwitchStmt) Pos() Coord   { return s.Coord }
func (s *BreakStmt) Pos() Coord    { return s.Coord }
func (s *ContinueStmt) Pos() Coord { return s.Coord }
func (s *ReturnStmt) Pos() Coord   { return s.Coord }
func (s *BadStmt) Pos() Coord      { return s.Coord }

// ---------------------------------------------------------------------------
// 表达式
// ---------------------------------------------------------------------------

// 字面量种类
const (
	LitInt    = "int"
	LitFloat  = "float"
	LitString = "string"
	LitChar   = "char"
	LitNull   = "null"
)

// Ident 变量引用
type Ident struct {
	Name  string
	Coord Coord
}

// BasicLit 字面量常量
type BasicLit struct {
	Kind  string
	Value string
	Coord Coord
}

// BinaryExpr 二元运算
type BinaryExpr struct {
	Op    string
	X     Expr
	Y     Expr
	Coord Coord
}

// UnaryExpr 一元运算（!、-、&、~ 等）
type UnaryExpr struct {
	Op    string
	X     Expr
	Coord Coord
}

// DerefExpr 指针解引用 *x
type DerefExpr struct {
	X     Expr
	Coord Coord
}

// CallExpr 按名调用；被调方只支持简单标识符
type CallExpr struct {
	Fun   string
	Args  []Expr
	Coord Coord
}

// IndexExpr 下标访问 x[i]
type IndexExpr struct {
	X     Expr
	Index Expr
	Coord Coord
}

// SelectorExpr 字段访问 x.f / x->f
type SelectorExpr struct {
	X     Expr
	Sel   string
	Arrow bool
	Coord Coord
}

// CastExpr 类型转换
type CastExpr struct {
	Type  string
	X     Expr
	Coord Coord
}

// BadExpr 前端无法识别的表达式
type BadExpr struct {
	Reason string
	Coord  Coord
}

func (e *Ident) exprNode()        {}
func (e *BasicLit) exprNode()     {}
func (e *BinaryExpr) exprNode()   {}
func (e *UnaryExpr) exprNode()    {}
func (e *DerefExpr) exprNode()    {}
func (e *CallExpr) exprNode()     {}
func (e *IndexExpr) exprNode()    {}
func (e *SelectorExpr) exprNode() {}
func (e *CastExpr) exprNode()     {}
func (e *BadExpr) exprNode()      {}

func (e *Ident) Pos() Coord        { return e.Coord }
func (e *BasicLit) Pos() Coord     { return e.Coord }
func (e *BinaryExpr) Pos() Coord   { return e.Coord }
func (e *UnaryExpr) Pos() Coord    { return e.Coord }
func (e *DerefExpr) Pos() Coord    { return e.Coord }
func (e *CallExpr) Pos() Coord     { return e.Coord }
func (e *IndexExpr) Pos() Coord    { return e.Coord }
func (e *SelectorExpr) Pos() Coord { return e.Coord }
func (e *CastExpr) Pos() Coord     { return e.Coord }
func (e *BadExpr) Pos() Coord      { return e.Coord }
