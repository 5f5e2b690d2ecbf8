package frontend

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/20000419/LISA-IR/internal/ast"
)

// converter 把 tree-sitter 语法树转换成 C 子集 AST。
// 无法识别的语法构造转换为 BadStmt/BadExpr，由提升器决定是否放弃该函数。
type converter struct {
	unit *ParsedUnit
}

// Convert 提取翻译单元中的全部函数定义并转换
func Convert(unit *ParsedUnit) *ast.File {
	c := &converter{unit: unit}
	file := &ast.File{Name: unit.FilePath}

	root := unit.Root
	for i := 0; i < int(root.ChildCount()); i++ {
		node := root.Child(i)
		if node.Type() != "function_definition" {
			continue
		}
		if fd := c.convertFunc(node); fd != nil {
			file.Funcs = append(file.Funcs, fd)
		}
	}
	return file
}

func (c *converter) coord(node *sitter.Node) ast.Coord {
	return ast.Coord{
		File: c.unit.FilePath,
		Line: int(node.StartPoint().Row) + 1,
		Col:  int(node.StartPoint().Column) + 1,
	}
}

// ---------------------------------------------------------------------------
// 函数
// ---------------------------------------------------------------------------

func (c *converter) convertFunc(node *sitter.Node) *ast.FuncDecl {
	declarator := node.ChildByFieldName("declarator")
	funcDeclarator := c.findFunctionDeclarator(declarator)
	if funcDeclarator == nil {
		return nil
	}

	name := ""
	if id := funcDeclarator.ChildByFieldName("declarator"); id != nil && id.Type() == "identifier" {
		name = c.unit.Text(id)
	}
	if name == "" {
		return nil
	}

	fd := &ast.FuncDecl{Name: name, Coord: c.coord(node)}

	if params := funcDeclarator.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.ChildCount()); i++ {
			p := params.Child(i)
			if p.Type() != "parameter_declaration" {
				continue
			}
			pname := c.findIdentifier(p)
			ptype := ""
			if t := p.ChildByFieldName("type"); t != nil {
				ptype = c.unit.Text(t)
			}
			if pname != nil {
				fd.Params = append(fd.Params, ast.Param{
					Name:  c.unit.Text(pname),
					Type:  ptype,
					Coord: c.coord(p),
				})
			}
		}
	}

	if body := node.ChildByFieldName("body"); body != nil {
		fd.Body = c.convertBlock(body)
	}
	return fd
}

// findFunctionDeclarator 透过 pointer_declarator 等包装递归找 function_declarator
func (c *converter) findFunctionDeclarator(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.Type() == "function_declarator" {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "function_declarator", "pointer_declarator", "array_declarator":
			if result := c.findFunctionDeclarator(child); result != nil {
				return result
			}
		}
	}
	return nil
}

// findIdentifier 在声明器里递归找第一个 identifier
func (c *converter) findIdentifier(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.Type() == "identifier" {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if result := c.findIdentifier(node.Child(i)); result != nil {
			return result
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// 语句
// ---------------------------------------------------------------------------

// convertBlock 展开 compound_statement 的语句序列
func (c *converter) convertBlock(node *sitter.Node) []ast.Stmt {
	var stmts []ast.Stmt
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if !child.IsNamed() || child.Type() == "comment" {
			continue
		}
		stmts = append(stmts, c.convertStmt(child)...)
	}
	return stmts
}

// convertStmt 转换单个语句；declaration 可能展开为多个 DeclStmt
func (c *converter) convertStmt(node *sitter.Node) []ast.Stmt {
	switch node.Type() {
	case "declaration":
		return c.convertDeclaration(node)

	case "expression_statement":
		if expr := node.NamedChild(0); expr != nil {
			return []ast.Stmt{c.statementize(expr)}
		}
		return nil

	case "compound_statement":
		return []ast.Stmt{&ast.CompoundStmt{Body: c.convertBlock(node), Coord: c.coord(node)}}

	case "if_statement":
		return []ast.Stmt{c.convertIf(node)}

	case "while_statement":
		return []ast.Stmt{&ast.WhileStmt{
			Cond:  c.convertCondition(node.ChildByFieldName("condition")),
			Body:  c.convertBody(node.ChildByFieldName("body")),
			Coord: c.coord(node),
		}}

	case "do_statement":
		return []ast.Stmt{&ast.DoWhileStmt{
			Body:  c.convertBody(node.ChildByFieldName("body")),
			Cond:  c.convertCondition(node.ChildByFieldName("condition")),
			Coord: c.coord(node),
		}}

	case "for_statement":
		return []ast.Stmt{c.convertFor(node)}

	case "switch_statement":
		return []ast.Stmt{c.convertSwitch(node)}

	case "break_statement":
		return []ast.Stmt{&ast.BreakStmt{Coord: c.coord(node)}}

	case "continue_statement":
		return []ast.Stmt{&ast.ContinueStmt{Coord: c.coord(node)}}

	case "return_statement":
		ret := &ast.ReturnStmt{Coord: c.coord(node)}
		if expr := node.NamedChild(0); expr != nil {
			ret.Value = c.convertExpr(expr)
		}
		return []ast.Stmt{ret}

	default:
		return []ast.Stmt{&ast.BadStmt{Reason: node.Type(), Coord: c.coord(node)}}
	}
}

// convertDeclaration 一条 declaration 里的每个声明器各转换为一个 DeclStmt
func (c *converter) convertDeclaration(node *sitter.Node) []ast.Stmt {
	declType := ""
	if t := node.ChildByFieldName("type"); t != nil {
		declType = c.unit.Text(t)
	}

	var stmts []ast.Stmt
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "init_declarator":
			id := c.findIdentifier(child.ChildByFieldName("declarator"))
			if id == nil {
				stmts = append(stmts, &ast.BadStmt{Reason: "unnamed declarator", Coord: c.coord(child)})
				continue
			}
			decl := &ast.DeclStmt{Name: c.unit.Text(id), Type: declType, Coord: c.coord(child)}
			if value := child.ChildByFieldName("value"); value != nil {
				decl.Init = c.convertExpr(value)
			}
			stmts = append(stmts, decl)

		case "identifier", "pointer_declarator", "array_declarator":
			if id := c.findIdentifier(child); id != nil {
				stmts = append(stmts, &ast.DeclStmt{Name: c.unit.Text(id), Type: declType, Coord: c.coord(child)})
			}
		}
	}
	return stmts
}

func (c *converter) convertIf(node *sitter.Node) ast.Stmt {
	stmt := &ast.IfStmt{
		Cond:  c.convertCondition(node.ChildByFieldName("condition")),
		Then:  c.convertBody(node.ChildByFieldName("consequence")),
		Coord: c.coord(node),
	}
	if alt := node.ChildByFieldName("alternative"); alt != nil {
		// else_clause 包一层，取里面的语句
		inner := alt
		if alt.Type() == "else_clause" {
			inner = alt.NamedChild(0)
		}
		if inner != nil {
			stmt.Else = c.convertBody(inner)
		}
	}
	return stmt
}

func (c *converter) convertFor(node *sitter.Node) ast.Stmt {
	stmt := &ast.ForStmt{Coord: c.coord(node)}

	if init := node.ChildByFieldName("initializer"); init != nil {
		if init.Type() == "declaration" {
			decls := c.convertDeclaration(init)
			if len(decls) == 1 {
				stmt.Init = decls[0]
			} else if len(decls) > 1 {
				stmt.Init = &ast.CompoundStmt{Body: decls, Coord: c.coord(init)}
			}
		} else {
			stmt.Init = c.statementize(init)
		}
	}
	if cond := node.ChildByFieldName("condition"); cond != nil {
		stmt.Cond = c.convertExpr(cond)
	}
	if update := node.ChildByFieldName("update"); update != nil {
		stmt.Post = c.statementize(update)
	}
	stmt.Body = c.convertBody(node.ChildByFieldName("body"))
	return stmt
}

func (c *converter) convertSwitch(node *sitter.Node) ast.Stmt {
	stmt := &ast.SwitchStmt{
		Tag:   c.convertCondition(node.ChildByFieldName("condition")),
		Coord: c.coord(node),
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return stmt
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		if child.Type() != "case_statement" {
			continue
		}
		cs := ast.SwitchCase{Coord: c.coord(child)}
		value := child.ChildByFieldName("value")
		if value != nil {
			cs.Values = []ast.Expr{c.convertExpr(value)}
		}
		// case_statement 的具名子节点中除 value 外都是 case 体
		for j := 0; j < int(child.NamedChildCount()); j++ {
			sub := child.NamedChild(j)
			if sub.Type() == "comment" {
				continue
			}
			if value != nil && sub.StartByte() == value.StartByte() {
				continue
			}
			cs.Body = append(cs.Body, c.convertStmt(sub)...)
		}
		stmt.Cases = append(stmt.Cases, cs)
	}
	return stmt
}

// convertBody 循环体/分支体：compound_statement 展开，单语句包装成切片
func (c *converter) convertBody(node *sitter.Node) []ast.Stmt {
	if node == nil {
		return nil
	}
	if node.Type() == "compound_statement" {
		return c.convertBlock(node)
	}
	return c.convertStmt(node)
}

// convertCondition 剥掉条件外层的括号节点
func (c *converter) convertCondition(node *sitter.Node) ast.Expr {
	if node == nil {
		return &ast.BadExpr{Reason: "missing condition"}
	}
	if node.Type() == "parenthesized_expression" {
		if inner := node.NamedChild(0); inner != nil {
			return c.convertExpr(inner)
		}
	}
	return c.convertExpr(node)
}

// statementize 把表达式位置的节点转成语句（for 的 init/update 等）
func (c *converter) statementize(node *sitter.Node) ast.Stmt {
	switch node.Type() {
	case "assignment_expression":
		return c.convertAssignment(node)
	case "update_expression":
		return c.convertUpdate(node)
	case "comma_expression":
		return &ast.BadStmt{Reason: "comma expression", Coord: c.coord(node)}
	default:
		return &ast.ExprStmt{X: c.convertExpr(node), Coord: c.coord(node)}
	}
}

func (c *converter) convertAssignment(node *sitter.Node) ast.Stmt {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	op := c.unit.Text(node.ChildByFieldName("operator"))

	target := c.convertExpr(left)
	value := c.convertExpr(right)

	// 复合赋值 x += e 展开为 x = x + e
	if op != "=" && len(op) > 1 {
		value = &ast.BinaryExpr{
			Op:    strings.TrimSuffix(op, "="),
			X:     c.convertExpr(left),
			Y:     value,
			Coord: c.coord(node),
		}
	}
	return &ast.AssignStmt{Target: target, Value: value, Coord: c.coord(node)}
}

// convertUpdate i++ / --i 展开为 i = i ± 1
func (c *converter) convertUpdate(node *sitter.Node) ast.Stmt {
	arg := node.ChildByFieldName("argument")
	op := c.unit.Text(node.ChildByFieldName("operator"))

	binOp := "+"
	if op == "--" {
		binOp = "-"
	}
	return &ast.AssignStmt{
		Target: c.convertExpr(arg),
		Value: &ast.BinaryExpr{
			Op:    binOp,
			X:     c.convertExpr(arg),
			Y:     &ast.BasicLit{Kind: ast.LitInt, Value: "1", Coord: c.coord(node)},
			Coord: c.coord(node),
		},
		Coord: c.coord(node),
	}
}

// ---------------------------------------------------------------------------
// 表达式
// ---------------------------------------------------------------------------

func (c *converter) convertExpr(node *sitter.Node) ast.Expr {
	if node == nil {
		return &ast.BadExpr{Reason: "missing expression"}
	}

	switch node.Type() {
	case "identifier":
		text := c.unit.Text(node)
		if text == "NULL" {
			return &ast.BasicLit{Kind: ast.LitNull, Value: "NULL", Coord: c.coord(node)}
		}
		return &ast.Ident{Name: text, Coord: c.coord(node)}

	case "null":
		return &ast.BasicLit{Kind: ast.LitNull, Value: "NULL", Coord: c.coord(node)}

	case "number_literal":
		text := c.unit.Text(node)
		kind := ast.LitInt
		if strings.ContainsAny(text, ".eE") && !strings.HasPrefix(text, "0x") && !strings.HasPrefix(text, "0X") {
			kind = ast.LitFloat
		}
		return &ast.BasicLit{Kind: kind, Value: text, Coord: c.coord(node)}

	case "string_literal", "concatenated_string":
		return &ast.BasicLit{Kind: ast.LitString, Value: c.unit.Text(node), Coord: c.coord(node)}

	case "char_literal":
		return &ast.BasicLit{Kind: ast.LitChar, Value: c.unit.Text(node), Coord: c.coord(node)}

	case "parenthesized_expression":
		if inner := node.NamedChild(0); inner != nil {
			return c.convertExpr(inner)
		}
		return &ast.BadExpr{Reason: "empty parentheses", Coord: c.coord(node)}

	case "binary_expression":
		return &ast.BinaryExpr{
			Op:    c.unit.Text(node.ChildByFieldName("operator")),
			X:     c.convertExpr(node.ChildByFieldName("left")),
			Y:     c.convertExpr(node.ChildByFieldName("right")),
			Coord: c.coord(node),
		}

	case "unary_expression":
		return &ast.UnaryExpr{
			Op:    c.unit.Text(node.ChildByFieldName("operator")),
			X:     c.convertExpr(node.ChildByFieldName("argument")),
			Coord: c.coord(node),
		}

	case "pointer_expression":
		op := c.unit.Text(node.ChildByFieldName("operator"))
		arg := c.convertExpr(node.ChildByFieldName("argument"))
		if op == "*" {
			return &ast.DerefExpr{X: arg, Coord: c.coord(node)}
		}
		return &ast.UnaryExpr{Op: op, X: arg, Coord: c.coord(node)}

	case "call_expression":
		return c.convertCall(node)

	case "subscript_expression":
		return &ast.IndexExpr{
			X:     c.convertExpr(node.ChildByFieldName("argument")),
			Index: c.convertExpr(node.ChildByFieldName("index")),
			Coord: c.coord(node),
		}

	case "field_expression":
		return &ast.SelectorExpr{
			X:     c.convertExpr(node.ChildByFieldName("argument")),
			Sel:   c.unit.Text(node.ChildByFieldName("field")),
			Arrow: c.unit.Text(node.ChildByFieldName("operator")) == "->",
			Coord: c.coord(node),
		}

	case "cast_expression":
		return &ast.CastExpr{
			Type:  c.unit.Text(node.ChildByFieldName("type")),
			X:     c.convertExpr(node.ChildByFieldName("value")),
			Coord: c.coord(node),
		}

	default:
		return &ast.BadExpr{Reason: node.Type(), Coord: c.coord(node)}
	}
}

func (c *converter) convertCall(node *sitter.Node) ast.Expr {
	fn := node.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" {
		// 函数指针、方法表达式等按不可识别处理
		return &ast.BadExpr{Reason: "non-identifier callee", Coord: c.coord(node)}
	}

	call := &ast.CallExpr{Fun: c.unit.Text(fn), Coord: c.coord(node)}
	if args := node.ChildByFieldName("arguments"); args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			arg := args.NamedChild(i)
			if arg.Type() == "comment" {
				continue
			}
			call.Args = append(call.Args, c.convertExpr(arg))
		}
	}
	return call
}
