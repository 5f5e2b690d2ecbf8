package ir

import (
	"encoding/json"
	"fmt"
	"strings"
)

// 序列化：IR 的 JSON 与 S 表达式两种文本形式。
// 输出对同一输入是字节级确定的（块按 Order、键按字典序）。

// MarshalJSON 模块级 JSON 序列化
func (m *Module) MarshalJSON() ([]byte, error) {
	funcs := make([]any, 0, len(m.Order))
	for _, name := range m.Order {
		funcs = append(funcs, funcToMap(m.Functions[name]))
	}
	return json.Marshal(map[string]any{
		"kind":      "module",
		"name":      m.Name,
		"functions": funcs,
	})
}

// DumpJSON 序列化单个函数为缩进 JSON
func DumpJSON(f *FuncDef) ([]byte, error) {
	return json.MarshalIndent(funcToMap(f), "", "  ")
}

func funcToMap(f *FuncDef) map[string]any {
	params := make([]any, 0, len(f.Params))
	for _, p := range f.Params {
		params = append(params, map[string]any{"name": p.Name, "type": p.Type})
	}
	blocks := make([]any, 0, len(f.Order))
	for _, name := range f.Order {
		blocks = append(blocks, blockToMap(f.Blocks[name]))
	}
	out := map[string]any{
		"kind":        "funcdef",
		"name":        f.Name,
		"params":      params,
		"entry_point": f.Entry,
		"blocks":      blocks,
	}
	if f.Coord != "" {
		out["coord"] = f.Coord
	}
	return out
}

func blockToMap(b *BasicBlock) map[string]any {
	ops := make([]any, 0, len(b.Ops))
	for _, op := range b.Ops {
		ops = append(ops, opToMap(op))
	}
	return map[string]any{
		"kind":       "block",
		"name":       b.Name,
		"operations": ops,
		"terminator": termToMap(b.Term),
	}
}

func opToMap(op Op) map[string]any {
	var out map[string]any
	switch o := op.(type) {
	case *Assign:
		out = map[string]any{"kind": "assign", "target": o.Target, "value": exprToMap(o.Value)}
	case *ExprStatement:
		out = map[string]any{"kind": "expr_statement", "expr": exprToMap(o.X)}
	case *Store:
		out = map[string]any{"kind": "store", "address": exprToMap(o.Address), "value": exprToMap(o.Value)}
	case *SemanticOp:
		out = map[string]any{"kind": "semantic_op", "op_type": string(o.Kind), "call": o.Call}
		if o.Subject != "" {
			out["subject"] = o.Subject
		}
		if o.Conditional {
			out["conditional"] = true
		}
		if o.Caveat != "" {
			out["caveat"] = o.Caveat
		}
	default:
		out = map[string]any{"kind": "unknown_op"}
	}
	if c := op.Coordinate(); c != "" {
		out["coord"] = c
	}
	return out
}

func termToMap(t Term) map[string]any {
	if t == nil {
		return nil
	}
	var out map[string]any
	switch tt := t.(type) {
	case *Return:
		out = map[string]any{"kind": "return"}
		if tt.Value != nil {
			out["value"] = exprToMap(tt.Value)
		}
	case *BranchIf:
		out = map[string]any{
			"kind":         "branch_if",
			"condition":    exprToMap(tt.Cond),
			"true_target":  tt.True,
			"false_target": tt.False,
		}
	case *Jump:
		out = map[string]any{"kind": "jump", "target": tt.Target}
	case *Switch:
		cases := make([]any, 0, len(tt.Cases))
		for _, c := range tt.Cases {
			cases = append(cases, map[string]any{"value": c.Value, "target": c.Target})
		}
		out = map[string]any{
			"kind":           "switch",
			"selector":       exprToMap(tt.Selector),
			"cases":          cases,
			"default_target": tt.Default,
		}
	case *Unreachable:
		out = map[string]any{"kind": "unreachable"}
	}
	if c := t.Coordinate(); c != "" {
		out["coord"] = c
	}
	return out
}

func exprToMap(e Expr) map[string]any {
	if e == nil {
		return nil
	}
	var out map[string]any
	switch ex := e.(type) {
	case *Variable:
		out = map[string]any{"kind": "variable", "name": ex.Name}
	case *Constant:
		out = map[string]any{"kind": "constant", "const_type": ex.Type, "value": ex.Value}
	case *BinaryOp:
		out = map[string]any{"kind": "binary_op", "op": ex.Op, "left": exprToMap(ex.Left), "right": exprToMap(ex.Right)}
	case *UnaryOp:
		out = map[string]any{"kind": "unary_op", "op": ex.Op, "operand": exprToMap(ex.Operand)}
	case *Load:
		out = map[string]any{"kind": "load", "address": exprToMap(ex.Address)}
	case *Cast:
		out = map[string]any{"kind": "cast", "target_type": ex.TargetType, "operand": exprToMap(ex.Operand)}
	case *Call:
		args := make([]any, 0, len(ex.Args))
		for _, a := range ex.Args {
			args = append(args, exprToMap(a))
		}
		out = map[string]any{"kind": "call", "function_name": ex.Callee, "args": args}
	case *FieldRef:
		out = map[string]any{"kind": "field_ref", "base": exprToMap(ex.Base), "field": ex.Field, "is_arrow": ex.Arrow}
	case *IndexRef:
		out = map[string]any{"kind": "index_ref", "base": exprToMap(ex.Base), "index": exprToMap(ex.Index)}
	default:
		out = map[string]any{"kind": "unknown_expr"}
	}
	return out
}

// DumpSexp 序列化单个函数为 S 表达式
func DumpSexp(f *FuncDef) string {
	var sb strings.Builder
	sb.WriteString("(funcdef (name ")
	sb.WriteString(quote(f.Name))
	sb.WriteString(") (params")
	for _, p := range f.Params {
		fmt.Fprintf(&sb, " (%s %s)", quote(p.Name), quote(p.Type))
	}
	sb.WriteString(") (entry ")
	sb.WriteString(quote(f.Entry))
	sb.WriteString(")")
	for _, name := range f.Order {
		sb.WriteString(" ")
		writeBlockSexp(&sb, f.Blocks[name])
	}
	sb.WriteString(")")
	return sb.String()
}

func writeBlockSexp(sb *strings.Builder, b *BasicBlock) {
	sb.WriteString("(block (name ")
	sb.WriteString(quote(b.Name))
	sb.WriteString(")")
	for _, op := range b.Ops {
		sb.WriteString(" ")
		writeOpSexp(sb, op)
	}
	sb.WriteString(" ")
	writeTermSexp(sb, b.Term)
	sb.WriteString(")")
}

func writeOpSexp(sb *strings.Builder, op Op) {
	switch o := op.(type) {
	case *Assign:
		fmt.Fprintf(sb, "(assign %s %s)", quote(o.Target), ExprSexp(o.Value))
	case *ExprStatement:
		fmt.Fprintf(sb, "(expr-statement %s)", ExprSexp(o.X))
	case *Store:
		fmt.Fprintf(sb, "(store %s %s)", ExprSexp(o.Address), ExprSexp(o.Value))
	case *SemanticOp:
		fmt.Fprintf(sb, "(semantic-op %s %s %s)", o.Kind, quote(o.Subject), quote(o.Call))
	}
}

func writeTermSexp(sb *strings.Builder, t Term) {
	switch tt := t.(type) {
	case *Return:
		if tt.Value == nil {
			sb.WriteString("(return)")
		} else {
			fmt.Fprintf(sb, "(return %s)", ExprSexp(tt.Value))
		}
	case *BranchIf:
		fmt.Fprintf(sb, "(branch-if %s %s %s)", ExprSexp(tt.Cond), quote(tt.True), quote(tt.False))
	case *Jump:
		fmt.Fprintf(sb, "(jump %s)", quote(tt.Target))
	case *Switch:
		fmt.Fprintf(sb, "(switch %s", ExprSexp(tt.Selector))
		for _, c := range tt.Cases {
			fmt.Fprintf(sb, " (case %s %s)", quote(c.Value), quote(c.Target))
		}
		fmt.Fprintf(sb, " (default %s))", quote(tt.Default))
	case *Unreachable:
		sb.WriteString("(unreachable)")
	case nil:
		sb.WriteString("(no-terminator)")
	}
}

// ExprSexp 表达式的 S 表达式形式（调试输出与诊断消息共用）
func ExprSexp(e Expr) string {
	switch ex := e.(type) {
	case nil:
		return "()"
	case *Variable:
		return fmt.Sprintf("(var %s)", quote(ex.Name))
	case *Constant:
		return fmt.Sprintf("(const %s %s)", ex.Type, quote(ex.Value))
	case *BinaryOp:
		return fmt.Sprintf("(binop %s %s %s)", quote(ex.Op), ExprSexp(ex.Left), ExprSexp(ex.Right))
	case *UnaryOp:
		return fmt.Sprintf("(unop %s %s)", quote(ex.Op), ExprSexp(ex.Operand))
	case *Load:
		return fmt.Sprintf("(load %s)", ExprSexp(ex.Address))
	case *Cast:
		return fmt.Sprintf("(cast %s %s)", quote(ex.TargetType), ExprSexp(ex.Operand))
	case *Call:
		var sb strings.Builder
		fmt.Fprintf(&sb, "(call %s", quote(ex.Callee))
		for _, a := range ex.Args {
			sb.WriteString(" ")
			sb.WriteString(ExprSexp(a))
		}
		sb.WriteString(")")
		return sb.String()
	case *FieldRef:
		return fmt.Sprintf("(field %s %s)", ExprSexp(ex.Base), quote(ex.Field))
	case *IndexRef:
		return fmt.Sprintf("(index %s %s)", ExprSexp(ex.Base), ExprSexp(ex.Index))
	default:
		return "(unknown)"
	}
}

func quote(s string) string {
	return `"` + s + `"`
}
