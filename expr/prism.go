// 式の文字列化 (Golang 構文と PRISM 構文)

package expr

import (
	"bytes"
	"go/ast"
	"go/format"
	"go/token"
	"strings"
)

// Format は式を Golang 構文の文字列にする関数
func Format(expr ast.Expr) string {
	if expr == nil {
		return ""
	}
	buf := new(bytes.Buffer)
	if err := format.Node(buf, token.NewFileSet(), parenthesize(expr)); err != nil {
		return "<" + err.Error() + ">"
	}
	return buf.String()
}

// parenthesize は組み立てた AST の優先順位が文字列でも保たれるように括弧を補う関数
func parenthesize(expr ast.Expr) ast.Expr {
	switch e := expr.(type) {
	case *ast.ParenExpr:
		return parenthesize(e.X)
	case *ast.UnaryExpr:
		x := parenthesize(e.X)
		if _, ok := x.(*ast.BinaryExpr); ok {
			x = &ast.ParenExpr{X: x}
		}
		return &ast.UnaryExpr{Op: e.Op, X: x}
	case *ast.BinaryExpr:
		x, y := parenthesize(e.X), parenthesize(e.Y)
		if b, ok := x.(*ast.BinaryExpr); ok && b.Op.Precedence() < e.Op.Precedence() {
			x = &ast.ParenExpr{X: x}
		}
		if b, ok := y.(*ast.BinaryExpr); ok && b.Op.Precedence() <= e.Op.Precedence() {
			y = &ast.ParenExpr{X: y}
		}
		return &ast.BinaryExpr{X: x, Op: e.Op, Y: y}
	case *ast.CallExpr:
		args := make([]ast.Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = parenthesize(a)
		}
		return &ast.CallExpr{Fun: e.Fun, Args: args}
	}
	return expr
}

// Prism は式を PRISM 構文の文字列にする関数
func Prism(expr ast.Expr) (r string) {
	switch e := expr.(type) {
	case *ast.BasicLit:
		r = e.Value
	case *ast.Ident:
		r = e.Name
	case *ast.ParenExpr:
		r = Prism(e.X)
	case *ast.UnaryExpr:
		op := e.Op.String()
		r = op + prismOperand(e.X)
	case *ast.BinaryExpr:
		if e.Op == token.REM {
			r = "mod(" + Prism(e.X) + ", " + Prism(e.Y) + ")"
			return
		}
		r = prismOperand(e.X) + " " + prismOp(e.Op) + " " + prismOperand(e.Y)
	case *ast.CallExpr:
		name := e.Fun.(*ast.Ident).Name
		switch name {
		case "Implies":
			r = "(" + prismOperand(e.Args[0]) + " => " + prismOperand(e.Args[1]) + ")"
		case "Ite":
			r = "(" + prismOperand(e.Args[0]) + " ? " + prismOperand(e.Args[1]) + " : " + prismOperand(e.Args[2]) + ")"
		default:
			args := make([]string, len(e.Args))
			for i, a := range e.Args {
				args[i] = Prism(a)
			}
			r = name + "(" + strings.Join(args, ", ") + ")"
		}
	default:
		r = Format(expr)
	}
	return
}

// prismOperand は演算子の被演算子を文字列にする関数。
// 優先順位を気にしなくて済むように二項演算は括弧で囲む。
func prismOperand(expr ast.Expr) string {
	expr = unparen(expr)
	if be, ok := expr.(*ast.BinaryExpr); ok && be.Op != token.REM {
		return "(" + Prism(expr) + ")"
	}
	return Prism(expr)
}

func prismOp(op token.Token) (r string) {
	switch op {
	case token.LAND:
		r = "&"
	case token.LOR:
		r = "|"
	case token.EQL:
		r = "="
	default:
		r = op.String()
	}
	return
}
