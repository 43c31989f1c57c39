// 式の文字列から AST への変換

package expr

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
)

// Type は変数・定数の型
type Type int

const (
	Int Type = iota
	Bool
	Double
)

func (t Type) String() string {
	switch t {
	case Int:
		return "int"
	case Bool:
		return "bool"
	case Double:
		return "double"
	}
	return "unknown"
}

// ParseType は型名の文字列から Type を得る関数
func ParseType(s string) (t Type, err error) {
	switch s {
	case "int", "":
		t = Int
	case "bool":
		t = Bool
	case "double":
		t = Double
	default:
		err = fmt.Errorf("unknown type: %s", s)
	}
	return
}

// 式の中で使える組み込み関数と引数の個数 (-1 は可変長)
var builtins = map[string]int{
	"Implies": 2,
	"Ite":     3,
	"min":     -1,
	"max":     -1,
	"floor":   1,
	"ceil":    1,
	"pow":     2,
	"mod":     2,
}

// Parse は Golang 構文の式の文字列をパースする関数。
// 使える構文は validate で制限する。
func Parse(s string) (r ast.Expr, err error) {
	r, err = parser.ParseExpr(s)
	if err != nil {
		err = fmt.Errorf("parse %q: %w", s, err)
		return
	}
	err = validate(r)
	if err != nil {
		err = fmt.Errorf("parse %q: %w", s, err)
		r = nil
	}
	return
}

// MustParse は Parse に失敗したら panic する関数。テストと固定式用。
func MustParse(s string) ast.Expr {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// validate は式が扱える構文だけでできているかチェックする関数
func validate(expr ast.Expr) (err error) {
	switch e := expr.(type) {
	case *ast.BasicLit:
		if e.Kind != token.INT && e.Kind != token.FLOAT {
			err = fmt.Errorf("unsupported literal %s", e.Value)
		}
	case *ast.Ident:
	case *ast.ParenExpr:
		err = validate(e.X)
	case *ast.UnaryExpr:
		switch e.Op {
		case token.NOT, token.SUB, token.ADD:
		default:
			err = fmt.Errorf("unsupported unary operator %s", e.Op)
			return
		}
		err = validate(e.X)
	case *ast.BinaryExpr:
		switch e.Op {
		case token.ADD, token.SUB, token.MUL, token.QUO, token.REM,
			token.LAND, token.LOR,
			token.EQL, token.NEQ, token.LSS, token.GTR, token.LEQ, token.GEQ:
		default:
			err = fmt.Errorf("unsupported binary operator %s", e.Op)
			return
		}
		if err = validate(e.X); err != nil {
			return
		}
		err = validate(e.Y)
	case *ast.CallExpr:
		ident, ok := e.Fun.(*ast.Ident)
		if !ok {
			err = fmt.Errorf("call of non-identifier")
			return
		}
		n, ok := builtins[ident.Name]
		if !ok {
			err = fmt.Errorf("unknown function %s", ident.Name)
			return
		}
		if (n >= 0 && len(e.Args) != n) || (n < 0 && len(e.Args) == 0) {
			err = fmt.Errorf("%s: wrong number of arguments (%d)", ident.Name, len(e.Args))
			return
		}
		for _, a := range e.Args {
			if err = validate(a); err != nil {
				return
			}
		}
	default:
		err = fmt.Errorf("unsupported expression %T", expr)
	}
	return
}
