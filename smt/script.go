// Golang AST の式から SMT LIB Language 仕様への変換

package smt

import (
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"sort"
	"strings"

	"github.com/dr-deep/locelim/expr"
)

// MakeScript は判定式と変数宣言から SMT LIB Language 仕様のスクリプトを作成する関数。
// 変数の範囲制約も assert する。宣言のない自由変数は int として宣言する。
func MakeScript(formula ast.Expr, vars []Var) (r string, err error) {
	types := map[string]expr.Type{}
	for _, v := range vars {
		types[v.Name] = v.Type
	}
	full := WithBounds(formula, vars)
	var names []string
	for name := range expr.FreeVars(full) {
		if _, ok := types[name]; !ok {
			types[name] = expr.Int
		}
		names = append(names, name)
	}
	sort.Strings(names)

	c := converter{types: types}
	body := c.conv(full)
	if c.err != nil {
		err = c.err
		return
	}

	var tmp []string
	tmp = append(tmp, "(set-logic ALL)")
	for _, name := range names {
		tmp = append(tmp, fmt.Sprintf("(declare-const %s %s)", name, convType(types[name])))
	}
	tmp = append(tmp, fmt.Sprintf("(assert %s)", body))
	tmp = append(tmp, "(check-sat)")
	r = strings.Join(tmp, "\n") + "\n"
	// [MEMO] 末尾の LF がないと z3 がうまく読まないことがあった。
	return
}

// convType は型名変換する関数
func convType(t expr.Type) (r string) {
	switch t {
	case expr.Int:
		r = "Int"
	case expr.Bool:
		r = "Bool"
	case expr.Double:
		r = "Real"
	default:
		r = "unknown"
	}
	return
}

// convOp は Golang の演算子を SMT LIB Language 仕様の演算子名に変換する関数
func convOp(op token.Token) (r string) {
	switch op {
	case token.ADD:
		r = "+"
	case token.SUB:
		r = "-"
	case token.MUL:
		r = "*"
	case token.QUO:
		r = "/"
	case token.REM:
		r = "mod"
	case token.LAND:
		r = "and"
	case token.LOR:
		r = "or"
	case token.NOT:
		r = "not"
	case token.EQL, token.NEQ:
		r = "="
	case token.LSS:
		r = "<"
	case token.GTR:
		r = ">"
	case token.LEQ:
		r = "<="
	case token.GEQ:
		r = ">="
	default:
		r = "unknown"
	}
	return
}

// converter は式の変換で使う変数の型表。
// 整数と実数が混ざる箇所では to_real を挟む。
type converter struct {
	types map[string]expr.Type
	err   error
}

// sortOf は式の SMT のソートを推定する関数
func (c *converter) sortOf(e ast.Expr) expr.Type {
	switch x := e.(type) {
	case *ast.BasicLit:
		if x.Kind == token.FLOAT {
			return expr.Double
		}
		return expr.Int
	case *ast.Ident:
		if x.Name == "true" || x.Name == "false" {
			return expr.Bool
		}
		return c.types[x.Name]
	case *ast.ParenExpr:
		return c.sortOf(x.X)
	case *ast.UnaryExpr:
		if x.Op == token.NOT {
			return expr.Bool
		}
		return c.sortOf(x.X)
	case *ast.BinaryExpr:
		switch x.Op {
		case token.LAND, token.LOR, token.EQL, token.NEQ, token.LSS, token.GTR, token.LEQ, token.GEQ:
			return expr.Bool
		case token.QUO:
			return expr.Double
		case token.REM:
			return expr.Int
		}
		if c.sortOf(x.X) == expr.Double || c.sortOf(x.Y) == expr.Double {
			return expr.Double
		}
		return expr.Int
	case *ast.CallExpr:
		switch x.Fun.(*ast.Ident).Name {
		case "Implies":
			return expr.Bool
		case "floor", "ceil", "mod":
			return expr.Int
		case "Ite":
			return c.joinSort(x.Args[1:])
		case "pow":
			return c.joinSort(x.Args)
		default:
			return c.joinSort(x.Args)
		}
	}
	return expr.Int
}

func (c *converter) joinSort(args []ast.Expr) expr.Type {
	t := c.sortOf(args[0])
	for _, a := range args[1:] {
		if s := c.sortOf(a); s == expr.Double {
			t = s
		}
	}
	return t
}

// real は実数が必要な箇所で式を実数として変換する関数
func (c *converter) real(e ast.Expr) string {
	s := c.conv(e)
	if c.sortOf(e) == expr.Int {
		return fmt.Sprintf("(to_real %s)", s)
	}
	return s
}

// operands は二項演算の両辺を変換する関数。どちらかが実数なら両方実数にする。
func (c *converter) operands(x, y ast.Expr) (string, string) {
	if c.sortOf(x) == expr.Double || c.sortOf(y) == expr.Double {
		return c.real(x), c.real(y)
	}
	return c.conv(x), c.conv(y)
}

// conv は Golang の式の AST を SMT LIB Language 仕様の式のコードに変換する関数
func (c *converter) conv(e ast.Expr) (r string) {
	switch x := e.(type) {
	case *ast.BasicLit:
		r = x.Value
		if x.Kind == token.FLOAT {
			// 1e-3 のような表記は SMT LIB にないので有理数にする
			v := constant.MakeFromLiteral(x.Value, x.Kind, 0)
			num, den := constant.Num(v), constant.Denom(v)
			if num.Kind() == constant.Int && den.Kind() == constant.Int {
				r = fmt.Sprintf("(/ %s.0 %s.0)", num.ExactString(), den.ExactString())
			}
		}
	case *ast.Ident:
		r = x.Name
	case *ast.ParenExpr:
		// [MEMO] 余計な括弧があると z3 はエラーになるので中身だけ出す。
		r = c.conv(x.X)
	case *ast.UnaryExpr:
		switch x.Op {
		case token.ADD:
			r = c.conv(x.X)
		default:
			r = fmt.Sprintf("(%s %s)", convOp(x.Op), c.conv(x.X))
		}
	case *ast.BinaryExpr:
		var a, b string
		switch x.Op {
		case token.QUO:
			a, b = c.real(x.X), c.real(x.Y)
		case token.LAND, token.LOR:
			a, b = c.conv(x.X), c.conv(x.Y)
		default:
			a, b = c.operands(x.X, x.Y)
		}
		r = fmt.Sprintf("(%s %s %s)", convOp(x.Op), a, b)
		if x.Op == token.NEQ {
			r = fmt.Sprintf("(not %s)", r)
		}
	case *ast.CallExpr:
		r = c.convCall(x)
	default:
		c.err = fmt.Errorf("cannot convert %T to smt-lib", e)
	}
	return
}

func (c *converter) convCall(x *ast.CallExpr) (r string) {
	name := x.Fun.(*ast.Ident).Name
	switch name {
	case "Implies":
		r = fmt.Sprintf("(=> %s %s)", c.conv(x.Args[0]), c.conv(x.Args[1]))
	case "Ite":
		a, b := c.operands(x.Args[1], x.Args[2])
		r = fmt.Sprintf("(ite %s %s %s)", c.conv(x.Args[0]), a, b)
	case "min", "max":
		op := "<="
		if name == "max" {
			op = ">="
		}
		isReal := c.joinSort(x.Args) == expr.Double
		arg := func(e ast.Expr) string {
			if isReal {
				return c.real(e)
			}
			return c.conv(e)
		}
		r = arg(x.Args[0])
		for _, a := range x.Args[1:] {
			s := arg(a)
			r = fmt.Sprintf("(ite (%s %s %s) %s %s)", op, r, s, r, s)
		}
	case "floor":
		r = fmt.Sprintf("(to_int %s)", c.real(x.Args[0]))
	case "ceil":
		r = fmt.Sprintf("(- (to_int (- %s)))", c.real(x.Args[0]))
	case "mod":
		r = fmt.Sprintf("(mod %s %s)", c.conv(x.Args[0]), c.conv(x.Args[1]))
	case "pow":
		// 指数が定数の自然数のときだけ掛け算に展開する
		if n, ok := expr.Constant(x.Args[1]); ok && expr.Normalize(n).Kind() == constant.Int {
			k, exact := constant.Int64Val(expr.Normalize(n))
			if !exact || k < 0 || k > 16 {
				c.err = fmt.Errorf("pow with exponent %s", n)
				return
			}
			if k == 0 {
				r = "1"
				return
			}
			b := c.conv(x.Args[0])
			r = b
			for i := int64(1); i < k; i++ {
				r = fmt.Sprintf("(* %s %s)", r, b)
			}
			return
		}
		c.err = fmt.Errorf("pow with non-constant exponent")
	default:
		c.err = fmt.Errorf("unknown function %s", name)
	}
	return
}
