package expr

import (
	"go/ast"
	"go/constant"
	"go/token"
)

// And は And 条件式の AST を作成する関数
func And(expr1, expr2 ast.Expr) (r ast.Expr) {
	r = &ast.BinaryExpr{
		X:  expr1,
		Op: token.LAND,
		Y:  expr2,
	}
	return
}

// Ands は複数の条件式の And を作成する関数。空なら true。
func Ands(exprs ...ast.Expr) (r ast.Expr) {
	if len(exprs) == 0 {
		return True()
	}
	r = exprs[0]
	for _, e := range exprs[1:] {
		r = And(r, e)
	}
	return
}

// Or は OR 条件式の AST を作成する関数
func Or(expr1, expr2 ast.Expr) (r ast.Expr) {
	r = &ast.BinaryExpr{
		X:  expr1,
		Op: token.LOR,
		Y:  expr2,
	}
	return
}

// Not は条件式の Not の AST を作成する関数
func Not(expr ast.Expr) (r ast.Expr) {
	r = &ast.UnaryExpr{
		Op: token.NOT,
		X:  expr,
	}
	return
}

// Implies は => 式の AST を作成する関数
func Implies(expr1, expr2 ast.Expr) (r ast.Expr) {
	r = &ast.CallExpr{
		Fun: ast.NewIdent("Implies"),
		Args: []ast.Expr{
			expr1,
			expr2,
		},
	}
	return
}

// Binary は二項演算の AST を作成する関数
func Binary(x ast.Expr, op token.Token, y ast.Expr) ast.Expr {
	return &ast.BinaryExpr{X: x, Op: op, Y: y}
}

func Eq(x, y ast.Expr) ast.Expr  { return Binary(x, token.EQL, y) }
func Leq(x, y ast.Expr) ast.Expr { return Binary(x, token.LEQ, y) }
func Geq(x, y ast.Expr) ast.Expr { return Binary(x, token.GEQ, y) }
func Mul(x, y ast.Expr) ast.Expr { return Binary(x, token.MUL, y) }

// Var は変数の Ident を作成する関数
func Var(name string) ast.Expr {
	return ast.NewIdent(name)
}

func True() ast.Expr  { return ast.NewIdent("true") }
func False() ast.Expr { return ast.NewIdent("false") }

// IntLit は整数定数の AST を作成する関数
func IntLit(n int64) ast.Expr {
	return FromValue(constant.MakeInt64(n))
}

// FromValue は定数値から AST を作成する関数。
// 整数にならない有理数は n/d の形にする。
func FromValue(v constant.Value) (r ast.Expr) {
	switch v.Kind() {
	case constant.Bool:
		if constant.BoolVal(v) {
			r = True()
		} else {
			r = False()
		}
	case constant.Int:
		r = intLit(v)
	case constant.Float:
		if iv := constant.ToInt(v); iv.Kind() == constant.Int {
			r = intLit(iv)
			return
		}
		num, den := constant.Num(v), constant.Denom(v)
		if num.Kind() != constant.Int || den.Kind() != constant.Int {
			// 有理数で表せない値 (pow の結果など)
			f, _ := constant.Float64Val(v)
			r = &ast.BasicLit{Kind: token.FLOAT, Value: constant.MakeFloat64(f).String()}
			return
		}
		r = &ast.BinaryExpr{X: intLit(num), Op: token.QUO, Y: intLit(den)}
	default:
		r = &ast.BasicLit{Kind: token.INT, Value: v.ExactString()}
	}
	return
}

func intLit(v constant.Value) ast.Expr {
	if constant.Sign(v) < 0 {
		return &ast.UnaryExpr{
			Op: token.SUB,
			X:  &ast.BasicLit{Kind: token.INT, Value: constant.UnaryOp(token.SUB, v, 0).ExactString()},
		}
	}
	return &ast.BasicLit{Kind: token.INT, Value: v.ExactString()}
}
