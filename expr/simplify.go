// 式の簡約化

package expr

import (
	"go/ast"
	"go/constant"
	"go/token"
)

// Simplify は式を簡約化する関数。
// 変数を含まない部分式は定数に畳み込み、自明な恒等式 (x && true, x * 1 など) を消す。
// 評価できない部分式 (0 除算など) はそのまま残す。
func Simplify(expr ast.Expr) (r ast.Expr) {
	switch e := expr.(type) {
	case *ast.BasicLit:
		r = fold(e)
	case *ast.Ident:
		r = e
	case *ast.ParenExpr:
		r = Simplify(e.X)
	case *ast.UnaryExpr:
		r = simplifyUnary(&ast.UnaryExpr{Op: e.Op, X: Simplify(e.X)})
	case *ast.BinaryExpr:
		r = simplifyBinary(&ast.BinaryExpr{X: Simplify(e.X), Op: e.Op, Y: Simplify(e.Y)})
	case *ast.CallExpr:
		args := make([]ast.Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = Simplify(a)
		}
		r = simplifyCall(&ast.CallExpr{Fun: e.Fun, Args: args})
	default:
		r = expr
	}
	return
}

// fold は変数を含まない式を定数の AST にする関数。評価できなければそのまま返す。
func fold(expr ast.Expr) ast.Expr {
	if v, ok := Constant(expr); ok {
		return FromValue(v)
	}
	return expr
}

// constOf は式が定数ならその値を返す関数
func constOf(expr ast.Expr) (v constant.Value, ok bool) {
	return Constant(expr)
}

func isNum(expr ast.Expr, n int64) bool {
	v, ok := constOf(expr)
	return ok && isNumeric(v) && constant.Compare(v, token.EQL, constant.MakeInt64(n))
}

func isBoolConst(expr ast.Expr) (b, ok bool) {
	v, ok := constOf(expr)
	if !ok || v.Kind() != constant.Bool {
		return false, false
	}
	return constant.BoolVal(v), true
}

func simplifyUnary(e *ast.UnaryExpr) ast.Expr {
	if !HasVars(e) {
		return fold(e)
	}
	switch e.Op {
	case token.NOT:
		// !!x => x
		if inner, ok := e.X.(*ast.UnaryExpr); ok && inner.Op == token.NOT {
			return inner.X
		}
		if be, ok := e.X.(*ast.BinaryExpr); ok {
			if op, ok := negatedComparison[be.Op]; ok {
				return &ast.BinaryExpr{X: be.X, Op: op, Y: be.Y}
			}
		}
	case token.ADD:
		return e.X
	case token.SUB:
		if inner, ok := e.X.(*ast.UnaryExpr); ok && inner.Op == token.SUB {
			return inner.X
		}
	}
	return e
}

var negatedComparison = map[token.Token]token.Token{
	token.EQL: token.NEQ,
	token.NEQ: token.EQL,
	token.LSS: token.GEQ,
	token.GEQ: token.LSS,
	token.GTR: token.LEQ,
	token.LEQ: token.GTR,
}

func simplifyBinary(e *ast.BinaryExpr) ast.Expr {
	if !HasVars(e) {
		return fold(e)
	}
	x, y := e.X, e.Y
	switch e.Op {
	case token.LAND:
		if b, ok := isBoolConst(x); ok {
			if b {
				return y
			}
			return False()
		}
		if b, ok := isBoolConst(y); ok {
			if b {
				return x
			}
			return False()
		}
		if Equals(x, y) {
			return x
		}
	case token.LOR:
		if b, ok := isBoolConst(x); ok {
			if b {
				return True()
			}
			return y
		}
		if b, ok := isBoolConst(y); ok {
			if b {
				return True()
			}
			return x
		}
		if Equals(x, y) {
			return x
		}
	case token.MUL:
		if isNum(x, 0) || isNum(y, 0) {
			return IntLit(0)
		}
		if isNum(x, 1) {
			return y
		}
		if isNum(y, 1) {
			return x
		}
	case token.ADD:
		if isNum(x, 0) {
			return y
		}
		if isNum(y, 0) {
			return x
		}
		return mergeOffsets(e)
	case token.SUB:
		if isNum(y, 0) {
			return x
		}
		if Equals(x, y) {
			return IntLit(0)
		}
		return mergeOffsets(e)
	case token.QUO:
		if isNum(y, 1) {
			return x
		}
	case token.EQL:
		if Equals(x, y) {
			return True()
		}
		if b, ok := isBoolConst(y); ok {
			if b {
				return x
			}
			return simplifyUnary(&ast.UnaryExpr{Op: token.NOT, X: x})
		}
		if b, ok := isBoolConst(x); ok {
			if b {
				return y
			}
			return simplifyUnary(&ast.UnaryExpr{Op: token.NOT, X: y})
		}
	case token.NEQ:
		if Equals(x, y) {
			return False()
		}
	case token.LEQ, token.GEQ:
		if Equals(x, y) {
			return True()
		}
	case token.LSS, token.GTR:
		if Equals(x, y) {
			return False()
		}
	}
	return e
}

// mergeOffsets は (x + c1) + c2 のような定数の足し引きをまとめる関数
func mergeOffsets(e *ast.BinaryExpr) ast.Expr {
	c2, ok := constOf(e.Y)
	if !ok || !isNumeric(c2) {
		return e
	}
	inner, ok := e.X.(*ast.BinaryExpr)
	if !ok || (inner.Op != token.ADD && inner.Op != token.SUB) {
		return e
	}
	c1, ok := constOf(inner.Y)
	if !ok || !isNumeric(c1) {
		return e
	}
	// x op1 c1 op2 c2 = x + (±c1 ± c2)
	if inner.Op == token.SUB {
		c1 = constant.UnaryOp(token.SUB, c1, 0)
	}
	if e.Op == token.SUB {
		c2 = constant.UnaryOp(token.SUB, c2, 0)
	}
	sum := Normalize(constant.BinaryOp(c1, token.ADD, c2))
	switch constant.Sign(sum) {
	case 0:
		return inner.X
	case -1:
		return &ast.BinaryExpr{X: inner.X, Op: token.SUB, Y: FromValue(constant.UnaryOp(token.SUB, sum, 0))}
	}
	return &ast.BinaryExpr{X: inner.X, Op: token.ADD, Y: FromValue(sum)}
}

func simplifyCall(e *ast.CallExpr) ast.Expr {
	if !HasVars(e) {
		return fold(e)
	}
	switch e.Fun.(*ast.Ident).Name {
	case "Implies":
		x, y := e.Args[0], e.Args[1]
		if b, ok := isBoolConst(x); ok {
			if b {
				return y
			}
			return True()
		}
		if b, ok := isBoolConst(y); ok {
			if b {
				return True()
			}
			return simplifyUnary(&ast.UnaryExpr{Op: token.NOT, X: x})
		}
	case "Ite":
		if b, ok := isBoolConst(e.Args[0]); ok {
			if b {
				return e.Args[1]
			}
			return e.Args[2]
		}
		if Equals(e.Args[1], e.Args[2]) {
			return e.Args[1]
		}
	}
	return e
}
