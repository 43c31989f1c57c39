// 式の評価

package expr

import (
	"errors"
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"math"
)

// ErrFreeVariable は評価できない変数が式に残っているときのエラー
var ErrFreeVariable = errors.New("free variable")

// Env は変数名から値を引く関数。値がなければ false を返す。
type Env func(name string) (constant.Value, bool)

// MapEnv は map を Env にする関数
func MapEnv(m map[string]constant.Value) Env {
	return func(name string) (v constant.Value, ok bool) {
		v, ok = m[name]
		return
	}
}

// Eval は式を評価する関数。/ は有理数の割り算になる。
func Eval(expr ast.Expr, env Env) (v constant.Value, err error) {
	switch e := expr.(type) {
	case *ast.BasicLit:
		v = constant.MakeFromLiteral(e.Value, e.Kind, 0)
		if v.Kind() == constant.Unknown {
			err = fmt.Errorf("bad literal %s", e.Value)
		}
	case *ast.Ident:
		switch e.Name {
		case "true":
			v = constant.MakeBool(true)
		case "false":
			v = constant.MakeBool(false)
		default:
			var ok bool
			if env != nil {
				v, ok = env(e.Name)
			}
			if !ok {
				err = fmt.Errorf("%w: %s", ErrFreeVariable, e.Name)
			}
		}
	case *ast.ParenExpr:
		v, err = Eval(e.X, env)
	case *ast.UnaryExpr:
		v, err = evalUnary(e, env)
	case *ast.BinaryExpr:
		v, err = evalBinary(e, env)
	case *ast.CallExpr:
		v, err = evalCall(e, env)
	default:
		err = fmt.Errorf("cannot evaluate %T", expr)
	}
	return
}

// Constant は変数を含まない式を定数値に評価する関数
func Constant(expr ast.Expr) (v constant.Value, ok bool) {
	if HasVars(expr) {
		return
	}
	v, err := Eval(expr, nil)
	ok = err == nil
	return
}

// IsFalse は式が変数を含まず false に評価されるかどうかを調べる関数
func IsFalse(expr ast.Expr) bool {
	v, ok := Constant(expr)
	return ok && v.Kind() == constant.Bool && !constant.BoolVal(v)
}

// IsTrue は式が変数を含まず true に評価されるかどうかを調べる関数
func IsTrue(expr ast.Expr) bool {
	v, ok := Constant(expr)
	return ok && v.Kind() == constant.Bool && constant.BoolVal(v)
}

// Normalize は整数になる有理数を整数にする関数
func Normalize(v constant.Value) constant.Value {
	if v.Kind() == constant.Float {
		if iv := constant.ToInt(v); iv.Kind() == constant.Int {
			return iv
		}
	}
	return v
}

func isNumeric(v constant.Value) bool {
	return v.Kind() == constant.Int || v.Kind() == constant.Float
}

func evalUnary(e *ast.UnaryExpr, env Env) (v constant.Value, err error) {
	x, err := Eval(e.X, env)
	if err != nil {
		return
	}
	switch e.Op {
	case token.NOT:
		if x.Kind() != constant.Bool {
			err = fmt.Errorf("! of non-boolean %s", x)
			return
		}
		v = constant.MakeBool(!constant.BoolVal(x))
	case token.SUB, token.ADD:
		if !isNumeric(x) {
			err = fmt.Errorf("%s of non-number %s", e.Op, x)
			return
		}
		v = constant.UnaryOp(e.Op, x, 0)
	default:
		err = fmt.Errorf("unsupported unary operator %s", e.Op)
	}
	return
}

func evalBinary(e *ast.BinaryExpr, env Env) (v constant.Value, err error) {
	// && と || は短絡評価する
	if e.Op == token.LAND || e.Op == token.LOR {
		var x, y constant.Value
		if x, err = evalBool(e.X, env); err != nil {
			return
		}
		if constant.BoolVal(x) == (e.Op == token.LOR) {
			v = x
			return
		}
		if y, err = evalBool(e.Y, env); err != nil {
			return
		}
		v = y
		return
	}

	x, err := Eval(e.X, env)
	if err != nil {
		return
	}
	y, err := Eval(e.Y, env)
	if err != nil {
		return
	}

	switch e.Op {
	case token.EQL, token.NEQ:
		if (x.Kind() == constant.Bool) != (y.Kind() == constant.Bool) {
			err = fmt.Errorf("comparison of %s and %s", x, y)
			return
		}
		v = constant.MakeBool(constant.Compare(x, e.Op, y))
	case token.LSS, token.GTR, token.LEQ, token.GEQ:
		if !isNumeric(x) || !isNumeric(y) {
			err = fmt.Errorf("comparison of %s and %s", x, y)
			return
		}
		v = constant.MakeBool(constant.Compare(x, e.Op, y))
	case token.ADD, token.SUB, token.MUL:
		if !isNumeric(x) || !isNumeric(y) {
			err = fmt.Errorf("arithmetic on %s and %s", x, y)
			return
		}
		v = Normalize(constant.BinaryOp(x, e.Op, y))
	case token.QUO:
		if !isNumeric(x) || !isNumeric(y) {
			err = fmt.Errorf("arithmetic on %s and %s", x, y)
			return
		}
		if constant.Sign(y) == 0 {
			err = fmt.Errorf("division by zero")
			return
		}
		v = Normalize(constant.BinaryOp(x, token.QUO, y))
	case token.REM:
		v, err = evalMod(x, y)
	default:
		err = fmt.Errorf("unsupported binary operator %s", e.Op)
	}
	return
}

func evalBool(expr ast.Expr, env Env) (v constant.Value, err error) {
	v, err = Eval(expr, env)
	if err == nil && v.Kind() != constant.Bool {
		err = fmt.Errorf("non-boolean operand %s", v)
	}
	return
}

// evalMod は PRISM の mod と同じく、結果が負にならない剰余を求める関数
func evalMod(x, y constant.Value) (v constant.Value, err error) {
	x, y = Normalize(x), Normalize(y)
	if x.Kind() != constant.Int || y.Kind() != constant.Int {
		err = fmt.Errorf("mod of non-integers %s, %s", x, y)
		return
	}
	if constant.Sign(y) == 0 {
		err = fmt.Errorf("mod by zero")
		return
	}
	if constant.Sign(y) < 0 {
		y = constant.UnaryOp(token.SUB, y, 0)
	}
	v = constant.BinaryOp(x, token.REM, y)
	if constant.Sign(v) < 0 {
		v = constant.BinaryOp(v, token.ADD, y)
	}
	return
}

func evalCall(e *ast.CallExpr, env Env) (v constant.Value, err error) {
	name := e.Fun.(*ast.Ident).Name
	switch name {
	case "Implies":
		var x constant.Value
		if x, err = evalBool(e.Args[0], env); err != nil {
			return
		}
		if !constant.BoolVal(x) {
			v = constant.MakeBool(true)
			return
		}
		v, err = evalBool(e.Args[1], env)
		return
	case "Ite":
		var c constant.Value
		if c, err = evalBool(e.Args[0], env); err != nil {
			return
		}
		if constant.BoolVal(c) {
			v, err = Eval(e.Args[1], env)
		} else {
			v, err = Eval(e.Args[2], env)
		}
		return
	}

	args := make([]constant.Value, len(e.Args))
	for i, a := range e.Args {
		if args[i], err = Eval(a, env); err != nil {
			return
		}
		if !isNumeric(args[i]) {
			err = fmt.Errorf("%s of non-number %s", name, args[i])
			return
		}
	}

	switch name {
	case "min", "max":
		op := token.LSS
		if name == "max" {
			op = token.GTR
		}
		v = args[0]
		for _, a := range args[1:] {
			if constant.Compare(a, op, v) {
				v = a
			}
		}
	case "floor", "ceil":
		v = roundRat(args[0], name == "ceil")
	case "pow":
		v, err = evalPow(args[0], args[1])
	case "mod":
		v, err = evalMod(args[0], args[1])
	default:
		err = fmt.Errorf("unknown function %s", name)
	}
	return
}

// roundRat は有理数を切り捨て (up なら切り上げ) て整数にする関数
func roundRat(x constant.Value, up bool) constant.Value {
	x = Normalize(x)
	if x.Kind() == constant.Int {
		return x
	}
	num, den := constant.Num(x), constant.Denom(x)
	if num.Kind() != constant.Int {
		f, _ := constant.Float64Val(x)
		if up {
			return constant.MakeInt64(int64(math.Ceil(f)))
		}
		return constant.MakeInt64(int64(math.Floor(f)))
	}
	// QUO_ASSIGN は整数の割り算 (0 方向への切り捨て)
	q := constant.BinaryOp(num, token.QUO_ASSIGN, den)
	if constant.Sign(x) < 0 && !up {
		q = constant.BinaryOp(q, token.SUB, constant.MakeInt64(1))
	}
	if constant.Sign(x) > 0 && up {
		q = constant.BinaryOp(q, token.ADD, constant.MakeInt64(1))
	}
	return q
}

func evalPow(x, y constant.Value) (v constant.Value, err error) {
	x, y = Normalize(x), Normalize(y)
	if y.Kind() == constant.Int {
		if n, exact := constant.Int64Val(y); exact && n >= 0 && n <= 64 {
			v = constant.MakeInt64(1)
			for i := int64(0); i < n; i++ {
				v = constant.BinaryOp(v, token.MUL, x)
			}
			v = Normalize(v)
			return
		}
	}
	fx, _ := constant.Float64Val(x)
	fy, _ := constant.Float64Val(y)
	f := math.Pow(fx, fy)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		err = fmt.Errorf("pow(%s, %s) is not a number", x, y)
		return
	}
	v = constant.MakeFloat64(f)
	return
}
