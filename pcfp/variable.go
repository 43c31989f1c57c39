package pcfp

import (
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"

	"github.com/dr-deep/locelim/expr"
	"github.com/dr-deep/locelim/smt"
)

// ModelType はモデルの種類
type ModelType string

const (
	DTMC ModelType = "dtmc"
	MDP  ModelType = "mdp"
)

// ParseModelType はモデルの種類の文字列をチェックする関数。ctmc などは扱わない。
func ParseModelType(s string) (t ModelType, err error) {
	switch ModelType(s) {
	case DTMC, MDP:
		t = ModelType(s)
	case "":
		t = DTMC
	default:
		err = fmt.Errorf("model type %q is not supported", s)
	}
	return
}

// Variable はプログラムの変数。Lower/Upper は int 変数のときだけ使う。
type Variable struct {
	Name  string
	Type  expr.Type
	Lower ast.Expr
	Upper ast.Expr
	Init  ast.Expr
}

// Constant は未定義の定数 (あとで値を決めるパラメータ)
type Constant struct {
	Name string
	Type expr.Type
}

func (v Variable) smtVar() smt.Var {
	r := smt.Var{Name: v.Name, Type: v.Type}
	if v.Type == expr.Int {
		r.Lower, r.Upper = v.Lower, v.Upper
	}
	return r
}

// Values は変数の取りうる値をすべて返す関数。
// 範囲が定数にならなければ ErrNonConstantBounds。
func (v Variable) Values() (r []constant.Value, err error) {
	switch v.Type {
	case expr.Bool:
		r = []constant.Value{constant.MakeBool(true), constant.MakeBool(false)}
	case expr.Int:
		if v.Lower == nil || v.Upper == nil {
			err = fmt.Errorf("%w: %s has no bounds", ErrNonConstantBounds, v.Name)
			return
		}
		lo, lok := expr.Constant(v.Lower)
		hi, hok := expr.Constant(v.Upper)
		if !lok || !hok {
			err = fmt.Errorf("%w: %s : [%s..%s]", ErrNonConstantBounds, v.Name, expr.Format(v.Lower), expr.Format(v.Upper))
			return
		}
		lo, hi = expr.Normalize(lo), expr.Normalize(hi)
		if lo.Kind() != constant.Int || hi.Kind() != constant.Int {
			err = fmt.Errorf("%w: %s has non-integer bounds", ErrNonConstantBounds, v.Name)
			return
		}
		one := constant.MakeInt64(1)
		for n := lo; constant.Compare(n, token.LEQ, hi); n = constant.BinaryOp(n, token.ADD, one) {
			r = append(r, n)
		}
	default:
		err = fmt.Errorf("%w: %s has type %s", ErrNotUnfoldable, v.Name, v.Type)
	}
	return
}

// subst は変数の範囲と初期値に置換を適用する関数
func (v Variable) subst(m map[string]ast.Expr) Variable {
	if v.Lower != nil {
		v.Lower = expr.Simplify(expr.Subst(v.Lower, m))
	}
	if v.Upper != nil {
		v.Upper = expr.Simplify(expr.Subst(v.Upper, m))
	}
	if v.Init != nil {
		v.Init = expr.Simplify(expr.Subst(v.Init, m))
	}
	return v
}

// Prism は変数宣言の PRISM 構文の文字列を作成する関数
func (v Variable) Prism() string {
	initStr := ""
	if v.Init != nil {
		initStr = " init " + expr.Prism(v.Init)
	}
	switch v.Type {
	case expr.Bool:
		return fmt.Sprintf("%s : bool%s;", v.Name, initStr)
	case expr.Double:
		return fmt.Sprintf("%s : double%s;", v.Name, initStr)
	}
	return fmt.Sprintf("%s : [%s..%s]%s;", v.Name, expr.Prism(v.Lower), expr.Prism(v.Upper), initStr)
}
