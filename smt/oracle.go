// 充足可能性判定のインタフェース

package smt

import (
	"errors"
	"go/ast"

	"github.com/dr-deep/locelim/expr"
)

// Result は充足可能性判定の結果
type Result int

const (
	Unknown Result = iota
	Sat
	Unsat
)

func (r Result) String() string {
	switch r {
	case Sat:
		return "sat"
	case Unsat:
		return "unsat"
	}
	return "unknown"
}

// ErrUnavailable は判定器が使えない (起動できない、応答が壊れている) ときのエラー
var ErrUnavailable = errors.New("sat oracle unavailable")

// Var は判定式に出てくる変数の宣言。
// Lower/Upper は int 変数の範囲で、nil なら範囲の制約なし。
type Var struct {
	Name  string
	Type  expr.Type
	Lower ast.Expr
	Upper ast.Expr
}

// Oracle は式の充足可能性を判定するもの。
// Unsat のときだけ「絶対に成り立たない」ことを意味する。
type Oracle interface {
	Check(formula ast.Expr, vars []Var) (Result, error)
}

// boundsFormula は変数の範囲制約の式を作る関数
func boundsFormula(vars []Var) (r []ast.Expr) {
	for _, v := range vars {
		if v.Type != expr.Int {
			continue
		}
		if v.Lower != nil {
			r = append(r, expr.Leq(v.Lower, expr.Var(v.Name)))
		}
		if v.Upper != nil {
			r = append(r, expr.Leq(expr.Var(v.Name), v.Upper))
		}
	}
	return
}

// WithBounds は式に変数の範囲制約を And でつなげる関数
func WithBounds(formula ast.Expr, vars []Var) ast.Expr {
	return expr.Ands(append(boundsFormula(vars), formula)...)
}
