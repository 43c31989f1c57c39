package smt

import (
	"errors"
	"fmt"
	"go/ast"
	"strings"
)

// Chain は複数の Oracle を順に試す Oracle。
// 最初に Sat か Unsat を返したものの結果を使う。
type Chain []Oracle

// Check は先頭の Oracle から順に判定し、決着がついた結果を返す関数。
// すべての Oracle がエラーになったときだけエラーを返す。
func (c Chain) Check(formula ast.Expr, vars []Var) (r Result, err error) {
	var errs []string
	for _, o := range c {
		res, e := o.Check(formula, vars)
		if e != nil {
			errs = append(errs, e.Error())
			continue
		}
		if res != Unknown {
			r = res
			return
		}
	}
	if len(c) > 0 && len(errs) == len(c) {
		err = fmt.Errorf("%w: %s", ErrUnavailable, strings.Join(errs, "; "))
	}
	return
}

// Available は Oracle が使えるかどうかを自明な式で確かめる関数
func Available(o Oracle) (err error) {
	r, err := o.Check(ast.NewIdent("false"), nil)
	if err != nil {
		return
	}
	if r == Sat {
		err = errors.New("oracle claims false is satisfiable")
	}
	return
}
