package smt

import (
	"go/ast"
	"go/constant"
	"sort"

	"github.com/dr-deep/locelim/expr"
)

// DefaultEnumLimit は Enum が調べる値の組み合わせ数の既定の上限
const DefaultEnumLimit = 1 << 16

// Enum は有限な変数の値をすべて試して判定する Oracle。
// 範囲が定数でない変数や double 変数があるとき、組み合わせが Limit を超えるときは Unknown。
type Enum struct {
	Limit int
}

// Check は式の充足可能性を全数探索で判定する関数
func (o Enum) Check(formula ast.Expr, vars []Var) (r Result, err error) {
	limit := o.Limit
	if limit <= 0 {
		limit = DefaultEnumLimit
	}
	decl := map[string]Var{}
	for _, v := range vars {
		decl[v.Name] = v
	}

	var names []string
	for name := range expr.FreeVars(formula) {
		names = append(names, name)
	}
	sort.Strings(names)

	domains := make([][]constant.Value, len(names))
	total := 1
	for i, name := range names {
		v, ok := decl[name]
		if !ok {
			return
		}
		domains[i], ok = domainOf(v, limit)
		if !ok || len(domains[i]) == 0 {
			// 空の範囲は扱わない
			return
		}
		total *= len(domains[i])
		if total > limit {
			return
		}
	}

	env := map[string]constant.Value{}
	undecided := false
	var rec func(i int) bool
	rec = func(i int) bool {
		if i == len(names) {
			v, err := expr.Eval(formula, expr.MapEnv(env))
			if err != nil || v.Kind() != constant.Bool {
				undecided = true
				return false
			}
			return constant.BoolVal(v)
		}
		for _, val := range domains[i] {
			env[names[i]] = val
			if rec(i + 1) {
				return true
			}
		}
		return false
	}
	switch {
	case rec(0):
		r = Sat
	case undecided:
		r = Unknown
	default:
		r = Unsat
	}
	return
}

// domainOf は変数の値の範囲を列挙する関数
func domainOf(v Var, limit int) (r []constant.Value, ok bool) {
	switch v.Type {
	case expr.Bool:
		r = []constant.Value{constant.MakeBool(false), constant.MakeBool(true)}
		ok = true
	case expr.Int:
		if v.Lower == nil || v.Upper == nil {
			return
		}
		lo, lok := expr.Constant(v.Lower)
		hi, hok := expr.Constant(v.Upper)
		if !lok || !hok {
			return
		}
		lo, hi = expr.Normalize(lo), expr.Normalize(hi)
		if lo.Kind() != constant.Int || hi.Kind() != constant.Int {
			return
		}
		l, lexact := constant.Int64Val(lo)
		h, hexact := constant.Int64Val(hi)
		if !lexact || !hexact || h-l >= int64(limit) {
			return
		}
		for n := l; n <= h; n++ {
			r = append(r, constant.MakeInt64(n))
		}
		ok = true
	}
	return
}
