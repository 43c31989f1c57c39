package pcfp

import (
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"sort"
	"strings"

	"github.com/dr-deep/locelim/expr"
	"github.com/dr-deep/locelim/smt"
)

// Location は展開済みの変数 (プログラムカウンタ) の値の組。
// 変更しない値として扱う。等しさは評価済みの値で決まる (Key が同じなら等しい)。
// ゼロ値は変数を一つも展開していない空のロケーション。
type Location struct {
	names []string
	vals  []constant.Value
	key   string
}

// NewLocation は変数名から値への map からロケーションを作成する関数
func NewLocation(m map[string]constant.Value) Location {
	return Location{}.Extend(m)
}

// ParseLocation は "s=2,x=true" の形の文字列からロケーションを作成する関数
func ParseLocation(s string) (l Location, err error) {
	m := map[string]constant.Value{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			err = fmt.Errorf("bad location component %q", part)
			return
		}
		m[strings.TrimSpace(kv[0])], err = parseValue(kv[1])
		if err != nil {
			return
		}
	}
	l = NewLocation(m)
	return
}

// parseValue は定数式の文字列を評価する関数
func parseValue(s string) (v constant.Value, err error) {
	e, err := expr.Parse(strings.TrimSpace(s))
	if err != nil {
		return
	}
	v, ok := expr.Constant(e)
	if !ok {
		err = fmt.Errorf("%q is not a constant", s)
	}
	return
}

func valueString(v constant.Value) string {
	if v.Kind() == constant.Bool {
		if constant.BoolVal(v) {
			return "true"
		}
		return "false"
	}
	return expr.Normalize(v).ExactString()
}

// Extend は m の変数の値を追加 (あるいは上書き) したロケーションを返す関数
func (l Location) Extend(m map[string]constant.Value) Location {
	vals := map[string]constant.Value{}
	for i, n := range l.names {
		vals[n] = l.vals[i]
	}
	for n, v := range m {
		vals[n] = expr.Normalize(v)
	}
	r := Location{}
	for n := range vals {
		r.names = append(r.names, n)
	}
	sort.Strings(r.names)
	parts := make([]string, len(r.names))
	for i, n := range r.names {
		r.vals = append(r.vals, vals[n])
		parts[i] = n + "=" + valueString(vals[n])
	}
	r.key = strings.Join(parts, ",")
	return r
}

// Key はロケーションを識別する文字列
func (l Location) Key() string { return l.key }

func (l Location) String() string { return "{" + l.key + "}" }

// Equal はロケーションが等しいかどうかを調べる関数
func (l Location) Equal(o Location) bool { return l.key == o.key }

// IsEmpty は展開済みの変数がないかどうかを調べる関数
func (l Location) IsEmpty() bool { return len(l.names) == 0 }

// Vars はロケーションの変数名をソートして返す関数
func (l Location) Vars() []string {
	return append([]string(nil), l.names...)
}

// Value は変数の値を返す関数
func (l Location) Value(name string) (v constant.Value, ok bool) {
	i := sort.SearchStrings(l.names, name)
	if i < len(l.names) && l.names[i] == name {
		v, ok = l.vals[i], true
	}
	return
}

// Values は変数名から値への map を返す関数
func (l Location) Values() map[string]constant.Value {
	m := make(map[string]constant.Value, len(l.names))
	for i, n := range l.names {
		m[n] = l.vals[i]
	}
	return m
}

// Subst は変数を値の式に置き換える置換を返す関数
func (l Location) Subst() map[string]ast.Expr {
	m := make(map[string]ast.Expr, len(l.names))
	for i, n := range l.names {
		m[n] = expr.FromValue(l.vals[i])
	}
	return m
}

// Eqs はロケーションを表す条件式 (s == 2 && x == true) を作成する関数
func (l Location) Eqs() ast.Expr {
	var es []ast.Expr
	for i, n := range l.names {
		es = append(es, expr.Eq(expr.Var(n), expr.FromValue(l.vals[i])))
	}
	return expr.Ands(es...)
}

// IsInitial はロケーションの各変数の値が初期値と一致するかどうかを調べる関数。
// 初期値が定数でない変数は一致するとみなす。
// 展開していない変数は見ないので「初期状態かもしれない」の近似になる。
func (l Location) IsInitial(initial map[string]ast.Expr) bool {
	for i, n := range l.names {
		iv, ok := initial[n]
		if !ok || iv == nil {
			continue
		}
		v, ok := expr.Constant(iv)
		if !ok {
			continue
		}
		if (v.Kind() == constant.Bool) != (l.vals[i].Kind() == constant.Bool) {
			return false
		}
		if !constant.Compare(expr.Normalize(v), token.EQL, l.vals[i]) {
			return false
		}
	}
	return true
}

// IsPotentialGoal はロケーションがゴールになりうるかどうかを調べる関数。
// ロケーションの値を代入して変数が残らなければその値を返す。
// 変数が残るときは sat に問い合わせて、Unsat のときだけ false を返す。
func (l Location) IsPotentialGoal(goal ast.Expr, sat func(ast.Expr) (smt.Result, error)) (r bool, err error) {
	g := expr.Simplify(expr.Subst(goal, l.Subst()))
	if v, ok := expr.Constant(g); ok && v.Kind() == constant.Bool {
		r = constant.BoolVal(v)
		return
	}
	r = true
	if sat == nil {
		return
	}
	res, err := sat(g)
	if err != nil {
		return
	}
	r = res != smt.Unsat
	return
}

// Prism はロケーションの PRISM 構文の条件式を作成する関数。primed なら遷移先 (s'=2)。
func (l Location) Prism(primed bool) string {
	var parts []string
	for i, n := range l.names {
		if primed {
			n += "'"
		}
		parts = append(parts, fmt.Sprintf("(%s=%s)", n, expr.Prism(expr.FromValue(l.vals[i]))))
	}
	return strings.Join(parts, " & ")
}
