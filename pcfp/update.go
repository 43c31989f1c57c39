// 更新 (同時代入) と最弱事前条件

package pcfp

import (
	"fmt"
	"go/ast"
	"go/constant"
	"strings"

	"github.com/dr-deep/locelim/expr"
)

// Assignment は一つの代入 Var' = Expr
type Assignment struct {
	Var  string
	Expr ast.Expr
}

// Update は同時代入の集合。一つの変数には高々一回しか代入しない。
// 右辺はすべて更新前の値で評価する。
type Update struct {
	assigns []Assignment
}

// NewUpdate は代入のリストから Update を作成する関数。
// 同じ変数への代入が二つ以上あれば ErrInvalidUpdate。
func NewUpdate(assigns ...Assignment) (u Update, err error) {
	seen := map[string]bool{}
	for _, a := range assigns {
		if seen[a.Var] {
			err = fmt.Errorf("%w: %s is assigned twice", ErrInvalidUpdate, a.Var)
			return
		}
		seen[a.Var] = true
	}
	u.assigns = append([]Assignment(nil), assigns...)
	return
}

// Assignments は代入のリストのコピーを返す関数
func (u Update) Assignments() []Assignment {
	return append([]Assignment(nil), u.assigns...)
}

// Len は代入の数を返す関数
func (u Update) Len() int { return len(u.assigns) }

// Get は変数 name への代入の右辺を返す関数
func (u Update) Get(name string) (e ast.Expr, ok bool) {
	for _, a := range u.assigns {
		if a.Var == name {
			e, ok = a.Expr, true
			return
		}
	}
	return
}

// Map は変数名から右辺への map を返す関数
func (u Update) Map() map[string]ast.Expr {
	m := make(map[string]ast.Expr, len(u.assigns))
	for _, a := range u.assigns {
		m[a.Var] = a.Expr
	}
	return m
}

// WP は事後条件 post に対する最弱事前条件を求める関数。
// 左辺の変数を右辺の式で一度だけ置換して簡約化する。
func (u Update) WP(post ast.Expr) ast.Expr {
	m := map[string]ast.Expr{}
	for _, a := range u.assigns {
		// 左辺と右辺が同じ代入は置換しなくてよい
		if id, ok := a.Expr.(*ast.Ident); ok && id.Name == a.Var {
			continue
		}
		m[a.Var] = a.Expr
	}
	return expr.Simplify(expr.Subst(post, m))
}

// After は other を実行した後に u を実行する更新を求める関数。
// other の代入から始めて、u の右辺を other で置換したものを上書き・追加する。
func (u Update) After(other Update) (r Update) {
	// 冪等な更新を続けて実行しても一回と同じ
	if u.Equal(other) && u.IsIdempotent() {
		r.assigns = append([]Assignment(nil), u.assigns...)
		return
	}
	m := other.Map()
	r.assigns = append([]Assignment(nil), other.assigns...)
	for _, a := range u.assigns {
		rhs := expr.Simplify(expr.Subst(a.Expr, m))
		replaced := false
		for i := range r.assigns {
			if r.assigns[i].Var == a.Var {
				r.assigns[i].Expr = rhs
				replaced = true
				break
			}
		}
		if !replaced {
			r.assigns = append(r.assigns, Assignment{Var: a.Var, Expr: rhs})
		}
	}
	return
}

// RemoveVariables は subs のキーの変数への代入を取り除き、
// 残った右辺に subs を代入する関数。変数を展開するときに使う。
func (u Update) RemoveVariables(subs map[string]ast.Expr) (r Update) {
	for _, a := range u.assigns {
		if _, ok := subs[a.Var]; ok {
			continue
		}
		r.assigns = append(r.assigns, Assignment{Var: a.Var, Expr: expr.Simplify(expr.Subst(a.Expr, subs))})
	}
	return
}

// Subst はすべての右辺に置換を適用する関数
func (u Update) Subst(m map[string]ast.Expr) (r Update) {
	for _, a := range u.assigns {
		r.assigns = append(r.assigns, Assignment{Var: a.Var, Expr: expr.Simplify(expr.Subst(a.Expr, m))})
	}
	return
}

// Evaluate は vals の変数の更新後の値を求める関数。
// 代入のない変数は値が変わらない。右辺が vals だけで評価できなければエラー。
func (u Update) Evaluate(vals map[string]constant.Value) (r map[string]constant.Value, err error) {
	r = make(map[string]constant.Value, len(vals))
	for name, v := range vals {
		rhs, ok := u.Get(name)
		if !ok {
			r[name] = v
			continue
		}
		var nv constant.Value
		nv, err = expr.Eval(rhs, expr.MapEnv(vals))
		if err != nil {
			err = fmt.Errorf("%w: %s' = %s: %v", ErrNotUnfoldable, name, expr.Format(rhs), err)
			return
		}
		r[name] = expr.Normalize(nv)
	}
	return
}

// IsNop は代入が一つもないかどうかを調べる関数
func (u Update) IsNop() bool { return len(u.assigns) == 0 }

// IsIdentity はすべての代入が x' = x の形かどうかを調べる関数
func (u Update) IsIdentity() bool {
	for _, a := range u.assigns {
		if !expr.Equals(expr.Simplify(a.Expr), expr.Var(a.Var)) {
			return false
		}
	}
	return true
}

// IsIdempotent は代入される変数がどの右辺にも出てこないかどうかを調べる関数。
// そうなら二回続けて実行しても一回と同じ。
func (u Update) IsIdempotent() bool {
	lhs := map[string]bool{}
	for _, a := range u.assigns {
		lhs[a.Var] = true
	}
	for _, a := range u.assigns {
		if expr.ContainsVar(a.Expr, lhs) {
			return false
		}
	}
	return true
}

// Equal は二つの更新が (順序を無視して) 同じ代入からなるかどうかを調べる関数
func (u Update) Equal(o Update) bool {
	if len(u.assigns) != len(o.assigns) {
		return false
	}
	for _, a := range u.assigns {
		e, ok := o.Get(a.Var)
		if !ok || !expr.Equals(a.Expr, e) {
			return false
		}
	}
	return true
}

// Prism は更新の PRISM 構文の文字列を作成する関数。代入がなければ空文字列。
func (u Update) Prism() string {
	parts := make([]string, len(u.assigns))
	for i, a := range u.assigns {
		parts[i] = fmt.Sprintf("(%s'=%s)", a.Var, expr.Prism(a.Expr))
	}
	return strings.Join(parts, " & ")
}

func (u Update) String() string {
	parts := make([]string, len(u.assigns))
	for i, a := range u.assigns {
		parts[i] = a.Var + "' = " + expr.Format(a.Expr)
	}
	return strings.Join(parts, ", ")
}
