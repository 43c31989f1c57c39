package pcfp

import (
	"fmt"
	"go/ast"
	"go/constant"
	"strings"

	"github.com/dr-deep/locelim/expr"
)

// Destination はコマンドの確率的な分岐の一つ
type Destination struct {
	Prob   ast.Expr
	Update Update
	Target Location
}

// Command はガード付きの確率的な遷移。
// プログラムに追加したあとは変更しない。変形するときは新しいコマンドを作る。
type Command struct {
	Label  string
	Source Location
	Guard  ast.Expr
	Dests  []Destination
}

// HasSelfloop は遷移先が遷移元と同じ分岐があるかどうかを調べる関数
func (c *Command) HasSelfloop() bool {
	for _, d := range c.Dests {
		if d.Target.Equal(c.Source) {
			return true
		}
	}
	return false
}

// HasOnlySelfloops はすべての分岐の遷移先が遷移元と同じかどうかを調べる関数
func (c *Command) HasOnlySelfloops() bool {
	for _, d := range c.Dests {
		if !d.Target.Equal(c.Source) {
			return false
		}
	}
	return true
}

// nopSelfloops は値を変えない自己ループの分岐の添字を返す関数
func (c *Command) nopSelfloops() (r []int) {
	for i, d := range c.Dests {
		if d.Target.Equal(c.Source) && d.Update.IsIdentity() {
			r = append(r, i)
		}
	}
	return
}

func (d Destination) equal(o Destination) bool {
	return d.Target.Equal(o.Target) && expr.Equals(d.Prob, o.Prob) && d.Update.Equal(o.Update)
}

// EqualExceptGuard はガード以外が同じコマンドかどうかを調べる関数。
// 分岐は順序を無視して多重集合として比べる。
func (c *Command) EqualExceptGuard(o *Command) bool {
	if c.Label != o.Label || !c.Source.Equal(o.Source) || len(c.Dests) != len(o.Dests) {
		return false
	}
	used := make([]bool, len(o.Dests))
	for _, d := range c.Dests {
		found := false
		for j, od := range o.Dests {
			if !used[j] && d.equal(od) {
				used[j], found = true, true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// unfold は変数 name の値を val に固定したコマンドを作成する関数。
// 遷移先のロケーションには代入後の値を入れる。ガードが false になれば nil を返す。
func (c *Command) unfold(name string, val constant.Value) (r *Command, err error) {
	subs := map[string]ast.Expr{name: expr.FromValue(val)}
	guard := expr.Simplify(expr.Subst(c.Guard, subs))
	if expr.IsFalse(guard) {
		return
	}
	r = &Command{
		Label:  c.Label,
		Source: c.Source.Extend(map[string]constant.Value{name: val}),
		Guard:  guard,
	}
	for _, d := range c.Dests {
		var post map[string]constant.Value
		post, err = d.Update.Evaluate(map[string]constant.Value{name: val})
		if err != nil {
			r = nil
			return
		}
		r.Dests = append(r.Dests, Destination{
			Prob:   expr.Simplify(expr.Subst(d.Prob, subs)),
			Update: d.Update.RemoveVariables(subs),
			Target: d.Target.Extend(post),
		})
	}
	return
}

// subst はガード・確率・右辺に置換を適用したコマンドを作成する関数
func (c *Command) subst(m map[string]ast.Expr) *Command {
	r := &Command{
		Label:  c.Label,
		Source: c.Source,
		Guard:  expr.Simplify(expr.Subst(c.Guard, m)),
	}
	for _, d := range c.Dests {
		r.Dests = append(r.Dests, Destination{
			Prob:   expr.Simplify(expr.Subst(d.Prob, m)),
			Update: d.Update.Subst(m),
			Target: d.Target,
		})
	}
	return r
}

// Prism はコマンドの PRISM 構文の文字列を作成する関数。
// ガードにはロケーションの条件、各分岐には遷移先のロケーションの代入を加える。
func (c *Command) Prism() string {
	guard := c.Source.Prism(false)
	if g := expr.Prism(c.Guard); !expr.IsTrue(c.Guard) || guard == "" {
		if guard != "" {
			guard += " & "
		}
		guard += "(" + g + ")"
	}
	dests := make([]string, len(c.Dests))
	for i, d := range c.Dests {
		var upd []string
		if s := d.Target.Prism(true); s != "" {
			upd = append(upd, s)
		}
		if !d.Update.IsNop() {
			upd = append(upd, d.Update.Prism())
		}
		if len(upd) == 0 {
			upd = append(upd, "true")
		}
		dests[i] = expr.Prism(d.Prob) + " : " + strings.Join(upd, " & ")
	}
	return fmt.Sprintf("[%s] %s -> %s;", c.Label, guard, strings.Join(dests, " + "))
}

func (c *Command) String() string {
	dests := make([]string, len(c.Dests))
	for i, d := range c.Dests {
		dests[i] = fmt.Sprintf("%s: %s [%s]", expr.Format(d.Prob), d.Target, d.Update)
	}
	label := ""
	if c.Label != "" {
		label = "[" + c.Label + "] "
	}
	return fmt.Sprintf("%s%s %s -> %s", label, c.Source, expr.Format(c.Guard), strings.Join(dests, " + "))
}
