package pcfp

import (
	"fmt"

	"github.com/dr-deep/locelim/expr"
)

// unfoldable は変数をロケーションに展開できるかどうかを調べる関数。
// 展開できなければその理由をエラーで返す。
func (p *Program) unfoldable(name string) (err error) {
	if !p.HasLocalVariable(name) {
		err = fmt.Errorf("%w: %s is not a local variable of %s", ErrUnknownVariable, name, p.Name)
		return
	}
	if p.unfolded[name] {
		err = fmt.Errorf("%w: %s is already unfolded", ErrNotUnfoldable, name)
		return
	}
	// 代入の右辺に出てくる変数は自分自身だけでなければならない
	for _, c := range p.cmds {
		for _, d := range c.Dests {
			rhs, ok := d.Update.Get(name)
			if !ok {
				continue
			}
			for v := range expr.FreeVars(rhs) {
				if v != name {
					err = fmt.Errorf("%w: %s' = %s depends on %s", ErrNotUnfoldable, name, expr.Format(rhs), v)
					return
				}
			}
		}
	}
	v, _ := p.Variable(name)
	if _, err = v.Values(); err != nil {
		err = fmt.Errorf("%s: %w", name, err)
	}
	return
}

// IsUnfoldable は変数をロケーションに展開できるかどうかを調べる関数
func (p *Program) IsUnfoldable(name string) bool {
	return p.unfoldable(name) == nil
}

// UnfoldableVars は展開できる変数の名前を宣言順に返す関数
func (p *Program) UnfoldableVars() (r []string) {
	for _, v := range p.vars {
		if p.IsUnfoldable(v.Name) {
			r = append(r, v.Name)
		}
	}
	return
}

// Unfold は変数をロケーションに展開する関数。
// 変数の値ごとにすべてのコマンドを複製して値を代入し、ガードが false になるものは捨てる。
// 最後に到達できないロケーションを取り除く。
func (p *Program) Unfold(name string) (err error) {
	if err = p.unfoldable(name); err != nil {
		return
	}
	v, _ := p.Variable(name)
	vals, _ := v.Values()

	var cmds []*Command
	for _, val := range vals {
		for _, c := range p.cmds {
			var r *Command
			r, err = c.unfold(name, val)
			if err != nil {
				return
			}
			if r != nil {
				cmds = append(cmds, r)
			}
		}
	}
	p.unfolded[name] = true
	p.setCommands(cmds)
	p.logf("#Unfold: %s (%d values): %d commands\n", name, len(vals), len(cmds))

	p.EliminateUnreachable()
	return
}
