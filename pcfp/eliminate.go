// 遷移とロケーションの消去

package pcfp

import (
	"errors"
	"fmt"
	"go/ast"

	"github.com/dr-deep/locelim/expr"
	"github.com/dr-deep/locelim/smt"
)

var errLabelConflict = errors.New("both commands are labelled")

// joinLabels は二つのコマンドをつないだときのラベルを決める関数
func joinLabels(l1, l2 string) (r string, err error) {
	switch {
	case l1 == "":
		r = l2
	case l2 == "":
		r = l1
	default:
		err = fmt.Errorf("%w: [%s] and [%s]", errLabelConflict, l1, l2)
	}
	return
}

// spliceTransition は cmd の di 番目の分岐を遷移先のロケーションから出るコマンドにつないだ
// コマンドのリストを作る関数。プログラムは変更しない。
//
// [MEMO]
//   - ガードは cmd.Guard && wp(update, next.Guard)
//   - 確率は prob * wp(update, nextProb)、更新は nextUpdate.After(update)
//   - cmd の残りの分岐はそのまま
//   - 範囲の制約のもとで Unsat のガードのコマンドは作らない
func (p *Program) spliceTransition(cmd *Command, di int) (r []*Command, err error) {
	d := cmd.Dests[di]
	for _, next := range p.CommandsWithSource(d.Target) {
		guard := expr.Simplify(expr.And(cmd.Guard, d.Update.WP(next.Guard)))
		if expr.IsFalse(guard) {
			continue
		}
		var res smt.Result
		res, err = p.check(guard)
		if err != nil {
			return
		}
		if res == smt.Unsat {
			continue
		}

		nc := &Command{Source: cmd.Source, Guard: guard}
		nc.Label, err = joinLabels(cmd.Label, next.Label)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrIneligibleElimination, err)
			return
		}
		for i, od := range cmd.Dests {
			if i != di {
				nc.Dests = append(nc.Dests, od)
			}
		}
		for _, nd := range next.Dests {
			if nd.Target.Equal(d.Target) {
				err = fmt.Errorf("%w: %s has a self-loop", ErrIneligibleElimination, d.Target)
				return
			}
			nc.Dests = append(nc.Dests, Destination{
				Prob:   expr.Simplify(expr.Mul(d.Prob, d.Update.WP(nd.Prob))),
				Update: nd.Update.After(d.Update),
				Target: nd.Target,
			})
		}
		r = append(r, nc)
	}
	return
}

// EliminateTransition は cmd の di 番目の分岐を消去する関数。
// cmd を遷移先のロケーションから出るコマンドとつないだコマンドで置き換える。
func (p *Program) EliminateTransition(cmd *Command, di int) (err error) {
	idx := -1
	for i, c := range p.cmds {
		if c == cmd {
			idx = i
			break
		}
	}
	if idx < 0 {
		err = fmt.Errorf("%w: command %s is not in %s", ErrUnknownLocation, cmd, p.Name)
		return
	}
	if di < 0 || di >= len(cmd.Dests) {
		err = fmt.Errorf("destination %d out of range", di)
		return
	}
	repl, err := p.spliceTransition(cmd, di)
	if err != nil {
		return
	}
	cmds := make([]*Command, 0, len(p.cmds)-1+len(repl))
	cmds = append(cmds, p.cmds[:idx]...)
	cmds = append(cmds, repl...)
	cmds = append(cmds, p.cmds[idx+1:]...)
	p.setCommands(cmds)
	return
}

// EliminateLoc はロケーションを消去する関数。
// 入ってくる分岐 (自己ループを除く) を一つずつ消去し、最後にロケーションから出るコマンドを取り除く。
// 初期状態かもしれないロケーションや、到達できるかもしれない自己ループのあるロケーションはエラー。
// 途中でエラーになったときはプログラムを変更しない。
// ゴールになりうるかどうかは呼び出し側で調べること。
func (p *Program) EliminateLoc(loc Location) (err error) {
	if !p.HasLocation(loc) {
		err = fmt.Errorf("%w: %s", ErrUnknownLocation, loc)
		return
	}
	if p.IsLocPossiblyInitial(loc) {
		err = fmt.Errorf("%w: %s is possibly initial", ErrIneligibleElimination, loc)
		return
	}
	if p.HasSelfloop(loc) {
		var lucky bool
		lucky, err = p.IsLocLucky(loc)
		if err != nil {
			return
		}
		if !lucky {
			err = fmt.Errorf("%w: %s has a self-loop", ErrIneligibleElimination, loc)
			return
		}
	}

	est := p.EstimateElimComplexity(loc)
	q := p.Copy()
	q.Log = nil
	for {
		in := q.DestinationsWithTarget(loc, false)
		if len(in) == 0 {
			break
		}
		if err = q.EliminateTransition(in[0].cmd, in[0].dest); err != nil {
			return
		}
	}
	var cmds []*Command
	for _, c := range q.cmds {
		if !c.Source.Equal(loc) {
			cmds = append(cmds, c)
		}
	}
	before := len(p.cmds)
	p.setCommands(cmds)
	p.logf("#EliminateLoc: %s (estimate %d): %d -> %d commands\n", loc, est, before, len(cmds))
	return
}

// EstimateElimComplexity はロケーションの消去の手間の見積もりを求める関数。
// 入ってくる分岐の数と出ていくコマンドの数の積。
func (p *Program) EstimateElimComplexity(loc Location) int {
	return len(p.DestinationsWithTarget(loc, true)) * len(p.CommandsWithSource(loc))
}

// allUnlabelled はコマンドにラベルがないかどうかを調べる関数
func allUnlabelled(cmds []*Command) bool {
	for _, c := range cmds {
		if c.Label != "" {
			return false
		}
	}
	return true
}

// isLabelSafe はロケーションを消去してもラベルが衝突しないかどうかを調べる関数
func (p *Program) isLabelSafe(loc Location) bool {
	var in []*Command
	for _, e := range p.DestinationsWithTarget(loc, false) {
		in = append(in, e.cmd)
	}
	return allUnlabelled(in) || allUnlabelled(p.CommandsWithSource(loc))
}

// EliminableLocs は消去できるロケーションを返す関数。
// 自己ループがなく、初期状態でもゴールでもありえないロケーション。
func (p *Program) EliminableLocs(goal ast.Expr) (r []Location, err error) {
	for _, l := range p.Locations() {
		if p.HasSelfloop(l) || p.IsLocPossiblyInitial(l) || !p.isLabelSafe(l) {
			continue
		}
		var pg bool
		pg, err = p.IsLocPotentialGoal(l, goal)
		if err != nil {
			return
		}
		if !pg {
			r = append(r, l)
		}
	}
	return
}

// IsLocLucky は自己ループがあるが消去できるロケーションかどうかを調べる関数。
// 入ってくるどの分岐のあとでも、どの自己ループのガードも Unsat なら true。
// 自己ループがなければ false。
func (p *Program) IsLocLucky(loc Location) (r bool, err error) {
	var loops []*Command
	for _, c := range p.CommandsWithSource(loc) {
		if c.HasSelfloop() {
			loops = append(loops, c)
		}
	}
	if len(loops) == 0 {
		return
	}
	for _, e := range p.DestinationsWithTarget(loc, false) {
		d := e.cmd.Dests[e.dest]
		for _, loop := range loops {
			var res smt.Result
			res, err = p.check(expr.And(e.cmd.Guard, d.Update.WP(loop.Guard)))
			if err != nil || res != smt.Unsat {
				return
			}
		}
	}
	r = true
	return
}

// LuckyLocs は IsLocLucky が true のロケーションを返す関数
func (p *Program) LuckyLocs() (r []Location, err error) {
	for _, l := range p.Locations() {
		var ok bool
		if ok, err = p.IsLocLucky(l); err != nil {
			return
		}
		if ok {
			r = append(r, l)
		}
	}
	return
}

// IsLocSink はゴールになりえず、出ていくコマンドがすべて自己ループだけからなるロケーションかどうかを調べる関数
func (p *Program) IsLocSink(loc Location, goal ast.Expr) (r bool, err error) {
	pg, err := p.IsLocPotentialGoal(loc, goal)
	if err != nil || pg {
		return
	}
	for _, c := range p.CommandsWithSource(loc) {
		if !c.HasOnlySelfloops() {
			return
		}
	}
	r = true
	return
}

// SinkLocs は IsLocSink が true のロケーションを返す関数
func (p *Program) SinkLocs(goal ast.Expr) (r []Location, err error) {
	for _, l := range p.Locations() {
		var ok bool
		if ok, err = p.IsLocSink(l, goal); err != nil {
			return
		}
		if ok {
			r = append(r, l)
		}
	}
	return
}
