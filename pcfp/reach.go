// 到達できないコマンドの除去と後処理

package pcfp

import (
	"go/ast"
	"go/constant"
	"go/token"

	"github.com/dr-deep/locelim/expr"
	"github.com/dr-deep/locelim/smt"
)

// EliminateUnreachable は初期状態かもしれないロケーションから到達できない
// ロケーションを遷移元とするコマンドを取り除く関数。取り除いた数を返す。
func (p *Program) EliminateUnreachable() (removed int) {
	visited := map[string]bool{}
	var queue []Location
	for _, l := range p.Locations() {
		if p.IsLocPossiblyInitial(l) {
			visited[l.Key()] = true
			queue = append(queue, l)
		}
	}
	for len(queue) > 0 {
		l := queue[0]
		queue = queue[1:]
		for _, c := range p.CommandsWithSource(l) {
			for _, d := range c.Dests {
				if !visited[d.Target.Key()] {
					visited[d.Target.Key()] = true
					queue = append(queue, d.Target)
				}
			}
		}
	}

	var cmds []*Command
	for _, c := range p.cmds {
		if visited[c.Source.Key()] {
			cmds = append(cmds, c)
		} else {
			removed++
		}
	}
	if removed > 0 {
		p.setCommands(cmds)
	}
	p.logf("#EliminateUnreachable: %d commands removed\n", removed)
	return
}

// EliminateUnsatisfiableCommands は入ってくるどの分岐のあとでもガードが Unsat になる
// コマンドを取り除く関数。初期状態かもしれないロケーションのコマンドは残す。
// すべての判定を済ませてからコマンドを入れ替える。
func (p *Program) EliminateUnsatisfiableCommands() (removed int, err error) {
	var cmds []*Command
	for _, c := range p.cmds {
		var keep bool
		keep, err = p.isCommandReachable(c)
		if err != nil {
			return
		}
		if keep {
			cmds = append(cmds, c)
		} else {
			removed++
		}
	}
	if removed > 0 {
		p.setCommands(cmds)
	}
	p.logf("#EliminateUnsatisfiableCommands: %d commands removed\n", removed)
	return
}

// isCommandReachable はコマンドが実行されうるかどうかを調べる関数。
// コマンド自身の分岐は初めての実行の前には通らないので見ない。
func (p *Program) isCommandReachable(c *Command) (r bool, err error) {
	if p.IsLocPossiblyInitial(c.Source) {
		r = true
		return
	}
	for _, e := range p.DestinationsWithTarget(c.Source, true) {
		if e.cmd == c {
			continue
		}
		d := e.cmd.Dests[e.dest]
		var res smt.Result
		res, err = p.check(expr.And(e.cmd.Guard, d.Update.WP(c.Guard)))
		if err != nil {
			return
		}
		if res != smt.Unsat {
			r = true
			return
		}
	}
	return
}

// RemoveDuplicateCommands はガード以外が同じコマンドをガードの論理和で一つにまとめる関数。
// まとめて減ったコマンドの数を返す。
func (p *Program) RemoveDuplicateCommands() (removed int) {
	var cmds []*Command
	bySource := map[string][]int{} // 遷移元ごとの cmds の添字
	for _, c := range p.cmds {
		merged := false
		for _, i := range bySource[c.Source.Key()] {
			if cmds[i].EqualExceptGuard(c) {
				m := *cmds[i]
				m.Guard = expr.Simplify(expr.Or(m.Guard, c.Guard))
				cmds[i] = &m
				merged = true
				break
			}
		}
		if merged {
			removed++
			continue
		}
		bySource[c.Source.Key()] = append(bySource[c.Source.Key()], len(cmds))
		cmds = append(cmds, c)
	}
	if removed > 0 {
		p.setCommands(cmds)
	}
	p.logf("#RemoveDuplicateCommands: %d commands merged\n", removed)
	return
}

// EliminateNopSelfloops は値を変えない自己ループの分岐を取り除き、
// 残りの分岐の確率を 1/(1-q) 倍する関数 (q は取り除いた分岐の確率の和)。
// 分岐がすべてそのような自己ループのコマンドと、q が定数でないコマンドはそのまま残す。
func (p *Program) EliminateNopSelfloops() (removed int) {
	cmds := make([]*Command, len(p.cmds))
	for i, c := range p.cmds {
		cmds[i] = c
		loops := c.nopSelfloops()
		if len(loops) == 0 || len(loops) == len(c.Dests) {
			continue
		}
		isLoop := map[int]bool{}
		var q ast.Expr
		for _, li := range loops {
			isLoop[li] = true
			if q == nil {
				q = c.Dests[li].Prob
			} else {
				q = expr.Binary(q, token.ADD, c.Dests[li].Prob)
			}
		}
		q = expr.Simplify(q)
		// q に未定義の定数が残っていると 1 になるかもしれない
		if v, ok := expr.Constant(q); !ok || isOne(v) {
			continue
		}
		scale := expr.Binary(expr.IntLit(1), token.SUB, q)
		r := &Command{Label: c.Label, Source: c.Source, Guard: c.Guard}
		for di, d := range c.Dests {
			if isLoop[di] {
				continue
			}
			d.Prob = expr.Simplify(expr.Binary(d.Prob, token.QUO, scale))
			r.Dests = append(r.Dests, d)
		}
		cmds[i] = r
		removed += len(loops)
	}
	if removed > 0 {
		p.setCommands(cmds)
	}
	p.logf("#EliminateNopSelfloops: %d self-loops removed\n", removed)
	return
}

func isOne(v constant.Value) bool {
	if v.Kind() != constant.Int && v.Kind() != constant.Float {
		return false
	}
	return constant.Compare(v, token.EQL, constant.MakeInt64(1))
}
