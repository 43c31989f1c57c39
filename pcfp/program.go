// 確率的制御フロープログラム (PCFP)

package pcfp

import (
	"fmt"
	"go/ast"
	"go/constant"
	"io"
	"sort"

	"github.com/dr-deep/locelim/expr"
	"github.com/dr-deep/locelim/smt"
)

// Program は一つのモジュールの確率的制御フロープログラム。
// 展開した変数の値の組がロケーション、残りの変数は数値の状態空間になる。
type Program struct {
	Name string
	Type ModelType

	// Oracle はガードの充足可能性の判定器。nil なら判定せずに全部残す。
	Oracle smt.Oracle
	// Log は nil でなければ処理の経過を書き出す
	Log io.Writer

	vars     []Variable // ローカル変数 (宣言順)
	unfolded map[string]bool
	extern   []Variable // 他のモジュールの変数 (読むだけ)
	consts   []Constant // 未定義の定数
	cmds     []*Command

	g *graph
}

// NewProgram はプログラムを作成する関数
func NewProgram(name string, typ ModelType, vars []Variable) *Program {
	return &Program{
		Name:     name,
		Type:     typ,
		vars:     append([]Variable(nil), vars...),
		unfolded: map[string]bool{},
	}
}

// SetExternal は他のモジュールの変数の宣言を設定する関数
func (p *Program) SetExternal(vars []Variable) {
	p.extern = append([]Variable(nil), vars...)
}

// AddConstant は未定義の定数を追加する関数
func (p *Program) AddConstant(c Constant) {
	p.consts = append(p.consts, c)
}

// AddCommand は空のロケーションから出るコマンドを追加する関数
func (p *Program) AddCommand(label string, guard ast.Expr, dests ...Destination) *Command {
	c := &Command{Label: label, Guard: guard, Dests: dests}
	p.setCommands(append(p.cmds, c))
	return c
}

func (p *Program) setCommands(cmds []*Command) {
	p.cmds = cmds
	p.g = nil
}

func (p *Program) graph() *graph {
	if p.g == nil {
		p.g = newGraph(p.cmds)
	}
	return p.g
}

func (p *Program) logf(format string, args ...interface{}) {
	if p.Log != nil {
		fmt.Fprintf(p.Log, format, args...)
	}
}

// Commands はコマンドのリストを返す関数
func (p *Program) Commands() []*Command {
	return append([]*Command(nil), p.cmds...)
}

// Variables はローカル変数のリストを返す関数
func (p *Program) Variables() []Variable {
	return append([]Variable(nil), p.vars...)
}

// External は他のモジュールの変数のリストを返す関数
func (p *Program) External() []Variable {
	return append([]Variable(nil), p.extern...)
}

// Constants は未定義の定数のリストを返す関数
func (p *Program) Constants() []Constant {
	return append([]Constant(nil), p.consts...)
}

// Variable はローカル変数の宣言を返す関数
func (p *Program) Variable(name string) (v Variable, ok bool) {
	for _, v = range p.vars {
		if v.Name == name {
			ok = true
			return
		}
	}
	v = Variable{}
	return
}

// HasLocalVariable はローカル変数かどうかを調べる関数
func (p *Program) HasLocalVariable(name string) bool {
	_, ok := p.Variable(name)
	return ok
}

// IsUnfolded は変数をロケーションに展開済みかどうかを調べる関数
func (p *Program) IsUnfolded(name string) bool { return p.unfolded[name] }

// UnfoldedVars は展開済みの変数名をソートして返す関数
func (p *Program) UnfoldedVars() (r []string) {
	for n := range p.unfolded {
		r = append(r, n)
	}
	sort.Strings(r)
	return
}

// InitialValues は変数名から初期値への map を返す関数
func (p *Program) InitialValues() map[string]ast.Expr {
	m := map[string]ast.Expr{}
	for _, v := range p.vars {
		m[v.Name] = v.Init
	}
	return m
}

// InitialLocation は展開済みの変数の初期値からなるロケーションを返す関数。
// 初期値が定数でなければエラー。
func (p *Program) InitialLocation() (l Location, err error) {
	m := map[string]constant.Value{}
	for _, v := range p.vars {
		if !p.unfolded[v.Name] {
			continue
		}
		val, ok := expr.Constant(v.Init)
		if !ok {
			err = fmt.Errorf("initial value of %s is not constant", v.Name)
			return
		}
		m[v.Name] = val
	}
	l = NewLocation(m)
	return
}

// Locations は遷移元になるロケーションを出現順に返す関数
func (p *Program) Locations() []Location {
	g := p.graph()
	return append([]Location(nil), g.locs[:g.sources]...)
}

// HasLocation はロケーションから出るコマンドがあるかどうかを調べる関数
func (p *Program) HasLocation(l Location) bool {
	return p.graph().isSource(l)
}

// CommandsWithSource はロケーションから出るコマンドを返す関数
func (p *Program) CommandsWithSource(l Location) []*Command {
	g := p.graph()
	h, ok := g.lookup(l)
	if !ok {
		return nil
	}
	return append([]*Command(nil), g.out[h]...)
}

// DestinationsWithTarget はロケーションに入る分岐を返す関数。
// includeSelfloops が false なら同じロケーションから出るコマンドの分岐は除く。
func (p *Program) DestinationsWithTarget(l Location, includeSelfloops bool) (r []edge) {
	g := p.graph()
	h, ok := g.lookup(l)
	if !ok {
		return
	}
	for _, e := range g.in[h] {
		if !includeSelfloops && e.cmd.Source.Equal(l) {
			continue
		}
		r = append(r, e)
	}
	return
}

// HasSelfloop はロケーションから出るコマンドに自己ループがあるかどうかを調べる関数
func (p *Program) HasSelfloop(l Location) bool {
	for _, c := range p.CommandsWithSource(l) {
		if c.HasSelfloop() {
			return true
		}
	}
	return false
}

// IsLocPossiblyInitial はロケーションが初期状態を含むかもしれないかどうかを調べる関数
func (p *Program) IsLocPossiblyInitial(l Location) bool {
	return l.IsInitial(p.InitialValues())
}

// IsLocPotentialGoal はロケーションがゴールになりうるかどうかを調べる関数
func (p *Program) IsLocPotentialGoal(l Location, goal ast.Expr) (bool, error) {
	return l.IsPotentialGoal(goal, p.check)
}

// declaredVar は変数・定数の宣言を探す関数
func (p *Program) declaredVar(name string) (v smt.Var, ok bool) {
	for _, x := range p.vars {
		if x.Name == name {
			return x.smtVar(), true
		}
	}
	for _, x := range p.extern {
		if x.Name == name {
			return x.smtVar(), true
		}
	}
	for _, c := range p.consts {
		if c.Name == name {
			return smt.Var{Name: c.Name, Type: c.Type}, true
		}
	}
	return
}

// smtVars は式に出てくる変数の宣言を作る関数。int 変数には範囲がつく。
func (p *Program) smtVars(e ast.Expr) (r []smt.Var) {
	for _, name := range expr.Vars(e) {
		if v, ok := p.declaredVar(name); ok {
			r = append(r, v)
		}
	}
	return
}

// check は式の充足可能性を判定する関数。変数を含まない式はその場で評価する。
func (p *Program) check(formula ast.Expr) (r smt.Result, err error) {
	f := expr.Simplify(formula)
	if v, ok := expr.Constant(f); ok && v.Kind() == constant.Bool {
		if constant.BoolVal(v) {
			r = smt.Sat
		} else {
			r = smt.Unsat
		}
		return
	}
	if p.Oracle == nil {
		return
	}
	r, err = p.Oracle.Check(f, p.smtVars(f))
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	return
}

// DefineConstant は未定義の定数に値を与えてプログラム全体に代入する関数
func (p *Program) DefineConstant(name string, val constant.Value) (err error) {
	idx := -1
	for i, c := range p.consts {
		if c.Name == name {
			idx = i
		}
	}
	if idx < 0 {
		err = fmt.Errorf("%w: constant %s", ErrUnknownVariable, name)
		return
	}
	p.consts = append(p.consts[:idx:idx], p.consts[idx+1:]...)
	p.substAll(map[string]ast.Expr{name: expr.FromValue(val)})
	return
}

// substAll は変数の範囲・初期値・すべてのコマンドに置換を適用する関数
func (p *Program) substAll(m map[string]ast.Expr) {
	for i := range p.vars {
		p.vars[i] = p.vars[i].subst(m)
	}
	for i := range p.extern {
		p.extern[i] = p.extern[i].subst(m)
	}
	cmds := make([]*Command, len(p.cmds))
	for i, c := range p.cmds {
		cmds[i] = c.subst(m)
	}
	p.setCommands(cmds)
}

// Copy はプログラムを複製する関数。コマンドは変更しないので共有する。
func (p *Program) Copy() *Program {
	q := &Program{
		Name:     p.Name,
		Type:     p.Type,
		Oracle:   p.Oracle,
		Log:      p.Log,
		vars:     append([]Variable(nil), p.vars...),
		unfolded: map[string]bool{},
		extern:   append([]Variable(nil), p.extern...),
		consts:   append([]Constant(nil), p.consts...),
		cmds:     append([]*Command(nil), p.cmds...),
	}
	for n := range p.unfolded {
		q.unfolded[n] = true
	}
	return q
}

// Refold は展開した変数をロケーションからガードと代入に戻す関数。
// 結果のコマンドはすべて空のロケーションから出る。
func (p *Program) Refold() {
	cmds := make([]*Command, len(p.cmds))
	for i, c := range p.cmds {
		r := &Command{
			Label: c.Label,
			Guard: expr.Simplify(expr.And(c.Source.Eqs(), c.Guard)),
		}
		for _, d := range c.Dests {
			assigns := d.Update.Assignments()
			for _, n := range d.Target.Vars() {
				v, _ := d.Target.Value(n)
				assigns = append(assigns, Assignment{Var: n, Expr: expr.FromValue(v)})
			}
			r.Dests = append(r.Dests, Destination{Prob: d.Prob, Update: Update{assigns: assigns}})
		}
		cmds[i] = r
	}
	p.unfolded = map[string]bool{}
	p.setCommands(cmds)
}

// Stats はプログラムの大きさ
type Stats struct {
	Locations    int `json:"locations"`
	Commands     int `json:"commands"`
	Destinations int `json:"destinations"`
	Selfloops    int `json:"selfloops"`
}

// Stats はプログラムの大きさを数える関数
func (p *Program) Stats() (s Stats) {
	s.Locations = len(p.Locations())
	s.Commands = len(p.cmds)
	for _, c := range p.cmds {
		s.Destinations += len(c.Dests)
		if c.HasSelfloop() {
			s.Selfloops++
		}
	}
	return
}

// LocInfo はロケーションごとの遷移の数
type LocInfo struct {
	Loc       Location
	In        int  // 入ってくる分岐の数 (自己ループを除く)
	Out       int  // 出ていくコマンドの数
	Selfloops int  // 自己ループのあるコマンドの数
	Initial   bool // 初期状態を含むかもしれない
}

// LocInfos はロケーションごとの遷移の数を数える関数
func (p *Program) LocInfos() (r []LocInfo) {
	for _, l := range p.Locations() {
		info := LocInfo{
			Loc:     l,
			In:      len(p.DestinationsWithTarget(l, false)),
			Initial: p.IsLocPossiblyInitial(l),
		}
		for _, c := range p.CommandsWithSource(l) {
			info.Out++
			if c.HasSelfloop() {
				info.Selfloops++
			}
		}
		r = append(r, info)
	}
	return
}
