// 複数のモジュールからなるプログラム

package pcfp

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/constant"
	"io"
	"sort"
	"strings"

	"github.com/dr-deep/locelim/expr"
	"github.com/dr-deep/locelim/smt"
)

// Label は PRISM の label 定義
type Label struct {
	Name string
	Expr ast.Expr
}

// ModuleLoc はモジュールとそのロケーションの組
type ModuleLoc struct {
	Module string
	Loc    Location
}

func (ml ModuleLoc) String() string { return ml.Module + ":" + ml.Loc.String() }

// Composition はグローバル変数を共有し、ラベルで同期するモジュールの並行合成
type Composition struct {
	Type    ModelType
	Globals []Variable
	Modules []*Program
	Labels  []Label

	consts []Constant
}

// NewComposition は空の合成を作成する関数
func NewComposition(typ ModelType, consts []Constant, globals []Variable) *Composition {
	return &Composition{
		Type:    typ,
		Globals: append([]Variable(nil), globals...),
		consts:  append([]Constant(nil), consts...),
	}
}

// AddModule はモジュールを追加する関数。
// 各モジュールには他のモジュールの変数とグローバル変数を外部変数として設定する。
func (c *Composition) AddModule(p *Program) {
	p.Type = c.Type
	c.Modules = append(c.Modules, p)
	c.link()
}

func (c *Composition) link() {
	for _, m := range c.Modules {
		ext := append([]Variable(nil), c.Globals...)
		for _, o := range c.Modules {
			if o != m {
				ext = append(ext, o.vars...)
			}
		}
		m.extern = ext
		m.consts = append([]Constant(nil), c.consts...)
	}
}

// Constants は未定義の定数のリストを返す関数
func (c *Composition) Constants() []Constant {
	return append([]Constant(nil), c.consts...)
}

// Module は名前でモジュールを探す関数
func (c *Composition) Module(name string) *Program {
	for _, m := range c.Modules {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Program は一つのモジュールだけからなる合成のそのモジュールを返す関数
func (c *Composition) Program() (p *Program, err error) {
	if len(c.Modules) != 1 {
		err = fmt.Errorf("composition has %d modules, flatten it first", len(c.Modules))
		return
	}
	p = c.Modules[0]
	return
}

// owner は変数をローカル変数として持つモジュールを返す関数
func (c *Composition) owner(name string) *Program {
	for _, m := range c.Modules {
		if m.HasLocalVariable(name) {
			return m
		}
	}
	return nil
}

// Variables はグローバル変数とすべてのモジュールの変数を返す関数
func (c *Composition) Variables() []Variable {
	vars := append([]Variable(nil), c.Globals...)
	for _, m := range c.Modules {
		vars = append(vars, m.vars...)
	}
	return vars
}

// readsVar はモジュールのコマンドが変数を読むかどうかを調べる関数
func readsVar(p *Program, name string) bool {
	vs := map[string]bool{name: true}
	for _, cmd := range p.cmds {
		if expr.ContainsVar(cmd.Guard, vs) {
			return true
		}
		for _, d := range cmd.Dests {
			if expr.ContainsVar(d.Prob, vs) {
				return true
			}
			for _, a := range d.Update.assigns {
				if expr.ContainsVar(a.Expr, vs) {
					return true
				}
			}
		}
	}
	return false
}

// Unfold は変数を持つモジュールでその変数を展開する関数。
// 他のモジュールが読む変数は展開できない。
func (c *Composition) Unfold(name string) (err error) {
	m := c.owner(name)
	if m == nil {
		err = fmt.Errorf("%w: %s is not a local variable of any module", ErrUnknownVariable, name)
		return
	}
	for _, o := range c.Modules {
		if o != m && readsVar(o, name) {
			err = fmt.Errorf("%w: %s is read by module %s", ErrNotUnfoldable, name, o.Name)
			return
		}
	}
	return m.Unfold(name)
}

// IsUnfoldable は変数を展開できるかどうかを調べる関数
func (c *Composition) IsUnfoldable(name string) bool {
	m := c.owner(name)
	if m == nil || !m.IsUnfoldable(name) {
		return false
	}
	for _, o := range c.Modules {
		if o != m && readsVar(o, name) {
			return false
		}
	}
	return true
}

// EliminableLocs はすべてのモジュールの消去できるロケーションを返す関数
func (c *Composition) EliminableLocs(goal ast.Expr) (r []ModuleLoc, err error) {
	for _, m := range c.Modules {
		var locs []Location
		if locs, err = m.EliminableLocs(goal); err != nil {
			return
		}
		for _, l := range locs {
			r = append(r, ModuleLoc{Module: m.Name, Loc: l})
		}
	}
	return
}

// LuckyLocs はすべてのモジュールの IsLocLucky が true のロケーションを返す関数
func (c *Composition) LuckyLocs() (r []ModuleLoc, err error) {
	for _, m := range c.Modules {
		var locs []Location
		if locs, err = m.LuckyLocs(); err != nil {
			return
		}
		for _, l := range locs {
			r = append(r, ModuleLoc{Module: m.Name, Loc: l})
		}
	}
	return
}

// SinkLocs はすべてのモジュールの IsLocSink が true のロケーションを返す関数
func (c *Composition) SinkLocs(goal ast.Expr) (r []ModuleLoc, err error) {
	for _, m := range c.Modules {
		var locs []Location
		if locs, err = m.SinkLocs(goal); err != nil {
			return
		}
		for _, l := range locs {
			r = append(r, ModuleLoc{Module: m.Name, Loc: l})
		}
	}
	return
}

// UnfoldableVars はすべてのモジュールで展開できる変数の名前を返す関数。
// 他のモジュールが読む変数は含まない。
func (c *Composition) UnfoldableVars() (r []string) {
	for _, m := range c.Modules {
		for _, name := range m.UnfoldableVars() {
			if c.IsUnfoldable(name) {
				r = append(r, name)
			}
		}
	}
	return
}

// moduleOf はロケーションを持つモジュールを探す関数
func (c *Composition) moduleOf(loc Location) (m *Program, err error) {
	for _, p := range c.Modules {
		if p.HasLocation(loc) {
			m = p
			return
		}
	}
	err = fmt.Errorf("%w: %s", ErrUnknownLocation, loc)
	return
}

// EliminateLoc はロケーションを持つモジュールでそのロケーションを消去する関数
func (c *Composition) EliminateLoc(loc Location) (err error) {
	m, err := c.moduleOf(loc)
	if err != nil {
		return
	}
	return m.EliminateLoc(loc)
}

// EstimateElimComplexity はロケーションの消去の手間の見積もりを求める関数
func (c *Composition) EstimateElimComplexity(loc Location) int {
	m, err := c.moduleOf(loc)
	if err != nil {
		return 0
	}
	return m.EstimateElimComplexity(loc)
}

// IsLocPotentialGoal はロケーションがゴールになりうるかどうかを調べる関数
func (c *Composition) IsLocPotentialGoal(loc Location, goal ast.Expr) (r bool, err error) {
	m, err := c.moduleOf(loc)
	if err != nil {
		return
	}
	return m.IsLocPotentialGoal(loc, goal)
}

// RemoveUnreachableCommands はすべてのモジュールで EliminateUnsatisfiableCommands を実行する関数
func (c *Composition) RemoveUnreachableCommands() (removed int, err error) {
	if len(c.Modules) > 1 {
		c.logf("#RemoveUnreachableCommands: warning: %d modules, other modules may change the variables between two commands\n", len(c.Modules))
	}
	for _, m := range c.Modules {
		var n int
		if n, err = m.EliminateUnsatisfiableCommands(); err != nil {
			return
		}
		removed += n
	}
	return
}

// RemoveDuplicateCommands はすべてのモジュールで RemoveDuplicateCommands を実行する関数
func (c *Composition) RemoveDuplicateCommands() (removed int) {
	for _, m := range c.Modules {
		removed += m.RemoveDuplicateCommands()
	}
	return
}

// EliminateNopSelfloops はすべてのモジュールで EliminateNopSelfloops を実行する関数
func (c *Composition) EliminateNopSelfloops() (removed int) {
	for _, m := range c.Modules {
		removed += m.EliminateNopSelfloops()
	}
	return
}

func (c *Composition) logf(format string, args ...interface{}) {
	if len(c.Modules) > 0 {
		c.Modules[0].logf(format, args...)
	}
}

// DefineConstant は未定義の定数に値を与えてすべてのモジュールに代入する関数
func (c *Composition) DefineConstant(name string, val constant.Value) (err error) {
	idx := -1
	for i, k := range c.consts {
		if k.Name == name {
			idx = i
		}
	}
	if idx < 0 {
		err = fmt.Errorf("%w: constant %s", ErrUnknownVariable, name)
		return
	}
	c.consts = append(c.consts[:idx:idx], c.consts[idx+1:]...)
	m := map[string]ast.Expr{name: expr.FromValue(val)}
	for i := range c.Globals {
		c.Globals[i] = c.Globals[i].subst(m)
	}
	for i := range c.Labels {
		c.Labels[i].Expr = expr.Simplify(expr.Subst(c.Labels[i].Expr, m))
	}
	for _, p := range c.Modules {
		if err = p.DefineConstant(name, val); err != nil {
			return
		}
	}
	c.link()
	return
}

// Copy は合成を複製する関数
func (c *Composition) Copy() *Composition {
	r := &Composition{
		Type:    c.Type,
		Globals: append([]Variable(nil), c.Globals...),
		Labels:  append([]Label(nil), c.Labels...),
		consts:  append([]Constant(nil), c.consts...),
	}
	for _, m := range c.Modules {
		r.Modules = append(r.Modules, m.Copy())
	}
	r.link()
	return r
}

// SetOracle はすべてのモジュールの充足可能性判定器とログの出力先を設定する関数
func (c *Composition) SetOracle(o smt.Oracle, log io.Writer) {
	for _, m := range c.Modules {
		m.Oracle = o
		m.Log = log
	}
}

// Stats はすべてのモジュールの大きさの合計を求める関数
func (c *Composition) Stats() (s Stats) {
	for _, m := range c.Modules {
		ms := m.Stats()
		s.Locations += ms.Locations
		s.Commands += ms.Commands
		s.Destinations += ms.Destinations
		s.Selfloops += ms.Selfloops
	}
	return
}

// alphabet はモジュールのコマンドのラベルの集合を返す関数
func alphabet(p *Program) map[string]bool {
	r := map[string]bool{}
	for _, c := range p.cmds {
		if c.Label != "" {
			r[c.Label] = true
		}
	}
	return r
}

// syncCommands は同じラベルのコマンドの組を一つのコマンドにする関数。
// ガードは論理積、分岐は直積 (確率は積、更新は和集合)。
func syncCommands(cmds []*Command) (r *Command, err error) {
	var guards []ast.Expr
	for _, c := range cmds {
		guards = append(guards, c.Guard)
	}
	guard := expr.Simplify(expr.Ands(guards...))
	if expr.IsFalse(guard) {
		return
	}
	dests := []Destination{{Prob: expr.IntLit(1)}}
	for _, c := range cmds {
		var next []Destination
		for _, d := range dests {
			for _, cd := range c.Dests {
				var u Update
				u, err = NewUpdate(append(d.Update.Assignments(), cd.Update.Assignments()...)...)
				if err != nil {
					err = fmt.Errorf("[%s]: %w", c.Label, err)
					return
				}
				next = append(next, Destination{
					Prob:   expr.Simplify(expr.Mul(d.Prob, cd.Prob)),
					Update: u,
				})
			}
		}
		dests = next
	}
	r = &Command{Guard: guard, Dests: dests}
	return
}

// Flatten は合成を一つのモジュールにする関数。
// 各モジュールのロケーションをガードと代入に戻してから、ラベルの付いたコマンドの同期積を作る。
// 結果のコマンドにはラベルを付けない。
func (c *Composition) Flatten() (r *Composition, err error) {
	mods := make([]*Program, len(c.Modules))
	var names []string
	for i, m := range c.Modules {
		mods[i] = m.Copy()
		mods[i].Refold()
		names = append(names, m.Name)
	}

	var vars []Variable
	vars = append(vars, c.Globals...)
	var cmds []*Command
	labels := map[string]bool{}
	for _, m := range mods {
		vars = append(vars, m.vars...)
		for _, cmd := range m.cmds {
			if cmd.Label == "" {
				cmds = append(cmds, cmd)
			} else {
				labels[cmd.Label] = true
			}
		}
	}

	var sorted []string
	for l := range labels {
		sorted = append(sorted, l)
	}
	sort.Strings(sorted)
	for _, l := range sorted {
		// ラベルをアルファベットに持つモジュールごとのコマンドの候補
		var parts [][]*Command
		for _, m := range mods {
			if !alphabet(m)[l] {
				continue
			}
			var cs []*Command
			for _, cmd := range m.cmds {
				if cmd.Label == l {
					cs = append(cs, cmd)
				}
			}
			parts = append(parts, cs)
		}
		combos := [][]*Command{nil}
		for _, cs := range parts {
			var next [][]*Command
			for _, combo := range combos {
				for _, cmd := range cs {
					next = append(next, append(append([]*Command(nil), combo...), cmd))
				}
			}
			combos = next
		}
		for _, combo := range combos {
			var sc *Command
			if sc, err = syncCommands(combo); err != nil {
				return
			}
			if sc != nil {
				cmds = append(cmds, sc)
			}
		}
	}

	p := NewProgram(strings.Join(names, "_"), c.Type, vars)
	if len(c.Modules) > 0 {
		p.Oracle = c.Modules[0].Oracle
		p.Log = c.Modules[0].Log
	}
	p.setCommands(cmds)

	r = NewComposition(c.Type, c.consts, nil)
	r.Labels = append([]Label(nil), c.Labels...)
	r.AddModule(p)
	p.logf("#Flatten: %d modules -> %d commands\n", len(c.Modules), len(cmds))
	return
}

// ToPrism は合成を PRISM モデルの文字列にする関数
func (c *Composition) ToPrism() string {
	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "%s\n%s\n\n", prismHeader, c.Type)
	constPrism(buf, c.consts)
	for _, g := range c.Globals {
		fmt.Fprintf(buf, "global %s\n", g.Prism())
	}
	if len(c.Globals) > 0 {
		buf.WriteString("\n")
	}
	for i, m := range c.Modules {
		if i > 0 {
			buf.WriteString("\n")
		}
		m.modulePrism(buf)
	}
	if len(c.Labels) > 0 {
		buf.WriteString("\n")
	}
	for _, l := range c.Labels {
		fmt.Fprintf(buf, "label \"%s\" = %s;\n", l.Name, expr.Prism(l.Expr))
	}
	return buf.String()
}
