// 対話的な簡約化セッション

package session

import (
	"errors"
	"fmt"
	"go/ast"
	"go/constant"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dr-deep/locelim/check"
	"github.com/dr-deep/locelim/expr"
	"github.com/dr-deep/locelim/model"
	"github.com/dr-deep/locelim/pcfp"
	"github.com/dr-deep/locelim/smt"
)

var (
	// ErrNotLoaded はモデルを読み込む前に操作したときのエラー
	ErrNotLoaded = errors.New("no model loaded")
	// ErrAlreadyLoaded はモデルを二回読み込んだときのエラー
	ErrAlreadyLoaded = errors.New("another model is already loaded")
	// ErrNoGoal はゴールが必要な操作でゴールが設定されていないときのエラー
	ErrNoGoal = errors.New("no goal set")
)

// Options はセッションの設定
type Options struct {
	// Oracle は充足可能性の判定器。nil なら判定しない。
	Oracle smt.Oracle
	// Log は nil でなければ処理の経過を書き出す
	Log io.Writer
	// RemoveUnreachableCommands は展開と消去のあとに EliminateUnsatisfiableCommands を実行するかどうか
	RemoveUnreachableCommands bool
	// Checker は到達確率の計算の設定。nil ならデフォルト。
	Checker *check.Checker
}

// Session は一つのモデルの簡約化セッション。
// 元のモデルと簡約化中のモデルを持ち、定数の値とゴールはセッションが覚えておく。
type Session struct {
	opts Options

	id     string
	path   string
	orig   *pcfp.Composition
	comp   *pcfp.Composition
	goal   ast.Expr
	consts map[string]constant.Value
	steps  []Step
}

// New はセッションを作成する関数
func New(opts Options) *Session {
	return &Session{
		opts:   opts,
		id:     uuid.NewString(),
		consts: map[string]constant.Value{},
	}
}

// ID はセッション ID を返す関数
func (s *Session) ID() string { return s.id }

func (s *Session) logf(format string, args ...interface{}) {
	if s.opts.Log != nil {
		fmt.Fprintf(s.opts.Log, format, args...)
	}
}

func (s *Session) loaded() error {
	if s.comp == nil {
		return ErrNotLoaded
	}
	return nil
}

func (s *Session) record(op, arg, note string) {
	s.steps = append(s.steps, Step{Op: op, Arg: arg, Stats: s.comp.Stats(), Note: note})
}

// Load はモデルを読み込む関数。すでに読み込んでいればエラー。
func (s *Session) Load(c *pcfp.Composition) (err error) {
	if s.comp != nil {
		err = ErrAlreadyLoaded
		return
	}
	s.orig = c.Copy()
	s.orig.SetOracle(nil, nil)
	s.comp = c.Copy()
	s.comp.SetOracle(s.opts.Oracle, s.opts.Log)
	s.record("load", s.path, fmt.Sprintf("%d modules", len(c.Modules)))
	return
}

// LoadFile はモデル記述ファイルを読み込む関数
func (s *Session) LoadFile(filePath string) (err error) {
	if s.comp != nil {
		err = ErrAlreadyLoaded
		return
	}
	c, err := model.LoadComposition(filePath)
	if err != nil {
		return
	}
	s.path = filePath
	return s.Load(c)
}

// Reset はセッションを初期状態に戻す関数。ID は新しくなる。
func (s *Session) Reset() {
	*s = *New(s.opts)
}

// Composition は簡約化中のモデルを返す関数
func (s *Session) Composition() *pcfp.Composition { return s.comp }

// UndefinedConstants は元のモデルの未定義の定数の名前を返す関数
func (s *Session) UndefinedConstants() (r []string) {
	if s.orig == nil {
		return
	}
	for _, c := range s.orig.Constants() {
		r = append(r, c.Name)
	}
	return
}

// DeclareConstant は未定義の定数の値を設定する関数。
// モデルには代入せず、到達確率を計算するときに使う。
func (s *Session) DeclareConstant(name, value string) (err error) {
	if err = s.loaded(); err != nil {
		return
	}
	known := false
	for _, c := range s.orig.Constants() {
		if c.Name == name {
			known = true
		}
	}
	if !known {
		err = fmt.Errorf("%w: constant %s", pcfp.ErrUnknownVariable, name)
		return
	}
	e, err := expr.Parse(value)
	if err != nil {
		return
	}
	v, ok := expr.Constant(e)
	if !ok {
		err = fmt.Errorf("value of %s is not constant: %s", name, value)
		return
	}
	s.consts[name] = v
	return
}

// FixConstant は定数の値を簡約化中のモデルに代入する関数。
// 範囲に定数を含む変数を展開する前に使う。
func (s *Session) FixConstant(name, value string) (err error) {
	if err = s.DeclareConstant(name, value); err != nil {
		return
	}
	if err = s.comp.DefineConstant(name, s.consts[name]); err != nil {
		return
	}
	s.record("fix", name+"="+value, "")
	return
}

// SetGoal はゴールの条件式を設定する関数
func (s *Session) SetGoal(goal string) (err error) {
	e, err := expr.Parse(goal)
	if err != nil {
		return
	}
	s.goal = e
	return
}

// Goal はゴールの条件式を返す関数
func (s *Session) Goal() ast.Expr { return s.goal }

// Flatten は簡約化中のモデルを一つのモジュールにする関数
func (s *Session) Flatten() (err error) {
	if err = s.loaded(); err != nil {
		return
	}
	c, err := s.comp.Flatten()
	if err != nil {
		return
	}
	s.comp = c
	s.record("flatten", "", "")
	return
}

// Unfold は変数をロケーションに展開する関数
func (s *Session) Unfold(name string) (err error) {
	if err = s.loaded(); err != nil {
		return
	}
	if err = s.comp.Unfold(name); err != nil {
		return
	}
	note := ""
	if s.opts.RemoveUnreachableCommands {
		var n int
		if n, err = s.comp.RemoveUnreachableCommands(); err != nil {
			return
		}
		note = fmt.Sprintf("%d unsatisfiable commands removed", n)
	}
	s.record("unfold", name, note)
	return
}

// locationOf は変数名から値の文字列への map からロケーションを作る関数
func locationOf(values map[string]string) (pcfp.Location, error) {
	var parts []string
	for n, v := range values {
		parts = append(parts, n+"="+v)
	}
	sort.Strings(parts)
	return pcfp.ParseLocation(strings.Join(parts, ","))
}

// Eliminate はロケーションを消去する関数。
// ゴールが設定されていれば、ゴールになりうるロケーションはエラーにする。
func (s *Session) Eliminate(values map[string]string) (err error) {
	if err = s.loaded(); err != nil {
		return
	}
	loc, err := locationOf(values)
	if err != nil {
		return
	}
	return s.EliminateLoc(loc)
}

// EliminateLoc はロケーションを消去する関数
func (s *Session) EliminateLoc(loc pcfp.Location) (err error) {
	if err = s.loaded(); err != nil {
		return
	}
	if s.goal != nil {
		var pg bool
		if pg, err = s.comp.IsLocPotentialGoal(loc, s.goal); err != nil {
			return
		}
		if pg {
			err = fmt.Errorf("%w: %s may satisfy the goal", pcfp.ErrIneligibleElimination, loc)
			return
		}
	} else {
		s.logf("#Eliminate: warning: eliminating %s without a goal\n", loc)
	}
	if err = s.comp.EliminateLoc(loc); err != nil {
		return
	}
	note := ""
	if s.opts.RemoveUnreachableCommands {
		var n int
		if n, err = s.comp.RemoveUnreachableCommands(); err != nil {
			return
		}
		note = fmt.Sprintf("%d unsatisfiable commands removed", n)
	}
	s.record("eliminate", loc.Key(), note)
	return
}

// EliminableLocations は消去できるロケーションを返す関数。
// ゴールが設定されていなければ true をゴールにする。
func (s *Session) EliminableLocations() (r []pcfp.ModuleLoc, err error) {
	if err = s.loaded(); err != nil {
		return
	}
	goal := s.goal
	if goal == nil {
		goal = expr.True()
	}
	return s.comp.EliminableLocs(goal)
}

// LuckyLocations は自己ループがあるが消去できるロケーションを返す関数
func (s *Session) LuckyLocations() (r []pcfp.ModuleLoc, err error) {
	if err = s.loaded(); err != nil {
		return
	}
	return s.comp.LuckyLocs()
}

// SinkLocations はゴールになりえず抜け出せないロケーションを返す関数
func (s *Session) SinkLocations() (r []pcfp.ModuleLoc, err error) {
	if err = s.loaded(); err != nil {
		return
	}
	if s.goal == nil {
		err = ErrNoGoal
		return
	}
	return s.comp.SinkLocs(s.goal)
}

// UnfoldableVariables は展開できる変数の名前を返す関数
func (s *Session) UnfoldableVariables() (r []string, err error) {
	if err = s.loaded(); err != nil {
		return
	}
	r = s.comp.UnfoldableVars()
	return
}

// Variables は簡約化中のモデルの変数を返す関数
func (s *Session) Variables() (r []pcfp.Variable, err error) {
	if err = s.loaded(); err != nil {
		return
	}
	r = s.comp.Variables()
	return
}

// EliminateAll は消去できるロケーションがなくなるまで消去する関数。
// 手間の見積もりが最も小さいロケーションから消去する。消去した数を返す。
func (s *Session) EliminateAll() (n int, err error) {
	if err = s.loaded(); err != nil {
		return
	}
	if s.goal == nil {
		err = ErrNoGoal
		return
	}
	failed := map[string]bool{}
	for {
		var locs []pcfp.ModuleLoc
		if locs, err = s.comp.EliminableLocs(s.goal); err != nil {
			return
		}
		best, bestCost := -1, 0
		for i, ml := range locs {
			if failed[ml.String()] {
				continue
			}
			cost := s.comp.EstimateElimComplexity(ml.Loc)
			if best < 0 || cost < bestCost {
				best, bestCost = i, cost
			}
		}
		if best < 0 {
			break
		}
		loc := locs[best].Loc
		if e := s.comp.EliminateLoc(loc); e != nil {
			if !errors.Is(e, pcfp.ErrIneligibleElimination) {
				err = e
				return
			}
			s.logf("#EliminateAll: skip %s: %v\n", locs[best], e)
			failed[locs[best].String()] = true
			continue
		}
		n++
		// 入ってくる遷移が変わったので消去できなかったロケーションも試し直す
		failed = map[string]bool{}
	}
	if s.opts.RemoveUnreachableCommands {
		if _, err = s.comp.RemoveUnreachableCommands(); err != nil {
			return
		}
	}
	s.record("elimall", "", fmt.Sprintf("%d locations eliminated", n))
	return
}

// Prune は到達できないコマンドと Unsat のガードのコマンドを取り除く関数
func (s *Session) Prune() (n int, err error) {
	if err = s.loaded(); err != nil {
		return
	}
	for _, m := range s.comp.Modules {
		n += m.EliminateUnreachable()
	}
	var k int
	if k, err = s.comp.RemoveUnreachableCommands(); err != nil {
		return
	}
	n += k
	s.record("prune", "", fmt.Sprintf("%d commands removed", n))
	return
}

// RemoveDuplicates はガード以外が同じコマンドをまとめる関数
func (s *Session) RemoveDuplicates() (n int, err error) {
	if err = s.loaded(); err != nil {
		return
	}
	n = s.comp.RemoveDuplicateCommands()
	s.record("dedup", "", fmt.Sprintf("%d commands merged", n))
	return
}

// EliminateNopSelfloops は何も代入しない自己ループを取り除く関数
func (s *Session) EliminateNopSelfloops() (n int, err error) {
	if err = s.loaded(); err != nil {
		return
	}
	n = s.comp.EliminateNopSelfloops()
	s.record("nopself", "", fmt.Sprintf("%d self-loops removed", n))
	return
}

// Stats は簡約化中のモデルの大きさを返す関数
func (s *Session) Stats() (st pcfp.Stats, err error) {
	if err = s.loaded(); err != nil {
		return
	}
	st = s.comp.Stats()
	return
}

// ModuleLocInfo はモジュール名付きのロケーションごとの遷移の数
type ModuleLocInfo struct {
	Module string
	pcfp.LocInfo
}

// LocInfo はロケーションごとの遷移の数を返す関数
func (s *Session) LocInfo() (r []ModuleLocInfo, err error) {
	if err = s.loaded(); err != nil {
		return
	}
	for _, m := range s.comp.Modules {
		for _, info := range m.LocInfos() {
			r = append(r, ModuleLocInfo{Module: m.Name, LocInfo: info})
		}
	}
	return
}

// Export は簡約化中のモデルを PRISM 言語の文字列にする関数
func (s *Session) Export() (r string, err error) {
	if err = s.loaded(); err != nil {
		return
	}
	r = s.comp.ToPrism()
	return
}

// SaveAsPrism は簡約化中のモデルを PRISM 言語でファイル保存する関数
func (s *Session) SaveAsPrism(outFile string) (err error) {
	r, err := s.Export()
	if err != nil {
		return
	}
	err = os.WriteFile(outFile, []byte(r), 0644)
	return
}

// checkable は定数を定義して一つのモジュールにしたプログラムを作る関数
func (s *Session) checkable(c *pcfp.Composition) (p *pcfp.Program, err error) {
	c = c.Copy()
	c.SetOracle(nil, nil)
	for _, k := range c.Constants() {
		v, ok := s.consts[k.Name]
		if !ok {
			err = fmt.Errorf("%w: %s", check.ErrUndefinedConstants, k.Name)
			return
		}
		if err = c.DefineConstant(k.Name, v); err != nil {
			return
		}
	}
	if len(c.Modules) > 1 {
		if c, err = c.Flatten(); err != nil {
			return
		}
	}
	return c.Program()
}

func (s *Session) checker() *check.Checker {
	if s.opts.Checker != nil {
		return s.opts.Checker
	}
	return check.New()
}

func (s *Session) checkModel(c *pcfp.Composition) (r check.Result, err error) {
	if err = s.loaded(); err != nil {
		return
	}
	if s.goal == nil {
		err = ErrNoGoal
		return
	}
	p, err := s.checkable(c)
	if err != nil {
		return
	}
	m := map[string]ast.Expr{}
	for n, v := range s.consts {
		m[n] = expr.FromValue(v)
	}
	goal := expr.Simplify(expr.Subst(s.goal, m))
	start := time.Now()
	r, err = s.checker().Reachability(p, goal)
	if err == nil {
		s.logf("#Check: %.9g (%d states, %d transitions, %d iterations, %v)\n",
			r.Probability, r.States, r.Transitions, r.Iterations, time.Since(start))
	}
	return
}

// CheckOriginal は元のモデルでゴールに到達する確率を計算する関数
func (s *Session) CheckOriginal() (r check.Result, err error) {
	if err = s.loaded(); err != nil {
		return
	}
	return s.checkModel(s.orig)
}

// CheckModel は簡約化中のモデルでゴールに到達する確率を計算する関数
func (s *Session) CheckModel() (r check.Result, err error) {
	if err = s.loaded(); err != nil {
		return
	}
	return s.checkModel(s.comp)
}

// Record はセッションの記録を作成する関数
func (s *Session) Record() (r Record) {
	r.ID = s.id
	r.Model = s.path
	if s.goal != nil {
		r.Goal = expr.Format(s.goal)
	}
	if len(s.consts) > 0 {
		r.Constants = map[string]string{}
		for n, v := range s.consts {
			r.Constants[n] = expr.Format(expr.FromValue(v))
		}
	}
	r.Steps = append([]Step(nil), s.steps...)
	r.Date = time.Now().Format(time.RFC3339)
	return
}
