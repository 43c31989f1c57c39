// 明示的な状態空間の構築と到達確率の計算
//
// 簡約化の前後で到達確率が変わらないことを確かめるためのもの。
// 一つのモジュールからなり、定数がすべて定義されたプログラムだけを扱う。

package check

import (
	"errors"
	"fmt"
	"go/ast"
	"go/constant"
	"math"
	"strconv"
	"strings"

	"github.com/dr-deep/locelim/expr"
	"github.com/dr-deep/locelim/pcfp"
)

const (
	DefaultMaxStates     = 1 << 20
	DefaultEpsilon       = 1e-12
	DefaultMaxIterations = 1000000

	probTolerance = 1e-9
)

var (
	// ErrUndefinedConstants は未定義の定数が残っているときのエラー
	ErrUndefinedConstants = errors.New("undefined constants")
	// ErrProbabilitySum は分岐の確率の和が 1 にならないときのエラー
	ErrProbabilitySum = errors.New("probabilities do not sum to one")
	// ErrOutOfBounds は変数の値が範囲の外に出たときのエラー
	ErrOutOfBounds = errors.New("value out of bounds")
	// ErrTooManyStates は状態の数が上限を超えたときのエラー
	ErrTooManyStates = errors.New("too many states")
)

// Result は到達確率の計算結果
type Result struct {
	Probability float64 `json:"probability"`
	States      int     `json:"states"`
	Transitions int     `json:"transitions"`
	Iterations  int     `json:"iterations"`
}

// Checker は到達確率の計算の設定
type Checker struct {
	MaxStates     int
	Epsilon       float64
	MaxIterations int
}

// New はデフォルトの設定の Checker を作成する関数
func New() *Checker {
	return &Checker{
		MaxStates:     DefaultMaxStates,
		Epsilon:       DefaultEpsilon,
		MaxIterations: DefaultMaxIterations,
	}
}

// Reachability はデフォルトの設定で到達確率を計算する関数
func Reachability(p *pcfp.Program, goal ast.Expr) (Result, error) {
	return New().Reachability(p, goal)
}

type trans struct {
	to   int
	prob float64
}

type state struct {
	loc  int
	vals []int64
}

// explorer は状態空間を構築する
type explorer struct {
	p     *pcfp.Program
	goal  ast.Expr
	vars  []pcfp.Variable // 展開していない変数
	index map[string]int  // 変数名 -> vals の添字
	lo    []int64
	hi    []int64

	locs    []pcfp.Location
	locIdx  map[string]int
	cmds    [][]*pcfp.Command
	targets map[*pcfp.Command][]int

	states  []state
	stateAt map[string]int
	choices [][][]trans
	isGoal  []bool
}

func newExplorer(p *pcfp.Program, goal ast.Expr) (e *explorer, err error) {
	e = &explorer{
		p:       p,
		goal:    goal,
		index:   map[string]int{},
		locIdx:  map[string]int{},
		targets: map[*pcfp.Command][]int{},
		stateAt: map[string]int{},
	}
	for _, v := range p.Variables() {
		if p.IsUnfolded(v.Name) {
			continue
		}
		var lo, hi int64
		switch v.Type {
		case expr.Bool:
			lo, hi = 0, 1
		case expr.Int:
			if lo, err = evalInt(v.Lower); err != nil {
				err = fmt.Errorf("lower bound of %s: %w", v.Name, err)
				return
			}
			if hi, err = evalInt(v.Upper); err != nil {
				err = fmt.Errorf("upper bound of %s: %w", v.Name, err)
				return
			}
		default:
			err = fmt.Errorf("variable %s: type %s is not supported", v.Name, v.Type)
			return
		}
		e.index[v.Name] = len(e.vars)
		e.vars = append(e.vars, v)
		e.lo = append(e.lo, lo)
		e.hi = append(e.hi, hi)
	}
	for _, l := range p.Locations() {
		e.addLoc(l)
	}
	for _, l := range p.Locations() {
		for _, c := range p.CommandsWithSource(l) {
			ts := make([]int, len(c.Dests))
			for i, d := range c.Dests {
				ts[i] = e.addLoc(d.Target)
			}
			e.targets[c] = ts
		}
	}
	return
}

func (e *explorer) addLoc(l pcfp.Location) int {
	if i, ok := e.locIdx[l.Key()]; ok {
		return i
	}
	i := len(e.locs)
	e.locIdx[l.Key()] = i
	e.locs = append(e.locs, l)
	e.cmds = append(e.cmds, e.p.CommandsWithSource(l))
	return i
}

func evalInt(x ast.Expr) (n int64, err error) {
	v, err := expr.Eval(x, nil)
	if err != nil {
		return
	}
	v = expr.Normalize(v)
	if v.Kind() != constant.Int {
		err = fmt.Errorf("%s is not an integer", expr.Format(x))
		return
	}
	n, _ = constant.Int64Val(v)
	return
}

func (e *explorer) env(s state) expr.Env {
	loc := e.locs[s.loc]
	return func(name string) (v constant.Value, ok bool) {
		if i, found := e.index[name]; found {
			if e.vars[i].Type == expr.Bool {
				return constant.MakeBool(s.vals[i] != 0), true
			}
			return constant.MakeInt64(s.vals[i]), true
		}
		return loc.Value(name)
	}
}

func (e *explorer) key(s state) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(s.loc))
	for _, v := range s.vals {
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(v, 10))
	}
	return b.String()
}

func (e *explorer) add(s state, maxStates int) (i int, err error) {
	k := e.key(s)
	if i, ok := e.stateAt[k]; ok {
		return i, nil
	}
	if len(e.states) >= maxStates {
		err = fmt.Errorf("%w: more than %d", ErrTooManyStates, maxStates)
		return
	}
	i = len(e.states)
	e.stateAt[k] = i
	e.states = append(e.states, s)
	return
}

func evalBool(x ast.Expr, env expr.Env) (b bool, err error) {
	v, err := expr.Eval(x, env)
	if err != nil {
		return
	}
	if v.Kind() != constant.Bool {
		err = fmt.Errorf("%s is not a boolean", expr.Format(x))
		return
	}
	b = constant.BoolVal(v)
	return
}

func evalFloat(x ast.Expr, env expr.Env) (f float64, err error) {
	v, err := expr.Eval(x, env)
	if err != nil {
		return
	}
	v = constant.ToFloat(v)
	if v.Kind() != constant.Float {
		err = fmt.Errorf("%s is not a number", expr.Format(x))
		return
	}
	f, _ = constant.Float64Val(v)
	return
}

// initial は初期状態を作る関数。初期値がなければ下限か false。
func (e *explorer) initial() (s state, err error) {
	l, err := e.p.InitialLocation()
	if err != nil {
		return
	}
	s.loc = e.addLoc(l)
	s.vals = make([]int64, len(e.vars))
	for i, v := range e.vars {
		switch {
		case v.Init == nil:
			s.vals[i] = e.lo[i]
		case v.Type == expr.Bool:
			var b bool
			if b, err = evalBool(v.Init, nil); err != nil {
				return
			}
			if b {
				s.vals[i] = 1
			}
		default:
			if s.vals[i], err = evalInt(v.Init); err != nil {
				return
			}
		}
	}
	return
}

// successor は分岐のあとの状態を作る関数
func (e *explorer) successor(s state, env expr.Env, d pcfp.Destination, target int) (t state, err error) {
	t.loc = target
	t.vals = append([]int64(nil), s.vals...)
	for _, a := range d.Update.Assignments() {
		i, ok := e.index[a.Var]
		if !ok {
			err = fmt.Errorf("assignment to unknown variable %s", a.Var)
			return
		}
		var v constant.Value
		if v, err = expr.Eval(a.Expr, env); err != nil {
			return
		}
		v = expr.Normalize(v)
		switch v.Kind() {
		case constant.Bool:
			t.vals[i] = 0
			if constant.BoolVal(v) {
				t.vals[i] = 1
			}
		case constant.Int:
			t.vals[i], _ = constant.Int64Val(v)
		default:
			err = fmt.Errorf("%w: %s' = %s", ErrOutOfBounds, a.Var, v)
			return
		}
		if t.vals[i] < e.lo[i] || t.vals[i] > e.hi[i] {
			err = fmt.Errorf("%w: %s' = %d not in [%d..%d]", ErrOutOfBounds, a.Var, t.vals[i], e.lo[i], e.hi[i])
			return
		}
	}
	return
}

// explore は初期状態から到達できる状態と遷移を列挙する関数
func (e *explorer) explore(maxStates int) (err error) {
	s0, err := e.initial()
	if err != nil {
		return
	}
	if _, err = e.add(s0, maxStates); err != nil {
		return
	}
	for cur := 0; cur < len(e.states); cur++ {
		s := e.states[cur]
		env := e.env(s)
		var g bool
		if g, err = evalBool(e.goal, env); err != nil {
			err = fmt.Errorf("goal: %w", err)
			return
		}
		e.isGoal = append(e.isGoal, g)
		if g {
			e.choices = append(e.choices, nil)
			continue
		}

		var choices [][]trans
		for _, c := range e.cmds[s.loc] {
			var enabled bool
			if enabled, err = evalBool(c.Guard, env); err != nil {
				err = fmt.Errorf("guard of %s: %w", c, err)
				return
			}
			if !enabled {
				continue
			}
			var dist []trans
			sum := 0.0
			for i, d := range c.Dests {
				var pr float64
				if pr, err = evalFloat(d.Prob, env); err != nil {
					return
				}
				var t state
				if t, err = e.successor(s, env, d, e.targets[c][i]); err != nil {
					return
				}
				var ti int
				if ti, err = e.add(t, maxStates); err != nil {
					return
				}
				sum += pr
				dist = append(dist, trans{to: ti, prob: pr})
			}
			if math.Abs(sum-1) > probTolerance {
				err = fmt.Errorf("%w: %g in %s", ErrProbabilitySum, sum, c)
				return
			}
			choices = append(choices, dist)
		}
		if len(choices) == 0 {
			// デッドロックは自己ループにする
			choices = [][]trans{{{to: cur, prob: 1}}}
		}
		if e.p.Type == pcfp.DTMC && len(choices) > 1 {
			choices = [][]trans{uniform(choices)}
		}
		e.choices = append(e.choices, choices)
	}
	return
}

// uniform は有効なコマンドを等確率で選ぶ分布を作る関数
func uniform(choices [][]trans) (r []trans) {
	w := 1 / float64(len(choices))
	for _, dist := range choices {
		for _, t := range dist {
			r = append(r, trans{to: t.to, prob: t.prob * w})
		}
	}
	return
}

// prob0 はゴールに到達する経路のない状態の集合を求める関数
func (e *explorer) prob0() (zero []bool) {
	n := len(e.states)
	pred := make([][]int, n)
	for s, choices := range e.choices {
		for _, dist := range choices {
			for _, t := range dist {
				if t.prob > 0 {
					pred[t.to] = append(pred[t.to], s)
				}
			}
		}
	}
	reach := make([]bool, n)
	var queue []int
	for s := range e.states {
		if e.isGoal[s] {
			reach[s] = true
			queue = append(queue, s)
		}
	}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, q := range pred[s] {
			if !reach[q] {
				reach[q] = true
				queue = append(queue, q)
			}
		}
	}
	zero = make([]bool, n)
	for s := range zero {
		zero[s] = !reach[s]
	}
	return
}

// Reachability は初期状態からゴールに到達する確率を計算する関数。
// mdp のときは最大の確率。
func (c *Checker) Reachability(p *pcfp.Program, goal ast.Expr) (r Result, err error) {
	if consts := p.Constants(); len(consts) > 0 {
		var names []string
		for _, k := range consts {
			names = append(names, k.Name)
		}
		err = fmt.Errorf("%w: %s", ErrUndefinedConstants, strings.Join(names, ", "))
		return
	}
	e, err := newExplorer(p, goal)
	if err != nil {
		return
	}
	if err = e.explore(c.MaxStates); err != nil {
		return
	}
	r.States = len(e.states)
	for _, choices := range e.choices {
		for _, dist := range choices {
			r.Transitions += len(dist)
		}
	}

	zero := e.prob0()
	x := make([]float64, len(e.states))
	for s := range x {
		if e.isGoal[s] {
			x[s] = 1
		}
	}
	// Gauss-Seidel 法
	for r.Iterations < c.MaxIterations {
		r.Iterations++
		diff := 0.0
		for s, choices := range e.choices {
			if e.isGoal[s] || zero[s] {
				continue
			}
			best := 0.0
			for _, dist := range choices {
				v := 0.0
				for _, t := range dist {
					v += t.prob * x[t.to]
				}
				if v > best {
					best = v
				}
			}
			if d := math.Abs(best - x[s]); d > diff {
				diff = d
			}
			x[s] = best
		}
		if diff < c.Epsilon {
			break
		}
	}
	r.Probability = x[0]
	return
}
