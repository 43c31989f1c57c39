package check

import (
	"errors"
	"go/constant"
	"math"
	"testing"

	"github.com/dr-deep/locelim/expr"
	"github.com/dr-deep/locelim/pcfp"
)

func intVar(name string, lo, hi int64) pcfp.Variable {
	return pcfp.Variable{Name: name, Type: expr.Int, Lower: expr.IntLit(lo), Upper: expr.IntLit(hi), Init: expr.IntLit(lo)}
}

func dest(t *testing.T, prob string, kv ...string) pcfp.Destination {
	t.Helper()
	var as []pcfp.Assignment
	for i := 0; i+1 < len(kv); i += 2 {
		as = append(as, pcfp.Assignment{Var: kv[i], Expr: expr.MustParse(kv[i+1])})
	}
	u, err := pcfp.NewUpdate(as...)
	if err != nil {
		t.Fatal(err)
	}
	return pcfp.Destination{Prob: expr.MustParse(prob), Update: u}
}

func loc(t *testing.T, s string) pcfp.Location {
	t.Helper()
	l, err := pcfp.ParseLocation(s)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

// branching は s=0 から s=1 と s=2 に半々で分かれ、s=3 で止まるプログラム
func branching(t *testing.T) *pcfp.Program {
	p := pcfp.NewProgram("m", pcfp.DTMC, []pcfp.Variable{intVar("s", 0, 3), intVar("x", 0, 2)})
	p.AddCommand("", expr.MustParse("s == 0"), dest(t, "1/2", "s", "1"), dest(t, "1/2", "s", "2"))
	p.AddCommand("", expr.MustParse("s == 1"), dest(t, "1", "s", "3", "x", "1"))
	p.AddCommand("", expr.MustParse("s == 2"), dest(t, "1", "s", "3", "x", "2"))
	p.AddCommand("", expr.MustParse("s == 3"), dest(t, "1", "s", "s"))
	return p
}

func assertProb(t *testing.T, got Result, want float64) {
	t.Helper()
	if math.Abs(got.Probability-want) > 1e-9 {
		t.Errorf("Expected probability %g, got %g", want, got.Probability)
	}
}

func TestReachability(t *testing.T) {
	p := branching(t)
	r, err := Reachability(p, expr.MustParse("x == 1"))
	if err != nil {
		t.Fatal(err)
	}
	assertProb(t, r, 0.5)
	if r.States != 5 {
		t.Errorf("Expected 5 states, got %d", r.States)
	}
	r, err = Reachability(p, expr.MustParse("s == 3"))
	if err != nil {
		t.Fatal(err)
	}
	assertProb(t, r, 1)
}

func TestReachabilityAfterElimination(t *testing.T) {
	goal := expr.MustParse("x == 1")
	p := branching(t)
	if err := p.Unfold("s"); err != nil {
		t.Fatal(err)
	}
	r, err := Reachability(p, goal)
	if err != nil {
		t.Fatal(err)
	}
	assertProb(t, r, 0.5)

	for _, s := range []string{"s=1", "s=2"} {
		if err := p.EliminateLoc(loc(t, s)); err != nil {
			t.Fatal(err)
		}
		r, err = Reachability(p, goal)
		if err != nil {
			t.Fatal(err)
		}
		assertProb(t, r, 0.5)
	}
	if n := len(p.Locations()); n != 2 {
		t.Errorf("Expected 2 locations, got %d", n)
	}
}

func TestReachabilityDoubleIncoming(t *testing.T) {
	// s=0 から s=1 に x の値の違う二つの分岐で入る
	goal := expr.MustParse("s == 2 && x == 1")
	p := pcfp.NewProgram("m", pcfp.DTMC, []pcfp.Variable{intVar("s", 0, 2), intVar("x", 0, 2)})
	p.AddCommand("", expr.MustParse("s == 0"),
		dest(t, "1/4", "s", "1", "x", "1"),
		dest(t, "1/4", "s", "1", "x", "2"),
		dest(t, "1/2", "s", "2"))
	p.AddCommand("", expr.MustParse("s == 1"),
		dest(t, "1/2", "s", "2"),
		dest(t, "1/2", "s", "2", "x", "0"))
	p.AddCommand("", expr.MustParse("s == 2"), dest(t, "1", "s", "s"))
	if err := p.Unfold("s"); err != nil {
		t.Fatal(err)
	}
	r, err := Reachability(p, goal)
	if err != nil {
		t.Fatal(err)
	}
	assertProb(t, r, 0.125)

	if err := p.EliminateLoc(loc(t, "s=1")); err != nil {
		t.Fatal(err)
	}
	if p.HasLocation(loc(t, "s=1")) {
		t.Errorf("Expected s=1 to be eliminated")
	}
	r, err = Reachability(p, goal)
	if err != nil {
		t.Fatal(err)
	}
	assertProb(t, r, 0.125)
}

func TestReachabilitySymbolicSelfloop(t *testing.T) {
	// q : 何もしない + 1-q : s=1 は q=1 なら s=1 に到達しない
	build := func() *pcfp.Program {
		p := pcfp.NewProgram("m", pcfp.DTMC, []pcfp.Variable{intVar("s", 0, 1)})
		p.AddConstant(pcfp.Constant{Name: "q", Type: expr.Double})
		p.AddCommand("", expr.MustParse("s == 0"), dest(t, "q"), dest(t, "1 - q", "s", "1"))
		return p
	}
	goal := expr.MustParse("s == 1")
	for _, q := range []constant.Value{constant.MakeInt64(1), constant.MakeFloat64(0.5)} {
		orig, rewritten := build(), build()
		if n := rewritten.EliminateNopSelfloops(); n != 0 {
			t.Errorf("Expected the self-loop with a symbolic probability to be kept, got %d removed", n)
		}
		for _, p := range []*pcfp.Program{orig, rewritten} {
			if err := p.DefineConstant("q", q); err != nil {
				t.Fatal(err)
			}
		}
		want, err := Reachability(orig, goal)
		if err != nil {
			t.Fatal(err)
		}
		got, err := Reachability(rewritten, goal)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(got.Probability-want.Probability) > 1e-9 {
			t.Errorf("Expected probability %g at q = %s, got %g", want.Probability, q, got.Probability)
		}
	}
}

func TestReachabilityLoop(t *testing.T) {
	// 1/3 で成功、1/3 で失敗、1/3 でやり直し
	p := pcfp.NewProgram("m", pcfp.DTMC, []pcfp.Variable{intVar("s", 0, 2)})
	p.AddCommand("", expr.MustParse("s == 0"),
		dest(t, "1/3", "s", "1"),
		dest(t, "1/3", "s", "2"),
		dest(t, "1/3"))
	r, err := Reachability(p, expr.MustParse("s == 1"))
	if err != nil {
		t.Fatal(err)
	}
	assertProb(t, r, 0.5)

	if n := p.EliminateNopSelfloops(); n != 1 {
		t.Fatalf("Expected 1 removed self-loop, got %d", n)
	}
	r, err = Reachability(p, expr.MustParse("s == 1"))
	if err != nil {
		t.Fatal(err)
	}
	assertProb(t, r, 0.5)
}

func TestReachabilityChoices(t *testing.T) {
	build := func(typ pcfp.ModelType) *pcfp.Program {
		p := pcfp.NewProgram("m", typ, []pcfp.Variable{intVar("x", 0, 2)})
		p.AddCommand("", expr.MustParse("x == 0"), dest(t, "1", "x", "1"))
		p.AddCommand("", expr.MustParse("x == 0"), dest(t, "1/2", "x", "2"), dest(t, "1/2", "x", "1"))
		return p
	}
	goal := expr.MustParse("x == 2")
	r, err := Reachability(build(pcfp.MDP), goal)
	if err != nil {
		t.Fatal(err)
	}
	assertProb(t, r, 0.5)
	r, err = Reachability(build(pcfp.DTMC), goal)
	if err != nil {
		t.Fatal(err)
	}
	assertProb(t, r, 0.25)
}

func TestReachabilityBool(t *testing.T) {
	p := pcfp.NewProgram("m", pcfp.DTMC, []pcfp.Variable{
		{Name: "b", Type: expr.Bool, Init: expr.False()},
		intVar("n", 0, 3),
	})
	p.AddCommand("", expr.MustParse("!b && n < 3"), dest(t, "0.9", "n", "n + 1"), dest(t, "0.1", "b", "true"))
	r, err := Reachability(p, expr.MustParse("n == 3"))
	if err != nil {
		t.Fatal(err)
	}
	assertProb(t, r, 0.729)
}

func TestReachabilityErrors(t *testing.T) {
	p := pcfp.NewProgram("m", pcfp.DTMC, []pcfp.Variable{intVar("x", 0, 1)})
	p.AddConstant(pcfp.Constant{Name: "N", Type: expr.Int})
	p.AddCommand("", expr.MustParse("x < N"), dest(t, "1", "x", "x + 1"))
	if _, err := Reachability(p, expr.MustParse("x == 1")); !errors.Is(err, ErrUndefinedConstants) {
		t.Errorf("Expected ErrUndefinedConstants, got %v", err)
	}

	p = pcfp.NewProgram("m", pcfp.DTMC, []pcfp.Variable{intVar("x", 0, 1)})
	p.AddCommand("", expr.MustParse("x == 0"), dest(t, "1", "x", "x + 2"))
	if _, err := Reachability(p, expr.MustParse("x == 1")); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Expected ErrOutOfBounds, got %v", err)
	}

	p = pcfp.NewProgram("m", pcfp.DTMC, []pcfp.Variable{intVar("x", 0, 1)})
	p.AddCommand("", expr.MustParse("x == 0"), dest(t, "0.5", "x", "1"))
	if _, err := Reachability(p, expr.MustParse("x == 1")); !errors.Is(err, ErrProbabilitySum) {
		t.Errorf("Expected ErrProbabilitySum, got %v", err)
	}

	c := New()
	c.MaxStates = 2
	if _, err := c.Reachability(branching(t), expr.MustParse("x == 1")); !errors.Is(err, ErrTooManyStates) {
		t.Errorf("Expected ErrTooManyStates, got %v", err)
	}
}
