package pcfp

import (
	"errors"
	"go/constant"
	"go/token"
	"strings"
	"testing"

	"github.com/dr-deep/locelim/expr"
)

func intVar(name string, lo, hi int64) Variable {
	return Variable{Name: name, Type: expr.Int, Lower: expr.IntLit(lo), Upper: expr.IntLit(hi), Init: expr.IntLit(lo)}
}

func update(t *testing.T, kv ...string) Update {
	t.Helper()
	var as []Assignment
	for i := 0; i+1 < len(kv); i += 2 {
		as = append(as, Assignment{Var: kv[i], Expr: expr.MustParse(kv[i+1])})
	}
	u, err := NewUpdate(as...)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func dest(prob string, u Update) Destination {
	return Destination{Prob: expr.MustParse(prob), Update: u}
}

func loc(t *testing.T, s string) Location {
	t.Helper()
	l, err := ParseLocation(s)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

// branching は s=0 から s=1 と s=2 に半々で分かれ、s=3 で止まるプログラム
func branching(t *testing.T) *Program {
	p := NewProgram("m", DTMC, []Variable{intVar("s", 0, 3), intVar("x", 0, 2)})
	p.AddCommand("", expr.MustParse("s == 0"),
		dest("1/2", update(t, "s", "1")),
		dest("1/2", update(t, "s", "2")))
	p.AddCommand("", expr.MustParse("s == 1"), dest("1", update(t, "s", "3", "x", "1")))
	p.AddCommand("", expr.MustParse("s == 2"), dest("1", update(t, "s", "3", "x", "2")))
	p.AddCommand("", expr.MustParse("s == 3"), dest("1", update(t, "s", "s")))
	return p
}

func TestLocation(t *testing.T) {
	l := loc(t, "y=2, x=true")
	if l.Key() != "x=true,y=2" {
		t.Errorf("Expected key x=true,y=2, got %s", l.Key())
	}
	if !l.Equal(NewLocation(map[string]constant.Value{
		"y": constant.MakeInt64(2),
		"x": constant.MakeBool(true),
	})) {
		t.Errorf("Expected locations to be equal")
	}
	if l.Equal(loc(t, "x=true,y=3")) {
		t.Errorf("Expected locations to differ")
	}
	if !(Location{}).IsEmpty() {
		t.Errorf("Expected zero location to be empty")
	}
	// 4/2 と 2 は同じ値
	if !loc(t, "y=4/2").Equal(loc(t, "y=2")) {
		t.Errorf("Expected y=4/2 and y=2 to be the same location")
	}
	if _, err := ParseLocation("y"); err == nil {
		t.Errorf("Expected error for a component without a value")
	}
}

func TestUpdateAfterAndWP(t *testing.T) {
	env := expr.MapEnv(map[string]constant.Value{
		"x": constant.MakeInt64(3),
		"y": constant.MakeInt64(5),
	})
	u1 := update(t, "x", "x + 1", "y", "0")
	u2 := update(t, "x", "2 * x", "z", "y")
	r := u2.After(u1)
	want := map[string]int64{"x": 8, "y": 0, "z": 0}
	if r.Len() != len(want) {
		t.Errorf("Expected %d assignments, got %s", len(want), r)
	}
	for n, w := range want {
		e, ok := r.Get(n)
		if !ok {
			t.Errorf("Expected an assignment to %s in %s", n, r)
			continue
		}
		v, err := expr.Eval(e, env)
		if err != nil || !constant.Compare(v, token.EQL, constant.MakeInt64(w)) {
			t.Errorf("Expected %s' = %d at x = 3, got %s", n, w, expr.Format(e))
		}
	}

	g := u1.WP(expr.MustParse("x > 3 && y == 0"))
	if expr.FreeVars(g)["y"] {
		t.Errorf("Expected y to be substituted, got %s", expr.Format(g))
	}
	for x, w := range map[int64]bool{2: false, 3: true} {
		v, err := expr.Eval(g, expr.MapEnv(map[string]constant.Value{"x": constant.MakeInt64(x)}))
		if err != nil || constant.BoolVal(v) != w {
			t.Errorf("Expected wp at x = %d to be %v, got %s", x, w, expr.Format(g))
		}
	}

	if _, err := NewUpdate(
		Assignment{Var: "x", Expr: expr.IntLit(1)},
		Assignment{Var: "x", Expr: expr.IntLit(2)},
	); !errors.Is(err, ErrInvalidUpdate) {
		t.Errorf("Expected ErrInvalidUpdate, got %v", err)
	}
	if !update(t, "x", "x").IsIdentity() {
		t.Errorf("Expected x' = x to be an identity")
	}
	if update(t, "x", "x + 1").IsIdempotent() {
		t.Errorf("Expected x' = x + 1 not to be idempotent")
	}
	if !update(t, "x", "y", "z", "1").IsIdempotent() {
		t.Errorf("Expected x' = y, z' = 1 to be idempotent")
	}
	idem := update(t, "x", "y", "z", "1")
	if r := idem.After(idem); !r.Equal(idem) {
		t.Errorf("Expected %s after itself to be the same, got %s", idem, r)
	}
}

func TestUnfold(t *testing.T) {
	p := branching(t)
	if err := p.Unfold("s"); err != nil {
		t.Fatal(err)
	}
	if n := len(p.Locations()); n != 4 {
		t.Errorf("Expected 4 locations, got %d", n)
	}
	if !p.IsUnfolded("s") {
		t.Errorf("Expected s to be unfolded")
	}
	if !p.HasSelfloop(loc(t, "s=3")) {
		t.Errorf("Expected a self-loop at s=3")
	}
	for _, c := range p.Commands() {
		if !expr.IsTrue(c.Guard) {
			t.Errorf("Expected guard true after unfolding, got %s", c)
		}
		for _, d := range c.Dests {
			if _, ok := d.Update.Get("s"); ok {
				t.Errorf("Expected no assignment to s, got %s", c)
			}
		}
	}
	if err := p.Unfold("s"); !errors.Is(err, ErrNotUnfoldable) {
		t.Errorf("Expected ErrNotUnfoldable for the second unfold, got %v", err)
	}
	if err := p.Unfold("nosuch"); !errors.Is(err, ErrUnknownVariable) {
		t.Errorf("Expected ErrUnknownVariable, got %v", err)
	}
}

func TestUnfoldDependentVariable(t *testing.T) {
	p := NewProgram("m", DTMC, []Variable{intVar("x", 0, 2), intVar("y", 0, 2)})
	p.AddCommand("", expr.MustParse("x < 2"), dest("1", update(t, "x", "y")))
	if p.IsUnfoldable("x") {
		t.Errorf("Expected x not to be unfoldable")
	}
	if err := p.Unfold("x"); !errors.Is(err, ErrNotUnfoldable) {
		t.Errorf("Expected ErrNotUnfoldable, got %v", err)
	}
	if vs := p.UnfoldableVars(); len(vs) != 1 || vs[0] != "y" {
		t.Errorf("Expected [y], got %v", vs)
	}
}

func TestUnfoldNonConstantBounds(t *testing.T) {
	v := intVar("x", 0, 0)
	v.Upper = expr.MustParse("N")
	p := NewProgram("m", DTMC, []Variable{v})
	p.AddConstant(Constant{Name: "N", Type: expr.Int})
	p.AddCommand("", expr.MustParse("x < N"), dest("1", update(t, "x", "x + 1")))
	if err := p.Unfold("x"); !errors.Is(err, ErrNonConstantBounds) {
		t.Errorf("Expected ErrNonConstantBounds, got %v", err)
	}
	if err := p.DefineConstant("N", constant.MakeInt64(3)); err != nil {
		t.Fatal(err)
	}
	if err := p.Unfold("x"); err != nil {
		t.Fatal(err)
	}
	// x=3 には入ってくるが出ていくコマンドはない
	if n := len(p.Locations()); n != 3 {
		t.Errorf("Expected 3 locations, got %d", n)
	}
}

func TestUnfoldRemovesUnreachable(t *testing.T) {
	p := NewProgram("m", DTMC, []Variable{intVar("s", 0, 2)})
	p.AddCommand("", expr.MustParse("s == 0"), dest("1", update(t, "s", "1")))
	p.AddCommand("", expr.MustParse("s == 1"), dest("1", update(t, "s", "0")))
	p.AddCommand("", expr.MustParse("s == 2"), dest("1", update(t, "s", "0")))
	if err := p.Unfold("s"); err != nil {
		t.Fatal(err)
	}
	if p.HasLocation(loc(t, "s=2")) {
		t.Errorf("Expected s=2 to be removed")
	}
	if n := len(p.Commands()); n != 2 {
		t.Errorf("Expected 2 commands, got %d", n)
	}
}

func TestEliminateLoc(t *testing.T) {
	p := branching(t)
	if err := p.Unfold("s"); err != nil {
		t.Fatal(err)
	}
	if err := p.EliminateLoc(loc(t, "s=1")); err != nil {
		t.Fatal(err)
	}
	if p.HasLocation(loc(t, "s=1")) {
		t.Errorf("Expected s=1 to be eliminated")
	}
	cs := p.CommandsWithSource(loc(t, "s=0"))
	if len(cs) != 1 {
		t.Fatalf("Expected 1 command at s=0, got %d", len(cs))
	}
	var spliced *Destination
	for i, d := range cs[0].Dests {
		if d.Target.Equal(loc(t, "s=3")) {
			spliced = &cs[0].Dests[i]
		}
	}
	if spliced == nil {
		t.Fatalf("Expected a destination to s=3, got %s", cs[0])
	}
	if v, ok := expr.Constant(spliced.Prob); !ok || !constant.Compare(v, token.EQL, constant.MakeFloat64(0.5)) {
		t.Errorf("Expected probability 1/2, got %s", expr.Format(spliced.Prob))
	}
	if e, ok := spliced.Update.Get("x"); !ok || !expr.Equals(e, expr.IntLit(1)) {
		t.Errorf("Expected x' = 1, got %s", spliced.Update)
	}
	if n := len(p.DestinationsWithTarget(loc(t, "s=1"), true)); n != 0 {
		t.Errorf("Expected no edges into s=1, got %d", n)
	}
}

func TestEliminateLocErrors(t *testing.T) {
	p := branching(t)
	if err := p.Unfold("s"); err != nil {
		t.Fatal(err)
	}
	before := len(p.Commands())
	if err := p.EliminateLoc(loc(t, "s=3")); !errors.Is(err, ErrIneligibleElimination) {
		t.Errorf("Expected ErrIneligibleElimination for a self-loop, got %v", err)
	}
	if err := p.EliminateLoc(loc(t, "s=0")); !errors.Is(err, ErrIneligibleElimination) {
		t.Errorf("Expected ErrIneligibleElimination for the initial location, got %v", err)
	}
	if err := p.EliminateLoc(loc(t, "s=7")); !errors.Is(err, ErrUnknownLocation) {
		t.Errorf("Expected ErrUnknownLocation, got %v", err)
	}
	if n := len(p.Commands()); n != before {
		t.Errorf("Expected the program to be unchanged, got %d commands instead of %d", n, before)
	}
}

func TestEliminableLocs(t *testing.T) {
	p := branching(t)
	if err := p.Unfold("s"); err != nil {
		t.Fatal(err)
	}
	locs, err := p.EliminableLocs(expr.MustParse("s == 2"))
	if err != nil {
		t.Fatal(err)
	}
	if len(locs) != 1 || !locs[0].Equal(loc(t, "s=1")) {
		t.Errorf("Expected [{s=1}], got %v", locs)
	}
	sinks, err := p.SinkLocs(expr.MustParse("x == 1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(sinks) != 0 {
		t.Errorf("Expected no sinks while x is free, got %v", sinks)
	}
	sinks, err = p.SinkLocs(expr.MustParse("s == 2"))
	if err != nil {
		t.Fatal(err)
	}
	if len(sinks) != 1 || !sinks[0].Equal(loc(t, "s=3")) {
		t.Errorf("Expected [{s=3}], got %v", sinks)
	}
}

func TestLuckyLocation(t *testing.T) {
	p := NewProgram("m", DTMC, []Variable{intVar("s", 0, 2), intVar("x", 0, 1)})
	p.AddCommand("", expr.MustParse("s == 0"), dest("1", update(t, "s", "1", "x", "1")))
	p.AddCommand("", expr.MustParse("s == 1 && x == 0"), dest("1", update(t, "s", "1")))
	p.AddCommand("", expr.MustParse("s == 1 && x == 1"), dest("1", update(t, "s", "2")))
	if err := p.Unfold("s"); err != nil {
		t.Fatal(err)
	}
	l := loc(t, "s=1")
	if !p.HasSelfloop(l) {
		t.Fatalf("Expected a self-loop at s=1")
	}
	lucky, err := p.IsLocLucky(l)
	if err != nil {
		t.Fatal(err)
	}
	if !lucky {
		t.Errorf("Expected s=1 to be lucky")
	}
	if lucky, _ := p.IsLocLucky(loc(t, "s=0")); lucky {
		t.Errorf("Expected a location without self-loops not to be lucky")
	}
	if err := p.EliminateLoc(l); err != nil {
		t.Fatal(err)
	}
	cs := p.Commands()
	if len(cs) != 1 || !cs[0].Dests[0].Target.Equal(loc(t, "s=2")) {
		t.Errorf("Expected one command from s=0 to s=2, got %v", cs)
	}
}

func TestRemoveDuplicateCommands(t *testing.T) {
	p := NewProgram("m", DTMC, []Variable{intVar("x", 0, 1)})
	p.AddCommand("", expr.MustParse("x == 0"), dest("1", update(t, "x", "1")))
	p.AddCommand("", expr.MustParse("x == 1"), dest("1", update(t, "x", "1")))
	p.AddCommand("a", expr.MustParse("x == 1"), dest("1", update(t, "x", "1")))
	if n := p.RemoveDuplicateCommands(); n != 1 {
		t.Errorf("Expected 1 merged command, got %d", n)
	}
	cs := p.Commands()
	if len(cs) != 2 {
		t.Fatalf("Expected 2 commands, got %d", len(cs))
	}
	if !expr.Equals(cs[0].Guard, expr.MustParse("x == 0 || x == 1")) {
		t.Errorf("Expected guard x == 0 || x == 1, got %s", expr.Format(cs[0].Guard))
	}
	if cs[1].Label != "a" {
		t.Errorf("Expected the labelled command to be kept, got %s", cs[1])
	}
}

func TestEliminateNopSelfloops(t *testing.T) {
	p := NewProgram("m", DTMC, []Variable{intVar("x", 0, 1)})
	p.AddCommand("", expr.MustParse("x == 0"),
		dest("0.25", update(t)),
		dest("0.75", update(t, "x", "1")))
	p.AddCommand("", expr.MustParse("x == 1"), dest("1", update(t)))
	if n := p.EliminateNopSelfloops(); n != 1 {
		t.Errorf("Expected 1 removed self-loop, got %d", n)
	}
	cs := p.Commands()
	if len(cs[0].Dests) != 1 {
		t.Fatalf("Expected 1 destination, got %s", cs[0])
	}
	if v, ok := expr.Constant(cs[0].Dests[0].Prob); !ok || !constant.Compare(v, token.EQL, constant.MakeInt64(1)) {
		t.Errorf("Expected probability 1, got %s", expr.Format(cs[0].Dests[0].Prob))
	}
	// 自己ループだけのコマンドはそのまま
	if len(cs[1].Dests) != 1 {
		t.Errorf("Expected the pure self-loop to be kept, got %s", cs[1])
	}
}

func TestEliminateNopSelfloopsIdentity(t *testing.T) {
	p := NewProgram("m", DTMC, []Variable{intVar("x", 0, 1)})
	p.AddCommand("", expr.MustParse("x == 0"),
		dest("1/2", update(t, "x", "x")),
		dest("1/2", update(t, "x", "1")))
	if n := p.EliminateNopSelfloops(); n != 1 {
		t.Errorf("Expected x' = x to be removed as a self-loop, got %d", n)
	}
}

func TestEliminateNopSelfloopsSymbolic(t *testing.T) {
	p := NewProgram("m", DTMC, []Variable{intVar("x", 0, 1)})
	p.AddConstant(Constant{Name: "q", Type: expr.Double})
	p.AddCommand("", expr.MustParse("x == 0"),
		dest("q", update(t)),
		dest("1 - q", update(t, "x", "1")))
	if n := p.EliminateNopSelfloops(); n != 0 {
		t.Errorf("Expected no removed self-loop, got %d", n)
	}
	if cs := p.Commands(); len(cs[0].Dests) != 2 {
		t.Errorf("Expected the command to be kept, got %s", cs[0])
	}
}

func TestRemoveDuplicateCommandsReordered(t *testing.T) {
	p := NewProgram("m", DTMC, []Variable{intVar("x", 0, 2)})
	p.AddCommand("", expr.MustParse("x == 0"),
		dest("1/4", update(t, "x", "1")),
		dest("3/4", update(t, "x", "2")))
	p.AddCommand("", expr.MustParse("x == 1"),
		dest("3/4", update(t, "x", "2")),
		dest("1/4", update(t, "x", "1")))
	p.AddCommand("", expr.MustParse("x == 2"),
		dest("3/4", update(t, "x", "2")),
		dest("1/4", update(t, "x", "2")))
	if n := p.RemoveDuplicateCommands(); n != 1 {
		t.Errorf("Expected 1 merged command, got %d", n)
	}
	cs := p.Commands()
	if len(cs) != 2 || !expr.Equals(cs[0].Guard, expr.MustParse("x == 0 || x == 1")) {
		t.Errorf("Expected the reordered commands to be merged, got %v", cs)
	}
}

func TestEliminateUnsatisfiableCommands(t *testing.T) {
	p := NewProgram("m", DTMC, []Variable{intVar("s", 0, 2), intVar("x", 0, 1)})
	p.AddCommand("", expr.MustParse("s == 0"), dest("1", update(t, "s", "1", "x", "1")))
	p.AddCommand("", expr.MustParse("s == 1 && x == 0"), dest("1", update(t, "s", "2")))
	p.AddCommand("", expr.MustParse("s == 1 && x == 1"), dest("1", update(t, "s", "0")))
	if err := p.Unfold("s"); err != nil {
		t.Fatal(err)
	}
	n, err := p.EliminateUnsatisfiableCommands()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Expected 1 removed command, got %d", n)
	}
	for _, c := range p.Commands() {
		if expr.Equals(c.Guard, expr.MustParse("x == 0")) {
			t.Errorf("Expected %s to be removed", c)
		}
	}
}

func TestRefold(t *testing.T) {
	p := branching(t)
	if err := p.Unfold("s"); err != nil {
		t.Fatal(err)
	}
	p.Refold()
	if len(p.UnfoldedVars()) != 0 {
		t.Errorf("Expected no unfolded variables, got %v", p.UnfoldedVars())
	}
	if n := len(p.Locations()); n != 1 {
		t.Errorf("Expected 1 location, got %d", n)
	}
	if err := p.Unfold("s"); err != nil {
		t.Errorf("Expected s to be unfoldable again, got %v", err)
	}
}

func TestToPrism(t *testing.T) {
	p := branching(t)
	p.AddConstant(Constant{Name: "N", Type: expr.Int})
	if err := p.Unfold("s"); err != nil {
		t.Fatal(err)
	}
	out := p.ToPrism()
	for _, want := range []string{
		prismHeader,
		"dtmc",
		"const int N;",
		"module m",
		"x : [0..2] init 0;",
		"(s=1)",
		"(s'=3)",
		"endmodule",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in\n%s", want, out)
		}
	}
}

func compose(t *testing.T) *Composition {
	c := NewComposition(DTMC, nil, nil)
	m1 := NewProgram("m1", DTMC, []Variable{intVar("x", 0, 1)})
	m1.AddCommand("a", expr.MustParse("x == 0"), dest("1", update(t, "x", "1")))
	m2 := NewProgram("m2", DTMC, []Variable{intVar("y", 0, 1), intVar("z", 0, 1)})
	m2.AddCommand("a", expr.MustParse("y == 0"),
		dest("1/2", update(t, "y", "1")),
		dest("1/2", update(t, "y", "0")))
	m2.AddCommand("", expr.MustParse("x == 1 && z == 0"), dest("1", update(t, "z", "1")))
	c.AddModule(m1)
	c.AddModule(m2)
	return c
}

func TestCompositionUnfold(t *testing.T) {
	c := compose(t)
	if err := c.Unfold("x"); !errors.Is(err, ErrNotUnfoldable) {
		t.Errorf("Expected ErrNotUnfoldable for a variable read by another module, got %v", err)
	}
	if err := c.Unfold("w"); !errors.Is(err, ErrUnknownVariable) {
		t.Errorf("Expected ErrUnknownVariable, got %v", err)
	}
	if !c.IsUnfoldable("y") {
		t.Errorf("Expected y to be unfoldable")
	}
	if err := c.Unfold("y"); err != nil {
		t.Fatal(err)
	}
	if !c.Module("m2").IsUnfolded("y") {
		t.Errorf("Expected y to be unfolded in m2")
	}
}

func TestFlatten(t *testing.T) {
	c := compose(t)
	f, err := c.Flatten()
	if err != nil {
		t.Fatal(err)
	}
	p, err := f.Program()
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "m1_m2" {
		t.Errorf("Expected name m1_m2, got %s", p.Name)
	}
	if n := len(p.Variables()); n != 3 {
		t.Errorf("Expected 3 variables, got %d", n)
	}
	st := p.Stats()
	if st.Commands != 2 || st.Destinations != 3 {
		t.Errorf("Expected 2 commands and 3 destinations, got %+v", st)
	}
	var synced *Command
	for _, cmd := range p.Commands() {
		if cmd.Label != "" {
			t.Errorf("Expected no labels after flattening, got %s", cmd)
		}
		if len(cmd.Dests) == 2 {
			synced = cmd
		}
	}
	if synced == nil {
		t.Fatalf("Expected a synchronised command")
	}
	if !expr.Equals(synced.Guard, expr.MustParse("x == 0 && y == 0")) {
		t.Errorf("Expected guard x == 0 && y == 0, got %s", expr.Format(synced.Guard))
	}
	if synced.Dests[0].Update.Len() != 2 {
		t.Errorf("Expected both modules' assignments, got %s", synced.Dests[0].Update)
	}
	// 元の合成は変わらない
	if len(c.Modules) != 2 {
		t.Errorf("Expected the original composition to keep 2 modules")
	}
}

func TestFlattenConflict(t *testing.T) {
	c := NewComposition(DTMC, nil, []Variable{intVar("g", 0, 1)})
	m1 := NewProgram("m1", DTMC, nil)
	m1.AddCommand("a", expr.True(), dest("1", update(t, "g", "1")))
	m2 := NewProgram("m2", DTMC, nil)
	m2.AddCommand("a", expr.True(), dest("1", update(t, "g", "0")))
	c.AddModule(m1)
	c.AddModule(m2)
	if _, err := c.Flatten(); !errors.Is(err, ErrInvalidUpdate) {
		t.Errorf("Expected ErrInvalidUpdate, got %v", err)
	}
}

func TestCompositionDefineConstant(t *testing.T) {
	c := NewComposition(DTMC, []Constant{{Name: "N", Type: expr.Int}}, nil)
	v := intVar("x", 0, 0)
	v.Upper = expr.MustParse("N")
	m := NewProgram("m", DTMC, []Variable{v})
	m.AddCommand("", expr.MustParse("x < N"), dest("1", update(t, "x", "x + 1")))
	c.AddModule(m)
	c.Labels = append(c.Labels, Label{Name: "done", Expr: expr.MustParse("x == N")})

	if err := c.DefineConstant("N", constant.MakeInt64(2)); err != nil {
		t.Fatal(err)
	}
	if len(c.Constants()) != 0 || len(m.Constants()) != 0 {
		t.Errorf("Expected no undefined constants, got %v", c.Constants())
	}
	if !expr.Equals(c.Labels[0].Expr, expr.MustParse("x == 2")) {
		t.Errorf("Expected label x == 2, got %s", expr.Format(c.Labels[0].Expr))
	}
	if err := c.DefineConstant("N", constant.MakeInt64(2)); !errors.Is(err, ErrUnknownVariable) {
		t.Errorf("Expected ErrUnknownVariable, got %v", err)
	}
	out := c.ToPrism()
	if !strings.Contains(out, `label "done" = `) {
		t.Errorf("Expected a label in\n%s", out)
	}
}
