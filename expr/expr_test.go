package expr

import (
	"errors"
	"go/ast"
	"go/constant"
	"go/token"
	"testing"
)

func TestParseRejects(t *testing.T) {
	for _, s := range []string{
		"x = 1",
		"f(x)",
		"a.b",
		`"s" == x`,
		"min()",
		"Ite(a, b)",
		"x << 2",
	} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Expected parse error for %q", s)
		}
	}
}

func TestEval(t *testing.T) {
	env := MapEnv(map[string]constant.Value{
		"x": constant.MakeInt64(2),
		"b": constant.MakeBool(true),
	})
	cases := []struct {
		in   string
		want constant.Value
	}{
		{"1/2 + 1/2", constant.MakeInt64(1)},
		{"7 % 3", constant.MakeInt64(1)},
		{"-7 % 3", constant.MakeInt64(2)},
		{"mod(-1, 4)", constant.MakeInt64(3)},
		{"floor(7/2)", constant.MakeInt64(3)},
		{"ceil(7/2)", constant.MakeInt64(4)},
		{"floor(-7/2)", constant.MakeInt64(-4)},
		{"pow(2, 10)", constant.MakeInt64(1024)},
		{"min(3, 1, 2)", constant.MakeInt64(1)},
		{"max(x, 5)", constant.MakeInt64(5)},
		{"Ite(x > 1, 10, 20)", constant.MakeInt64(10)},
		{"Implies(false, 1/0 == 1)", constant.MakeBool(true)},
		{"b && x == 2", constant.MakeBool(true)},
		{"false && 1/0 == 1", constant.MakeBool(false)},
		{"x * 0.5", constant.MakeInt64(1)},
	}
	for _, c := range cases {
		got, err := Eval(MustParse(c.in), env)
		if err != nil {
			t.Errorf("Expected %s to evaluate, got error %v", c.in, err)
			continue
		}
		if got.Kind() != c.want.Kind() || !constant.Compare(got, token.EQL, c.want) {
			t.Errorf("Expected %s = %s, got %s", c.in, c.want, got)
		}
	}
}

func TestEvalErrors(t *testing.T) {
	if _, err := Eval(MustParse("x / 0"), MapEnv(map[string]constant.Value{"x": constant.MakeInt64(1)})); err == nil {
		t.Errorf("Expected division by zero error")
	}
	_, err := Eval(MustParse("y + 1"), nil)
	if !errors.Is(err, ErrFreeVariable) {
		t.Errorf("Expected ErrFreeVariable, got %v", err)
	}
	if _, err := Eval(MustParse("!3"), nil); err == nil {
		t.Errorf("Expected type error for !3")
	}
}

func TestSimplify(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"x && true", "x"},
		{"x || true", "true"},
		{"false && x", "false"},
		{"x + 1 + 1", "x + 2"},
		{"x - 1 + 1", "x"},
		{"x + 1 - 3", "x - 2"},
		{"(3 - 1) * y", "2 * y"},
		{"1 * y + 0", "y"},
		{"0.5 * 2", "1"},
		{"0.02", "1/50"},
		{"!(x < 3)", "x >= 3"},
		{"!!b", "b"},
		{"Ite(true, x, y)", "x"},
		{"Ite(c, x, x)", "x"},
		{"Implies(false, x)", "true"},
		{"b == false", "!b"},
		{"x == x", "true"},
		{"1/2 * x", "1/2 * x"},
		{"1/0 + x", "1/0 + x"},
	}
	for _, c := range cases {
		got := Simplify(MustParse(c.in))
		if !Equals(got, MustParse(c.want)) {
			t.Errorf("Expected Simplify(%s) = %s, got %s", c.in, c.want, Format(got))
		}
	}
}

func TestSubst(t *testing.T) {
	got := Subst(MustParse("x + y"), map[string]ast.Expr{"x": MustParse("y*2")})
	if !Equals(got, MustParse("y*2 + y")) {
		t.Errorf("Expected y*2 + y, got %s", Format(got))
	}

	// 置換は一度だけ
	got = Subst(MustParse("x"), map[string]ast.Expr{"x": MustParse("x+1")})
	if !Equals(got, MustParse("x + 1")) {
		t.Errorf("Expected x + 1, got %s", Format(got))
	}

	// 元の式は変わらない
	orig := MustParse("a < b")
	Subst(orig, map[string]ast.Expr{"a": IntLit(3)})
	if !Equals(orig, MustParse("a < b")) {
		t.Errorf("Expected original expression to be unchanged, got %s", Format(orig))
	}
}

func TestVars(t *testing.T) {
	got := Vars(MustParse("min(x, y) + Ite(b, z, 1) > 0 && true"))
	want := []string{"b", "x", "y", "z"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
		}
	}
	if HasVars(MustParse("floor(3/2) + 1 > 0")) {
		t.Errorf("Expected no variables")
	}
}

func TestPrism(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"s == 4 && z/N < 0.1", "(s = 4) & ((z / N) < 0.1)"},
		{"x % 3", "mod(x, 3)"},
		{"Ite(b, 1, 2)", "(b ? 1 : 2)"},
		{"Implies(a, b)", "(a => b)"},
		{"!b || x != 1", "!b | (x != 1)"},
		{"-x", "-x"},
		{"min(x, 2)", "min(x, 2)"},
	}
	for _, c := range cases {
		if got := Prism(MustParse(c.in)); got != c.want {
			t.Errorf("Expected Prism(%s) = %q, got %q", c.in, c.want, got)
		}
	}
}

func TestFromValue(t *testing.T) {
	cases := []struct {
		v    constant.Value
		want string
	}{
		{constant.MakeInt64(-3), "-3"},
		{constant.MakeBool(true), "true"},
		{constant.BinaryOp(constant.MakeInt64(1), token.QUO, constant.MakeInt64(4)), "1/4"},
		{constant.BinaryOp(constant.MakeInt64(4), token.QUO, constant.MakeInt64(2)), "2"},
	}
	for _, c := range cases {
		if got := FromValue(c.v); !Equals(got, MustParse(c.want)) {
			t.Errorf("Expected %s, got %s", c.want, Format(got))
		}
	}
}
