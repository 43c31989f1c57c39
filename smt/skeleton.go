package smt

import (
	"go/ast"
	"go/constant"
	"go/token"

	"github.com/go-air/gini"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"

	"github.com/dr-deep/locelim/expr"
)

// Skeleton は式の命題骨格 (比較式などを独立した命題変数とみなしたもの) を
// SAT ソルバ gini で判定する Oracle。
// 骨格が充足不能なら元の式も充足不能なので Unsat を返す。それ以外は Unknown。
type Skeleton struct{}

// Check は式の命題骨格の充足可能性を判定する関数
func (Skeleton) Check(formula ast.Expr, vars []Var) (r Result, err error) {
	s := newSkeleton()
	root := s.lit(formula)
	switch root {
	case s.c.F:
		r = Unsat
		return
	case s.c.T:
		return
	}

	g := gini.New()
	s.c.ToCnf(g)
	// 定数 T は ToCnf に含まれないので単位節で固定する
	g.Add(s.c.T)
	g.Add(0)
	s.addExclusions(g)
	g.Assume(root)
	if g.Solve() == -1 {
		r = Unsat
	}
	return
}

type skeleton struct {
	c     *logic.C
	atoms map[string]z.Lit
	// 変数 = 定数 の形の原子式。同じ変数で値の違うものは同時に成り立たない。
	points map[string]map[string]z.Lit
}

func newSkeleton() *skeleton {
	return &skeleton{
		c:      logic.NewC(),
		atoms:  map[string]z.Lit{},
		points: map[string]map[string]z.Lit{},
	}
}

// atom は原子式に対応する命題変数を返す関数。同じ文字列の式には同じ変数を使う。
func (s *skeleton) atom(e ast.Expr) z.Lit {
	key := expr.Format(e)
	if m, ok := s.atoms[key]; ok {
		return m
	}
	m := s.c.Lit()
	s.atoms[key] = m
	if be, ok := e.(*ast.BinaryExpr); ok && be.Op == token.EQL {
		s.addPoint(be.X, be.Y, m)
		s.addPoint(be.Y, be.X, m)
	}
	return m
}

func (s *skeleton) addPoint(x, y ast.Expr, m z.Lit) {
	id, ok := x.(*ast.Ident)
	if !ok || expr.HasVars(y) {
		return
	}
	v, ok := expr.Constant(y)
	if !ok {
		return
	}
	if s.points[id.Name] == nil {
		s.points[id.Name] = map[string]z.Lit{}
	}
	s.points[id.Name][expr.Normalize(v).ExactString()] = m
}

// addExclusions は x == 1 と x == 2 が同時に成り立たないことを節として加える関数
func (s *skeleton) addExclusions(g *gini.Gini) {
	for _, vals := range s.points {
		var ms []z.Lit
		for _, m := range vals {
			ms = append(ms, m)
		}
		for i := range ms {
			for j := i + 1; j < len(ms); j++ {
				g.Add(ms[i].Not())
				g.Add(ms[j].Not())
				g.Add(0)
			}
		}
	}
}

// lit は真偽値の式を回路に変換する関数
func (s *skeleton) lit(e ast.Expr) z.Lit {
	switch x := e.(type) {
	case *ast.ParenExpr:
		return s.lit(x.X)
	case *ast.Ident:
		switch x.Name {
		case "true":
			return s.c.T
		case "false":
			return s.c.F
		}
		return s.atom(x)
	case *ast.UnaryExpr:
		if x.Op == token.NOT {
			return s.lit(x.X).Not()
		}
	case *ast.BinaryExpr:
		switch x.Op {
		case token.LAND:
			return s.c.And(s.lit(x.X), s.lit(x.Y))
		case token.LOR:
			return s.c.Or(s.lit(x.X), s.lit(x.Y))
		case token.NEQ:
			return s.lit(&ast.BinaryExpr{X: x.X, Op: token.EQL, Y: x.Y}).Not()
		case token.GEQ:
			return s.lit(&ast.BinaryExpr{X: x.X, Op: token.LSS, Y: x.Y}).Not()
		case token.GTR:
			return s.lit(&ast.BinaryExpr{X: x.X, Op: token.LEQ, Y: x.Y}).Not()
		}
		if v, ok := expr.Constant(x); ok && v.Kind() == constant.Bool {
			if constant.BoolVal(v) {
				return s.c.T
			}
			return s.c.F
		}
	case *ast.CallExpr:
		switch x.Fun.(*ast.Ident).Name {
		case "Implies":
			return s.c.Implies(s.lit(x.Args[0]), s.lit(x.Args[1]))
		case "Ite":
			return s.c.Choice(s.lit(x.Args[0]), s.lit(x.Args[1]), s.lit(x.Args[2]))
		}
	}
	return s.atom(e)
}
