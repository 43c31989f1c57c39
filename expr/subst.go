// subst.go
// 式の置換

package expr

import (
	"go/ast"
	"sort"
)

// Subst は式 expr の中に出現する変数を m の式で置換する関数。expr[m]。
// 置換は一度だけ行う (置換後の式をさらに置換することはない)。
// 元の AST は変更せず、変わった部分だけ新しいノードを作る。
func Subst(expr ast.Expr, m map[string]ast.Expr) (r ast.Expr) {
	if len(m) == 0 {
		return expr
	}
	switch e := expr.(type) {
	case *ast.BasicLit: // 定数のときはなにもしない。
		r = expr
	case *ast.Ident: // 変数のとき
		if s, ok := m[e.Name]; ok {
			r = s
			return
		}
		r = expr
	case *ast.BinaryExpr:
		r = &ast.BinaryExpr{
			X:  Subst(e.X, m),
			Op: e.Op,
			Y:  Subst(e.Y, m),
		}
	case *ast.UnaryExpr:
		r = &ast.UnaryExpr{
			X:  Subst(e.X, m),
			Op: e.Op,
		}
	case *ast.CallExpr:
		args := make([]ast.Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = Subst(a, m)
		}
		r = &ast.CallExpr{
			Fun:  e.Fun,
			Args: args,
		}
	case *ast.ParenExpr:
		r = Subst(e.X, m)
	default:
		// Parse でチェックしているので上記以外のケースはないはず
		r = expr
	}
	return
}

// Equals は式 x と式 y が同じかどうかを調べる関数。括弧は無視する。
func Equals(x, y ast.Expr) (ok bool) {
	x, y = unparen(x), unparen(y)
	switch xe := x.(type) {
	case *ast.Ident:
		ye, yok := y.(*ast.Ident)
		ok = yok && xe.Name == ye.Name
	case *ast.BasicLit:
		ye, yok := y.(*ast.BasicLit)
		ok = yok && xe.Kind == ye.Kind && xe.Value == ye.Value
	case *ast.BinaryExpr:
		ye, yok := y.(*ast.BinaryExpr)
		ok = yok && xe.Op == ye.Op && Equals(xe.X, ye.X) && Equals(xe.Y, ye.Y)
	case *ast.UnaryExpr:
		ye, yok := y.(*ast.UnaryExpr)
		ok = yok && xe.Op == ye.Op && Equals(xe.X, ye.X)
	case *ast.CallExpr:
		ye, yok := y.(*ast.CallExpr)
		if !yok || !Equals(xe.Fun, ye.Fun) || len(xe.Args) != len(ye.Args) {
			// y が CallExpr でないか、関数か引数の個数が同じでないときは false
			break
		}
		for i := range xe.Args {
			if !Equals(xe.Args[i], ye.Args[i]) {
				return
			}
		}
		ok = true
	}
	return
}

func unparen(e ast.Expr) ast.Expr {
	for {
		p, ok := e.(*ast.ParenExpr)
		if !ok {
			return e
		}
		e = p.X
	}
}

// isKeyword は true/false のように変数ではない Ident かどうかを調べる関数
func isKeyword(name string) bool {
	return name == "true" || name == "false"
}

// FreeVars は式に出現する変数名の集合を返す関数
func FreeVars(expr ast.Expr) (r map[string]bool) {
	r = map[string]bool{}
	collectVars(expr, r)
	return
}

// Vars は式に出現する変数名をソートして返す関数
func Vars(expr ast.Expr) (r []string) {
	for v := range FreeVars(expr) {
		r = append(r, v)
	}
	sort.Strings(r)
	return
}

func collectVars(expr ast.Expr, acc map[string]bool) {
	switch e := expr.(type) {
	case *ast.Ident:
		if !isKeyword(e.Name) {
			acc[e.Name] = true
		}
	case *ast.BinaryExpr:
		collectVars(e.X, acc)
		collectVars(e.Y, acc)
	case *ast.UnaryExpr:
		collectVars(e.X, acc)
	case *ast.CallExpr:
		// 関数名は変数ではない
		for _, a := range e.Args {
			collectVars(a, acc)
		}
	case *ast.ParenExpr:
		collectVars(e.X, acc)
	}
}

// HasVars は式に変数が含まれるかどうかを調べる関数
func HasVars(expr ast.Expr) bool {
	switch e := expr.(type) {
	case *ast.Ident:
		return !isKeyword(e.Name)
	case *ast.BinaryExpr:
		return HasVars(e.X) || HasVars(e.Y)
	case *ast.UnaryExpr:
		return HasVars(e.X)
	case *ast.CallExpr:
		for _, a := range e.Args {
			if HasVars(a) {
				return true
			}
		}
	case *ast.ParenExpr:
		return HasVars(e.X)
	}
	return false
}

// ContainsVar は式に変数 vs のどれかが含まれるかどうかを調べる関数
func ContainsVar(expr ast.Expr, vs map[string]bool) bool {
	for v := range FreeVars(expr) {
		if vs[v] {
			return true
		}
	}
	return false
}
