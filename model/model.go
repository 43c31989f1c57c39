// モデル記述ファイル (YAML / JSON) の読み込み

package model

import (
	"encoding/json"
	"fmt"
	"go/ast"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dr-deep/locelim/expr"
	"github.com/dr-deep/locelim/pcfp"
)

// File はモデル記述ファイルの内容。式は Golang 構文の文字列。
type File struct {
	Type      string     `json:"type" yaml:"type"`
	Constants []Constant `json:"constants,omitempty" yaml:"constants,omitempty"`
	Globals   []Variable `json:"globals,omitempty" yaml:"globals,omitempty"`
	Modules   []Module   `json:"modules" yaml:"modules"`
	Labels    []Label    `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// Constant は定数の宣言。Value が空なら未定義の定数。
type Constant struct {
	Name  string `json:"name" yaml:"name"`
	Type  string `json:"type,omitempty" yaml:"type,omitempty"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// Variable は変数の宣言。int のときは Lower と Upper が必要。
type Variable struct {
	Name  string `json:"name" yaml:"name"`
	Type  string `json:"type,omitempty" yaml:"type,omitempty"`
	Lower string `json:"lower,omitempty" yaml:"lower,omitempty"`
	Upper string `json:"upper,omitempty" yaml:"upper,omitempty"`
	Init  string `json:"init,omitempty" yaml:"init,omitempty"`
}

// Module はモジュールの宣言
type Module struct {
	Name      string     `json:"name" yaml:"name"`
	Variables []Variable `json:"variables,omitempty" yaml:"variables,omitempty"`
	Commands  []Command  `json:"commands" yaml:"commands"`
}

// Command はガード付きコマンド
type Command struct {
	Label   string   `json:"label,omitempty" yaml:"label,omitempty"`
	Guard   string   `json:"guard" yaml:"guard"`
	Updates []Update `json:"updates,omitempty" yaml:"updates,omitempty"`
}

// Update は確率的な分岐の一つ。Prob が空なら 1。
type Update struct {
	Prob   string            `json:"prob,omitempty" yaml:"prob,omitempty"`
	Assign map[string]string `json:"assign,omitempty" yaml:"assign,omitempty"`
}

// Label は PRISM の label 定義
type Label struct {
	Name string `json:"name" yaml:"name"`
	Expr string `json:"expr" yaml:"expr"`
}

// Load はモデル記述ファイルを読み込む関数。拡張子が .json なら JSON、それ以外は YAML。
func Load(filePath string) (f *File, err error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	f = &File{}
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json":
		err = json.Unmarshal(data, f)
	default:
		err = yaml.Unmarshal(data, f)
	}
	if err != nil {
		f = nil
		err = fmt.Errorf("%s: %w", filePath, err)
	}
	return
}

// LoadComposition はモデル記述ファイルを読み込んで Composition を作成する関数
func LoadComposition(filePath string) (c *pcfp.Composition, err error) {
	f, err := Load(filePath)
	if err != nil {
		return
	}
	c, err = f.Build()
	if err != nil {
		err = fmt.Errorf("%s: %w", filePath, err)
	}
	return
}

// builder は式のパースと定義済みの定数の代入をする
type builder struct {
	defs map[string]ast.Expr
}

func (b *builder) parse(what, s string) (e ast.Expr, err error) {
	e, err = expr.Parse(s)
	if err != nil {
		err = fmt.Errorf("%s: %w", what, err)
		return
	}
	e = expr.Simplify(expr.Subst(e, b.defs))
	return
}

// resolveConstants は定義済みの定数の値の式を互いに代入して閉じた形にする関数。
// 未定義の定数を参照する定義はその定数の式のまま残す。
func resolveConstants(consts []Constant) (defs map[string]ast.Expr, undefined []pcfp.Constant, err error) {
	defs = map[string]ast.Expr{}
	seen := map[string]bool{}
	for _, k := range consts {
		if seen[k.Name] {
			err = fmt.Errorf("constant %s is declared twice", k.Name)
			return
		}
		seen[k.Name] = true
		var t expr.Type
		if t, err = expr.ParseType(k.Type); err != nil {
			err = fmt.Errorf("constant %s: %w", k.Name, err)
			return
		}
		if k.Value == "" {
			undefined = append(undefined, pcfp.Constant{Name: k.Name, Type: t})
			continue
		}
		var e ast.Expr
		if e, err = expr.Parse(k.Value); err != nil {
			err = fmt.Errorf("constant %s: %w", k.Name, err)
			return
		}
		defs[k.Name] = e
	}
	// 定義の連鎖 (M = 2*K+1, K = 3 など) は定数の数だけ繰り返せば解ける
	for i := 0; i <= len(defs); i++ {
		changed := false
		for n, e := range defs {
			ne := expr.Simplify(expr.Subst(e, defs))
			if !expr.Equals(ne, e) {
				defs[n] = ne
				changed = true
			}
		}
		if !changed {
			return
		}
	}
	var names []string
	for n := range defs {
		names = append(names, n)
	}
	sort.Strings(names)
	err = fmt.Errorf("cyclic constant definitions among %s", strings.Join(names, ", "))
	return
}

func (b *builder) variable(v Variable) (r pcfp.Variable, err error) {
	r.Name = v.Name
	if r.Type, err = expr.ParseType(v.Type); err != nil {
		err = fmt.Errorf("variable %s: %w", v.Name, err)
		return
	}
	switch r.Type {
	case expr.Int:
		if v.Lower == "" || v.Upper == "" {
			err = fmt.Errorf("variable %s: int variables need lower and upper bounds", v.Name)
			return
		}
		if r.Lower, err = b.parse("lower bound of "+v.Name, v.Lower); err != nil {
			return
		}
		if r.Upper, err = b.parse("upper bound of "+v.Name, v.Upper); err != nil {
			return
		}
		if v.Init == "" {
			r.Init = r.Lower
			return
		}
	case expr.Bool:
		if v.Init == "" {
			r.Init = expr.False()
			return
		}
	default:
		err = fmt.Errorf("variable %s: type %s is not supported", v.Name, r.Type)
		return
	}
	r.Init, err = b.parse("initial value of "+v.Name, v.Init)
	return
}

func (b *builder) command(m string, i int, c Command) (guard ast.Expr, dests []pcfp.Destination, err error) {
	where := fmt.Sprintf("module %s, command %d", m, i+1)
	if guard, err = b.parse(where+" guard", c.Guard); err != nil {
		return
	}
	updates := c.Updates
	if len(updates) == 0 {
		updates = []Update{{}}
	}
	for _, u := range updates {
		d := pcfp.Destination{Prob: expr.IntLit(1)}
		if u.Prob != "" {
			if d.Prob, err = b.parse(where+" probability", u.Prob); err != nil {
				return
			}
		}
		var names []string
		for n := range u.Assign {
			names = append(names, n)
		}
		sort.Strings(names)
		var assigns []pcfp.Assignment
		for _, n := range names {
			var rhs ast.Expr
			if rhs, err = b.parse(where+" update of "+n, u.Assign[n]); err != nil {
				return
			}
			assigns = append(assigns, pcfp.Assignment{Var: n, Expr: rhs})
		}
		if d.Update, err = pcfp.NewUpdate(assigns...); err != nil {
			return
		}
		dests = append(dests, d)
	}
	return
}

// Build はモデル記述から Composition を作成する関数。
// 定義済みの定数はすべての式に代入し、未定義の定数は Composition の定数として残す。
func (f *File) Build() (c *pcfp.Composition, err error) {
	typ, err := pcfp.ParseModelType(f.Type)
	if err != nil {
		return
	}
	if len(f.Modules) == 0 {
		err = fmt.Errorf("no modules")
		return
	}
	defs, undefined, err := resolveConstants(f.Constants)
	if err != nil {
		return
	}
	b := &builder{defs: defs}

	names := map[string]string{} // 変数名 -> 宣言したところ
	declare := func(name, where string) error {
		if prev, ok := names[name]; ok {
			return fmt.Errorf("variable %s is declared in %s and %s", name, prev, where)
		}
		if _, ok := defs[name]; ok {
			return fmt.Errorf("variable %s clashes with a constant", name)
		}
		names[name] = where
		return nil
	}

	var globals []pcfp.Variable
	for _, g := range f.Globals {
		if err = declare(g.Name, "globals"); err != nil {
			return
		}
		var v pcfp.Variable
		if v, err = b.variable(g); err != nil {
			return
		}
		globals = append(globals, v)
	}
	c = pcfp.NewComposition(typ, undefined, globals)
	for _, m := range f.Modules {
		var vars []pcfp.Variable
		for _, mv := range m.Variables {
			if err = declare(mv.Name, "module "+m.Name); err != nil {
				c = nil
				return
			}
			var v pcfp.Variable
			if v, err = b.variable(mv); err != nil {
				c = nil
				return
			}
			vars = append(vars, v)
		}
		p := pcfp.NewProgram(m.Name, typ, vars)
		for i, mc := range m.Commands {
			var guard ast.Expr
			var dests []pcfp.Destination
			if guard, dests, err = b.command(m.Name, i, mc); err != nil {
				c = nil
				return
			}
			p.AddCommand(mc.Label, guard, dests...)
		}
		c.AddModule(p)
	}
	for _, l := range f.Labels {
		var e ast.Expr
		if e, err = b.parse("label "+l.Name, l.Expr); err != nil {
			c = nil
			return
		}
		c.Labels = append(c.Labels, pcfp.Label{Name: l.Name, Expr: e})
	}
	return
}
