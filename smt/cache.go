package smt

import (
	"bytes"
	"encoding/json"
	"go/ast"
	"os"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/dr-deep/locelim/expr"
)

// Cache は判定結果を覚えておく Oracle。Unknown は覚えない。
type Cache struct {
	Oracle Oracle

	mu    sync.Mutex
	tab   map[string]Result
	Hits  int
	Calls int
}

// NewCache は Oracle の結果を覚える Cache を作成する関数
func NewCache(o Oracle) *Cache {
	return &Cache{Oracle: o, tab: map[string]Result{}}
}

// cacheKey は式と変数宣言から表のキーを作る関数
func cacheKey(formula ast.Expr, vars []Var) string {
	h := xxhash.New()
	h.WriteString(expr.Format(formula))
	for _, v := range vars {
		h.WriteString("\x00" + v.Name + ":" + v.Type.String())
		if v.Lower != nil {
			h.WriteString("[" + expr.Format(v.Lower))
		}
		if v.Upper != nil {
			h.WriteString(".." + expr.Format(v.Upper) + "]")
		}
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// Check は覚えている結果があればそれを返し、なければ Oracle に問い合わせる関数
func (c *Cache) Check(formula ast.Expr, vars []Var) (r Result, err error) {
	key := cacheKey(formula, vars)
	c.mu.Lock()
	if c.tab == nil {
		c.tab = map[string]Result{}
	}
	c.Calls++
	r, ok := c.tab[key]
	if ok {
		c.Hits++
	}
	c.mu.Unlock()
	if ok {
		return
	}

	r, err = c.Oracle.Check(formula, vars)
	if err != nil || r == Unknown {
		return
	}
	c.mu.Lock()
	c.tab[key] = r
	c.mu.Unlock()
	return
}

// Len は覚えている結果の数を返す関数
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tab)
}

// Load はファイルに保存された判定結果を読み出す関数。
// ファイルがなければなにもしない。
func (c *Cache) Load(filePath string) (err error) {
	b, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		err = nil
		return
	}
	if err != nil {
		return
	}
	var saved map[string]string
	if err = json.Unmarshal(b, &saved); err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tab == nil {
		c.tab = map[string]Result{}
	}
	for k, v := range saved {
		switch v {
		case "sat":
			c.tab[k] = Sat
		case "unsat":
			c.tab[k] = Unsat
		}
	}
	return
}

// Save は判定結果を JSON 形式でファイル保存する関数
func (c *Cache) Save(filePath string) (err error) {
	c.mu.Lock()
	saved := make(map[string]string, len(c.tab))
	for k, v := range c.tab {
		saved[k] = v.String()
	}
	c.mu.Unlock()

	b, err := json.Marshal(saved)
	if err != nil {
		return
	}
	var out bytes.Buffer
	if err = json.Indent(&out, b, "", "  "); err != nil {
		return
	}
	err = os.WriteFile(filePath, out.Bytes(), 0o644)
	return
}
