// PRISM 言語への書き出し

package pcfp

import (
	"bytes"
	"fmt"
	"sort"
)

const prismHeader = "// generated by locelim"

// constPrism は未定義の定数の宣言を書き出す関数
func constPrism(buf *bytes.Buffer, consts []Constant) {
	if len(consts) == 0 {
		return
	}
	sorted := append([]Constant(nil), consts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, c := range sorted {
		fmt.Fprintf(buf, "const %s %s;\n", c.Type, c.Name)
	}
	buf.WriteString("\n")
}

// modulePrism はモジュールの宣言とコマンドを書き出す関数
func (p *Program) modulePrism(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "module %s\n", p.Name)
	for _, v := range p.vars {
		fmt.Fprintf(buf, "\t%s\n", v.Prism())
	}
	if len(p.vars) > 0 && len(p.cmds) > 0 {
		buf.WriteString("\n")
	}
	for _, c := range p.cmds {
		fmt.Fprintf(buf, "\t%s\n", c.Prism())
	}
	buf.WriteString("endmodule\n")
}

// ToPrism はプログラムを一つのモジュールからなる PRISM モデルの文字列にする関数
func (p *Program) ToPrism() string {
	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "%s\n%s\n\n", prismHeader, p.Type)
	constPrism(buf, p.consts)
	p.modulePrism(buf)
	return buf.String()
}
