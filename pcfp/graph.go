package pcfp

// edge はコマンドの分岐 (コマンドと分岐の添字)
type edge struct {
	cmd  *Command
	dest int
}

// graph はロケーションとコマンドの索引。
// ロケーションは整数のハンドルで指し、遷移元と遷移先の両方向の隣接リストを持つ。
// コマンドの集合が変わったら作り直す。
type graph struct {
	locs    []Location
	handle  map[string]int
	sources int // locs[:sources] が遷移元になるロケーション
	out     [][]*Command
	in      [][]edge
}

func newGraph(cmds []*Command) *graph {
	g := &graph{handle: map[string]int{}}
	for _, c := range cmds {
		h := g.add(c.Source)
		g.out[h] = append(g.out[h], c)
	}
	// 遷移元にならないロケーションは後ろに並べる
	g.sources = len(g.locs)
	for _, c := range cmds {
		for i, d := range c.Dests {
			h := g.add(d.Target)
			g.in[h] = append(g.in[h], edge{cmd: c, dest: i})
		}
	}
	return g
}

func (g *graph) add(l Location) int {
	if h, ok := g.handle[l.Key()]; ok {
		return h
	}
	h := len(g.locs)
	g.handle[l.Key()] = h
	g.locs = append(g.locs, l)
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	return h
}

// lookup はロケーションのハンドルを返す関数
func (g *graph) lookup(l Location) (h int, ok bool) {
	h, ok = g.handle[l.Key()]
	return
}

// isSource はロケーションから出るコマンドがあるかどうかを調べる関数
func (g *graph) isSource(l Location) bool {
	h, ok := g.lookup(l)
	return ok && h < g.sources
}
