package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dr-deep/locelim/check"
	"github.com/dr-deep/locelim/pcfp"
	"github.com/dr-deep/locelim/session"
	"github.com/dr-deep/locelim/smt"
)

const (
	// USAGE はコマンドラインでの使い方
	USAGE = `%s model.yaml op...
  const:N=10        未定義の定数の値 (到達確率の計算に使う)
  fix:N=10          定数の値をモデルに代入する
  goal:EXPR         ゴールの条件式
  flatten           モジュールを一つにまとめる
  unfold:VAR        変数をロケーションに展開する
  elim:VAR=VAL,...  ロケーションを消去する
  elimall           消去できるロケーションをすべて消去する
  prune             到達できないコマンドを取り除く
  dedup             ガード以外が同じコマンドをまとめる
  nopself           何もしない自己ループを取り除く
  stats             モデルの大きさを表示する
  locs              ロケーションごとの遷移の数を表示する
  lucky             自己ループがあるが消去できるロケーションを表示する
  sinks             ゴールになりえず抜け出せないロケーションを表示する
  vars              変数と展開できるかどうかを表示する
  export:FILE       PRISM 言語で出力する (- なら標準出力)
  checkorig         元のモデルの到達確率を計算する
  check             簡約化したモデルの到達確率を計算する
  save:FILE         セッションの記録を JSON で保存する
`
)

func main() {
	os.Exit(run())
}

var conf Config

func run() int {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, USAGE, os.Args[0])
		return 1
	}

	var err error
	conf, err = LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	log := conf.LogWriter()
	oracle, err := conf.Oracle(log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	var cache *smt.Cache
	if conf.Cache != "" {
		cache = smt.NewCache(oracle)
		if err = cache.Load(conf.Cache); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		oracle = cache
	}

	checker := check.New()
	if conf.MaxStates > 0 {
		checker.MaxStates = conf.MaxStates
	}
	s := session.New(session.Options{
		Oracle:                    oracle,
		Log:                       log,
		RemoveUnreachableCommands: conf.RemoveUnreachableCommands,
		Checker:                   checker,
	})
	if err = s.LoadFile(os.Args[1]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	rec := &recorder{}
	for _, op := range os.Args[2:] {
		if err = processOp(s, rec, op); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", op, err)
			return 3
		}
	}

	if cache != nil {
		if conf.Debug {
			fmt.Fprintf(os.Stderr, "#run: cache %d entries, %d hits / %d calls\n", cache.Len(), cache.Hits, cache.Calls)
		}
		if err = cache.Save(conf.Cache); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 3
		}
	}
	return 0
}

// recorder は到達確率の計算結果を記録に残すために覚えておく
type recorder struct {
	original   *check.Result
	simplified *check.Result
}

// splitOp は "name:arg" の形の操作を名前と引数に分ける関数
func splitOp(op string) (name, arg string) {
	name = op
	if i := strings.Index(op, ":"); i >= 0 {
		name, arg = op[:i], op[i+1:]
	}
	return
}

// parseAssigns は "a=1,b=2" の形の引数を map にする関数
func parseAssigns(arg string) (r map[string]string, err error) {
	r = map[string]string{}
	for _, part := range strings.Split(arg, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" {
			err = fmt.Errorf("bad assignment: %q", part)
			return
		}
		r[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return
}

func processOp(s *session.Session, rec *recorder, op string) (err error) {
	if conf.Debug {
		fmt.Fprintln(os.Stderr, "#processOp:", op)
	}
	name, arg := splitOp(op)
	switch name {
	case "const", "fix":
		var m map[string]string
		if m, err = parseAssigns(arg); err != nil {
			return
		}
		for k, v := range m {
			if name == "const" {
				err = s.DeclareConstant(k, v)
			} else {
				err = s.FixConstant(k, v)
			}
			if err != nil {
				return
			}
		}
	case "goal":
		err = s.SetGoal(arg)
	case "flatten":
		err = s.Flatten()
	case "unfold":
		for _, v := range strings.Split(arg, ",") {
			if err = s.Unfold(strings.TrimSpace(v)); err != nil {
				return
			}
		}
	case "elim":
		var m map[string]string
		if m, err = parseAssigns(arg); err != nil {
			return
		}
		err = s.Eliminate(m)
	case "elimall":
		var n int
		if n, err = s.EliminateAll(); err == nil {
			fmt.Printf("%d locations eliminated\n", n)
		}
	case "prune":
		var n int
		if n, err = s.Prune(); err == nil {
			fmt.Printf("%d commands removed\n", n)
		}
	case "dedup":
		var n int
		if n, err = s.RemoveDuplicates(); err == nil {
			fmt.Printf("%d commands merged\n", n)
		}
	case "nopself":
		var n int
		if n, err = s.EliminateNopSelfloops(); err == nil {
			fmt.Printf("%d self-loops removed\n", n)
		}
	case "stats":
		err = printStats(s)
	case "locs":
		err = printLocs(s)
	case "lucky":
		var locs []pcfp.ModuleLoc
		if locs, err = s.LuckyLocations(); err == nil {
			printModuleLocs(locs)
		}
	case "sinks":
		var locs []pcfp.ModuleLoc
		if locs, err = s.SinkLocations(); err == nil {
			printModuleLocs(locs)
		}
	case "vars":
		err = printVars(s)
	case "export":
		if arg == "" || arg == "-" {
			var r string
			if r, err = s.Export(); err == nil {
				fmt.Print(r)
			}
		} else {
			err = s.SaveAsPrism(arg)
		}
	case "checkorig":
		var r check.Result
		if r, err = s.CheckOriginal(); err == nil {
			rec.original = &r
			fmt.Printf("original: %.9g (%d states)\n", r.Probability, r.States)
		}
	case "check":
		var r check.Result
		if r, err = s.CheckModel(); err == nil {
			rec.simplified = &r
			fmt.Printf("simplified: %.9g (%d states)\n", r.Probability, r.States)
		}
	case "save":
		if arg == "" {
			err = errors.New("no file name")
			return
		}
		r := s.Record()
		r.Original = rec.original
		r.Simplified = rec.simplified
		if err = r.Save(arg); err == nil {
			fmt.Println(r)
		}
	default:
		err = fmt.Errorf("unknown operation: %s", name)
	}
	return
}

func printStats(s *session.Session) (err error) {
	st, err := s.Stats()
	if err != nil {
		return
	}
	fmt.Printf("locations: %d, commands: %d, destinations: %d, self-loops: %d\n",
		st.Locations, st.Commands, st.Destinations, st.Selfloops)
	return
}

func printLocs(s *session.Session) (err error) {
	infos, err := s.LocInfo()
	if err != nil {
		return
	}
	for _, info := range infos {
		mark := ""
		if info.Initial {
			mark = " (initial)"
		}
		fmt.Printf("%s %s: in %d, out %d, self-loops %d%s\n",
			info.Module, info.Loc, info.In, info.Out, info.Selfloops, mark)
	}
	return
}

func printModuleLocs(locs []pcfp.ModuleLoc) {
	for _, ml := range locs {
		fmt.Println(ml)
	}
	fmt.Printf("%d locations\n", len(locs))
}

// printVars は変数の一覧を展開できる変数に印をつけて表示する関数
func printVars(s *session.Session) (err error) {
	vars, err := s.Variables()
	if err != nil {
		return
	}
	names, err := s.UnfoldableVariables()
	if err != nil {
		return
	}
	unfoldable := map[string]bool{}
	for _, n := range names {
		unfoldable[n] = true
	}
	for _, v := range vars {
		mark := ""
		if unfoldable[v.Name] {
			mark = " (unfoldable)"
		}
		fmt.Printf("%s%s\n", v.Prism(), mark)
	}
	return
}
