package smt

import (
	"errors"
	"fmt"
	"go/ast"
	"io"
	"strings"
)

const (
	DefaultCmdExe     = "z3"
	DefaultCmdArg     = "-in"
	DefaultTimeOutSec = 60
)

// Z3 は外部プロセスの SMT ソルバ (既定は z3 -in) で判定する Oracle。
// 一回の判定ごとにプロセスを一つ起動する。
type Z3 struct {
	Cmd        []string  // コマンドと引数
	TimeOutSec int       // タイムアウト時間(秒)。タイムアウトしたら Unknown。
	Log        io.Writer // nil でなければスクリプトと結果を書き出す
}

// NewZ3 は既定のコマンドで Z3 を作成する関数
func NewZ3() *Z3 {
	return &Z3{
		Cmd:        []string{DefaultCmdExe, DefaultCmdArg},
		TimeOutSec: DefaultTimeOutSec,
	}
}

// Check は式の充足可能性を外部ソルバで判定する関数
func (z *Z3) Check(formula ast.Expr, vars []Var) (r Result, err error) {
	script, err := MakeScript(formula, vars)
	if err != nil {
		// 変換できない式は判定できないだけで、ソルバの故障ではない
		z.logf("#Z3.Check: %v\n", err)
		err = nil
		return
	}
	cmd := z.Cmd
	if len(cmd) == 0 {
		cmd = []string{DefaultCmdExe, DefaultCmdArg}
	}
	z.logf("#Z3.Check: script:\n%s", script)

	outText, errText, err := runCmd(cmd, script, z.TimeOutSec)
	if errors.Is(err, errTimeout) {
		z.logf("#Z3.Check: timeout\n")
		err = nil
		return
	}
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrUnavailable, strings.Join(cmd, " "), err)
		return
	}

	t := strings.Split(outText, "\n")
	result := strings.TrimSpace(t[0])
	z.logf("#Z3.Check: result = %s\n", result)
	switch result {
	case "sat":
		r = Sat
	case "unsat":
		r = Unsat
	case "unknown":
		r = Unknown
	default:
		err = fmt.Errorf("%w: unexpected output %q; %s", ErrUnavailable, result, strings.TrimSpace(errText))
	}
	return
}

func (z *Z3) logf(format string, args ...interface{}) {
	if z.Log != nil {
		fmt.Fprintf(z.Log, format, args...)
	}
}
