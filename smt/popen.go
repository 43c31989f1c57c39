// 外部プロセスでスクリプトを起動し、外部プロセスとのパイプでスクリプトの
// 受け渡しと実行結果の取得を行う実装

package smt

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// errTimeout は外部プロセスがタイムアウトしたときのエラー
var errTimeout = errors.New("timeout")

// runCmd は外部プロセスでスクリプトを実行する関数。
// 入力 cmd : コマンドと引数のリスト。
// 入力 script : スクリプトの文字列。標準入力に流し込む。
// 入力 timeOutSec : タイムアウト時間(秒)。0 以下なら待ち続ける。
// 出力 outText : 標準出力の文字列。
// 出力 errText : 標準エラーの文字列。
// 出力 err : 処理エラー。タイムアウトしたときは errTimeout。
func runCmd(cmd []string, script string, timeOutSec int) (outText, errText string, err error) {
	if len(cmd) == 0 {
		err = fmt.Errorf("empty command")
		return
	}

	p := exec.Command(cmd[0], cmd[1:]...)
	var stdout, stderr bytes.Buffer
	p.Stdin = strings.NewReader(script)
	p.Stdout = &stdout
	p.Stderr = &stderr

	// 外部プロセスの起動
	err = p.Start()
	if err != nil {
		return
	}

	done := make(chan error, 1)
	go func() {
		done <- p.Wait()
	}()

	var timeout <-chan time.Time
	if timeOutSec > 0 {
		timeout = time.After(time.Duration(timeOutSec) * time.Second)
	}

	select {
	case err = <-done:
		// 終了コードが 0 以外でも出力があればそれを使う。
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = nil
			errText = fmt.Sprintf("execution failed (exit code=%d)\n", exitErr.ExitCode())
		}
	case <-timeout:
		if kerr := p.Process.Kill(); kerr != nil {
			errText = "runCmd: timeout: failed to kill: " + kerr.Error() + "\n"
		}
		<-done
		err = errTimeout
	}

	outText = stdout.String()
	errText += stderr.String()
	return
}
