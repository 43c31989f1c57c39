// 設定ファイルの読み出し

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dr-deep/locelim/smt"
)

var confFileNames = []string{"conf.json", "conf.yaml"}

// Config は設定情報の型
type Config struct {
	Cmd        []string `json:"cmd" yaml:"cmd"`                   // SMT ソルバのコマンドと引数
	TimeOutSec int      `json:"time_out_sec" yaml:"time_out_sec"` // SMT ソルバのタイムアウト時間(秒)
	EnumLimit  int      `json:"enum_limit" yaml:"enum_limit"`     // 全数探索の組み合わせ数の上限
	// Oracles は試す判定器の順番。z3, skeleton, enum のいずれか。
	Oracles []string `json:"oracles" yaml:"oracles"`
	// Cache は判定結果を保存するファイル。空なら保存しない。
	Cache                     string `json:"cache" yaml:"cache"`
	RemoveUnreachableCommands bool   `json:"remove_unreachable_commands" yaml:"remove_unreachable_commands"`
	MaxStates                 int    `json:"max_states" yaml:"max_states"`
	Debug                     bool   `json:"debug" yaml:"debug"`
}

// LoadConfig は設定ファイルを読み出す関数。
// 設定ファイルが見つからなければデフォルトの設定を返す。
func LoadConfig() (conf Config, err error) {
	if path := resolvConfFile(); path != "" {
		conf, err = loadConfigFile(path)
		if err != nil {
			return
		}
	}
	conf.fill()
	return
}

func loadConfigFile(path string) (conf Config, err error) {
	var data []byte
	data, err = os.ReadFile(path)
	if err != nil {
		return
	}
	if strings.HasSuffix(path, ".json") {
		err = json.Unmarshal(data, &conf)
	} else {
		err = yaml.Unmarshal(data, &conf)
	}
	if err != nil {
		err = fmt.Errorf("%s: %w", path, err)
	}
	return
}

// fill は設定されていない項目をデフォルトの値にする関数
func (conf *Config) fill() {
	if conf.Cmd == nil {
		conf.Cmd = []string{smt.DefaultCmdExe, smt.DefaultCmdArg}
	}
	if conf.TimeOutSec == 0 {
		conf.TimeOutSec = smt.DefaultTimeOutSec
	}
	if conf.EnumLimit == 0 {
		conf.EnumLimit = smt.DefaultEnumLimit
	}
	if len(conf.Oracles) == 0 {
		conf.Oracles = []string{"skeleton", "enum", "z3"}
	}
}

// LogWriter は処理の経過の書き出し先を返す関数。
// debug でなければ nil。
func (conf Config) LogWriter() io.Writer {
	if !conf.Debug {
		return nil
	}
	return os.Stderr
}

// resolvConfFile は設定ファイルのパスを特定する関数。
// 実行ファイルと同じディレクトリ、カレントディレクトリの順に探す。
func resolvConfFile() string {
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	dirs = append(dirs, ".")
	for _, dir := range dirs {
		for _, name := range confFileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// Oracle は設定から充足可能性の判定器を作成する関数
func (conf Config) Oracle(log io.Writer) (o smt.Oracle, err error) {
	var chain smt.Chain
	for _, name := range conf.Oracles {
		switch name {
		case "z3":
			z := &smt.Z3{Cmd: conf.Cmd, TimeOutSec: conf.TimeOutSec, Log: log}
			if e := smt.Available(z); e != nil {
				// ソルバがなくても他の判定器で続ける
				fmt.Fprintf(os.Stderr, "warning: %v\n", e)
				continue
			}
			chain = append(chain, z)
		case "skeleton":
			chain = append(chain, smt.Skeleton{})
		case "enum":
			chain = append(chain, smt.Enum{Limit: conf.EnumLimit})
		default:
			err = fmt.Errorf("unknown oracle: %s", name)
			return
		}
	}
	o = chain
	return
}
