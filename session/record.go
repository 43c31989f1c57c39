// 簡約化セッションの記録

package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dr-deep/locelim/check"
	"github.com/dr-deep/locelim/pcfp"
)

// Step は一つの操作の記録
type Step struct {
	Op    string     `json:"op"`             // 操作名
	Arg   string     `json:"arg,omitempty"`  // 引数
	Stats pcfp.Stats `json:"stats"`          // 操作のあとの大きさ
	Note  string     `json:"note,omitempty"` // ノート
}

// Record は簡約化セッションの記録
type Record struct {
	ID         string            `json:"id"`                   // セッション ID
	Model      string            `json:"model"`                // モデルファイル
	Goal       string            `json:"goal,omitempty"`       // ゴールの条件式
	Constants  map[string]string `json:"constants,omitempty"`  // 定数の値
	Steps      []Step            `json:"steps"`                // 操作のリスト
	Original   *check.Result     `json:"original,omitempty"`   // 元のモデルの到達確率
	Simplified *check.Result     `json:"simplified,omitempty"` // 簡約化したモデルの到達確率
	Date       string            `json:"date"`                 // 記録日
}

// String は記録の文字列を作成する関数
func (r Record) String() string {
	out := new(bytes.Buffer)

	fmt.Fprintf(out, "Session: %s\n", r.ID)
	fmt.Fprintf(out, "Model: %s\n", r.Model)
	if r.Goal != "" {
		fmt.Fprintf(out, "Goal: %s\n", r.Goal)
	}
	if len(r.Constants) > 0 {
		tmp := []string{}
		for n, v := range r.Constants {
			tmp = append(tmp, fmt.Sprintf("%s=%s", n, v))
		}
		sort.Strings(tmp)
		fmt.Fprintf(out, "Constants: %s\n", strings.Join(tmp, ", "))
	}

	for i, s := range r.Steps {
		fmt.Fprintf(out, "Step[%d]: %s %s (locations %d, commands %d, destinations %d)\n",
			i, s.Op, s.Arg, s.Stats.Locations, s.Stats.Commands, s.Stats.Destinations)
		if s.Note != "" {
			fmt.Fprintf(out, "  %s\n", s.Note)
		}
	}

	if r.Original != nil {
		fmt.Fprintf(out, "Original: %.9g (%d states)\n", r.Original.Probability, r.Original.States)
	}
	if r.Simplified != nil {
		fmt.Fprintf(out, "Simplified: %.9g (%d states)\n", r.Simplified.Probability, r.Simplified.States)
	}
	if r.Date != "" {
		fmt.Fprintf(out, "Date: %s\n", r.Date)
	}

	return out.String()
}

// LoadRecord はファイルに保存された記録を読みだす関数
func LoadRecord(inFile string) (r Record, err error) {
	err = LoadJSON(inFile, &r)
	return
}

// Save は記録をファイル保存する関数
func (r Record) Save(outFile string) (err error) {
	err = SaveJSON(outFile, r)
	return
}

// LoadJSON はファイルに保存された JSON オブジェクトを読み出す関数
// 出力先変数 out には '&' をつけること。
// err := LoadJSON("file.json", &out)
func LoadJSON(filePath string, out interface{}) (err error) {
	var data []byte
	data, err = os.ReadFile(filePath)
	if err != nil {
		return
	}
	err = json.Unmarshal(data, out)
	return
}

// SaveJSON はデータを JSON 形式でファイル保存する関数
func SaveJSON(outFile string, v interface{}) (err error) {
	var b []byte
	b, err = json.Marshal(v)
	if err != nil {
		return
	}
	var out bytes.Buffer
	err = json.Indent(&out, b, "", "  ")
	if err != nil {
		return
	}
	out.WriteString("\n")
	err = os.WriteFile(outFile, out.Bytes(), 0644)
	return
}
