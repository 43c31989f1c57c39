package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dr-deep/locelim/session"
	"github.com/dr-deep/locelim/smt"
)

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "conf.yaml")
	if err := os.WriteFile(yamlPath, []byte("time_out_sec: 5\noracles: [enum]\ndebug: true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	conf, err := loadConfigFile(yamlPath)
	if err != nil {
		t.Fatal(err)
	}
	conf.fill()
	if conf.TimeOutSec != 5 || !conf.Debug {
		t.Errorf("Expected time_out_sec 5 and debug, got %+v", conf)
	}
	if len(conf.Cmd) != 2 || conf.Cmd[0] != smt.DefaultCmdExe {
		t.Errorf("Expected default command, got %v", conf.Cmd)
	}
	if conf.EnumLimit != smt.DefaultEnumLimit {
		t.Errorf("Expected default enum limit, got %d", conf.EnumLimit)
	}

	jsonPath := filepath.Join(dir, "conf.json")
	if err := os.WriteFile(jsonPath, []byte(`{"cmd": ["z3", "-in", "-T:1"], "remove_unreachable_commands": true}`), 0644); err != nil {
		t.Fatal(err)
	}
	conf, err = loadConfigFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	conf.fill()
	if len(conf.Cmd) != 3 || !conf.RemoveUnreachableCommands {
		t.Errorf("Expected the configured command, got %+v", conf)
	}
	if conf.TimeOutSec != smt.DefaultTimeOutSec {
		t.Errorf("Expected default timeout, got %d", conf.TimeOutSec)
	}

	if err := os.WriteFile(jsonPath, []byte(`{"cmd": `), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfigFile(jsonPath); err == nil {
		t.Errorf("Expected error for a broken file")
	}
}

func TestLogWriter(t *testing.T) {
	if w := (Config{}).LogWriter(); w != nil {
		t.Errorf("Expected no log writer without debug, got %v", w)
	}
	if w := (Config{Debug: true}).LogWriter(); w != os.Stderr {
		t.Errorf("Expected debug logs on stderr, got %v", w)
	}
}

func TestConfigOracle(t *testing.T) {
	conf := Config{Oracles: []string{"skeleton", "enum"}}
	conf.fill()
	o, err := conf.Oracle(nil)
	if err != nil {
		t.Fatal(err)
	}
	chain, ok := o.(smt.Chain)
	if !ok || len(chain) != 2 {
		t.Errorf("Expected a chain of 2 oracles, got %#v", o)
	}
	if err := smt.Available(o); err != nil {
		t.Errorf("Expected the chain to be available, got %v", err)
	}

	conf.Oracles = []string{"cvc5"}
	if _, err := conf.Oracle(nil); err == nil {
		t.Errorf("Expected error for an unknown oracle")
	}
}

func TestSplitOp(t *testing.T) {
	cases := []struct{ op, name, arg string }{
		{"elimall", "elimall", ""},
		{"unfold:s", "unfold", "s"},
		{"goal:s == 4 && z/N < 0.1", "goal", "s == 4 && z/N < 0.1"},
		{"export:-", "export", "-"},
	}
	for _, c := range cases {
		name, arg := splitOp(c.op)
		if name != c.name || arg != c.arg {
			t.Errorf("Expected (%q, %q) for %q, got (%q, %q)", c.name, c.arg, c.op, name, arg)
		}
	}
}

func TestParseAssigns(t *testing.T) {
	m, err := parseAssigns("r=4, k=0,s = 3")
	if err != nil {
		t.Fatal(err)
	}
	if len(m) != 3 || m["r"] != "4" || m["k"] != "0" || m["s"] != "3" {
		t.Errorf("Expected r=4,k=0,s=3, got %v", m)
	}
	if _, err := parseAssigns("r"); err == nil {
		t.Errorf("Expected error for a missing value")
	}
	if _, err := parseAssigns("=1"); err == nil {
		t.Errorf("Expected error for a missing name")
	}
}

func TestProcessOpListings(t *testing.T) {
	s := session.New(session.Options{})
	if err := s.LoadFile("../../model/testdata/nand.yaml"); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	if err := processOp(s, rec, "sinks"); err == nil {
		t.Errorf("Expected error for sinks without a goal")
	}
	for _, op := range []string{"goal:s == 4 && z/N < 0.1", "vars", "unfold:s", "vars", "lucky", "sinks", "locs"} {
		if err := processOp(s, rec, op); err != nil {
			t.Errorf("Expected %s to succeed, got %v", op, err)
		}
	}
	if err := processOp(s, rec, "unfold:z"); err == nil {
		t.Errorf("Expected error for unfolding z")
	}
}
