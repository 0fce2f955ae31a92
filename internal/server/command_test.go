package server

import (
	"strings"
	"testing"
)

func TestParseLineBareSQLPassthrough(t *testing.T) {
	cmd, ok := ParseLine("SELECT * FROM t")
	if !ok {
		t.Fatal("expected bare SQL to parse")
	}
	if cmd.Command != "sql" || len(cmd.Args) != 1 || cmd.Args[0] != "SELECT * FROM t" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestParseLineRespectsWordBoundaries(t *testing.T) {
	cmd, ok := ParseLine("\\r")
	if !ok || cmd.Command != "r" {
		t.Fatalf("expected \\r alone to match r, got %+v ok=%v", cmd, ok)
	}
	cmd, ok = ParseLine("\\reset")
	if !ok || cmd.Command != "reset" {
		t.Fatalf("expected \\reset to match reset, not r, got %+v ok=%v", cmd, ok)
	}
}

func TestParseLineZeroArgCommand(t *testing.T) {
	cmd, ok := ParseLine("\\dt")
	if !ok || cmd.Command != "dt" || len(cmd.Args) != 0 {
		t.Fatalf("unexpected command: %+v ok=%v", cmd, ok)
	}
}

func TestParseLineFoldsRemainderOntoLastArg(t *testing.T) {
	cmd, ok := ParseLine("\\register myquery SELECT a, b FROM t WHERE a = 1")
	if !ok || cmd.Command != "register" {
		t.Fatalf("unexpected command: %+v ok=%v", cmd, ok)
	}
	if len(cmd.Args) != 2 || cmd.Args[0] != "myquery" {
		t.Fatalf("unexpected args: %+v", cmd.Args)
	}
	if cmd.Args[1] != "SELECT a, b FROM t WHERE a = 1" {
		t.Fatalf("expected remainder folded onto second arg, got %q", cmd.Args[1])
	}
}

func TestParseLineUnknownCommand(t *testing.T) {
	_, ok := ParseLine("\\bogus")
	if ok {
		t.Fatal("expected unknown command to return ok=false")
	}
}

func TestGenHelpListsEveryCommand(t *testing.T) {
	help := GenHelp()
	for _, spec := range commandTable {
		if !strings.Contains(help, "\\"+spec.name) {
			t.Fatalf("help text missing command %q:\n%s", spec.name, help)
		}
	}
}
