package highlight

import (
	"strings"
	"testing"
)

func TestCQLEmptyInput(t *testing.T) {
	if got := CQL(""); got != "" {
		t.Fatalf("CQL(\"\") = %q, want empty", got)
	}
}

func TestCQLNonEmptyReturnsSomething(t *testing.T) {
	got := CQL("SELECT * FROM keyspace.table WHERE id = 1;")
	if got == "" {
		t.Fatalf("CQL() returned empty output for non-empty input")
	}
}

func TestNodeTableRendersStatus(t *testing.T) {
	out := NodeTable([]NodeRow{
		{Address: "10.0.0.1", Datacenter: "dc1", Rack: "rack1", Status: "UP", Tokens: 256},
		{Address: "10.0.0.2", Datacenter: "dc1", Rack: "rack2", Status: "DOWN", Tokens: 256},
	})
	if !strings.Contains(out, "10.0.0.1") || !strings.Contains(out, "10.0.0.2") {
		t.Fatalf("NodeTable missing addresses: %q", out)
	}
	if !strings.Contains(out, "ADDRESS") {
		t.Fatalf("NodeTable missing header: %q", out)
	}
}
