package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerPrefixesSubsystem(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "server")
	l.Printf("listening on %s", "127.0.0.1:7432")
	out := buf.String()
	if !strings.Contains(out, "[server]") {
		t.Fatalf("expected subsystem prefix in output, got %q", out)
	}
	if !strings.Contains(out, "listening on 127.0.0.1:7432") {
		t.Fatalf("expected formatted message in output, got %q", out)
	}
}

func TestWithAppendsSubsystem(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "server").With("conn-1")
	l.Println("connected")
	out := buf.String()
	if !strings.Contains(out, "[server] conn-1") {
		t.Fatalf("expected nested subsystem prefix, got %q", out)
	}
}
