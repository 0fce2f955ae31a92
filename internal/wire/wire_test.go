package wire

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	cmd := Command{Command: "sql", Args: []string{"select * from t"}}
	payload, err := EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	decoded, err := DecodeCommand(got)
	if err != nil {
		t.Fatalf("DecodeCommand: %v", err)
	}
	if decoded.Command != "sql" || len(decoded.Args) != 1 || decoded.Args[0] != "select * from t" {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	resp := QueryResultResp(QueryResult{
		Columns:      []string{"id", "name"},
		Rows:         [][]string{{"1", "alice"}},
		RowsAffected: 1,
	})
	b, err := EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	decoded, err := DecodeResponse(b)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if decoded.Kind != KindQueryResult || decoded.Result == nil || decoded.Result.Columns[1] != "name" {
		t.Fatalf("response round trip mismatch: %+v", decoded)
	}
}

func TestIsOKClassification(t *testing.T) {
	cases := []struct {
		r    Response
		want bool
	}{
		{Ok(), true},
		{SystemMsg("hi"), true},
		{SystemErr("bad"), false},
		{QueryResultResp(QueryResult{Message: "done"}), true},
		{QueryExecutionError("boom"), false},
		{Shutdown(true), true},
	}
	for _, c := range cases {
		if got := c.r.IsOK(); got != c.want {
			t.Errorf("IsOK(%v) = %v, want %v", c.r.Kind, got, c.want)
		}
	}
}

func TestCollapseQuiet(t *testing.T) {
	if got := CollapseQuiet(Ok()); got.Kind != KindQuietOk {
		t.Errorf("expected quiet ok, got %v", got.Kind)
	}
	if got := CollapseQuiet(SystemErr("x")); got.Kind != KindQuietErr {
		t.Errorf("expected quiet err, got %v", got.Kind)
	}
	sd := Shutdown(false)
	if got := CollapseQuiet(sd); got.Kind != KindShutdown {
		t.Errorf("shutdown should pass through quiet collapsing unchanged, got %v", got.Kind)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	lenBuf := make([]byte, 8)
	lenBuf[0] = 0xff
	buf.Write(lenBuf)
	if _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expected error for oversized frame length")
	}
}
