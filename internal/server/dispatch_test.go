package server

import (
	"testing"

	"github.com/crustylabs/crustydb/internal/bufferpool"
	"github.com/crustylabs/crustydb/internal/catalog"
	"github.com/crustylabs/crustydb/internal/config"
	"github.com/crustylabs/crustydb/internal/container"
	"github.com/crustylabs/crustydb/internal/logging"
	"github.com/crustylabs/crustydb/internal/wire"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cc := container.NewCatalog()
	pool := bufferpool.New(cc, 64)
	mgr := catalog.NewManager(pool, 64, 16)
	cfg := config.Default()
	cfg.DataDir = ":memory:"
	return New(pool, mgr, cfg, logging.New(nil, "test"))
}

func TestDispatchCreateInsertSelect(t *testing.T) {
	s := newTestServer(t)
	sess := NewSession()

	resp := s.Dispatch(nil, sess, wire.Command{Command: "sql", Args: []string{
		"CREATE TABLE users (id INT64 PRIMARY KEY, name VARCHAR(20))",
	}})
	if resp.Kind != wire.KindQueryResult {
		t.Fatalf("create table: unexpected response %+v", resp)
	}

	resp = s.Dispatch(nil, sess, wire.Command{Command: "sql", Args: []string{
		"INSERT INTO users (id, name) VALUES (1, 'alice')",
	}})
	if resp.Kind != wire.KindQueryResult || resp.Result.RowsAffected != 1 {
		t.Fatalf("insert: unexpected response %+v", resp)
	}

	resp = s.Dispatch(nil, sess, wire.Command{Command: "sql", Args: []string{
		"SELECT id, name FROM users",
	}})
	if resp.Kind != wire.KindQueryResult {
		t.Fatalf("select: unexpected response %+v", resp)
	}
	if len(resp.Result.Rows) != 1 || resp.Result.Rows[0][1] != "alice" {
		t.Fatalf("select: unexpected rows %+v", resp.Result.Rows)
	}
}

func TestDispatchShowTables(t *testing.T) {
	s := newTestServer(t)
	sess := NewSession()

	s.Dispatch(nil, sess, wire.Command{Command: "sql", Args: []string{
		"CREATE TABLE widgets (id INT64 PRIMARY KEY)",
	}})

	resp := s.Dispatch(nil, sess, wire.Command{Command: "dt"})
	if resp.Kind != wire.KindQueryResult || len(resp.Result.Rows) != 1 || resp.Result.Rows[0][0] != "widgets" {
		t.Fatalf("unexpected \\dt response: %+v", resp)
	}
}

func TestDispatchRegisterRunFullAndPartial(t *testing.T) {
	s := newTestServer(t)
	sess := NewSession()

	s.Dispatch(nil, sess, wire.Command{Command: "sql", Args: []string{
		"CREATE TABLE nums (id INT64 PRIMARY KEY)",
	}})
	for i := 0; i < 5; i++ {
		s.Dispatch(nil, sess, wire.Command{Command: "sql", Args: []string{
			"INSERT INTO nums (id) VALUES (" + string(rune('0'+i)) + ")",
		}})
	}

	resp := s.Dispatch(nil, sess, wire.Command{Command: "register", Args: []string{"q1", "SELECT id FROM nums"}})
	if resp.Kind != wire.KindOk {
		t.Fatalf("register: unexpected response %+v", resp)
	}

	resp = s.Dispatch(nil, sess, wire.Command{Command: "runFull", Args: []string{"q1"}})
	if resp.Kind != wire.KindQueryResult || len(resp.Result.Rows) != 5 {
		t.Fatalf("runFull: expected all 5 rows, got %+v", resp)
	}

	resp = s.Dispatch(nil, sess, wire.Command{Command: "runPartial", Args: []string{"q1 2"}})
	if resp.Kind != wire.KindQueryResult || len(resp.Result.Rows) != 2 {
		t.Fatalf("runPartial: expected 2 rows, got %+v", resp)
	}

	resp = s.Dispatch(nil, sess, wire.Command{Command: "dq"})
	if resp.Kind != wire.KindQueryResult || len(resp.Result.Rows) != 1 || resp.Result.Rows[0][0] != "q1" {
		t.Fatalf("unexpected \\dq response: %+v", resp)
	}
}

func TestDispatchQuietModeCollapsesResponses(t *testing.T) {
	s := newTestServer(t)
	sess := NewSession()

	resp := s.Dispatch(nil, sess, wire.Command{Command: "quiet"})
	if resp.Kind != wire.KindOk || !sess.Quiet {
		t.Fatalf("unexpected \\quiet response: %+v", resp)
	}

	resp = s.Dispatch(nil, sess, wire.Command{Command: "sql", Args: []string{
		"CREATE TABLE q (id INT64 PRIMARY KEY)",
	}})
	collapsed := wire.CollapseQuiet(resp)
	if collapsed.Kind != wire.KindQuietOk {
		t.Fatalf("expected quiet-collapsed ok, got %+v", collapsed)
	}

	bad := s.Dispatch(nil, sess, wire.Command{Command: "sql", Args: []string{"NOT SQL AT ALL ???"}})
	collapsedErr := wire.CollapseQuiet(bad)
	if collapsedErr.Kind != wire.KindQuietErr {
		t.Fatalf("expected quiet-collapsed error, got %+v", collapsedErr)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	s := newTestServer(t)
	resp := s.Dispatch(nil, NewSession(), wire.Command{Command: "nope"})
	if resp.Kind != wire.KindSystemErr {
		t.Fatalf("expected system error for unknown command, got %+v", resp)
	}
}

func TestDispatchShutdownAndClose(t *testing.T) {
	s := newTestServer(t)
	sess := NewSession()

	resp := s.Dispatch(nil, sess, wire.Command{Command: "shutdown"})
	if resp.Kind != wire.KindShutdown || !resp.FromClient {
		t.Fatalf("unexpected \\shutdown response: %+v", resp)
	}

	resp = s.Dispatch(nil, sess, wire.Command{Command: "close"})
	if resp.Kind != wire.KindShutdown || resp.FromClient {
		t.Fatalf("unexpected \\close response: %+v", resp)
	}
}
