// Package wire implements the client/server socket protocol: CBOR-encoded
// command records, length-prefixed response framing, and the tagged
// response variants the dispatcher produces (spec.md §6).
//
// Grounded structurally on original common-fairy/src/commands.rs
// (CommandWithArgs{command, args} request shape; the Ok/SystemMsg/
// SystemErr/QueryResult/QueryExecutionError/Shutdown/QuietOk/QuietErr
// response variant set and its is_ok() classification) and
// server/src/server.rs's length-prefixed framing loop. The CBOR codec
// itself, github.com/fxamacker/cbor/v2, is the standard Go CBOR
// implementation and is named rather than grounded, since no example
// repo implements this exact wire format.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/crustylabs/crustydb/internal/dberr"
)

// Command is the CBOR request record: {command: tag, args: [string]}.
type Command struct {
	Command string   `cbor:"command"`
	Args    []string `cbor:"args"`
}

// ResponseKind tags which Response variant is populated.
type ResponseKind string

const (
	KindOk                  ResponseKind = "ok"
	KindSystemMsg           ResponseKind = "system_msg"
	KindSystemErr           ResponseKind = "system_err"
	KindQueryResult         ResponseKind = "query_result"
	KindQueryExecutionError ResponseKind = "query_execution_error"
	KindShutdown            ResponseKind = "shutdown"
	KindQuietOk             ResponseKind = "quiet_ok"
	KindQuietErr            ResponseKind = "quiet_err"
)

// QueryResult carries a SELECT's column/rows, an INSERT's affected-row
// count, or a plain message for DDL/system queries that produce no rows.
type QueryResult struct {
	Columns      []string   `cbor:"columns,omitempty"`
	Rows         [][]string `cbor:"rows,omitempty"`
	RowsAffected int64      `cbor:"rows_affected,omitempty"`
	Message      string     `cbor:"message,omitempty"`
}

// Response is the tagged response envelope. Only the field matching Kind
// is meaningful.
type Response struct {
	Kind       ResponseKind `cbor:"kind"`
	Msg        string       `cbor:"msg,omitempty"`
	Result     *QueryResult `cbor:"result,omitempty"`
	FromClient bool         `cbor:"from_client,omitempty"`
}

func Ok() Response                       { return Response{Kind: KindOk} }
func SystemMsg(msg string) Response      { return Response{Kind: KindSystemMsg, Msg: msg} }
func SystemErr(msg string) Response      { return Response{Kind: KindSystemErr, Msg: msg} }
func QueryResultResp(r QueryResult) Response {
	return Response{Kind: KindQueryResult, Result: &r}
}
func QueryExecutionError(msg string) Response {
	return Response{Kind: KindQueryExecutionError, Msg: msg}
}
func Shutdown(fromClient bool) Response {
	return Response{Kind: KindShutdown, FromClient: fromClient}
}

// IsOK reports whether r's variant is ok-class, mirroring
// original_source's Response::is_ok classification.
func (r Response) IsOK() bool {
	switch r.Kind {
	case KindOk, KindSystemMsg, KindQueryResult, KindShutdown, KindQuietOk:
		return true
	default:
		return false
	}
}

// CollapseQuiet implements quiet-mode response collapsing (spec.md §6):
// non-Shutdown ok-class responses become QuietOk, error-class responses
// become QuietErr.
func CollapseQuiet(r Response) Response {
	if r.Kind == KindShutdown {
		return r
	}
	if r.IsOK() {
		return Response{Kind: KindQuietOk}
	}
	return Response{Kind: KindQuietErr}
}

// EncodeCommand/DecodeCommand and EncodeResponse/DecodeResponse wrap
// cbor.Marshal/Unmarshal for the two wire record types.

func EncodeCommand(c Command) ([]byte, error) {
	b, err := cbor.Marshal(c)
	if err != nil {
		return nil, dberr.Wrap(dberr.KindSerialization, "encode command", err)
	}
	return b, nil
}

func DecodeCommand(b []byte) (Command, error) {
	var c Command
	if err := cbor.Unmarshal(b, &c); err != nil {
		return Command{}, dberr.Wrap(dberr.KindSerialization, "decode command", err)
	}
	return c, nil
}

func EncodeResponse(r Response) ([]byte, error) {
	b, err := cbor.Marshal(r)
	if err != nil {
		return nil, dberr.Wrap(dberr.KindSerialization, "encode response", err)
	}
	return b, nil
}

func DecodeResponse(b []byte) (Response, error) {
	var r Response
	if err := cbor.Unmarshal(b, &r); err != nil {
		return Response{}, dberr.Wrap(dberr.KindSerialization, "decode response", err)
	}
	return r, nil
}

// maxFrameSize bounds a single frame's length prefix to guard against a
// corrupt or adversarial peer claiming an unbounded payload size.
const maxFrameSize = 64 << 20

// WriteFrame writes payload prefixed by its 8-byte big-endian length,
// per spec.md §6's response framing.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return dberr.Wrap(dberr.KindSerialization, "write frame length", err)
	}
	if _, err := w.Write(payload); err != nil {
		return dberr.Wrap(dberr.KindSerialization, "write frame payload", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint64(lenBuf[:])
	if n > maxFrameSize {
		return nil, dberr.New(dberr.KindSerialization, "frame length exceeds maximum")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, dberr.Wrap(dberr.KindSerialization, "read frame payload", err)
	}
	return buf, nil
}
