// Package protocol defines the wire-level request/response schema
// exchanged over the framed transport (internal/wire): tagged request
// variants, tagged responses, the closed error-code set, and the
// statement/parameter types that make up an ExecBatch.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RequestType discriminates a Request by its "type" field.
type RequestType string

const (
	RequestPing                  RequestType = "Ping"
	RequestExecBatch             RequestType = "ExecBatch"
	RequestPrepareForMaintenance RequestType = "PrepareForMaintenance"
	RequestCloseDatabase         RequestType = "CloseDatabase"
	RequestReopenDatabase        RequestType = "ReopenDatabase"
	RequestShutdown              RequestType = "Shutdown"
)

// TxMode selects how ExecBatch applies its statements.
type TxMode string

const (
	// TxAtomic wraps the whole batch plus the revision bump in one
	// transaction. This is the default when a request omits "tx".
	TxAtomic TxMode = "atomic"
	// TxNone runs each statement directly against the pool with no
	// enclosing transaction. Retained for backward compatibility only;
	// see the doc comment on the worker's execBatchNone.
	TxNone TxMode = "none"
)

// Statement is one SQL text plus its ordered bind parameters.
type Statement struct {
	SQL    string        `json:"sql"`
	Params []interface{} `json:"params,omitempty"`
}

// Request is the full discriminated union of client requests. Only the
// fields relevant to Type are populated; see spec §4.2.
type Request struct {
	Type  RequestType `json:"type"`
	DB    string      `json:"db,omitempty"`
	Stmts []Statement `json:"stmts,omitempty"`
	Tx    TxMode      `json:"tx,omitempty"`
}

// ParseRequest decodes one JSON request payload. Numbers are decoded with
// json.Number so that integer vs. floating-point parameters can be told
// apart during binding (see bind.go) instead of collapsing everything to
// float64. Tx defaults to atomic for ExecBatch when omitted.
func ParseRequest(payload []byte) (*Request, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var req Request
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("protocol: decode request: %w", err)
	}

	switch req.Type {
	case RequestPing, RequestExecBatch, RequestPrepareForMaintenance, RequestCloseDatabase, RequestReopenDatabase, RequestShutdown:
	default:
		return nil, fmt.Errorf("protocol: unknown request type %q", req.Type)
	}

	if req.Type != RequestShutdown && req.DB == "" {
		return nil, fmt.Errorf("protocol: %s request is missing \"db\"", req.Type)
	}

	if req.Type == RequestExecBatch && req.Tx == "" {
		req.Tx = TxAtomic
	}

	return &req, nil
}

// Error codes. This is a closed set — the wire format never emits a code
// outside of it (uncoded validation errors omit "code" entirely).
const (
	ErrCodeTxBeginFailed     = "TX_BEGIN_FAILED"
	ErrCodeTxCommitFailed    = "TX_COMMIT_FAILED"
	ErrCodeSQLError          = "SQL_ERROR"
	ErrCodeDatabasePreparing = "DATABASE_PREPARING"
	ErrCodeDatabaseClosed    = "DATABASE_CLOSED"
)

// Response is the full discriminated union of server responses. Status
// is "ok" or "error"; on success only the fields relevant to the
// originating request type are populated, flattened beside Status.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`

	Version      string  `json:"version,omitempty"`
	DBPath       string  `json:"db_path,omitempty"`
	Rev          *int64  `json:"rev,omitempty"`
	RowsAffected *uint64 `json:"rows_affected,omitempty"`
	Checkpointed *bool   `json:"checkpointed,omitempty"`
	Closed       *bool   `json:"closed,omitempty"`
	Reopened     *bool   `json:"reopened,omitempty"`
}

func boolPtr(b bool) *bool    { return &b }
func int64Ptr(i int64) *int64 { return &i }

// OkPing builds the Ping success response.
func OkPing(version, dbPath string, rev int64) Response {
	return Response{Status: "ok", Version: version, DBPath: dbPath, Rev: int64Ptr(rev)}
}

// OkExecBatch builds the ExecBatch success response.
func OkExecBatch(rev int64, rowsAffected uint64) Response {
	return Response{Status: "ok", Rev: int64Ptr(rev), RowsAffected: &rowsAffected}
}

// OkPrepareForMaintenance builds the PrepareForMaintenance success response.
func OkPrepareForMaintenance(checkpointed bool) Response {
	return Response{Status: "ok", Checkpointed: boolPtr(checkpointed)}
}

// OkCloseDatabase builds the CloseDatabase success response.
func OkCloseDatabase(closed bool) Response {
	return Response{Status: "ok", Closed: boolPtr(closed)}
}

// OkReopenDatabase builds the ReopenDatabase success response.
func OkReopenDatabase(reopened bool, rev int64) Response {
	return Response{Status: "ok", Reopened: boolPtr(reopened), Rev: int64Ptr(rev)}
}

// OkShutdown builds the Shutdown success response.
func OkShutdown() Response {
	return Response{Status: "ok"}
}

// Error builds an uncoded error response — protocol, validation, and
// dispatch failures that have no entry in the closed error-code set.
func Error(message string) Response {
	return Response{Status: "error", Message: message}
}

// ErrorWithCode builds a coded error response (state or engine errors).
func ErrorWithCode(message, code string) Response {
	return Response{Status: "error", Message: message, Code: code}
}

// Marshal serializes r as the JSON payload to be framed onto the wire.
func (r Response) Marshal() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal response: %w", err)
	}
	return b, nil
}
