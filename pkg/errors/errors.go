package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (%v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ErrorCode implements go-ethereum's rpc.Error so relay errors surface with
// their code through the chain provider client.
func (e *RPCError) ErrorCode() int {
	return e.Code
}

// ErrorData implements go-ethereum's rpc.DataError.
func (e *RPCError) ErrorData() any {
	return e.Data
}

// JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeExecutionError = -32000
	CodeLimitExceeded  = -32005
)

// Response is a JSON-RPC 2.0 response envelope. ID is a raw message so the
// caller's id is echoed back byte for byte. Only envelopes built by
// FailureWithoutID leave it out.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

var nullID = json.RawMessage("null")

func replyID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return nullID
	}
	return id
}

// Result builds a success envelope. A request without an id is answered
// with "id": null.
func Result(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: replyID(id), Result: result}
}

// Failure builds an error envelope. A missing id is sent as null.
func Failure(id json.RawMessage, err *RPCError) *Response {
	return &Response{JSONRPC: "2.0", ID: replyID(id), Error: err}
}

// FailureWithoutID builds an error envelope with no id member, the shape
// relay execution errors are reported in.
func FailureWithoutID(err *RPCError) *Response {
	return &Response{JSONRPC: "2.0", Error: err}
}

// InvalidParams creates a malformed params error
func InvalidParams(detail string) *RPCError {
	return &RPCError{
		Code:    CodeInvalidParams,
		Message: detail,
	}
}

// ExecutionError creates an execution failure error carrying the cause in data
func ExecutionError(cause error) *RPCError {
	return &RPCError{
		Code:    CodeExecutionError,
		Message: "Execution error",
		Data:    cause.Error(),
	}
}

// IsRPCError checks if an error is an RPCError
func IsRPCError(err error) (*RPCError, bool) {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}

// LimitExceeded is returned when a caller exceeds the relay's request rate.
func LimitExceeded() *RPCError {
	return &RPCError{
		Code:    CodeLimitExceeded,
		Message: "rate limit exceeded",
	}
}
