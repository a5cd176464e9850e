// ABOUTME: JSON-RPC 2.0 wire types shared by the transport and its callers.
// ABOUTME: Request ids are int64; responses carry either a result or an error object.

package rpc

import (
	"encoding/json"
	"strconv"
)

// Standard JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is a JSON-RPC 2.0 request. A nil ID makes it a notification.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 message read from the stream: a response, a
// server request or a server notification. Replies to server requests reuse it.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the JSON-RPC error member.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// hasID reports whether the message carries a non-null id.
func (r *Response) hasID() bool {
	return len(r.ID) != 0 && string(r.ID) != "null"
}

// requestID returns the numeric id of a response. Servers may echo ids as
// strings, so quoted integers are accepted too.
func (r *Response) requestID() (int64, bool) {
	if !r.hasID() {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(r.ID, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(r.ID, &s); err != nil {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
