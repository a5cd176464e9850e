// Package rpc implements a JSON-RPC 2.0 client whose requests and responses travel
// over different channels.
//
// # Protocol
//
// The transport opens a Server-Sent Events stream with bearer authentication:
//
//	GET /sse
//	Authorization: Bearer <token>
//	Accept: text/event-stream
//
// The first "endpoint" event carries a session-scoped path. Resolved against the
// base URL it becomes the submission endpoint:
//
//	event: endpoint
//	data: /messages?sessionId=5f0c...
//
// Requests are POSTed to that endpoint. The HTTP response only confirms submission;
// the JSON-RPC response arrives later as a "message" event on the stream and is
// correlated by id:
//
//	event: message
//	data: {"jsonrpc":"2.0","id":3,"result":{...}}
//
// # Errors
//
// Callers can tell failures apart with errors.As:
//
//   - *SubmissionError: the POST was rejected (non-2xx)
//   - *ProtocolError: the response carried a JSON-RPC error object
//   - *TimeoutError: no response before the request deadline
//   - *CapabilityError: a tool ran and reported failure (isError)
//
// ErrStreamLost is returned to requests in flight when the stream drops, and
// ErrClosed once the transport is closed. Retryable classifies all of them.
//
// # Usage
//
//	t := rpc.NewTransport(rpc.Config{BaseURL: "https://platform.example/mcp", Token: tok}, logger)
//	t.Start(ctx)
//	defer t.Close()
//
//	if _, err := t.Initialize(ctx); err != nil { ... }
//	caps, err := t.ListCapabilities(ctx)
package rpc
