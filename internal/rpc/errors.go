// ABOUTME: Error taxonomy for the RPC transport.
// ABOUTME: Separates submission, protocol, timeout, and capability failures.

package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrClosed is returned once the transport has been closed.
var ErrClosed = errors.New("rpc transport closed")

// ErrStreamLost is returned to requests in flight when the event stream drops.
// Their session endpoint is gone, so no response can arrive.
var ErrStreamLost = errors.New("event stream lost before response")

// SubmissionError reports that the POST carrying a request was rejected.
type SubmissionError struct {
	Method string
	Status int
	Body   string
}

func (e *SubmissionError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("submitting %s: HTTP %d", e.Method, e.Status)
	}
	return fmt.Sprintf("submitting %s: HTTP %d: %s", e.Method, e.Status, e.Body)
}

// ProtocolError is a JSON-RPC error object returned by the server.
type ProtocolError struct {
	Method  string
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: rpc error %d: %s", e.Method, e.Code, e.Message)
}

// TimeoutError reports that no response arrived before the request deadline.
type TimeoutError struct {
	Method string
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no response after %s", e.Method, e.After)
}

// Is lets errors.Is(err, context.DeadlineExceeded) match timeouts.
func (e *TimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}

// CapabilityError means the remote tool executed and reported failure.
// Text is the tool's own human-readable output.
type CapabilityError struct {
	Name string
	Text string
}

func (e *CapabilityError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("tool %s failed", e.Name)
	}
	return fmt.Sprintf("tool %s failed: %s", e.Name, e.Text)
}

// Retryable reports whether err is worth retrying unchanged: timeouts, lost
// streams, and server-side or throttled submissions. Protocol and capability
// errors are terminal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStreamLost) {
		return true
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}

	var subErr *SubmissionError
	if errors.As(err, &subErr) {
		return subErr.Status >= 500 || subErr.Status == http.StatusTooManyRequests
	}

	return false
}
