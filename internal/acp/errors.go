package acp

import "fmt"

// RPCError is a structured JSON-RPC error returned by the agent.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// TransportError is a network-level failure: connection refused,
// timeout, or a body that could not be read or parsed. It is distinct
// from RPCError so callers can tell a broken pipe from a server that
// answered with a structured error.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func transportErr(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}
