package uci

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineUnreachable is returned when an engine never completes the
	// handshake, either because it exited or because it stayed silent past
	// the handshake timeout.
	ErrEngineUnreachable = errors.New("engine unreachable")
	// ErrEngineExited is returned when the engine's output ends mid-query.
	ErrEngineExited  = errors.New("engine exited")
	ErrSessionClosed = errors.New("session closed")
	ErrNotReady      = errors.New("session not ready")
)

// OpError records which engine and which operation failed.
type OpError struct {
	Engine string
	Op     string
	Err    error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("uci %s %s: %v", e.Engine, e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
