package sidecar

import (
	"errors"
	"fmt"
)

// ErrorKind classifies host-side sidecar failures. Retry eligibility and
// receipt shaping branch on the kind.
type ErrorKind string

const (
	KindSpawn     ErrorKind = "spawn"
	KindStdout    ErrorKind = "stdout"
	KindStdin     ErrorKind = "stdin"
	KindProtocol  ErrorKind = "protocol"
	KindViolation ErrorKind = "violation"
	KindFatal     ErrorKind = "fatal"
	KindExited    ErrorKind = "exited"
	KindTimeout   ErrorKind = "timeout"
	KindCrashed   ErrorKind = "crashed"
	KindCancelled ErrorKind = "cancelled"
)

// HostError is the error type for sidecar supervision.
type HostError struct {
	Kind ErrorKind
	Msg  string
	// ExitCode is set for KindExited when the status is known.
	ExitCode *int
	// ErrorCode carries the sidecar-reported code on KindFatal.
	ErrorCode string
	Err       error
}

func (e *HostError) Error() string {
	switch e.Kind {
	case KindSpawn:
		return fmt.Sprintf("failed to spawn sidecar: %v", e.Err)
	case KindStdout:
		return fmt.Sprintf("failed to read sidecar stdout: %v", e.Err)
	case KindStdin:
		return fmt.Sprintf("failed to write sidecar stdin: %v", e.Err)
	case KindProtocol:
		return fmt.Sprintf("sidecar protocol error: %v", e.Err)
	case KindViolation:
		return fmt.Sprintf("sidecar protocol violation: %s", e.Msg)
	case KindFatal:
		return fmt.Sprintf("sidecar fatal error: %s", e.Msg)
	case KindExited:
		if e.ExitCode != nil {
			return fmt.Sprintf("sidecar exited unexpectedly (code=%d)", *e.ExitCode)
		}
		return "sidecar exited unexpectedly"
	case KindTimeout:
		return fmt.Sprintf("sidecar timed out: %s", e.Msg)
	case KindCrashed:
		return fmt.Sprintf("sidecar crashed: %s", e.Msg)
	case KindCancelled:
		return "sidecar run cancelled"
	default:
		return fmt.Sprintf("sidecar error: %s", e.Msg)
	}
}

func (e *HostError) Unwrap() error { return e.Err }

// AsHostError unwraps err to a *HostError if one is in the chain.
func AsHostError(err error) (*HostError, bool) {
	var he *HostError
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// IsRetryable reports whether an error is transient enough to retry the
// spawn path. Protocol violations and version mismatches are permanent.
func IsRetryable(err error) bool {
	he, ok := AsHostError(err)
	if !ok {
		return false
	}
	switch he.Kind {
	case KindSpawn, KindStdout, KindExited, KindTimeout, KindCrashed:
		return true
	default:
		return false
	}
}

func spawnErr(err error) *HostError     { return &HostError{Kind: KindSpawn, Err: err} }
func stdoutErr(err error) *HostError    { return &HostError{Kind: KindStdout, Err: err} }
func stdinErr(err error) *HostError     { return &HostError{Kind: KindStdin, Err: err} }
func protocolErr(err error) *HostError  { return &HostError{Kind: KindProtocol, Err: err} }
func violation(msg string) *HostError   { return &HostError{Kind: KindViolation, Msg: msg} }
func fatalErr(msg, code string) *HostError {
	return &HostError{Kind: KindFatal, Msg: msg, ErrorCode: code}
}
func exitedErr(code *int) *HostError    { return &HostError{Kind: KindExited, ExitCode: code} }
func timeoutErr(msg string) *HostError  { return &HostError{Kind: KindTimeout, Msg: msg} }
func cancelledErr() *HostError          { return &HostError{Kind: KindCancelled} }
