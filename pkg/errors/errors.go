package errors

import (
	"errors"
	"fmt"
)

// Error codes surfaced by the consensus engine. These are the errorKind
// strings carried in a RoundOutcome, so they stay lower-snake on the wire.
const (
	CodeBelowMinQuorum      = "prepare_nodes_below_min_quorum"
	CodeConsensusNotReached = "prepare_consensus_not_reached"
	CodeCommitDeclined      = "commit_declined"
	CodeTimeout             = "timeout"
	CodeDown                = "down"
	CodeCatchAll            = "catch_all"
)

// AppError is a custom error type that includes an error code, message, and underlying error.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Helper functions for common errors

func BelowMinQuorum(msg string, err error) *AppError {
	if msg == "" {
		msg = "fewer reachable peers than the minimum quorum"
	}
	return New(CodeBelowMinQuorum, msg, err)
}

func ConsensusNotReached(msg string, err error) *AppError {
	if msg == "" {
		msg = "majority of promises not received"
	}
	return New(CodeConsensusNotReached, msg, err)
}

func CommitDeclined(msg string, err error) *AppError {
	if msg == "" {
		msg = "majority of accepts not received"
	}
	return New(CodeCommitDeclined, msg, err)
}

func Timeout(msg string, err error) *AppError {
	if msg == "" {
		msg = "deadline exceeded"
	}
	return New(CodeTimeout, msg, err)
}

func Down(msg string, err error) *AppError {
	if msg == "" {
		msg = "peer unreachable"
	}
	return New(CodeDown, msg, err)
}

func CatchAll(msg string, err error) *AppError {
	if msg == "" {
		msg = "unexpected failure"
	}
	return New(CodeCatchAll, msg, err)
}

// Code extracts the error code from an error chain, or CodeCatchAll when
// the chain carries no AppError.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeCatchAll
}

// Retryable reports whether a fresh round could change the result.
// A missing quorum of live nodes cannot be fixed by retrying, and a
// successful round is never retried; only declined phases qualify.
func Retryable(err error) bool {
	switch Code(err) {
	case CodeConsensusNotReached, CodeCommitDeclined:
		return true
	}
	return false
}

// Wrap is a utility to wrap an error with a message
func Wrap(err error, msg string) error {
	return fmt.Errorf("%s: %w", msg, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target, and if so, sets target to that error value and returns true.
func As(err error, target any) bool {
	return errors.As(err, target)
}
