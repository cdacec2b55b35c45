package agent

import (
	"errors"
	"fmt"
)

// RunStatus mirrors the remote run lifecycle.
type RunStatus string

const (
	RunQueued     RunStatus = "queued"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// Waiting reports whether the run has not settled yet.
func (s RunStatus) Waiting() bool {
	return s == RunQueued || s == RunInProgress
}

// Kind tags a Result. The zero Kind marks a Result no constructor built.
type Kind int

const (
	KindUnknown Kind = iota
	KindSucceeded
	KindPending
	KindFailed
)

// FailureKind classifies a failed Result.
type FailureKind int

const (
	FailureRun           FailureKind = iota // The remote run ended in "failed"
	FailureTransport                        // The call itself errored
	FailureUnexpected                       // The run ended in a status the adapter does not handle
	FailureUninitialized                    // Run before Create
	FailureRejected                         // The remote side refused the request
)

func (k FailureKind) String() string {
	switch k {
	case FailureRun:
		return "run_failed"
	case FailureTransport:
		return "transport"
	case FailureUnexpected:
		return "unexpected_status"
	case FailureUninitialized:
		return "uninitialized"
	case FailureRejected:
		return "rejected"
	}
	return fmt.Sprintf("failure(%d)", int(k))
}

// Result is the outcome of Run or Poll: a response, a run still in flight, or a failure.
type Result struct {
	Kind      Kind
	Response  string
	RunID     string
	RunStatus RunStatus
	Failure   FailureKind
	Err       error
}

// Succeeded builds a successful Result.
func Succeeded(response string) Result {
	return Result{Kind: KindSucceeded, Response: response, RunStatus: RunCompleted}
}

// Pending builds a Result for a run that has not settled.
func Pending(runID string, status RunStatus) Result {
	return Result{Kind: KindPending, RunID: runID, RunStatus: status}
}

// Failed builds a failed Result.
func Failed(kind FailureKind, status RunStatus, err error) Result {
	if err == nil {
		err = errors.New(kind.String())
	}
	return Result{Kind: KindFailed, Failure: kind, RunStatus: status, Err: err}
}

func (r Result) OK() bool        { return r.Kind == KindSucceeded }
func (r Result) IsPending() bool { return r.Kind == KindPending }

// Retryable reports whether another attempt may succeed.
func (r Result) Retryable() bool {
	return r.Kind == KindFailed && (r.Failure == FailureRun || r.Failure == FailureTransport)
}

// ErrorText returns the failure text, or "" when the Result did not fail.
func (r Result) ErrorText() string {
	if r.Kind != KindFailed || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
