package model

import "strings"

// CoordinatorState represents the lifecycle state of the coordinator loop.
type CoordinatorState string

const (
	CoordinatorRunning    CoordinatorState = "RUNNING"
	CoordinatorDraining   CoordinatorState = "DRAINING"
	CoordinatorTerminated CoordinatorState = "TERMINATED"
)

// String returns the string representation of the coordinator state.
func (s CoordinatorState) String() string {
	return string(s)
}

// IsTerminal returns true once the coordinator has stopped.
func (s CoordinatorState) IsTerminal() bool {
	return s == CoordinatorTerminated
}

// ValidCoordinatorTransitions defines the allowed coordinator state transitions.
// RUNNING may jump straight to TERMINATED on interrupt or fatal error.
var ValidCoordinatorTransitions = map[CoordinatorState][]CoordinatorState{
	CoordinatorRunning:  {CoordinatorDraining, CoordinatorTerminated},
	CoordinatorDraining: {CoordinatorTerminated},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s CoordinatorState) CanTransitionTo(next CoordinatorState) bool {
	for _, allowed := range ValidCoordinatorTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// WorkerState represents the lifecycle state of a worker task.
type WorkerState string

const (
	WorkerStarting     WorkerState = "STARTING"
	WorkerAwaitingPoll WorkerState = "AWAITING_POLL"
	WorkerTerminating  WorkerState = "TERMINATING"
)

// String returns the string representation of the worker state.
func (s WorkerState) String() string {
	return string(s)
}

// ValidWorkerTransitions defines the allowed worker state transitions.
var ValidWorkerTransitions = map[WorkerState][]WorkerState{
	WorkerStarting:     {WorkerAwaitingPoll, WorkerTerminating},
	WorkerAwaitingPoll: {WorkerTerminating},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s WorkerState) CanTransitionTo(next WorkerState) bool {
	for _, allowed := range ValidWorkerTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RunState is the persisted outcome of one coordinator run.
type RunState string

const (
	RunStateRunning     RunState = "RUNNING"
	RunStateCompleted   RunState = "COMPLETED"
	RunStateInterrupted RunState = "INTERRUPTED"
	RunStateFailed      RunState = "FAILED"
)

// IsTerminal returns true if the run has finished.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateCompleted, RunStateInterrupted, RunStateFailed:
		return true
	}
	return false
}

// ParseRunState returns the RunState named by s, case-insensitively.
func ParseRunState(s string) (RunState, bool) {
	switch st := RunState(strings.ToUpper(s)); st {
	case RunStateRunning, RunStateCompleted, RunStateInterrupted, RunStateFailed:
		return st, true
	}
	return "", false
}

// ExecutionMode selects how worker tasks are hosted.
type ExecutionMode string

const (
	ModeInproc  ExecutionMode = "inproc"
	ModeProcess ExecutionMode = "process"
)
