package bridge

import "sync/atomic"

// State is the lifecycle state of a forwarder.
type State uint32

const (
	// StartingState is the state of a forwarder that was created but whose task has not run yet.
	StartingState State = iota
	// RunningState is the state of a forwarder whose loop is executing.
	RunningState
	// StopRequestedState is entered when the bridge asks the forwarder to stop.
	StopRequestedState
	// StoppedState is terminal.
	StoppedState
)

// String returns string representation of the state.
func (s State) String() string {
	switch s {
	case StartingState:
		return "starting"
	case RunningState:
		return "running"
	case StopRequestedState:
		return "stop-requested"
	case StoppedState:
		return "stopped"
	default:
		return "unknown"
	}
}

// AtomicState holds a State that can be transitioned concurrently.
// The zero value is StartingState.
type AtomicState struct {
	state atomic.Uint32
}

func (st *AtomicState) String() string {
	return st.Get().String()
}

// Get returns the current state.
func (st *AtomicState) Get() State {
	return State(st.state.Load())
}

func (st *AtomicState) IsRunning() bool {
	return st.Get() == RunningState
}

func (st *AtomicState) IsStopped() bool {
	return st.Get() == StoppedState
}

// ToRunning moves Starting to Running.
func (st *AtomicState) ToRunning() bool {
	if st.IsRunning() {
		return true
	}

	return st.state.CompareAndSwap(uint32(StartingState), uint32(RunningState))
}

// ToStopRequested moves Starting or Running to StopRequested.
func (st *AtomicState) ToStopRequested() bool {
	if st.state.CompareAndSwap(uint32(RunningState), uint32(StopRequestedState)) {
		return true
	}

	return st.state.CompareAndSwap(uint32(StartingState), uint32(StopRequestedState))
}

// ToStopped moves any state to Stopped. It reports false if the state was already Stopped.
func (st *AtomicState) ToStopped() bool {
	return st.state.Swap(uint32(StoppedState)) != uint32(StoppedState)
}
