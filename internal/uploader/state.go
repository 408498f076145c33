// Package uploader drives the client side of the upload pipeline: request a
// credential, transfer the bytes straight to storage, register the media and
// optionally pin the memory.
package uploader

import "fmt"

// State is a step of one file's upload flow.
type State string

const (
	StateIdle                State = "idle"
	StateCredentialRequested State = "credential_requested"
	StateCredentialIssued    State = "credential_issued"
	StateTransferInitiated   State = "transfer_initiated"
	StateTransferComplete    State = "transfer_complete"
	StateRegistered          State = "registered"
	StatePinned              State = "pinned"
	StateDone                State = "done"
	StateFailed              State = "failed"
)

// Progress milestones reported alongside state changes.
const (
	ProgressCredentialRequested = 10
	ProgressGroupCreated        = 20
	ProgressCredentialIssued    = 30
	ProgressTransferInitiated   = 50
	ProgressTransferComplete    = 80
	ProgressRegistered          = 90
	ProgressDone                = 100
)

var transitions = map[State][]State{
	StateIdle:                {StateCredentialRequested},
	StateCredentialRequested: {StateCredentialIssued},
	StateCredentialIssued:    {StateTransferInitiated},
	StateTransferInitiated:   {StateTransferComplete},
	StateTransferComplete:    {StateRegistered},
	StateRegistered:          {StatePinned, StateDone},
	StatePinned:              {StateDone},
}

// Event reports one file's progress.
type Event struct {
	File     string
	State    State
	Progress int
	Err      error
}

// ProgressFunc receives events. It may be called from several goroutines.
type ProgressFunc func(Event)

// flow tracks one file through the state machine. Any state may fail; a
// failed flow is restarted from a fresh flow.
type flow struct {
	file     string
	state    State
	progress int
	notify   ProgressFunc
}

func newFlow(file string, notify ProgressFunc) *flow {
	if notify == nil {
		notify = func(Event) {}
	}
	return &flow{file: file, state: StateIdle, notify: notify}
}

func (f *flow) advance(to State, progress int) error {
	if !allowed(f.state, to) {
		return fmt.Errorf("invalid upload transition %s -> %s", f.state, to)
	}
	f.state = to
	f.progress = progress
	f.notify(Event{File: f.file, State: to, Progress: progress})
	return nil
}

// report emits a progress milestone without changing state.
func (f *flow) report(progress int) {
	f.progress = progress
	f.notify(Event{File: f.file, State: f.state, Progress: progress})
}

func (f *flow) fail(err error) error {
	f.state = StateFailed
	f.notify(Event{File: f.file, State: StateFailed, Progress: f.progress, Err: err})
	return err
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
