package trigger

import (
	"github.com/google/uuid"
)

// Task is the resumable execution of a script body.
// Advance runs the body until its next suspension point and reports
// whether the body has finished.
type Task interface {
	Advance() (done bool, err error)
}

// Canceler is implemented by tasks that hold resources which must be
// released when their instance is stopped before finishing.
type Canceler interface {
	Cancel()
}

// Body creates a fresh Task for every run of a script.
type Body interface {
	NewTask() Task
}

// BodyFunc adapts a plain function to Body.
type BodyFunc func() Task

func (f BodyFunc) NewTask() Task { return f() }

// TaskFunc adapts a step function to Task.
type TaskFunc func() (bool, error)

func (f TaskFunc) Advance() (bool, error) { return f() }

// Trigger pairs a Descriptor with the body it starts. Triggers are
// compared by identity: one Trigger is one (script, descriptor) pair.
type Trigger struct {
	Descriptor Descriptor
	Body       Body
}

// New creates a trigger for a script.
func New(d Descriptor, body Body) *Trigger {
	return &Trigger{Descriptor: d, Body: body}
}

// State represents the lifecycle state of a running instance.
type State string

const (
	StateCreated   State = "created"
	StateRunning   State = "running"
	StateDone      State = "done"
	StateCancelled State = "cancelled"
)

// IsTerminal returns true for Done and Cancelled.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateCancelled
}

// Instance is one live run of a trigger's body.
type Instance struct {
	ID      string
	Owner   string
	Trigger *Trigger

	state    State
	task     Task
	err      error
	onDone   func(*Instance)
	done     chan struct{}
	watchers []func(*Instance)
}

// NewInstance creates an instance in the Created state.
func NewInstance(owner string, tr *Trigger) *Instance {
	return &Instance{
		ID:      uuid.NewString(),
		Owner:   owner,
		Trigger: tr,
		state:   StateCreated,
		done:    make(chan struct{}),
	}
}

// Start moves the instance to Running and creates its task.
// onDone runs once if the body finishes on its own.
func (i *Instance) Start(onDone func(*Instance)) <-chan struct{} {
	if i.state != StateCreated {
		return i.done
	}
	i.onDone = onDone
	i.state = StateRunning
	i.task = i.Trigger.Body.NewTask()
	return i.done
}

// Step advances the body once. Terminal instances are left alone.
func (i *Instance) Step() {
	if i.state != StateRunning || i.task == nil {
		return
	}
	finished, err := i.task.Advance()
	// the body may have been cancelled from inside its own step
	if i.state != StateRunning {
		return
	}
	if err != nil {
		i.err = err
		finished = true
	}
	if finished {
		i.finish()
	}
}

// Finish marks a running instance Done from outside the step loop, for
// bodies that complete between frames.
func (i *Instance) Finish() {
	if i.state != StateRunning {
		return
	}
	i.finish()
}

func (i *Instance) finish() {
	i.state = StateDone
	i.task = nil
	i.terminate()
	if i.onDone != nil {
		i.onDone(i)
	}
}

// Stop cancels the instance. Stopping a terminal instance does nothing.
func (i *Instance) Stop() {
	if i.state.IsTerminal() {
		return
	}
	i.state = StateCancelled
	if c, ok := i.task.(Canceler); ok {
		c.Cancel()
	}
	i.task = nil
	i.terminate()
}

func (i *Instance) terminate() {
	close(i.done)
	watchers := i.watchers
	i.watchers = nil
	for _, w := range watchers {
		w(i)
	}
}

// OnTerminal registers fn to run when the instance reaches a terminal state.
// If it already has, fn runs immediately.
func (i *Instance) OnTerminal(fn func(*Instance)) {
	if i.state.IsTerminal() {
		fn(i)
		return
	}
	i.watchers = append(i.watchers, fn)
}

func (i *Instance) State() State { return i.state }

// Done reports whether the instance is terminal.
func (i *Instance) Done() bool { return i.state.IsTerminal() }

// Wait returns a channel closed once the instance is terminal.
func (i *Instance) Wait() <-chan struct{} { return i.done }

// Err returns the error that ended the body, if any.
func (i *Instance) Err() error { return i.err }
