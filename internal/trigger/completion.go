package trigger

import "context"

// Completion resolves once every instance of a dispatch batch is terminal.
// Instances that never finish keep it pending forever.
type Completion struct {
	remaining int
	done      chan struct{}
}

// NewCompletion combines the given instances into one signal.
func NewCompletion(instances []*Instance) *Completion {
	c := &Completion{
		remaining: len(instances),
		done:      make(chan struct{}),
	}
	if c.remaining == 0 {
		close(c.done)
		return c
	}
	for _, inst := range instances {
		inst.OnTerminal(c.release)
	}
	return c
}

func (c *Completion) release(*Instance) {
	c.remaining--
	if c.remaining == 0 {
		close(c.done)
	}
}

// Done returns a channel closed on resolution.
func (c *Completion) Done() <-chan struct{} { return c.done }

// Resolved reports whether the completion has resolved.
func (c *Completion) Resolved() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Wait blocks until resolution or ctx cancellation. Do not call it from the
// engine loop: the instances it waits for are stepped there.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
