package sound

import (
	"github.com/google/uuid"

	"github.com/AaronLay10/StagePlayer/internal/events"
)

// Handle is one playable sound as exposed by the audio primitive.
// Play begins playback asynchronously: started fires once samples are
// actually flowing and ended fires when the stream runs out. Pause is
// only valid after started has fired.
type Handle interface {
	Play(started, ended func()) error
	Pause()
}

// Phase is the lifecycle state of a playback entry.
type Phase string

const (
	PhaseRequested   Phase = "requested"
	PhaseStarted     Phase = "started"
	PhaseStopPending Phase = "stop_pending"
	PhaseStopped     Phase = "stopped"
	PhaseEnded       Phase = "ended"
)

// Entry tracks one in-flight playback.
type Entry struct {
	ID     string
	Source string

	handle   Handle
	phase    Phase
	deferred []func()
	settled  bool
	done     chan struct{}
}

// Phase returns the entry's current phase.
func (e *Entry) Phase() Phase { return e.phase }

// HasStarted reports whether the audio primitive has begun playback.
func (e *Entry) HasStarted() bool {
	return e.phase == PhaseStarted || e.phase == PhaseStopped
}

// Done is closed exactly once, when playback ends or its pause is applied.
func (e *Entry) Done() <-chan struct{} { return e.done }

// Registry tracks playback entries so they can be stopped en masse.
// It is not safe for concurrent use: every call, including the audio
// callbacks, must run on the owner's cooperative context. post is how
// callbacks from the audio goroutine get there.
type Registry struct {
	post    func(func())
	entries []*Entry
}

// NewRegistry creates a registry. post must schedule fn on the owner's
// context; a nil post runs callbacks inline.
func NewRegistry(post func(func())) *Registry {
	if post == nil {
		post = func(fn func()) { fn() }
	}
	return &Registry{post: post}
}

// Play registers a new entry and begins playback. The entry is in the
// registry before playback has started.
func (r *Registry) Play(source string, h Handle) (*Entry, error) {
	e := &Entry{
		ID:     uuid.NewString(),
		Source: source,
		handle: h,
		phase:  PhaseRequested,
		done:   make(chan struct{}),
	}
	r.entries = append(r.entries, e)

	events.Emit("info", "sound.requested", "", map[string]interface{}{
		"sound_id": e.ID,
		"source":   source,
	})

	err := h.Play(
		func() { r.post(func() { r.started(e) }) },
		func() { r.post(func() { r.ended(e) }) },
	)
	if err != nil {
		r.remove(e)
		e.phase = PhaseEnded
		e.settle()
		events.Emit("error", "sound.failed", err.Error(), map[string]interface{}{
			"sound_id": e.ID,
			"source":   source,
		})
		return nil, err
	}
	return e, nil
}

// Stop stops an entry. A started entry is paused at once; one that has
// not started yet has its pause deferred to the start event. Either way
// it leaves the registry immediately. Stopping twice is harmless.
func (r *Registry) Stop(e *Entry) {
	switch e.phase {
	case PhaseStarted:
		e.handle.Pause()
		e.phase = PhaseStopped
		e.settle()
		events.Emit("info", "sound.stopped", "", map[string]interface{}{"sound_id": e.ID})
	case PhaseRequested:
		e.phase = PhaseStopPending
		e.deferred = append(e.deferred, func() {
			e.handle.Pause()
			e.phase = PhaseStopped
			e.settle()
			events.Emit("info", "sound.stopped", "deferred pause applied", map[string]interface{}{"sound_id": e.ID})
		})
	}
	r.remove(e)
}

// StopAll stops every entry registered at the time of the call.
func (r *Registry) StopAll() {
	snapshot := append([]*Entry(nil), r.entries...)
	for _, e := range snapshot {
		r.Stop(e)
	}
}

// Len returns the number of entries in the registry.
func (r *Registry) Len() int { return len(r.entries) }

// Entries returns a copy of the registered entries.
func (r *Registry) Entries() []*Entry {
	return append([]*Entry(nil), r.entries...)
}

// Contains reports whether e is registered.
func (r *Registry) Contains(e *Entry) bool {
	return r.indexOf(e) >= 0
}

func (r *Registry) started(e *Entry) {
	switch e.phase {
	case PhaseRequested:
		e.phase = PhaseStarted
		events.Emit("info", "sound.started", "", map[string]interface{}{"sound_id": e.ID})
	case PhaseStopPending:
		deferred := e.deferred
		e.deferred = nil
		for _, fn := range deferred {
			fn()
		}
	}
}

// ended handles the natural end of playback.
func (r *Registry) ended(e *Entry) {
	switch e.phase {
	case PhaseRequested, PhaseStarted, PhaseStopPending:
		e.phase = PhaseEnded
		e.deferred = nil
		r.remove(e)
		e.settle()
		events.Emit("info", "sound.ended", "", map[string]interface{}{"sound_id": e.ID})
	}
}

func (r *Registry) remove(e *Entry) {
	idx := r.indexOf(e)
	if idx < 0 {
		return
	}
	next := make([]*Entry, 0, len(r.entries)-1)
	next = append(next, r.entries[:idx]...)
	next = append(next, r.entries[idx+1:]...)
	r.entries = next
}

func (r *Registry) indexOf(e *Entry) int {
	for i, candidate := range r.entries {
		if candidate == e {
			return i
		}
	}
	return -1
}

func (e *Entry) settle() {
	if e.settled {
		return
	}
	e.settled = true
	close(e.done)
}
