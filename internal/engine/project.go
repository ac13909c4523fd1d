package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AaronLay10/StagePlayer/internal/events"
	"github.com/AaronLay10/StagePlayer/internal/sound"
	"github.com/AaronLay10/StagePlayer/internal/trigger"
	"github.com/AaronLay10/StagePlayer/internal/vars"
)

// Project owns every script, the running set and the sound registry.
//
// All methods except Post, the input helpers and Stats must be called from
// the goroutine running Run (or, before Run, from the goroutine that built
// the project). There is no locking around the running set: the loop is the
// only thing that touches it.
type Project struct {
	ID string

	stage   *Sprite
	sprites []*Sprite
	vars    *vars.Store

	renderer   Renderer
	scheduler  Scheduler
	audio      AudioOpener
	input      InputSource
	activation ActivationSource
	clock      func() time.Time
	tracer     trace.Tracer

	running    []*trigger.Instance
	live       map[*trigger.Trigger]*trigger.Instance
	owners     map[*trigger.Trigger]*Sprite
	sounds     *sound.Registry
	timerStart time.Time

	inboxMu sync.Mutex
	inbox   []func()
	wake    chan struct{}

	runningCount atomic.Int64
	soundCount   atomic.Int64
	frames       atomic.Uint64
	fires        atomic.Uint64
}

// Option configures a Project.
type Option func(*Project)

func WithID(id string) Option { return func(p *Project) { p.ID = id } }

func WithVars(v *vars.Store) Option { return func(p *Project) { p.vars = v } }

func WithRenderer(r Renderer) Option { return func(p *Project) { p.renderer = r } }

func WithScheduler(s Scheduler) Option { return func(p *Project) { p.scheduler = s } }

func WithAudio(a AudioOpener) Option { return func(p *Project) { p.audio = a } }

func WithInput(src InputSource) Option { return func(p *Project) { p.input = src } }

func WithActivation(src ActivationSource) Option {
	return func(p *Project) { p.activation = src }
}

func WithClock(now func() time.Time) Option { return func(p *Project) { p.clock = now } }

// New builds a project from externally supplied scripts. Each sprite and
// the stage gets its back-reference here, once.
func New(stage *Sprite, sprites []*Sprite, opts ...Option) *Project {
	p := &Project{
		stage:   stage,
		sprites: sprites,
		live:    make(map[*trigger.Trigger]*trigger.Instance),
		owners:  make(map[*trigger.Trigger]*Sprite),
		wake:    make(chan struct{}, 1),
		clock:   time.Now,
		tracer:  otel.Tracer("github.com/AaronLay10/StagePlayer/internal/engine"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.vars == nil {
		p.vars = vars.New(nil)
	}
	p.sounds = sound.NewRegistry(p.Post)

	for _, target := range p.SpritesAndStage() {
		if target.project == nil {
			target.project = p
		}
		for _, tr := range target.Triggers {
			p.owners[tr] = target
		}
	}

	if p.input != nil {
		p.input.OnKey(p.PressKey)
	}

	p.timerStart = p.clock()
	return p
}

// SpritesAndStage returns the sprites in declared order followed by the stage.
func (p *Project) SpritesAndStage() []*Sprite {
	out := make([]*Sprite, 0, len(p.sprites)+1)
	out = append(out, p.sprites...)
	return append(out, p.stage)
}

func (p *Project) Stage() *Sprite { return p.stage }

func (p *Project) Sprites() []*Sprite { return p.sprites }

// Sprite looks a target up by name, stage included.
func (p *Project) Sprite(name string) *Sprite {
	for _, s := range p.SpritesAndStage() {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func (p *Project) Vars() *vars.Store { return p.vars }

// FireTrigger dispatches an event to every matching script. Any live run
// of a matched trigger is cancelled and replaced, and the new runs join
// the running set in one batch. The returned completion resolves when all
// of the new runs are terminal.
func (p *Project) FireTrigger(kind trigger.Kind, opts trigger.Options) *trigger.Completion {
	_, span := p.tracer.Start(context.Background(), "project.fire_trigger",
		trace.WithAttributes(attribute.String("trigger.kind", kind.String())))
	defer span.End()

	var matching []*trigger.Trigger
	for _, target := range p.SpritesAndStage() {
		for _, tr := range target.Triggers {
			if tr.Descriptor.Matches(kind, opts) {
				matching = append(matching, tr)
			}
		}
	}
	span.SetAttributes(attribute.Int("trigger.matches", len(matching)))
	p.fires.Add(1)

	fired := map[string]interface{}{
		"kind":    kind.String(),
		"matches": len(matching),
	}
	if opts.Key != "" {
		fired["key"] = opts.Key
	}
	if opts.Broadcast != "" {
		fired["broadcast"] = opts.Broadcast
	}
	events.Emit("info", "trigger.fired", "", fired)

	superseded := make(map[*trigger.Instance]bool)
	for _, tr := range matching {
		prev, ok := p.live[tr]
		if !ok {
			continue
		}
		prev.Stop()
		superseded[prev] = true
		delete(p.live, tr)
		p.emitInstance("trigger.cancelled", prev, "superseded")
	}

	fresh := make([]*trigger.Instance, 0, len(matching))
	for _, tr := range matching {
		fresh = append(fresh, trigger.NewInstance(p.ownerName(tr), tr))
	}

	next := make([]*trigger.Instance, 0, len(p.running)+len(fresh))
	for _, inst := range p.running {
		if !superseded[inst] {
			next = append(next, inst)
		}
	}
	p.running = append(next, fresh...)
	for _, inst := range fresh {
		p.live[inst.Trigger] = inst
	}

	if kind == trigger.GreenFlag {
		p.RestartTimer()
		p.StopAllSounds()
	}

	completion := trigger.NewCompletion(fresh)
	for _, inst := range fresh {
		inst.Start(p.removeInstance)
		p.emitInstance("trigger.started", inst, "")
	}

	p.updateCounters()
	return completion
}

// removeInstance is the completion callback handed to every instance.
func (p *Project) removeInstance(inst *trigger.Instance) {
	p.running = without(p.running, inst)
	if p.live[inst.Trigger] == inst {
		delete(p.live, inst.Trigger)
	}
	if err := inst.Err(); err != nil {
		p.emitInstance("trigger.failed", inst, err.Error())
	} else {
		p.emitInstance("trigger.completed", inst, "")
	}
	p.updateCounters()
}

// Step advances every instance that was live when the call began, drops
// the finished ones and refreshes the presentation.
func (p *Project) Step() {
	current := p.running
	for _, inst := range current {
		inst.Step()
	}

	remaining := make([]*trigger.Instance, 0, len(p.running))
	for _, inst := range p.running {
		if inst.Done() {
			if p.live[inst.Trigger] == inst {
				delete(p.live, inst.Trigger)
			}
			continue
		}
		remaining = append(remaining, inst)
	}
	p.running = remaining

	p.frames.Add(1)
	p.updateCounters()

	if p.renderer != nil {
		p.renderer.Update(p.stage, p.sprites)
	}
}

// Run drives the project until ctx is cancelled: one Step per frame from
// the scheduler, with posted work drained in between.
func (p *Project) Run(ctx context.Context) error {
	if p.scheduler == nil {
		ts := NewTickerScheduler(60)
		defer ts.Stop()
		p.scheduler = ts
	}

	events.Emit("info", "project.started", "", map[string]interface{}{
		"project_id": p.ID,
		"sprites":    len(p.sprites),
	})

	p.Step()
	p.StopAllSounds()

	if p.activation != nil {
		p.activation.OnGreenFlag(p.GreenFlag)
	}

	for {
		frame := p.scheduler.NextFrame()
	wait:
		for {
			select {
			case <-ctx.Done():
				events.Emit("info", "project.stopped", "", map[string]interface{}{"project_id": p.ID})
				return ctx.Err()
			case <-p.wake:
				p.RunPending()
			case <-frame:
				p.RunPending()
				p.Step()
				break wait
			}
		}
	}
}

// Post schedules fn on the loop. Safe from any goroutine; never blocks.
func (p *Project) Post(fn func()) {
	p.inboxMu.Lock()
	p.inbox = append(p.inbox, fn)
	p.inboxMu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// RunPending runs posted work, including work posted while draining.
func (p *Project) RunPending() {
	for {
		p.inboxMu.Lock()
		batch := p.inbox
		p.inbox = nil
		p.inboxMu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			fn()
		}
	}
}

// GreenFlag posts a green flag fire.
func (p *Project) GreenFlag() {
	p.Post(func() {
		events.Emit("info", "input.green_flag", "", nil)
		p.FireTrigger(trigger.GreenFlag, trigger.Options{})
	})
}

// PressKey posts a key press fire.
func (p *Project) PressKey(key string) {
	p.Post(func() {
		events.Emit("info", "input.key", "", map[string]interface{}{"key": key})
		p.FireTrigger(trigger.KeyPressed, trigger.Options{Key: key})
	})
}

// Broadcast posts a broadcast fire from outside the project.
func (p *Project) Broadcast(name string) {
	p.Post(func() {
		events.Emit("info", "input.broadcast", "", map[string]interface{}{"broadcast": name})
		p.FireTrigger(trigger.BroadcastReceived, trigger.Options{Broadcast: name})
	})
}

// RestartTimer resets the project timer to zero.
func (p *Project) RestartTimer() {
	p.timerStart = p.clock()
	events.Emit("info", "timer.reset", "", nil)
}

// Now reads the project clock.
func (p *Project) Now() time.Time { return p.clock() }

// Timer returns the seconds elapsed since the last restart.
func (p *Project) Timer() float64 {
	return p.clock().Sub(p.timerStart).Seconds()
}

// Running returns a copy of the running set.
func (p *Project) Running() []*trigger.Instance {
	return append([]*trigger.Instance(nil), p.running...)
}

// Live returns the live instance of tr, if any.
func (p *Project) Live(tr *trigger.Trigger) *trigger.Instance {
	return p.live[tr]
}

// Stats is a point-in-time view of the loop's counters.
type Stats struct {
	Running int
	Sounds  int
	Frames  uint64
	Fires   uint64
}

// Stats is safe to call from any goroutine.
func (p *Project) Stats() Stats {
	return Stats{
		Running: int(p.runningCount.Load()),
		Sounds:  int(p.soundCount.Load()),
		Frames:  p.frames.Load(),
		Fires:   p.fires.Load(),
	}
}

func (p *Project) updateCounters() {
	p.runningCount.Store(int64(len(p.running)))
	p.soundCount.Store(int64(p.sounds.Len()))
}

func (p *Project) ownerName(tr *trigger.Trigger) string {
	if s, ok := p.owners[tr]; ok {
		return s.Name
	}
	return ""
}

func (p *Project) emitInstance(name string, inst *trigger.Instance, msg string) {
	fields := inst.Trigger.Descriptor.Fields()
	fields["instance_id"] = inst.ID
	fields["sprite"] = inst.Owner
	level := "info"
	if name == "trigger.failed" {
		level = "error"
	}
	events.Emit(level, name, msg, fields)
}

func without(list []*trigger.Instance, inst *trigger.Instance) []*trigger.Instance {
	out := make([]*trigger.Instance, 0, len(list))
	for _, candidate := range list {
		if candidate != inst {
			out = append(out, candidate)
		}
	}
	return out
}
