package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AaronLay10/StagePlayer/internal/events"
	"github.com/AaronLay10/StagePlayer/internal/sound"
	"github.com/AaronLay10/StagePlayer/internal/trigger"
)

// stepsBody finishes after n advances and counts the advances it saw.
type stepsBody struct {
	n        int
	advances int
}

func (b *stepsBody) NewTask() trigger.Task {
	left := b.n
	return trigger.TaskFunc(func() (bool, error) {
		b.advances++
		left--
		return left <= 0, nil
	})
}

// foreverBody never finishes.
func foreverBody() trigger.Body {
	return trigger.BodyFunc(func() trigger.Task {
		return trigger.TaskFunc(func() (bool, error) { return false, nil })
	})
}

// mockRenderer counts updates.
type mockRenderer struct {
	mu      sync.Mutex
	updates int
}

func (r *mockRenderer) Update(stage *Sprite, sprites []*Sprite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
}

func (r *mockRenderer) Updates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

// manualScheduler releases frames when the test says so.
type manualScheduler struct {
	ch chan time.Time
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{ch: make(chan time.Time)}
}

func (s *manualScheduler) NextFrame() <-chan time.Time { return s.ch }

func (s *manualScheduler) Tick() { s.ch <- time.Now() }

// fakeHandle is a controllable audio handle.
type fakeHandle struct {
	started func()
	ended   func()
	pauses  int
}

func (h *fakeHandle) Play(started, ended func()) error {
	h.started, h.ended = started, ended
	return nil
}

func (h *fakeHandle) Pause() { h.pauses++ }

type fakeAudio struct {
	handles []*fakeHandle
	err     error
}

func (a *fakeAudio) Open(source string) (sound.Handle, error) {
	if a.err != nil {
		return nil, a.err
	}
	h := &fakeHandle{}
	a.handles = append(a.handles, h)
	return h, nil
}

func liveFor(p *Project, tr *trigger.Trigger) []*trigger.Instance {
	var out []*trigger.Instance
	for _, inst := range p.Running() {
		if inst.Trigger == tr && !inst.Done() {
			out = append(out, inst)
		}
	}
	return out
}

func TestNewSetsBackReferences(t *testing.T) {
	stage := NewStage("")
	cat := NewSprite("cat")
	dog := NewSprite("dog")
	p := New(stage, []*Sprite{cat, dog})

	for _, s := range []*Sprite{stage, cat, dog} {
		if s.Project() != p {
			t.Errorf("%s: back-reference not set", s.Name)
		}
	}

	order := p.SpritesAndStage()
	if len(order) != 3 || order[0] != cat || order[1] != dog || order[2] != stage {
		t.Errorf("expected sprites then stage, got %v", order)
	}
	if p.Sprite("Stage") != stage || p.Sprite("dog") != dog || p.Sprite("bird") != nil {
		t.Error("sprite lookup wrong")
	}
}

func TestFireWithNoMatchesLeavesRunningSet(t *testing.T) {
	stage := NewStage("")
	cat := NewSprite("cat")
	cat.When(trigger.GreenFlagDescriptor(), foreverBody())
	p := New(stage, []*Sprite{cat})

	p.FireTrigger(trigger.GreenFlag, trigger.Options{})
	before := p.Running()

	c := p.FireTrigger(trigger.KeyPressed, trigger.Options{Key: "z"})
	if !c.Resolved() {
		t.Error("completion of an empty batch should resolve at once")
	}
	after := p.Running()
	if len(before) != len(after) || before[0] != after[0] {
		t.Error("running set changed on a fire without matches")
	}
}

func TestGreenFlagOnlyStartsGreenFlagScripts(t *testing.T) {
	stage := NewStage("")
	cat := NewSprite("cat")
	keyTr := cat.When(trigger.KeyPressedDescriptor("a"), foreverBody())
	flagTr := cat.When(trigger.GreenFlagDescriptor(), foreverBody())
	p := New(stage, []*Sprite{cat})

	p.FireTrigger(trigger.GreenFlag, trigger.Options{})

	running := p.Running()
	if len(running) != 1 {
		t.Fatalf("expected 1 running instance, got %d", len(running))
	}
	if running[0].Trigger != flagTr {
		t.Error("wrong trigger started")
	}
	if p.Live(keyTr) != nil {
		t.Error("key trigger must not start on green flag")
	}
}

func TestTwoScriptsStartInOneBatch(t *testing.T) {
	stage := NewStage("")
	cat := NewSprite("cat")
	dog := NewSprite("dog")
	catTr := cat.When(trigger.GreenFlagDescriptor(), foreverBody())
	dogTr := dog.When(trigger.GreenFlagDescriptor(), foreverBody())

	var seen []int
	dogRuns := 0
	// the cat's body records how many instances it can see on its first step
	cat.Triggers[0].Body = trigger.BodyFunc(func() trigger.Task {
		return trigger.TaskFunc(func() (bool, error) {
			seen = append(seen, len(cat.Project().Running()))
			return false, nil
		})
	})
	dog.Triggers[0].Body = trigger.BodyFunc(func() trigger.Task {
		dogRuns++
		return trigger.TaskFunc(func() (bool, error) { return false, nil })
	})

	p := New(stage, []*Sprite{cat, dog})
	p.FireTrigger(trigger.GreenFlag, trigger.Options{})

	running := p.Running()
	if len(running) != 2 {
		t.Fatalf("expected 2 new instances, got %d", len(running))
	}
	if running[0].Trigger != catTr || running[1].Trigger != dogTr {
		t.Error("instances not in scan order")
	}
	if dogRuns != 1 {
		t.Errorf("expected dog body started once, got %d", dogRuns)
	}

	p.Step()
	if len(seen) != 1 || seen[0] != 2 {
		t.Errorf("cat should observe both instances, saw %v", seen)
	}
}

func TestRefireSupersedesLiveInstance(t *testing.T) {
	stage := NewStage("")
	cat := NewSprite("cat")
	tr := cat.When(trigger.KeyPressedDescriptor("x"), foreverBody())
	p := New(stage, []*Sprite{cat})

	p.FireTrigger(trigger.KeyPressed, trigger.Options{Key: "x"})
	first := p.Live(tr)
	if first == nil {
		t.Fatal("expected a live instance")
	}

	// second fire before the first ever stepped
	p.FireTrigger(trigger.KeyPressed, trigger.Options{Key: "x"})
	second := p.Live(tr)

	if second == first {
		t.Fatal("expected a fresh instance")
	}
	if first.State() != trigger.StateCancelled {
		t.Errorf("expected first instance cancelled, got %s", first.State())
	}
	if second.State() != trigger.StateRunning {
		t.Errorf("expected second instance running, got %s", second.State())
	}
	if live := liveFor(p, tr); len(live) != 1 || live[0] != second {
		t.Errorf("expected exactly one live instance, got %d", len(live))
	}
	for _, inst := range p.Running() {
		if inst == first {
			t.Error("superseded instance still in the running set")
		}
	}
}

func TestStepSnapshotSkipsInstancesStartedMidStep(t *testing.T) {
	stage := NewStage("")
	cat := NewSprite("cat")
	receiver := &stepsBody{n: 100}
	cat.When(trigger.BroadcastDescriptor("go"), receiver)

	var p *Project
	sender := trigger.BodyFunc(func() trigger.Task {
		return trigger.TaskFunc(func() (bool, error) {
			p.FireTrigger(trigger.BroadcastReceived, trigger.Options{Broadcast: "go"})
			return true, nil
		})
	})
	cat.When(trigger.GreenFlagDescriptor(), sender)
	p = New(stage, []*Sprite{cat})

	p.FireTrigger(trigger.GreenFlag, trigger.Options{})
	p.Step()

	if receiver.advances != 0 {
		t.Errorf("instance started mid-step was stepped in the same frame (%d)", receiver.advances)
	}
	if len(p.Running()) != 1 {
		t.Errorf("expected only the receiver running, got %d", len(p.Running()))
	}

	p.Step()
	if receiver.advances != 1 {
		t.Errorf("expected receiver stepped on next frame, got %d", receiver.advances)
	}
}

func TestFinishedInstancesLeaveRunningSet(t *testing.T) {
	stage := NewStage("")
	cat := NewSprite("cat")
	body := &stepsBody{n: 2}
	cat.When(trigger.GreenFlagDescriptor(), body)
	renderer := &mockRenderer{}
	p := New(stage, []*Sprite{cat}, WithRenderer(renderer))

	c := p.FireTrigger(trigger.GreenFlag, trigger.Options{})
	p.Step()
	if c.Resolved() {
		t.Fatal("resolved before the body finished")
	}
	p.Step()

	if !c.Resolved() {
		t.Error("expected completion after the body finished")
	}
	if len(p.Running()) != 0 {
		t.Errorf("expected empty running set, got %d", len(p.Running()))
	}
	if renderer.Updates() != 2 {
		t.Errorf("expected 2 renderer updates, got %d", renderer.Updates())
	}
	if got := p.Stats(); got.Running != 0 || got.Frames != 2 || got.Fires != 1 {
		t.Errorf("unexpected stats: %+v", got)
	}
}

func TestFailedBodyIsReported(t *testing.T) {
	events.Clear()
	stage := NewStage("")
	stage.When(trigger.GreenFlagDescriptor(), trigger.BodyFunc(func() trigger.Task {
		return trigger.TaskFunc(func() (bool, error) { return false, errors.New("bad block") })
	}))
	p := New(stage, nil)

	p.FireTrigger(trigger.GreenFlag, trigger.Options{})
	p.Step()

	if len(p.Running()) != 0 {
		t.Error("failed instance should leave the running set")
	}
	found := false
	for _, e := range events.Snapshot() {
		if e.Name == "trigger.failed" && e.Fields["sprite"] == "Stage" {
			found = true
		}
	}
	if !found {
		t.Error("expected trigger.failed event")
	}
}

func TestGreenFlagRestartsTimerAndStopsSounds(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	audio := &fakeAudio{}
	stage := NewStage("")
	p := New(stage, nil, WithClock(clock), WithAudio(audio))

	now = now.Add(5 * time.Second)
	if p.Timer() != 5 {
		t.Fatalf("expected timer 5, got %v", p.Timer())
	}

	entry, err := p.PlaySound("pop.wav")
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	audio.handles[0].started()
	p.RunPending()

	p.FireTrigger(trigger.GreenFlag, trigger.Options{})

	if p.Timer() != 0 {
		t.Errorf("expected timer reset, got %v", p.Timer())
	}
	if p.Sounds().Contains(entry) {
		t.Error("green flag should stop all sounds")
	}
	if audio.handles[0].pauses != 1 {
		t.Errorf("expected one pause, got %d", audio.handles[0].pauses)
	}
}

func TestPlaySoundThenStopAllBeforeStart(t *testing.T) {
	audio := &fakeAudio{}
	p := New(NewStage(""), nil, WithAudio(audio))

	entry, err := p.PlaySound("pop.wav")
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	p.StopAllSounds()

	if p.Sounds().Contains(entry) {
		t.Fatal("entry must be removed immediately")
	}
	if audio.handles[0].pauses != 0 {
		t.Fatal("pause applied before start")
	}

	// a fresh sound right after StopAll is untouched
	fresh, _ := p.PlaySound("ding.wav")

	audio.handles[0].started()
	audio.handles[1].started()
	p.RunPending()

	if audio.handles[0].pauses != 1 {
		t.Errorf("expected deferred pause once started, got %d", audio.handles[0].pauses)
	}
	if audio.handles[1].pauses != 0 || !p.Sounds().Contains(fresh) {
		t.Error("fresh sound was stopped by an earlier StopAll")
	}
}

func TestPlaySoundErrors(t *testing.T) {
	p := New(NewStage(""), nil)
	if _, err := p.PlaySound("a.wav"); !errors.Is(err, ErrNoAudio) {
		t.Errorf("expected ErrNoAudio, got %v", err)
	}

	cat := NewSprite("cat")
	p = New(NewStage(""), []*Sprite{cat}, WithAudio(&fakeAudio{}))
	if _, err := p.PlaySpriteSound(cat, "meow"); !errors.Is(err, ErrUnknownSound) {
		t.Errorf("expected ErrUnknownSound, got %v", err)
	}

	p = New(NewStage(""), nil, WithAudio(&fakeAudio{err: errors.New("decode")}))
	if _, err := p.PlaySound("a.wav"); err == nil {
		t.Error("expected open error")
	}
}

// mockInput records the registered callbacks.
type mockInput struct {
	onKey  func(string)
	onFlag func()
}

func (m *mockInput) OnKey(fn func(string)) { m.onKey = fn }
func (m *mockInput) OnGreenFlag(fn func()) { m.onFlag = fn }

func TestRunStepsFramesAndHandlesInput(t *testing.T) {
	stage := NewStage("")
	cat := NewSprite("cat")
	flagTr := cat.When(trigger.GreenFlagDescriptor(), foreverBody())
	keyTr := cat.When(trigger.KeyPressedDescriptor("space"), foreverBody())

	sched := newManualScheduler()
	renderer := &mockRenderer{}
	input := &mockInput{}
	p := New(stage, []*Sprite{cat},
		WithScheduler(sched), WithRenderer(renderer),
		WithInput(input), WithActivation(input))

	if input.onKey == nil {
		t.Fatal("input callback should be registered at construction")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// the loop registers the activation source before waiting on its
	// first frame, so once this tick is received onFlag is set
	sched.Tick()
	if input.onFlag == nil {
		t.Fatal("activation callback should be registered by Run")
	}

	input.onFlag()
	input.onKey("space")
	sched.Tick()
	sched.Tick()

	// inspect state on the loop itself
	result := make(chan [2]bool, 1)
	p.Post(func() {
		result <- [2]bool{p.Live(flagTr) != nil, p.Live(keyTr) != nil}
	})
	sched.Tick()
	got := <-result
	if !got[0] || !got[1] {
		t.Errorf("expected both scripts live, got flag=%v key=%v", got[0], got[1])
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if renderer.Updates() < 3 {
		t.Errorf("expected several frames rendered, got %d", renderer.Updates())
	}
}

func TestSpriteMotion(t *testing.T) {
	s := NewSprite("cat")
	s.Move(10)
	if s.X < 9.999 || s.X > 10.001 || s.Y > 0.001 || s.Y < -0.001 {
		t.Errorf("expected move right, got (%v, %v)", s.X, s.Y)
	}
	s.Turn(-90)
	s.Move(5)
	if s.Y < 4.999 || s.Y > 5.001 {
		t.Errorf("expected move up, got y=%v", s.Y)
	}
	s.Turn(300)
	if s.Direction != -150 {
		t.Errorf("expected direction -150, got %v", s.Direction)
	}
	s.GoTo(1, 2)
	if s.X != 1 || s.Y != 2 {
		t.Error("GoTo did not move the sprite")
	}
}
