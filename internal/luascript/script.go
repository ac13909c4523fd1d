// Package luascript runs sprite scripts written in Lua.
//
// A script file is executed once at load time. Its top-level calls to
// when_green_flag, when_key_pressed and when_broadcast attach triggers to the
// sprite. Each run of a handler is a coroutine that the engine resumes once
// per frame; host functions such as wait or broadcast_and_wait yield it.
package luascript

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/AaronLay10/StagePlayer/internal/engine"
	"github.com/AaronLay10/StagePlayer/internal/trigger"
)

// Script is one sprite's Lua state.
type Script struct {
	Sprite *engine.Sprite

	L     *lua.LState
	tasks map[*lua.LState]*task
}

func newScript(sprite *engine.Sprite) *Script {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	s := &Script{
		Sprite: sprite,
		L:      L,
		tasks:  make(map[*lua.LState]*task),
	}
	s.registerHats()
	s.registerAPI()
	return s
}

// Load runs the file at path for sprite. The sprite must not be attached
// to a project yet.
func Load(sprite *engine.Sprite, path string) (*Script, error) {
	s := newScript(sprite)
	if err := s.L.DoFile(path); err != nil {
		s.Close()
		return nil, fmt.Errorf("load script %s: %w", path, err)
	}
	return s, nil
}

// LoadString is Load for in-memory source.
func LoadString(sprite *engine.Sprite, src string) (*Script, error) {
	s := newScript(sprite)
	if err := s.L.DoString(src); err != nil {
		s.Close()
		return nil, fmt.Errorf("load script for %s: %w", sprite.Name, err)
	}
	return s, nil
}

// Close releases the Lua state. Running tasks must be stopped first.
func (s *Script) Close() {
	s.L.Close()
}

// Tasks returns the number of coroutines currently held.
func (s *Script) Tasks() int { return len(s.tasks) }

func (s *Script) registerHats() {
	s.L.Register("when_green_flag", func(l *lua.LState) int {
		s.attach(trigger.GreenFlagDescriptor(), l.CheckFunction(1))
		return 0
	})
	s.L.Register("when_key_pressed", func(l *lua.LState) int {
		s.attach(trigger.KeyPressedDescriptor(l.CheckString(1)), l.CheckFunction(2))
		return 0
	})
	s.L.Register("when_broadcast", func(l *lua.LState) int {
		s.attach(trigger.BroadcastDescriptor(l.CheckString(1)), l.CheckFunction(2))
		return 0
	})
}

func (s *Script) attach(d trigger.Descriptor, fn *lua.LFunction) {
	s.Sprite.When(d, &body{script: s, fn: fn})
}

// body starts a new coroutine of fn for every run.
type body struct {
	script *Script
	fn     *lua.LFunction
}

func (b *body) NewTask() trigger.Task {
	co, _ := b.script.L.NewThread()
	t := &task{script: b.script, fn: b.fn, co: co}
	b.script.tasks[co] = t
	return t
}

// task is one run of a handler.
type task struct {
	script *Script
	fn     *lua.LFunction
	co     *lua.LState

	// waitUntil gates the next resume; nil resumes on the next frame.
	waitUntil func() bool
	finished  bool
}

func (t *task) Advance() (bool, error) {
	if t.finished {
		return true, nil
	}
	if t.waitUntil != nil {
		if !t.waitUntil() {
			return false, nil
		}
		t.waitUntil = nil
	}

	st, err, _ := t.script.L.Resume(t.co, t.fn)
	switch st {
	case lua.ResumeYield:
		return false, nil
	case lua.ResumeError:
		t.release()
		return true, fmt.Errorf("%s: %w", t.script.Sprite.Name, err)
	default:
		t.release()
		return true, nil
	}
}

// Cancel drops the coroutine without resuming it again.
func (t *task) Cancel() {
	t.release()
}

func (t *task) release() {
	t.finished = true
	t.waitUntil = nil
	delete(t.script.tasks, t.co)
}
