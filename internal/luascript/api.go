package luascript

import (
	"errors"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/AaronLay10/StagePlayer/internal/engine"
	"github.com/AaronLay10/StagePlayer/internal/sound"
	"github.com/AaronLay10/StagePlayer/internal/trigger"
	"github.com/AaronLay10/StagePlayer/internal/vars"
)

func (s *Script) registerAPI() {
	L := s.L

	// suspension
	L.Register("wait", func(l *lua.LState) int {
		t := s.taskFor(l, "wait")
		p := s.project(l)
		until := p.Now().Add(time.Duration(float64(l.CheckNumber(1)) * float64(time.Second)))
		t.waitUntil = func() bool { return !p.Now().Before(until) }
		return l.Yield()
	})
	L.Register("yield", func(l *lua.LState) int {
		s.taskFor(l, "yield")
		return l.Yield()
	})

	// events
	L.Register("broadcast", func(l *lua.LState) int {
		s.project(l).FireTrigger(trigger.BroadcastReceived, trigger.Options{Broadcast: l.CheckString(1)})
		return 0
	})
	L.Register("broadcast_and_wait", func(l *lua.LState) int {
		t := s.taskFor(l, "broadcast_and_wait")
		c := s.project(l).FireTrigger(trigger.BroadcastReceived, trigger.Options{Broadcast: l.CheckString(1)})
		t.waitUntil = c.Resolved
		return l.Yield()
	})
	L.Register("timer", func(l *lua.LState) int {
		l.Push(lua.LNumber(s.project(l).Timer()))
		return 1
	})
	L.Register("reset_timer", func(l *lua.LState) int {
		s.project(l).RestartTimer()
		return 0
	})

	// sound
	L.Register("start_sound", func(l *lua.LState) int {
		s.playSound(l, l.CheckString(1))
		return 0
	})
	L.Register("play_sound_until_done", func(l *lua.LState) int {
		t := s.taskFor(l, "play_sound_until_done")
		entry := s.playSound(l, l.CheckString(1))
		if entry == nil {
			return 0
		}
		done := entry.Done()
		t.waitUntil = func() bool {
			select {
			case <-done:
				return true
			default:
				return false
			}
		}
		return l.Yield()
	})
	L.Register("stop_all_sounds", func(l *lua.LState) int {
		s.project(l).StopAllSounds()
		return 0
	})

	// motion and looks
	L.Register("move", func(l *lua.LState) int {
		s.Sprite.Move(float64(l.CheckNumber(1)))
		return 0
	})
	L.Register("turn", func(l *lua.LState) int {
		s.Sprite.Turn(float64(l.CheckNumber(1)))
		return 0
	})
	L.Register("go_to", func(l *lua.LState) int {
		s.Sprite.GoTo(float64(l.CheckNumber(1)), float64(l.CheckNumber(2)))
		return 0
	})
	L.Register("x", func(l *lua.LState) int {
		l.Push(lua.LNumber(s.Sprite.X))
		return 1
	})
	L.Register("y", func(l *lua.LState) int {
		l.Push(lua.LNumber(s.Sprite.Y))
		return 1
	})
	L.Register("direction", func(l *lua.LState) int {
		l.Push(lua.LNumber(s.Sprite.Direction))
		return 1
	})
	L.Register("say", func(l *lua.LState) int {
		s.Sprite.Saying = l.OptString(1, "")
		return 0
	})
	L.Register("show", func(l *lua.LState) int {
		s.Sprite.Visible = true
		return 0
	})
	L.Register("hide", func(l *lua.LState) int {
		s.Sprite.Visible = false
		return 0
	})
	L.Register("switch_costume", func(l *lua.LState) int {
		s.Sprite.Costume = l.CheckString(1)
		return 0
	})

	// variables
	L.Register("get_var", func(l *lua.LState) int {
		v, _ := s.project(l).Vars().Get(l.CheckString(1))
		l.Push(toLValue(v))
		return 1
	})
	L.Register("set_var", func(l *lua.LState) int {
		s.project(l).Vars().Set(l.CheckString(1), fromLValue(l.Get(2)))
		return 0
	})
	L.Register("change_var", func(l *lua.LState) int {
		n := s.project(l).Vars().Change(l.CheckString(1), float64(l.CheckNumber(2)))
		l.Push(lua.LNumber(n))
		return 1
	})
}

// taskFor returns the run l belongs to. Yielding calls are only valid
// inside a handler.
func (s *Script) taskFor(l *lua.LState, fn string) *task {
	t, ok := s.tasks[l]
	if !ok {
		l.RaiseError("%s can only be called from inside a handler", fn)
	}
	return t
}

func (s *Script) project(l *lua.LState) *engine.Project {
	p := s.Sprite.Project()
	if p == nil {
		l.RaiseError("%s is not part of a running project", s.Sprite.Name)
	}
	return p
}

// playSound starts a sound from the sprite's table. Without an audio
// device it does nothing and returns nil.
func (s *Script) playSound(l *lua.LState, name string) *sound.Entry {
	entry, err := s.project(l).PlaySpriteSound(s.Sprite, name)
	switch {
	case err == nil:
		return entry
	case errors.Is(err, engine.ErrNoAudio):
		return nil
	default:
		l.RaiseError("%v", err)
		return nil
	}
}

func toLValue(v interface{}) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case float64, float32, int, int64, int32, uint, uint64, uint32:
		return lua.LNumber(vars.ToNumber(val))
	default:
		return lua.LString(vars.ToString(val))
	}
}

func fromLValue(v lua.LValue) interface{} {
	switch val := v.(type) {
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case lua.LBool:
		return bool(val)
	default:
		if v == lua.LNil {
			return nil
		}
		return v.String()
	}
}
