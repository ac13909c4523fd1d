// Package vars holds project-wide variables. The engine passes the store
// through to script bodies untouched.
package vars

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Store is a concurrency-safe key-value store.
type Store struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

// New creates a store seeded with initial values.
func New(initial map[string]interface{}) *Store {
	s := &Store{values: make(map[string]interface{}, len(initial))}
	for k, v := range initial {
		s.values[k] = v
	}
	return s
}

func (s *Store) Get(name string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

func (s *Store) Set(name string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// Change adds delta to a numeric variable. Missing or non-numeric values
// count as zero.
func (s *Store) Change(name string, delta float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := ToNumber(s.values[name]) + delta
	s.values[name] = next
	return next
}

// Names returns the variable names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of all variables.
func (s *Store) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// ToNumber converts a stored value the way Scratch-like blocks do:
// numbers pass through, numeric strings parse, everything else is 0.
func ToNumber(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// ToString renders a stored value for display.
func ToString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
