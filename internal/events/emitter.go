package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

var buffer = NewRingBuffer(256)

// Store persists events. *postgres.Client satisfies it.
type Store interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error
}

var (
	store         Store
	storeQueue    chan Event
	storeMu       sync.RWMutex
	storeErrorLog bool
	sessionID     string
)

// storeQueueSize bounds the events waiting for persistence. When the store
// falls behind, newer events are dropped from persistence only.
const storeQueueSize = 1024

// SetStore sets the store used for event persistence and starts the writer.
// Emit never waits on the store: the frame loop emits events too.
func SetStore(s Store, session string) {
	storeMu.Lock()
	defer storeMu.Unlock()

	if storeQueue != nil {
		close(storeQueue)
		storeQueue = nil
	}
	store = s
	sessionID = session
	storeErrorLog = false
	if s == nil {
		return
	}
	storeQueue = make(chan Event, storeQueueSize)
	go persist(s, storeQueue, session)
}

func persist(s Store, queue <-chan Event, session string) {
	for e := range queue {
		ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err != nil {
			ts = time.Now().UTC()
		}
		if err := s.Append(ts, e.Level, e.Name, e.Message, e.Fields, session); err != nil {
			// Log error once to avoid spam.
			// Add directly to the buffer, NOT Emit(), so a failing store
			// cannot feed itself.
			storeMu.Lock()
			logged := storeErrorLog
			storeErrorLog = true
			storeMu.Unlock()
			if !logged {
				errEvent := Event{
					Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
					Level:     "error",
					Name:      "system.error",
					Message:   "event store append failed",
					Fields: map[string]interface{}{
						"error": err.Error(),
					},
				}
				buffer.Add(errEvent)
				broadcast(errEvent)
			}
		}
	}
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	buffer.Add(e)
	broadcast(e)

	storeMu.RLock()
	if storeQueue != nil {
		select {
		case storeQueue <- e:
		default:
		}
	}
	storeMu.RUnlock()

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return b, nil
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// TotalCount returns the number of events emitted since startup.
func TotalCount() uint64 {
	return buffer.Total()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}
