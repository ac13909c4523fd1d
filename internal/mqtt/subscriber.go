package mqtt

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/tidwall/gjson"

	"github.com/AaronLay10/StagePlayer/internal/events"
)

// Input topic suffixes under player/<project_id>/input/.
const (
	TopicKey       = "key"
	TopicGreenFlag = "green_flag"
	TopicBroadcast = "broadcast"
)

// Subscriber is the part of Client the input subscriber needs.
type Subscriber interface {
	Subscribe(topic string, handler paho.MessageHandler) error
}

// InputPrefix returns the topic prefix for a project's remote input.
func InputPrefix(projectID string) string {
	return fmt.Sprintf("player/%s/input/", projectID)
}

// InputSubscriber turns messages on a project's input topics into key
// presses, green flag activations and broadcasts. Callbacks run on the
// MQTT client's goroutine.
type InputSubscriber struct {
	client Subscriber
	prefix string

	mu          sync.RWMutex
	subscribed  map[string]bool
	onKey       func(string)
	onGreenFlag func()
	onBroadcast func(string)
}

// NewInputSubscriber creates a subscriber for projectID's input topics.
func NewInputSubscriber(client Subscriber, projectID string) *InputSubscriber {
	return &InputSubscriber{
		client:     client,
		prefix:     InputPrefix(projectID),
		subscribed: make(map[string]bool),
	}
}

func (s *InputSubscriber) OnKey(fn func(key string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onKey = fn
}

func (s *InputSubscriber) OnGreenFlag(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onGreenFlag = fn
}

func (s *InputSubscriber) OnBroadcast(fn func(name string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onBroadcast = fn
}

// SubscribeAll subscribes to every input topic not yet subscribed.
// Failures are reported as events; the remaining topics are still tried.
func (s *InputSubscriber) SubscribeAll() error {
	var firstErr error
	for _, suffix := range []string{TopicKey, TopicGreenFlag, TopicBroadcast} {
		topic := s.prefix + suffix
		if s.IsSubscribed(topic) {
			continue
		}
		if err := s.client.Subscribe(topic, s.handle); err != nil {
			events.Emit("error", "system.error", "failed to subscribe to input topic", map[string]interface{}{
				"topic": topic,
				"error": err.Error(),
			})
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.mu.Lock()
		s.subscribed[topic] = true
		s.mu.Unlock()
	}
	return firstErr
}

// Resubscribe forgets previous subscriptions and subscribes again.
// Register it with Client.OnConnect.
func (s *InputSubscriber) Resubscribe() {
	s.ClearSubscriptions()
	_ = s.SubscribeAll()
}

func (s *InputSubscriber) handle(_ paho.Client, msg paho.Message) {
	suffix := strings.TrimPrefix(msg.Topic(), s.prefix)

	s.mu.RLock()
	onKey, onGreenFlag, onBroadcast := s.onKey, s.onGreenFlag, s.onBroadcast
	s.mu.RUnlock()

	switch suffix {
	case TopicKey:
		key := payloadField(msg.Payload(), "key")
		if key == "" {
			s.reject(msg, "empty key")
			return
		}
		if onKey != nil {
			onKey(key)
		}
	case TopicGreenFlag:
		if onGreenFlag != nil {
			onGreenFlag()
		}
	case TopicBroadcast:
		name := payloadField(msg.Payload(), "name")
		if name == "" {
			s.reject(msg, "empty broadcast name")
			return
		}
		if onBroadcast != nil {
			onBroadcast(name)
		}
	default:
		s.reject(msg, "unknown input topic")
	}
}

func (s *InputSubscriber) reject(msg paho.Message, reason string) {
	events.Emit("warn", "system.error", reason, map[string]interface{}{
		"topic":   msg.Topic(),
		"payload": string(msg.Payload()),
	})
}

// payloadField reads field from a JSON object payload, falling back to
// the trimmed raw payload.
func payloadField(payload []byte, field string) string {
	if gjson.ValidBytes(payload) {
		r := gjson.ParseBytes(payload)
		switch {
		case r.IsObject():
			if v := r.Get(field); v.Type == gjson.String {
				return strings.TrimSpace(v.Str)
			}
			return ""
		case r.Type == gjson.String:
			return strings.TrimSpace(r.Str)
		}
	}
	return strings.TrimSpace(string(payload))
}

// IsSubscribed returns true if the topic is already subscribed.
func (s *InputSubscriber) IsSubscribed(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribed[topic]
}

// SubscribedTopics returns the subscribed topics in sorted order.
func (s *InputSubscriber) SubscribedTopics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]string, 0, len(s.subscribed))
	for topic := range s.subscribed {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// ClearSubscriptions clears the subscription tracking.
func (s *InputSubscriber) ClearSubscriptions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = make(map[string]bool)
}
