package trigger

import "fmt"

// Kind identifies the event a script waits for.
type Kind int

const (
	GreenFlag Kind = iota + 1
	KeyPressed
	BroadcastReceived
)

// AnyKey on a KeyPressed descriptor matches every key.
const AnyKey = "any"

var kindNames = map[Kind]string{
	GreenFlag:         "green_flag",
	KeyPressed:        "key_pressed",
	BroadcastReceived: "broadcast_received",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown trigger kind: %s", name)
}

// Options carries the kind-dependent data of a fired event.
type Options struct {
	Key       string
	Broadcast string
}

// Descriptor describes which fired event a script responds to.
// It is a plain comparable value and never changes once attached.
type Descriptor struct {
	Kind      Kind
	Key       string
	Broadcast string
}

// matchers holds the data comparison for kinds that carry match data.
// Kinds absent from the table match on kind alone.
var matchers = map[Kind]func(d Descriptor, opts Options) bool{
	KeyPressed: func(d Descriptor, opts Options) bool {
		return d.Key == AnyKey || d.Key == opts.Key
	},
	BroadcastReceived: func(d Descriptor, opts Options) bool {
		return d.Broadcast == opts.Broadcast
	},
}

// Matches reports whether a fired kind/options pair selects this descriptor.
func (d Descriptor) Matches(kind Kind, opts Options) bool {
	if d.Kind != kind {
		return false
	}
	if match, ok := matchers[kind]; ok {
		return match(d, opts)
	}
	return true
}

// Fields returns the descriptor as event fields.
func (d Descriptor) Fields() map[string]interface{} {
	fields := map[string]interface{}{"kind": d.Kind.String()}
	switch d.Kind {
	case KeyPressed:
		fields["key"] = d.Key
	case BroadcastReceived:
		fields["broadcast"] = d.Broadcast
	}
	return fields
}

func GreenFlagDescriptor() Descriptor {
	return Descriptor{Kind: GreenFlag}
}

func KeyPressedDescriptor(key string) Descriptor {
	return Descriptor{Kind: KeyPressed, Key: key}
}

func BroadcastDescriptor(name string) Descriptor {
	return Descriptor{Kind: BroadcastReceived, Broadcast: name}
}
