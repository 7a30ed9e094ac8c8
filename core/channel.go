package core

import (
	"fmt"
	"strings"
	"sync"
)

// ChannelCount is the number of predefined channels.
const ChannelCount = 16

// Priority of a channel. Smaller is more urgent.
type Priority int

const (
	PrioritySystem Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

// String returns the string representation of Priority.
func (p Priority) String() string {
	switch p {
	case PrioritySystem:
		return "system"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Reliability is the delivery guarantee of a channel.
type Reliability int

const (
	Unreliable Reliability = iota
	UnreliableSequenced
	Reliable
	ReliableOrdered
	ReliableSequenced
)

var reliabilityNames = map[Reliability]string{
	Unreliable:          "unreliable",
	UnreliableSequenced: "unreliable_sequenced",
	Reliable:            "reliable",
	ReliableOrdered:     "reliable_ordered",
	ReliableSequenced:   "reliable_sequenced",
}

// String returns the string representation of Reliability.
func (r Reliability) String() string {
	if name, ok := reliabilityNames[r]; ok {
		return name
	}
	return "unknown"
}

// IsValid checks if the reliability is one of the defined values.
func (r Reliability) IsValid() bool {
	_, ok := reliabilityNames[r]
	return ok
}

// ParseReliability parses names such as "reliable_ordered" or
// "RELIABLE-ORDERED".
func ParseReliability(s string) (Reliability, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for r, name := range reliabilityNames {
		if name == key {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidReliability, s)
}

// ChannelProperty is the transport policy of one channel.
type ChannelProperty struct {
	Priority    Priority
	Reliability Reliability
}

// defaultChannels is the documented default mapping. Unlisted channels use
// medium/reliable-ordered.
var defaultChannels = map[int]ChannelProperty{
	0:  {PriorityMedium, ReliableOrdered},     // system messages
	1:  {PriorityMedium, UnreliableSequenced}, // position updates
	2:  {PriorityMedium, ReliableOrdered},     // bulk object transfer
	4:  {PriorityMedium, ReliableOrdered},     // chat
	14: {PriorityMedium, Reliable},            // file transfer and advertisement
	15: {PriorityMedium, ReliableSequenced},   // voice
}

// DefaultChannelProperty returns the default property of channel id.
func DefaultChannelProperty(id int) ChannelProperty {
	if p, ok := defaultChannels[id]; ok {
		return p
	}
	return ChannelProperty{PriorityMedium, ReliableOrdered}
}

// ChannelTable holds the properties of the 16 channels.
type ChannelTable struct {
	mu    sync.RWMutex
	slots [ChannelCount]ChannelProperty
}

// NewChannelTable creates a table holding the default mapping.
func NewChannelTable() *ChannelTable {
	t := &ChannelTable{}
	t.Reset()
	return t
}

// Reset restores the default mapping for all channels.
func (t *ChannelTable) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id := range t.slots {
		t.slots[id] = DefaultChannelProperty(id)
	}
}

// Set changes the property of channel id.
func (t *ChannelTable) Set(id int, priority Priority, reliability Reliability) error {
	if err := checkChannel(id); err != nil {
		return err
	}
	if !reliability.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidReliability, int(reliability))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.slots[id] = ChannelProperty{Priority: priority, Reliability: reliability}
	return nil
}

// Get returns the property of channel id.
func (t *ChannelTable) Get(id int) (ChannelProperty, error) {
	if err := checkChannel(id); err != nil {
		return ChannelProperty{}, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.slots[id], nil
}

// Snapshot returns a copy of all slots.
func (t *ChannelTable) Snapshot() [ChannelCount]ChannelProperty {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.slots
}

func checkChannel(id int) error {
	if id < 0 || id >= ChannelCount {
		return fmt.Errorf("%w: %d", ErrChannelOutOfRange, id)
	}
	return nil
}
