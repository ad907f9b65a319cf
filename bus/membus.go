package bus

import (
	"slices"
	"sync"
	"sync/atomic"
)

// MemBusConfig configures an in-memory event bus.
type MemBusConfig struct {
	// SubscriberBufferSize is the channel buffer size per subscriber (default: 256).
	SubscriberBufferSize int
}

// MemBus is an in-memory event bus. Publish never blocks: a subscriber whose
// buffer is full misses the event and the drop is counted.
type MemBus struct {
	mu         sync.RWMutex
	subs       map[string][]*memSub // tool -> subscribers
	globalSubs []*memSub
	bufSize    int
	closed     bool
	dropped    atomic.Int64
}

// NewMemBus creates a new in-memory event bus with the given configuration.
func NewMemBus(config MemBusConfig) *MemBus {
	bufSize := config.SubscriberBufferSize
	if bufSize <= 0 {
		bufSize = 256
	}
	return &MemBus{
		subs:    make(map[string][]*memSub),
		bufSize: bufSize,
	}
}

// Publish sends an event to the subscribers of its tool and to every global
// subscriber. Events published after Close are discarded.
func (b *MemBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs[event.Tool] {
		b.deliver(sub, event)
	}
	for _, sub := range b.globalSubs {
		b.deliver(sub, event)
	}
}

func (b *MemBus) deliver(sub *memSub, event Event) {
	if !sub.send(event) {
		b.dropped.Add(1)
	}
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (b *MemBus) Dropped() int64 {
	return b.dropped.Load()
}

// Subscribe registers a subscriber for events of one tool.
func (b *MemBus) Subscribe(tool string) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newMemSub(b, tool, false, b.bufSize)
	if b.closed {
		sub.close()
		return sub
	}
	b.subs[tool] = append(b.subs[tool], sub)
	return sub
}

// SubscribeAll registers a subscriber that receives every event.
func (b *MemBus) SubscribeAll() Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newMemSub(b, "", true, b.bufSize)
	if b.closed {
		sub.close()
		return sub
	}
	b.globalSubs = append(b.globalSubs, sub)
	return sub
}

// Close shuts down the bus and closes every subscription channel.
func (b *MemBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.close()
		}
	}
	for _, sub := range b.globalSubs {
		sub.close()
	}
	b.subs = map[string][]*memSub{}
	b.globalSubs = nil
	return nil
}

// detach removes sub from the bus so it stops receiving events.
func (b *MemBus) detach(sub *memSub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.global {
		b.globalSubs = slices.DeleteFunc(b.globalSubs, func(s *memSub) bool { return s == sub })
		return
	}
	remaining := slices.DeleteFunc(b.subs[sub.tool], func(s *memSub) bool { return s == sub })
	if len(remaining) == 0 {
		delete(b.subs, sub.tool)
		return
	}
	b.subs[sub.tool] = remaining
}

type memSub struct {
	bus    *MemBus
	tool   string
	global bool

	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func newMemSub(bus *MemBus, tool string, global bool, bufSize int) *memSub {
	return &memSub{
		bus:    bus,
		tool:   tool,
		global: global,
		ch:     make(chan Event, bufSize),
	}
}

// Events returns a channel of events for this subscription.
func (s *memSub) Events() <-chan Event {
	return s.ch
}

// Close detaches the subscription from its bus and closes the channel.
func (s *memSub) Close() error {
	s.bus.detach(s)
	s.close()
	return nil
}

func (s *memSub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// send reports false when the event could not be buffered.
func (s *memSub) send(event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}
	select {
	case s.ch <- event:
		return true
	default:
		return false
	}
}

var (
	_ EventBus     = (*MemBus)(nil)
	_ Subscription = (*memSub)(nil)
)
