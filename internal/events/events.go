// Package events relays page, error and profile events from render workers
// to one set of subscribers.
//
// A Hub mints one Channel per worker. Each Channel is a bounded queue whose
// events are forwarded, in emission order, to a single dispatcher goroutine
// that runs the hub's handlers one at a time. Events from different
// channels interleave in no particular order.
package events

import (
	"errors"
	"sync"

	"github.com/conneroisu/pagewright/internal/types"
)

// Kind names an event.
type Kind string

const (
	KindPage    Kind = "page"
	KindError   Kind = "error"
	KindProfile Kind = "profile"
)

// ErrClosed is returned when emitting on a closed channel.
var ErrClosed = errors.New("events: channel closed")

// DefaultBufferSize bounds each channel's queue.
const DefaultBufferSize = 64

// Event is one message from a worker. Which fields are set depends on Kind.
type Event struct {
	Kind Kind
	// Channel is the id of the emitting channel
	Channel int
	// PagePath is the page path the event belongs to
	PagePath string
	// Page is the rendered page of a page event, nil when the page was
	// skipped
	Page *types.RenderedPage
	// Reason is the error text of an error event
	Reason  string
	Profile types.ProfileEvent
}

// Handler receives events on the dispatcher goroutine. Handlers must not
// block on emitting to the hub.
type Handler func(Event)

// Hub multiplexes any number of channels onto one dispatcher.
type Hub struct {
	mutex    sync.RWMutex
	handlers map[Kind][]Handler
	channels map[int]*Channel
	nextID   int
	closed   bool

	bufferSize int
	inbox      chan Event
	forwarders sync.WaitGroup
	done       chan struct{}
	closeOnce  sync.Once
}

// Option configures a Hub.
type Option func(*Hub)

// WithBufferSize sets the per-channel queue size.
func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// NewHub creates a hub and starts its dispatcher.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		handlers:   make(map[Kind][]Handler),
		channels:   make(map[int]*Channel),
		bufferSize: DefaultBufferSize,
		inbox:      make(chan Event),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.dispatch()
	return h
}

// On subscribes handler to events of kind. It returns the hub for chaining.
func (h *Hub) On(kind Kind, handler Handler) *Hub {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.handlers[kind] = append(h.handlers[kind], handler)
	return h
}

// NewChannel mints a channel whose events reach this hub's handlers.
func (h *Hub) NewChannel() (*Channel, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	h.nextID++
	c := &Channel{
		id:    h.nextID,
		hub:   h,
		queue: make(chan Event, h.bufferSize),
	}
	h.channels[c.id] = c
	h.forwarders.Add(1)
	go h.forward(c)
	return c, nil
}

// forward moves one channel's events to the dispatcher in order.
func (h *Hub) forward(c *Channel) {
	defer h.forwarders.Done()
	for ev := range c.queue {
		h.inbox <- ev
	}
}

func (h *Hub) dispatch() {
	defer close(h.done)
	for ev := range h.inbox {
		h.mutex.RLock()
		handlers := h.handlers[ev.Kind]
		h.mutex.RUnlock()
		for _, handler := range handlers {
			handler(ev)
		}
	}
}

// Close closes every channel, delivers the events already queued and
// stops the dispatcher. It is safe to call more than once.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.mutex.Lock()
		h.closed = true
		channels := make([]*Channel, 0, len(h.channels))
		for _, c := range h.channels {
			channels = append(channels, c)
		}
		h.mutex.Unlock()

		for _, c := range channels {
			c.Close()
		}
		h.forwarders.Wait()
		close(h.inbox)
	})
	<-h.done
}

func (h *Hub) release(id int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	delete(h.channels, id)
}

// Channel is one worker's end of the hub.
type Channel struct {
	id    int
	hub   *Hub
	mutex sync.RWMutex
	queue chan Event
	done  bool
}

// ID returns the channel id stamped on its events.
func (c *Channel) ID() int {
	return c.id
}

// Emit queues ev, blocking while the channel is full.
func (c *Channel) Emit(ev Event) error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if c.done {
		return ErrClosed
	}
	ev.Channel = c.id
	c.queue <- ev
	return nil
}

// Page emits a page event. A nil page marks the page as skipped.
func (c *Channel) Page(pagePath string, page *types.RenderedPage) error {
	return c.Emit(Event{Kind: KindPage, PagePath: pagePath, Page: page})
}

// Error emits an error event carrying the failure text.
func (c *Channel) Error(pagePath, reason string) error {
	return c.Emit(Event{Kind: KindError, PagePath: pagePath, Reason: reason})
}

// Profile emits a profile event.
func (c *Channel) Profile(p types.ProfileEvent) error {
	return c.Emit(Event{Kind: KindProfile, PagePath: p.URL, Profile: p})
}

// Close stops the channel. Events already queued are still delivered.
func (c *Channel) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.done {
		return
	}
	c.done = true
	close(c.queue)
	c.hub.release(c.id)
}
