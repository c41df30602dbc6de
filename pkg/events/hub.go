package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/cloudauth/pkg/logger"
	"github.com/dmitrymomot/cloudauth/pkg/session"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 16

// Subscriber receives changes published on a Hub.
type Subscriber interface {
	// Receive returns the delivery channel. It is closed when the
	// subscription ends.
	Receive() <-chan Change

	// Close ends the subscription. It is idempotent.
	Close() error
}

// Hub is an in-memory fan-out of Change values. Safe for concurrent use.
type Hub struct {
	subscribers map[*subscriber]struct{}
	bufferSize  int
	closed      bool
	logger      *slog.Logger
	mu          sync.RWMutex
	cleanupWg   sync.WaitGroup
}

// Option configures a Hub.
type Option func(*Hub)

// WithBufferSize sets the per-subscriber buffer. Values below 1 become 1.
func WithBufferSize(n int) Option {
	return func(h *Hub) { h.bufferSize = max(n, 1) }
}

// WithLogger sets the logger used to report dropped changes.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHub creates an open Hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subscribers: make(map[*subscriber]struct{}),
		bufferSize:  DefaultBufferSize,
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(logger.Component("events"))
	return h
}

// Subscribe registers a new subscriber. It is removed automatically when ctx
// is done. Subscribing to a closed hub returns an already closed subscriber.
func (h *Hub) Subscribe(ctx context.Context) Subscriber {
	sub := &subscriber{
		ch:   make(chan Change, h.bufferSize),
		stop: make(chan struct{}),
		hub:  h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		sub.closeChannel()
		return sub
	}
	h.subscribers[sub] = struct{}{}

	if ctx.Done() != nil {
		h.cleanupWg.Add(1)
		go func() {
			defer h.cleanupWg.Done()
			select {
			case <-ctx.Done():
				_ = sub.Close()
			case <-sub.stop:
			}
		}()
	}
	return sub
}

// On runs fn for every change until ctx is done or the hub closes. It returns
// immediately; fn runs on a dedicated goroutine, one change at a time.
func (h *Hub) On(ctx context.Context, fn func(Change)) {
	sub := h.Subscribe(ctx)
	go func() {
		for ch := range sub.Receive() {
			fn(ch)
		}
	}()
}

// Publish delivers ch to every subscriber without blocking.
func (h *Hub) Publish(ctx context.Context, ch Change) error {
	if len(ch.Sessions) == 0 {
		return nil
	}
	ch.Sessions = session.CloneAll(ch.Sessions)

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrHubClosed
	}
	for sub := range h.subscribers {
		if !sub.send(ch) {
			h.logger.WarnContext(ctx, "subscriber buffer full, change dropped",
				logger.Event(string(ch.Kind)))
		}
	}
	return nil
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close ends every subscription. Further Publish calls fail with ErrHubClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := h.subscribers
	h.subscribers = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for sub := range subs {
		sub.closeChannel()
	}
	h.cleanupWg.Wait()
	return nil
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	h.mu.Unlock()
}

type subscriber struct {
	ch     chan Change
	hub    *Hub
	closed bool
	stop   chan struct{}
	mu     sync.RWMutex
}

func (s *subscriber) Receive() <-chan Change {
	return s.ch
}

func (s *subscriber) Close() error {
	s.hub.remove(s)
	s.closeChannel()
	return nil
}

func (s *subscriber) closeChannel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	close(s.stop)
}

func (s *subscriber) send(ch Change) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- ch:
		return true
	default:
		return false
	}
}
