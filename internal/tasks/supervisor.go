package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/observability"
	"github.com/desertthunder/nowplaying/internal/shared"
	"github.com/google/uuid"
)

// Subscription is one client's live feed.
//
// Events is closed once the poller stops, either because Cancel was called,
// the parent context ended, or the initial token load failed.
type Subscription struct {
	ID         uuid.UUID
	Subscriber string
	Events     <-chan models.PlaybackEvent
	Cancel     context.CancelFunc
}

// Supervisor spawns one [Poller] run per subscription and tracks them until they exit.
type Supervisor struct {
	poller *Poller
	buffer int
	logger *log.Logger

	mu     sync.Mutex
	active map[uuid.UUID]*Subscription
	closed bool
	wg     sync.WaitGroup
}

// NewSupervisor creates a Supervisor whose event channels hold up to buffer events.
func NewSupervisor(poller *Poller, buffer int, logger *log.Logger) *Supervisor {
	if buffer <= 0 {
		buffer = 32
	}
	return &Supervisor{
		poller: poller,
		buffer: buffer,
		logger: logger,
		active: make(map[uuid.UUID]*Subscription),
	}
}

// Subscribe starts a poller for subscriber bound to ctx.
//
// The caller must drain Events or call Cancel; either way the poller exits and Events is closed.
func (s *Supervisor) Subscribe(ctx context.Context, subscriber string) (*Subscription, error) {
	if subscriber == "" {
		return nil, fmt.Errorf("%w: subscriber", shared.ErrMissingArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, shared.ErrShuttingDown
	}

	subCtx, cancel := context.WithCancel(ctx)
	events := make(chan models.PlaybackEvent, s.buffer)
	sub := &Subscription{
		ID:         uuid.New(),
		Subscriber: subscriber,
		Events:     events,
		Cancel:     cancel,
	}

	s.active[sub.ID] = sub
	s.wg.Add(1)
	observability.ActiveSubscriptions.Inc()

	logger := shared.WithLogger(s.logger, "subscription", sub.ID, "subscriber", subscriber)
	logger.Info("subscription started")

	go func() {
		defer s.wg.Done()
		defer s.remove(sub.ID)
		defer cancel()

		s.poller.Run(subCtx, subscriber, events)
		logger.Info("subscription ended")
	}()

	return sub, nil
}

func (s *Supervisor) remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[id]; ok {
		delete(s.active, id)
		observability.ActiveSubscriptions.Dec()
	}
}

// Active returns the number of running pollers.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Shutdown stops accepting subscriptions, cancels every running poller and waits for them to exit or ctx to end.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, sub := range s.active {
		sub.Cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pollers still running: %w", ctx.Err())
	}
}
