package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/observability"
	"github.com/desertthunder/nowplaying/internal/services"
	"github.com/desertthunder/nowplaying/internal/shared"
)

// Poller state enumeration
type State int

const (
	Bootstrapping State = iota
	Polling
	Refreshing
	Stopped
)

func (s State) String() string {
	switch s {
	case Bootstrapping:
		return "bootstrapping"
	case Polling:
		return "polling"
	case Refreshing:
		return "refreshing"
	case Stopped:
		return "stopped"
	default:
		return ""
	}
}

// Poller keeps one subscriber's access token fresh and turns upstream player state into [models.PlaybackEvent]s.
//
// A Poller holds no per-subscriber state between runs, so one instance serves every subscription.
type Poller struct {
	upstream services.PlaybackService
	store    models.TokenStore
	cfg      shared.PollerConfig
	logger   *log.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewPoller creates a Poller backed by upstream and store.
func NewPoller(upstream services.PlaybackService, store models.TokenStore, cfg shared.PollerConfig, logger *log.Logger) *Poller {
	return &Poller{
		upstream: upstream,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		after:    time.After,
	}
}

// NextDelay computes the wait before the next poll after a successful snapshot.
//
// When the track ends before maxDelay the poller wakes just after it ends, otherwise it waits maxDelay.
func NextDelay(song models.SongResponse, maxDelay, endSlack time.Duration) time.Duration {
	remaining := song.TotalMS - song.ProgressMS
	if remaining >= float64(maxDelay.Milliseconds()) {
		return maxDelay
	}

	delay := time.Duration(remaining*float64(time.Millisecond)) + endSlack
	if delay < 0 {
		return 0
	}
	return delay
}

// Run drives the poll loop for subscriber until ctx is cancelled, sending events to out.
//
// A failed initial load emits a single error event and returns.
// Every other failure is reported as an error event and the loop continues.
// out is closed when Run returns.
func (p *Poller) Run(ctx context.Context, subscriber string, out chan<- models.PlaybackEvent) {
	defer close(out)

	logger := shared.WithLogger(p.logger, "subscriber", subscriber)
	state := Bootstrapping
	defer func() { logger.Debug("poller exited", "state", state) }()

	record, err := p.store.Load(ctx, subscriber)
	if err != nil {
		logger.Warn("failed to load token", "error", err)
		p.emit(ctx, out, models.PlaybackFailure(err))
		state = Stopped
		return
	}

	for {
		if ctx.Err() != nil {
			state = Stopped
			return
		}

		if record.ExpiresWithin(p.now(), p.cfg.RefreshMargin) {
			state = Refreshing
			next, err := p.refresh(ctx, *record)
			record = &next
			if err != nil {
				logger.Warn("token refresh failed", "error", err)
				if !p.emit(ctx, out, models.PlaybackFailure(err)) {
					state = Stopped
					return
				}
			}
		}

		if ctx.Err() != nil {
			state = Stopped
			return
		}

		state = Polling
		event, delay, ok := p.poll(ctx, record.AccessToken)
		if ok {
			if !p.emit(ctx, out, event) {
				state = Stopped
				return
			}
		}

		logger.Debug("polled", "event", event.Kind, "delay", delay)
		observability.PollDelaySeconds.Observe(delay.Seconds())

		if !p.sleep(ctx, delay) {
			state = Stopped
			return
		}
	}
}

// refresh mints a new access token and persists it.
//
// The returned record carries the new token whenever upstream succeeded, even if persisting it failed.
func (p *Poller) refresh(ctx context.Context, record models.TokenRecord) (models.TokenRecord, error) {
	token, err := p.upstream.Refresh(ctx, record.RefreshToken)
	if err != nil {
		observability.UpstreamRequests.WithLabelValues("refresh", observability.OutcomeError).Inc()
		observability.TokenRefreshes.WithLabelValues("refresh_failed").Inc()
		return record, err
	}
	observability.UpstreamRequests.WithLabelValues("refresh", observability.OutcomeOK).Inc()

	next := record.Refreshed(token.AccessToken, token.Expiry, token.RefreshToken)
	if err := p.store.Upsert(ctx, next); err != nil {
		observability.TokenRefreshes.WithLabelValues("persist_failed").Inc()
		return next, fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	observability.TokenRefreshes.WithLabelValues(observability.OutcomeOK).Inc()
	return next, nil
}

// poll fetches one snapshot and picks the wait before the next one.
// ok is false when nothing should be emitted.
func (p *Poller) poll(ctx context.Context, accessToken string) (event models.PlaybackEvent, delay time.Duration, ok bool) {
	playing, err := p.upstream.NowPlaying(ctx, accessToken)
	if err != nil {
		observability.UpstreamRequests.WithLabelValues("now_playing", observability.OutcomeError).Inc()
		return models.PlaybackFailure(err), p.cfg.ErrorDelay, true
	}

	if playing == nil {
		observability.UpstreamRequests.WithLabelValues("now_playing", observability.OutcomeEmpty).Inc()
		return models.PlaybackIdle(), p.cfg.MaxDelay, p.cfg.EmitIdle
	}
	observability.UpstreamRequests.WithLabelValues("now_playing", observability.OutcomeOK).Inc()

	song, err := playing.Song()
	if err != nil {
		return models.PlaybackFailure(err), p.cfg.ErrorDelay, true
	}
	return models.PlaybackSuccess(song), NextDelay(song, p.cfg.MaxDelay, p.cfg.EndSlack), true
}

// emit delivers event unless ctx is cancelled first. It reports whether the event was delivered.
func (p *Poller) emit(ctx context.Context, out chan<- models.PlaybackEvent, event models.PlaybackEvent) bool {
	if ctx.Err() != nil {
		return false
	}

	select {
	case out <- event:
		observability.EventsEmitted.WithLabelValues(event.Kind.String()).Inc()
		return true
	case <-ctx.Done():
		return false
	}
}

// sleep waits for d or until ctx is cancelled. It reports whether the loop should continue.
func (p *Poller) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-p.after(d):
		return ctx.Err() == nil
	case <-ctx.Done():
		return false
	}
}
