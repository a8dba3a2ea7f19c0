package tasks

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/services"
	"github.com/desertthunder/nowplaying/internal/shared"
	tu "github.com/desertthunder/nowplaying/internal/testing"
	"golang.org/x/oauth2"
)

const subscriber = "spotify:user:abc"

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeClock stands in for time.After. Every wait fires immediately and the
// run is cancelled once limit waits have been requested.
type fakeClock struct {
	mu     sync.Mutex
	delays []time.Duration
	limit  int
	cancel context.CancelFunc
}

func (c *fakeClock) after(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.delays = append(c.delays, d)
	n := len(c.delays)
	c.mu.Unlock()

	if n >= c.limit {
		c.cancel()
	}

	ch := make(chan time.Time, 1)
	ch <- fixedNow
	return ch
}

func (c *fakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

func testConfig() shared.PollerConfig {
	return shared.DefaultConfig().Poller
}

func freshRecord() models.TokenRecord {
	return models.TokenRecord{
		Subscriber:   subscriber,
		AccessToken:  "stale",
		RefreshToken: "old_refresh",
		Expiry:       fixedNow.Add(time.Hour),
	}
}

// newPinnedPoller builds a poller whose clock is fixed at fixedNow, so freshRecord never needs a refresh.
func newPinnedPoller(svc *tu.MockPlaybackService, store *tu.MemoryTokenStore, cfg shared.PollerConfig) *Poller {
	p := NewPoller(svc, store, cfg, log.New(io.Discard))
	p.now = func() time.Time { return fixedNow }
	return p
}

func snapshot(progress, total float64) *services.CurrentlyPlaying {
	return &services.CurrentlyPlaying{
		IsPlaying:  true,
		ProgressMS: progress,
		Item: &services.SpotifyTrack{
			Name:       "Song",
			DurationMS: total,
			Artists:    []services.SpotifyArtist{{Name: "A"}, {Name: "B"}},
			Album:      services.SpotifyAlbum{Images: []services.SpotifyImage{{URL: "http://img/1"}}},
		},
	}
}

func playing(p *services.CurrentlyPlaying) func(context.Context, string) (*services.CurrentlyPlaying, error) {
	return func(context.Context, string) (*services.CurrentlyPlaying, error) { return p, nil }
}

// runPoller runs a poller to completion for at most iterations sleeps and returns what it emitted.
func runPoller(t *testing.T, svc *tu.MockPlaybackService, store *tu.MemoryTokenStore, cfg shared.PollerConfig, iterations int) ([]models.PlaybackEvent, *fakeClock) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := &fakeClock{limit: iterations, cancel: cancel}
	p := newPinnedPoller(svc, store, cfg)
	p.after = clock.after

	out := make(chan models.PlaybackEvent, 32)
	p.Run(ctx, subscriber, out)

	var events []models.PlaybackEvent
	for ev := range out {
		events = append(events, ev)
	}
	return events, clock
}

func TestNextDelay(t *testing.T) {
	maxDelay := 20 * time.Second
	slack := 200 * time.Millisecond

	tc := []struct {
		name     string
		progress float64
		total    float64
		want     time.Duration
	}{
		{name: "ten seconds left", progress: 170000, total: 180000, want: 10200 * time.Millisecond},
		{name: "long track", progress: 0, total: 180000, want: 20 * time.Second},
		{name: "exactly max delay left", progress: 160000, total: 180000, want: 20 * time.Second},
		{name: "just under max delay", progress: 160001, total: 180000, want: 20199 * time.Millisecond},
		{name: "track ended", progress: 180000, total: 180000, want: 200 * time.Millisecond},
		{name: "progress past duration", progress: 181000, total: 180000, want: 0},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := NextDelay(models.SongResponse{ProgressMS: tt.progress, TotalMS: tt.total}, maxDelay, slack)
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPoller(t *testing.T) {
	t.Run("Bootstrapping", func(t *testing.T) {
		t.Run("missing record emits one error and closes", func(t *testing.T) {
			svc := &tu.MockPlaybackService{NowPlayingFunc: playing(snapshot(0, 180000))}
			store := tu.NewMemoryTokenStore()

			events, clock := runPoller(t, svc, store, testConfig(), 5)

			if len(events) != 1 {
				t.Fatalf("expected exactly 1 event, got %d", len(events))
			}
			if events[0].Kind != models.EventError {
				t.Errorf("expected error event, got %v", events[0].Kind)
			}
			if !strings.Contains(events[0].Message, shared.ErrNotFound.Error()) {
				t.Errorf("expected not found message, got %q", events[0].Message)
			}
			if n := len(svc.NowPlayingCalls()) + len(svc.RefreshCalls()); n != 0 {
				t.Errorf("expected no upstream calls, got %d", n)
			}
			if len(clock.Delays()) != 0 {
				t.Error("expected poller to stop without sleeping")
			}
		})

		t.Run("storage failure emits one error and closes", func(t *testing.T) {
			svc := &tu.MockPlaybackService{}
			store := tu.NewMemoryTokenStore(freshRecord())
			store.LoadErr = shared.ErrStorage

			events, _ := runPoller(t, svc, store, testConfig(), 5)

			if len(events) != 1 || events[0].Kind != models.EventError {
				t.Fatalf("expected a single error event, got %v", events)
			}
			if events[0].Message != shared.ErrStorage.Error() {
				t.Errorf("unexpected message %q", events[0].Message)
			}
		})
	})

	t.Run("Refreshing", func(t *testing.T) {
		t.Run("no refresh with margin to spare", func(t *testing.T) {
			record := freshRecord()
			record.Expiry = fixedNow.Add(60 * time.Second)

			svc := &tu.MockPlaybackService{NowPlayingFunc: playing(snapshot(0, 180000))}
			store := tu.NewMemoryTokenStore(record)

			runPoller(t, svc, store, testConfig(), 1)

			if calls := svc.RefreshCalls(); len(calls) != 0 {
				t.Errorf("expected no refresh, got %d", len(calls))
			}
			if calls := svc.NowPlayingCalls(); len(calls) != 1 || calls[0] != "stale" {
				t.Errorf("expected one fetch with stored token, got %v", calls)
			}
		})

		t.Run("refreshes once before fetching", func(t *testing.T) {
			record := freshRecord()
			record.Expiry = fixedNow.Add(59 * time.Second)

			svc := &tu.MockPlaybackService{
				NowPlayingFunc: playing(snapshot(0, 180000)),
				RefreshFunc: func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
					return &oauth2.Token{AccessToken: "fresh", RefreshToken: refreshToken, Expiry: fixedNow.Add(time.Hour)}, nil
				},
			}
			store := tu.NewMemoryTokenStore(record)

			events, _ := runPoller(t, svc, store, testConfig(), 2)

			if calls := svc.RefreshCalls(); len(calls) != 1 || calls[0] != "old_refresh" {
				t.Errorf("expected exactly one refresh with old_refresh, got %v", calls)
			}
			calls := svc.NowPlayingCalls()
			if len(calls) != 2 || calls[0] != "fresh" || calls[1] != "fresh" {
				t.Errorf("expected fetches with refreshed token, got %v", calls)
			}

			stored, _ := store.Record(subscriber)
			if stored.AccessToken != "fresh" || !stored.Expiry.Equal(fixedNow.Add(time.Hour)) {
				t.Errorf("expected refreshed token persisted, got %+v", stored)
			}
			if stored.RefreshToken != "old_refresh" {
				t.Errorf("expected refresh token kept, got %s", stored.RefreshToken)
			}

			for _, ev := range events {
				if ev.Kind != models.EventPlayback {
					t.Errorf("expected only playback events, got %v", ev)
				}
			}
		})

		t.Run("persists rotated refresh token", func(t *testing.T) {
			record := freshRecord()
			record.Expiry = fixedNow

			svc := &tu.MockPlaybackService{
				NowPlayingFunc: playing(snapshot(0, 180000)),
				RefreshFunc: func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
					return &oauth2.Token{AccessToken: "fresh", RefreshToken: "rotated", Expiry: fixedNow.Add(time.Hour)}, nil
				},
			}
			store := tu.NewMemoryTokenStore(record)

			runPoller(t, svc, store, testConfig(), 1)

			stored, _ := store.Record(subscriber)
			if stored.RefreshToken != "rotated" {
				t.Errorf("expected rotated refresh token, got %s", stored.RefreshToken)
			}
		})

		t.Run("refresh failure continues with stale token", func(t *testing.T) {
			record := freshRecord()
			record.Expiry = fixedNow.Add(-time.Minute)

			svc := &tu.MockPlaybackService{
				NowPlayingFunc: playing(snapshot(0, 180000)),
				RefreshFunc: func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
					return nil, shared.ErrUpstream
				},
			}
			store := tu.NewMemoryTokenStore(record)

			events, _ := runPoller(t, svc, store, testConfig(), 1)

			if len(events) != 2 {
				t.Fatalf("expected 2 events, got %d", len(events))
			}
			if events[0].Kind != models.EventError || events[1].Kind != models.EventPlayback {
				t.Errorf("expected error then playback, got %v, %v", events[0], events[1])
			}
			if calls := svc.NowPlayingCalls(); len(calls) != 1 || calls[0] != "stale" {
				t.Errorf("expected fetch with stale token, got %v", calls)
			}
			if len(store.Upserts()) != 0 {
				t.Error("expected nothing persisted")
			}
		})

		t.Run("persist failure keeps refreshed token in memory", func(t *testing.T) {
			record := freshRecord()
			record.Expiry = fixedNow

			svc := &tu.MockPlaybackService{
				NowPlayingFunc: playing(snapshot(0, 180000)),
				RefreshFunc: func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
					return &oauth2.Token{AccessToken: "fresh", Expiry: fixedNow.Add(time.Hour)}, nil
				},
			}
			store := tu.NewMemoryTokenStore(record)
			store.UpsertErr = shared.ErrStorage

			events, _ := runPoller(t, svc, store, testConfig(), 1)

			if len(events) != 2 || events[0].Kind != models.EventError {
				t.Fatalf("expected error event before playback, got %v", events)
			}
			if !strings.Contains(events[0].Message, shared.ErrStorage.Error()) {
				t.Errorf("expected storage message, got %q", events[0].Message)
			}
			if calls := svc.NowPlayingCalls(); len(calls) != 1 || calls[0] != "fresh" {
				t.Errorf("expected fetch with refreshed token, got %v", calls)
			}
		})
	})

	t.Run("Polling", func(t *testing.T) {
		t.Run("normalizes snapshot", func(t *testing.T) {
			svc := &tu.MockPlaybackService{NowPlayingFunc: playing(snapshot(50000, 180000))}
			store := tu.NewMemoryTokenStore(freshRecord())

			events, _ := runPoller(t, svc, store, testConfig(), 1)

			if len(events) != 1 || events[0].Song == nil {
				t.Fatalf("expected a playback event, got %v", events)
			}
			want := models.SongResponse{
				Title:      "Song",
				Artist:     "A, B",
				AlbumCover: "http://img/1",
				ProgressMS: 50000,
				TotalMS:    180000,
				IsPlaying:  true,
			}
			if *events[0].Song != want {
				t.Errorf("expected %+v, got %+v", want, *events[0].Song)
			}
		})

		t.Run("wakes just after track end", func(t *testing.T) {
			svc := &tu.MockPlaybackService{NowPlayingFunc: playing(snapshot(170000, 180000))}
			store := tu.NewMemoryTokenStore(freshRecord())

			_, clock := runPoller(t, svc, store, testConfig(), 1)

			if d := clock.Delays(); len(d) != 1 || d[0] != 10200*time.Millisecond {
				t.Errorf("expected 10.2s delay, got %v", d)
			}
		})

		t.Run("caps delay on long tracks", func(t *testing.T) {
			svc := &tu.MockPlaybackService{NowPlayingFunc: playing(snapshot(0, 180000))}
			store := tu.NewMemoryTokenStore(freshRecord())

			_, clock := runPoller(t, svc, store, testConfig(), 1)

			if d := clock.Delays(); len(d) != 1 || d[0] != 20*time.Second {
				t.Errorf("expected 20s delay, got %v", d)
			}
		})

		t.Run("identical snapshots emit identical events", func(t *testing.T) {
			svc := &tu.MockPlaybackService{NowPlayingFunc: playing(snapshot(1000, 180000))}
			store := tu.NewMemoryTokenStore(freshRecord())

			events, _ := runPoller(t, svc, store, testConfig(), 2)

			if len(events) != 2 {
				t.Fatalf("expected 2 events, got %d", len(events))
			}
			if *events[0].Song != *events[1].Song {
				t.Errorf("expected equal events, got %+v and %+v", events[0].Song, events[1].Song)
			}
		})

		t.Run("upstream error retries after error delay", func(t *testing.T) {
			svc := &tu.MockPlaybackService{
				NowPlayingFunc: func(context.Context, string) (*services.CurrentlyPlaying, error) {
					return nil, shared.ErrUpstream
				},
			}
			store := tu.NewMemoryTokenStore(freshRecord())

			events, clock := runPoller(t, svc, store, testConfig(), 2)

			if len(events) != 2 || events[0].Kind != models.EventError {
				t.Fatalf("expected two error events, got %v", events)
			}
			if events[0].Message != shared.ErrUpstream.Error() {
				t.Errorf("unexpected message %q", events[0].Message)
			}
			for _, d := range clock.Delays() {
				if d != 10*time.Second {
					t.Errorf("expected 10s delay, got %v", d)
				}
			}
		})

		t.Run("malformed snapshot", func(t *testing.T) {
			bad := snapshot(0, 180000)
			bad.Item.Album.Images = nil

			svc := &tu.MockPlaybackService{NowPlayingFunc: playing(bad)}
			store := tu.NewMemoryTokenStore(freshRecord())

			events, clock := runPoller(t, svc, store, testConfig(), 1)

			if len(events) != 1 || events[0].Kind != models.EventError {
				t.Fatalf("expected an error event, got %v", events)
			}
			if !strings.Contains(events[0].Message, shared.ErrMalformedSnapshot.Error()) {
				t.Errorf("unexpected message %q", events[0].Message)
			}
			if d := clock.Delays(); d[0] != 10*time.Second {
				t.Errorf("expected 10s delay, got %v", d[0])
			}
		})

		t.Run("nothing playing", func(t *testing.T) {
			t.Run("emits idle", func(t *testing.T) {
				svc := &tu.MockPlaybackService{}
				store := tu.NewMemoryTokenStore(freshRecord())

				events, clock := runPoller(t, svc, store, testConfig(), 1)

				if len(events) != 1 || events[0].Kind != models.EventIdle {
					t.Fatalf("expected an idle event, got %v", events)
				}
				if d := clock.Delays(); d[0] != 20*time.Second {
					t.Errorf("expected 20s delay, got %v", d[0])
				}
			})

			t.Run("suppressed", func(t *testing.T) {
				cfg := testConfig()
				cfg.EmitIdle = false

				svc := &tu.MockPlaybackService{}
				store := tu.NewMemoryTokenStore(freshRecord())

				events, clock := runPoller(t, svc, store, cfg, 2)

				if len(events) != 0 {
					t.Errorf("expected no events, got %v", events)
				}
				if d := clock.Delays(); len(d) != 2 || d[0] != 20*time.Second {
					t.Errorf("expected two 20s delays, got %v", d)
				}
			})
		})
	})

	t.Run("Stopping", func(t *testing.T) {
		t.Run("no upstream calls after cancellation", func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			svc := &tu.MockPlaybackService{
				NowPlayingFunc: func(context.Context, string) (*services.CurrentlyPlaying, error) {
					cancel()
					return snapshot(0, 180000), nil
				},
			}
			p := newPinnedPoller(svc, tu.NewMemoryTokenStore(freshRecord()), testConfig())
			p.after = func(time.Duration) <-chan time.Time {
				t.Error("expected no sleep after cancellation")
				return nil
			}

			out := make(chan models.PlaybackEvent, 32)
			p.Run(ctx, subscriber, out)

			if n := len(svc.NowPlayingCalls()); n != 1 {
				t.Errorf("expected 1 upstream call, got %d", n)
			}
			if _, open := <-out; open {
				t.Error("expected no events and a closed channel")
			}
		})

		t.Run("cancellation interrupts sleep", func(t *testing.T) {
			cfg := testConfig()
			cfg.MaxDelay = time.Hour

			svc := &tu.MockPlaybackService{NowPlayingFunc: playing(snapshot(0, 3600000 * 2))}
			p := newPinnedPoller(svc, tu.NewMemoryTokenStore(freshRecord()), cfg)

			ctx, cancel := context.WithCancel(context.Background())
			out := make(chan models.PlaybackEvent, 32)
			done := make(chan struct{})
			go func() {
				p.Run(ctx, subscriber, out)
				close(done)
			}()

			if ev := <-out; ev.Kind != models.EventPlayback {
				t.Fatalf("expected playback event, got %v", ev)
			}
			cancel()

			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("poller did not stop after cancellation")
			}
			if _, open := <-out; open {
				t.Error("expected closed channel")
			}
		})

		t.Run("cancellation unblocks a full channel", func(t *testing.T) {
			svc := &tu.MockPlaybackService{NowPlayingFunc: playing(snapshot(0, 180000))}
			p := newPinnedPoller(svc, tu.NewMemoryTokenStore(freshRecord()), testConfig())
			p.after = func(time.Duration) <-chan time.Time {
				ch := make(chan time.Time, 1)
				ch <- fixedNow
				return ch
			}

			ctx, cancel := context.WithCancel(context.Background())
			out := make(chan models.PlaybackEvent)
			done := make(chan struct{})
			go func() {
				p.Run(ctx, subscriber, out)
				close(done)
			}()

			<-out
			cancel()

			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("poller blocked on emit after cancellation")
			}
		})
	})
}

func TestState(t *testing.T) {
	tc := []struct {
		state State
		want  string
	}{
		{Bootstrapping, "bootstrapping"},
		{Polling, "polling"},
		{Refreshing, "refreshing"},
		{Stopped, "stopped"},
		{State(99), ""},
	}

	for _, tt := range tc {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestRefreshErrorWrapping(t *testing.T) {
	svc := &tu.MockPlaybackService{
		RefreshFunc: func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
			return &oauth2.Token{AccessToken: "fresh", Expiry: fixedNow.Add(time.Hour)}, nil
		},
	}
	store := tu.NewMemoryTokenStore()
	store.UpsertErr = shared.ErrStorage

	p := NewPoller(svc, store, testConfig(), log.New(io.Discard))
	next, err := p.refresh(context.Background(), freshRecord())

	if !errors.Is(err, shared.ErrStorage) {
		t.Errorf("expected ErrStorage, got %v", err)
	}
	if next.AccessToken != "fresh" || next.RefreshToken != "old_refresh" {
		t.Errorf("unexpected record %+v", next)
	}
}
