// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/services"
	"github.com/desertthunder/nowplaying/internal/shared"
	"golang.org/x/oauth2"
)

// MockPlaybackService is a test double for [services.PlaybackService].
//
// Nil funcs fall back to a nothing-playing response and a failing refresh.
type MockPlaybackService struct {
	RefreshFunc    func(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	NowPlayingFunc func(ctx context.Context, accessToken string) (*services.CurrentlyPlaying, error)

	mu              sync.Mutex
	refreshCalls    []string
	nowPlayingCalls []string
}

func (m *MockPlaybackService) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	m.mu.Lock()
	m.refreshCalls = append(m.refreshCalls, refreshToken)
	m.mu.Unlock()

	if m.RefreshFunc == nil {
		return nil, fmt.Errorf("%w: refresh not stubbed", shared.ErrRefreshFailed)
	}
	return m.RefreshFunc(ctx, refreshToken)
}

func (m *MockPlaybackService) NowPlaying(ctx context.Context, accessToken string) (*services.CurrentlyPlaying, error) {
	m.mu.Lock()
	m.nowPlayingCalls = append(m.nowPlayingCalls, accessToken)
	m.mu.Unlock()

	if m.NowPlayingFunc == nil {
		return nil, nil
	}
	return m.NowPlayingFunc(ctx, accessToken)
}

// RefreshCalls returns the refresh tokens passed to Refresh, in call order.
func (m *MockPlaybackService) RefreshCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.refreshCalls...)
}

// NowPlayingCalls returns the access tokens passed to NowPlaying, in call order.
func (m *MockPlaybackService) NowPlayingCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.nowPlayingCalls...)
}

// MockOAuthService is a test double for [services.OAuthService]
type MockOAuthService struct {
	Token       *oauth2.Token
	User        *services.SpotifyUser
	ExchangeErr error
	ProfileErr  error
}

func (m *MockOAuthService) AuthURL(state string) string {
	return "https://accounts.example.com/authorize?state=" + state
}

func (m *MockOAuthService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if m.ExchangeErr != nil {
		return nil, m.ExchangeErr
	}
	return m.Token, nil
}

func (m *MockOAuthService) UserProfile(ctx context.Context, accessToken string) (*services.SpotifyUser, error) {
	if m.ProfileErr != nil {
		return nil, m.ProfileErr
	}
	return m.User, nil
}

// MemoryTokenStore is an in-memory [models.TokenStore] that records every upsert attempt.
type MemoryTokenStore struct {
	LoadErr   error
	UpsertErr error

	mu      sync.Mutex
	records map[string]models.TokenRecord
	upserts []models.TokenRecord
}

func NewMemoryTokenStore(records ...models.TokenRecord) *MemoryTokenStore {
	s := &MemoryTokenStore{records: make(map[string]models.TokenRecord)}
	for _, r := range records {
		s.records[r.Subscriber] = r
	}
	return s
}

func (s *MemoryTokenStore) Load(ctx context.Context, subscriber string) (*models.TokenRecord, error) {
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[subscriber]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrNotFound, subscriber)
	}
	return &r, nil
}

func (s *MemoryTokenStore) Upsert(ctx context.Context, record models.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upserts = append(s.upserts, record)
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	s.records[record.Subscriber] = record
	return nil
}

// Upserts returns every record passed to Upsert, including failed attempts.
func (s *MemoryTokenStore) Upserts() []models.TokenRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TokenRecord(nil), s.upserts...)
}

// Record returns the stored record for subscriber.
func (s *MemoryTokenStore) Record(subscriber string) (models.TokenRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[subscriber]
	return r, ok
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
