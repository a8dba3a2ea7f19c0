package ui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/shared"
)

const maxFrameSize = 1 << 20

// Feed reads a subscriber's events from a running server's /sse endpoint.
type Feed struct {
	url    string
	client *http.Client
}

// NewFeed builds a feed for subscriber on the server at baseURL. A nil client uses [http.DefaultClient].
func NewFeed(baseURL, subscriber string, client *http.Client) (*Feed, error) {
	if subscriber == "" {
		return nil, fmt.Errorf("%w: subscriber", shared.ErrMissingArgument)
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/sse")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", shared.ErrInvalidArgument, u.Scheme)
	}
	u.RawQuery = url.Values{"uri": {subscriber}}.Encode()

	if client == nil {
		client = http.DefaultClient
	}
	return &Feed{url: u.String(), client: client}, nil
}

// URL returns the stream endpoint.
func (f *Feed) URL() string {
	return f.url
}

// Stream sends every decoded event to out until the server ends the stream or ctx is done.
//
// out is closed when Stream returns. A nil error means the server closed the stream. Comment
// lines (heartbeats) are skipped and frames that do not decode are dropped.
func (f *Feed) Stream(ctx context.Context, out chan<- models.PlaybackEvent) error {
	defer close(out)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrFeed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", shared.ErrFeed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameSize)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) == 0 {
				continue
			}
			frame := strings.Join(data, "\n")
			data = data[:0]

			var event models.PlaybackEvent
			if err := json.Unmarshal([]byte(frame), &event); err != nil {
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return ctx.Err()
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrFeed, err)
	}
	return nil
}
