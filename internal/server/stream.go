package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/nowplaying/internal/observability"
	"github.com/desertthunder/nowplaying/internal/shared"
	"github.com/gorilla/websocket"
)

const (
	defaultHeartbeat = 15 * time.Second
	wsWriteWait      = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Feeds are public and read-only; any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// statusFor maps subscription errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrMissingArgument), errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// SSEHandler streams a subscriber's playback events as server-sent events.
//
// Each event is written as one "data: <json>" frame. A comment line is sent every heartbeat
// so that dead connections are noticed even while the poller is sleeping.
type SSEHandler struct {
	subscriptions Subscriber
	heartbeat     time.Duration
	logger        *log.Logger
}

func NewSSEHandler(subscriptions Subscriber, heartbeat time.Duration, logger *log.Logger) *SSEHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &SSEHandler{subscriptions: subscriptions, heartbeat: heartbeat, logger: logger}
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	sub, err := h.subscriptions.Subscribe(r.Context(), r.URL.Query().Get("uri"))
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	defer sub.Cancel()

	observability.SubscriptionsTotal.WithLabelValues("sse").Inc()
	logger := shared.WithLogger(h.logger, "subscription", sub.ID, "transport", "sse")

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.Error("streaming unsupported", "error", err)
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error("failed to encode event", "event", event, "error", err)
				continue
			}
			if err := writeFrame(w, rc, "data: %s\n\n", data); err != nil {
				observability.FrameWriteFailures.WithLabelValues("sse").Inc()
				logger.Debug("client gone", "error", err)
				return
			}
		case <-ticker.C:
			if err := writeFrame(w, rc, ": ping\n\n"); err != nil {
				observability.FrameWriteFailures.WithLabelValues("sse").Inc()
				logger.Debug("client gone", "error", err)
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func writeFrame(w http.ResponseWriter, rc *http.ResponseController, format string, args ...any) error {
	if _, err := fmt.Fprintf(w, format, args...); err != nil {
		return err
	}
	return rc.Flush()
}

// WSHandler streams a subscriber's playback events over a WebSocket, one text message per event.
//
// The handler is the only writer on the connection. A read pump watches for the client going away.
type WSHandler struct {
	subscriptions Subscriber
	heartbeat     time.Duration
	logger        *log.Logger
}

func NewWSHandler(subscriptions Subscriber, heartbeat time.Duration, logger *log.Logger) *WSHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &WSHandler{subscriptions: subscriptions, heartbeat: heartbeat, logger: logger}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		http.Error(w, fmt.Sprintf("%v: uri", shared.ErrMissingArgument), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// A hijacked connection does not cancel r's context on disconnect; the read pump reports that instead.
	sub, err := h.subscriptions.Subscribe(r.Context(), uri)
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
			time.Now().Add(wsWriteWait))
		return
	}
	defer sub.Cancel()

	observability.SubscriptionsTotal.WithLabelValues("ws").Inc()
	logger := shared.WithLogger(h.logger, "subscription", sub.ID, "transport", "ws")

	readTimeout := 2 * h.heartbeat
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("websocket read failed", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(wsWriteWait))
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error("failed to encode event", "event", event, "error", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				observability.FrameWriteFailures.WithLabelValues("ws").Inc()
				logger.Debug("client gone", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				observability.FrameWriteFailures.WithLabelValues("ws").Inc()
				return
			}
		case <-gone:
			return
		}
	}
}
