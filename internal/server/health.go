package server

import (
	"encoding/json"
	"net/http"
)

type activeCounter interface {
	Active() int
}

// HealthHandler reports liveness and the number of running subscriptions.
type HealthHandler struct {
	counter activeCounter
}

func NewHealthHandler(counter activeCounter) *HealthHandler {
	return &HealthHandler{counter: counter}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Status        string `json:"status"`
		Subscriptions int    `json:"subscriptions"`
	}{"ok", h.counter.Active()})
}
