package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/nanocl-io/nanocld/internal/eventbus"
)

// eventStreamRateLimit/eventStreamBurst bound how fast one /events
// connection is fed: a reconciliation storm shouldn't let a single slow
// client pin a goroutine writing as fast as the bus can emit.
const (
	eventStreamRateLimit = 50
	eventStreamBurst     = 100
)

func (s *Server) registerEventRoutes(r *mux.Router) {
	r.HandleFunc("/events", s.streamEvents).Methods(http.MethodGet)
}

// streamEvents subscribes to the event bus and streams newline-delimited
// JSON to the client until it disconnects (§4.7, §6). Clients are expected
// to reconnect after an arbitrary disconnect; there is no replay buffer.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	limiter := rate.NewLimiter(rate.Limit(eventStreamRateLimit), eventStreamBurst)
	enc := json.NewEncoder(w)
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if eventbus.IsPing(event) {
				continue
			}
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			if err := enc.Encode(event); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}
