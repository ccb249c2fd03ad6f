package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

// nodeInfo describes the single daemon node answering this request.
// Clustering (multi-node placement) is out of scope, per spec.md's
// Non-goals; this route exists so compose/proxy tooling that expects a
// nodes listing (§4.7) still gets a well-formed, single-element answer.
type nodeInfo struct {
	Name   string            `json:"name"`
	Kind   string            `json:"kind"`
	Events eventbusStatsView `json:"event_bus"`
}

type eventbusStatsView struct {
	SubscriberCount int   `json:"subscriber_count"`
	EventsEmitted   int64 `json:"events_emitted"`
	EventsDropped   int64 `json:"events_dropped"`
}

func (s *Server) registerNodeRoutes(r *mux.Router) {
	r.HandleFunc("/nodes", s.listNodes).Methods(http.MethodGet)
	r.HandleFunc("/nodes/{name}/inspect", s.inspectNode).Methods(http.MethodGet)
}

func (s *Server) describeSelf() nodeInfo {
	stats := s.bus.Stats()
	return nodeInfo{
		Name: s.node,
		Kind: "worker",
		Events: eventbusStatsView{
			SubscriberCount: stats.SubscriberCount,
			EventsEmitted:   stats.EventsEmitted,
			EventsDropped:   stats.EventsDropped,
		},
	}
}

func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []nodeInfo{s.describeSelf()})
}

func (s *Server) inspectNode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.describeSelf())
}
