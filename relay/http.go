package relay

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler returns the relay's HTTP routes:
//
//	GET /         websocket endpoint
//	GET /healthz  liveness and pairing state
//	GET /peers    registered peers
//	GET /metrics  counter snapshot
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.ServeWS)
	r.Get("/healthz", s.handleHealth)
	r.Get("/peers", s.handlePeers)
	r.Get("/metrics", s.handleMetrics)
	return r
}

type healthResponse struct {
	Status     string `json:"status"`
	Client     bool   `json:"client"`
	Controller bool   `json:"controller"`
	Seed       uint32 `json:"seed"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := healthResponse{
		Status:     "ok",
		Client:     s.client != nil,
		Controller: s.controller != nil,
		Seed:       s.seed,
	}
	s.mu.Unlock()
	writeJSON(w, resp)
}

func (s *Server) handlePeers(w http.ResponseWriter, _ *http.Request) {
	peers := s.Peers()
	if peers == nil {
		peers = []PeerInfo{}
	}
	writeJSON(w, peers)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.metrics.Snapshot())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
