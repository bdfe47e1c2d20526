package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"bothan/internal/monitoring"
)

// RESTServer mirrors the gRPC surface over plain HTTP (§6), matching the
// teacher's gorilla/mux routing idiom.
type RESTServer struct {
	manager                   Manager
	uplink                    monitoring.Uplink
	staleness                 time.Duration
	defaultVersionRequirement string
	httpServer                *http.Server
}

// NewRESTServer builds a REST server listening on addr. uplink may be nil
// (PushMonitoringRecords then responds 503). defaultVersionRequirement is
// used for /registry requests that don't set their own version.
func NewRESTServer(m Manager, uplink monitoring.Uplink, addr string, staleness time.Duration, defaultVersionRequirement string) *RESTServer {
	r := mux.NewRouter()
	s := &RESTServer{manager: m, uplink: uplink, staleness: staleness, defaultVersionRequirement: defaultVersionRequirement}

	r.HandleFunc("/info", s.handleGetInfo).Methods("GET")
	r.HandleFunc("/registry", s.handleUpdateRegistry).Methods("POST")
	r.HandleFunc("/prices", s.handleGetPrices).Methods("GET")
	r.HandleFunc("/monitoring/records", s.handlePushMonitoringRecords).Methods("POST")

	s.httpServer = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start blocks serving HTTP until the server is shut down.
func (s *RESTServer) Start() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type infoResponse struct {
	SignalIDs []string `json:"signal_ids"`
}

func (s *RESTServer) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	v, ok := s.manager.Registry()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("no registry installed"))
		return
	}
	writeJSON(w, http.StatusOK, infoResponse{SignalIDs: v.Keys()})
}

type updateRegistryRequest struct {
	IPFSHash string          `json:"ipfs_hash,omitempty"`
	Registry json.RawMessage `json:"registry,omitempty"`
	// Version is a semver range bothand's own running version must
	// satisfy for this update to be accepted. Empty falls back to the
	// server's configured default.
	Version string `json:"version,omitempty"`
}

func (s *RESTServer) handleUpdateRegistry(w http.ResponseWriter, r *http.Request) {
	var req updateRegistryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	versionRequirement := req.Version
	if versionRequirement == "" {
		versionRequirement = s.defaultVersionRequirement
	}

	var err error
	switch {
	case req.IPFSHash != "":
		err = s.manager.SetRegistryFromIPFS(r.Context(), req.IPFSHash, versionRequirement)
	case len(req.Registry) > 0:
		err = s.manager.SetRegistry(req.Registry, versionRequirement)
	default:
		err = fmt.Errorf("request must set either ipfs_hash or registry")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type getPricesResponse struct {
	Results []PriceResult `json:"results"`
}

func (s *RESTServer) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	idsParam := r.URL.Query().Get("ids")
	if idsParam == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing required query parameter: ids"))
		return
	}
	ids := strings.Split(idsParam, ",")

	states, err := s.manager.GetPrices(r.Context(), ids, s.staleness, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, getPricesResponse{Results: toPriceResults(ids, states)})
}

func (s *RESTServer) handlePushMonitoringRecords(w http.ResponseWriter, r *http.Request) {
	if s.uplink == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("monitoring uplink not configured"))
		return
	}
	var records []monitoring.SignalComputationRecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := monitoring.PublishRecords(r.Context(), s.uplink, records); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
