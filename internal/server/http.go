package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"ContractLedger/internal/observability"
	"ContractLedger/internal/query"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HTTPServer serves the read-only query API plus health and metrics
// endpoints. Writes never enter here: all mutations flow through the
// instruction stream.
type HTTPServer struct {
	httpServer *http.Server
	addr       string
	logger     zerolog.Logger
}

// Deps holds the dependencies of the HTTP API.
type Deps struct {
	QueryService  *query.Service
	HealthChecker *observability.HealthChecker
}

func NewHTTPServer(addr string, deps *Deps) *HTTPServer {
	s := &HTTPServer{
		addr:   addr,
		logger: observability.NewLogger("http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", deps.HealthChecker.LivenessHandler)
	mux.HandleFunc("/readyz", deps.HealthChecker.ReadinessHandler)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/balance", s.handleBalance(deps.QueryService))
	mux.HandleFunc("/v1/position", s.handlePosition(deps.QueryService))
	mux.HandleFunc("/v1/book", s.handleBook(deps.QueryService))
	mux.HandleFunc("/v1/prices", s.handlePrices(deps.QueryService))
	mux.HandleFunc("/v1/transitions", s.handleTransitions(deps.QueryService))
	mux.HandleFunc("/v1/contract-stats", s.handleContractStats(deps.QueryService))
	mux.HandleFunc("/v1/admin/verify-integrity", s.handleVerifyIntegrity(deps.QueryService))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving. Blocks until the server stops.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *HTTPServer) handleBalance(qs *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		address := r.URL.Query().Get("address")
		if address == "" {
			httpError(w, http.StatusBadRequest, "address is required")
			return
		}
		propertyID, ok := parseUint32(w, r, "property_id")
		if !ok {
			return
		}
		writeJSON(w, qs.GetBalance(address, propertyID))
	}
}

func (s *HTTPServer) handlePosition(qs *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		address := r.URL.Query().Get("address")
		if address == "" {
			httpError(w, http.StatusBadRequest, "address is required")
			return
		}
		contractID, ok := parseUint32(w, r, "contract_id")
		if !ok {
			return
		}
		writeJSON(w, qs.GetPosition(address, contractID))
	}
}

func (s *HTTPServer) handleBook(qs *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contractID, ok := parseUint32(w, r, "contract_id")
		if !ok {
			return
		}
		writeJSON(w, qs.GetBook(contractID))
	}
}

func (s *HTTPServer) handlePrices(qs *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contractID, ok := parseUint32(w, r, "contract_id")
		if !ok {
			return
		}
		propertyID, ok := parseUint32(w, r, "property_id")
		if !ok {
			return
		}
		block, ok := parseInt64(w, r, "block")
		if !ok {
			return
		}
		window, ok := parseInt64(w, r, "window")
		if !ok {
			return
		}

		resp, err := qs.GetPrices(contractID, propertyID, block, window)
		if err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, resp)
	}
}

func (s *HTTPServer) handleTransitions(qs *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		address := r.URL.Query().Get("address")
		if address == "" {
			httpError(w, http.StatusBadRequest, "address is required")
			return
		}

		limit := 100
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > 1000 {
				httpError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}

		var before *int64
		if raw := r.URL.Query().Get("before_sequence"); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid before_sequence")
				return
			}
			before = &n
		}

		history, err := qs.GetTransitionHistory(r.Context(), address, limit, before)
		if err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, history)
	}
}

func (s *HTTPServer) handleContractStats(qs *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contractID, ok := parseUint32(w, r, "contract_id")
		if !ok {
			return
		}
		stats, err := qs.GetContractStats(r.Context(), contractID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, stats)
	}
}

func (s *HTTPServer) handleVerifyIntegrity(qs *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := qs.VerifyIntegrity(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, report)
	}
}

func parseUint32(w http.ResponseWriter, r *http.Request, param string) (uint32, bool) {
	raw := r.URL.Query().Get(param)
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid "+param)
		return 0, false
	}
	return uint32(n), true
}

func parseInt64(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	raw := r.URL.Query().Get(param)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid "+param)
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
