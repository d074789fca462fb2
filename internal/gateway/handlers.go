package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pasthortown/cripto/internal/ingest"
	"github.com/pasthortown/cripto/internal/model"
	"github.com/pasthortown/cripto/internal/upstream/binance"
)

const healthProbeTimeout = 3 * time.Second

// Server bundles the REST surface with its dependencies.
type Server struct {
	Service     string
	Candles     model.CandleStore
	Predictions model.PredictionStore
	Lister      model.SymbolLister
	Pinger      model.Pinger
	Ingest      *ingest.Service
	Hub         *Hub
	Log         zerolog.Logger

	// OnRequest observes one handled request (path template, status,
	// duration). Optional.
	OnRequest func(path string, code int, dur time.Duration)
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.observe("/health", s.handleHealth)).Methods(http.MethodGet)
	r.HandleFunc("/api/symbols", s.observe("/api/symbols", s.handleSymbols)).Methods(http.MethodGet)
	r.HandleFunc("/api/sync", s.observe("/api/sync", s.handleSync)).Methods(http.MethodPost)
	r.HandleFunc("/api/data/{symbol}", s.observe("/api/data/{symbol}", s.handleData)).Methods(http.MethodGet)
	r.HandleFunc("/api/predictions/{symbol}", s.observe("/api/predictions/{symbol}", s.handlePredictions)).Methods(http.MethodGet)
	r.HandleFunc("/api/stats/{symbol}", s.observe("/api/stats/{symbol}", s.handleStats)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws/updates", s.Hub.HandleWS)
	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(handlePreflight)
	return r
}

func handlePreflight(w http.ResponseWriter, _ *http.Request) {
	SetCORS(w)
	w.WriteHeader(http.StatusNoContent)
}

// statusRecorder captures the response code for the duration metric.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) observe(path string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.OnRequest == nil {
			h(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		h(rec, r)
		s.OnRequest(path, rec.code, time.Since(start))
	}
}

// ── Handlers ──

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	if err := s.Pinger.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "unhealthy",
			"service":  s.Service,
			"database": "disconnected",
			"error":    err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"service":  s.Service,
		"database": "connected",
	})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	symbols, err := s.Lister.Symbols(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	out := make([]model.SymbolStats, 0, len(symbols))
	for _, symbol := range symbols {
		stats, err := s.Candles.Stats(r.Context(), symbol)
		if err != nil {
			if errors.Is(err, model.ErrUnknownSymbol) {
				continue
			}
			s.writeStoreError(w, err)
			return
		}
		out = append(out, *stats)
	}
	writeJSON(w, http.StatusOK, symbolsResponse{Success: true, Count: len(out), Symbols: out})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	res, err := s.Ingest.SyncSymbol(r.Context(), req.Symbol)
	if err != nil {
		var reqErr *binance.RequestError
		switch {
		case errors.Is(err, model.ErrStorageUnavailable):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case errors.As(err, &reqErr) && reqErr.Status == http.StatusBadRequest:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("upstream rejected symbol %s: %v", req.Symbol, err))
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{
		Success:    true,
		Symbol:     res.Symbol,
		NewRecords: res.NewRecords,
		Statistics: res.Stats,
	})
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	symbol := mux.Vars(r)["symbol"]
	start, end, limit, err := parseRangeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	candles, err := s.Candles.CandlesRange(r.Context(), symbol, start, end, limit)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if len(candles) == 0 && !s.symbolKnown(r.Context(), symbol) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown symbol: %s", strings.ToUpper(symbol)))
		return
	}
	if candles == nil {
		candles = []model.Candle{}
	}
	writeJSON(w, http.StatusOK, candlesResponse{
		Success: true,
		Symbol:  strings.ToUpper(symbol),
		Count:   len(candles),
		Data:    candles,
	})
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	symbol := mux.Vars(r)["symbol"]
	start, end, limit, err := parseRangeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	predictions, err := s.Predictions.PredictionsRange(r.Context(), symbol, start, end, limit)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if len(predictions) == 0 && !s.symbolKnown(r.Context(), symbol) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown symbol: %s", strings.ToUpper(symbol)))
		return
	}
	if predictions == nil {
		predictions = []model.Prediction{}
	}
	writeJSON(w, http.StatusOK, predictionsResponse{
		Success: true,
		Symbol:  strings.ToUpper(symbol),
		Count:   len(predictions),
		Data:    predictions,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	symbol := mux.Vars(r)["symbol"]
	stats, err := s.Candles.Stats(r.Context(), symbol)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Success: true, Statistics: *stats})
}

// symbolKnown reports whether the symbol has any real data. Used to
// distinguish an empty range from a symbol that was never ingested.
func (s *Server) symbolKnown(ctx context.Context, symbol string) bool {
	_, err := s.Candles.Stats(ctx, symbol)
	return err == nil
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrUnknownSymbol):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.Log.Error().Err(err).Msg("handler storage error")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// parseRangeQuery reads start_time/end_time/limit. Absent bounds come
// back negative (unbounded); absent limit comes back 0 (no limit).
func parseRangeQuery(r *http.Request) (start, end, limit int64, err error) {
	start, end = -1, -1
	q := r.URL.Query()

	if v := q.Get("start_time"); v != "" {
		start, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid start_time: %q", v)
		}
	}
	if v := q.Get("end_time"); v != "" {
		end, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid end_time: %q", v)
		}
	}
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.ParseInt(v, 10, 64)
		if err != nil || limit < 0 {
			return 0, 0, 0, fmt.Errorf("invalid limit: %q", v)
		}
	}
	return start, end, limit, nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Success: false, Error: message})
}
