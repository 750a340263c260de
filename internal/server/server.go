// Package server exposes the engine over REST and a WebSocket push stream.
package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/kavach/opsengine/internal/api"
	"github.com/kavach/opsengine/internal/dispatcher"
	"github.com/kavach/opsengine/internal/handlers"
	"github.com/kavach/opsengine/internal/risk"
	"github.com/kavach/opsengine/pkg/core"
)

const maxBodyBytes = 1 << 20

// Options tunes the stream and CORS behaviour.
type Options struct {
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	AllowedOrigins []string // empty allows any origin
}

// Server represents the API server
type Server struct {
	svc      *handlers.Service
	disp     *dispatcher.Dispatcher
	logger   *slog.Logger
	opts     Options
	router   *mux.Router
	upgrader websocket.Upgrader
}

// New creates a new API server
func New(svc *handlers.Service, disp *dispatcher.Dispatcher, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	s := &Server{
		svc:    svc,
		disp:   disp,
		logger: logger,
		opts:   opts,
		router: mux.NewRouter(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return s.originAllowed(r.Header.Get("Origin")) },
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/sites", s.handleListSites).Methods(http.MethodGet)

	site := v1.PathPrefix("/sites/{site}").Subrouter()
	site.HandleFunc("/start", s.command(handlers.CmdSiteStart)).Methods(http.MethodPost)
	site.HandleFunc("/stop", s.command(handlers.CmdSiteStop)).Methods(http.MethodPost)
	site.HandleFunc("/recompute", s.command(handlers.CmdSiteRecompute)).Methods(http.MethodPost)
	site.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	site.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	site.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)

	site.HandleFunc("/vehicles", s.handleListVehicles).Methods(http.MethodGet)
	site.HandleFunc("/vehicles", s.command(handlers.CmdVehicleUpsert)).Methods(http.MethodPost, http.MethodPut)
	site.HandleFunc("/vehicles/{id}", s.handleGetVehicle).Methods(http.MethodGet)
	site.HandleFunc("/vehicles/{id}", s.commandWithID(handlers.CmdVehicleRemove)).Methods(http.MethodDelete)

	site.HandleFunc("/workers", s.handleListWorkers).Methods(http.MethodGet)
	site.HandleFunc("/workers", s.commandCreated(handlers.CmdWorkerAdd)).Methods(http.MethodPost)
	site.HandleFunc("/workers/{id}", s.commandWithID(handlers.CmdWorkerEnd)).Methods(http.MethodDelete)

	site.HandleFunc("/history", s.handleListHistory).Methods(http.MethodGet)
	site.HandleFunc("/history", s.commandCreated(handlers.CmdHistoryAppend)).Methods(http.MethodPost)
	site.HandleFunc("/history", s.command(handlers.CmdHistoryClear)).Methods(http.MethodDelete)
	site.HandleFunc("/history/{id}", s.commandWithID(handlers.CmdHistoryDelete)).Methods(http.MethodDelete)

	site.HandleFunc("/predict", s.command(handlers.CmdPredict)).Methods(http.MethodPost)

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
}

// Router returns the configured router
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.opts.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	return slices.Contains(s.opts.AllowedOrigins, origin)
}

// Middleware

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the stream endpoint upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("HTTP request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		next.ServeHTTP(w, r)
	})
}

// Response helpers
type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation), errors.Is(err, dispatcher.ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrNotStarted):
		return http.StatusConflict
	case errors.Is(err, handlers.ErrNoPredictor):
		return http.StatusServiceUnavailable
	case errors.Is(err, api.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondError(w, status, err.Error())
}

// Command endpoints

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, command string, payload []byte, okStatus int) {
	result, err := s.disp.Dispatch(r.Context(), dispatcher.Event{
		Command: command,
		Site:    mux.Vars(r)["site"],
		Payload: payload,
	})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, okStatus, result)
}

func (s *Server) commandStatus(command string, okStatus int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			respondError(w, http.StatusBadRequest, "failed to read body")
			return
		}
		s.dispatch(w, r, command, body, okStatus)
	}
}

func (s *Server) command(command string) http.HandlerFunc {
	return s.commandStatus(command, http.StatusOK)
}

func (s *Server) commandCreated(command string) http.HandlerFunc {
	return s.commandStatus(command, http.StatusCreated)
}

func (s *Server) commandWithID(command string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := json.Marshal(mux.Vars(r)["id"])
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid id")
			return
		}
		s.dispatch(w, r, command, payload, http.StatusOK)
	}
}

// Read endpoints

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, struct {
		Status   string   `json:"status"`
		Commands []string `json:"commands"`
	}{"healthy", s.disp.Commands()})
}

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	e := s.svc.Engine()
	type siteInfo struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	ids := e.Sites()
	out := make([]siteInfo, len(ids))
	for i, id := range ids {
		out[i] = siteInfo{ID: id, State: e.State(id).String()}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Engine().CurrentSnapshot(mux.Vars(r)["site"])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// Summary is the dashboard header derived from the latest snapshot.
type Summary struct {
	Site          string           `json:"site"`
	Sequence      uint64           `json:"sequence"`
	SafetyScore   int              `json:"safetyScore"`
	SafetyBand    string           `json:"safetyBand"`
	RiskLevel     core.RiskLevel   `json:"riskLevel"`
	HazardState   core.HazardState `json:"hazardState"`
	ActiveShift   string           `json:"activeShift"`
	Vehicles      int              `json:"vehicles"`
	Overspeeding  int              `json:"overspeeding"`
	Workers       int              `json:"workers"`
	FatigueAlerts int              `json:"fatigueAlerts"`
	GeneratedAt   time.Time        `json:"generatedAt"`
}

// NewSummary condenses a snapshot into dashboard counters.
func NewSummary(snap core.OperationalSnapshot) Summary {
	fatigued := 0
	for _, level := range snap.WorkerFatigue {
		if level != core.FatigueSafe {
			fatigued++
		}
	}
	return Summary{
		Site:          snap.SiteID,
		Sequence:      snap.Sequence,
		SafetyScore:   snap.AggregateRisk.SafetyScore,
		SafetyBand:    risk.Band(snap.AggregateRisk.SafetyScore),
		RiskLevel:     snap.AggregateRisk.Level,
		HazardState:   snap.HazardState,
		ActiveShift:   snap.ActiveShift,
		Vehicles:      len(snap.Vehicles),
		Overspeeding:  len(snap.Overspeed),
		Workers:       len(snap.WorkerFatigue),
		FatigueAlerts: fatigued,
		GeneratedAt:   snap.GeneratedAt,
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Engine().CurrentSnapshot(mux.Vars(r)["site"])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, NewSummary(snap))
}

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := s.svc.Vehicles(mux.Vars(r)["site"])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, vehicles)
}

func (s *Server) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	v, err := s.svc.Vehicle(vars["site"], vars["id"])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := s.svc.Workers(r.Context(), mux.Vars(r)["site"])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, workers)
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.svc.Engine().Config().HistoryWindow
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	records, err := s.svc.History(r.Context(), mux.Vars(r)["site"], limit)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}
