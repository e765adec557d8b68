// Package server exposes the processing pipeline over HTTP. It owns
// nothing the pipeline needs: registry, gate, and processor are built
// at startup and passed in.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/moegate-ai/moegate/internal/config"
	"github.com/moegate-ai/moegate/internal/expert"
	"github.com/moegate-ai/moegate/internal/pipeline"
	"github.com/moegate-ai/moegate/internal/redact"
	"github.com/moegate-ai/moegate/internal/router"
)

// Server wraps the HTTP surface for moegate.
type Server struct {
	mux        *http.ServeMux
	cfg        *config.Config
	proc       *pipeline.Processor
	store      *requestStore
	experts    []string
	gateSource string
	started    time.Time
}

// New creates a server with all routes registered. gateSource is a
// human-readable note about where the gate weights came from
// ("initialized" or "loaded <path>"), surfaced on the health endpoint.
func New(cfg *config.Config, proc *pipeline.Processor, registry *expert.Registry, gateSource string) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		cfg:        cfg,
		proc:       proc,
		store:      newRequestStore(time.Duration(cfg.Server.RequestTTLMinutes) * time.Minute),
		experts:    registry.Names(),
		gateSource: gateSource,
		started:    time.Now(),
	}

	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/process", s.handleProcess)
	s.mux.HandleFunc("/process/sync", s.handleProcessSync)
	s.mux.HandleFunc("/requests/", s.handleRequestStatus)

	return s
}

// Handler returns the route mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	redact.Logf("moegate running on %s (experts: %s)", addr, strings.Join(s.experts, ", "))
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSeconds) * time.Second,
	}
	return srv.ListenAndServe()
}

// --- Wire types ---

type processRequest struct {
	Text    string         `json:"text"`
	Task    string         `json:"task"`
	Options map[string]any `json:"options"`
}

type processResponse struct {
	Result         string             `json:"result"`
	ExpertUsed     string             `json:"expert_used"`
	Confidence     float32            `json:"confidence"`
	ProcessingTime float64            `json:"processing_time"`
	InputFeatures  map[string]float32 `json:"input_features,omitempty"`
	RequestID      string             `json:"request_id,omitempty"`
}

type healthResponse struct {
	Status        string   `json:"status"`
	ModelsLoaded  bool     `json:"models_loaded"`
	Experts       []string `json:"experts"`
	GateSource    string   `json:"gate_source"`
	UptimeSeconds float64  `json:"uptime_seconds"`
}

type apiErrorBody struct {
	Error apiErrorDetail `json:"error"`
}

type apiErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeAPIError(w http.ResponseWriter, status int, message, typ string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiErrorBody{
		Error: apiErrorDetail{
			Message: message,
			Type:    typ,
		},
	})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:        "healthy",
		ModelsLoaded:  s.proc != nil,
		Experts:       s.experts,
		GateSource:    s.gateSource,
		UptimeSeconds: time.Since(s.started).Seconds(),
	})
}

// handleProcess is the non-blocking entry point: the pipeline runs in
// its own goroutine and the handler waits on the outcome channel or the
// request context, whichever finishes first.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	s.process(w, r, true)
}

// handleProcessSync is the blocking entry point with identical
// request/response semantics.
func (s *Server) handleProcessSync(w http.ResponseWriter, r *http.Request) {
	s.process(w, r, false)
}

func (s *Server) process(w http.ResponseWriter, r *http.Request, async bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxRequestBodyBytes)

	var reqBody processRequest
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAPIError(w, http.StatusRequestEntityTooLarge, "request body too large", "invalid_request_error")
			return
		}
		writeAPIError(w, http.StatusBadRequest, "invalid JSON body", "invalid_request_error")
		return
	}

	requestID := newRequestID()
	s.store.Start(requestID, reqBody.Task)

	req := pipeline.Request{
		Text:      reqBody.Text,
		Task:      expert.Task(reqBody.Task),
		Options:   pipeline.Options(reqBody.Options),
		RequestID: requestID,
	}

	ctx := r.Context()

	var (
		res *pipeline.Result
		err error
	)
	if async {
		select {
		case outcome := <-s.proc.ProcessAsync(ctx, req):
			res, err = outcome.Result, outcome.Err
		case <-ctx.Done():
			// Caller abandoned the request; the pipeline goroutine
			// winds down on its own and the partial result is dropped.
			s.store.Fail(requestID, "canceled")
			return
		}
	} else {
		res, err = s.proc.Process(ctx, req)
	}

	w.Header().Set("X-Moegate-Request-Id", requestID)

	if err != nil {
		s.writeProcessError(w, requestID, err)
		return
	}

	s.store.Complete(requestID, res.ExpertUsed, res.Confidence)

	w.Header().Set("Content-Type", "application/json")
	if encErr := json.NewEncoder(w).Encode(processResponse{
		Result:         res.Result,
		ExpertUsed:     res.ExpertUsed,
		Confidence:     res.Confidence,
		ProcessingTime: res.ProcessingTime.Seconds(),
		InputFeatures:  res.Features.Map(),
		RequestID:      requestID,
	}); encErr != nil {
		redact.Logf("failed to write process response: %v", encErr)
	}
}

func (s *Server) writeProcessError(w http.ResponseWriter, requestID string, err error) {
	var (
		unknown     *router.UnknownExpertError
		unsupported *expert.UnsupportedTaskError
		invocation  *expert.InvocationError
	)
	switch {
	case errors.As(err, &unknown):
		s.store.Fail(requestID, "unknown_expert")
		writeAPIError(w, http.StatusNotFound, err.Error(), "unknown_expert")
	case errors.As(err, &unsupported):
		s.store.Fail(requestID, "unsupported_task")
		writeAPIError(w, http.StatusUnprocessableEntity, err.Error(), "unsupported_task")
	case errors.As(err, &invocation):
		s.store.Fail(requestID, "expert_error")
		redact.Logf("expert invocation failed: %v", err)
		writeAPIError(w, http.StatusBadGateway, err.Error(), "expert_error")
	default:
		s.store.Fail(requestID, "internal_error")
		redact.Logf("process failed: %v", err)
		writeAPIError(w, http.StatusInternalServerError, "internal error", "internal_error")
	}
}

func (s *Server) handleRequestStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/requests/")
	if id == "" || strings.Contains(id, "/") {
		writeAPIError(w, http.StatusBadRequest, "missing request id", "invalid_request_error")
		return
	}

	entry, ok := s.store.Get(id)
	if !ok {
		writeAPIError(w, http.StatusNotFound, fmt.Sprintf("request %q not found", id), "not_found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		RequestID  string  `json:"request_id"`
		Status     string  `json:"status"`
		Task       string  `json:"task,omitempty"`
		ExpertUsed string  `json:"expert_used,omitempty"`
		Confidence float32 `json:"confidence,omitempty"`
	}{
		RequestID:  id,
		Status:     entry.status,
		Task:       entry.task,
		ExpertUsed: entry.expert,
		Confidence: entry.confidence,
	})
}
