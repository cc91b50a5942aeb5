// Package httpapi exposes the climate entity over a small JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/fujitsud/internal/adapter"
	"github.com/dokzlo13/fujitsud/internal/climate"
)

// SourceHTTP tags requests that arrived over the API.
const SourceHTTP = "http"

const maxBodySize = 64 << 10

// Controller accepts climate commands.
type Controller interface {
	Control(ctx context.Context, req adapter.Request) (adapter.Result, error)
	State() adapter.State
	Traits() adapter.Traits
}

// ControlRequest is the POST /control body. Absent fields are left unchanged.
type ControlRequest struct {
	ID          string   `json:"id,omitempty"`
	Mode        *string  `json:"mode,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	FanMode     *string  `json:"fan_mode,omitempty"`
	SwingMode   *string  `json:"swing_mode,omitempty"`
	SwingStep   *uint8   `json:"swing_step,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves GET /state, GET /traits and POST /control.
type Server struct {
	addr       string
	ctrl       Controller
	limiter    *rate.Limiter
	httpServer *http.Server
}

// NewServer creates a new API server. commandRate is the sustained number of
// control requests per second; zero disables limiting.
func NewServer(host string, port int, ctrl Controller, commandRate float64) *Server {
	s := &Server{
		addr: fmt.Sprintf("%s:%d", host, port),
		ctrl: ctrl,
	}
	if commandRate > 0 {
		burst := int(commandRate)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(commandRate), burst)
	}
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /traits", s.handleTraits)
	mux.HandleFunc("POST /control", s.handleControl)
	return mux
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting control API server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Control API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

func (s *Server) handleTraits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Traits())
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limited"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return
	}
	defer r.Body.Close()

	var payload ControlRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}

	req, err := payload.toRequest()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	log.Debug().
		Str("remote", r.RemoteAddr).
		Interface("fields", req.Fields()).
		Msg("Received control request")

	res, err := s.ctrl.Control(r.Context(), req)
	switch {
	case errors.Is(err, adapter.ErrUnsupportedMode):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	status := http.StatusAccepted
	if !res.Dropped.Empty() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

func (c ControlRequest) toRequest() (adapter.Request, error) {
	req := adapter.Request{Source: SourceHTTP, Temperature: c.Temperature, SwingStep: c.SwingStep}

	if c.ID != "" {
		id, err := uuid.Parse(c.ID)
		if err != nil {
			return req, fmt.Errorf("invalid id: %w", err)
		}
		req.ID = id
	}
	if c.Mode != nil {
		m, err := climate.ParseHVACMode(*c.Mode)
		if err != nil {
			return req, err
		}
		req.Mode = &m
	}
	if c.FanMode != nil {
		f, err := climate.ParseFanMode(*c.FanMode)
		if err != nil {
			return req, err
		}
		req.FanMode = &f
	}
	if c.SwingMode != nil {
		sw, err := climate.ParseSwingMode(*c.SwingMode)
		if err != nil {
			return req, err
		}
		req.SwingMode = &sw
	}
	if len(req.Fields()) == 0 {
		return req, errors.New("no fields to change")
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
