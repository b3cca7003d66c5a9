// File: internal/server/handlers.go
package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bbox-cli/internal/rowsource"
	"github.com/xkilldash9x/bbox-cli/internal/service"
	"github.com/xkilldash9x/bbox-cli/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// Handlers holds the HTTP handlers for the service.
type Handlers struct {
	backend Backend
	log     *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(backend Backend, logger *zap.Logger) *Handlers {
	return &Handlers{backend: backend, log: logger}
}

// RegisterRoutes sets up the routing.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.HandleHealthCheck)

	r.Route("/get-bboxes", func(r chi.Router) {
		r.Get("/start", h.HandleStart)
		r.Post("/next", h.HandleNext)
		r.Get("/next", h.HandleNext)
	})
}

// HandleHealthCheck is a simple handler to confirm the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleStart opens a session from query parameters.
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hostname := q.Get("hostname")
	if hostname == "" {
		hostname = q.Get("domain")
	}
	intersections, err := parseBool(q.Get("intersections"))
	if err != nil {
		h.respondWithError(w, r, &service.ValidationError{Field: "intersections", Message: err.Error()})
		return
	}

	resp, err := h.backend.Start(r.Context(), service.StartRequest{
		Hostname:      hostname,
		StartDate:     q.Get("startdate"),
		EndDate:       q.Get("enddate"),
		Checkpoint:    q.Get("checkpoint"),
		DomainKey:     q.Get("domainkey"),
		Intersections: intersections,
	})
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, resp)
}

// HandleNext resumes a session from a JSON body or from query parameters.
func (h *Handlers) HandleNext(w http.ResponseWriter, r *http.Request) {
	req, err := decodeNext(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	resp, err := h.backend.Next(r.Context(), req)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, resp)
}

func decodeNext(r *http.Request) (service.NextRequest, error) {
	var req service.NextRequest
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return req, &service.ValidationError{Field: "body", Message: fmt.Sprintf("exceeds %d bytes", tooLarge.Limit)}
			}
			return req, &service.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}
		}
		return req, nil
	}

	q := r.URL.Query()
	req.SessionID = q.Get("sessionId")
	if c := q.Get("cursor"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil {
			return req, &service.ValidationError{Field: "cursor", Message: "must be an integer"}
		}
		req.Cursor = &n
	}
	intersections, err := parseBool(q.Get("intersections"))
	if err != nil {
		return req, &service.ValidationError{Field: "intersections", Message: err.Error()}
	}
	req.Intersections = intersections
	return req, nil
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return false, fmt.Errorf("%q is not a boolean", s)
	}
	return b, nil
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		vErr        *service.ValidationError
		upstreamErr *rowsource.UpstreamError
	)
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.As(err, &upstreamErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondWithError sends a standardized JSON error response.
func (h *Handlers) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := ErrorResponse{Error: err.Error()}

	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		body.Field = vErr.Field
	}

	fields := []zap.Field{
		zap.Error(err),
		zap.Int("status", status),
		zap.String("request_id", middleware.GetReqID(r.Context())),
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", fields...)
	} else {
		h.log.Info("Request rejected", fields...)
	}
	h.respondWithJSON(w, status, body)
}

// respondWithJSON sends data as a JSON body.
func (h *Handlers) respondWithJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
