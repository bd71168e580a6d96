// Package rpc exposes the lending engine over HTTP.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orbitlen/native/lending"
	"orbitlen/native/oracle"
	"orbitlen/observability"
)

const requestLimit = 1 << 20 // 1 MiB

// Server wires the lending engine to HTTP routes.
type Server struct {
	engine  *lending.Engine
	log     *slog.Logger
	metrics operationMetrics
}

type operationMetrics interface {
	Observe(operation string, err error, duration time.Duration)
	ObserveLiquidation()
	SetBankGauges(bank string, utilization, vault float64)
}

// NewServer constructs a server around the engine.
func NewServer(engine *lending.Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: engine, log: log, metrics: observability.LendingMetrics()}
}

// Router builds the HTTP handler with all lending routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/accounts", s.createAccount)
		r.Get("/accounts/{owner}", s.getAccount)
		r.Get("/accounts/{owner}/health", s.getAccountHealth)

		r.Post("/banks", s.createBank)
		r.Get("/banks", s.listBanks)
		r.Get("/banks/{assetID}", s.getBank)
		r.Post("/banks/{assetID}/rates", s.updateRates)

		r.Post("/deposit", s.deposit)
		r.Post("/withdraw", s.withdraw)
		r.Post("/borrow", s.borrow)
		r.Post("/repay", s.repay)
		r.Post("/liquidate", s.liquidate)
		r.Post("/external-deposit", s.externalDeposit)
	})
	return r
}

func (s *Server) decode(r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(nil, r.Body, requestLimit)
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("decode request: trailing data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		s.log.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, lending.ErrInvalidAmount),
		errors.Is(err, lending.ErrInvalidConfig),
		errors.Is(err, lending.ErrSameBank):
		return http.StatusBadRequest
	case errors.Is(err, lending.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, lending.ErrNotFound),
		errors.Is(err, oracle.ErrUnknownFeed):
		return http.StatusNotFound
	case errors.Is(err, lending.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, lending.ErrInsufficientBalance),
		errors.Is(err, lending.ErrInsufficientLiquidity),
		errors.Is(err, lending.ErrInsufficientSlots),
		errors.Is(err, lending.ErrInsolvent),
		errors.Is(err, lending.ErrNotLiquidatable),
		errors.Is(err, lending.ErrNoCollateralRemaining),
		errors.Is(err, lending.ErrIllegalUtilization):
		return http.StatusUnprocessableEntity
	case errors.Is(err, oracle.ErrStaleFeed),
		errors.Is(err, oracle.ErrInvalidPrice),
		errors.Is(err, lending.ErrVenueNotConfigured):
		return http.StatusServiceUnavailable
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case isDecodeError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var msg string
	if err != nil {
		msg = err.Error()
	}
	return len(msg) >= 14 && msg[:14] == "decode request"
}
