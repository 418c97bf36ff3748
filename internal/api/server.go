// Package api serves the analysis reports of fitted models over read-only HTTP endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"goglm/app"
	"goglm/domain/core"
	"goglm/internal/errors"
)

// Server routes requests to the analysis service of the addressed model
type Server struct {
	router   *chi.Mux
	services map[core.ModelID]*app.AnalysisService
	log      zerolog.Logger
}

// NewServer creates the router. prometheus may be nil to leave /metrics/prometheus unmounted.
func NewServer(services []*app.AnalysisService, prometheus http.Handler, logger zerolog.Logger) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		services: make(map[core.ModelID]*app.AnalysisService, len(services)),
		log:      logger,
	}
	for _, svc := range services {
		s.services[svc.ModelID()] = svc
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/models", s.handleModels)
	s.router.Route("/models/{id}", func(r chi.Router) {
		r.Get("/features", s.handleFeatures)
		r.Get("/base-values", s.handleBaseValues)
		r.Get("/relativities", s.handleRelativities)
		r.Get("/interactions", s.handleInteractions)
		r.Get("/variable-level-stats", s.handleVariableLevelStats)
		r.Get("/lift", s.handleLift)
		r.Get("/univariate/{variable}", s.handleUnivariate)
		r.Get("/metrics", s.handleMetrics)
	})
	if prometheus != nil {
		s.router.Handle("/metrics/prometheus", prometheus)
	}
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request served")
	})
}

func (s *Server) service(r *http.Request) (*app.AnalysisService, error) {
	id := core.ModelID(chi.URLParam(r, "id"))
	svc, ok := s.services[id]
	if !ok {
		return nil, errors.NotFound("model " + id.String())
	}
	return svc, nil
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	ids := make([]string, 0, len(s.services))
	for id := range s.services {
		ids = append(ids, id.String())
	}
	sort.Strings(ids)
	writeJSON(w, http.StatusOK, map[string]any{"models": ids})
}

// errorBody is the JSON shape of every failed response
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.Classify(err)
	status := errors.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Str("code", code).Msg("request failed")
	}
	var body errorBody
	body.Error.Code = code
	body.Error.Message = err.Error()
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
