package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"goglm/domain/dataset"
	"goglm/internal/errors"
	"goglm/internal/lift"
)

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc.Features())
}

func (s *Server) handleBaseValues(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := svc.BaseValueRows(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleRelativities(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := svc.Relativities(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := svc.InteractionRelativities(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleVariableLevelStats(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := svc.VariableLevelStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLift(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	partition, err := partitionParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bins, err := intParam(r, "bins", svc.LiftBins())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := svc.LiftChart(r.Context(), bins, partition)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleUnivariate(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	partition, err := partitionParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := univariateParams(r, svc.UnivariateDefaults())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := svc.Univariate(r.Context(), chi.URLParam(r, "variable"), partition, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	partition, err := partitionParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := svc.Metrics(r.Context(), partition)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// partitionParam reads ?dataset=, defaulting to train
func partitionParam(r *http.Request) (dataset.Partition, error) {
	raw := r.URL.Query().Get("dataset")
	p, ok := dataset.ParsePartition(raw)
	if !ok {
		return "", errors.InvalidInput(fmt.Sprintf("dataset must be train or test, got %q", raw))
	}
	return p, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.InvalidInput(fmt.Sprintf("%s must be a positive integer, got %q", name, raw))
	}
	return n, nil
}

func univariateParams(r *http.Request, def lift.UnivariateOptions) (lift.UnivariateOptions, error) {
	opts := def
	q := r.URL.Query()

	bins, err := intParam(r, "bins", def.NumericBins)
	if err != nil {
		return opts, err
	}
	opts.NumericBins = bins

	maxLevels, err := intParam(r, "max_levels", def.MaxLevels)
	if err != nil {
		return opts, err
	}
	opts.MaxLevels = maxLevels

	if raw := q.Get("rescale"); raw != "" {
		mode, err := lift.ParseRescale(raw)
		if err != nil {
			return opts, errors.WithCode(errors.CodeInvalidInput, err)
		}
		opts.Rescale = mode
	}

	switch raw := lift.Binning(q.Get("binning")); raw {
	case "":
	case lift.BinningEqualWidth, lift.BinningQuantile:
		opts.Binning = raw
	default:
		return opts, errors.InvalidInput(fmt.Sprintf("binning must be %s or %s, got %q", lift.BinningEqualWidth, lift.BinningQuantile, raw))
	}
	return opts, nil
}
