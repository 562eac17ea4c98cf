package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flowsider/etfflow/internal/flows"
	"github.com/flowsider/etfflow/internal/observability"
	"github.com/flowsider/etfflow/internal/parser"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListFlows serves the canonical long-form dataset with optional
// in-memory filters: ?etf=IBIT,FBTC&from=2024-01-11&to=2024-02-01&limit=100
func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	ds, err := s.cache.Get(r.Context())
	if err != nil {
		s.respondFetchFailure(w, err)
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	items := ds.Select(filter)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":         items,
		"total":         len(items),
		"source":        ds.Source,
		"fetched_at":    ds.FetchedAt,
		"coerced_cells": ds.CoercedCells,
		"dropped_rows":  ds.DroppedRows,
	})
}

// handleFlowsCSV streams the dataset as a file download, byte-for-byte
// derived from the records with no extra transformation. The same filters as
// the JSON listing apply.
func (s *Server) handleFlowsCSV(w http.ResponseWriter, r *http.Request) {
	ds, err := s.cache.Get(r.Context())
	if err != nil {
		s.respondFetchFailure(w, err)
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="etf-flows.csv"`)
	if err := flows.WriteCSV(w, ds.Select(filter)); err != nil {
		s.logger.Error("writing csv response", "error", err)
	}
}

func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	ds, err := s.cache.Get(r.Context())
	if err != nil {
		s.respondFetchFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"instruments": ds.Instruments(),
		"source":      ds.Source,
		"fetched_at":  ds.FetchedAt,
	})
}

// handleRefresh invalidates the cache and fetches immediately, so the
// dashboard's refresh button surfaces a typed failure instead of quietly
// serving the old entry.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.cache.Invalidate()
	ds, err := s.cache.Get(r.Context())
	if err != nil {
		s.respondFetchFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"records":    len(ds.Records),
		"source":     ds.Source,
		"fetched_at": ds.FetchedAt,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, observability.Snapshot())
}

// respondFetchFailure maps pipeline errors onto user-visible messages. An
// exhausted variant chain is an upstream problem, not ours: 502 with the last
// error so the failure is actionable.
func (s *Server) respondFetchFailure(w http.ResponseWriter, err error) {
	var exhausted *parser.ExhaustedError
	if errors.As(err, &exhausted) {
		s.logger.Error("all source variants exhausted", "attempts", exhausted.Attempts, "error", exhausted.Last)
		respondError(w, http.StatusBadGateway, "Upstream flows source unavailable: "+exhausted.Error())
		return
	}
	s.logger.Error("fetching flows failed", "error", err)
	respondError(w, http.StatusInternalServerError, "Failed to fetch flows: "+err.Error())
}

func parseFilter(r *http.Request) (flows.Filter, error) {
	q := r.URL.Query()
	var f flows.Filter

	if v := q.Get("etf"); v != "" {
		f.Instruments = strings.Split(v, ",")
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, errors.New("invalid 'from' date, want YYYY-MM-DD")
		}
		f.From = t.UTC()
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, errors.New("invalid 'to' date, want YYYY-MM-DD")
		}
		f.To = t.UTC()
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("invalid 'limit', want a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}
