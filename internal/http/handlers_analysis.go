package http

import (
	"net/http"
	"strings"
	"time"

	"kakeibo/internal/analytics"
	"kakeibo/internal/compare"
	"kakeibo/internal/core"
	applog "kakeibo/internal/log"
	"kakeibo/internal/sheets"
)

type (
	analysisResponse struct {
		Month string `json:"month"`
		analytics.Insights
	}

	compareResponse struct {
		Month string `json:"month"`
		With  string `json:"with"`
		compare.Result
	}

	exportResponse struct {
		Month string `json:"month"`
		sheets.ExportResult
	}
)

// handleAnalysis evaluates a month at ?date= or at the month's natural
// reference date.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var ref time.Time
	if v := strings.TrimSpace(r.URL.Query().Get("date")); v != "" {
		if ref, err = core.ParseDate(v); err != nil {
			s.writeError(w, r, err)
			return
		}
	} else if ref, err = analytics.ReferenceDate(key, s.now()); err != nil {
		s.writeError(w, r, err)
		return
	}

	op, ok := s.open(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Body(analysisResponse{
		Month:    key,
		Insights: analytics.Summarize(op.Store.Month(key), ref),
	}).Write(w)
}

// handleCompare compares the month with ?with=, defaulting to the newest
// other month of the project.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	with, err := optionalMonth(r, "with")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	op, ok := s.open(w, r)
	if !ok {
		return
	}
	if with == "" {
		with = compare.DefaultCompareMonth(op.Store.AvailableMonths(), key)
	}
	NewJSONResponse().Body(compareResponse{
		Month:  key,
		With:   with,
		Result: compare.CompareMonths(op.Store.Month(key), op.Store.Month(with)),
	}).Write(w)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	op, ok := s.open(w, r)
	if !ok {
		return
	}
	res, err := s.exporter.ExportMonth(r.Context(), op.Project, key, op.Store.Month(key))
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Month export failed",
			applog.FieldComponent, applog.ComponentSheets,
			applog.FieldProjectID, op.Project.ID,
			applog.FieldMonth, key,
			applog.FieldError, err)
		ErrorResponse(http.StatusBadGateway, "export failed").Write(w)
		return
	}
	NewJSONResponse().Body(exportResponse{Month: key, ExportResult: res}).Write(w)
}
