package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	ferrors "git.home.luguber.info/inful/linkscan/internal/foundation/errors"
	"git.home.luguber.info/inful/linkscan/internal/model"
)

// FixRequest is the body of POST /api/findings/{id}/fix.
type FixRequest struct {
	Action         model.FixAction `json:"action"`
	ReplacementURL string          `json:"replacement_url,omitempty"`
}

// ExportResponse carries the broken findings in export column order.
type ExportResponse struct {
	ScanID model.ScanID      `json:"scan_id,omitempty"`
	Rows   []model.ExportRow `json:"rows"`
}

func (s *Server) handleListFindings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category, err := model.ParseFindingCategory(q.Get("status"))
	if err != nil {
		s.Error(w, r, ferrors.WrapError(err, ferrors.CategoryValidation, "invalid status filter").Build())
		return
	}
	filter := model.FindingFilter{Category: category, Search: q.Get("search")}
	if filter.ScanID, err = optionalScanID(q.Get("scan_id")); err != nil {
		s.Error(w, r, err)
		return
	}
	if filter.Page, err = optionalInt(q.Get("page"), "page"); err != nil {
		s.Error(w, r, err)
		return
	}
	if filter.PerPage, err = optionalInt(q.Get("per_page"), "per_page"); err != nil {
		s.Error(w, r, err)
		return
	}
	filter = filter.Normalize()

	rows, total, err := s.store.ListFindings(r.Context(), filter)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, model.NewFindingPage(rows, total, filter))
}

func (s *Server) handleFixFinding(w http.ResponseWriter, r *http.Request) {
	id, err := positiveID(chi.URLParam(r, "id"))
	if err != nil {
		s.Error(w, r, err)
		return
	}
	var body FixRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body); err != nil {
		s.Error(w, r, ferrors.WrapError(err, ferrors.CategoryValidation, "invalid request body").Build())
		return
	}
	flags, err := model.FlagsFor(body.Action, body.ReplacementURL)
	if err != nil {
		s.Error(w, r, ferrors.WrapError(err, ferrors.CategoryValidation, "invalid fix request").Build())
		return
	}
	if err := s.store.SetFindingFlags(r.Context(), model.FindingID(id), flags); err != nil {
		s.Error(w, r, err)
		return
	}
	finding, err := s.store.GetFinding(r.Context(), model.FindingID(id))
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, finding)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	scanID, err := optionalScanID(r.URL.Query().Get("scan_id"))
	if err != nil {
		s.Error(w, r, err)
		return
	}
	findings, err := s.store.BrokenFindings(r.Context(), scanID)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	rows := make([]model.ExportRow, len(findings))
	for i, f := range findings {
		rows[i] = f.ExportRow()
	}
	s.Success(w, http.StatusOK, ExportResponse{ScanID: scanID, Rows: rows})
}

func optionalScanID(raw string) (model.ScanID, error) {
	if raw == "" {
		return 0, nil
	}
	id, err := positiveID(raw)
	return model.ScanID(id), err
}

func optionalInt(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, ferrors.ValidationError(field + " must be a positive integer").Build()
	}
	return n, nil
}
