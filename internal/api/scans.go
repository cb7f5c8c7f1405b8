package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	ferrors "git.home.luguber.info/inful/linkscan/internal/foundation/errors"
	"git.home.luguber.info/inful/linkscan/internal/model"
	"git.home.luguber.info/inful/linkscan/internal/progress"
)

// StartScanRequest is the body of POST /api/scans. Omitted fields take the
// server defaults.
type StartScanRequest struct {
	Depth           *int  `json:"scan_depth,omitempty"`
	MaxPages        *int  `json:"max_pages,omitempty"`
	IncludeExternal *bool `json:"include_external,omitempty"`
}

// ScanStateResponse acknowledges a lifecycle change.
type ScanStateResponse struct {
	ScanID model.ScanID     `json:"scan_id"`
	Status model.ScanStatus `json:"status"`
}

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var body StartScanRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		s.Error(w, r, ferrors.WrapError(err, ferrors.CategoryValidation, "invalid request body").Build())
		return
	}

	req := s.defaults
	if body.Depth != nil {
		req.Depth = model.Depth(*body.Depth)
	}
	if body.MaxPages != nil {
		req.MaxPages = *body.MaxPages
	}
	if body.IncludeExternal != nil {
		req.IncludeExternal = *body.IncludeExternal
	}
	if !req.Depth.Valid() {
		s.Error(w, r, ferrors.ValidationError("scan_depth must be between 1 and 4").
			WithContext("scan_depth", int(req.Depth)).Build())
		return
	}
	if req.MaxPages < 0 {
		s.Error(w, r, ferrors.ValidationError("max_pages must not be negative").Build())
		return
	}

	id, err := s.scans.Start(r.Context(), req)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusAccepted, ScanStateResponse{ScanID: id, Status: model.StatusRunning})
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ScanFilter{Status: model.ScanStatus(q.Get("status")), Limit: 50}
	if filter.Status != "" && !filter.Status.Valid() {
		s.Error(w, r, ferrors.ValidationError("unknown scan status").WithContext("status", q.Get("status")).Build())
		return
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.Error(w, r, ferrors.ValidationError("limit must be a positive integer").Build())
			return
		}
		filter.Limit = n
	}

	scans, err := s.store.ListScans(r.Context(), filter)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, scans)
}

func (s *Server) handleCurrentScan(w http.ResponseWriter, r *http.Request) {
	id, ok := s.scans.Current()
	if !ok {
		s.Error(w, r, progress.ErrNoScanInProgress)
		return
	}
	s.Success(w, http.StatusOK, ScanStateResponse{ScanID: id, Status: model.StatusRunning})
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	id, err := scanIDParam(r)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	rec, err := s.store.GetScan(r.Context(), id)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, rec)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id, err := scanIDParam(r)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	snap, err := s.scans.Progress(r.Context(), id)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, snap)
}

func (s *Server) handleStopScan(w http.ResponseWriter, r *http.Request) {
	id, err := scanIDParam(r)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	if err := s.scans.Stop(r.Context(), id); err != nil {
		s.Error(w, r, err)
		return
	}
	rec, err := s.store.GetScan(r.Context(), id)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, ScanStateResponse{ScanID: id, Status: rec.Status})
}

func scanIDParam(r *http.Request) (model.ScanID, error) {
	id, err := positiveID(chi.URLParam(r, "id"))
	return model.ScanID(id), err
}

func positiveID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, ferrors.ValidationError("invalid id").WithContext("id", raw).Build()
	}
	return id, nil
}
