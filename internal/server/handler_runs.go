package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/ossim/pkg/model"
)

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.source == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, unavailable("active run"))
		return
	}
	snap := s.source.Latest()
	if snap == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, unavailable("process table"))
		return
	}
	respondOK(w, reqID, snap)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.store == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, unavailable("run history"))
		return
	}

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	runs, total, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		respondError(w, reqID, http.StatusInternalServerError, internalError(err))
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}
	respondList(w, reqID, runs, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+len(runs) < total,
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	respondOK(w, reqID, run)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	snaps, err := s.store.ListSnapshots(r.Context(), run.ID)
	if err != nil {
		s.logger.Error("list snapshots", "run_id", run.ID, "error", err)
		respondError(w, reqID, http.StatusInternalServerError, internalError(err))
		return
	}
	if snaps == nil {
		snaps = []model.TableSnapshot{}
	}
	respondOK(w, reqID, snaps)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	events, err := s.store.ListEvents(r.Context(), run.ID)
	if err != nil {
		s.logger.Error("list events", "run_id", run.ID, "error", err)
		respondError(w, reqID, http.StatusInternalServerError, internalError(err))
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	respondOK(w, reqID, events)
}

// lookupRun resolves the {id} URL parameter, writing the error response
// itself when the run cannot be returned.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*model.Run, bool) {
	reqID := RequestIDFromContext(r.Context())
	if s.store == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, unavailable("run history"))
		return nil, false
	}
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.logger.Error("get run", "run_id", id, "error", err)
		respondError(w, reqID, http.StatusInternalServerError, internalError(err))
		return nil, false
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("run", id))
		return nil, false
	}
	return run, true
}

func parseListOptions(r *http.Request) (model.ListOptions, *model.APIError) {
	opts := model.DefaultListOptions()
	var details []model.FieldError
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &opts.Limit}, {"offset", &opts.Offset}} {
		v := r.URL.Query().Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			details = append(details, model.FieldError{Field: p.name, Message: "must be an integer"})
			continue
		}
		*p.dst = n
	}
	if v := r.URL.Query().Get("state"); v != "" {
		st, ok := model.ParseRunState(v)
		if !ok {
			details = append(details, model.FieldError{Field: "state", Message: "unknown run state " + v})
		}
		opts.State = st
	}
	if len(details) > 0 {
		return opts, &model.APIError{Code: model.ErrValidation, Message: "invalid query parameters", Details: details}
	}
	opts.Clamp()
	return opts, nil
}
