package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/me/wftemplates/pkg/model"
)

func (s *Server) handleListLoads(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts, apiErr := listOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	if s.store == nil {
		respondList(w, reqID, []*model.LoadRun{}, &model.Pagination{Limit: opts.Limit, Offset: opts.Offset})
		return
	}

	runs, total, err := s.store.ListLoads(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if runs == nil {
		runs = []*model.LoadRun{}
	}

	respondList(w, reqID, runs, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+opts.Limit < total,
	})
}

func (s *Server) handleGetLoad(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if s.store == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("load", id))
		return
	}
	run, err := s.store.GetLoad(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("load", id))
		return
	}
	respondOK(w, reqID, run)
}

// listOptions reads ?limit= and ?offset=, clamped to the allowed range.
func listOptions(r *http.Request) (model.ListOptions, *model.APIError) {
	opts := model.DefaultListOptions()
	q := r.URL.Query()
	var details []model.FieldError
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			details = append(details, model.FieldError{Field: "limit", Message: "must be an integer"})
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			details = append(details, model.FieldError{Field: "offset", Message: "must be an integer"})
		}
		opts.Offset = n
	}
	if len(details) > 0 {
		return opts, &model.APIError{Code: model.ErrBadRequest, Message: "invalid pagination", Details: details}
	}
	opts.Clamp()
	return opts, nil
}
