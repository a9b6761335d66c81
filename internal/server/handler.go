package server

import (
	"encoding/json"
	"net/http"

	"github.com/ragbench/rag-bench/internal/pkg/errors"
	"github.com/ragbench/rag-bench/internal/validate"
)

// ValidateRequest asks for a one-off validation of a prediction file
// against a query file. The answer schema may be overridden per request.
type ValidateRequest struct {
	QueryPath      string `json:"query_path"`
	PredictionPath string `json:"prediction_path"`
	Language       string `json:"language,omitempty"`
	AnswerField    string `json:"answer_field,omitempty"`
	AnswerShape    string `json:"answer_shape,omitempty"`
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("POST /v1/validate", s.handleValidate)
	mux.HandleFunc("GET /v1/reports", s.handleListReports)
	mux.HandleFunc("GET /v1/reports/{language}", s.handleGetReport)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.cfg.Version,
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.InvalidRequestError(err.Error()))
		return
	}

	if req.QueryPath == "" || req.PredictionPath == "" {
		errors.WriteError(w, errors.InvalidRequestError("query_path and prediction_path are required"))
		return
	}

	v := *s.validator
	if req.AnswerField != "" {
		v.AnswerField = req.AnswerField
	}
	if req.AnswerShape != "" {
		shape, err := validate.ParseShape(req.AnswerShape)
		if err != nil {
			errors.WriteError(w, errors.InvalidRequestError(err.Error()))
			return
		}
		v.AnswerShape = shape
	}

	rep, err := v.CheckFiles(req.QueryPath, req.PredictionPath)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	rep.Language = req.Language

	if s.store != nil && rep.Language != "" {
		if err := s.store.Save(r.Context(), rep); err != nil {
			s.log.WithError(err).Warn("failed to persist report")
		}
	}

	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		errors.WriteError(w, errors.New(errors.CodeUnavailable, "report store not configured"))
		return
	}

	reports, err := s.store.List(r.Context())
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		errors.WriteError(w, errors.New(errors.CodeUnavailable, "report store not configured"))
		return
	}

	rep, err := s.store.Get(r.Context(), r.PathValue("language"))
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
