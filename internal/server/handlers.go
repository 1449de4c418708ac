package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/pipeline"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: s.version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// uploadHandler stores a document image for a customer. The multipart form
// carries the file under "file" and its type under "document_type".
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	data, name, ok := s.readUpload(w, r, true)
	if !ok {
		return
	}
	docType, err := domain.ParseDocumentType(r.FormValue("document_type"))
	if err != nil {
		s.writeErrorResponse(w, "document_type is required", http.StatusBadRequest)
		return
	}

	doc, err := s.backend.Upload(r.Context(), customerID, docType, name, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{Document: doc})
}

type verifyRequest struct {
	Strategy string `json:"strategy"`
}

// verifyHandler runs verification for a stored document.
func (s *Server) verifyHandler(w http.ResponseWriter, r *http.Request) {
	rc := s.runContext(r)
	if r.ContentLength > 0 {
		var req verifyRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
			s.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Strategy != "" {
			rc.StrategyTag = req.Strategy
		}
	}

	res, err := s.backend.Run(r.Context(), rc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recordVerification(res)
	writeJSON(w, http.StatusOK, toVerifyResponse(res))
}

// resubmitHandler reruns a rejected document, optionally with a new image.
func (s *Server) resubmitHandler(w http.ResponseWriter, r *http.Request) {
	rc := s.runContext(r)
	var data []byte
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var ok bool
		data, _, ok = s.readUpload(w, r, false)
		if !ok {
			return
		}
	}

	res, err := s.backend.Resubmit(r.Context(), rc, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recordVerification(res)
	writeJSON(w, http.StatusOK, toVerifyResponse(res))
}

func (s *Server) verificationsHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "documentID")
	recs, err := s.backend.Verifications(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []domain.VerificationRecord{}
	}
	writeJSON(w, http.StatusOK, VerificationsResponse{DocumentID: id, Verifications: recs, Count: len(recs)})
}

func (s *Server) extractionHandler(w http.ResponseWriter, r *http.Request) {
	out, err := s.backend.Extraction(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) kycHandler(w http.ResponseWriter, r *http.Request) {
	st, err := s.backend.KycStatus(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) runContext(r *http.Request) domain.RunContext {
	return domain.RunContext{
		CustomerID:  r.URL.Query().Get("customer_id"),
		DocumentID:  chi.URLParam(r, "documentID"),
		StrategyTag: r.URL.Query().Get("strategy"),
		RequestID:   chimiddleware.GetReqID(r.Context()),
	}
}

// readUpload reads the "file" part of a multipart request. It writes the
// error response itself and reports false when the request is unusable.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, required bool) ([]byte, string, bool) {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return nil, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if !required && errors.Is(err, http.ErrMissingFile) {
			return nil, "", true
		}
		s.writeErrorResponse(w, "No document file provided", http.StatusBadRequest)
		return nil, "", false
	}
	defer func() { _ = file.Close() }()

	if header.Size > limit {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return nil, "", false
	}
	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read document data", http.StatusInternalServerError)
		return nil, "", false
	}
	if len(data) == 0 {
		s.writeErrorResponse(w, "Empty document file", http.StatusBadRequest)
		return nil, "", false
	}
	uploadSizeBytes.Observe(float64(len(data)))
	return data, header.Filename, true
}

func toVerifyResponse(res *pipeline.Result) VerifyResponse {
	out := VerifyResponse{
		Document:     res.Document,
		Verification: res.Record,
		Kyc:          res.Kyc,
	}
	if a := res.Analysis; a != nil {
		out.Extraction = a.Outcome
		out.Processing = ProcessingTimes{
			DecodeMs:     nsToMs(a.Processing.DecodeNs),
			ExtractionMs: nsToMs(a.Processing.ExtractionNs),
			FallbackMs:   nsToMs(a.Processing.FallbackNs),
			ValidationMs: nsToMs(a.Processing.ValidationNs),
			TotalMs:      nsToMs(a.Processing.TotalNs),
		}
	}
	return out
}

func nsToMs(ns int64) float64 { return float64(ns) / 1e6 }

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) (int, string) {
	var inconsistent *domain.AggregationInconsistency
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrUnknownDocumentType):
		return http.StatusBadRequest, "unknown_document_type"
	case errors.Is(err, domain.ErrNotResubmittable):
		return http.StatusConflict, "not_resubmittable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "cancelled"
	case errors.As(err, &inconsistent):
		return http.StatusInternalServerError, "aggregation_inconsistency"
	case errors.Is(err, domain.ErrUnknownStrategy):
		return http.StatusBadRequest, "unknown_strategy"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "path", r.URL.Path, "request_id", chimiddleware.GetReqID(r.Context()), "error", err)
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = fmt.Sprintf("%s: processing failed", code)
	}
	writeJSON(w, status, ErrorResponse{Success: false, Error: msg, Code: code})
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
