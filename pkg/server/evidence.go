package server

import (
	"net/http"

	"nanogov/governor/pkg/evidence/export"
	"nanogov/governor/pkg/evidence/query"
)

// handleEvidence streams archived records matching the query parameters
// accepted by query.FromValues. ?format is json (default), jsonl or csv;
// ?pretty=true indents a JSON array.
func (s *Server) handleEvidence(w http.ResponseWriter, r *http.Request) {
	if s.deps.Evidence == nil {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "evidence archive disabled", "")
		return
	}
	params := r.URL.Query()
	q, err := query.FromValues(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error(), "")
		return
	}
	format := params.Get("format")
	exp, err := export.ForFormat(format, params.Get("pretty") == "true")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error(), "")
		return
	}

	w.Header().Set("Content-Type", export.ContentType(format))
	// Headers are committed once the first record is written, so a late
	// failure can only be logged.
	if err := export.Stream(r.Context(), s.deps.Evidence, q, exp, w); err != nil {
		s.logger.ErrorContext(r.Context(), "evidence export failed", "format", format, "error", err)
	}
}
