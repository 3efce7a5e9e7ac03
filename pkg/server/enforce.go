package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"nanogov/governor/pkg/enforce"
	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/state"
	"nanogov/governor/pkg/telemetry/logging"
)

// Response headers set by the enforce endpoint.
const (
	VerdictHeader     = "X-Governor-Verdict"
	VerdictCodeHeader = "X-Governor-Verdict-Code"
)

// EnforceRequest is the body of POST /v1/enforce.
type EnforceRequest struct {
	Checkpoint string             `json:"checkpoint"`
	State      *state.SystemState `json:"state"`
}

// EnforceResponse wraps the decision with its numeric verdict code and the
// fault kind, if any.
type EnforceResponse struct {
	enforce.Decision
	Code  int    `json:"code"`
	Fault string `json:"fault,omitempty"`
}

// handleEnforce evaluates one state snapshot. A well-formed request always
// gets 200; the verdict is in the body and headers, not the status.
func (s *Server) handleEnforce(w http.ResponseWriter, r *http.Request) {
	var req EnforceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, codeBadRequest, "request body too large", "")
			return
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error(), "")
		return
	}
	cp, ok := policy.ParseCheckpoint(req.Checkpoint)
	if !ok {
		writeError(w, http.StatusBadRequest, codeBadRequest, "unknown checkpoint "+strconv.Quote(req.Checkpoint), "")
		return
	}
	if req.State == nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "missing state", "")
		return
	}
	if err := req.State.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error(), "")
		return
	}

	ctx := logging.WithCheckpoint(r.Context(), cp.String())
	d := s.deps.Engine.Guard(ctx, s.config.Engine.Timeout, cp, req.State)

	resp := EnforceResponse{Decision: d, Code: d.Verdict.Code()}
	if d.Fault != nil {
		resp.Fault = string(d.Fault.Kind)
	}
	w.Header().Set(VerdictHeader, d.Verdict.String())
	w.Header().Set(VerdictCodeHeader, strconv.Itoa(resp.Code))
	writeJSON(w, http.StatusOK, resp)
}
