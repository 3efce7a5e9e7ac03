package server

import (
	"encoding/json"
	"net/http"

	"nanogov/governor/pkg/policy"
)

// Error codes carried in error responses.
const (
	codeBadRequest   = "bad_request"
	codeNotFound     = "not_found"
	codeUnauthorized = "unauthorized"
	codeRateLimited  = "rate_limited"
	codeUnavailable  = "unavailable"
	codeInternal     = "internal_error"
	codeRejected     = "policy_rejected"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request. Reason is set for admission
// rejections and names the policy.Reason.
type ErrorDetail struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Reason   string `json:"reason,omitempty"`
	PolicyID string `json:"policy_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, message, policyID string) {
	writeJSON(w, code, ErrorResponse{Error: ErrorDetail{Code: errCode, Message: message, PolicyID: policyID}})
}

// writeAdmissionError answers a rejected mutation. The status follows the
// rejection reason; errors that are not admission errors are internal.
func writeAdmissionError(w http.ResponseWriter, err error) {
	reason := policy.ReasonOf(err)
	if reason == "" {
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error(), "")
		return
	}
	writeJSON(w, admissionStatus(reason), ErrorResponse{Error: ErrorDetail{
		Code:     codeRejected,
		Message:  err.Error(),
		Reason:   string(reason),
		PolicyID: policy.PolicyIDOf(err),
	}})
}

func admissionStatus(reason policy.Reason) int {
	switch reason {
	case policy.ReasonMalformedSchema:
		return http.StatusUnprocessableEntity
	case policy.ReasonOversizePolicy:
		return http.StatusRequestEntityTooLarge
	case policy.ReasonInvalidSignature:
		return http.StatusForbidden
	case policy.ReasonUnknownPolicy:
		return http.StatusNotFound
	case policy.ReasonCapacityExceeded:
		return http.StatusInsufficientStorage
	case policy.ReasonDuplicateIdentifier, policy.ReasonStaleVersion,
		policy.ReasonBuiltinPolicy, policy.ReasonReplayedRequest:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
