package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nanogov/governor/pkg/policy/diag"
)

// RemovalRequest asks the store to deactivate a policy. It follows the same
// signature discipline as an admission so that state injection alone cannot
// disable protection.
type RemovalRequest struct {
	PolicyID  string    `json:"policy_id"`
	Nonce     string    `json:"nonce"`
	IssuedAt  time.Time `json:"issued_at"`
	Signature Signature `json:"signature"`
}

// NewRemovalRequest returns an unsigned request with a fresh nonce.
func NewRemovalRequest(policyID string, now time.Time) *RemovalRequest {
	return &RemovalRequest{
		PolicyID: policyID,
		Nonce:    uuid.NewString(),
		IssuedAt: now.UTC().Truncate(time.Second),
	}
}

type removalBody struct {
	Action   string `json:"action"`
	PolicyID string `json:"policy_id"`
	Nonce    string `json:"nonce"`
	IssuedAt string `json:"issued_at"`
}

// Canonical returns the bytes the removal signature covers.
func (r *RemovalRequest) Canonical() ([]byte, error) {
	return canonicalize(removalBody{
		Action:   "remove",
		PolicyID: r.PolicyID,
		Nonce:    r.Nonce,
		IssuedAt: r.IssuedAt.UTC().Format(time.RFC3339),
	})
}

// DecodeRemoval parses and schema-validates a removal request.
func DecodeRemoval(data []byte) (*RemovalRequest, error) {
	if len(data) > MaxDocumentSize {
		return nil, NewAdmissionError(ReasonMalformedSchema, "", fmt.Errorf("request is %d bytes, limit is %d", len(data), MaxDocumentSize))
	}

	var generic any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, NewAdmissionError(ReasonMalformedSchema, "", err)
	}
	if err := removalSchema().Validate(generic); err != nil {
		diags := diag.NewList()
		addSchemaErrors(diags, err, "")
		return nil, NewAdmissionError(ReasonMalformedSchema, peekID(generic), diags)
	}

	var req RemovalRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, NewAdmissionError(ReasonMalformedSchema, peekID(generic), err)
	}
	return &req, nil
}
