package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/policy/store"
	"nanogov/governor/pkg/telemetry/logging"
	"nanogov/governor/pkg/telemetry/tracing"
)

// admissionSource tags admission spans started by the API.
const admissionSource = "http"

// PolicySummary describes one active policy in GET /v1/policies.
type PolicySummary struct {
	ID          string   `json:"policy_id"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	Rules       int      `json:"rules"`
	Enforcement []string `json:"enforcement"`
	Builtin     bool     `json:"builtin"`
	Size        int      `json:"size"`
	Digest      string   `json:"digest"`
	Signed      bool     `json:"signed"`
}

// PoliciesResponse is the body of GET /v1/policies.
type PoliciesResponse struct {
	Generation uint64          `json:"policy_generation"`
	Capacity   int             `json:"capacity"`
	Policies   []PolicySummary `json:"policies"`
}

// MutationResponse is the body of an accepted policy mutation.
type MutationResponse struct {
	Op         string `json:"op"`
	PolicyID   string `json:"policy_id"`
	Version    string `json:"version,omitempty"`
	Generation uint64 `json:"policy_generation"`
	Active     int    `json:"active_policies"`
}

func summarize(p *policy.Policy) PolicySummary {
	sum := PolicySummary{
		ID:          p.ID,
		Description: p.Description,
		Rules:       len(p.Rules),
		Enforcement: p.Enforcement.Names(),
		Builtin:     p.Builtin,
		Size:        p.Size(),
		Digest:      p.Digest(),
		Signed:      !p.Signature.IsZero(),
	}
	if p.Version != nil {
		sum.Version = p.Version.Original()
	}
	return sum
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Store.Snapshot()
	resp := PoliciesResponse{
		Generation: snap.Generation(),
		Capacity:   s.deps.Store.Capacity(),
		Policies:   make([]PolicySummary, 0, snap.Len()),
	}
	for _, p := range snap.Policies() {
		resp.Policies = append(resp.Policies, summarize(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetPolicy returns the active policy in wire format.
func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := s.deps.Store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "policy not active", id)
		return
	}
	data, err := policy.Encode(p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error(), id)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", `"`+p.Digest()+`"`)
	_, _ = w.Write(data)
}

// handleApply routes a policy document or a removal request through
// Store.Apply.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	s.mutate(w, r, func(ctx context.Context) (store.Result, error) {
		return s.deps.Store.Apply(data, s.deps.Verifier)
	})
}

// handleSupersede replaces the active policy named in the path with a newer
// signed version.
func (s *Server) handleSupersede(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	s.mutate(w, r, func(ctx context.Context) (store.Result, error) {
		res := store.Result{Op: store.OpSupersede, PolicyID: id}
		var opts []policy.DecodeOption
		if s.config.Policies.StrictFields {
			opts = append(opts, policy.StrictFields())
		}
		p, err := policy.Decode(data, opts...)
		if err != nil {
			return res, err
		}
		if p.ID != id {
			return res, policy.NewAdmissionError(policy.ReasonMalformedSchema, p.ID,
				errors.New("policy_id does not match the request path"))
		}
		if p.Version != nil {
			res.Version = p.Version.Original()
		}
		return res, s.deps.Store.Supersede(p, s.deps.Verifier)
	})
}

// handleRemove deactivates the policy named in the path. The body is a
// signed removal request for the same identifier.
func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	s.mutate(w, r, func(ctx context.Context) (store.Result, error) {
		res := store.Result{Op: store.OpRemove, PolicyID: id}
		req, err := policy.DecodeRemoval(data)
		if err != nil {
			return res, err
		}
		if req.PolicyID != id {
			return res, policy.NewAdmissionError(policy.ReasonMalformedSchema, req.PolicyID,
				errors.New("policy_id does not match the request path"))
		}
		return res, s.deps.Store.Remove(req, s.deps.Verifier)
	})
}

// mutate runs one store mutation inside an admission span and writes the
// outcome.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, fn func(context.Context) (store.Result, error)) {
	ctx, span := s.deps.Tracer.Start(r.Context(), tracing.SpanAdmit, tracing.AdmissionStart(admissionSource))
	defer span.End()

	res, err := fn(ctx)
	tracing.SetAdmission(span, string(res.Op), res.PolicyID, res.Version, string(policy.ReasonOf(err)))
	ctx = logging.WithPolicyID(ctx, res.PolicyID)
	if err != nil {
		tracing.SetError(span, err)
		s.logger.WarnContext(ctx, "policy mutation rejected", "op", string(res.Op), "error", err)
		writeAdmissionError(w, err)
		return
	}

	snap := s.deps.Store.Snapshot()
	s.logger.InfoContext(ctx, "policy mutation applied",
		"op", string(res.Op), "version", res.Version, "generation", snap.Generation())
	code := http.StatusOK
	if res.Op == store.OpAdmit {
		code = http.StatusCreated
	}
	writeJSON(w, code, MutationResponse{
		Op:         string(res.Op),
		PolicyID:   res.PolicyID,
		Version:    res.Version,
		Generation: snap.Generation(),
		Active:     snap.Len(),
	})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, codeBadRequest, "request body too large", "")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, "failed to read body: "+err.Error(), "")
		return nil, false
	}
	return data, true
}
