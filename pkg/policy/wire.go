package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"nanogov/governor/pkg/condition"
	"nanogov/governor/pkg/policy/diag"
)

type ruleDocument struct {
	ID        string `json:"id"`
	Condition string `json:"condition"`
	Action    Action `json:"action"`
	Message   string `json:"message,omitempty"`
}

type document struct {
	PolicyID    string         `json:"policy_id"`
	Version     string         `json:"version"`
	Description string         `json:"description,omitempty"`
	Rules       []ruleDocument `json:"rules"`
	Enforcement []string       `json:"enforcement"`
	Signature   *Signature     `json:"signature,omitempty"`
}

func (p *Policy) document(withSignature bool) *document {
	doc := &document{
		PolicyID:    p.ID,
		Version:     p.Version.Original(),
		Description: p.Description,
		Rules:       make([]ruleDocument, len(p.Rules)),
		Enforcement: p.Enforcement.Names(),
	}
	for i, r := range p.Rules {
		doc.Rules[i] = ruleDocument{ID: r.ID, Condition: r.Condition, Action: r.Action, Message: r.Message}
	}
	if withSignature && !p.Signature.IsZero() {
		sig := p.Signature
		doc.Signature = &sig
	}
	return doc
}

func canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return out, nil
}

// Encode returns the wire document for p, including its signature.
func Encode(p *Policy) ([]byte, error) {
	return json.MarshalIndent(p.document(true), "", "  ")
}

// WithSignature returns a copy of p carrying sig. The canonical form is
// unchanged because it excludes the signature.
func (p *Policy) WithSignature(sig Signature) *Policy {
	cp := *p
	cp.Signature = sig
	return &cp
}

type decodeOptions struct {
	file          string
	allowUnsigned bool
	condOpts      []condition.Option
}

// DecodeOption configures Decode.
type DecodeOption func(*decodeOptions)

// WithSourceFile names the file in diagnostics.
func WithSourceFile(name string) DecodeOption {
	return func(o *decodeOptions) { o.file = name }
}

// AllowUnsigned accepts documents without a signature member. Used by the
// signing tool.
func AllowUnsigned() DecodeOption {
	return func(o *decodeOptions) { o.allowUnsigned = true }
}

// StrictFields rejects conditions that reference unknown state fields.
func StrictFields() DecodeOption {
	return func(o *decodeOptions) { o.condOpts = append(o.condOpts, condition.Strict()) }
}

// Decode parses and validates a wire document. Problems are collected into a
// *diag.List wrapped in an *AdmissionError with ReasonMalformedSchema; the
// size ceiling and the signature are not checked here.
func Decode(data []byte, opts ...DecodeOption) (*Policy, error) {
	o := &decodeOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if len(data) > MaxDocumentSize {
		return nil, NewAdmissionError(ReasonOversizePolicy, "",
			fmt.Errorf("document is %d bytes, decoder limit is %d", len(data), MaxDocumentSize))
	}

	diags := diag.NewList()
	loc := func(pointer string) diag.Location {
		return diag.Location{File: o.file, Pointer: pointer, Offset: -1}
	}

	var generic any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		diags.Add(&diag.Error{Kind: diag.KindSyntax, Message: err.Error(), Location: loc(""), Cause: err})
		return nil, NewAdmissionError(ReasonMalformedSchema, "", diags)
	}

	if err := policySchema().Validate(generic); err != nil {
		addSchemaErrors(diags, err, o.file)
		return nil, NewAdmissionError(ReasonMalformedSchema, peekID(generic), diags)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		diags.Add(&diag.Error{Kind: diag.KindSyntax, Message: err.Error(), Location: loc(""), Cause: err})
		return nil, NewAdmissionError(ReasonMalformedSchema, peekID(generic), diags)
	}

	if doc.Signature == nil && !o.allowUnsigned {
		diags.Addf(diag.KindSignature, loc("/signature"), "signature is required")
	}

	spec := Spec{
		ID:          doc.PolicyID,
		Version:     doc.Version,
		Description: doc.Description,
		Rules:       make([]Rule, len(doc.Rules)),
	}
	if doc.Signature != nil {
		spec.Signature = *doc.Signature
	}
	for _, name := range doc.Enforcement {
		cp, _ := ParseCheckpoint(name)
		spec.Enforcement |= cp.Bit()
	}

	seen := make(map[string]int, len(doc.Rules))
	for i, r := range doc.Rules {
		if first, dup := seen[r.ID]; dup {
			diags.Addf(diag.KindSemantic, loc(fmt.Sprintf("/rules/%d/id", i)), "rule id %q duplicates /rules/%d", r.ID, first)
		}
		seen[r.ID] = i

		if _, err := condition.Compile(r.Condition, o.condOpts...); err != nil {
			var ce *condition.CompileError
			if errors.As(err, &ce) {
				diags.Add(ce.Diagnostic(loc(fmt.Sprintf("/rules/%d/condition", i))))
			} else {
				diags.Addf(diag.KindSyntax, loc(fmt.Sprintf("/rules/%d/condition", i)), "%v", err)
			}
		}
		spec.Rules[i] = NewRule(r.ID, r.Condition, r.Action, r.Message)
	}

	if diags.HasErrors() {
		return nil, NewAdmissionError(ReasonMalformedSchema, doc.PolicyID, diags)
	}

	p, err := Build(spec, o.condOpts...)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func addSchemaErrors(diags *diag.List, err error, file string) {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		diags.Add(&diag.Error{Kind: diag.KindSchema, Message: err.Error(), Location: diag.Location{File: file, Offset: -1}, Cause: err})
		return
	}

	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			diags.Add(&diag.Error{
				Kind:     diag.KindSchema,
				Message:  e.Message,
				Location: diag.Location{File: file, Pointer: e.InstanceLocation, Offset: -1},
			})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
}

func peekID(generic any) string {
	if m, ok := generic.(map[string]any); ok {
		if id, ok := m["policy_id"].(string); ok && len(id) <= 32 {
			return strings.TrimSpace(id)
		}
	}
	return ""
}
