// Package policy defines the boundary to the external policy/rule engine that
// approves or denies proposed token operations. The decision logic itself
// lives outside this service; this package carries the transaction descriptor
// and result shapes plus client implementations.
package policy

import "context"

// Urgency hints how quickly the caller intends to execute after validation.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
)

// Metadata carries the operation intent alongside the raw call fields so the
// engine can match compliance rules without decoding calldata.
type Metadata struct {
	Operation string                 `json:"operation"`
	TokenID   string                 `json:"token_id,omitempty"`
	Standard  string                 `json:"standard,omitempty"`
	ChainID   string                 `json:"chain_id,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// Descriptor is the synthetic transaction submitted for validation.
type Descriptor struct {
	To       string   `json:"to"`
	From     string   `json:"from"`
	Data     string   `json:"data,omitempty"`
	Value    string   `json:"value,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// Options tune a validation call.
type Options struct {
	Urgency  Urgency `json:"urgency,omitempty"`
	Simulate bool    `json:"simulate,omitempty"`
}

// CheckResult is the outcome of one policy or rule evaluation.
type CheckResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Reason  string `json:"reason,omitempty"`
	Details string `json:"details,omitempty"`
}

// Result is the engine's verdict on a descriptor.
type Result struct {
	Valid       bool          `json:"valid"`
	Policies    []CheckResult `json:"policies"`
	Rules       []CheckResult `json:"rules"`
	Errors      []string      `json:"errors,omitempty"`
	GasEstimate string        `json:"gas_estimate,omitempty"`
}

// Failures lists the names of policies and rules that did not pass.
func (r Result) Failures() []string {
	var failed []string
	for _, p := range r.Policies {
		if !p.Passed {
			failed = append(failed, p.Name)
		}
	}
	for _, rule := range r.Rules {
		if !rule.Passed {
			failed = append(failed, rule.Name)
		}
	}
	return failed
}

// Validator evaluates a descriptor against the configured policy set.
type Validator interface {
	Validate(ctx context.Context, desc Descriptor, opts Options) (Result, error)
}
