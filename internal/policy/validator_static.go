package policy

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
)

// StaticValidator is a rule-table validator for local development and tests.
// It approves every descriptor unless the operation or a touched address is
// on a deny list. It never talks to the network.
type StaticValidator struct {
	mu         sync.RWMutex
	deniedOps  map[string]string
	deniedAddr map[string]string
	gas        string
	calls      atomic.Int64
}

// NewStaticValidator returns a validator that approves everything.
func NewStaticValidator() *StaticValidator {
	return &StaticValidator{
		deniedOps:  make(map[string]string),
		deniedAddr: make(map[string]string),
		gas:        "21000",
	}
}

// DenyOperation makes every descriptor for the named operation fail.
func (s *StaticValidator) DenyOperation(op, reason string) *StaticValidator {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deniedOps[op] = reason
	return s
}

// DenyAddress makes descriptors touching the address (to or from) fail.
func (s *StaticValidator) DenyAddress(addr, reason string) *StaticValidator {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deniedAddr[strings.ToLower(addr)] = reason
	return s
}

// SetGasEstimate overrides the reported gas estimate.
func (s *StaticValidator) SetGasEstimate(gas string) *StaticValidator {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gas = gas
	return s
}

// Calls reports how many validations have run.
func (s *StaticValidator) Calls() int64 {
	return s.calls.Load()
}

// Validate applies the deny tables to the descriptor.
func (s *StaticValidator) Validate(_ context.Context, desc Descriptor, _ Options) (Result, error) {
	s.calls.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := Result{
		Valid:       true,
		GasEstimate: s.gas,
		Policies: []CheckResult{
			{Name: "static-policy", Passed: true},
		},
	}

	if reason, denied := s.deniedOps[desc.Metadata.Operation]; denied {
		result.Valid = false
		result.Rules = append(result.Rules, CheckResult{
			Name:   "operation-allowlist",
			Passed: false,
			Reason: reason,
		})
	}
	for _, addr := range []string{desc.To, desc.From} {
		if reason, denied := s.deniedAddr[strings.ToLower(addr)]; denied && addr != "" {
			result.Valid = false
			result.Rules = append(result.Rules, CheckResult{
				Name:   "address-denylist",
				Passed: false,
				Reason: reason,
			})
		}
	}

	return result, nil
}
