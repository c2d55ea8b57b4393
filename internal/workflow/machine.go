// Package workflow implements the policy-gated operation workflow shared by
// every token operation: input, validation, execution, complete, with back
// and reset transitions. The machine is generic over the operation payload;
// operation-specific behaviour is injected through a Handler.
package workflow

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/domain/schema"
	"github.com/Issuance-Network/token_layer/internal/errors"
	"github.com/Issuance-Network/token_layer/internal/gateway"
	"github.com/Issuance-Network/token_layer/internal/policy"
)

// State names a workflow position.
type State string

const (
	StateInput      State = "input"
	StateValidation State = "validation"
	StateExecution  State = "execution"
	StateComplete   State = "complete"
)

// Handler carries the operation-specific logic run by a Machine.
type Handler[P any] interface {
	// Operation names the operation the handler implements.
	Operation() operation.Type

	// Decode parses and normalizes a raw submission payload.
	Decode(raw json.RawMessage) (P, error)

	// Check runs the local precondition checks. A non-empty result keeps the
	// machine in the input state.
	Check(ctx context.Context, payload P) []schema.FieldError

	// Descriptor builds the synthetic transaction submitted for validation.
	Descriptor(ctx context.Context, payload P) (policy.Descriptor, error)

	// Execute performs the single side-effecting gateway call.
	Execute(ctx context.Context, payload P, validation policy.Result) (gateway.Receipt, error)

	// Record appends the single operation-log row for a completed execution.
	Record(ctx context.Context, payload P, receipt gateway.Receipt) error

	// Refresh re-fetches any candidate lists after a reset.
	Refresh(ctx context.Context) error
}

// Snapshot is the externally visible state of a machine.
type Snapshot struct {
	Operation   operation.Type      `json:"operation"`
	State       State               `json:"state"`
	Payload     json.RawMessage     `json:"payload,omitempty"`
	FieldErrors []schema.FieldError `json:"field_errors,omitempty"`
	Validation  *policy.Result      `json:"validation,omitempty"`
	Receipt     *gateway.Receipt    `json:"receipt,omitempty"`
	Failure     string              `json:"failure,omitempty"`
	LogPending  bool                `json:"log_pending,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Machine is one workflow instance. All transitions are serialized: a
// transition arriving while another is in flight is rejected with a conflict
// error rather than queued.
type Machine[P any] struct {
	mu   sync.Mutex
	busy bool

	handler   Handler[P]
	validator policy.Validator
	options   policy.Options

	state       State
	payload     P
	hasPayload  bool
	fieldErrors []schema.FieldError
	validation  *policy.Result
	receipt     *gateway.Receipt
	failure     string
	logPending  bool
	updatedAt   time.Time
}

// Option configures a Machine.
type Option[P any] func(*Machine[P])

// WithOptions sets the validation options sent with every submit.
func WithOptions[P any](opts policy.Options) Option[P] {
	return func(m *Machine[P]) {
		m.options = opts
	}
}

// NewMachine builds a machine in the input state.
func NewMachine[P any](handler Handler[P], validator policy.Validator, opts ...Option[P]) *Machine[P] {
	m := &Machine[P]{
		handler:   handler,
		validator: validator,
		options:   policy.Options{Urgency: policy.UrgencyNormal, Simulate: true},
		state:     StateInput,
		updatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Operation names the operation this machine runs.
func (m *Machine[P]) Operation() operation.Type {
	return m.handler.Operation()
}

// Snapshot returns the current machine state.
func (m *Machine[P]) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine[P]) snapshotLocked() Snapshot {
	snap := Snapshot{
		Operation:   m.handler.Operation(),
		State:       m.state,
		FieldErrors: append([]schema.FieldError(nil), m.fieldErrors...),
		Validation:  m.validation,
		Receipt:     m.receipt,
		Failure:     m.failure,
		LogPending:  m.logPending,
		UpdatedAt:   m.updatedAt,
	}
	if m.hasPayload {
		if raw, err := json.Marshal(m.payload); err == nil {
			snap.Payload = raw
		}
	}
	return snap
}

// begin marks the machine busy if it is in one of the allowed states.
func (m *Machine[P]) begin(allowed ...State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy {
		return errors.Conflict("operation already in progress")
	}
	for _, s := range allowed {
		if m.state == s {
			m.busy = true
			return nil
		}
	}
	return errors.Conflict("transition not allowed from state " + string(m.state))
}

func (m *Machine[P]) finish(apply func()) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply()
	m.busy = false
	m.updatedAt = time.Now().UTC()
	return m.snapshotLocked()
}

// Submit parses the payload, runs local checks and, when they pass, asks the
// policy validator for a verdict. Field errors keep the machine in the input
// state; a verdict (valid or not) moves it to validation.
func (m *Machine[P]) Submit(ctx context.Context, raw json.RawMessage) (Snapshot, error) {
	if err := m.begin(StateInput); err != nil {
		return m.Snapshot(), err
	}

	payload, err := m.handler.Decode(raw)
	if err != nil {
		snap := m.finish(func() {})
		return snap, errors.InvalidInput(err.Error())
	}

	if fieldErrs := m.handler.Check(ctx, payload); len(fieldErrs) > 0 {
		snap := m.finish(func() {
			m.payload = payload
			m.hasPayload = true
			m.fieldErrors = fieldErrs
		})
		return snap, nil
	}

	desc, err := m.handler.Descriptor(ctx, payload)
	if err != nil {
		snap := m.finish(func() {})
		return snap, errors.Internal("build transaction descriptor", err)
	}

	result, err := m.validator.Validate(ctx, desc, m.options)
	if err != nil {
		snap := m.finish(func() {})
		return snap, errors.Dependency("policy validator", err)
	}

	snap := m.finish(func() {
		m.payload = payload
		m.hasPayload = true
		m.fieldErrors = nil
		m.validation = &result
		m.failure = ""
		m.state = StateValidation
	})
	return snap, nil
}

// Execute runs the gateway call and the operation-log write. It is permitted
// only from validation with a passing verdict. A gateway failure reverts to
// validation with the verdict preserved so execution can be retried without
// re-validating; a log-write failure leaves the machine complete with the
// receipt and marks the row reconciliation as pending.
func (m *Machine[P]) Execute(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return m.Snapshot(), errors.Conflict("operation already in progress")
	}
	if m.state != StateValidation {
		m.mu.Unlock()
		return m.Snapshot(), errors.Conflict("execute only permitted from validation")
	}
	if m.validation == nil || !m.validation.Valid {
		m.mu.Unlock()
		return m.Snapshot(), errors.ValidationFailed("validation has not passed")
	}
	m.busy = true
	m.state = StateExecution
	payload := m.payload
	validation := *m.validation
	m.mu.Unlock()

	receipt, err := m.handler.Execute(ctx, payload, validation)
	if err != nil {
		snap := m.finish(func() {
			m.state = StateValidation
			m.failure = err.Error()
		})
		return snap, errors.GatewayError("operation execution failed", err)
	}

	recordErr := m.handler.Record(ctx, payload, receipt)

	snap := m.finish(func() {
		m.state = StateComplete
		m.receipt = &receipt
		m.failure = ""
		m.logPending = recordErr != nil
	})
	return snap, nil
}

// Back returns from validation to input, preserving the payload for editing.
// The stale verdict is discarded.
func (m *Machine[P]) Back() (Snapshot, error) {
	if err := m.begin(StateValidation); err != nil {
		return m.Snapshot(), err
	}
	snap := m.finish(func() {
		m.state = StateInput
		m.validation = nil
		m.failure = ""
	})
	return snap, nil
}

// Reset clears all state back to an empty input form and triggers the
// handler's refresh hook. Permitted from complete and from validation.
func (m *Machine[P]) Reset(ctx context.Context) (Snapshot, error) {
	if err := m.begin(StateComplete, StateValidation); err != nil {
		return m.Snapshot(), err
	}

	refreshErr := m.handler.Refresh(ctx)

	snap := m.finish(func() {
		var zero P
		m.state = StateInput
		m.payload = zero
		m.hasPayload = false
		m.fieldErrors = nil
		m.validation = nil
		m.receipt = nil
		m.failure = ""
		m.logPending = false
	})
	if refreshErr != nil {
		return snap, errors.Dependency("candidate refresh", refreshErr)
	}
	return snap, nil
}
