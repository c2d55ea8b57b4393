package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/domain/schema"
	"github.com/Issuance-Network/token_layer/internal/errors"
	"github.com/Issuance-Network/token_layer/internal/gateway"
	"github.com/Issuance-Network/token_layer/internal/policy"
)

type testPayload struct {
	Target string `json:"target"`
	Amount string `json:"amount"`
}

type testHandler struct {
	mu         sync.Mutex
	executeErr error
	recordErr  error
	executes   int
	records    int
	refreshes  int
}

func (h *testHandler) Operation() operation.Type { return operation.TypeMint }

func (h *testHandler) Decode(raw json.RawMessage) (testPayload, error) {
	var p testPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return testPayload{}, err
	}
	return p, nil
}

func (h *testHandler) Check(_ context.Context, p testPayload) []schema.FieldError {
	var errs []schema.FieldError
	if strings.TrimSpace(p.Target) == "" {
		errs = append(errs, schema.FieldError{Field: "target", Message: "field is required"})
	}
	if strings.TrimSpace(p.Amount) == "" {
		errs = append(errs, schema.FieldError{Field: "amount", Message: "field is required"})
	}
	return errs
}

func (h *testHandler) Descriptor(_ context.Context, p testPayload) (policy.Descriptor, error) {
	return policy.Descriptor{
		To:       "0x00000000000000000000000000000000000000aa",
		From:     "0x00000000000000000000000000000000000000bb",
		Metadata: policy.Metadata{Operation: string(operation.TypeMint)},
	}, nil
}

func (h *testHandler) Execute(_ context.Context, _ testPayload, _ policy.Result) (gateway.Receipt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.executes++
	if h.executeErr != nil {
		err := h.executeErr
		h.executeErr = nil
		return gateway.Receipt{}, err
	}
	return gateway.Receipt{TransactionHash: "0xabc", NonceUsed: 7}, nil
}

func (h *testHandler) Record(_ context.Context, _ testPayload, _ gateway.Receipt) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records++
	return h.recordErr
}

func (h *testHandler) Refresh(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refreshes++
	return nil
}

func validPayload(t *testing.T) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(testPayload{Target: "0x00000000000000000000000000000000000000aa", Amount: "100"})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestSubmitWithMissingFieldsStaysInInput(t *testing.T) {
	handler := &testHandler{}
	validator := policy.NewStaticValidator()
	m := NewMachine[testPayload](handler, validator)

	snap, err := m.Submit(context.Background(), json.RawMessage(`{"target":"","amount":""}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if snap.State != StateInput {
		t.Fatalf("state = %s, want input", snap.State)
	}
	if len(snap.FieldErrors) != 2 {
		t.Fatalf("field errors = %d, want 2", len(snap.FieldErrors))
	}
	if validator.Calls() != 0 {
		t.Fatalf("validator called %d times before local checks passed", validator.Calls())
	}
}

func TestInvalidVerdictNeverReachesExecution(t *testing.T) {
	handler := &testHandler{}
	validator := policy.NewStaticValidator().DenyOperation(string(operation.TypeMint), "compliance hold")
	m := NewMachine[testPayload](handler, validator)

	snap, err := m.Submit(context.Background(), validPayload(t))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if snap.State != StateValidation {
		t.Fatalf("state = %s, want validation", snap.State)
	}
	if snap.Validation == nil || snap.Validation.Valid {
		t.Fatalf("expected failed validation verdict")
	}

	if _, err := m.Execute(context.Background()); err == nil {
		t.Fatal("execute succeeded with a failed verdict")
	} else if !errors.IsCode(err, errors.CodeValidationFailed) {
		t.Fatalf("execute error = %v, want validation_failed", err)
	}
	if handler.executes != 0 {
		t.Fatalf("handler executed %d times", handler.executes)
	}
}

func TestExecuteCompletesAndRecordsOnce(t *testing.T) {
	handler := &testHandler{}
	m := NewMachine[testPayload](handler, policy.NewStaticValidator())

	if _, err := m.Submit(context.Background(), validPayload(t)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap, err := m.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if snap.State != StateComplete {
		t.Fatalf("state = %s, want complete", snap.State)
	}
	if snap.Receipt == nil || snap.Receipt.TransactionHash != "0xabc" {
		t.Fatalf("receipt = %+v", snap.Receipt)
	}
	if handler.executes != 1 || handler.records != 1 {
		t.Fatalf("executes = %d records = %d, want 1/1", handler.executes, handler.records)
	}
}

func TestExecuteFailureRevertsToValidationAndAllowsRetry(t *testing.T) {
	handler := &testHandler{executeErr: fmt.Errorf("gateway timeout")}
	validator := policy.NewStaticValidator()
	m := NewMachine[testPayload](handler, validator)

	if _, err := m.Submit(context.Background(), validPayload(t)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := m.Execute(context.Background()); err == nil {
		t.Fatal("execute succeeded despite gateway failure")
	}

	snap := m.Snapshot()
	if snap.State != StateValidation {
		t.Fatalf("state = %s, want validation after failure", snap.State)
	}
	if snap.Failure == "" {
		t.Fatal("failure message not retained")
	}
	if snap.Validation == nil || !snap.Validation.Valid {
		t.Fatal("validation verdict not preserved for retry")
	}

	// Retry must reuse the stored verdict without another validator call.
	before := validator.Calls()
	snap, err := m.Execute(context.Background())
	if err != nil {
		t.Fatalf("retry execute: %v", err)
	}
	if snap.State != StateComplete {
		t.Fatalf("state = %s, want complete after retry", snap.State)
	}
	if validator.Calls() != before {
		t.Fatalf("validator re-called on retry: %d -> %d", before, validator.Calls())
	}
}

func TestRecordFailureStillCompletesWithReceipt(t *testing.T) {
	handler := &testHandler{recordErr: fmt.Errorf("insert failed")}
	m := NewMachine[testPayload](handler, policy.NewStaticValidator())

	if _, err := m.Submit(context.Background(), validPayload(t)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap, err := m.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if snap.State != StateComplete {
		t.Fatalf("state = %s, want complete", snap.State)
	}
	if !snap.LogPending {
		t.Fatal("log reconciliation not flagged")
	}
	if snap.Receipt == nil {
		t.Fatal("receipt missing")
	}
}

func TestResetClearsAllFormState(t *testing.T) {
	handler := &testHandler{}
	m := NewMachine[testPayload](handler, policy.NewStaticValidator())

	if _, err := m.Submit(context.Background(), validPayload(t)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := m.Execute(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}

	snap, err := m.Reset(context.Background())
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if snap.State != StateInput {
		t.Fatalf("state = %s, want input", snap.State)
	}
	if snap.Payload != nil || snap.Validation != nil || snap.Receipt != nil {
		t.Fatalf("reset left residual state: %+v", snap)
	}
	if handler.refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", handler.refreshes)
	}
}

func TestBackPreservesPayloadAndDropsVerdict(t *testing.T) {
	handler := &testHandler{}
	m := NewMachine[testPayload](handler, policy.NewStaticValidator())

	if _, err := m.Submit(context.Background(), validPayload(t)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap, err := m.Back()
	if err != nil {
		t.Fatalf("back: %v", err)
	}
	if snap.State != StateInput {
		t.Fatalf("state = %s, want input", snap.State)
	}
	if snap.Payload == nil {
		t.Fatal("payload dropped on back")
	}
	if snap.Validation != nil {
		t.Fatal("stale verdict retained on back")
	}
}

type blockingValidator struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	inner   *policy.StaticValidator
}

func (b *blockingValidator) Validate(ctx context.Context, desc policy.Descriptor, opts policy.Options) (policy.Result, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.inner.Validate(ctx, desc, opts)
}

func TestConcurrentSubmitIsRejectedWithConflict(t *testing.T) {
	handler := &testHandler{}
	validator := &blockingValidator{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		inner:   policy.NewStaticValidator(),
	}
	m := NewMachine[testPayload](handler, validator)

	payload := validPayload(t)
	done := make(chan error, 1)
	go func() {
		_, err := m.Submit(context.Background(), payload)
		done <- err
	}()

	select {
	case <-validator.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first submit never reached the validator")
	}

	if _, err := m.Submit(context.Background(), payload); !errors.IsConflict(err) {
		t.Fatalf("second submit error = %v, want conflict", err)
	}

	close(validator.release)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if m.Snapshot().State != StateValidation {
		t.Fatalf("state = %s, want validation", m.Snapshot().State)
	}
}

func TestSessionRegistryScopesAndExpires(t *testing.T) {
	registry := NewRegistry(time.Minute)
	handler := &testHandler{}
	m := NewMachine[testPayload](handler, policy.NewStaticValidator())

	session := registry.Create("project-a", "token-1", m)
	if _, err := registry.Get(session.ID, "project-a"); err != nil {
		t.Fatalf("get own session: %v", err)
	}
	if _, err := registry.Get(session.ID, "project-b"); err == nil {
		t.Fatal("foreign project could read session")
	}

	if dropped := registry.Sweep(time.Now().Add(2 * time.Minute)); dropped != 1 {
		t.Fatalf("sweep dropped %d, want 1", dropped)
	}
	if registry.Len() != 0 {
		t.Fatalf("registry len = %d after sweep", registry.Len())
	}
}
