package gateway

import (
	"context"
	"fmt"
	"sync"
)

// FakeCall records one invocation against the fake gateway.
type FakeCall struct {
	Method     string
	Call       Call
	Submission *Submission
}

// Fake is an in-memory gateway for tests and local development. Every call
// succeeds with a deterministic transaction hash and incrementing nonce
// unless a failure has been injected for the method.
type Fake struct {
	mu       sync.Mutex
	nonce    int64
	calls    []FakeCall
	failNext map[string]error
	statuses map[string]TransactionStatus
}

var _ Gateway = (*Fake)(nil)
var _ StatusSource = (*Fake)(nil)

// NewFake returns an empty fake gateway.
func NewFake() *Fake {
	return &Fake{
		failNext: make(map[string]error),
		statuses: make(map[string]TransactionStatus),
	}
}

// FailNext makes the next invocation of method return err.
func (f *Fake) FailNext(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[method] = err
}

// Calls returns a copy of every recorded invocation.
func (f *Fake) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount counts recorded invocations of method.
func (f *Fake) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// SetStatus scripts the status reported for a transaction hash.
func (f *Fake) SetStatus(txHash string, status TransactionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[txHash] = status
}

func (f *Fake) record(method string, call Call, sub *Submission) (Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failNext[method]; ok {
		delete(f.failNext, method)
		return Receipt{}, err
	}

	f.calls = append(f.calls, FakeCall{Method: method, Call: call, Submission: sub})
	f.nonce++
	return Receipt{
		TransactionHash: fmt.Sprintf("0x%064x", f.nonce),
		NonceUsed:       f.nonce,
		GasUsed:         "21000",
	}, nil
}

func (f *Fake) Mint(_ context.Context, call Call) (Receipt, error) {
	return f.record("mint", call, nil)
}

func (f *Fake) Burn(_ context.Context, call Call) (Receipt, error) {
	return f.record("burn", call, nil)
}

func (f *Fake) Pause(_ context.Context, call Call) (Receipt, error) {
	return f.record("pause", call, nil)
}

func (f *Fake) Unpause(_ context.Context, call Call) (Receipt, error) {
	return f.record("unpause", call, nil)
}

func (f *Fake) SetModule(_ context.Context, call Call) (Receipt, error) {
	return f.record("setModule", call, nil)
}

func (f *Fake) GrantRole(_ context.Context, call Call) (Receipt, error) {
	return f.record("grantRole", call, nil)
}

func (f *Fake) RevokeRole(_ context.Context, call Call) (Receipt, error) {
	return f.record("revokeRole", call, nil)
}

func (f *Fake) Unlock(_ context.Context, call Call) (Receipt, error) {
	return f.record("unlock", call, nil)
}

func (f *Fake) Unblock(_ context.Context, call Call) (Receipt, error) {
	return f.record("unblock", call, nil)
}

func (f *Fake) UpdateMaxSupply(_ context.Context, call Call) (Receipt, error) {
	return f.record("updateMaxSupply", call, nil)
}

func (f *Fake) Submit(_ context.Context, sub Submission) (Receipt, error) {
	return f.record("submit", Call{Wallet: sub.Wallet}, &sub)
}

// TransactionStatus reports a scripted status, defaulting to confirmed.
func (f *Fake) TransactionStatus(_ context.Context, txHash string) (TransactionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status, ok := f.statuses[txHash]; ok {
		return status, nil
	}
	return TransactionStatus{Done: true, Success: true}, nil
}
