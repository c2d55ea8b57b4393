package operations

import (
	"context"
	"sync"
	"time"

	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/domain/token"
	"github.com/Issuance-Network/token_layer/internal/app/metrics"
	"github.com/Issuance-Network/token_layer/internal/app/storage"
	"github.com/Issuance-Network/token_layer/internal/app/system"
	"github.com/Issuance-Network/token_layer/internal/gateway"
	"github.com/Issuance-Network/token_layer/pkg/logger"
)

// StatusResolver decides whether a submitted operation has reached its
// chain-side fate.
type StatusResolver interface {
	Resolve(ctx context.Context, rec operation.Record) (done bool, success bool, message string, retryAfter time.Duration, err error)
}

// GatewayResolver resolves operation status through the transaction gateway.
type GatewayResolver struct {
	source gateway.StatusSource
}

// NewGatewayResolver wraps a gateway status source.
func NewGatewayResolver(source gateway.StatusSource) *GatewayResolver {
	return &GatewayResolver{source: source}
}

func (r *GatewayResolver) Resolve(ctx context.Context, rec operation.Record) (bool, bool, string, time.Duration, error) {
	status, err := r.source.TransactionStatus(ctx, rec.TransactionHash)
	if err != nil {
		return false, false, "", 0, err
	}
	return status.Done, status.Success, status.Message, status.RetryAfter, nil
}

// ReconQueue holds operation rows whose log write failed after a successful
// gateway call. The poller drains it before anything else so the append-only
// log catches up.
type ReconQueue struct {
	mu   sync.Mutex
	rows []operation.Record
}

// NewReconQueue creates an empty reconciliation queue.
func NewReconQueue() *ReconQueue {
	return &ReconQueue{}
}

// Enqueue adds an unwritten row.
func (q *ReconQueue) Enqueue(rec operation.Record) {
	q.mu.Lock()
	q.rows = append(q.rows, rec)
	q.mu.Unlock()
}

// Drain removes and returns every queued row.
func (q *ReconQueue) Drain() []operation.Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	rows := q.rows
	q.rows = nil
	return rows
}

// Len reports the queue depth.
func (q *ReconQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.rows)
}

// Poller watches submitted operation rows and settles them using the
// resolver. Each row moves from submitted to confirmed or failed exactly
// once.
type Poller struct {
	ops      storage.OperationStore
	tokens   storage.TokenStore
	resolver StatusResolver
	recon    *ReconQueue
	feed     *Feed
	interval time.Duration
	batch    int
	log      *logger.Logger

	mu          sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	nextAttempt map[string]time.Time
}

var _ system.Service = (*Poller)(nil)

// PollerConfig wires a Poller.
type PollerConfig struct {
	Operations storage.OperationStore
	Tokens     storage.TokenStore
	Resolver   StatusResolver
	Recon      *ReconQueue
	Feed       *Feed
	Interval   time.Duration
	Batch      int
	Log        *logger.Logger
}

// NewPoller constructs the confirmation poller.
func NewPoller(cfg PollerConfig) *Poller {
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("operation-confirmations")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	batch := cfg.Batch
	if batch <= 0 {
		batch = 50
	}
	recon := cfg.Recon
	if recon == nil {
		recon = NewReconQueue()
	}
	return &Poller{
		ops:         cfg.Operations,
		tokens:      cfg.Tokens,
		resolver:    cfg.Resolver,
		recon:       recon,
		feed:        cfg.Feed,
		interval:    interval,
		batch:       batch,
		log:         log,
		nextAttempt: make(map[string]time.Time),
	}
}

func (p *Poller) Name() string { return "operation-confirmations" }

func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.tick(runCtx)
			}
		}
	}()

	p.log.Info("operation confirmation poller started")
	return nil
}

func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (p *Poller) tick(ctx context.Context) {
	p.drainReconciliation(ctx)

	rows, err := p.ops.ListOperationsByStatus(ctx, operation.StatusSubmitted, p.batch)
	if err != nil {
		p.log.WithError(err).Warn("list submitted operations failed")
		return
	}

	now := time.Now()
	for _, rec := range rows {
		if !p.shouldAttempt(rec.ID, now) {
			continue
		}

		done, success, message, retryAfter, err := p.resolver.Resolve(ctx, rec)
		if err != nil {
			p.log.WithError(err).Warnf("resolver error for operation %s", rec.ID)
			p.scheduleNext(rec.ID, retryAfter)
			continue
		}
		if !done {
			p.scheduleNext(rec.ID, retryAfter)
			continue
		}

		status := operation.StatusConfirmed
		if !success {
			status = operation.StatusFailed
		}
		updated, err := p.ops.UpdateOperationStatus(ctx, rec.ID, status, message)
		if err != nil {
			p.log.WithError(err).Warnf("status update for operation %s failed", rec.ID)
			p.scheduleNext(rec.ID, retryAfter)
			continue
		}

		metrics.RecordConfirmation(string(status))
		if success {
			p.applySupplyDelta(ctx, updated)
		}
		if p.feed != nil {
			p.feed.Publish(Event{Type: eventForStatus(status), Record: updated, At: time.Now().UTC()})
		}
		p.log.Infof("operation %s settled (success=%t)", rec.ID, success)
		p.clearSchedule(rec.ID)
	}
}

func (p *Poller) drainReconciliation(ctx context.Context) {
	for _, rec := range p.recon.Drain() {
		if _, err := p.ops.CreateOperation(ctx, rec); err != nil {
			p.log.WithError(err).Warnf("reconciliation write for tx %s failed", rec.TransactionHash)
			p.recon.Enqueue(rec)
		}
	}
}

// applySupplyDelta folds a confirmed mint or burn into the token's cached
// total supply.
func (p *Poller) applySupplyDelta(ctx context.Context, rec operation.Record) {
	if p.tokens == nil {
		return
	}
	var negative bool
	switch rec.Operation {
	case operation.TypeMint:
		negative = false
	case operation.TypeBurn:
		negative = true
	default:
		return
	}

	tok, err := p.tokens.GetToken(ctx, rec.TokenID)
	if err != nil {
		p.log.WithError(err).Warnf("supply update: token %s unavailable", rec.TokenID)
		return
	}
	next, err := token.ApplySupplyDelta(tok.TotalSupply, rec.Amount, negative)
	if err != nil {
		p.log.WithError(err).Warnf("supply update for token %s failed", rec.TokenID)
		return
	}
	tok.TotalSupply = next
	if _, err := p.tokens.UpdateToken(ctx, tok); err != nil {
		p.log.WithError(err).Warnf("supply write for token %s failed", rec.TokenID)
	}
}

func (p *Poller) shouldAttempt(id string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, ok := p.nextAttempt[id]
	return !ok || now.After(next)
}

func (p *Poller) scheduleNext(id string, after time.Duration) {
	if after <= 0 {
		after = p.interval
	}
	p.mu.Lock()
	p.nextAttempt[id] = time.Now().Add(after)
	p.mu.Unlock()
}

func (p *Poller) clearSchedule(id string) {
	p.mu.Lock()
	delete(p.nextAttempt, id)
	p.mu.Unlock()
}
