package operations

import (
	"context"
	"sync"
	"time"

	"github.com/Issuance-Network/token_layer/internal/app/metrics"
	"github.com/Issuance-Network/token_layer/internal/app/system"
	"github.com/Issuance-Network/token_layer/internal/workflow"
	"github.com/Issuance-Network/token_layer/pkg/logger"
)

// Janitor expires idle workflow sessions on an interval.
type Janitor struct {
	sessions *workflow.Registry
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*Janitor)(nil)

// NewJanitor constructs a session janitor.
func NewJanitor(sessions *workflow.Registry, interval time.Duration, log *logger.Logger) *Janitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if log == nil {
		log = logger.NewDefault("session-janitor")
	}
	return &Janitor{sessions: sessions, interval: interval, log: log}
}

func (j *Janitor) Name() string { return "session-janitor" }

func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.running = true

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if dropped := j.sessions.Sweep(time.Now().UTC()); dropped > 0 {
					j.log.Infof("expired %d idle workflow sessions", dropped)
				}
				metrics.SetLiveSessions(j.sessions.Len())
			}
		}
	}()
	return nil
}

func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	cancel := j.cancel
	j.running = false
	j.cancel = nil
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		j.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
