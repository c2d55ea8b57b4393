package operations

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/system"
	"github.com/Issuance-Network/token_layer/pkg/logger"
	"github.com/Issuance-Network/token_layer/supabase/client"
)

// RealtimeBridge mirrors token_operations changes made by external writers
// onto the in-process operation feed. Rows the poller settles itself arrive
// on the feed directly; the bridge covers updates that land in the database
// first.
type RealtimeBridge struct {
	realtime *client.RealtimeClient
	feed     *Feed
	log      *logger.Logger

	mu      sync.Mutex
	channel *client.Channel
	running bool
}

var _ system.Service = (*RealtimeBridge)(nil)

// NewRealtimeBridge constructs the bridge.
func NewRealtimeBridge(realtime *client.RealtimeClient, feed *Feed, log *logger.Logger) *RealtimeBridge {
	if log == nil {
		log = logger.NewDefault("operation-realtime")
	}
	return &RealtimeBridge{realtime: realtime, feed: feed, log: log}
}

func (b *RealtimeBridge) Name() string { return "operation-realtime" }

func (b *RealtimeBridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}

	if err := b.realtime.Connect(ctx); err != nil {
		return err
	}
	channel, err := b.realtime.SubscribeToPostgresChanges(ctx, client.PostgresChangesConfig{
		Event: "UPDATE",
		Table: "token_operations",
	}, b.handle)
	if err != nil {
		return err
	}

	b.channel = channel
	b.running = true
	b.log.Info("operation realtime bridge started")
	return nil
}

func (b *RealtimeBridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return nil
	}
	if b.channel != nil {
		if err := b.channel.Unsubscribe(ctx); err != nil {
			b.log.WithError(err).Warn("realtime unsubscribe failed")
		}
		b.channel = nil
	}
	b.running = false
	return b.realtime.Disconnect()
}

// operationChange is the row shape inside a postgres_changes payload.
type operationChange struct {
	ID              string `json:"id"`
	ProjectID       string `json:"project_id"`
	TokenID         string `json:"token_id"`
	Operation       string `json:"operation"`
	Status          string `json:"status"`
	Message         string `json:"message"`
	TransactionHash string `json:"transaction_hash"`
}

func (b *RealtimeBridge) handle(event *client.RealtimeEvent) {
	record, ok := event.Payload["record"]
	if !ok {
		return
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return
	}
	var change operationChange
	if err := json.Unmarshal(raw, &change); err != nil {
		b.log.WithError(err).Warn("unreadable realtime operation row")
		return
	}

	status := operation.Status(change.Status)
	if status != operation.StatusConfirmed && status != operation.StatusFailed {
		return
	}

	b.feed.Publish(Event{
		Type: eventForStatus(status),
		Record: operation.Record{
			ID:              change.ID,
			ProjectID:       change.ProjectID,
			TokenID:         change.TokenID,
			Operation:       operation.Type(change.Operation),
			Status:          status,
			Message:         change.Message,
			TransactionHash: change.TransactionHash,
		},
		At: time.Now().UTC(),
	})
}
