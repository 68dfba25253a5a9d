// Package notify queues payment confirmations in Redis for downstream workers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueKeyFmt is the per-agent list of confirmation events (RPUSH / LPOP).
	QueueKeyFmt = "masumi:confirmed:%s"
	// SeenKeyFmt marks a payment whose confirmation was already queued.
	SeenKeyFmt = "masumi:confirmed:seen:%s"

	defaultSeenTTL = 7 * 24 * time.Hour
)

// Event is one confirmed payment.
type Event struct {
	PaymentID       string `json:"payment_id"`
	AgentIdentifier string `json:"agent_identifier"`
	Network         string `json:"network"`
	ConfirmedAt     int64  `json:"confirmed_at"`
}

type Publisher struct {
	rdb     *redis.Client
	agent   string
	network string
	seenTTL time.Duration
	log     *zap.Logger
	now     func() time.Time
}

func NewPublisher(rdb *redis.Client, agent, network string, log *zap.Logger) *Publisher {
	return &Publisher{
		rdb:     rdb,
		agent:   agent,
		network: network,
		seenTTL: defaultSeenTTL,
		log:     log,
		now:     time.Now,
	}
}

func (p *Publisher) queueKey() string { return fmt.Sprintf(QueueKeyFmt, p.agent) }

// Publish queues a confirmation for paymentID once; repeated calls for the
// same payment are dropped. Its signature matches payment.Callback.
func (p *Publisher) Publish(ctx context.Context, paymentID string) error {
	seenKey := fmt.Sprintf(SeenKeyFmt, paymentID)
	set, err := p.rdb.SetNX(ctx, seenKey, p.agent, p.seenTTL).Result()
	if err != nil {
		return fmt.Errorf("mark confirmation %s: %w", paymentID, err)
	}
	if !set {
		p.log.Debug("confirmation already queued", zap.String("payment", paymentID))
		return nil
	}

	raw, err := json.Marshal(Event{
		PaymentID:       paymentID,
		AgentIdentifier: p.agent,
		Network:         p.network,
		ConfirmedAt:     p.now().Unix(),
	})
	if err != nil {
		return err
	}
	if err := p.rdb.RPush(ctx, p.queueKey(), raw).Err(); err != nil {
		// Let a later attempt queue it again.
		p.rdb.Del(ctx, seenKey) //nolint:errcheck
		return fmt.Errorf("queue confirmation %s: %w", paymentID, err)
	}
	p.log.Info("confirmation queued", zap.String("payment", paymentID), zap.String("queue", p.queueKey()))
	return nil
}

// Recent returns up to n of the newest queued events, oldest first.
func (p *Publisher) Recent(ctx context.Context, n int64) ([]Event, error) {
	if n <= 0 {
		n = 50
	}
	raws, err := p.rdb.LRange(ctx, p.queueKey(), -n, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read confirmations: %w", err)
	}
	return p.decode(raws), nil
}

// Pop removes and returns up to n of the oldest queued events.
func (p *Publisher) Pop(ctx context.Context, n int) ([]Event, error) {
	if n <= 0 {
		n = 1
	}
	raws, err := p.rdb.LPopCount(ctx, p.queueKey(), n).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop confirmations: %w", err)
	}
	return p.decode(raws), nil
}

func (p *Publisher) decode(raws []string) []Event {
	events := make([]Event, 0, len(raws))
	for _, raw := range raws {
		var e Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			p.log.Error("notify: unmarshal event", zap.String("raw", raw), zap.Error(err))
			continue
		}
		events = append(events, e)
	}
	return events
}
