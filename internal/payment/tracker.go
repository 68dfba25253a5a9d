// Package payment tracks payment requests created against the Masumi payment
// service and watches them until the service reports them as confirmed.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/masumi-network/masumi-payments-go/internal/config"
	"github.com/masumi-network/masumi-payments-go/internal/masumi"
	"github.com/masumi-network/masumi-payments-go/internal/metrics"
)

const (
	// ConfirmedAction is the NextAction.requestedAction value of a payment
	// whose funds are locked and ready for the agent to work on.
	ConfirmedAction = "CONFIRMED"
	// DoneStatus is the completion status returned once a result is accepted.
	DoneStatus = "PaymentDone"

	DefaultStatusLimit = 10

	submitResultWindow = 12 * time.Hour
	deadlineLayout     = "2006-01-02T15:04:05.000Z"
)

// PaymentService is the subset of the Masumi client used by a Tracker.
type PaymentService interface {
	CreatePayment(ctx context.Context, req masumi.CreatePaymentRequest) (*masumi.PaymentResponse, error)
	ListPayments(ctx context.Context, q masumi.ListPaymentsQuery) (*masumi.StatusResponse, error)
	CompletePayment(ctx context.Context, req masumi.CompletePaymentRequest) (*masumi.CompletionResponse, error)
}

// IsConfirmed reports whether p has reached the confirmed state.
func IsConfirmed(p masumi.Payment) bool {
	return p.NextAction.RequestedAction == ConfirmedAction
}

// Tracker owns the set of in-flight payment identifiers for one agent.
// All methods are safe for concurrent use.
type Tracker struct {
	svc             PaymentService
	agentID         string
	amounts         []Amount
	network         Network
	contractAddress string
	purchaserID     string
	log             *zap.Logger
	metrics         metrics.Recorder
	now             func() time.Time

	mu      sync.Mutex
	tracked map[string]struct{}

	// startMu orders StartStatusMonitoring calls. monMu guards the monitor
	// handle and is never held while waiting for a loop to exit.
	startMu  sync.Mutex
	monMu    sync.Mutex
	mon      *monitor
	draining []chan struct{}
}

type Option func(*Tracker)

// WithNetwork selects the network. The default is Preprod; NewTracker
// rejects anything other than Preprod or Mainnet.
func WithNetwork(n Network) Option {
	return func(t *Tracker) { t.network = n }
}

// WithPurchaserIdentifier sets identifierFromPurchaser on created payments.
func WithPurchaserIdentifier(id string) Option {
	return func(t *Tracker) { t.purchaserID = id }
}

func WithLogger(log *zap.Logger) Option {
	return func(t *Tracker) { t.log = log }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(t *Tracker) { t.metrics = r }
}

// WithClock replaces time.Now when computing submission deadlines.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker builds a Tracker for agentID. The contract address is resolved
// from cfg for the selected network.
func NewTracker(cfg *config.Config, svc PaymentService, agentID string, amounts []Amount, opts ...Option) (*Tracker, error) {
	if cfg == nil {
		return nil, errors.New("payment tracker: config is required")
	}
	if svc == nil {
		return nil, errors.New("payment tracker: payment service is required")
	}
	if agentID == "" {
		return nil, errors.New("payment tracker: agent identifier is required")
	}
	t := &Tracker{
		svc:     svc,
		agentID: agentID,
		amounts: append([]Amount(nil), amounts...),
		network: Preprod,
		log:     zap.NewNop(),
		metrics: metrics.NoopRecorder{},
		now:     time.Now,
		tracked: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	network, err := ParseNetwork(string(t.network))
	if err != nil {
		return nil, fmt.Errorf("payment tracker: %w", err)
	}
	t.network = network
	if t.purchaserID == "" {
		t.purchaserID = newPurchaserID()
	}
	t.contractAddress = cfg.ContractAddress(string(t.network))
	t.log = t.log.With(zap.String("agent", agentID), zap.String("network", string(t.network)))
	return t, nil
}

func newPurchaserID() string {
	return "pur_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func (t *Tracker) AgentIdentifier() string     { return t.agentID }
func (t *Tracker) Network() Network            { return t.network }
func (t *Tracker) ContractAddress() string     { return t.contractAddress }
func (t *Tracker) PurchaserIdentifier() string { return t.purchaserID }
func (t *Tracker) Amounts() []Amount           { return append([]Amount(nil), t.amounts...) }

func (t *Tracker) labels() map[string]string {
	return map[string]string{"network": string(t.network)}
}

// ── Tracked set ───────────────────────────────────────────────────────────────

// Track adds an identifier created elsewhere to the tracked set.
func (t *Tracker) Track(id string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	t.tracked[id] = struct{}{}
	t.mu.Unlock()
}

func (t *Tracker) IsTracked(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.tracked[id]
	return ok
}

// Tracked returns the tracked identifiers in sorted order.
func (t *Tracker) Tracked() []string {
	t.mu.Lock()
	ids := make([]string, 0, len(t.tracked))
	for id := range t.tracked {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (t *Tracker) trackedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracked)
}

// untrack removes id and reports whether this call removed it. Only the
// caller that gets true may act on the removal.
func (t *Tracker) untrack(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.tracked[id]; !ok {
		return false
	}
	delete(t.tracked, id)
	return true
}

// ── Remote operations ─────────────────────────────────────────────────────────

// CreatePaymentRequest asks the service for a new payment with a submission
// deadline 12 hours from now, and tracks the returned identifier.
func (t *Tracker) CreatePaymentRequest(ctx context.Context) (*masumi.PaymentResponse, error) {
	deadline := t.now().UTC().Add(submitResultWindow).Format(deadlineLayout)

	resp, err := t.svc.CreatePayment(ctx, masumi.CreatePaymentRequest{
		AgentIdentifier:         t.agentID,
		Network:                 string(t.network),
		PaymentContractAddress:  t.contractAddress,
		Amounts:                 WireAmounts(t.amounts),
		PaymentType:             masumi.PaymentType,
		SubmitResultTime:        deadline,
		IdentifierFromPurchaser: t.purchaserID,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment request: %w", err)
	}

	id := resp.Data.BlockchainIdentifier
	if id == "" {
		return nil, fmt.Errorf("create payment request: %w: response has no blockchainIdentifier", masumi.ErrServiceError)
	}
	t.Track(id)
	resp.SubmitResultTime = deadline

	t.metrics.IncCounter(metrics.PaymentCreated, t.labels())
	t.log.Info("payment request created",
		zap.String("payment", id),
		zap.String("submit_result_time", deadline),
	)
	return resp, nil
}

func (t *Tracker) fetchStatus(ctx context.Context, limit int) (*masumi.StatusResponse, error) {
	if limit <= 0 {
		limit = DefaultStatusLimit
	}
	t.metrics.IncCounter(metrics.StatusChecks, t.labels())
	return t.svc.ListPayments(ctx, masumi.ListPaymentsQuery{
		Network:                string(t.network),
		PaymentContractAddress: t.contractAddress,
		Limit:                  limit,
	})
}

// confirmedIDs lists the identifiers in resp that are confirmed and tracked.
func (t *Tracker) confirmedIDs(resp *masumi.StatusResponse) []string {
	var ids []string
	for _, p := range resp.Data.Payments {
		if IsConfirmed(p) && t.IsTracked(p.BlockchainIdentifier) {
			ids = append(ids, p.BlockchainIdentifier)
		}
	}
	return ids
}

// CheckPaymentStatus queries the latest payments for this tracker's contract
// and stops tracking every confirmed one. limit <= 0 means DefaultStatusLimit.
func (t *Tracker) CheckPaymentStatus(ctx context.Context, limit int) (*masumi.StatusResponse, error) {
	if t.trackedCount() == 0 {
		return nil, ErrNoTrackedPayments
	}
	resp, err := t.fetchStatus(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("check payment status: %w", err)
	}
	for _, id := range t.confirmedIDs(resp) {
		if t.untrack(id) {
			t.metrics.IncCounter(metrics.PaymentConfirmed, t.labels())
			t.log.Info("payment confirmed", zap.String("payment", id))
		}
	}
	return resp, nil
}

// CompletePayment submits txHash as the result of a tracked payment. The
// payment is dropped from tracking once the service reports it done.
func (t *Tracker) CompletePayment(ctx context.Context, id, txHash string) (*masumi.CompletionResponse, error) {
	if !t.IsTracked(id) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPayment, id)
	}
	resp, err := t.svc.CompletePayment(ctx, masumi.CompletePaymentRequest{
		Network:                string(t.network),
		PaymentContractAddress: t.contractAddress,
		Hash:                   txHash,
		Identifier:             id,
	})
	if err != nil {
		return nil, fmt.Errorf("complete payment %s: %w", id, err)
	}
	if resp.Data.Status == DoneStatus && t.untrack(id) {
		t.metrics.IncCounter(metrics.PaymentCompleted, t.labels())
		t.log.Info("payment completed", zap.String("payment", id))
	}
	return resp, nil
}
