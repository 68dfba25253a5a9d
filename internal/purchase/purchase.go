// Package purchase builds purchase requests that lock funds against an
// existing payment.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/masumi-network/masumi-payments-go/internal/config"
	"github.com/masumi-network/masumi-payments-go/internal/masumi"
	"github.com/masumi-network/masumi-payments-go/internal/metrics"
	"github.com/masumi-network/masumi-payments-go/internal/payment"
)

// DefaultPurchaserIdentifier is sent when the request names no purchaser.
const DefaultPurchaserIdentifier = "default_purchaser_id"

var validate = validator.New()

// Request describes one purchase. The three deadlines are Unix timestamps
// resolved by the caller, usually from the payment's creation response.
type Request struct {
	BlockchainIdentifier      string           `validate:"required"`
	SellerVkey                string           `validate:"required"`
	AgentIdentifier           string           `validate:"required"`
	Amounts                   []payment.Amount `validate:"min=1"`
	PurchaserIdentifier       string
	SubmitResultTime          int64           `validate:"gt=0"`
	UnlockTime                int64           `validate:"gt=0"`
	ExternalDisputeUnlockTime int64           `validate:"gt=0"`
	Network                   payment.Network `validate:"omitempty,oneof=Preprod Mainnet"`
	SmartContractAddress      string
	PaymentType               string
}

// Service is the subset of the Masumi client used for purchases.
type Service interface {
	CreatePurchase(ctx context.Context, req masumi.CreatePurchaseRequest) (*masumi.PurchaseResponse, error)
}

// Purchase is a validated, ready-to-send purchase request.
type Purchase struct {
	svc     Service
	req     masumi.CreatePurchaseRequest
	log     *zap.Logger
	metrics metrics.Recorder
}

type Option func(*Purchase)

func WithLogger(log *zap.Logger) Option {
	return func(p *Purchase) { p.log = log }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(p *Purchase) { p.metrics = r }
}

// New validates r and fills defaults: network Preprod, payment type
// Web3CardanoV1, the default purchaser identifier, and the configured
// contract address for the network.
func New(cfg *config.Config, svc Service, r Request, opts ...Option) (*Purchase, error) {
	if cfg == nil || svc == nil {
		return nil, errors.New("purchase: config and service are required")
	}
	if err := validate.Struct(r); err != nil {
		return nil, fmt.Errorf("purchase: %w: %v", masumi.ErrInvalidRequest, err)
	}

	if r.Network == "" {
		r.Network = payment.Preprod
	}
	if r.PaymentType == "" {
		r.PaymentType = masumi.PaymentType
	}
	if r.PurchaserIdentifier == "" {
		r.PurchaserIdentifier = DefaultPurchaserIdentifier
	}
	if r.SmartContractAddress == "" {
		r.SmartContractAddress = cfg.ContractAddress(string(r.Network))
	}

	p := &Purchase{
		svc: svc,
		req: masumi.CreatePurchaseRequest{
			IdentifierFromPurchaser:   r.PurchaserIdentifier,
			BlockchainIdentifier:      r.BlockchainIdentifier,
			Network:                   string(r.Network),
			SellerVkey:                r.SellerVkey,
			SmartContractAddress:      r.SmartContractAddress,
			Amounts:                   payment.WireAmounts(r.Amounts),
			PaymentType:               r.PaymentType,
			SubmitResultTime:          strconv.FormatInt(r.SubmitResultTime, 10),
			UnlockTime:                strconv.FormatInt(r.UnlockTime, 10),
			ExternalDisputeUnlockTime: strconv.FormatInt(r.ExternalDisputeUnlockTime, 10),
			AgentIdentifier:           r.AgentIdentifier,
		},
		log:     zap.NewNop(),
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Payload returns the body Create sends.
func (p *Purchase) Payload() masumi.CreatePurchaseRequest { return p.req }

// Create sends the purchase. Any non-200 reply is reported as
// masumi.ErrInvalidRequest; transport failures as masumi.ErrNetwork.
func (p *Purchase) Create(ctx context.Context) (*masumi.PurchaseResponse, error) {
	resp, err := p.svc.CreatePurchase(ctx, p.req)
	if err != nil {
		var merr *masumi.Error
		if errors.As(err, &merr) && merr.StatusCode != 0 {
			return nil, fmt.Errorf("create purchase: %w: %w", masumi.ErrInvalidRequest, err)
		}
		return nil, fmt.Errorf("create purchase: %w", err)
	}

	p.metrics.IncCounter(metrics.PurchaseCreated, map[string]string{"network": p.req.Network})
	p.log.Info("purchase created",
		zap.String("purchase", resp.Data.ID),
		zap.String("payment", p.req.BlockchainIdentifier),
		zap.String("next_action", resp.Data.NextAction.RequestedAction),
	)
	return resp, nil
}
