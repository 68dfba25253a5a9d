// Package masumi is a thin REST client for the Masumi payment service.
package masumi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/masumi-network/masumi-payments-go/internal/config"
	"github.com/masumi-network/masumi-payments-go/internal/metrics"
)

// Client is an authenticated Masumi payment service client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
	metrics metrics.Recorder
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(c *Client) { c.metrics = r }
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     zap.NewNop(),
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a client for the configured payment service.
func NewFromConfig(cfg *config.Config, opts ...Option) *Client {
	opts = append([]Option{WithTimeout(cfg.RequestTimeout())}, opts...)
	return NewClient(cfg.Payment.ServiceURL, cfg.Payment.APIKey, opts...)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("token", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

// call issues one request and decodes a 200 reply into out. Every other
// status is mapped onto the package sentinels.
func (c *Client) call(ctx context.Context, op, network, method, path string, query url.Values, body, out any) error {
	labels := map[string]string{"network": network}
	start := time.Now()
	resp, err := c.do(ctx, method, path, query, body)
	c.metrics.ObserveLatency(op, time.Since(start), labels)
	if err != nil {
		c.metrics.IncCounter(metrics.RemoteRequestFailed, labels)
		c.log.Warn("masumi request failed", zap.String("op", op), zap.Error(err))
		return networkError(op, err)
	}
	defer resp.Body.Close()
	c.metrics.IncCounter(metrics.RemoteRequest, labels)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkError(op, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Warn("masumi request rejected",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
		)
		return statusError(op, resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("masumi %s: decode response: %w", op, err)
	}
	c.log.Debug("masumi request ok", zap.String("op", op), zap.String("network", network))
	return nil
}

// CreatePayment registers a new payment request with the service.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentResponse, error) {
	var out PaymentResponse
	if err := c.call(ctx, "CreatePayment", req.Network, http.MethodPost, "/payment/", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPayments returns the most recent payments for a contract on a network.
func (c *Client) ListPayments(ctx context.Context, q ListPaymentsQuery) (*StatusResponse, error) {
	query := url.Values{}
	query.Set("network", q.Network)
	query.Set("limit", strconv.Itoa(q.Limit))
	query.Set("paymentContractAddress", q.PaymentContractAddress)

	var out StatusResponse
	if err := c.call(ctx, "ListPayments", q.Network, http.MethodGet, "/payment/", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompletePayment submits the result hash for a payment.
func (c *Client) CompletePayment(ctx context.Context, req CompletePaymentRequest) (*CompletionResponse, error) {
	var out CompletionResponse
	if err := c.call(ctx, "CompletePayment", req.Network, http.MethodPatch, "/payment/", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePurchase locks funds against an existing payment.
func (c *Client) CreatePurchase(ctx context.Context, req CreatePurchaseRequest) (*PurchaseResponse, error) {
	var out PurchaseResponse
	if err := c.call(ctx, "CreatePurchase", req.Network, http.MethodPost, "/purchase/", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BaseURL returns the configured service URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }
