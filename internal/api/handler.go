// Package api serves the monitor daemon's control API.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/masumi-network/masumi-payments-go/internal/auth"
	"github.com/masumi-network/masumi-payments-go/internal/masumi"
	"github.com/masumi-network/masumi-payments-go/internal/notify"
	"github.com/masumi-network/masumi-payments-go/internal/payment"
)

// Tracker is satisfied by *payment.Tracker.
type Tracker interface {
	CreatePaymentRequest(ctx context.Context) (*masumi.PaymentResponse, error)
	CheckPaymentStatus(ctx context.Context, limit int) (*masumi.StatusResponse, error)
	CompletePayment(ctx context.Context, id, txHash string) (*masumi.CompletionResponse, error)
	Track(id string)
	Tracked() []string
	StartStatusMonitoring(cb payment.Callback, opts ...payment.MonitorOption) error
	StopStatusMonitoring()
	Monitoring() bool
}

// Confirmations is satisfied by *notify.Publisher.
type Confirmations interface {
	Recent(ctx context.Context, n int64) ([]notify.Event, error)
	Pop(ctx context.Context, n int) ([]notify.Event, error)
}

// Handler wires the control routes onto a Gin router group.
type Handler struct {
	tracker       Tracker
	confirmations Confirmations
	onConfirmed   payment.Callback
	monitorOpts   []payment.MonitorOption
	log           *zap.Logger
}

// NewHandler builds a Handler. onConfirmed is the callback used whenever the
// monitor is started through the API; monitorOpts are its defaults.
func NewHandler(t Tracker, conf Confirmations, onConfirmed payment.Callback, monitorOpts []payment.MonitorOption, log *zap.Logger) *Handler {
	return &Handler{
		tracker:       t,
		confirmations: conf,
		onConfirmed:   onConfirmed,
		monitorOpts:   monitorOpts,
		log:           log,
	}
}

// Register mounts all routes. The auth middleware should already be applied
// to the group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	// ── Payments ───────────────────────────────────────────────────────────
	rg.POST("/payments", h.handleCreate)
	rg.GET("/payments", h.handleList)
	rg.POST("/payments/check", h.handleCheck)
	rg.POST("/payments/:id/complete", h.handleComplete)
	rg.POST("/payments/:id/track", h.handleTrack)

	// ── Monitor ────────────────────────────────────────────────────────────
	rg.POST("/monitor/start", h.handleMonitorStart)
	rg.POST("/monitor/stop", h.handleMonitorStop)

	// ── Confirmations ──────────────────────────────────────────────────────
	rg.GET("/confirmations", h.handleRecent)
	rg.POST("/confirmations/pop", h.handlePop)
}

// ── Payments ─────────────────────────────────────────────────────────────────

func (h *Handler) handleCreate(c *gin.Context) {
	resp, err := h.tracker.CreatePaymentRequest(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tracked":    h.tracker.Tracked(),
		"monitoring": h.tracker.Monitoring(),
	})
}

func (h *Handler) handleCheck(c *gin.Context) {
	limit, err := intQuery(c, "limit", payment.DefaultStatusLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	resp, err := h.tracker.CheckPaymentStatus(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  resp,
		"tracked": h.tracker.Tracked(),
	})
}

type completeBody struct {
	Hash string `json:"hash" binding:"required"`
}

func (h *Handler) handleComplete(c *gin.Context) {
	var body completeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hash is required"})
		return
	}
	resp, err := h.tracker.CompletePayment(c.Request.Context(), c.Param("id"), body.Hash)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleTrack(c *gin.Context) {
	id := c.Param("id")
	h.tracker.Track(id)
	h.log.Info("payment tracked via api",
		zap.String("payment", id),
		zap.String("operator", c.GetString(auth.ContextKey)),
	)
	c.JSON(http.StatusOK, gin.H{"tracked": h.tracker.Tracked()})
}

// ── Monitor ──────────────────────────────────────────────────────────────────

type monitorStartBody struct {
	PollIntervalSec int64 `json:"poll_interval_sec"`
	IdleIntervalSec int64 `json:"idle_interval_sec"`
	StatusLimit     int   `json:"status_limit"`
}

func (h *Handler) handleMonitorStart(c *gin.Context) {
	var body monitorStartBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	opts := append([]payment.MonitorOption(nil), h.monitorOpts...)
	if body.PollIntervalSec > 0 {
		opts = append(opts, payment.WithPollInterval(time.Duration(body.PollIntervalSec)*time.Second))
	}
	if body.IdleIntervalSec > 0 {
		opts = append(opts, payment.WithIdleInterval(time.Duration(body.IdleIntervalSec)*time.Second))
	}
	if body.StatusLimit > 0 {
		opts = append(opts, payment.WithStatusLimit(body.StatusLimit))
	}

	if err := h.tracker.StartStatusMonitoring(h.onConfirmed, opts...); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"monitoring": true})
}

func (h *Handler) handleMonitorStop(c *gin.Context) {
	h.tracker.StopStatusMonitoring()
	c.JSON(http.StatusOK, gin.H{"monitoring": false})
}

// ── Confirmations ────────────────────────────────────────────────────────────

func (h *Handler) handleRecent(c *gin.Context) {
	n, err := intQuery(c, "limit", 50)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	events, err := h.confirmations.Recent(c.Request.Context(), int64(n))
	if err != nil {
		h.log.Error("read confirmations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"confirmations": events})
}

func (h *Handler) handlePop(c *gin.Context) {
	n, err := intQuery(c, "count", 1)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid count"})
		return
	}
	events, err := h.confirmations.Pop(c.Request.Context(), n)
	if err != nil {
		h.log.Error("pop confirmations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"confirmations": events})
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

// writeError maps tracker and service errors onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, payment.ErrNoTrackedPayments):
		status = http.StatusConflict
	case errors.Is(err, payment.ErrUnknownPayment):
		status = http.StatusNotFound
	case errors.Is(err, payment.ErrInvalidCallback):
		status = http.StatusBadRequest
	case errors.Is(err, masumi.ErrInvalidRequest):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, masumi.ErrUnauthorized), errors.Is(err, masumi.ErrServiceError):
		status = http.StatusBadGateway
	case errors.Is(err, masumi.ErrNetwork):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("api request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
