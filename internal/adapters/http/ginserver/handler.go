// Package ginserver exposes the collector's admin endpoints over gin.
package ginserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vshulcz/Gatecounter/internal/domain"
	"github.com/vshulcz/Gatecounter/internal/services/audit"
	"github.com/vshulcz/Gatecounter/internal/services/poller"
)

// Collector is the part of poller.Service the handler drives.
type Collector interface {
	RunOnce(ctx context.Context) (domain.PassReport, error)
	Status() poller.Status
}

// Pinger checks the record store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves status, manual runs and metrics.
type Handler struct {
	collector Collector
	store     Pinger
	gatherer  prometheus.Gatherer
	lockInfo  func() (any, error)
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithGatherer sets the registry served on /metrics. The default registry is used otherwise.
func WithGatherer(g prometheus.Gatherer) HandlerOption {
	return func(h *Handler) {
		if g != nil {
			h.gatherer = g
		}
	}
}

// WithLockInfo adds lock holder diagnostics to /status.
func WithLockInfo(fn func() (any, error)) HandlerOption {
	return func(h *Handler) { h.lockInfo = fn }
}

func NewHandler(c Collector, store Pinger, opts ...HandlerOption) *Handler {
	h := &Handler{collector: c, store: store, gatherer: prometheus.DefaultGatherer}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Ping handles `GET /ping` by pinging the record store.
func (h *Handler) Ping(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.String(http.StatusInternalServerError, "db ping error: %v", err)
		return
	}
	c.String(http.StatusOK, "ok")
}

// Status handles `GET /status`.
func (h *Handler) Status(c *gin.Context) {
	body := gin.H{"collector": h.collector.Status()}
	if h.lockInfo != nil {
		info, err := h.lockInfo()
		if err != nil {
			body["lock"] = gin.H{"error": err.Error()}
		} else {
			body["lock"] = info
		}
	}
	c.JSON(http.StatusOK, body)
}

// Run handles `POST /run`: one synchronous pass. The pass is detached from the
// request so a disconnecting client does not cut it short.
func (h *Handler) Run(c *gin.Context) {
	ctx := audit.WithTrigger(c.Request.Context(), audit.TriggerManual)
	ctx = audit.WithClientIP(ctx, c.ClientIP())

	rep, err := h.collector.RunOnce(context.WithoutCancel(ctx))
	switch {
	case errors.Is(err, domain.ErrLockUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		_ = c.Error(err)
		var be *domain.BatchError
		if errors.As(err, &be) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "pass": poller.Summarize(rep)})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, poller.Summarize(rep))
}

// Metrics handles `GET /metrics`.
func (h *Handler) Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}
