package ginserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vshulcz/Gatecounter/internal/adapters/http/ginserver/middlewares"
	"go.uber.org/zap"
)

// NewRouter mounts the admin endpoints. A non-empty adminKey guards POST /run.
func NewRouter(h *Handler, adminKey string, mws ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	for _, mw := range mws {
		r.Use(mw)
	}

	r.RedirectTrailingSlash = false
	r.RemoveExtraSlash = true

	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.String(http.StatusMethodNotAllowed, "method not allowed")
	})

	r.GET("/ping", h.Ping)
	r.GET("/status", h.Status)
	r.GET("/metrics", h.Metrics())
	r.POST("/run", middlewares.RequireKey(adminKey), h.Run)

	return r
}

// NewServer wraps the router in an http.Server with the request logger installed.
func NewServer(addr string, h *Handler, adminKey string, l *zap.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(h, adminKey, middlewares.ZapLogger(l)),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
