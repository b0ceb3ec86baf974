package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger logs one "admin_request" line per call. 5xx answers go out at warn
// and carry any errors handlers attached to the context.
func ZapLogger(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Int("bytes", max(c.Writer.Size(), 0)),
			zap.Duration("took", time.Since(began)),
		}

		lvl := zapcore.InfoLevel
		if c.Writer.Status() >= 500 {
			lvl = zapcore.WarnLevel
			if msg := c.Errors.String(); msg != "" {
				fields = append(fields, zap.String("errors", msg))
			}
		}
		l.Log(lvl, "admin_request", fields...)
	}
}
