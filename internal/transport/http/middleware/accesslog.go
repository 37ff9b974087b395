package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"animehub/internal/transport/http/ez"
)

var sensitiveKeys = map[string]bool{
	"password": true, "pwd": true, "token": true, "authorization": true,
	"secret": true, "client_secret": true, "access_token": true,
}

func maskQuery(q url.Values) map[string][]string {
	out := make(map[string][]string, len(q))
	for k, v := range q {
		if sensitiveKeys[strings.ToLower(k)] {
			v = []string{"****"}
		}
		out[k] = v
	}
	return out
}

// AccessLog writes one line per request. Requests that attached errors
// through c.Error are logged at warn. Paths in skip are not logged.
func AccessLog(l *zap.Logger, skip ...string) gin.HandlerFunc {
	quiet := make(map[string]bool, len(skip))
	for _, p := range skip {
		quiet[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if quiet[c.Request.URL.Path] {
			return
		}

		fields := []zap.Field{
			zap.String("rid", c.GetString(KeyRequestID)),
			zap.String("uid", c.GetString(ez.KeyUserID)),
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Int("size", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if len(c.Request.URL.RawQuery) > 0 {
			fields = append(fields, zap.Any("query", maskQuery(c.Request.URL.Query())))
		}
		if len(c.Errors) > 0 {
			l.Warn("http", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		l.Info("http", fields...)
	}
}
