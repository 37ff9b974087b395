package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"animehub/internal/core/server"
	"animehub/internal/tab"
	mdw "animehub/internal/transport/http/middleware"
)

// NewAPIEngine serves the user API of t under /api/v1.
func NewAPIEngine(l *zap.Logger, t *tab.Tab) *gin.Engine {
	r := server.NewRouter(l)

	r.Use(
		mdw.RequestID(),
		mdw.RateLimitPerIP(20, 40),
		mdw.RateLimit(200, 400),
		mdw.ConcurrencyLimit(300),
		mdw.MaxBodyBytes(1<<20),
		mdw.Timeout(10*time.Second),
		mdw.Metrics("api"),
	)

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1, "tab": t.Origin()}) })

	api := r.Group("/api/v1")
	authed := api.Group("", mdw.AuthJWT(t.Sessions, ""))
	Modules(t).MountAllAPI(api, authed)

	return r
}
