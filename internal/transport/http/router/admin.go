package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"animehub/internal/domain"
	"animehub/internal/tab"
	mdw "animehub/internal/transport/http/middleware"
)

// NewAdminEngine serves moderation under /admin/v1 plus /metrics.
func NewAdminEngine(l *zap.Logger, t *tab.Tab) *gin.Engine {
	r := gin.New()

	r.Use(
		mdw.RequestID(),
		mdw.RateLimit(200, 400),
		mdw.ConcurrencyLimit(100),
		mdw.MaxBodyBytes(1<<20),
		mdw.Timeout(10*time.Second),
		mdw.Recovery(l),
		mdw.Metrics("admin"),
		mdw.AccessLog(l, "/health", "/metrics"),
	)

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1, "tab": t.Origin()}) })
	r.GET("/metrics", mdw.MetricsHandler())

	admin := r.Group("/admin/v1")
	admin.Use(mdw.AuthJWT(t.Sessions, domain.RoleAdmin))
	Modules(t).MountAllAdmin(admin)

	return r
}
