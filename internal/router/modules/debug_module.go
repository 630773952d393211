package modules

import (
	"expvar"
	"time"

	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/mobile-otp-auth/internal/interface/http"
	"github.com/oksasatya/mobile-otp-auth/internal/interface/middleware"
)

type DebugModule struct {
	Health  *handlers.HealthHandler
	Limiter middleware.Limiter
	Metrics bool
}

func NewDebugModule(h *handlers.HealthHandler, l middleware.Limiter, metrics bool) *DebugModule {
	return &DebugModule{Health: h, Limiter: l, Metrics: metrics}
}

func (m *DebugModule) Register(rg *gin.RouterGroup) {
	rl := middleware.RateLimit(m.Limiter, 120, time.Minute, middleware.KeyByIP("debug"), middleware.AllowPrivateIP())
	rg.GET("/health", rl, m.Health.Health)

	if m.Metrics {
		// expvar is only reachable from private networks
		rg.GET("/debug/vars", middleware.OnlyPrivateIP(), gin.WrapH(expvar.Handler()))
	}
}
