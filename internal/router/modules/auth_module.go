package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/mobile-otp-auth/internal/interface/http"
	"github.com/oksasatya/mobile-otp-auth/internal/interface/middleware"
)

// AuthModule serves the public OTP endpoints:
// POST /api/auth/register, POST /api/auth/login, POST /api/auth/:id/verify-otp
type AuthModule struct {
	Handler *handlers.AuthHandler
	Limiter middleware.Limiter
	Limit   int
	Window  time.Duration
}

func NewAuthModule(h *handlers.AuthHandler, l middleware.Limiter, limit int, window time.Duration) *AuthModule {
	return &AuthModule{Handler: h, Limiter: l, Limit: limit, Window: window}
}

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	// one budget per client IP shared by all three routes
	otpLimiter := middleware.RateLimit(m.Limiter, m.Limit, m.Window, middleware.KeyByIP("otp"), nil)

	auth := rg.Group("/auth", otpLimiter)
	{
		auth.POST("/register", m.Handler.Register)
		auth.POST("/login", m.Handler.Login)
		auth.POST("/:id/verify-otp", m.Handler.VerifyOtp)
	}
}
