package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/mobile-otp-auth/internal/interface/http"
	"github.com/oksasatya/mobile-otp-auth/internal/interface/middleware"
)

// UserModule wires the directory routes behind Bearer auth:
// GET /api/users, PUT /api/users/:id/complete-profile
type UserModule struct {
	Handler *handlers.UserHandler
	Tokens  middleware.TokenParser
}

func NewUserModule(h *handlers.UserHandler, tokens middleware.TokenParser) *UserModule {
	return &UserModule{Handler: h, Tokens: tokens}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	users := rg.Group("/users", middleware.Auth(m.Tokens))
	{
		users.GET("", m.Handler.ListUsers)
		users.PUT("/:id/complete-profile", m.Handler.CompleteProfile)
	}
}
