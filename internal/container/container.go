package container

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/mobile-otp-auth/config"
	"github.com/oksasatya/mobile-otp-auth/internal/application"
	"github.com/oksasatya/mobile-otp-auth/internal/interface/middleware"
	"github.com/oksasatya/mobile-otp-auth/pkg/helpers"
)

// app-level container to share constructed components across packages
// Router can auto-wire modules from these singletons.

var (
	cfg    *config.Config
	logger *logrus.Logger

	jwtManager *helpers.JWTManager
	limiter    middleware.Limiter
	service    *application.Service
	checks     map[string]func(ctx context.Context) error
)

func SetConfig(c *config.Config) { cfg = c }
func GetConfig() *config.Config  { return cfg }
func SetLogger(l *logrus.Logger) { logger = l }
func GetLogger() *logrus.Logger {
	if logger != nil {
		return logger
	}
	return helpers.NewDiscardLogger()
}
func SetJWT(m *helpers.JWTManager)      { jwtManager = m }
func GetJWT() *helpers.JWTManager       { return jwtManager }
func SetLimiter(l middleware.Limiter)   { limiter = l }
func GetLimiter() middleware.Limiter    { return limiter }
func SetService(s *application.Service) { service = s }
func GetService() *application.Service  { return service }

// SetHealthChecks registers the dependency probes served by /api/health.
func SetHealthChecks(c map[string]func(ctx context.Context) error) { checks = c }
func GetHealthChecks() map[string]func(ctx context.Context) error  { return checks }
