package router

import (
	"github.com/oksasatya/mobile-otp-auth/internal/container"
	handlers "github.com/oksasatya/mobile-otp-auth/internal/interface/http"
	"github.com/oksasatya/mobile-otp-auth/internal/router/modules"
)

func healthChecks() map[string]handlers.Check {
	out := map[string]handlers.Check{}
	for name, fn := range container.GetHealthChecks() {
		out[name] = fn
	}
	return out
}

// InitModules initializes all application modules and registers them with the router registry
// This function should be called once during application startup, after the container is populated
func InitModules(r *Registry) {
	cfg := container.GetConfig()
	logger := container.GetLogger()
	svc := container.GetService()

	r.Add(modules.NewAuthModule(
		handlers.NewAuthHandler(svc, logger),
		container.GetLimiter(),
		cfg.OTPRateLimit,
		cfg.OTPRateWindow,
	))
	r.Add(modules.NewUserModule(handlers.NewUserHandler(svc, logger), container.GetJWT()))
	r.Add(modules.NewDebugModule(
		handlers.NewHealthHandler(healthChecks()),
		container.GetLimiter(),
		cfg.DebugMetricsEnabled,
	))
}
