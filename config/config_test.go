package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"DB_DRIVER", "SEARCH_BACKEND", "OTP_RATE_LIMIT", "OTP_RATE_WINDOW", "JWT_TTL", "APP_ENV"} {
		t.Setenv(k, "")
	}
	c := Load()
	assert.Equal(t, DriverPostgres, c.DBDriver)
	assert.Equal(t, SearchDatabase, c.SearchBackend)
	assert.Equal(t, 5, c.OTPRateLimit)
	assert.Equal(t, time.Minute, c.OTPRateWindow)
	assert.Equal(t, 30*time.Minute, c.JWTTTL)
	assert.GreaterOrEqual(t, len(c.JWTSecret), 32)
	assert.NoError(t, c.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("OTP_RATE_LIMIT", "3")
	t.Setenv("OTP_RATE_WINDOW", "30s")
	t.Setenv("JWT_TTL", "not-a-duration")
	t.Setenv("CORS_ALLOWED_ORIGINS", " http://a.test , ,http://b.test")

	c := Load()
	assert.Equal(t, DriverSQLite, c.DBDriver)
	assert.Equal(t, 3, c.OTPRateLimit)
	assert.Equal(t, 30*time.Second, c.OTPRateWindow)
	assert.Equal(t, 30*time.Minute, c.JWTTTL, "invalid values fall back to the default")
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, c.CORSOrigins())
}

func TestValidate(t *testing.T) {
	c := Load()
	c.DBDriver = "mysql"
	c.SearchBackend = "solr"
	c.OTPRateLimit = 0
	err := c.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "DB_DRIVER")
	assert.ErrorContains(t, err, "SEARCH_BACKEND")
	assert.ErrorContains(t, err, "OTP_RATE_LIMIT")
}

func TestValidate_ProductionRejectsDevSecrets(t *testing.T) {
	c := Load()
	c.Env = "production"
	c.JWTSecret = devJWTSecret
	c.OTPSecret = devOTPSecret
	err := c.Validate()
	assert.ErrorContains(t, err, "JWT_SECRET")
	assert.ErrorContains(t, err, "OTP_SECRET")

	c.JWTSecret = "a-real-production-secret-of-enough-length"
	c.OTPSecret = "KRSXG5CTMVRXEZLUKRSXG5CTMVRXEZLU"
	assert.NoError(t, c.Validate())
}

func TestPostgresDSN_EscapesCredentials(t *testing.T) {
	c := &Config{DBUser: "app", DBPassword: "p@ss/word", DBHost: "db", DBPort: "5432", DBName: "users", DBSSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/users?sslmode=disable", c.PostgresDSN())
}
