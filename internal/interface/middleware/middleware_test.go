package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/mobile-otp-auth/pkg/helpers"
)

func init() { gin.SetMode(gin.TestMode) }

type stubParser struct{}

func (stubParser) ParseAccessToken(token string) (*helpers.Claims, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return &helpers.Claims{UserID: "user-1", Email: "john@example.com"}, nil
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	r := gin.New()
	r.GET("/me", Auth(stubParser{}), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CtxUserIDKey)+"|"+c.GetString(CtxUserEmailKey))
	})

	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer good", http.StatusOK, "user-1|john@example.com"},
		{"lower case scheme", "bearer good", http.StatusOK, "user-1|john@example.com"},
		{"missing", "", http.StatusUnauthorized, "missing access token"},
		{"wrong scheme", "Basic good", http.StatusUnauthorized, "missing access token"},
		{"empty token", "Bearer ", http.StatusUnauthorized, "missing access token"},
		{"invalid", "Bearer forged", http.StatusUnauthorized, "invalid access token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := serve(r, req)
			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), tc.body)
			if tc.status == http.StatusUnauthorized {
				assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
			}
		})
	}
}

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	now := time.Date(2024, time.August, 2, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, reset, err := l.Hit(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
		assert.Equal(t, time.Minute, reset)
	}

	now = now.Add(59 * time.Second)
	n, reset, _ := l.Hit(ctx, "k", time.Minute)
	assert.Equal(t, 4, n)
	assert.Equal(t, time.Second, reset)

	n, _, _ = l.Hit(ctx, "other", time.Minute)
	assert.Equal(t, 1, n, "keys are independent")

	now = now.Add(time.Second)
	n, _, _ = l.Hit(ctx, "k", time.Minute)
	assert.Equal(t, 1, n, "a new window starts at reset")
}

type failingLimiter struct{}

func (failingLimiter) Hit(context.Context, string, time.Duration) (int, time.Duration, error) {
	return 0, 0, errors.New("redis down")
}

func TestFallbackLimiter(t *testing.T) {
	secondary := NewMemoryLimiter()
	l := NewFallbackLimiter(failingLimiter{}, secondary, helpers.NewDiscardLogger())

	n, _, err := l.Hit(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, _, _ = l.Hit(context.Background(), "k", time.Minute)
	assert.Equal(t, 2, n)
}

func newLimitedRouter(l Limiter, limit int, allow AllowFunc) *gin.Engine {
	r := gin.New()
	r.Use(RealIP(false))
	rl := RateLimit(l, limit, time.Minute, KeyByIP("otp"), allow)
	r.POST("/a", rl, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/b", rl, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.OPTIONS("/a", rl, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func post(r *gin.Engine, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = remote
	return serve(r, req)
}

func TestRateLimit_SharedBudgetAcrossRoutes(t *testing.T) {
	r := newLimitedRouter(NewMemoryLimiter(), 5, nil)

	for i := 0; i < 5; i++ {
		path := "/a"
		if i%2 == 1 {
			path = "/b"
		}
		w := post(r, path, "203.0.113.7:5000")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	}

	w := post(r, "/a", "203.0.113.7:5000")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, w.Body.String(), "RateLimit.Exceeded")

	w = post(r, "/a", "198.51.100.1:5000")
	assert.Equal(t, http.StatusOK, w.Code, "other clients have their own budget")
}

func TestRateLimit_SkipsOptionsAndAllowed(t *testing.T) {
	r := newLimitedRouter(NewMemoryLimiter(), 1, AllowPrivateIP())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, post(r, "/a", "10.0.0.5:1234").Code)
	}

	pub := newLimitedRouter(NewMemoryLimiter(), 1, nil)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodOptions, "/a", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		assert.Equal(t, http.StatusNoContent, serve(pub, req).Code)
	}
	assert.Equal(t, http.StatusOK, post(pub, "/a", "203.0.113.7:5000").Code)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	r := newLimitedRouter(failingLimiter{}, 1, nil)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, post(r, "/a", "203.0.113.7:5000").Code)
	}
}

func TestRealIP(t *testing.T) {
	handler := func(c *gin.Context) { c.String(http.StatusOK, c.GetString(CtxRealIPKey)) }

	trusting := gin.New()
	trusting.GET("/", RealIP(true), handler)
	strict := gin.New()
	require.NoError(t, strict.SetTrustedProxies(nil))
	strict.GET("/", RealIP(false), handler)

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		return r
	}
	assert.Equal(t, "203.0.113.9", serve(trusting, req()).Body.String())
	assert.Equal(t, "10.0.0.1", serve(strict, req()).Body.String())

	cf := req()
	cf.Header.Set("CF-Connecting-IP", "198.51.100.4")
	assert.Equal(t, "198.51.100.4", serve(trusting, cf).Body.String())
}

func TestOnlyPrivateIP(t *testing.T) {
	r := gin.New()
	r.GET("/internal", RealIP(false), OnlyPrivateIP(), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	req.RemoteAddr = "127.0.0.1:1000"
	assert.Equal(t, http.StatusOK, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/internal", nil)
	req.RemoteAddr = "203.0.113.7:1000"
	assert.Equal(t, http.StatusNotFound, serve(r, req).Code)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.GET("/", RequestIDMiddleware(), func(c *gin.Context) { c.String(http.StatusOK, c.GetString(CtxRequestIDKey)) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(w.Body.String())
	require.NoError(t, err)
	assert.Equal(t, w.Body.String(), w.Header().Get(HeaderRequestID))

	incoming := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, incoming)
	assert.Equal(t, incoming, serve(r, req).Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "<script>")
	assert.NotEqual(t, "<script>", serve(r, req).Body.String())
}

func TestRequestLogger(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	r := gin.New()
	r.Use(RequestIDMiddleware(), RealIP(false), RequestLogger(logger))
	r.GET("/users/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	serve(r, httptest.NewRequest(http.MethodGet, "/users/42", nil))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "/users/:id", entry.Data["path"])
	assert.Equal(t, http.StatusNotFound, entry.Data["status"])
	assert.NotEmpty(t, entry.Data["request_id"])

	serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}
