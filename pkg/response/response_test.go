package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/mobile-otp-auth/pkg/apperror"
)

func init() { gin.SetMode(gin.TestMode) }

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set("request_id", "req-1")
	return c, w
}

type envelope struct {
	Status    int               `json:"status"`
	RequestID string            `json:"request_id"`
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data"`
	Error     *ErrorBody        `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var e envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestSuccess_WritesEnvelope(t *testing.T) {
	c, w := newContext()
	Success(c, http.StatusCreated, map[string]string{"id": "1"}, "created", nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	e := decode(t, w)
	assert.True(t, e.Success)
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, "1", e.Data["id"])
	assert.Nil(t, e.Error)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperror.NotFound("x", "m"), http.StatusNotFound},
		{apperror.Conflict("x", "m"), http.StatusConflict},
		{apperror.Validation("x", "m"), http.StatusBadRequest},
		{apperror.Unauthorized("x", "m"), http.StatusUnauthorized},
		{fmt.Errorf("wrapped: %w", apperror.Conflict("x", "m")), http.StatusConflict},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestFromError_Classified(t *testing.T) {
	c, w := newContext()
	err := apperror.Validation("User.InvalidProfile", "profile fields are invalid").
		WithFields(map[string]string{"email": "is required"})
	FromError(c, fmt.Errorf("complete profile: %w", err))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, c.IsAborted())
	e := decode(t, w)
	assert.False(t, e.Success)
	assert.Equal(t, "profile fields are invalid", e.Message)
	require.NotNil(t, e.Error)
	assert.Equal(t, "User.InvalidProfile", e.Error.Code)
	assert.Equal(t, map[string]string{"email": "is required"}, e.Error.Details)
}

func TestFromError_HidesInfrastructureErrors(t *testing.T) {
	c, w := newContext()
	FromError(c, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
	assert.Len(t, c.Errors, 1)
	assert.Equal(t, "Internal", decode(t, w).Error.Code)
}
