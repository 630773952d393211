package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/mobile-otp-auth/internal/application"
	"github.com/oksasatya/mobile-otp-auth/pkg/response"
	"github.com/oksasatya/mobile-otp-auth/pkg/validation"
)

type AuthHandler struct {
	Svc    *application.Service
	Logger *logrus.Logger
}

func NewAuthHandler(svc *application.Service, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{Svc: svc, Logger: logger}
}

type mobileRequest struct {
	MobileNumber string `json:"mobile_number" binding:"required,mobile"`
}

type verifyOtpRequest struct {
	Otp string `json:"otp" binding:"required,len=6,numeric"`
}

type otpIssuedResponse struct {
	ID  string `json:"id"`
	Otp string `json:"otp"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

func invalidPayload(c *gin.Context, err error) {
	response.Error[any](c, http.StatusBadRequest, "invalid payload", response.ErrorBody{
		Code:    "Request.Invalid",
		Details: validation.ToDetails(err),
	})
}

// userIDParam returns the :id path value, or responds 404 when it is not a UUID.
func userIDParam(c *gin.Context) (string, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.FromError(c, application.ErrUserNotFound)
		return "", false
	}
	return id.String(), true
}

// Register POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req mobileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	res, err := h.Svc.Register(c.Request.Context(), req.MobileNumber)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, otpIssuedResponse{ID: res.ID, Otp: res.Otp}, "user registered", nil)
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req mobileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	res, err := h.Svc.Login(c.Request.Context(), req.MobileNumber)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, otpIssuedResponse{ID: res.ID, Otp: res.Otp}, "otp issued", nil)
}

// VerifyOtp POST /api/auth/:id/verify-otp
func (h *AuthHandler) VerifyOtp(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	var req verifyOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	res, err := h.Svc.VerifyOtp(c.Request.Context(), id, req.Otp)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, tokenResponse{Token: res.Token, TokenType: "Bearer", ExpiresAt: res.ExpiresAt}, "otp verified", nil)
}
