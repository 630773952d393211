package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/mobile-otp-auth/internal/application"
	"github.com/oksasatya/mobile-otp-auth/internal/domain/entity"
	"github.com/oksasatya/mobile-otp-auth/internal/interface/middleware"
	"github.com/oksasatya/mobile-otp-auth/pkg/response"
	"github.com/oksasatya/mobile-otp-auth/pkg/validation"
)

type UserHandler struct {
	Svc    *application.Service
	Logger *logrus.Logger
}

func NewUserHandler(svc *application.Service, logger *logrus.Logger) *UserHandler {
	return &UserHandler{Svc: svc, Logger: logger}
}

type completeProfileRequest struct {
	FirstName   string `json:"first_name" binding:"required,max=50,personname"`
	LastName    string `json:"last_name" binding:"required,max=50,personname"`
	Email       string `json:"email" binding:"required,email,max=100"`
	DateOfBirth string `json:"date_of_birth" binding:"required,birthdate"`
}

type listUsersQuery struct {
	SearchTerm string `form:"search_term" binding:"max=100"`
	Page       int    `form:"page,default=1" binding:"gt=0"`
	PageSize   int    `form:"page_size,default=10" binding:"gt=0"`
}

type profileResponse struct {
	UserID      string `json:"user_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	DateOfBirth string `json:"date_of_birth"`
}

type userDTO struct {
	ID           string `json:"id"`
	MobileNumber string `json:"mobile_number"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	DateOfBirth  string `json:"date_of_birth"`
}

type listUsersResponse struct {
	Users      []userDTO `json:"users"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
}

func formatDate(t time.Time) string { return t.UTC().Format(validation.DateLayout) }

func toUserDTO(u *entity.User) userDTO {
	return userDTO{
		ID:           u.ID(),
		MobileNumber: u.MobileNumber(),
		FirstName:    u.FirstName(),
		LastName:     u.LastName(),
		Email:        u.Email(),
		DateOfBirth:  formatDate(u.DateOfBirth()),
	}
}

// CompleteProfile PUT /api/users/:id/complete-profile (auth required)
func (h *UserHandler) CompleteProfile(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	if caller := c.GetString(middleware.CtxUserIDKey); caller != id {
		response.Error[any](c, http.StatusForbidden, "cannot update another user's profile", response.ErrorBody{Code: "Auth.Forbidden"})
		return
	}
	var req completeProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	dob, err := time.Parse(validation.DateLayout, req.DateOfBirth)
	if err != nil {
		invalidPayload(c, err)
		return
	}

	res, err := h.Svc.CompleteProfile(c.Request.Context(), application.CompleteProfileInput{
		UserID:      id,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		DateOfBirth: dob,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, profileResponse{
		UserID:      res.UserID,
		FirstName:   res.FirstName,
		LastName:    res.LastName,
		Email:       res.Email,
		DateOfBirth: formatDate(res.DateOfBirth),
	}, "profile completed", nil)
}

// ListUsers GET /api/users?search_term=&page=&page_size= (auth required)
func (h *UserHandler) ListUsers(c *gin.Context) {
	var q listUsersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		invalidPayload(c, err)
		return
	}
	res, err := h.Svc.ListUsers(c.Request.Context(), application.ListUsersInput{
		SearchTerm: q.SearchTerm,
		Page:       q.Page,
		PageSize:   q.PageSize,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	users := make([]userDTO, 0, len(res.Users))
	for _, u := range res.Users {
		users = append(users, toUserDTO(u))
	}
	response.Success(c, http.StatusOK, listUsersResponse{
		Users:      users,
		TotalCount: res.TotalCount,
		Page:       res.Page,
		PageSize:   res.PageSize,
	}, "users retrieved", nil)
}
