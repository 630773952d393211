package application

import "github.com/oksasatya/mobile-otp-auth/pkg/apperror"

var (
	ErrUserAlreadyExists = apperror.Conflict("User.AlreadyExists", "user with this mobile number already exists")
	ErrUserNotFound      = apperror.NotFound("User.NotFound", "user not found")
	ErrOtpExpired        = apperror.Conflict("Otp.Expired", "otp has expired")
	ErrOtpInvalid        = apperror.Validation("Otp.Invalid", "otp is invalid")
	ErrInvalidPagination = apperror.Validation("Users.InvalidPagination", "page and page size must be positive")
)
