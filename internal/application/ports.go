package application

import (
	"context"
	"time"

	"github.com/oksasatya/mobile-otp-auth/pkg/helpers"
)

// OTPService issues codes and checks submitted codes against stored hashes.
type OTPService interface {
	Generate() (code, hash string, err error)
	Verify(storedHash, submitted string) bool
}

// TokenIssuer mints the access token returned after verification.
type TokenIssuer interface {
	GenerateAccessToken(sub helpers.TokenSubject) (string, time.Time, error)
}

// ProfileCompleted is published after a profile update is committed.
type ProfileCompleted struct {
	UserID       string
	MobileNumber string
	FirstName    string
	LastName     string
	Email        string
	CompletedAt  time.Time
}

// Notifier delivers user-facing notifications. Failures never fail the
// command that triggered them.
type Notifier interface {
	ProfileCompleted(ctx context.Context, ev ProfileCompleted) error
}
