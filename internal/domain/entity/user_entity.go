package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oksasatya/mobile-otp-auth/pkg/apperror"
)

// OtpExpiration is how long an issued OTP stays usable.
const OtpExpiration = 60 * time.Second

// DefaultDateOfBirth is stored until the user completes their profile.
var DefaultDateOfBirth = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

var (
	ErrMobileNumberRequired = apperror.Validation("User.MobileNumberRequired", "mobile number is required")
	ErrOtpHashRequired      = apperror.Validation("User.OtpHashRequired", "otp hash is required")
	ErrInvalidProfile       = apperror.Validation("User.InvalidProfile", "profile fields are invalid")
)

type pendingOtp struct {
	hash  string
	setAt time.Time
}

// User is the aggregate root of the account domain. Its OTP and
// verification state can only change through the methods below.
type User struct {
	id           string
	mobileNumber string
	isVerified   bool
	firstName    string
	lastName     string
	email        string
	dateOfBirth  time.Time
	otp          *pendingOtp
}

// UserSnapshot is the flat persisted form of a User. Empty strings mean the
// value is absent; OtpHash and OtpSetAt are only meaningful together.
type UserSnapshot struct {
	ID           string
	MobileNumber string
	IsVerified   bool
	FirstName    string
	LastName     string
	Email        string
	DateOfBirth  time.Time
	OtpHash      string
	OtpSetAt     *time.Time
}

func NewUser(mobileNumber string) (*User, error) {
	if strings.TrimSpace(mobileNumber) == "" {
		return nil, ErrMobileNumberRequired
	}
	return &User{
		id:           uuid.NewString(),
		mobileNumber: mobileNumber,
		dateOfBirth:  DefaultDateOfBirth,
	}, nil
}

// RestoreUser rebuilds a User from storage without re-running creation
// checks. A half-present OTP (hash without timestamp or the reverse) is
// treated as no OTP at all.
func RestoreUser(s UserSnapshot) *User {
	u := &User{
		id:           s.ID,
		mobileNumber: s.MobileNumber,
		isVerified:   s.IsVerified,
		firstName:    s.FirstName,
		lastName:     s.LastName,
		email:        s.Email,
		dateOfBirth:  s.DateOfBirth,
	}
	if s.OtpHash != "" && s.OtpSetAt != nil {
		u.otp = &pendingOtp{hash: s.OtpHash, setAt: s.OtpSetAt.UTC()}
	}
	return u
}

func (u *User) Snapshot() UserSnapshot {
	s := UserSnapshot{
		ID:           u.id,
		MobileNumber: u.mobileNumber,
		IsVerified:   u.isVerified,
		FirstName:    u.firstName,
		LastName:     u.lastName,
		Email:        u.email,
		DateOfBirth:  u.dateOfBirth,
	}
	if u.otp != nil {
		at := u.otp.setAt
		s.OtpHash = u.otp.hash
		s.OtpSetAt = &at
	}
	return s
}

func (u *User) ID() string             { return u.id }
func (u *User) MobileNumber() string   { return u.mobileNumber }
func (u *User) IsVerified() bool       { return u.isVerified }
func (u *User) FirstName() string      { return u.firstName }
func (u *User) LastName() string       { return u.lastName }
func (u *User) Email() string          { return u.email }
func (u *User) DateOfBirth() time.Time { return u.dateOfBirth }
func (u *User) HasPendingOtp() bool    { return u.otp != nil }

// OtpHash returns the hash of the pending OTP, or "" when none is pending.
func (u *User) OtpHash() string {
	if u.otp == nil {
		return ""
	}
	return u.otp.hash
}

// OtpSetAt returns when the pending OTP was issued.
func (u *User) OtpSetAt() (time.Time, bool) {
	if u.otp == nil {
		return time.Time{}, false
	}
	return u.otp.setAt, true
}

// SetOtp replaces any pending OTP with the given hash issued at now.
func (u *User) SetOtp(hash string, now time.Time) error {
	if strings.TrimSpace(hash) == "" {
		return ErrOtpHashRequired
	}
	u.otp = &pendingOtp{hash: hash, setAt: now.UTC()}
	return nil
}

// IsOtpExpired is true when no OTP is pending or more than OtpExpiration
// has elapsed since it was set. Exactly OtpExpiration is still valid.
func (u *User) IsOtpExpired(now time.Time) bool {
	if u.otp == nil {
		return true
	}
	return now.Sub(u.otp.setAt) > OtpExpiration
}

func (u *User) RemoveExpiredOtp() {
	u.otp = nil
}

// Verify marks the account verified and consumes the pending OTP.
func (u *User) Verify() {
	u.isVerified = true
	u.otp = nil
}

// UpdateProfile overwrites every profile field. All missing fields are
// reported in one error.
func (u *User) UpdateProfile(firstName, lastName, email string, dateOfBirth time.Time) error {
	fields := map[string]string{}
	if strings.TrimSpace(firstName) == "" {
		fields["first_name"] = "is required"
	}
	if strings.TrimSpace(lastName) == "" {
		fields["last_name"] = "is required"
	}
	if strings.TrimSpace(email) == "" {
		fields["email"] = "is required"
	}
	if dateOfBirth.IsZero() {
		fields["date_of_birth"] = "is required"
	}
	if len(fields) > 0 {
		return ErrInvalidProfile.WithFields(fields)
	}
	u.firstName = firstName
	u.lastName = lastName
	u.email = email
	u.dateOfBirth = dateOfBirth
	return nil
}
