package helpers

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// OTP helpers

const (
	OTPPeriodSeconds = 30
	OTPDigits        = otp.DigitsSix
)

var ErrOTPSecretMissing = errors.New("otp secret key is not configured")

// OTPManager issues 6-digit TOTP codes from a server secret and hashes them
// for storage. It holds no per-user state.
type OTPManager struct {
	secret string
	clock  Clock
}

// NewOTPManager validates the base32 secret up front so a bad deployment
// fails at startup rather than on the first login.
func NewOTPManager(secretBase32 string, clock Clock) (*OTPManager, error) {
	secret := strings.ToUpper(strings.TrimSpace(secretBase32))
	if secret == "" {
		return nil, ErrOTPSecretMissing
	}
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.TrimRight(secret, "="))
	if err != nil || len(raw) == 0 {
		return nil, fmt.Errorf("otp secret must be base32: %w", err)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &OTPManager{secret: secret, clock: clock}, nil
}

// Generate returns the current code and the hash to persist.
func (m *OTPManager) Generate() (code, hash string, err error) {
	code, err = totp.GenerateCodeCustom(m.secret, m.clock.Now(), totp.ValidateOpts{
		Period:    OTPPeriodSeconds,
		Digits:    OTPDigits,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate otp: %w", err)
	}
	return code, HashOTP(code), nil
}

// Verify reports whether submitted hashes to storedHash.
func (m *OTPManager) Verify(storedHash, submitted string) bool {
	if storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashOTP(submitted)), []byte(storedHash)) == 1
}

// HashOTP is base64(SHA-256(code)).
func HashOTP(code string) string {
	sum := sha256.Sum256([]byte(code))
	return base64.StdEncoding.EncodeToString(sum[:])
}
