package helpers

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOTPSecret = "JBSWY3DPEHPK3PXP"

func fixedClock(t time.Time) Clock { return ClockFunc(func() time.Time { return t }) }

func TestNewOTPManager_RejectsBadSecret(t *testing.T) {
	_, err := NewOTPManager("", nil)
	assert.ErrorIs(t, err, ErrOTPSecretMissing)

	_, err = NewOTPManager("not base32 !!", nil)
	assert.Error(t, err)

	_, err = NewOTPManager("jbswy3dpehpk3pxp", nil)
	assert.NoError(t, err, "lower case base32 is accepted")
}

func TestGenerate_ProducesSixDigitTOTP(t *testing.T) {
	now := time.Date(2024, time.August, 2, 12, 0, 0, 0, time.UTC)
	m, err := NewOTPManager(testOTPSecret, fixedClock(now))
	require.NoError(t, err)

	code, hash, err := m.Generate()
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Equal(t, HashOTP(code), hash)
	assert.NotEqual(t, code, hash)

	expected, err := totp.GenerateCode(testOTPSecret, now)
	require.NoError(t, err)
	assert.Equal(t, expected, code)
}

func TestGenerate_SameStepSameCode(t *testing.T) {
	now := time.Date(2024, time.August, 2, 12, 0, 0, 0, time.UTC)
	clock := now
	m, err := NewOTPManager(testOTPSecret, ClockFunc(func() time.Time { return clock }))
	require.NoError(t, err)

	a, _, err := m.Generate()
	require.NoError(t, err)
	clock = now.Add(10 * time.Second)
	b, _, err := m.Generate()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestVerify(t *testing.T) {
	m, err := NewOTPManager(testOTPSecret, fixedClock(time.Now()))
	require.NoError(t, err)

	code, hash, err := m.Generate()
	require.NoError(t, err)

	assert.True(t, m.Verify(hash, code))
	assert.False(t, m.Verify(hash, "000000x"))
	assert.False(t, m.Verify(hash, ""))
	assert.False(t, m.Verify("", code))
}

func TestHashOTP_Deterministic(t *testing.T) {
	assert.Equal(t, HashOTP("123456"), HashOTP("123456"))
	assert.NotEqual(t, HashOTP("123456"), HashOTP("123457"))
	// base64(sha256("123456"))
	assert.Equal(t, "jZae727K08KaOmKSgOaGzww/XVqGr/PKEgIMkjrcbJI=", HashOTP("123456"))
}
