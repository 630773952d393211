package helpers

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const minJWTSecretLen = 32

// JWTSettings is the token configuration injected at startup.
type JWTSettings struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

func (s JWTSettings) validate() error {
	var errs []error
	if len(s.Secret) < minJWTSecretLen {
		errs = append(errs, fmt.Errorf("jwt secret must be at least %d bytes", minJWTSecretLen))
	}
	if s.Issuer == "" {
		errs = append(errs, errors.New("jwt issuer is required"))
	}
	if s.Audience == "" {
		errs = append(errs, errors.New("jwt audience is required"))
	}
	if s.TTL <= 0 {
		errs = append(errs, errors.New("jwt ttl must be positive"))
	}
	return errors.Join(errs...)
}

// JWTManager is the only place access tokens are signed.
type JWTManager struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	clock    Clock
}

func NewJWTManager(settings JWTSettings, clock Clock) (*JWTManager, error) {
	if err := settings.validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &JWTManager{
		secret:   []byte(settings.Secret),
		issuer:   settings.Issuer,
		audience: settings.Audience,
		ttl:      settings.TTL,
		clock:    clock,
	}, nil
}

// TokenSubject is the identity embedded in an access token. Empty optional
// fields are left out of the token.
type TokenSubject struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}

type Claims struct {
	UserID     string `json:"id"`
	Email      string `json:"email,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	jwt.RegisteredClaims
}

func (m *JWTManager) GenerateAccessToken(sub TokenSubject) (string, time.Time, error) {
	if sub.ID == "" {
		return "", time.Time{}, errors.New("token subject id is required")
	}
	now := m.clock.Now()
	exp := now.Add(m.ttl)
	claims := &Claims{
		UserID:     sub.ID,
		Email:      sub.Email,
		GivenName:  sub.FirstName,
		FamilyName: sub.LastName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return s, exp, nil
}

func (m *JWTManager) ParseAccessToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.clock.Now),
	)
	if err != nil {
		return nil, err
	}
	if !tkn.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
