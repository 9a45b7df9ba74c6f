package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenInvalid          = errors.New("token is invalid")
	ErrTokenExpired          = errors.New("token is expired")
	ErrTokenSignatureInvalid = errors.New("token signature is invalid")
	ErrWrongScope            = errors.New("token has the wrong scope")
)

// Token scopes.
const (
	ScopeAdmin = "admin"
	ScopeGate  = "gate"
)

// ticketTTL bounds how long a half-finished gate stays open.
const ticketTTL = 10 * time.Minute

// Claims are the JWT claims of both admin tokens and gate tickets.
type Claims struct {
	Scope string `json:"scope"`
	Step  int    `json:"step,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs and validates admin tokens and gate tickets with HS256.
type TokenService struct {
	secretKey []byte
	issuer    string
	ttl       time.Duration
	now       func() time.Time
}

// NewTokenService creates a token service. ttl applies to admin tokens.
func NewTokenService(secret, issuer string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret key cannot be empty")
	}
	if issuer == "" {
		return nil, errors.New("jwt issuer cannot be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("admin token TTL must be positive")
	}
	return &TokenService{
		secretKey: []byte(secret),
		issuer:    issuer,
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// IssueAdmin signs a token granting write access.
func (s *TokenService) IssueAdmin(ctx context.Context) (string, error) {
	return s.sign(ScopeAdmin, 0, s.ttl)
}

// IssueTicket signs a short-lived ticket proving the gate was passed up to step.
func (s *TokenService) IssueTicket(ctx context.Context, step int) (string, error) {
	return s.sign(ScopeGate, step, ticketTTL)
}

// ValidateAdmin validates tokenString and requires the admin scope.
func (s *TokenService) ValidateAdmin(ctx context.Context, tokenString string) (*Claims, error) {
	return s.validateScope(ctx, tokenString, ScopeAdmin)
}

// ValidateTicket validates tokenString and requires the gate scope.
func (s *TokenService) ValidateTicket(ctx context.Context, tokenString string) (*Claims, error) {
	return s.validateScope(ctx, tokenString, ScopeGate)
}

// Validate checks signature and expiry and returns the claims.
func (s *TokenService) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenInvalid
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenSignatureInvalid
		}
		return s.secretKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignatureInvalid
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *TokenService) validateScope(ctx context.Context, tokenString, scope string) (*Claims, error) {
	claims, err := s.Validate(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Scope != scope {
		return nil, ErrWrongScope
	}
	return claims, nil
}

func (s *TokenService) sign(scope string, step int, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &Claims{
		Scope: scope,
		Step:  step,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}
