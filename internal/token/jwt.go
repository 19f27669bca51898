package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dtroode/refreshkeeper/internal/clock"
	"github.com/dtroode/refreshkeeper/internal/model"
)

// DefaultAccessLifetime is the validity window of access tokens.
const DefaultAccessLifetime = 15 * time.Minute

// Claims represents access token claims carrying the user ID.
type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"id"`
}

// JWT mints and verifies HS256 access tokens.
type JWT struct {
	secretKey []byte
	lifetime  time.Duration
	clock     clock.Clock
	parser    *jwt.Parser
}

// NewJWT creates a new JWT codec. The secret is copied and never changes for
// the lifetime of the codec.
func NewJWT(secretKey string, lifetime time.Duration, clk clock.Clock) *JWT {
	if lifetime <= 0 {
		lifetime = DefaultAccessLifetime
	}
	if clk == nil {
		clk = clock.System{}
	}

	return &JWT{
		secretKey: []byte(secretKey),
		lifetime:  lifetime,
		clock:     clk,
		// zero leeway: a token is dead at its exp instant.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clk.Now),
		),
	}
}

// Mint creates a short-lived access token for userID.
func (j *JWT) Mint(userID uuid.UUID) (string, error) {
	now := j.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.lifetime)),
		},
		UserID: userID,
	})

	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, nil
}

// Verify validates signature and expiry and returns the claims. Every failure
// collapses to (nil, false).
func (j *JWT) Verify(tokenString string) (*Claims, bool) {
	claims := &Claims{}
	token, err := j.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return j.secretKey, nil
	})
	if err != nil || !token.Valid {
		return nil, false
	}
	if claims.UserID == uuid.Nil {
		return nil, false
	}

	return claims, true
}

// ParseAccessToken returns the user ID carried by a valid access token.
func (j *JWT) ParseAccessToken(tokenString string) (uuid.UUID, error) {
	claims, ok := j.Verify(tokenString)
	if !ok {
		return uuid.Nil, model.ErrInvalidToken
	}
	return claims.UserID, nil
}
