package auth

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/l7mp/dflow/pkg/api/graph/v1alpha1"
)

const issuer = "dflow"

// Grant allows a permission on a transport path. The path "*" matches every path.
type Grant struct {
	Path       string              `json:"path"`
	Permission v1alpha1.Permission `json:"permission"`
}

// Claims represents the JWT claims we use
type Claims struct {
	Username string  `json:"username"`
	Grants   []Grant `json:"grants,omitempty"` // Path grants (empty = full access)
	jwt.RegisteredClaims
}

// TokenGenerator issues signed tokens.
type TokenGenerator struct {
	privateKey *rsa.PrivateKey
}

// NewTokenGenerator creates a token generator signing with the given key.
func NewTokenGenerator(privateKey *rsa.PrivateKey) *TokenGenerator {
	return &TokenGenerator{privateKey: privateKey}
}

// GenerateToken issues an RS256 token for a user with the given grants. A zero ttl issues a token
// that does not expire.
func (g *TokenGenerator) GenerateToken(username string, grants []Grant, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		Grants:   grants,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(g.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}
