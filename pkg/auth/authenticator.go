package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/l7mp/dflow/pkg/api/graph/v1alpha1"
)

// TokenQueryParam is the query parameter a token may be passed in when the client cannot set
// headers, e.g., a browser opening a WebSocket.
const TokenQueryParam = "access_token"

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")
)

// User is an authenticated user.
type User struct {
	Name   string
	Grants []Grant
}

// JWTAuthenticator validates JWT tokens and extracts user info
type JWTAuthenticator struct {
	publicKey *rsa.PublicKey
}

// NewJWTAuthenticator creates a new JWT authenticator
func NewJWTAuthenticator(publicKey *rsa.PublicKey) *JWTAuthenticator {
	return &JWTAuthenticator{publicKey: publicKey}
}

// AuthenticateRequest returns the user the request carries a token for. The boolean is false if
// the request carries no token.
func (a *JWTAuthenticator) AuthenticateRequest(req *http.Request) (*User, bool, error) {
	var token string
	if authHeader := req.Header.Get("Authorization"); authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return nil, false, fmt.Errorf("%w: invalid authorization header format", ErrUnauthenticated)
		}
		token = strings.TrimPrefix(authHeader, "Bearer ")
	} else {
		token = req.URL.Query().Get(TokenQueryParam)
	}

	if token == "" {
		return nil, false, nil // No auth provided
	}

	user, err := a.Authenticate(token)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// Authenticate validates a token.
func (a *JWTAuthenticator) Authenticate(token string) (*User, error) {
	claims := &Claims{}
	jwtToken, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.publicKey, nil
	}, jwt.WithIssuer(issuer))

	if err != nil || !jwtToken.Valid {
		return nil, fmt.Errorf("%w: invalid token: %w", ErrUnauthenticated, err)
	}

	return &User{Name: claims.Username, Grants: claims.Grants}, nil
}

// Permission returns what the user may do on a path whose configured permission is given. A user
// without grants gets the configured permission, otherwise the configured permission is
// intersected with the union of the grants matching the path.
func (u *User) Permission(path string, configured v1alpha1.Permission) v1alpha1.Permission {
	if len(u.Grants) == 0 {
		return configured
	}

	granted := v1alpha1.NoPermission
	for _, g := range u.Grants {
		if g.Path == "*" || g.Path == path {
			granted = union(granted, g.Permission)
		}
	}

	return configured.Intersect(granted)
}

func union(a, b v1alpha1.Permission) v1alpha1.Permission {
	r := a.CanRead() || b.CanRead()
	w := a.CanWrite() || b.CanWrite()
	switch {
	case r && w:
		return v1alpha1.ReadWrite
	case r:
		return v1alpha1.Read
	case w:
		return v1alpha1.Write
	}
	return v1alpha1.NoPermission
}
