package auth

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"coursechat/pkg/types"
)

// Claims is the token payload: subject carries the user id, the rest the
// display identity the gateway stamps onto broadcast frames.
type Claims struct {
	Username string     `json:"name"`
	Role     types.Role `json:"role"`
	jwt.RegisteredClaims
}

// Verifier resolves the user identity on an incoming connection request
// from an HMAC-signed bearer token.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the given signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// UserFromRequest extracts and verifies the token on an upgrade request.
// Browsers cannot set headers on WebSocket dials, so a ?token= query
// parameter is accepted alongside the Authorization header.
func (v *Verifier) UserFromRequest(r *http.Request) (*types.User, error) {
	token := ""
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimPrefix(header, "Bearer ")
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return nil, ErrNoToken
	}
	return v.Verify(token)
}

// Verify parses a signed token and returns the user it identifies.
func (v *Verifier) Verify(tokenString string) (*types.User, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, ErrInvalidToken
	}
	if !types.IsValidRole(claims.Role) {
		return nil, ErrInvalidToken
	}

	return &types.User{ID: userID, Username: claims.Username, Role: claims.Role}, nil
}

// Sign issues a token for a user. Used by the account service and by tests.
func (v *Verifier) Sign(user *types.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
