package auth

import "errors"

// Identity errors. Both map to 401 at the gateway; authorization denials
// are a separate 403 with no detail, so callers cannot probe which rule
// failed.
var (
	ErrNoToken      = errors.New("no bearer token on request")
	ErrInvalidToken = errors.New("invalid or expired token")
)
