package session

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenUsable reports whether tok is worth forwarding to the backend. The
// signature is not checked here; the backend stays the authority. A JWT whose
// exp has passed is dropped, and anything that is not a JWT with claims is kept.
func TokenUsable(tok string, now time.Time) bool {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return now.Before(exp.Time)
}
