package sessions

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PeekExpiry reads the exp claim of a JWT without verifying it. The token is
// opaque to every decision in this module; the result is for display and logging.
func PeekExpiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
