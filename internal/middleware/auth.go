// Package middleware provides the gin middleware shared by every route:
// bearer token authentication, per-action authorization and request logging.
package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mmynk/estimator/internal/apperr"
	"github.com/mmynk/estimator/internal/auth"
)

// Context keys for values set by RequireAuth.
const (
	// ClaimsKey holds the validated *auth.Claims.
	ClaimsKey = "auth.claims"
	// UserIDKey holds the authenticated user ID.
	UserIDKey = "auth.user_id"
)

// GetClaims returns the caller's claims, or nil before authentication.
func GetClaims(c *gin.Context) *auth.Claims {
	v, _ := c.Get(ClaimsKey)
	claims, _ := v.(*auth.Claims)
	return claims
}

// GetUserID extracts the user ID from the context.
// Returns empty string if not found.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// Abort writes err as a JSON error response and stops the handler chain.
func Abort(c *gin.Context, err error) {
	status, body := apperr.ToHTTPError(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

// RequireAuth returns a middleware that validates JWT tokens and requires authentication.
// It extracts the token from the Authorization header, validates it, and stores
// the claims and user ID on the gin context.
func RequireAuth(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			Abort(c, apperr.Wrap(apperr.CodeUnauthenticated, auth.ErrMissingToken.Error(), auth.ErrMissingToken))
			return
		}

		// Parse Bearer token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			Abort(c, apperr.Wrap(apperr.CodeUnauthenticated, auth.ErrInvalidToken.Error(), auth.ErrInvalidToken))
			return
		}

		claims, err := jwtManager.Validate(parts[1])
		if err != nil {
			Abort(c, apperr.Wrap(apperr.CodeUnauthenticated, auth.ErrInvalidToken.Error(), err))
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

// RequireAction returns a middleware that lets the request through only when
// the caller's role is granted action. It must run after RequireAuth.
func RequireAction(gate *auth.Gate, action auth.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := gate.Authorize(GetClaims(c), action)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, auth.ErrMissingToken):
			Abort(c, apperr.Wrap(apperr.CodeUnauthenticated, err.Error(), err))
		default:
			Abort(c, apperr.Wrap(apperr.CodeForbidden, "not allowed to "+string(action)+" estimates", err))
		}
	}
}
