// Package jwt issues and validates the engine's signed access tokens on top
// of github.com/golang-jwt/jwt/v5. Refresh tokens are NOT JWTs; they are
// opaque secrets handled by the engine and never pass through this package.
//
// Parse failures are classified into three sentinel errors so callers can
// route an expired token to the refresh flow while treating signature and
// shape failures as fatal authentication errors.
package jwt
