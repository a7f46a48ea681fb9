// Package authcore is an embeddable authentication and session core:
// argon2id credential storage, short-lived JWT access tokens, rotating
// opaque refresh tokens with lineage-wide theft revocation, single-use
// email verification and password reset tokens, and layered abuse
// controls (Redis window counters plus durable account lockout).
//
// The engine owns no transport. Integrators supply a Store for durable
// state, a Redis client for rate limiting, and optionally a Notifier for
// token delivery, then call the operation methods from their own HTTP or
// RPC handlers:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(rdb).
//		WithStore(store).
//		WithNotifier(mailer).
//		Build()
//
// All operations return sentinel errors from errors.go; match with
// errors.Is.
package authcore
