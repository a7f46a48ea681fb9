package authcore

import (
	"errors"
	"time"
)

// JWTConfig controls access token issuance and parsing.
type JWTConfig struct {
	// SigningMethod is "hs256" or "ed25519".
	SigningMethod string
	// Key is the HMAC secret (hs256, min 32 bytes) or the Ed25519
	// private key or seed (ed25519).
	Key []byte
	// PublicKey is the Ed25519 public key. Optional when Key carries the
	// full private key; required for verify-only deployments.
	PublicKey []byte
	AccessTTL time.Duration
	Issuer    string
	// Leeway tolerated on exp/iat validation. Capped at two minutes.
	Leeway time.Duration
}

// PasswordConfig carries argon2id parameters and hash lifecycle policy.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// UpgradeOnLogin rehashes stored digests whose parameters fall below
	// the configured ones, during successful logins.
	UpgradeOnLogin bool
}

// RefreshConfig controls refresh token lineages.
type RefreshConfig struct {
	TTL time.Duration
}

// LoginConfig controls both abuse layers on the login path: the ephemeral
// Redis window and the durable account lockout.
type LoginConfig struct {
	MaxAttempts int
	Window      time.Duration
	// PerIPThrottle adds a second counter keyed by client IP, populated
	// from WithClientIP.
	PerIPThrottle bool

	// LockoutThreshold is the consecutive-failure count that locks the
	// account row. Zero disables durable lockout.
	LockoutThreshold int
	LockoutDuration  time.Duration

	// RequireVerified refuses login and refresh for accounts that have
	// not completed email verification.
	RequireVerified bool
}

// EmailVerificationConfig controls verification token issuance.
type EmailVerificationConfig struct {
	Enabled  bool
	TokenTTL time.Duration
	// ResendLimit caps explicit resend requests per email per window.
	ResendLimit  int
	ResendWindow time.Duration
}

// PasswordResetConfig controls reset token issuance.
type PasswordResetConfig struct {
	TokenTTL time.Duration
	// RequestLimit applies per email and, when an IP is in context, per
	// IP as well.
	RequestLimit  int
	RequestWindow time.Duration
}

// RateLimitConfig namespaces the Redis counters.
type RateLimitConfig struct {
	Prefix string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events instead of blocking callers when the
	// buffer is full. Drops are counted and visible via AuditDropped.
	DropIfFull bool
}

// MetricsConfig controls the in-process counter set.
type MetricsConfig struct {
	Enabled bool
}

// Config is the full engine configuration. Start from DefaultConfig and
// override fields; the zero value does not validate.
type Config struct {
	JWT               JWTConfig
	Password          PasswordConfig
	Refresh           RefreshConfig
	Login             LoginConfig
	EmailVerification EmailVerificationConfig
	PasswordReset     PasswordResetConfig
	RateLimit         RateLimitConfig
	Audit             AuditConfig
	Metrics           MetricsConfig

	// DefaultRole is assigned to accounts created by Register.
	DefaultRole string
}

// DefaultConfig returns the baseline configuration. JWT.Key must still be
// provided by the integrator.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "hs256",
			AccessTTL:     15 * time.Minute,
			Leeway:        30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Refresh: RefreshConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Login: LoginConfig{
			MaxAttempts:      10,
			Window:           5 * time.Minute,
			PerIPThrottle:    true,
			LockoutThreshold: 10,
			LockoutDuration:  15 * time.Minute,
		},
		EmailVerification: EmailVerificationConfig{
			Enabled:      true,
			TokenTTL:     24 * time.Hour,
			ResendLimit:  3,
			ResendWindow: 5 * time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:      time.Hour,
			RequestLimit:  3,
			RequestWindow: 5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Prefix: "acr",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		DefaultRole: RoleUser,
	}
}

// Validate checks cross-field consistency. Component constructors apply
// their own stricter checks on top.
func (c Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("authcore: JWT.AccessTTL must be positive")
	}
	if len(c.JWT.Key) == 0 {
		return errors.New("authcore: JWT.Key is required")
	}
	if c.Refresh.TTL <= 0 {
		return errors.New("authcore: Refresh.TTL must be positive")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("authcore: Refresh.TTL must exceed JWT.AccessTTL")
	}
	if c.Login.MaxAttempts > 0 && c.Login.Window <= 0 {
		return errors.New("authcore: Login.Window must be positive when MaxAttempts is set")
	}
	if c.Login.LockoutThreshold > 0 && c.Login.LockoutDuration <= 0 {
		return errors.New("authcore: Login.LockoutDuration must be positive when LockoutThreshold is set")
	}
	if c.EmailVerification.Enabled && c.EmailVerification.TokenTTL <= 0 {
		return errors.New("authcore: EmailVerification.TokenTTL must be positive")
	}
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("authcore: PasswordReset.TokenTTL must be positive")
	}
	if c.DefaultRole == "" {
		return errors.New("authcore: DefaultRole is required")
	}
	return nil
}

func cloneConfig(c Config) Config {
	out := c
	out.JWT.Key = cloneBytes(c.JWT.Key)
	out.JWT.PublicKey = cloneBytes(c.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
