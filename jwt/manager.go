package jwt

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret key.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key.
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrExpired marks a structurally valid token past its expiry. Callers
	// should direct clients to the refresh flow.
	ErrExpired = errors.New("access token expired")
	// ErrSignature marks a token whose signature does not verify. Always a
	// fatal authentication failure, never retried.
	ErrSignature = errors.New("access token signature invalid")
	// ErrMalformed marks a token that is not a well-formed JWT or carries
	// claims of the wrong shape.
	ErrMalformed = errors.New("access token malformed")
)

// Config holds the signing key material and validation policy. Treated as
// immutable after NewManager.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	// Key is the HS256 shared secret, or the Ed25519 private key seed/full
	// key for MethodEd25519.
	Key []byte
	// PublicKey is only consulted for MethodEd25519 verification; derived
	// from Key when empty.
	PublicKey []byte
	Issuer    string
	Leeway    time.Duration
}

// AccessClaims is the decoded access-token payload. Subject carries the
// account ID, ID carries the unique token identifier (jti).
type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Manager creates and parses access tokens with a fixed configuration.
// Safe for concurrent use.
type Manager struct {
	config     Config
	signKey    any
	verifyKey  any
	signMethod jwt.SigningMethod
}

// NewManager validates cfg and prepares the key material.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid access TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	m := &Manager{config: cfg}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Key) < 32 {
			return nil, errors.New("hs256 requires a key of at least 32 bytes")
		}
		m.signMethod = jwt.SigningMethodHS256
		m.signKey = cfg.Key
		m.verifyKey = cfg.Key
	case MethodEd25519:
		priv, err := parseEdPrivateKey(cfg.Key)
		if err != nil {
			return nil, err
		}
		m.signMethod = jwt.SigningMethodEdDSA
		m.signKey = priv
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verifyKey = pub
		} else {
			m.verifyKey = priv.Public()
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return m, nil
}

// CreateAccess issues a signed access token for the account with the given
// role. Every token carries a fresh uuid jti for future revocation lists.
func (m *Manager) CreateAccess(accountID, role string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	return jwt.NewWithClaims(m.signMethod, claims).SignedString(m.signKey)
}

// AccessTTL reports the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// ParseAccess validates tokenStr and returns its claims, or one of
// ErrExpired, ErrSignature, ErrMalformed.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.signMethod.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(*jwt.Token) (any, error) {
		return m.verifyKey, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrMalformed
	}

	return claims, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignature
	default:
		return ErrMalformed
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	switch len(key) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(key), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(key), nil
	default:
		return nil, errors.New("ed25519 private key must be 32-byte seed or 64-byte key")
	}
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) != ed25519.PublicKeySize {
		return nil, errors.New("ed25519 public key must be 32 bytes")
	}
	return ed25519.PublicKey(key), nil
}
