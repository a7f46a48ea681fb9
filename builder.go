package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/calthas/authcore/internal/audit"
	"github.com/calthas/authcore/internal/rate"
	"github.com/calthas/authcore/jwt"
	"github.com/calthas/authcore/password"
)

// Builder assembles an Engine. Single use: Build succeeds at most once.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	store    Store
	notifier Notifier
	sink     AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the full configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client backing the rate limiters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore supplies the durable account store.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithNotifier supplies the token delivery transport. Optional; without
// one, verification and reset tokens are generated but go nowhere.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink supplies the audit event destination.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// Build validates the configuration and constructs the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("account store required")
	}
	if b.redis == nil && (cfg.Login.MaxAttempts > 0 ||
		cfg.EmailVerification.ResendLimit > 0 ||
		cfg.PasswordReset.RequestLimit > 0) {
		return nil, errors.New("rate limiting requires redis client")
	}

	engine := &Engine{
		config:   cfg,
		store:    b.store,
		notifier: b.notifier,
	}

	if b.redis != nil {
		engine.rateLimiter = rate.New(b.redis, cfg.RateLimit.Prefix)
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.sink)
	engine.metrics = NewMetrics(cfg.Metrics)

	ph, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		Key:           cloneBytes(cfg.JWT.Key),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}
