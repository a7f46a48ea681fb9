package authcore_test

import (
	"strings"
	"testing"
	"time"

	"github.com/calthas/authcore"
)

func TestDefaultConfigValidatesWithKey(t *testing.T) {
	cfg := authcore.DefaultConfig()
	cfg.JWT.Key = []byte("test-hmac-key-32-bytes-long!!!!!")

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestConfigValidateRejections(t *testing.T) {
	base := func() authcore.Config {
		cfg := authcore.DefaultConfig()
		cfg.JWT.Key = []byte("test-hmac-key-32-bytes-long!!!!!")
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*authcore.Config)
		want   string
	}{
		{"missing key", func(c *authcore.Config) { c.JWT.Key = nil }, "JWT.Key"},
		{"zero access ttl", func(c *authcore.Config) { c.JWT.AccessTTL = 0 }, "AccessTTL"},
		{"zero refresh ttl", func(c *authcore.Config) { c.Refresh.TTL = 0 }, "Refresh.TTL"},
		{"refresh shorter than access", func(c *authcore.Config) { c.Refresh.TTL = time.Minute }, "Refresh.TTL"},
		{"window without duration", func(c *authcore.Config) { c.Login.Window = 0 }, "Login.Window"},
		{"lockout without duration", func(c *authcore.Config) { c.Login.LockoutDuration = 0 }, "LockoutDuration"},
		{"verification without ttl", func(c *authcore.Config) { c.EmailVerification.TokenTTL = 0 }, "TokenTTL"},
		{"reset without ttl", func(c *authcore.Config) { c.PasswordReset.TokenTTL = 0 }, "TokenTTL"},
		{"empty default role", func(c *authcore.Config) { c.DefaultRole = "" }, "DefaultRole"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestBuilderRequiresRedisWithLimits(t *testing.T) {
	env := newTestEngine(t, nil)

	engine, err := authcore.New().
		WithConfig(testConfig()).
		WithStore(env.store).
		Build()
	if err == nil || engine != nil {
		t.Fatal("build without redis must fail while limits are configured")
	}
}

func TestBuilderRequiresStore(t *testing.T) {
	if _, err := authcore.New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("build without store must fail")
	}
}

func TestBuilderClonesKeyMaterial(t *testing.T) {
	var key []byte
	env := newTestEngine(t, func(cfg *authcore.Config) {
		key = cfg.JWT.Key
	})
	_, pair := env.registerAndLogin(t, "a@x.com", "pw")

	// Corrupting the caller's key slice after Build must not reach the
	// engine's verification key.
	key[0] ^= 0xff
	if _, err := env.engine.ParseAccess(pair.AccessToken); err != nil {
		t.Fatalf("engine must hold its own key copy: %v", err)
	}
}
