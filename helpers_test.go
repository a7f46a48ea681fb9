package authcore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/calthas/authcore"
	"github.com/calthas/authcore/store/memory"
)

// recordingNotifier captures delivered tokens so tests can redeem them.
type recordingNotifier struct {
	verification map[string]string
	reset        map[string]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		verification: make(map[string]string),
		reset:        make(map[string]string),
	}
}

func (n *recordingNotifier) SendVerification(_ context.Context, account authcore.Account, token string) error {
	n.verification[account.Email] = token
	return nil
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, account authcore.Account, token string) error {
	n.reset[account.Email] = token
	return nil
}

func testConfig() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.JWT.Key = []byte("test-hmac-key-32-bytes-long!!!!!")
	cfg.Audit.Enabled = false
	return cfg
}

type testEnv struct {
	engine   *authcore.Engine
	store    *memory.Store
	notifier *recordingNotifier
	redis    *miniredis.Miniredis
}

func newTestEngine(t *testing.T, mutate func(*authcore.Config)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	// Keep argon2 cheap in tests; production defaults live in DefaultConfig.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	if mutate != nil {
		mutate(&cfg)
	}

	store := memory.New()
	notifier := newRecordingNotifier()

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(store).
		WithNotifier(notifier).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, store: store, notifier: notifier, redis: mr}
}

// registerAndLogin seeds one account and returns its live token pair.
func (env *testEnv) registerAndLogin(t *testing.T, email, password string) (authcore.Account, authcore.TokenPair) {
	t.Helper()

	account, err := env.engine.Register(context.Background(), email, password)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	pair, err := env.engine.Login(context.Background(), email, password)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return account, pair
}

func mustBeWithin(t *testing.T, d time.Duration, got, want time.Time) {
	t.Helper()
	diff := got.Sub(want)
	if diff < -d || diff > d {
		t.Fatalf("time %v not within %v of %v", got, d, want)
	}
}
