package gatekeeper

import (
	"errors"
	"io"
	"time"

	"github.com/MrEthical07/gatekeeper/credential"
	"github.com/MrEthical07/gatekeeper/internal/audit"
	"github.com/MrEthical07/gatekeeper/internal/rate"
	"github.com/MrEthical07/gatekeeper/permission"
	"github.com/MrEthical07/gatekeeper/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an [Engine]. A Builder can be used for one Build call.
type Builder struct {
	config Config

	backend   session.Backend
	redis     redis.UniversalClient
	directory credential.Directory
	policy    *permission.Policy
	auditSink AuditSink
	logger    *zerolog.Logger
	now       func() time.Time
	random    io.Reader

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithSessionBackend sets the storage backend for sessions. It takes
// precedence over [Builder.WithRedis].
func (b *Builder) WithSessionBackend(backend session.Backend) *Builder {
	b.backend = backend
	return b
}

// WithRedis stores sessions in Redis under Config.Session.RedisPrefix
// unless [Builder.WithSessionBackend] is also set. The client always backs
// the login throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserDirectory sets the user lookup used by [Engine.Login]. When the
// directory also implements [credential.RoleUpdater], [Engine.ChangeRole]
// is available.
func (b *Builder) WithUserDirectory(dir credential.Directory) *Builder {
	b.directory = dir
	return b
}

// WithPolicy replaces [permission.DefaultPolicy].
func (b *Builder) WithPolicy(p permission.Policy) *Builder {
	b.policy = &p
	return b
}

// WithAuditSink routes audit events to sink through the async dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine's server-side logger. The default discards.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithClock overrides the time source for sessions and audit timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithRandom overrides the entropy source for tokens and secrets.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.random = r
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
//
// Build may return an error when the configuration is invalid or a required
// collaborator is missing.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.directory == nil {
		return nil, errors.New("user directory required")
	}

	// -------- SESSION STORE --------
	backend := b.backend
	if backend == nil {
		if b.redis == nil {
			return nil, errors.New("session backend or redis client required")
		}
		backend = session.NewRedisBackend(b.redis, cfg.Session.RedisPrefix, cfg.Session.RedisKeyTTLGrace())
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	storeOpts := []session.Option{session.WithClock(now)}
	if b.random != nil {
		storeOpts = append(storeOpts, session.WithRandom(b.random))
	}
	store := session.NewStore(backend, session.Config{
		TTL:        cfg.Session.TTL,
		MaxPerUser: cfg.Session.MaxSessionsPerUser,
	}, storeOpts...)

	// -------- AUTHORIZATION --------
	policy := permission.DefaultPolicy()
	if b.policy != nil {
		policy = *b.policy
	}
	authorizer, err := permission.NewAuthorizer(policy)
	if err != nil {
		return nil, err
	}

	// -------- CREDENTIALS --------
	hasher, err := credential.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}
	verifier, err := credential.NewVerifier(b.directory, hasher)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}

	engine := &Engine{
		config:     cfg,
		store:      store,
		authorizer: authorizer,
		verifier:   verifier,
		directory:  b.directory,
		metrics:    NewMetrics(cfg.Metrics),
		logger:     logger.With().Str("component", "gatekeeper").Logger(),
		now:        now,
		closed:     make(chan struct{}),
	}

	// -------- LOGIN THROTTLE --------
	if cfg.Login.Enabled {
		if b.redis != nil {
			engine.limiter = rate.New(b.redis, rate.Config{
				Prefix:      cfg.Session.RedisPrefix + ":login",
				MaxAttempts: cfg.Login.MaxAttempts,
				Window:      cfg.Login.Window,
				PerIP:       cfg.Login.PerIP,
			})
		} else {
			engine.logger.Warn().Msg("login throttle enabled but no redis client configured; logins are not throttled")
		}
	}

	// -------- AUDIT --------
	if b.auditSink != nil {
		engine.audit = audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
		}, b.auditSink)
	}

	b.built = true
	return engine, nil
}
