package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MrEthical07/gatekeeper"
	"github.com/MrEthical07/gatekeeper/credential"
	"github.com/MrEthical07/gatekeeper/internal/sqlite"
	"github.com/MrEthical07/gatekeeper/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// runtimeMode says what a command needs from the session backend.
type runtimeMode uint8

const (
	// modeServe runs the daemon; an embedded backend is acceptable.
	modeServe runtimeMode = iota
	// modeDirectory only touches the user database.
	modeDirectory
	// modeSessions acts on sessions created by a running daemon, so the
	// backend must be shared with it.
	modeSessions
)

var errEphemeralSessions = errors.New("one-shot session commands need a shared backend: set REDIS_ADDR or SESSION_BACKEND=sqlite")

// runtime owns every process-level resource behind an engine.
type runtime struct {
	daemon    daemonConfig
	config    gatekeeper.Config
	logger    zerolog.Logger
	db        *sql.DB
	directory *credential.SQLDirectory
	redis     redis.UniversalClient
	engine    *gatekeeper.Engine
	closers   []func()
}

func (rt *runtime) Close() {
	if rt.engine != nil {
		rt.engine.Close()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// openRuntime loads configuration, opens the user database and the
// session backend, and builds the engine.
func openRuntime(ctx context.Context, mode runtimeMode) (*runtime, error) {
	v := viper.New()
	daemon := loadDaemonConfig(v)
	if mode == modeSessions && daemon.ephemeralSessions() {
		return nil, errEphemeralSessions
	}
	cfg, err := gatekeeper.LoadConfig(v)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	rt := &runtime{daemon: daemon, config: cfg, logger: newLogger(daemon)}

	db, err := sqlite.Open(ctx, daemon.DatabasePath)
	if err != nil {
		return nil, err
	}
	rt.db = db
	rt.closers = append(rt.closers, func() { _ = db.Close() })
	rt.directory = credential.NewSQLDirectory(db)

	backend, err := rt.openSessionBackend()
	if err != nil {
		rt.Close()
		return nil, err
	}

	if rt.redis == nil && daemon.RedisAddr != "" {
		rt.redis = rt.dialRedis(daemon.RedisAddr)
	}

	builder := gatekeeper.New().
		WithConfig(cfg).
		WithSessionBackend(backend).
		WithUserDirectory(rt.directory).
		WithAuditSink(gatekeeper.NewLogSink(rt.logger)).
		WithLogger(rt.logger)
	if rt.redis != nil {
		builder = builder.WithRedis(rt.redis)
	}
	engine, err := builder.Build()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	rt.engine = engine
	return rt, nil
}

func (rt *runtime) openSessionBackend() (session.Backend, error) {
	switch rt.daemon.SessionBackend {
	case "sqlite":
		return session.NewSQLBackend(rt.db), nil
	case "memory":
		rt.logger.Warn().Msg("sessions are kept in memory and lost on restart")
		return session.NewMemoryBackend(), nil
	case "redis", "":
		addr := rt.daemon.RedisAddr
		if addr == "" {
			mr, err := miniredis.Run()
			if err != nil {
				return nil, fmt.Errorf("start embedded redis: %w", err)
			}
			rt.closers = append(rt.closers, mr.Close)
			addr = mr.Addr()
			rt.logger.Warn().Str("addr", addr).Msg("REDIS_ADDR not set, using embedded miniredis")
		}
		rt.redis = rt.dialRedis(addr)
		return session.NewRedisBackend(rt.redis, rt.config.Session.RedisPrefix, rt.config.Session.RedisKeyTTLGrace()), nil
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", rt.daemon.SessionBackend)
	}
}

// ephemeralSessions reports whether the configured backend lives only in
// this process.
func (d daemonConfig) ephemeralSessions() bool {
	switch d.SessionBackend {
	case "memory":
		return true
	case "redis", "":
		return d.RedisAddr == ""
	}
	return false
}

func (rt *runtime) dialRedis(addr string) redis.UniversalClient {
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	rt.closers = append(rt.closers, func() { _ = client.Close() })
	return client
}
