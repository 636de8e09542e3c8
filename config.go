package gatekeeper

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/gatekeeper/credential"
)

// Config is the full runtime configuration of an [Engine].
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Session  SessionConfig
	CSRF     CSRFConfig
	Cookie   CookieConfig
	Password credential.HashConfig
	Login    LoginLimitConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetime, the per-user cap and storage access.
type SessionConfig struct {
	TTL                time.Duration
	MaxSessionsPerUser int
	// SweepInterval is the period of the background expiry sweep. Zero
	// disables [Engine.StartSweeper].
	SweepInterval time.Duration
	// StoreTimeout bounds every session backend call made by the gate.
	StoreTimeout time.Duration
	RedisPrefix  string
	// RedisKeyGrace keeps an expired session key readable for this long
	// past its expiry. The backend adds SweepInterval on top, see
	// [SessionConfig.RedisKeyTTLGrace].
	RedisKeyGrace time.Duration
}

// RedisKeyTTLGrace is the grace the Redis backend adds to every session
// key TTL. It covers a full sweep period so an expired session is always
// observed by Lookup or the sweeper before Redis evicts the key.
func (s SessionConfig) RedisKeyTTLGrace() time.Duration {
	return s.RedisKeyGrace + s.SweepInterval
}

/*
====================================
CSRF CONFIG
====================================
*/

// CSRFConfig names where mutating requests carry the CSRF token.
type CSRFConfig struct {
	HeaderName string
	FormField  string
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig shapes the session cookie written on login.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

/*
====================================
LOGIN THROTTLE CONFIG
====================================
*/

// LoginLimitConfig bounds failed logins per identifier, and optionally per
// client IP, in a fixed window. It needs a Redis client (see
// [Builder.WithRedis]); without one logins are not throttled.
type LoginLimitConfig struct {
	Enabled     bool
	MaxAttempts int
	Window      time.Duration
	PerIP       bool
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles in-process counters and the validate latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			TTL:                24 * time.Hour,
			MaxSessionsPerUser: 5,
			SweepInterval:      10 * time.Minute,
			StoreTimeout:       2 * time.Second,
			RedisPrefix:        "gk",
			RedisKeyGrace:      time.Minute,
		},
		CSRF: CSRFConfig{
			HeaderName: "X-CSRF-Token",
			FormField:  "csrf_token",
		},
		Cookie: CookieConfig{
			Name:     "session_token",
			Path:     "/",
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		},
		Password: credential.DefaultHashConfig(),
		Login: LoginLimitConfig{
			Enabled:     true,
			MaxAttempts: 10,
			Window:      15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
		},
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c Config) Validate() error {
	if c.Session.TTL <= 0 {
		return errors.New("session TTL must be > 0")
	}
	if c.Session.MaxSessionsPerUser <= 0 {
		return errors.New("MaxSessionsPerUser must be > 0")
	}
	if c.Session.SweepInterval < 0 {
		return errors.New("SweepInterval must be >= 0")
	}
	if c.Session.StoreTimeout <= 0 {
		return errors.New("StoreTimeout must be > 0")
	}
	if c.Session.RedisKeyGrace < 0 {
		return errors.New("RedisKeyGrace must be >= 0")
	}
	if strings.TrimSpace(c.CSRF.HeaderName) == "" {
		return errors.New("CSRF header name must be set")
	}
	if strings.ContainsAny(c.CSRF.HeaderName, " :\r\n") {
		return fmt.Errorf("invalid CSRF header name %q", c.CSRF.HeaderName)
	}
	if strings.TrimSpace(c.Cookie.Name) == "" || strings.ContainsAny(c.Cookie.Name, " ;=,\t\r\n") {
		return fmt.Errorf("invalid session cookie name %q", c.Cookie.Name)
	}
	if c.Cookie.SameSite == http.SameSiteNoneMode && !c.Cookie.Secure {
		return errors.New("SameSite=None requires Secure cookies")
	}
	if err := c.Password.Validate(); err != nil {
		return fmt.Errorf("password config: %w", err)
	}
	if c.Login.Enabled && (c.Login.MaxAttempts <= 0 || c.Login.Window <= 0) {
		return errors.New("login throttle needs MaxAttempts > 0 and Window > 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be > 0")
	}
	return nil
}
