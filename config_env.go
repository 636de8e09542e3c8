package gatekeeper

import (
	"time"

	"github.com/spf13/viper"
)

// Environment keys recognized by [LoadConfig].
const (
	EnvSessionTTLSeconds     = "SESSION_TTL_SECONDS"
	EnvMaxSessionsPerUser    = "MAX_SESSIONS_PER_USER"
	EnvCSRFHeaderName        = "CSRF_HEADER_NAME"
	EnvCSRFFormField         = "CSRF_FORM_FIELD"
	EnvSweepIntervalSeconds  = "SWEEP_INTERVAL_SECONDS"
	EnvSessionCookieName     = "SESSION_COOKIE_NAME"
	EnvSessionStoreTimeoutMS = "SESSION_STORE_TIMEOUT_MS"
	EnvCookieSecure          = "COOKIE_SECURE"
	EnvRedisPrefix           = "REDIS_PREFIX"
	EnvLoginMaxAttempts      = "LOGIN_MAX_ATTEMPTS"
	EnvLoginWindowSeconds    = "LOGIN_WINDOW_SECONDS"
	EnvLoginThrottlePerIP    = "LOGIN_THROTTLE_PER_IP"
	EnvAuditBufferSize       = "AUDIT_BUFFER_SIZE"
	EnvMetricsEnabled        = "METRICS_ENABLED"
)

// LoadConfig overlays values from v (environment, config file or explicit
// Set calls) on [DefaultConfig] and validates the result. A nil v reads
// the process environment.
func LoadConfig(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault(EnvSessionTTLSeconds, int(def.Session.TTL/time.Second))
	v.SetDefault(EnvMaxSessionsPerUser, def.Session.MaxSessionsPerUser)
	v.SetDefault(EnvCSRFHeaderName, def.CSRF.HeaderName)
	v.SetDefault(EnvCSRFFormField, def.CSRF.FormField)
	v.SetDefault(EnvSweepIntervalSeconds, int(def.Session.SweepInterval/time.Second))
	v.SetDefault(EnvSessionCookieName, def.Cookie.Name)
	v.SetDefault(EnvSessionStoreTimeoutMS, int(def.Session.StoreTimeout/time.Millisecond))
	v.SetDefault(EnvCookieSecure, def.Cookie.Secure)
	v.SetDefault(EnvRedisPrefix, def.Session.RedisPrefix)
	v.SetDefault(EnvLoginMaxAttempts, def.Login.MaxAttempts)
	v.SetDefault(EnvLoginWindowSeconds, int(def.Login.Window/time.Second))
	v.SetDefault(EnvLoginThrottlePerIP, def.Login.PerIP)
	v.SetDefault(EnvAuditBufferSize, def.Audit.BufferSize)
	v.SetDefault(EnvMetricsEnabled, def.Metrics.Enabled)

	cfg := def
	cfg.Session.TTL = time.Duration(v.GetInt64(EnvSessionTTLSeconds)) * time.Second
	cfg.Session.MaxSessionsPerUser = v.GetInt(EnvMaxSessionsPerUser)
	cfg.Session.SweepInterval = time.Duration(v.GetInt64(EnvSweepIntervalSeconds)) * time.Second
	cfg.Session.StoreTimeout = time.Duration(v.GetInt64(EnvSessionStoreTimeoutMS)) * time.Millisecond
	cfg.Session.RedisPrefix = v.GetString(EnvRedisPrefix)
	cfg.CSRF.HeaderName = v.GetString(EnvCSRFHeaderName)
	cfg.CSRF.FormField = v.GetString(EnvCSRFFormField)
	cfg.Cookie.Name = v.GetString(EnvSessionCookieName)
	cfg.Cookie.Secure = v.GetBool(EnvCookieSecure)
	cfg.Login.MaxAttempts = v.GetInt(EnvLoginMaxAttempts)
	cfg.Login.Window = time.Duration(v.GetInt64(EnvLoginWindowSeconds)) * time.Second
	cfg.Login.PerIP = v.GetBool(EnvLoginThrottlePerIP)
	cfg.Login.Enabled = cfg.Login.MaxAttempts > 0
	cfg.Audit.BufferSize = v.GetInt(EnvAuditBufferSize)
	cfg.Metrics.Enabled = v.GetBool(EnvMetricsEnabled)
	cfg.Metrics.EnableLatencyHistograms = cfg.Metrics.Enabled

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
