package gatekeeper

import (
	"net/http"
	"time"
)

// SecurityReport is a read-only snapshot of the engine's security posture,
// returned by [Engine.SecurityReport].
type SecurityReport struct {
	SessionTTL          time.Duration
	MaxSessionsPerUser  int
	SweepInterval       time.Duration
	StoreTimeout        time.Duration
	CookieSecure        bool
	CookieSameSite      string
	CSRFHeader          string
	Argon2              PasswordConfigReport
	LoginThrottleActive bool
	LoginMaxAttempts    int
	LoginWindow         time.Duration
	AuditActive         bool
	MetricsEnabled      bool
}

// PasswordConfigReport contains the argon2id parameters active in the engine.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// SecurityReport summarizes the active configuration. Login throttling and
// audit are reported as active only when they are actually wired, not
// merely enabled in [Config].
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	r := SecurityReport{
		SessionTTL:         e.config.Session.TTL,
		MaxSessionsPerUser: e.config.Session.MaxSessionsPerUser,
		SweepInterval:      e.config.Session.SweepInterval,
		StoreTimeout:       e.config.Session.StoreTimeout,
		CookieSecure:       e.config.Cookie.Secure,
		CookieSameSite:     sameSiteName(e.config.Cookie.SameSite),
		CSRFHeader:         e.config.CSRF.HeaderName,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		LoginThrottleActive: e.limiter != nil,
		AuditActive:         e.audit != nil,
		MetricsEnabled:      e.metrics.Enabled(),
	}
	if r.LoginThrottleActive {
		r.LoginMaxAttempts = e.config.Login.MaxAttempts
		r.LoginWindow = e.config.Login.Window
	}
	return r
}

func sameSiteName(s http.SameSite) string {
	switch s {
	case http.SameSiteStrictMode:
		return "strict"
	case http.SameSiteLaxMode:
		return "lax"
	case http.SameSiteNoneMode:
		return "none"
	}
	return "default"
}
