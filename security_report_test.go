package gatekeeper

import (
	"net/http"
	"testing"
	"time"

	"github.com/MrEthical07/gatekeeper/credential"
	"github.com/MrEthical07/gatekeeper/session"
)

func TestSecurityReportWithRedis(t *testing.T) {
	env := newTestEnv(t, nil)

	r := env.engine.SecurityReport()
	if r.SessionTTL != 24*time.Hour || r.MaxSessionsPerUser != 5 {
		t.Fatalf("unexpected session posture: %+v", r)
	}
	if !r.CookieSecure || r.CookieSameSite != "strict" || r.CSRFHeader != "X-CSRF-Token" {
		t.Fatalf("unexpected transport posture: %+v", r)
	}
	if !r.LoginThrottleActive || r.LoginMaxAttempts != 10 || r.LoginWindow != 15*time.Minute {
		t.Fatalf("expected active login throttle, got %+v", r)
	}
	if !r.AuditActive || !r.MetricsEnabled {
		t.Fatalf("expected audit and metrics active, got %+v", r)
	}
	if r.Argon2.Memory != 8*1024 || r.Argon2.KeyLength != 32 {
		t.Fatalf("unexpected argon2 report: %+v", r.Argon2)
	}
}

func TestSecurityReportWithoutRedis(t *testing.T) {
	cfg := testConfig()
	cfg.Cookie.SameSite = http.SameSiteLaxMode

	engine, err := New().
		WithConfig(cfg).
		WithSessionBackend(session.NewMemoryBackend()).
		WithUserDirectory(credential.NewMemoryDirectory()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	r := engine.SecurityReport()
	if r.LoginThrottleActive || r.LoginMaxAttempts != 0 {
		t.Fatalf("throttle cannot be active without redis: %+v", r)
	}
	if r.AuditActive {
		t.Fatal("audit cannot be active without a sink")
	}
	if r.CookieSameSite != "lax" {
		t.Fatalf("expected lax, got %q", r.CookieSameSite)
	}

	var nilEngine *Engine
	if got := nilEngine.SecurityReport(); got != (SecurityReport{}) {
		t.Fatalf("nil engine must report zero value, got %+v", got)
	}
}
