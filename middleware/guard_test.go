package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/MrEthical07/gatekeeper"
	"github.com/MrEthical07/gatekeeper/credential"
	"github.com/MrEthical07/gatekeeper/permission"
	"github.com/MrEthical07/gatekeeper/session"
)

const password = "correct horse battery staple"

func newEngine(t *testing.T) *gatekeeper.Engine {
	t.Helper()

	cfg := gatekeeper.DefaultConfig()
	cfg.Password = credential.HashConfig{
		Memory: 8 * 1024, Time: 1, Parallelism: 1,
		SaltLength: 16, KeyLength: 32, MaxPasswordBytes: 128,
	}

	hasher, err := credential.NewHasher(cfg.Password)
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	hash, err := hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	dir := credential.NewMemoryDirectory()
	for _, u := range []credential.UserRecord{
		{ID: "u-trainer", Identifier: "alice@example.com", Role: permission.RoleTrainer, PasswordHash: hash},
		{ID: "u-instructor", Identifier: "ian@example.com", Role: permission.RoleInstructor, PasswordHash: hash},
	} {
		if err := dir.Add(u); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	engine, err := gatekeeper.New().
		WithConfig(cfg).
		WithSessionBackend(session.NewMemoryBackend()).
		WithUserDirectory(dir).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func login(t *testing.T, engine *gatekeeper.Engine, identifier string) *gatekeeper.LoginResult {
	t.Helper()
	res, err := engine.Login(t.Context(), gatekeeper.LoginRequest{Identifier: identifier, Secret: password})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return res
}

type recordingHandler struct {
	called bool
	sc     gatekeeper.SessionContext
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.sc, _ = gatekeeper.SessionFromContext(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func withSession(req *http.Request, res *gatekeeper.LoginResult) *http.Request {
	req.AddCookie(&http.Cookie{Name: "session_token", Value: res.Token})
	return req
}

func TestGuardAllowsAndInjectsSession(t *testing.T) {
	engine := newEngine(t)
	res := login(t, engine, "alice@example.com")

	next := &recordingHandler{}
	h := Guard(engine, "material", "read")(next)

	rec := serve(h, withSession(httptest.NewRequest(http.MethodGet, "/materials", nil), res))
	if rec.Code != http.StatusNoContent || !next.called {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
	if next.sc.UserID != "u-trainer" || next.sc.Role != permission.RoleTrainer {
		t.Fatalf("unexpected session in context: %+v", next.sc)
	}
}

func TestGuardUnauthenticated(t *testing.T) {
	engine := newEngine(t)
	next := &recordingHandler{}
	h := Guard(engine, "material", "read", WithLoginRedirect("/login"))(next)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/materials", nil))
	if rec.Code != http.StatusUnauthorized || next.called {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "unauthenticated" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	browser := httptest.NewRequest(http.MethodGet, "/materials", nil)
	browser.Header.Set("Accept", "text/html,application/xhtml+xml")
	browser.AddCookie(&http.Cookie{Name: "session_token", Value: "not-a-real-token"})
	rec = serve(h, browser)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestGuardCSRF(t *testing.T) {
	engine := newEngine(t)
	res := login(t, engine, "alice@example.com")
	next := &recordingHandler{}
	h := Require(engine, "material")(next)

	rec := serve(h, withSession(httptest.NewRequest(http.MethodPost, "/materials", nil), res))
	if rec.Code != http.StatusForbidden || next.called {
		t.Fatalf("expected 403 without csrf token, got %d", rec.Code)
	}

	req := withSession(httptest.NewRequest(http.MethodPost, "/materials", nil), res)
	req.Header.Set("X-CSRF-Token", res.CSRFToken)
	if rec := serve(h, req); rec.Code != http.StatusNoContent {
		t.Fatalf("expected header token to pass, got %d", rec.Code)
	}

	form := url.Values{"csrf_token": {res.CSRFToken}, "title": {"intro"}}
	req = withSession(httptest.NewRequest(http.MethodPost, "/materials", strings.NewReader(form.Encode())), res)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if rec := serve(h, req); rec.Code != http.StatusNoContent {
		t.Fatalf("expected hidden field token to pass, got %d", rec.Code)
	}
}

func TestGuardForbiddenIsGeneric(t *testing.T) {
	engine := newEngine(t)
	res := login(t, engine, "ian@example.com")
	next := &recordingHandler{}
	h := Require(engine, "material")(next)

	req := withSession(httptest.NewRequest(http.MethodPut, "/materials/1", nil), res)
	req.Header.Set("X-CSRF-Token", res.CSRFToken)
	rec := serve(h, req)
	if rec.Code != http.StatusForbidden || next.called {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	body := strings.TrimSpace(rec.Body.String())
	if body != "not permitted" {
		t.Fatalf("forbidden body must be generic, got %q", body)
	}
}

func TestGuardOwnership(t *testing.T) {
	engine := newEngine(t)
	res := login(t, engine, "ian@example.com")
	owner := func(r *http.Request) string { return r.URL.Query().Get("owner") }
	h := Guard(engine, "interview", "write", WithOwner(owner))(&recordingHandler{})

	req := withSession(httptest.NewRequest(http.MethodPatch, "/interviews/9?owner=u-instructor", nil), res)
	req.Header.Set("X-CSRF-Token", res.CSRFToken)
	if rec := serve(h, req); rec.Code != http.StatusNoContent {
		t.Fatalf("expected own interview write to pass, got %d", rec.Code)
	}

	req = withSession(httptest.NewRequest(http.MethodPatch, "/interviews/9?owner=u-trainer", nil), res)
	req.Header.Set("X-CSRF-Token", res.CSRFToken)
	if rec := serve(h, req); rec.Code != http.StatusForbidden {
		t.Fatalf("expected foreign interview write to be forbidden, got %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Fatalf("unexpected client ip %q", got)
	}
	req.RemoteAddr = "pipe"
	if got := ClientIP(req); got != "pipe" {
		t.Fatalf("unexpected fallback %q", got)
	}
}
