package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/gatekeeper"
	"github.com/MrEthical07/gatekeeper/credential"
	"github.com/MrEthical07/gatekeeper/csrf"
	"github.com/MrEthical07/gatekeeper/metrics/export/prometheus"
	"github.com/MrEthical07/gatekeeper/middleware"
	"github.com/MrEthical07/gatekeeper/permission"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

type server struct {
	engine      *gatekeeper.Engine
	logger      zerolog.Logger
	loginURL    string
	corsOrigins []string
}

type loginBody struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type loginResponse struct {
	CSRFToken string    `json:"csrf_token"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

type sessionView struct {
	ID             string    `json:"id"`
	Current        bool      `json:"current"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	csrfHeader := s.engine.Config().CSRF.HeaderName
	c := cors.New(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", csrfHeader},
		AllowCredentials: true,
	})
	r.Use(c.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if s.engine.Metrics().Enabled() {
		r.Method(http.MethodGet, "/metrics", prometheus.NewPrometheusExporter(s.engine).Handler())
	}

	r.Post("/auth/login", s.handleLogin)
	r.Get("/auth/authorize", s.handleForwardAuth)

	self := []middleware.Option{middleware.WithSelf(), middleware.WithLoginRedirect(s.loginURL)}
	r.With(middleware.Guard(s.engine, permission.ResourceSession, permission.ActionWrite, self...)).
		Post("/auth/logout", s.handleLogout)
	r.With(middleware.Guard(s.engine, permission.ResourceSession, permission.ActionWrite, self...)).
		Post("/auth/logout-all", s.handleLogoutAll)
	r.With(middleware.Guard(s.engine, permission.ResourceSession, permission.ActionRead, self...)).
		Get("/auth/sessions", s.handleSessions)
	r.With(middleware.Guard(s.engine, permission.ResourceSession, permission.ActionRead, self...)).
		Get("/auth/csrf", s.handleCSRF)

	r.Route("/admin/users/{userID}", func(r chi.Router) {
		r.Use(middleware.Guard(s.engine, permission.ResourceUser, permission.ActionWrite))
		r.Put("/role", s.handleChangeRole)
		r.Delete("/sessions", s.handleRevoke)
	})

	return r
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
	} else {
		body.Identifier = r.PostFormValue("identifier")
		body.Secret = r.PostFormValue("secret")
	}

	ctx := gatekeeper.WithClientIP(r.Context(), middleware.ClientIP(r))
	res, err := s.engine.Login(ctx, gatekeeper.LoginRequest{Identifier: body.Identifier, Secret: body.Secret})
	if err != nil {
		switch {
		case errors.Is(err, gatekeeper.ErrInvalidCredentials):
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		case errors.Is(err, gatekeeper.ErrLoginThrottled):
			w.Header().Set("Retry-After", strconv.Itoa(int(s.engine.Config().Login.Window/time.Second)))
			http.Error(w, "too many attempts", http.StatusTooManyRequests)
			return
		}
		s.logger.Error().Err(err).Msg("login failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.engine.SetSessionCookie(w, res)
	writeJSON(w, http.StatusOK, loginResponse{
		CSRFToken: res.CSRFToken,
		UserID:    res.UserID,
		Role:      res.Role.String(),
		ExpiresAt: res.ExpiresAt,
	})
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Logout(r.Context(), s.engine.SessionToken(r)); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.engine.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	sc, _ := gatekeeper.SessionFromContext(r.Context())
	n, err := s.engine.LogoutAll(r.Context(), sc)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.engine.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (s *server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sc, _ := gatekeeper.SessionFromContext(r.Context())
	list, err := s.engine.Sessions(r.Context(), sc.UserID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]sessionView, 0, len(list))
	for _, sess := range list {
		out = append(out, sessionView{
			ID:             sess.ID,
			Current:        sess.ID == sc.SessionID,
			CreatedAt:      sess.CreatedAt,
			LastAccessedAt: sess.LastAccessedAt,
			ExpiresAt:      sess.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleCSRF(w http.ResponseWriter, r *http.Request) {
	sc, _ := gatekeeper.SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": s.engine.CSRFToken(sc)})
}

// handleForwardAuth answers a reverse proxy asking whether the original
// request may proceed. The proxy passes the original method in
// X-Forwarded-Method and forwards cookies and the CSRF header unchanged.
func (s *server) handleForwardAuth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	method := r.Header.Get("X-Forwarded-Method")
	if method == "" {
		method = http.MethodGet
	}
	cfg := s.engine.Config()

	req := gatekeeper.GateRequest{
		Token:    s.engine.SessionToken(r),
		Mutating: csrf.Mutating(method),
		Resource: q.Get("resource"),
		Action:   q.Get("action"),
		OwnerID:  q.Get("owner"),
	}
	if req.Mutating {
		req.CSRFToken = r.Header.Get(cfg.CSRF.HeaderName)
	}

	ctx := gatekeeper.WithClientIP(r.Context(), middleware.ClientIP(r))
	sc, err := s.engine.Authorize(ctx, req)
	if err != nil {
		var ge *gatekeeper.GateError
		status := http.StatusInternalServerError
		if errors.As(err, &ge) {
			switch ge.Outcome {
			case gatekeeper.OutcomeUnauthenticated:
				status = http.StatusUnauthorized
			case gatekeeper.OutcomeForbidden:
				status = http.StatusForbidden
			}
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("X-Auth-User", sc.UserID)
	w.Header().Set("X-Auth-Role", sc.Role.String())
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	actor, _ := gatekeeper.SessionFromContext(r.Context())
	var body struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	role, err := permission.ParseRole(body.Role)
	if err != nil {
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}

	n, err := s.engine.ChangeRole(r.Context(), actor, chi.URLParam(r, "userID"), role)
	if err != nil {
		s.writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"role": role.String(), "revoked": n})
}

func (s *server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	actor, _ := gatekeeper.SessionFromContext(r.Context())
	n, err := s.engine.RevokeUserSessions(r.Context(), actor, chi.URLParam(r, "userID"))
	if err != nil {
		s.writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (s *server) writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gatekeeper.ErrForbidden):
		http.Error(w, "not permitted", http.StatusForbidden)
	case errors.Is(err, gatekeeper.ErrSelfRoleChange):
		http.Error(w, "cannot change own role", http.StatusConflict)
	case errors.Is(err, credential.ErrUserNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		s.logger.Error().Err(err).Msg("admin operation failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
