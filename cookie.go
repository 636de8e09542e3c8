package gatekeeper

import (
	"net/http"
	"time"
)

// SetSessionCookie writes the session cookie for a successful login:
// HttpOnly, Secure per config, SameSite per config and Max-Age equal to the
// remaining session lifetime.
func (e *Engine) SetSessionCookie(w http.ResponseWriter, res *LoginResult) {
	maxAge := int(res.ExpiresAt.Sub(e.now()) / time.Second)
	if maxAge <= 0 {
		maxAge = int(e.config.Session.TTL / time.Second)
	}
	c := e.makeCookie(res.Token)
	c.MaxAge = maxAge
	c.Expires = res.ExpiresAt
	http.SetCookie(w, c)
}

// ClearSessionCookie expires the session cookie on the client.
func (e *Engine) ClearSessionCookie(w http.ResponseWriter) {
	c := e.makeCookie("")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	http.SetCookie(w, c)
}

// SessionToken returns the session token carried by r, or "".
func (e *Engine) SessionToken(r *http.Request) string {
	c, err := r.Cookie(e.config.Cookie.Name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (e *Engine) makeCookie(value string) *http.Cookie {
	cfg := e.config.Cookie
	path := cfg.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     cfg.Name,
		Value:    value,
		Path:     path,
		Domain:   cfg.Domain,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	}
}
