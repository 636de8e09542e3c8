package gatekeeper

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/gatekeeper/credential"
	"github.com/MrEthical07/gatekeeper/csrf"
	"github.com/MrEthical07/gatekeeper/internal/audit"
	"github.com/MrEthical07/gatekeeper/internal/rate"
	"github.com/MrEthical07/gatekeeper/permission"
	"github.com/MrEthical07/gatekeeper/session"
	"github.com/rs/zerolog"
)

// Engine composes credential verification, the session store, the CSRF
// guard and the authorizer. Build one with [New]. An Engine is safe for
// concurrent use; it holds no per-request mutable state.
type Engine struct {
	config     Config
	store      *session.Store
	authorizer *permission.Authorizer
	verifier   *credential.Verifier
	directory  credential.Directory
	limiter    *rate.Limiter
	audit      *audit.Dispatcher
	metrics    *Metrics
	logger     zerolog.Logger
	now        func() time.Time

	sweeperOnce sync.Once
	closeOnce   sync.Once
	closed      chan struct{}
	sweeperWG   sync.WaitGroup
}

// LoginRequest carries the submitted credentials.
type LoginRequest struct {
	Identifier string
	Secret     string
}

// LoginResult is returned on successful login. Token must be delivered to
// the client (see [Engine.SetSessionCookie]) and never logged; CSRFToken
// goes in the response body.
type LoginResult struct {
	Token     string
	CSRFToken string
	SessionID string
	UserID    string
	Role      permission.Role
	ExpiresAt time.Time
	// Evicted is the number of older sessions removed by the per-user cap.
	Evicted int
}

func (e *Engine) failedLogin(ctx context.Context, reason string) {
	e.metrics.Inc(MetricLoginFailure)
	e.emitAudit(ctx, AuditEvent{
		Type:     AuditFailedLogin,
		Action:   "login",
		Resource: permission.ResourceSession,
		Decision: AuditDenied,
		Reason:   reason,
	})
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Store exposes the session store for administrative tooling.
func (e *Engine) Store() *session.Store {
	return e.store
}

// Authorizer exposes the permission matrix.
func (e *Engine) Authorizer() *permission.Authorizer {
	return e.authorizer
}

// Hasher exposes the password hasher used for stored credentials.
func (e *Engine) Hasher() *credential.Hasher {
	return e.verifier.Hasher()
}

// Metrics returns the engine's counters.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// MetricsSnapshot copies the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

func (e *Engine) isClosed() bool {
	select {
	case <-e.closed:
		return true
	default:
		return false
	}
}

// Login verifies credentials and creates a session. Unknown identifiers
// and wrong secrets both return [ErrInvalidCredentials]. With a login
// throttle configured, every attempt is reserved against the identifier
// (and address) budget before credentials are checked; an attempt past
// the budget gets [ErrLoginThrottled] without running argon2id.
//
//	Performance: one throttle reservation, one directory lookup, one argon2id verification, one session insert.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}

	ip := clientIPFromContext(ctx)
	if e.limiter != nil {
		if err := e.limiter.Reserve(ctx, req.Identifier, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.failedLogin(ctx, reasonLoginThrottled)
				return nil, ErrLoginThrottled
			}
			e.logger.Error().Err(err).Msg("login throttle reservation failed")
			return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
	}

	user, err := e.verifier.Verify(ctx, req.Identifier, req.Secret)
	if err != nil {
		if errors.Is(err, credential.ErrInvalidCredentials) {
			e.failedLogin(ctx, reasonInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		e.logger.Error().Err(err).Msg("user directory lookup failed")
		return nil, err
	}

	if e.limiter != nil {
		if err := e.limiter.Release(ctx, req.Identifier, ip); err != nil {
			e.logger.Warn().Err(err).Msg("login throttle release failed")
		}
	}

	issued, err := e.store.Create(ctx, user.ID, user.Role)
	if err != nil {
		e.logger.Error().Err(err).Str("user_id", user.ID).Msg("session create failed")
		return nil, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.metrics.Inc(MetricSessionCreated)
	e.metrics.Add(MetricSessionEvicted, uint64(issued.Evicted))

	sc := issued.Session.Context()
	meta := map[string]string{"role": user.Role.String()}
	if issued.Evicted > 0 {
		meta["evicted"] = strconv.Itoa(issued.Evicted)
	}
	e.emitAudit(ctx, AuditEvent{
		Type:      AuditLogin,
		Actor:     user.ID,
		Action:    "login",
		Resource:  permission.ResourceSession,
		Decision:  AuditAllowed,
		SessionID: sc.SessionID,
		Metadata:  meta,
	})

	return &LoginResult{
		Token:     issued.Token,
		CSRFToken: csrf.Issue(sc),
		SessionID: sc.SessionID,
		UserID:    user.ID,
		Role:      user.Role,
		ExpiresAt: sc.ExpiresAt,
		Evicted:   issued.Evicted,
	}, nil
}

// Logout deletes the session behind token. Unknown, expired and malformed
// tokens are not an error.
func (e *Engine) Logout(ctx context.Context, token string) error {
	sc, err := e.store.Validate(ctx, token)
	switch {
	case err == nil:
	case IsStorageError(err):
		e.logger.Error().Err(err).Msg("logout lookup failed")
		return err
	default:
		return nil
	}

	if err := e.store.Invalidate(ctx, token); err != nil {
		e.logger.Error().Err(err).Msg("logout failed")
		return err
	}

	e.metrics.Inc(MetricLogout)
	e.metrics.Inc(MetricSessionInvalidated)
	e.emitAudit(ctx, AuditEvent{
		Type:      AuditLogout,
		Actor:     sc.UserID,
		Action:    "logout",
		Resource:  permission.ResourceSession,
		Decision:  AuditAllowed,
		SessionID: sc.SessionID,
	})
	return nil
}

// LogoutAll deletes every session of the caller, including the current one.
func (e *Engine) LogoutAll(ctx context.Context, sc SessionContext) (int, error) {
	return e.revoke(ctx, sc, sc.UserID)
}

// RevokeUserSessions deletes every session of userID on behalf of an
// administrator. The actor needs write access to users.
func (e *Engine) RevokeUserSessions(ctx context.Context, actor SessionContext, userID string) (int, error) {
	if err := e.requireUserWrite(ctx, actor, userID); err != nil {
		return 0, err
	}
	return e.revoke(ctx, actor, userID)
}

func (e *Engine) revoke(ctx context.Context, actor SessionContext, userID string) (int, error) {
	n, err := e.store.InvalidateUser(ctx, userID)
	if err != nil {
		e.logger.Error().Err(err).Str("user_id", userID).Msg("logout-all failed")
		e.emitAudit(ctx, AuditEvent{
			Type:      AuditLogoutAll,
			Actor:     actor.UserID,
			Action:    "logout_all",
			Resource:  permission.ResourceSession,
			Decision:  AuditDenied,
			Reason:    reasonCode(err),
			SessionID: actor.SessionID,
			Metadata:  map[string]string{"target_user": userID},
		})
		return 0, err
	}

	e.metrics.Inc(MetricLogoutAll)
	e.metrics.Add(MetricSessionInvalidated, uint64(n))
	e.emitAudit(ctx, AuditEvent{
		Type:      AuditLogoutAll,
		Actor:     actor.UserID,
		Action:    "logout_all",
		Resource:  permission.ResourceSession,
		Decision:  AuditAllowed,
		SessionID: actor.SessionID,
		Metadata: map[string]string{
			"target_user": userID,
			"revoked":     strconv.Itoa(n),
		},
	})
	return n, nil
}

// ChangeRole updates userID's role in the directory and revokes every
// session the user holds, so the new role applies from the next login.
// Only actors with write access to users may change roles, and never
// their own.
func (e *Engine) ChangeRole(ctx context.Context, actor SessionContext, userID string, role permission.Role) (int, error) {
	if !role.Valid() {
		return 0, permission.ErrUnknownRole
	}
	if err := e.requireUserWrite(ctx, actor, userID); err != nil {
		return 0, err
	}
	if actor.UserID == userID {
		e.emitAudit(ctx, AuditEvent{
			Type:      AuditRoleChanged,
			Actor:     actor.UserID,
			Action:    permission.ActionWrite,
			Resource:  permission.ResourceUser,
			Decision:  AuditDenied,
			Reason:    reasonSelfRoleChange,
			SessionID: actor.SessionID,
		})
		return 0, ErrSelfRoleChange
	}
	return e.changeRole(ctx, actor, userID, role)
}

// AssignRole changes userID's role on behalf of operator without a
// session, for trusted tooling such as the authd CLI. It records the same
// audit trail as [Engine.ChangeRole] with operator as the actor.
func (e *Engine) AssignRole(ctx context.Context, operator, userID string, role permission.Role) (int, error) {
	if !role.Valid() {
		return 0, permission.ErrUnknownRole
	}
	if strings.TrimSpace(operator) == "" {
		return 0, ErrOperatorRequired
	}
	return e.changeRole(ctx, SessionContext{UserID: operator}, userID, role)
}

func (e *Engine) changeRole(ctx context.Context, actor SessionContext, userID string, role permission.Role) (int, error) {
	updater, ok := e.directory.(credential.RoleUpdater)
	if !ok {
		return 0, ErrRoleChangeUnsupported
	}

	if err := updater.UpdateRole(ctx, userID, role); err != nil {
		return 0, err
	}

	e.metrics.Inc(MetricRoleChanged)
	e.emitAudit(ctx, AuditEvent{
		Type:      AuditRoleChanged,
		Actor:     actor.UserID,
		Action:    permission.ActionWrite,
		Resource:  permission.ResourceUser,
		Decision:  AuditAllowed,
		SessionID: actor.SessionID,
		Metadata: map[string]string{
			"target_user": userID,
			"role":        role.String(),
		},
	})

	n, err := e.revoke(ctx, actor, userID)
	if err != nil {
		e.logger.Error().
			Err(err).
			Str("user_id", userID).
			Str("role", role.String()).
			Msg("role changed but existing sessions were not revoked")
		return 0, err
	}
	return n, nil
}

func (e *Engine) requireUserWrite(ctx context.Context, actor SessionContext, target string) error {
	d := e.authorizer.Decide(actor.Role, permission.ResourceUser, permission.ActionWrite, false)
	if d.Allowed {
		return nil
	}
	e.metrics.Inc(MetricGateForbidden)
	e.emitAudit(ctx, AuditEvent{
		Type:      AuditPermissionDenied,
		Actor:     actor.UserID,
		Action:    permission.ActionWrite,
		Resource:  permission.ResourceUser,
		Decision:  AuditDenied,
		Reason:    d.Reason,
		SessionID: actor.SessionID,
		Metadata: map[string]string{
			"target_user":   target,
			"required_role": d.RequiredRole.String(),
		},
	})
	return &ForbiddenError{Permission: d.Permission, RequiredRole: d.RequiredRole, Reason: d.Reason}
}

// Sessions lists the live sessions of userID, oldest first. Tokens are
// never part of the result.
func (e *Engine) Sessions(ctx context.Context, userID string) ([]session.Session, error) {
	return e.store.ActiveSessions(ctx, userID)
}

// CSRFToken returns the CSRF token for an authenticated session. It is
// stable for the session's lifetime.
func (e *Engine) CSRFToken(sc SessionContext) string {
	return csrf.Issue(sc)
}

// SweepExpired deletes every expired session and returns the count.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	n, err := e.store.SweepExpired(ctx)
	e.metrics.Add(MetricSessionsSwept, uint64(n))
	if err != nil {
		e.logger.Warn().Err(err).Int("removed", n).Msg("session sweep failed")
		return n, err
	}
	e.logger.Debug().Int("removed", n).Msg("session sweep")
	if n > 0 {
		e.emitAudit(ctx, AuditEvent{
			Type:     AuditSessionCleanup,
			Action:   "sweep",
			Resource: permission.ResourceSession,
			Decision: AuditAllowed,
			Metadata: map[string]string{"removed": strconv.Itoa(n)},
		})
	}
	return n, nil
}

// Close stops the sweeper and flushes pending audit events. Close is
// idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		close(e.closed)
		e.sweeperWG.Wait()
		e.audit.Close()
	})
}
