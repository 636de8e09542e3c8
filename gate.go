package gatekeeper

import (
	"context"
	"errors"

	"github.com/MrEthical07/gatekeeper/csrf"
	"github.com/MrEthical07/gatekeeper/permission"
)

// GateRequest is what a handler declares before touching domain data.
type GateRequest struct {
	// Token is the session token from the session cookie.
	Token string
	// Mutating marks state-changing requests; they must carry CSRFToken.
	Mutating  bool
	CSRFToken string

	Resource string
	Action   string

	// Owned reports that the caller already verified the session user owns
	// the target row. Alternatively OwnerID names the row's owner and the
	// gate compares it with the session user.
	Owned   bool
	OwnerID string
}

// Authorize authenticates the session, checks CSRF on mutating requests
// and decides the declared (resource, action). Exactly one audit event is
// emitted per call. On failure the returned error is a *[GateError] whose
// Error text is safe to show to clients.
//
//	Performance: 1 session backend round-trip, bounded by Config.Session.StoreTimeout.
func (e *Engine) Authorize(ctx context.Context, req GateRequest) (SessionContext, error) {
	if req.Token == "" {
		return SessionContext{}, e.deny(ctx, req, SessionContext{}, OutcomeUnauthenticated, ErrMissingToken, nil)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.config.Session.StoreTimeout)
	start := e.now()
	sc, err := e.store.Validate(lookupCtx, req.Token)
	cancel()
	e.metrics.Observe(MetricValidateLatency, e.now().Sub(start))

	if err != nil {
		if IsStorageError(err) {
			e.logger.Error().Err(err).
				Str("resource", req.Resource).
				Str("action", req.Action).
				Msg("session lookup failed")
			return SessionContext{}, e.deny(ctx, req, SessionContext{}, OutcomeServerError, err, nil)
		}
		if errors.Is(err, ErrSessionExpired) {
			e.metrics.Inc(MetricSessionExpired)
		}
		return SessionContext{}, e.deny(ctx, req, SessionContext{}, OutcomeUnauthenticated, err, nil)
	}

	if req.Mutating {
		if err := csrf.Verify(sc, req.CSRFToken); err != nil {
			return SessionContext{}, e.deny(ctx, req, sc, OutcomeForbidden, err, nil)
		}
	}

	owned := req.Owned || (req.OwnerID != "" && req.OwnerID == sc.UserID)
	d := e.authorizer.Decide(sc.Role, req.Resource, req.Action, owned)
	if !d.Allowed {
		forbidden := &ForbiddenError{
			Permission:   d.Permission,
			RequiredRole: d.RequiredRole,
			Reason:       d.Reason,
		}
		return SessionContext{}, e.deny(ctx, req, sc, OutcomeForbidden, forbidden, map[string]string{
			"required_role": d.RequiredRole.String(),
		})
	}

	e.metrics.Inc(MetricGateAllowed)
	meta := map[string]string{"role": sc.Role.String()}
	if d.Reason == permission.ReasonGrantedOwn {
		meta["scope"] = "own"
	}
	e.emitAudit(ctx, AuditEvent{
		Type:      AuditPermissionGranted,
		Actor:     sc.UserID,
		Action:    req.Action,
		Resource:  req.Resource,
		Decision:  AuditAllowed,
		SessionID: sc.SessionID,
		Metadata:  meta,
	})
	return sc, nil
}

func (e *Engine) deny(ctx context.Context, req GateRequest, sc SessionContext, outcome Outcome, err error, meta map[string]string) error {
	reason := reasonCode(err)

	switch {
	case outcome == OutcomeServerError:
		e.metrics.Inc(MetricGateStorageFailure)
	case outcome == OutcomeUnauthenticated:
		e.metrics.Inc(MetricGateUnauthenticated)
	case errors.Is(err, ErrCSRFMismatch):
		e.metrics.Inc(MetricGateCSRFRejected)
	default:
		e.metrics.Inc(MetricGateForbidden)
	}

	eventType := AuditPermissionDenied
	if errors.Is(err, ErrSessionExpired) {
		eventType = AuditSessionExpired
	}
	e.emitAudit(ctx, AuditEvent{
		Type:      eventType,
		Actor:     sc.UserID,
		Action:    req.Action,
		Resource:  req.Resource,
		Decision:  AuditDenied,
		Reason:    reason,
		SessionID: sc.SessionID,
		Metadata:  meta,
	})

	e.logger.Debug().
		Str("outcome", outcome.String()).
		Str("reason", reason).
		Str("resource", req.Resource).
		Str("action", req.Action).
		Msg("request denied")

	return &GateError{Outcome: outcome, Reason: reason, Err: err}
}
