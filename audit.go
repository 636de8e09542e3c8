package gatekeeper

import (
	"context"
	"io"

	"github.com/MrEthical07/gatekeeper/internal/audit"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuditEvent is one audit record delivered to an [AuditSink].
type AuditEvent = audit.Event

// AuditSink receives audit events. Emit is called from the dispatcher
// goroutine, never on the request path.
type AuditSink = audit.Sink

// NoOpSink discards audit events.
type NoOpSink = audit.NoOpSink

// Audit decisions.
const (
	AuditAllowed = audit.DecisionAllowed
	AuditDenied  = audit.DecisionDenied
)

// Audit event types.
const (
	AuditLogin             = "login"
	AuditFailedLogin       = "failed_login"
	AuditLogout            = "logout"
	AuditLogoutAll         = "logout_all"
	AuditSessionExpired    = "session_expired"
	AuditSessionCleanup    = "session_cleanup"
	AuditPermissionGranted = "permission_granted"
	AuditPermissionDenied  = "permission_denied"
	AuditRoleChanged       = "role_changed"
)

// NewChannelSink returns a sink that buffers events in a channel and drops
// them when the buffer is full.
func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewLogSink returns a sink writing events through logger.
func NewLogSink(logger zerolog.Logger) *audit.LoggerSink {
	return audit.NewLoggerSink(logger)
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e.audit == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

// AuditDropped returns the number of audit events dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}
