package authcore

import (
	"context"
	"time"

	"github.com/calthas/authcore/internal/audit"
)

// AuditEvent is one structured security event. Detail values are short
// strings; secrets and password material never appear in events.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's async dispatcher.
// Write must tolerate concurrent calls.
type AuditSink = audit.Sink

// Ready-made sinks, re-exported for integrators.
var (
	NewJSONWriterSink = audit.NewJSONWriterSink
	NewChannelSink    = audit.NewChannelSink
)

// Audit event type names.
const (
	auditEventRegister             = "register"
	auditEventLogin                = "login"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventAccountLocked        = "account_locked"
	auditEventRefresh              = "refresh"
	auditEventRefreshReuse         = "refresh_reuse_detected"
	auditEventLogout               = "logout"
	auditEventVerificationRequest  = "verification_requested"
	auditEventVerificationComplete = "email_verified"
	auditEventResetRequest         = "password_reset_requested"
	auditEventResetComplete        = "password_reset_completed"
)

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, accountID, lineageID string, err error, detail func() map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	ev := audit.Event{
		Timestamp: time.Now(),
		EventType: eventType,
		AccountID: accountID,
		LineageID: lineageID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if detail != nil {
		ev.Detail = detail()
	}

	e.audit.Emit(ctx, ev)
}
