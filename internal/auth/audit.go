package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AuditEvent represents an audit log event type
type AuditEvent string

const (
	// Account lifecycle events
	AuditSignup             AuditEvent = "auth.signup"
	AuditEmailVerified      AuditEvent = "auth.email.verified"
	AuditEmailVerifyFailure AuditEvent = "auth.email.verify_failure"

	// Authentication events
	AuditLoginSuccess   AuditEvent = "auth.login.success"
	AuditLoginFailure   AuditEvent = "auth.login.failure"
	AuditRefreshSuccess AuditEvent = "auth.refresh.success"
	AuditRefreshFailure AuditEvent = "auth.refresh.failure"
	AuditLogout         AuditEvent = "auth.logout"

	// Password events
	AuditPasswordResetRequested AuditEvent = "auth.password.reset_requested"
	AuditPasswordReset          AuditEvent = "auth.password.reset"
	AuditPasswordResetFailure   AuditEvent = "auth.password.reset_failure"
	AuditSessionsRevoked        AuditEvent = "auth.sessions.revoked"

	// Administrative events
	AuditRateLimitReset AuditEvent = "admin.rate_limit.reset"
)

// AuditActorType represents the type of actor performing the action
type AuditActorType string

const (
	ActorTypeUser      AuditActorType = "user"
	ActorTypeAnonymous AuditActorType = "anonymous"
	ActorTypeSystem    AuditActorType = "system"
)

// AuditLog represents an audit log entry
type AuditLog struct {
	ID        string
	EventType AuditEvent
	ActorType AuditActorType
	ActorID   string
	TargetID  string
	Details   map[string]any
	ClientIP  string
	UserAgent string
	CreatedAt time.Time
}

// AuditLogger is an interface for logging audit events
type AuditLogger interface {
	Log(ctx context.Context, entry *AuditLog) error
}

type requestMetaKey struct{}

// RequestMeta is the caller information attached to audit entries
type RequestMeta struct {
	ClientIP  string
	UserAgent string
}

// WithRequestMeta stores caller information on the context for audit entries
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom returns the caller information stored on ctx, if any
func RequestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

func fillAuditEntry(entry *AuditLog, now time.Time) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
}

// LogrusAuditLogger writes audit entries as structured log lines
type LogrusAuditLogger struct {
	log logrus.FieldLogger
}

// NewLogrusAuditLogger creates an audit logger on top of log
func NewLogrusAuditLogger(log logrus.FieldLogger) *LogrusAuditLogger {
	return &LogrusAuditLogger{log: log}
}

// Log writes the entry at info level
func (l *LogrusAuditLogger) Log(ctx context.Context, entry *AuditLog) error {
	fillAuditEntry(entry, time.Now())
	meta := RequestMetaFrom(ctx)
	if entry.ClientIP == "" {
		entry.ClientIP = meta.ClientIP
	}
	if entry.UserAgent == "" {
		entry.UserAgent = meta.UserAgent
	}

	fields := logrus.Fields{
		"audit_id":   entry.ID,
		"event":      string(entry.EventType),
		"actor_type": string(entry.ActorType),
		"client_ip":  entry.ClientIP,
	}
	if entry.ActorID != "" {
		fields["actor_id"] = entry.ActorID
	}
	if entry.TargetID != "" {
		fields["target_id"] = entry.TargetID
	}
	if entry.UserAgent != "" {
		fields["user_agent"] = entry.UserAgent
	}
	for k, v := range entry.Details {
		fields["detail."+k] = v
	}
	l.log.WithFields(fields).Info("audit")
	return nil
}

// InMemoryAuditLogger is a simple in-memory audit logger for development
type InMemoryAuditLogger struct {
	mu   sync.Mutex
	logs []AuditLog
}

// NewInMemoryAuditLogger creates a new in-memory audit logger
func NewInMemoryAuditLogger() *InMemoryAuditLogger {
	return &InMemoryAuditLogger{
		logs: make([]AuditLog, 0),
	}
}

// Log adds an audit log entry
func (l *InMemoryAuditLogger) Log(ctx context.Context, entry *AuditLog) error {
	fillAuditEntry(entry, time.Now())
	if entry.ClientIP == "" {
		entry.ClientIP = RequestMetaFrom(ctx).ClientIP
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, *entry)
	return nil
}

// GetLogs returns all audit logs (for testing/development)
func (l *InMemoryAuditLogger) GetLogs() []AuditLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditLog, len(l.logs))
	copy(out, l.logs)
	return out
}

// Events returns the event types in the order they were logged
func (l *InMemoryAuditLogger) Events() []AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEvent, 0, len(l.logs))
	for _, entry := range l.logs {
		out = append(out, entry.EventType)
	}
	return out
}

// CreateLoginAuditLog creates an audit log for login attempts
func CreateLoginAuditLog(success bool, userID, email, reason string) *AuditLog {
	eventType := AuditLoginFailure
	actor := ActorTypeAnonymous
	if success {
		eventType = AuditLoginSuccess
		actor = ActorTypeUser
	}

	details := map[string]any{
		"email": email,
	}
	if !success {
		details["reason"] = reason
	}

	return &AuditLog{
		EventType: eventType,
		ActorType: actor,
		ActorID:   userID,
		TargetID:  userID,
		Details:   details,
	}
}
