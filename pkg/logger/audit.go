package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types
const (
	EventLogin            = "login"
	EventOTPRequested     = "otp_requested"
	EventOTPVerified      = "otp_verified"
	EventMFAEnabled       = "mfa_enabled"
	EventMFADisabled      = "mfa_disabled"
	EventDevicesRevoked   = "trusted_devices_revoked"
	EventResetRequested   = "password_reset_requested"
	EventResetCodeChecked = "password_reset_code_verified"
	EventPasswordReset    = "password_reset"
	EventRegistered       = "user_registered"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	IPAddress     string
	Method        string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

// Log emits one audit record. Failures are logged at warn level.
func (al *AuditLogger) Log(ctx context.Context, auditType string, event AuditEvent) {
	if al == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.Method != "" {
		attrs = append(attrs, slog.String("mfa_method", event.Method))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogAuthAttempt logs login and OTP verification attempts
func (al *AuditLogger) LogAuthAttempt(ctx context.Context, event AuditEvent) {
	al.Log(ctx, "auth", event)
}

// LogMFAChange logs MFA configuration changes
func (al *AuditLogger) LogMFAChange(ctx context.Context, event AuditEvent) {
	event.Success = true
	al.Log(ctx, "mfa", event)
}

// LogPasswordEvent logs password reset flow events
func (al *AuditLogger) LogPasswordEvent(ctx context.Context, event AuditEvent) {
	al.Log(ctx, "password", event)
}
