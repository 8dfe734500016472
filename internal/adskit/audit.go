package adskit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Severity classifies an audit event.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

const (
	auditContextAccounts  = "google_ads_accounts"
	auditContextCampaigns = "google_ads_campaigns"
)

// AuditEvent is an append-only record of a Google Ads operation outcome.
type AuditEvent struct {
	ID        string
	UserID    string
	Severity  Severity
	Context   string
	API       string
	Message   string
	Details   map[string]any
	CreatedAt time.Time
}

// Auditor writes audit events without ever failing the caller.
type Auditor struct {
	store  AuditStore
	logger *zap.Logger
	now    func() time.Time
}

// NewAuditor wraps the store; a nil store only logs.
func NewAuditor(store AuditStore, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Info records an informational event.
func (auditor *Auditor) Info(ctx context.Context, userID string, auditContext string, message string, details map[string]any) {
	auditor.Record(ctx, AuditEvent{
		UserID:   userID,
		Severity: SeverityInfo,
		Context:  auditContext,
		Message:  message,
		Details:  details,
	})
}

// Error records a failure event.
func (auditor *Auditor) Error(ctx context.Context, userID string, auditContext string, message string, details map[string]any) {
	auditor.Record(ctx, AuditEvent{
		UserID:   userID,
		Severity: SeverityError,
		Context:  auditContext,
		Message:  message,
		Details:  details,
	})
}

// Record fills defaults and appends the event. Store failures are only logged.
func (auditor *Auditor) Record(ctx context.Context, event AuditEvent) {
	if auditor == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.API == "" {
		event.API = auditAPIGoogleAds
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = auditor.now()
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			auditor.logger.Error("audit store panic",
				zap.String("code", "audit.append.panic"),
				zap.String("context", event.Context),
				zap.Any("panic", recovered))
		}
	}()
	if auditor.store == nil {
		auditor.logger.Info("audit event",
			zap.String("user_id", event.UserID),
			zap.String("severity", string(event.Severity)),
			zap.String("context", event.Context),
			zap.String("message", event.Message))
		return
	}
	if err := auditor.store.Append(ctx, event); err != nil {
		auditor.logger.Error("audit write failed",
			zap.String("code", "audit.append.failed"),
			zap.String("user_id", event.UserID),
			zap.String("context", event.Context),
			zap.Error(err))
	}
}
