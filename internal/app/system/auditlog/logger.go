// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"strconv"

	"github.com/dalemusser/shopdesk/internal/app/store/audit"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Admin controls where membership and invitation events go.
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Admin string
}

// Sink persists audit events. *audit.Store satisfies it.
type Sink interface {
	Log(ctx context.Context, event audit.Event) error
}

// Logger records audit events. Recording is fire-and-forget: sink failures
// are logged and never returned to the caller.
type Logger struct {
	sink   Sink
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(sink Sink, zapLog *zap.Logger, config Config) *Logger {
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	if config.Admin == "" {
		config.Admin = "all"
	}
	return &Logger{sink: sink, zapLog: zapLog, config: config}
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.ShopID != nil {
		fields = append(fields, zap.String("shop_id", event.ShopID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Record writes an audit event according to configuration.
// A nil Logger is a no-op.
func (l *Logger) Record(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}
	setting := l.config.Admin
	if setting == "off" {
		return
	}
	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}
	if (setting == "all" || setting == "db") && l.sink != nil {
		if err := l.sink.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func idPtr(id primitive.ObjectID) *primitive.ObjectID { return &id }

// --- Membership Events ---

// AssignmentCreated logs a new shop assignment. actorID is nil when the
// assignment was made by the system (invitation acceptance, bootstrap).
func (l *Logger) AssignmentCreated(ctx context.Context, actorID *primitive.ObjectID, userID, shopID primitive.ObjectID, role string, isOwner bool, via string) {
	details := map[string]string{
		"role":     role,
		"is_owner": strconv.FormatBool(isOwner),
	}
	if via != "" {
		details["via"] = via
	}
	l.Record(ctx, audit.Event{
		Category:  audit.CategoryMembership,
		EventType: audit.EventAssignmentCreated,
		ShopID:    idPtr(shopID),
		UserID:    idPtr(userID),
		ActorID:   actorID,
		Success:   true,
		Details:   details,
	})
}

// RoleChanged logs a role update on an existing assignment.
func (l *Logger) RoleChanged(ctx context.Context, actorID, userID, shopID primitive.ObjectID, from, to string) {
	l.Record(ctx, audit.Event{
		Category:  audit.CategoryMembership,
		EventType: audit.EventRoleChanged,
		ShopID:    idPtr(shopID),
		UserID:    idPtr(userID),
		ActorID:   idPtr(actorID),
		Success:   true,
		Details:   map[string]string{"from": from, "to": to},
	})
}

// AssignmentRemoved logs a removed shop assignment.
func (l *Logger) AssignmentRemoved(ctx context.Context, actorID, userID, shopID primitive.ObjectID, role string) {
	l.Record(ctx, audit.Event{
		Category:  audit.CategoryMembership,
		EventType: audit.EventAssignmentRemoved,
		ShopID:    idPtr(shopID),
		UserID:    idPtr(userID),
		ActorID:   idPtr(actorID),
		Success:   true,
		Details:   map[string]string{"role": role},
	})
}

// CurrentShopChanged logs a user switching their current shop.
func (l *Logger) CurrentShopChanged(ctx context.Context, userID, shopID primitive.ObjectID) {
	l.Record(ctx, audit.Event{
		Category:  audit.CategoryMembership,
		EventType: audit.EventCurrentShopChanged,
		ShopID:    idPtr(shopID),
		UserID:    idPtr(userID),
		ActorID:   idPtr(userID),
		Success:   true,
	})
}

// RootAdminEnsured logs the startup root admin bootstrap.
func (l *Logger) RootAdminEnsured(ctx context.Context, userID primitive.ObjectID, email string, created bool) {
	l.Record(ctx, audit.Event{
		Category:  audit.CategorySystem,
		EventType: audit.EventRootAdminEnsured,
		UserID:    idPtr(userID),
		Success:   true,
		Details:   map[string]string{"email": email, "created": strconv.FormatBool(created)},
	})
}

// PermissionDenied logs a refused membership mutation.
func (l *Logger) PermissionDenied(ctx context.Context, actorID primitive.ObjectID, userID *primitive.ObjectID, shopID primitive.ObjectID, eventType, reason string) {
	l.Record(ctx, audit.Event{
		Category:      audit.CategoryMembership,
		EventType:     eventType,
		ShopID:        idPtr(shopID),
		UserID:        userID,
		ActorID:       idPtr(actorID),
		Success:       false,
		FailureReason: reason,
	})
}

// --- Invitation Events ---

// InvitationCreated logs a new pending invitation.
func (l *Logger) InvitationCreated(ctx context.Context, actorID, invitationID, shopID primitive.ObjectID, email, role string) {
	l.Record(ctx, audit.Event{
		Category:  audit.CategoryInvitation,
		EventType: audit.EventInvitationCreated,
		ShopID:    idPtr(shopID),
		ActorID:   idPtr(actorID),
		Success:   true,
		Details: map[string]string{
			"invitation_id": invitationID.Hex(),
			"email":         email,
			"role":          role,
		},
	})
}

// InvitationAccepted logs an accepted invitation.
func (l *Logger) InvitationAccepted(ctx context.Context, userID, invitationID, shopID primitive.ObjectID, role string) {
	l.Record(ctx, audit.Event{
		Category:  audit.CategoryInvitation,
		EventType: audit.EventInvitationAccepted,
		ShopID:    idPtr(shopID),
		UserID:    idPtr(userID),
		ActorID:   idPtr(userID),
		Success:   true,
		Details:   map[string]string{"invitation_id": invitationID.Hex(), "role": role},
	})
}

// InvitationRejected logs a rejected invitation.
func (l *Logger) InvitationRejected(ctx context.Context, userID, invitationID, shopID primitive.ObjectID) {
	l.Record(ctx, audit.Event{
		Category:  audit.CategoryInvitation,
		EventType: audit.EventInvitationRejected,
		ShopID:    idPtr(shopID),
		UserID:    idPtr(userID),
		ActorID:   idPtr(userID),
		Success:   true,
		Details:   map[string]string{"invitation_id": invitationID.Hex()},
	})
}

// InvitationExpired logs an invitation transitioned to expired on read.
func (l *Logger) InvitationExpired(ctx context.Context, invitationID, shopID primitive.ObjectID, email string) {
	l.Record(ctx, audit.Event{
		Category:  audit.CategoryInvitation,
		EventType: audit.EventInvitationExpired,
		ShopID:    idPtr(shopID),
		Success:   true,
		Details:   map[string]string{"invitation_id": invitationID.Hex(), "email": email},
	})
}
