package auditlog_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dalemusser/shopdesk/internal/app/store/audit"
	"github.com/dalemusser/shopdesk/internal/app/system/auditlog"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type memSink struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (s *memSink) Log(_ context.Context, e audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func TestLogger_NilLogger(t *testing.T) {
	var logger *auditlog.Logger
	ctx := context.Background()

	logger.Record(ctx, audit.Event{EventType: "test"})
	logger.AssignmentCreated(ctx, nil, primitive.NewObjectID(), primitive.NewObjectID(), "staff", false, "")
	logger.InvitationExpired(ctx, primitive.NewObjectID(), primitive.NewObjectID(), "a@example.com")
}

func TestLogger_Modes(t *testing.T) {
	tests := []struct {
		mode       string
		wantStored int
		wantLogged int
	}{
		{"all", 1, 1},
		{"db", 1, 0},
		{"log", 0, 1},
		{"off", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			sink := &memSink{}
			core, logs := observer.New(zap.InfoLevel)
			logger := auditlog.New(sink, zap.New(core), auditlog.Config{Admin: tt.mode})

			logger.RoleChanged(context.Background(), primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID(), "staff", "manager")

			if len(sink.events) != tt.wantStored {
				t.Errorf("stored: got %d, want %d", len(sink.events), tt.wantStored)
			}
			if logs.Len() != tt.wantLogged {
				t.Errorf("logged: got %d, want %d", logs.Len(), tt.wantLogged)
			}
		})
	}
}

func TestLogger_SinkFailureIsSwallowed(t *testing.T) {
	sink := &memSink{err: errors.New("write failed")}
	core, logs := observer.New(zap.ErrorLevel)
	logger := auditlog.New(sink, zap.New(core), auditlog.Config{Admin: "db"})

	logger.InvitationAccepted(context.Background(), primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID(), "staff")

	if logs.FilterMessage("failed to store audit event").Len() != 1 {
		t.Error("expected store failure to be logged")
	}
}

func TestLogger_AssignmentCreated_Details(t *testing.T) {
	sink := &memSink{}
	logger := auditlog.New(sink, zap.NewNop(), auditlog.Config{Admin: "db"})

	userID := primitive.NewObjectID()
	shopID := primitive.NewObjectID()
	logger.AssignmentCreated(context.Background(), nil, userID, shopID, "admin", true, "invitation")

	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if ev.EventType != audit.EventAssignmentCreated || ev.Category != audit.CategoryMembership {
		t.Errorf("unexpected classification %s/%s", ev.Category, ev.EventType)
	}
	if ev.ActorID != nil {
		t.Error("system assignment should have no actor")
	}
	if *ev.UserID != userID || *ev.ShopID != shopID {
		t.Error("user/shop ids not recorded")
	}
	if ev.Details["is_owner"] != "true" || ev.Details["via"] != "invitation" {
		t.Errorf("details: %v", ev.Details)
	}
}
