// internal/app/features/auditlog/handler.go
package auditlog

import (
	"context"

	uierrors "github.com/dalemusser/shopdesk/internal/app/features/errors"
	"github.com/dalemusser/shopdesk/internal/app/store/audit"
	"go.uber.org/zap"
)

// Events is the audit query surface. *audit.Store satisfies it.
type Events interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
	Count(ctx context.Context, filter audit.QueryFilter) (int64, error)
}

type Handler struct {
	Events Events
	Log    *zap.Logger
	Err    *uierrors.ErrorLogger
}

// NewHandler constructs an Audit Log feature handler bound to the given
// event store and logger.
func NewHandler(events Events, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Events: events,
		Log:    logger,
		Err:    errLog,
	}
}
