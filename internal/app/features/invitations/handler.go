// internal/app/features/invitations/handler.go
package invitations

import (
	"context"

	uierrors "github.com/dalemusser/shopdesk/internal/app/features/errors"
	"github.com/dalemusser/shopdesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Workflow is the invitation surface the feature drives.
// *invitation.Workflow satisfies it.
type Workflow interface {
	Invite(ctx context.Context, actor *models.User, email string, shopID primitive.ObjectID, role, message string) (models.Invitation, error)
	Accept(ctx context.Context, invitationID, userID primitive.ObjectID) (models.Assignment, error)
	Reject(ctx context.Context, invitationID, userID primitive.ObjectID) error
	ListForShop(ctx context.Context, actor *models.User, shopID primitive.ObjectID) ([]models.Invitation, error)
	ListForUser(ctx context.Context, user *models.User) ([]models.Invitation, error)
	GetByToken(ctx context.Context, token string) (*models.Invitation, error)
}

// Handler is the feature-level handler for invitations.
type Handler struct {
	Invitations Workflow
	Log         *zap.Logger
	Err         *uierrors.ErrorLogger
}

func NewHandler(wf Workflow, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Invitations: wf,
		Log:         logger,
		Err:         errLog,
	}
}
