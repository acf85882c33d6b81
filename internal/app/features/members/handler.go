// internal/app/features/members/handler.go
package members

import (
	"context"

	uierrors "github.com/dalemusser/shopdesk/internal/app/features/errors"
	"github.com/dalemusser/shopdesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Service is the membership surface the feature drives.
// *membership.Manager satisfies it.
type Service interface {
	Members(ctx context.Context, actor *models.User, shopID primitive.ObjectID) ([]models.User, error)
	AssignUserToShop(ctx context.Context, actor *models.User, userID, shopID primitive.ObjectID, role string, isOwner bool) (models.Assignment, error)
	UpdateShopRole(ctx context.Context, actor *models.User, userID, shopID primitive.ObjectID, newRole string) (models.Assignment, error)
	RemoveAssignment(ctx context.Context, actor *models.User, userID, shopID primitive.ObjectID) error
}

// Handler is the feature-level handler for shop members.
type Handler struct {
	Members Service
	Log     *zap.Logger
	Err     *uierrors.ErrorLogger
}

func NewHandler(svc Service, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Members: svc,
		Log:     logger,
		Err:     errLog,
	}
}
