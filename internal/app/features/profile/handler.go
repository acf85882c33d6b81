// internal/app/features/profile/handler.go
package profile

import (
	"context"

	uierrors "github.com/dalemusser/shopdesk/internal/app/features/errors"
	"github.com/dalemusser/shopdesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ShopSwitcher changes a user's current shop. *membership.Manager
// satisfies it.
type ShopSwitcher interface {
	SetCurrentShop(ctx context.Context, actor *models.User, shopID primitive.ObjectID) (*models.User, error)
}

// Handler serves the signed-in user's own account.
type Handler struct {
	Switcher ShopSwitcher
	Log      *zap.Logger
	Err      *uierrors.ErrorLogger
}

func NewHandler(sw ShopSwitcher, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Switcher: sw,
		Log:      logger,
		Err:      errLog,
	}
}
