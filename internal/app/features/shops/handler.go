// internal/app/features/shops/handler.go
package shops

import (
	"context"

	uierrors "github.com/dalemusser/shopdesk/internal/app/features/errors"
	"github.com/dalemusser/shopdesk/internal/app/policy/scopepolicy"
	"github.com/dalemusser/shopdesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Directory is the shop data the feature reads. *shopstore.Store
// satisfies it.
type Directory interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Shop, error)
	ListScoped(ctx context.Context, pred scopepolicy.Predicate) ([]models.Shop, error)
}

// Handler is the feature-level handler for shop listings.
type Handler struct {
	Shops Directory
	Log   *zap.Logger
	Err   *uierrors.ErrorLogger

	// MaxPredicateSize caps shop id lists sent in one query; zero keeps
	// scopepolicy's default.
	MaxPredicateSize int
}

func NewHandler(shops Directory, maxPredicate int, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Shops:            shops,
		Log:              logger,
		Err:              errLog,
		MaxPredicateSize: maxPredicate,
	}
}
