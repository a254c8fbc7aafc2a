package reviews

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"gorm.io/gorm"
)

// Repository persists product reviews.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Create inserts a review; a second review by the same user for the same model is rejected.
func (r *Repository) Create(ctx context.Context, review *models.Review) error {
	if err := r.db.WithContext(ctx).Create(review).Error; err != nil {
		if db.IsUniqueViolation(err, "ux_reviews_model_user") {
			return pkgerrors.New(pkgerrors.CodeExistingReview, "user already reviewed this product")
		}
		return pkgerrors.Storage(err, "insert review")
	}
	return nil
}

func (r *Repository) ListByModel(ctx context.Context, model string) ([]models.Review, error) {
	var rows []models.Review
	if err := r.db.WithContext(ctx).Where("model = ?", model).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Storage(err, "list reviews")
	}
	return rows, nil
}

func (r *Repository) Delete(ctx context.Context, model, user string) error {
	res := r.db.WithContext(ctx).Where("model = ? AND username = ?", model, user).Delete(&models.Review{})
	if res.Error != nil {
		return pkgerrors.Storage(res.Error, "delete review")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNoReview, "no review by this user for the product")
	}
	return nil
}

func (r *Repository) DeleteByModel(ctx context.Context, model string) error {
	if err := r.db.WithContext(ctx).Where("model = ?", model).Delete(&models.Review{}).Error; err != nil {
		return pkgerrors.Storage(err, "delete product reviews")
	}
	return nil
}

func (r *Repository) DeleteAll(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Where("1 = 1").Delete(&models.Review{}).Error; err != nil {
		return pkgerrors.Storage(err, "delete reviews")
	}
	return nil
}
