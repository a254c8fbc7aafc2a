package reviews

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	minScore = 1
	maxScore = 5
)

// Service manages per-product reviews.
type Service interface {
	AddReview(ctx context.Context, model, user string, score int, comment string) (*ReviewDTO, error)
	GetProductReviews(ctx context.Context, model string) ([]ReviewDTO, error)
	DeleteReview(ctx context.Context, model, user string) error
	DeleteReviewsOfProduct(ctx context.Context, model string) error
	DeleteAllReviews(ctx context.Context) error
}

// ReviewDTO is the wire shape of a review.
type ReviewDTO struct {
	Model   string     `json:"model"`
	User    string     `json:"user"`
	Score   int        `json:"score"`
	Date    types.Date `json:"date"`
	Comment string     `json:"comment"`
}

type productLookup interface {
	Lookup(ctx context.Context, model string) (*models.Product, error)
}

type service struct {
	repo     *Repository
	products productLookup
	now      func() time.Time
}

func NewService(repo *Repository, products productLookup) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("review repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product lookup required")
	}
	return &service{repo: repo, products: products, now: time.Now}, nil
}

func (s *service) AddReview(ctx context.Context, model, user string, score int, comment string) (*ReviewDTO, error) {
	if score < minScore || score > maxScore {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "score must be between 1 and 5")
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "comment is required")
	}
	if _, err := s.products.Lookup(ctx, model); err != nil {
		return nil, err
	}

	review := &models.Review{
		Model:   model,
		User:    user,
		Score:   score,
		Date:    types.NewDate(s.now()),
		Comment: comment,
	}
	if err := s.repo.Create(ctx, review); err != nil {
		return nil, err
	}
	dto := toDTO(*review)
	return &dto, nil
}

func (s *service) GetProductReviews(ctx context.Context, model string) ([]ReviewDTO, error) {
	if _, err := s.products.Lookup(ctx, model); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByModel(ctx, model)
	if err != nil {
		return nil, err
	}
	out := make([]ReviewDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDTO(row))
	}
	return out, nil
}

func (s *service) DeleteReview(ctx context.Context, model, user string) error {
	if _, err := s.products.Lookup(ctx, model); err != nil {
		return err
	}
	return s.repo.Delete(ctx, model, user)
}

func (s *service) DeleteReviewsOfProduct(ctx context.Context, model string) error {
	if _, err := s.products.Lookup(ctx, model); err != nil {
		return err
	}
	return s.repo.DeleteByModel(ctx, model)
}

func (s *service) DeleteAllReviews(ctx context.Context) error {
	return s.repo.DeleteAll(ctx)
}

func toDTO(r models.Review) ReviewDTO {
	return ReviewDTO{
		Model:   r.Model,
		User:    r.User,
		Score:   r.Score,
		Date:    r.Date,
		Comment: r.Comment,
	}
}
