package models

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Review is a single user's score for a product.
type Review struct {
	ID        int64      `gorm:"column:id;primaryKey;autoIncrement"`
	Model     string     `gorm:"column:model;not null;uniqueIndex:ux_reviews_model_user,priority:1"`
	User      string     `gorm:"column:username;not null;uniqueIndex:ux_reviews_model_user,priority:2"`
	Score     int        `gorm:"column:score;not null"`
	Date      types.Date `gorm:"column:date;type:date;not null"`
	Comment   string     `gorm:"column:comment;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}
