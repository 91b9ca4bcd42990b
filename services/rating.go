package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/anyrate/models"
)

var (
	ErrItemNotFound = errors.New("item not found")
	ErrInvalidStars = errors.New("stars must be between 1 and 5")
)

// RatingService maintains the running average on each item. The update runs
// inside a transaction with the row locked, so two concurrent ratings cannot
// both read the same average and lose one of the contributions.
type RatingService struct {
	db *gorm.DB
}

func NewRatingService(db *gorm.DB) *RatingService {
	return &RatingService{db: db}
}

// RateItem folds one 1..5 star rating into the item's aggregate and returns
// the updated item.
func (s *RatingService) RateItem(ctx context.Context, itemID uint, stars int) (*models.Item, error) {
	if stars < 1 || stars > 5 {
		return nil, ErrInvalidStars
	}

	var item models.Item
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&item, itemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return fmt.Errorf("lock item row: %w", err)
		}

		newTotal := item.AverageRating*float64(item.RatingCount) + float64(stars)
		item.RatingCount++
		item.AverageRating = newTotal / float64(item.RatingCount)

		if err := tx.Model(&item).
			Select("average_rating", "rating_count").
			Updates(map[string]interface{}{
				"average_rating": item.AverageRating,
				"rating_count":   item.RatingCount,
			}).Error; err != nil {
			return fmt.Errorf("store aggregate: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}
