package models

import "time"

// Categories is the closed set an item may belong to.
var Categories = []string{
	"Humans", "Animals", "Objects", "Concepts", "Locations", "Media", "Other",
}

// IsValidCategory reports whether the given category belongs to the closed set.
func IsValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Item is a rateable thing submitted by a visitor.
//
// AverageRating is always the arithmetic mean of all accepted ratings; it is
// only ever written by the rating fold inside a transaction, never directly.
type Item struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	Name          string       `gorm:"size:255;not null" json:"name"`
	Description   string       `gorm:"type:text;not null" json:"description"`
	Category      string       `gorm:"size:32;not null" json:"category"`
	AverageRating float64      `gorm:"not null;default:0" json:"average_rating"`
	RatingCount   int          `gorm:"not null;default:0" json:"rating_count"`
	Reported      int          `gorm:"not null;default:0" json:"reported"`
	CreatedBy     string       `gorm:"size:64;index" json:"created_by"`
	CreatedAt     time.Time    `json:"created_at"`
	Reporters     []ItemReport `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

// ItemReport records which visitor flagged which item. The composite unique
// index makes repeated flags from one visitor idempotent at the set level;
// the Reported counter on Item has no such protection.
type ItemReport struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ItemID    uint      `gorm:"not null;uniqueIndex:idx_item_reporter" json:"item_id"`
	VisitorID string    `gorm:"size:64;not null;uniqueIndex:idx_item_reporter" json:"visitor_id"`
	CreatedAt time.Time `json:"created_at"`
}
