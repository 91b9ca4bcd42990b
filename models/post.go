package models

import "time"

// Post is an entry in the social feed. It shares the item categories and
// passes through the same intake gate before it is persisted.
type Post struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	Content   string       `gorm:"type:text;not null" json:"content"`
	Category  string       `gorm:"size:32;not null" json:"category"`
	Upvotes   int          `gorm:"not null;default:0" json:"upvotes"`
	Downvotes int          `gorm:"not null;default:0" json:"downvotes"`
	Reported  int          `gorm:"not null;default:0" json:"reported"`
	CreatedBy string       `gorm:"size:64;index" json:"created_by"`
	CreatedAt time.Time    `json:"created_at"`
	Reporters []PostReport `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Comments  []Comment    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

// PostReport mirrors ItemReport for feed posts.
type PostReport struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_post_reporter" json:"post_id"`
	VisitorID string    `gorm:"size:64;not null;uniqueIndex:idx_post_reporter" json:"visitor_id"`
	CreatedAt time.Time `json:"created_at"`
}
