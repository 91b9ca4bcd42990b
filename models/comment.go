package models

import "time"

// Comment is a reply on a post. Comments are stored flat; the tree shape
// lives entirely in ParentID (nil means top level). Ancestor chains terminate
// at nil by construction because a parent must already exist on the same post.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"index;not null" json:"post_id"`
	ParentID  *uint     `gorm:"index" json:"parent_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Upvotes   int       `gorm:"not null;default:0" json:"upvotes"`
	Downvotes int       `gorm:"not null;default:0" json:"downvotes"`
	CreatedBy string    `gorm:"size:64;index" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}
