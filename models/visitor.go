package models

import "time"

// Visitor is an identity issued by the session endpoint. Anonymous visitors
// get a random ID per session; OAuth visitors keep a stable ID per provider
// subject so ratings and reports stay attributed across sessions.
type Visitor struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Provider  string    `gorm:"size:32;not null;default:'anonymous'" json:"provider"`
	Subject   string    `gorm:"size:255;index" json:"-"`
	Email     string    `gorm:"size:255" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
