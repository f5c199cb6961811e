package model

import (
	"time"
)

// Link represents a shortened URL record
type Link struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	Code       string    `gorm:"uniqueIndex;type:varchar(20);not null" json:"code"`
	URL        string    `gorm:"type:text;not null" json:"url"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt  time.Time `gorm:"not null;index" json:"expires_at"`
	ClickCount int64     `gorm:"default:0" json:"click_count"`

	Clicks []Click `gorm:"foreignKey:LinkID;constraint:OnDelete:CASCADE" json:"clicks,omitempty"`
}

// TableName specifies the table name for Link
func (Link) TableName() string {
	return "links"
}

// IsExpired reports whether the link is past its logical expiry
func (l *Link) IsExpired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// RemainingTTL returns the time left until logical expiry. Zero or negative
// means the link is expired.
func (l *Link) RemainingTTL(now time.Time) time.Duration {
	return l.ExpiresAt.Sub(now)
}

// Click represents a single recorded visit to a link
type Click struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	LinkID    int64     `gorm:"not null;index" json:"link_id"`
	ClickedAt time.Time `gorm:"autoCreateTime" json:"clicked_at"`
	IP        string    `gorm:"type:varchar(45)" json:"ip,omitempty"`
	UserAgent string    `gorm:"type:text" json:"user_agent,omitempty"`
	Referer   string    `gorm:"type:text" json:"referer,omitempty"`
}

// TableName specifies the table name for Click
func (Click) TableName() string {
	return "clicks"
}
