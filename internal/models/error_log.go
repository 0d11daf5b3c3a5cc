package models

import (
	"time"

	"gorm.io/gorm"
)

// ErrorLog records an audit check that could not run, such as a failed
// process listing or an unavailable display count.
type ErrorLog struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	SessionID string         `gorm:"index" json:"session_id"`
	Timestamp time.Time      `gorm:"not null;index" json:"timestamp"`
	Check     string         `gorm:"not null" json:"check"` // "process_scan" or "display_count"
	ErrorMsg  string         `gorm:"not null" json:"error_msg"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
