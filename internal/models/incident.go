package models

import (
	"time"

	"gorm.io/gorm"
)

// Incident kinds.
const (
	KindRemoteAccess     = "remote_access"
	KindMultipleDisplays = "multiple_displays"
	KindGateRefused      = "gate_refused"
	KindRelock           = "relock"
	KindEscape           = "escape"
)

type Incident struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	SessionID     string         `gorm:"index" json:"session_id"`
	Timestamp     time.Time      `gorm:"not null;index" json:"timestamp"`
	Kind          string         `gorm:"not null;index" json:"kind"`
	Family        string         `gorm:"not null" json:"family"`
	Signature     string         `json:"signature,omitempty"`
	Processes     int            `gorm:"not null;default:0" json:"processes"`
	Displays      int            `gorm:"not null;default:0" json:"displays"`
	Detail        string         `json:"detail,omitempty"`
	DisplayServer string         `gorm:"not null" json:"display_server"` // "x11", "wayland", "xwayland" or "unknown"
	CreatedAt     time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

type KindSummary struct {
	Kind      string    `json:"kind"`
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

type ReportPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Type  string    `json:"type"` // "day", "week", "month"
}

type Report struct {
	Period      ReportPeriod  `json:"period"`
	Kinds       []KindSummary `json:"kinds"`
	Total       int           `json:"total"`
	Sessions    int           `json:"sessions"`
	Signatures  []string      `json:"signatures,omitempty"`
	AuditErrors int           `json:"audit_errors"`
	GeneratedAt time.Time     `json:"generated_at"`
}
