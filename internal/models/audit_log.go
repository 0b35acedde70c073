package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Audit action tags.
const (
	AuditLogin                  = "login"
	AuditLoginFailed            = "login_failed"
	AuditLoginLocked            = "login_locked"
	AuditLoginDeactivated       = "login_deactivated"
	AuditLogout                 = "logout"
	AuditPasswordChange         = "password_change"
	AuditPasswordReset          = "password_reset"
	AuditUserCreated            = "user_created"
	AuditUserActivated          = "user_activated"
	AuditUserDeactivated        = "user_deactivated"
	AuditRecordingUploaded      = "recording_uploaded"
	AuditRecordingEdited        = "recording_edited"
	AuditAudioAccessed          = "audio_accessed"
	AuditTranscriptionCompleted = "transcription_completed"
	AuditTranscriptionFailed    = "transcription_failed"
	AuditSummaryGenerated       = "summary_generated"
)

// AuditLog is an append-only record of a security-relevant event. Rows are
// never updated or deleted.
type AuditLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Action     string         `gorm:"size:50;not null;index" json:"action"`
	TargetType *string        `gorm:"size:50" json:"target_type"`
	TargetID   *uuid.UUID     `gorm:"type:uuid" json:"target_id"`
	Details    datatypes.JSON `gorm:"type:jsonb;default:'{}'" json:"details"`
	IPAddress  string         `gorm:"size:45" json:"ip_address"`
	Timestamp  time.Time      `gorm:"not null;index" json:"timestamp"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}
