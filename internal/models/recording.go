package models

import (
	"time"

	"github.com/google/uuid"
)

// Recording interaction kinds.
const (
	RecordingTypePhone     = "phone"
	RecordingTypeHomeVisit = "home_visit"
	RecordingTypeOffice    = "office"
)

// Transcription status values. pending is initial; failed is stable but
// retryable back into processing.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Recording is one captured audio interaction plus its derived transcript,
// summary and processing state. FilePath points at ciphertext on disk,
// relative to the deployment root.
type Recording struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID     uuid.UUID `gorm:"type:uuid;not null;index" json:"case_id"`
	UploadedBy uuid.UUID `gorm:"type:uuid;not null" json:"uploaded_by"`

	RecordingDate   time.Time `gorm:"not null" json:"recording_date"`
	RecordingType   string    `gorm:"size:20;not null" json:"recording_type"`
	FilePath        string    `gorm:"size:500;not null" json:"-"`
	FileSize        int64     `json:"file_size"`
	DurationSeconds float64   `json:"duration_seconds"`

	TranscriptionStatus      string     `gorm:"size:20;not null;default:'pending';index" json:"transcription_status"`
	TranscriptionStartedAt   *time.Time `json:"transcription_started_at"`
	TranscriptionCompletedAt *time.Time `json:"transcription_completed_at"`

	TranscriptText  *string `gorm:"type:text" json:"transcript_text"`
	SummaryText     *string `gorm:"type:text" json:"summary_text"`
	AdditionalNotes string  `gorm:"type:text" json:"additional_notes"`
	Tags            string  `gorm:"size:500" json:"tags"`

	CreatedAt    time.Time  `json:"created_at"`
	LastEditedAt *time.Time `json:"last_edited_at"`
	LastEditedBy *uuid.UUID `gorm:"type:uuid" json:"last_edited_by"`

	Case     Case `gorm:"foreignKey:CaseID" json:"-"`
	Uploader User `gorm:"foreignKey:UploadedBy" json:"-"`
}

// ValidType reports whether t is one of the known recording types.
func ValidType(t string) bool {
	switch t {
	case RecordingTypePhone, RecordingTypeHomeVisit, RecordingTypeOffice:
		return true
	}
	return false
}
