package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/casevault/casevault/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrCaseNotFound      = errors.New("case not found")
	ErrRecordingNotFound = errors.New("recording not found")
	ErrNotCaseOwner      = errors.New("case belongs to another user")
	ErrInvalidRecording  = errors.New("invalid recording fields")
)

// NewRecording carries the fields needed to register an uploaded recording.
type NewRecording struct {
	RecordingDate   time.Time
	RecordingType   string
	FilePath        string
	FileSize        int64
	DurationSeconds float64
	AdditionalNotes string
	Tags            string
}

// RecordingEdit is a direct field update by an authorized editor, bypassing
// the pipeline. Nil fields are left untouched.
type RecordingEdit struct {
	AdditionalNotes *string
	Tags            *string
	SummaryText     *string
}

// CaseService manages client cases and the recordings attached to them.
type CaseService struct {
	db    *gorm.DB
	audit *AuditService
}

func NewCaseService(db *gorm.DB, audit *AuditService) *CaseService {
	return &CaseService{db: db, audit: audit}
}

// GetOrCreate resolves a case reference for its owner, creating the case on
// first use. Reuse bumps last_updated so recent activity sorts first.
func (s *CaseService) GetOrCreate(reference, clientInitials string, ownerID uuid.UUID) (*models.Case, error) {
	if reference == "" {
		return nil, fmt.Errorf("%w: case reference is required", ErrInvalidRecording)
	}

	var c models.Case
	err := s.db.Where("case_reference = ? AND created_by = ?", reference, ownerID).First(&c).Error
	if err == nil {
		now := time.Now().UTC()
		if err := s.db.Model(&c).Update("last_updated", now).Error; err != nil {
			return nil, err
		}
		c.LastUpdated = now
		return &c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if clientInitials == "" {
		return nil, fmt.Errorf("%w: client initials are required for a new case", ErrInvalidRecording)
	}

	c = models.Case{
		ID:             uuid.New(),
		CaseReference:  reference,
		ClientInitials: clientInitials,
		CreatedBy:      ownerID,
		Status:         models.CaseStatusActive,
		LastUpdated:    time.Now().UTC(),
	}
	if err := s.db.Create(&c).Error; err != nil {
		return nil, fmt.Errorf("failed to create case: %w", err)
	}
	return &c, nil
}

// GetByID loads a case with its recordings. Non-admin callers may only see
// their own cases.
func (s *CaseService) GetByID(caseID, callerID uuid.UUID, isAdmin bool) (*models.Case, error) {
	var c models.Case
	if err := s.db.Preload("Recordings", func(db *gorm.DB) *gorm.DB {
		return db.Order("recording_date DESC")
	}).First(&c, "id = ?", caseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, err
	}
	if !isAdmin && c.CreatedBy != callerID {
		return nil, ErrNotCaseOwner
	}
	return &c, nil
}

// ListByOwner returns the caller's cases, most recently updated first.
// Administrators may list across owners.
func (s *CaseService) ListByOwner(callerID uuid.UUID, all bool, isAdmin bool, limit int) ([]models.Case, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	q := s.db.Order("last_updated DESC").Limit(limit)
	if !all || !isAdmin {
		q = q.Where("created_by = ?", callerID)
	}

	var cases []models.Case
	if err := q.Find(&cases).Error; err != nil {
		return nil, err
	}
	return cases, nil
}

// Search matches the reference or client initials, scoped to the caller
// unless they are an administrator.
func (s *CaseService) Search(term string, callerID uuid.UUID, isAdmin bool) ([]models.Case, error) {
	q := s.db.Where("case_reference ILIKE ? OR client_initials ILIKE ?", "%"+term+"%", "%"+term+"%")
	if !isAdmin {
		q = q.Where("created_by = ?", callerID)
	}

	var cases []models.Case
	if err := q.Order("last_updated DESC").Find(&cases).Error; err != nil {
		return nil, err
	}
	return cases, nil
}

// CreateRecording registers an uploaded recording in pending state and bumps
// the owning case's last_updated inside the same transaction.
func (s *CaseService) CreateRecording(caseID, uploaderID uuid.UUID, nr NewRecording) (*models.Recording, error) {
	if !models.ValidType(nr.RecordingType) {
		return nil, fmt.Errorf("%w: unknown recording type %q", ErrInvalidRecording, nr.RecordingType)
	}
	if nr.FilePath == "" {
		return nil, fmt.Errorf("%w: file path is required", ErrInvalidRecording)
	}
	if nr.RecordingDate.IsZero() {
		nr.RecordingDate = time.Now().UTC()
	}

	rec := models.Recording{
		ID:                  uuid.New(),
		CaseID:              caseID,
		UploadedBy:          uploaderID,
		RecordingDate:       nr.RecordingDate,
		RecordingType:       nr.RecordingType,
		FilePath:            nr.FilePath,
		FileSize:            nr.FileSize,
		DurationSeconds:     nr.DurationSeconds,
		TranscriptionStatus: models.StatusPending,
		AdditionalNotes:     nr.AdditionalNotes,
		Tags:                nr.Tags,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Case{}).Where("id = ?", caseID).
			Update("last_updated", time.Now().UTC())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCaseNotFound
		}
		return s.audit.RecordTx(tx, AuditEntry{
			UserID:     uploaderID,
			Action:     models.AuditRecordingUploaded,
			TargetType: "recording",
			TargetID:   &rec.ID,
			Details: map[string]interface{}{
				"case_id":        caseID,
				"recording_type": nr.RecordingType,
				"file_size":      nr.FileSize,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetRecording loads a recording and enforces case ownership for non-admins.
func (s *CaseService) GetRecording(recordingID, callerID uuid.UUID, isAdmin bool) (*models.Recording, error) {
	var rec models.Recording
	if err := s.db.Preload("Case").First(&rec, "id = ?", recordingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordingNotFound
		}
		return nil, err
	}
	if !isAdmin && rec.Case.CreatedBy != callerID {
		return nil, ErrNotCaseOwner
	}
	return &rec, nil
}

// EditRecording applies a direct field update stamped with the editor's
// identity. A summary set this way does not go through the pipeline.
func (s *CaseService) EditRecording(recordingID, editorID uuid.UUID, isAdmin bool, edit RecordingEdit) (*models.Recording, error) {
	rec, err := s.GetRecording(recordingID, editorID, isAdmin)
	if err != nil {
		return nil, err
	}

	// A summary can exist only for a transcribed recording, manual edits
	// included.
	if edit.SummaryText != nil && (rec.TranscriptText == nil || *rec.TranscriptText == "") {
		return nil, ErrNoTranscript
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"last_edited_at": now,
		"last_edited_by": editorID,
	}
	if edit.AdditionalNotes != nil {
		updates["additional_notes"] = *edit.AdditionalNotes
	}
	if edit.Tags != nil {
		updates["tags"] = *edit.Tags
	}
	if edit.SummaryText != nil {
		updates["summary_text"] = *edit.SummaryText
	}

	if err := s.db.Model(&models.Recording{}).Where("id = ?", recordingID).
		Updates(updates).Error; err != nil {
		return nil, err
	}

	s.audit.RecordAsync(AuditEntry{
		UserID:     editorID,
		Action:     models.AuditRecordingEdited,
		TargetType: "recording",
		TargetID:   &recordingID,
		Details:    map[string]interface{}{"manual_summary": edit.SummaryText != nil},
	})

	return s.GetRecording(recordingID, editorID, isAdmin)
}
