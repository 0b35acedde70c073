package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/casevault/casevault/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditEntry is one security-relevant event to append to the trail.
type AuditEntry struct {
	UserID     uuid.UUID
	Action     string
	TargetType string
	TargetID   *uuid.UUID
	Details    map[string]interface{}
	IPAddress  string
}

// AuditService appends to and reads the append-only audit trail. Entries are
// never updated or deleted.
type AuditService struct {
	db *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// Record appends an entry using the service's own connection.
func (s *AuditService) Record(e AuditEntry) error {
	return s.RecordTx(s.db, e)
}

// RecordTx appends an entry on the given handle, so callers can make the
// audit write atomic with the state change it describes.
func (s *AuditService) RecordTx(tx *gorm.DB, e AuditEntry) error {
	row := models.AuditLog{
		ID:        uuid.New(),
		UserID:    e.UserID,
		Action:    e.Action,
		TargetID:  e.TargetID,
		IPAddress: e.IPAddress,
		Timestamp: time.Now().UTC(),
	}
	if e.TargetType != "" {
		t := e.TargetType
		row.TargetType = &t
	}
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		row.Details = datatypes.JSON(b)
	}

	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// RecordAsync appends an entry and only logs on failure. Used where the
// caller's operation should not fail because the trail write did.
func (s *AuditService) RecordAsync(e AuditEntry) {
	if err := s.Record(e); err != nil {
		slog.Error("audit write failed", "action", e.Action, "user_id", e.UserID.String(), "error", err)
	}
}

// List returns trail entries, newest first, optionally filtered by action
// and acting user.
func (s *AuditService) List(action string, userID *uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	q := s.db.Model(&models.AuditLog{}).Order("timestamp DESC").Limit(limit).Offset(offset)
	if action != "" {
		q = q.Where("action = ?", action)
	}
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}

	var entries []models.AuditLog
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
