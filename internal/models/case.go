package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	CaseStatusActive   = "active"
	CaseStatusArchived = "archived"
)

// Case is a client file grouping recordings. The reference string is
// user-supplied and unique per owner, so the same reference used twice by one
// worker resolves to the same case.
type Case struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseReference  string    `gorm:"size:50;not null;uniqueIndex:idx_cases_ref_owner" json:"case_reference"`
	ClientInitials string    `gorm:"size:10;not null" json:"client_initials"`
	CreatedBy      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cases_ref_owner;index" json:"created_by"`
	Status         string    `gorm:"size:20;not null;default:'active'" json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	LastUpdated    time.Time `json:"last_updated"`

	Creator    User        `gorm:"foreignKey:CreatedBy" json:"-"`
	Recordings []Recording `gorm:"foreignKey:CaseID;constraint:OnDelete:CASCADE" json:"recordings,omitempty"`
}
