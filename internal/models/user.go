package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles. Administrators manage accounts and can read across case owners;
// social workers own the cases they create.
const (
	RoleSocialWorker  = "social_worker"
	RoleAdministrator = "administrator"
)

// User is an authenticated account. Accounts are deactivated rather than
// deleted so audit trail references stay resolvable.
type User struct {
	ID                  uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Username            string     `gorm:"size:50;not null;uniqueIndex" json:"username"`
	PasswordHash        string     `gorm:"size:255;not null" json:"-"`
	Role                string     `gorm:"size:20;not null;default:'social_worker'" json:"role"`
	FullName            string     `gorm:"size:100" json:"full_name"`
	Email               string     `gorm:"size:100" json:"email"`
	IsActive            bool       `gorm:"not null;default:true" json:"is_active"`
	FailedLoginAttempts int        `gorm:"not null;default:0" json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLogin           *time.Time `json:"last_login"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}
