package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/casevault/casevault/internal/auth"
	"github.com/casevault/casevault/internal/config"
	"github.com/casevault/casevault/internal/dto"
	"github.com/casevault/casevault/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrMissingCredentials = errors.New("username and password are required")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountDeactivated = errors.New("account has been deactivated")
	ErrInvalidToken       = errors.New("invalid or expired refresh token")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidRole        = errors.New("invalid role")
)

// dummyHash is compared against when the username does not exist, so the
// unknown-user path costs the same bcrypt work as a real check and response
// timing does not reveal whether an account exists.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// AccountLockedError rejects authentication while a lockout is active and
// reports the remaining lock time.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	mins := int(time.Until(e.Until).Minutes()) + 1
	if mins < 1 {
		mins = 1
	}
	return fmt.Sprintf("account is locked, try again in %d minutes", mins)
}

// AuthService verifies credentials, enforces the lockout policy and manages
// user accounts. Every authentication attempt outcome is written to the
// audit trail inside the same transaction as the counter update.
type AuthService struct {
	db    *gorm.DB
	cfg   *config.Config
	audit *AuditService
}

func NewAuthService(db *gorm.DB, cfg *config.Config, audit *AuditService) *AuthService {
	return &AuthService{db: db, cfg: cfg, audit: audit}
}

// Authenticate checks the credentials against the stored hash and applies
// the lockout policy. The user row is locked for the duration of the
// transaction so concurrent attempts cannot lose counter increments.
func (s *AuthService) Authenticate(username, password, ip string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	// Rejections that record state (attempt counters, audit rows) are held in
	// authErr so the transaction still commits; only infrastructure failures
	// roll it back.
	var authed *models.User
	var authErr error
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("username = ?", username).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				auth.VerifyPassword(password, dummyHash)
				return ErrInvalidCredentials
			}
			return err
		}

		now := time.Now().UTC()

		if !user.IsActive {
			if err := s.audit.RecordTx(tx, AuditEntry{
				UserID:    user.ID,
				Action:    models.AuditLoginDeactivated,
				IPAddress: ip,
				Details:   map[string]interface{}{"username": username},
			}); err != nil {
				return err
			}
			authErr = ErrAccountDeactivated
			return nil
		}

		if user.LockedUntil != nil && user.LockedUntil.After(now) {
			if err := s.audit.RecordTx(tx, AuditEntry{
				UserID:    user.ID,
				Action:    models.AuditLoginLocked,
				IPAddress: ip,
				Details:   map[string]interface{}{"username": username, "locked_until": user.LockedUntil},
			}); err != nil {
				return err
			}
			authErr = &AccountLockedError{Until: *user.LockedUntil}
			return nil
		}

		if !auth.VerifyPassword(password, user.PasswordHash) {
			attempts := user.FailedLoginAttempts + 1
			updates := map[string]interface{}{"failed_login_attempts": attempts}

			authErr = ErrInvalidCredentials
			if attempts >= s.cfg.MaxLoginAttempts {
				until := now.Add(s.cfg.LockoutDuration)
				// The counter is not reset by the lock itself.
				updates["locked_until"] = until
				authErr = &AccountLockedError{Until: until}
			}

			if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
				Updates(updates).Error; err != nil {
				return err
			}

			return s.audit.RecordTx(tx, AuditEntry{
				UserID:    user.ID,
				Action:    models.AuditLoginFailed,
				IPAddress: ip,
				Details:   map[string]interface{}{"username": username, "failed_attempts": attempts},
			})
		}

		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Updates(map[string]interface{}{
				"failed_login_attempts": 0,
				"locked_until":          nil,
				"last_login":            now,
			}).Error; err != nil {
			return err
		}

		if err := s.audit.RecordTx(tx, AuditEntry{
			UserID:    user.ID,
			Action:    models.AuditLogin,
			IPAddress: ip,
			Details:   map[string]interface{}{"username": username},
		}); err != nil {
			return err
		}

		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
		user.LastLogin = &now
		authed = &user
		return nil
	})
	if err != nil {
		return nil, err
	}
	if authErr != nil {
		return nil, authErr
	}
	return authed, nil
}

// Login authenticates and mints a token pair on success.
func (s *AuthService) Login(username, password, ip string) (*dto.AuthResponse, error) {
	user, err := s.Authenticate(username, password, ip)
	if err != nil {
		return nil, err
	}
	return s.generateTokenPair(user)
}

func (s *AuthService) Refresh(rawToken string) (*dto.AuthResponse, error) {
	tokenHash := hashToken(rawToken)

	var stored models.RefreshToken
	if err := s.db.Where("token_hash = ? AND revoked = false", tokenHash).First(&stored).Error; err != nil {
		return nil, ErrInvalidToken
	}

	if time.Now().After(stored.ExpiresAt) {
		s.db.Model(&stored).Update("revoked", true)
		return nil, ErrInvalidToken
	}

	// Rotation: the presented token is single-use.
	s.db.Model(&stored).Update("revoked", true)

	var user models.User
	if err := s.db.First(&user, "id = ?", stored.UserID).Error; err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountDeactivated
	}

	return s.generateTokenPair(&user)
}

func (s *AuthService) Logout(userID uuid.UUID, rawToken, ip string) error {
	tokenHash := hashToken(rawToken)
	if err := s.db.Model(&models.RefreshToken{}).
		Where("token_hash = ? AND user_id = ?", tokenHash, userID).
		Update("revoked", true).Error; err != nil {
		return err
	}

	s.audit.RecordAsync(AuditEntry{UserID: userID, Action: models.AuditLogout, IPAddress: ip})
	return nil
}

// CreateUser registers a new account after the password strength gate.
func (s *AuthService) CreateUser(username, password, role, fullName, email string, actorID uuid.UUID, ip string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	if role != models.RoleSocialWorker && role != models.RoleAdministrator {
		return nil, ErrInvalidRole
	}
	if err := auth.ValidateStrength(password, s.cfg.PasswordMinLength); err != nil {
		return nil, err
	}

	var existing models.User
	if err := s.db.Where("username = ?", username).First(&existing).Error; err == nil {
		return nil, ErrUsernameTaken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		FullName:     fullName,
		Email:        email,
		IsActive:     true,
	}
	if err := s.db.Create(&user).Error; err != nil {
		// A concurrent creator can slip past the lookup above; the unique
		// index is the authority.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.audit.RecordAsync(AuditEntry{
		UserID:     actorID,
		Action:     models.AuditUserCreated,
		TargetType: "user",
		TargetID:   &user.ID,
		IPAddress:  ip,
		Details:    map[string]interface{}{"username": username, "role": role},
	})
	return &user, nil
}

// ResetPassword sets a new password for a user (admin action) and clears any
// lockout state.
func (s *AuthService) ResetPassword(userID uuid.UUID, newPassword string, actorID uuid.UUID, ip string) error {
	if err := auth.ValidateStrength(newPassword, s.cfg.PasswordMinLength); err != nil {
		return err
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	res := s.db.Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{
			"password_hash":         hash,
			"failed_login_attempts": 0,
			"locked_until":          nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}

	s.audit.RecordAsync(AuditEntry{
		UserID:     actorID,
		Action:     models.AuditPasswordReset,
		TargetType: "user",
		TargetID:   &userID,
		IPAddress:  ip,
	})
	return nil
}

// ChangePassword lets a user rotate their own password after re-verifying
// the current one.
func (s *AuthService) ChangePassword(userID uuid.UUID, currentPassword, newPassword, ip string) error {
	if err := auth.ValidateStrength(newPassword, s.cfg.PasswordMinLength); err != nil {
		return err
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return ErrUserNotFound
	}

	if !auth.VerifyPassword(currentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.db.Model(&user).Updates(map[string]interface{}{
		"password_hash":         hash,
		"failed_login_attempts": 0,
		"locked_until":          nil,
	}).Error; err != nil {
		return err
	}

	s.audit.RecordAsync(AuditEntry{UserID: userID, Action: models.AuditPasswordChange, IPAddress: ip})
	return nil
}

// SetActive toggles an account. Deactivation is used instead of deletion so
// the audit trail stays intact; reactivation clears lockout state.
func (s *AuthService) SetActive(userID uuid.UUID, active bool, actorID uuid.UUID, ip string) error {
	updates := map[string]interface{}{"is_active": active}
	action := models.AuditUserDeactivated
	if active {
		updates["failed_login_attempts"] = 0
		updates["locked_until"] = nil
		action = models.AuditUserActivated
	}

	res := s.db.Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}

	s.audit.RecordAsync(AuditEntry{
		UserID:     actorID,
		Action:     action,
		TargetType: "user",
		TargetID:   &userID,
		IPAddress:  ip,
	})
	return nil
}

func (s *AuthService) ListUsers() ([]models.User, error) {
	var users []models.User
	if err := s.db.Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *AuthService) UserStats() (*dto.UserStatsResponse, error) {
	stats := &dto.UserStatsResponse{}

	type countRow struct {
		Role  string
		Count int64
	}

	if err := s.db.Model(&models.User{}).Count(&stats.TotalUsers).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.User{}).Where("is_active = true").Count(&stats.ActiveUsers).Error; err != nil {
		return nil, err
	}

	var rows []countRow
	if err := s.db.Model(&models.User{}).
		Select("role, count(*) as count").
		Where("is_active = true").
		Group("role").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		switch r.Role {
		case models.RoleSocialWorker:
			stats.SocialWorkers = r.Count
		case models.RoleAdministrator:
			stats.Administrators = r.Count
		}
	}
	return stats, nil
}

func (s *AuthService) generateTokenPair(user *models.User) (*dto.AuthResponse, error) {
	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.generateRefreshToken(user)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User: dto.UserResponse{
			ID:       user.ID,
			Username: user.Username,
			Role:     user.Role,
			FullName: user.FullName,
		},
	}, nil
}

func (s *AuthService) generateAccessToken(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":      user.ID.String(),
		"username": user.Username,
		"role":     user.Role,
		"iat":      time.Now().Unix(),
		"exp":      time.Now().Add(s.cfg.JWTAccessExpiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *AuthService) generateRefreshToken(user *models.User) (string, error) {
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	rawToken := base64.URLEncoding.EncodeToString(rawBytes)

	record := models.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hashToken(rawToken),
		ExpiresAt: time.Now().Add(s.cfg.JWTRefreshExpiry),
	}
	if err := s.db.Create(&record).Error; err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	slog.Info("refresh token issued", "user_id", user.ID.String())
	return rawToken, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}
