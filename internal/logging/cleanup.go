package logging

import (
	"log/slog"
	"time"

	"github.com/casevault/casevault/internal/models"
	"gorm.io/gorm"
)

// StartCleanup runs a daily goroutine that deletes system_logs older than 30 days.
func StartCleanup(db *gorm.DB, done chan struct{}) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				cutoff := time.Now().AddDate(0, 0, -30)
				res := db.Where("timestamp < ?", cutoff).Delete(&models.SystemLog{})
				if res.Error != nil {
					slog.Error("system log cleanup failed", "error", res.Error)
				} else if res.RowsAffected > 0 {
					slog.Info("system logs cleaned up", "deleted", res.RowsAffected)
				}
			case <-done:
				return
			}
		}
	}()
}
