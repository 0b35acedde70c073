package middleware

import (
	"github.com/casevault/casevault/internal/dto"
	"github.com/casevault/casevault/internal/models"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AdminRequired checks the role claim against the database so a demoted or
// deactivated administrator loses access as soon as the row changes, not at
// token expiry.
func AdminRequired(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := CurrentUserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}

		var user models.User
		if err := db.First(&user, "id = ?", userID).Error; err == nil {
			if user.IsActive && user.Role == models.RoleAdministrator {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Message: "Administrator access required",
		})
	}
}
