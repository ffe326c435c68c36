package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/taskhived/backend/internal/models"
)

type ProfileHandler struct {
	DB *gorm.DB
}

func NewProfileHandler(db *gorm.DB) *ProfileHandler {
	return &ProfileHandler{DB: db}
}

// Me returns the authenticated user plus derived stats (badge for workers).
func (h *ProfileHandler) Me(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		return fiber.ErrUnauthorized
	}

	data := fiber.Map{
		"id":             user.ID,
		"name":           user.Name,
		"email":          user.Email,
		"phone":          user.Phone,
		"role":           user.Role,
		"kyc_status":     user.KYCStatus,
		"wallet_address": user.WalletAddress,
		"payout_method":  user.PayoutMethod,
	}

	if user.Role == models.RoleWorker {
		var verified int64
		h.DB.Model(&models.Task{}).
			Where("worker_id = ? AND status = ?", userID, models.TaskStatusVerified).
			Count(&verified)
		data["verified_tasks"] = verified
		data["badge_level"] = models.BadgeLevelFor(verified)
	}

	return c.JSON(fiber.Map{"success": true, "data": data})
}

// RequestKYC flags the account as pending identity verification. The session
// with the verification vendor is created by the SPA; the backend only tracks
// the status.
func (h *ProfileHandler) RequestKYC(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	res := h.DB.Model(&models.User{}).
		Where("id = ? AND kyc_status IN ?", userID,
			[]models.KYCStatus{models.KYCNone, models.KYCDeclined}).
		Update("kyc_status", models.KYCPending)
	if res.Error != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to update kyc status")
	}
	if res.RowsAffected == 0 {
		return fail(c, fiber.StatusConflict, "Verification already requested or completed")
	}

	return c.JSON(fiber.Map{"success": true, "message": "Identity verification requested"})
}
