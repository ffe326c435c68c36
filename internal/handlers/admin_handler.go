package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskhived/backend/internal/models"
	"github.com/taskhived/backend/internal/services/ledger"
	"github.com/taskhived/backend/internal/services/review"
)

type AdminHandler struct {
	DB     *gorm.DB
	Review *review.Service
	Ledger *ledger.Service
}

func NewAdminHandler(db *gorm.DB, rv *review.Service, lg *ledger.Service) *AdminHandler {
	return &AdminHandler{DB: db, Review: rv, Ledger: lg}
}

// ReviewQueue lists tasks waiting for a human decision. Flagged ones first.
func (h *AdminHandler) ReviewQueue(c *fiber.Ctx) error {
	var tasks []models.Task
	err := h.DB.Preload("Worker").Preload("Client").
		Where("status IN ?", []models.TaskStatus{
			models.TaskStatusCompleted, models.TaskStatusUnderReview,
		}).
		Order("requires_human_review DESC, submitted_at ASC").
		Find(&tasks).Error
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch review queue")
	}
	return c.JSON(fiber.Map{"success": true, "data": tasks})
}

func (h *AdminHandler) taskParam(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fail(c, fiber.StatusBadRequest, "Invalid task id")
	}
	return id, nil
}

func (h *AdminHandler) Approve(c *fiber.Ctx) error {
	id, err := h.taskParam(c)
	if err != nil {
		return err
	}
	task, err := h.Review.Approve(c.Context(), id)
	if err != nil {
		return failFor(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Task verified, payout authorized", "data": task})
}

func (h *AdminHandler) Reject(c *fiber.Ctx) error {
	id, err := h.taskParam(c)
	if err != nil {
		return err
	}
	task, err := h.Review.Reject(c.Context(), id)
	if err != nil {
		return failFor(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Task rejected", "data": task})
}

func (h *AdminHandler) Rescore(c *fiber.Ctx) error {
	id, err := h.taskParam(c)
	if err != nil {
		return err
	}
	task, err := h.Review.Rescore(c.Context(), id)
	if err != nil {
		return failFor(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Task re-scored", "data": task})
}

// Pay executes the payout for a verified task.
func (h *AdminHandler) Pay(c *fiber.Ctx) error {
	id, err := h.taskParam(c)
	if err != nil {
		return err
	}
	trx, err := h.Ledger.PayWorker(c.Context(), id)
	if err != nil {
		return failFor(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Payout settled", "data": trx})
}

// Reconcile forces a ledger→credits reconciliation run.
func (h *AdminHandler) Reconcile(c *fiber.Ctx) error {
	fixed, err := h.Ledger.Reconcile(c.Context())
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Reconciliation failed")
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"fixed": fixed}})
}

type kycDecisionRequest struct {
	Status string `json:"status"` // verified / declined
}

// SetKYC records the identity-verification outcome for a user. The actual
// verification session lives with the external vendor; only its verdict is
// stored here.
func (h *AdminHandler) SetKYC(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid user id")
	}

	var req kycDecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	status := models.KYCStatus(req.Status)
	switch status {
	case models.KYCVerified, models.KYCDeclined, models.KYCPending:
	default:
		return fail(c, fiber.StatusBadRequest, "Invalid kyc status")
	}

	res := h.DB.Model(&models.User{}).Where("id = ?", userID).
		Update("kyc_status", status)
	if res.Error != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to update kyc status")
	}
	if res.RowsAffected == 0 {
		return fail(c, fiber.StatusNotFound, "User not found")
	}

	return c.JSON(fiber.Map{"success": true, "message": "KYC status updated"})
}
