package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskhived/backend/internal/models"
)

// getAuth reads the user id set by the JWT middleware chain.
func getAuth(c *fiber.Ctx) (uuid.UUID, error) {
	raw, _ := c.Locals("userId").(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	return id, nil
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": msg,
	})
}

// failFor translates the pipeline/ledger error taxonomy into the response
// envelope the SPA expects.
func failFor(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fail(c, fiber.StatusNotFound, "Task not found")
	case errors.Is(err, models.ErrAlreadySubmitted):
		return fail(c, fiber.StatusConflict, "Task has already been submitted")
	case errors.Is(err, models.ErrNotAssignedWorker):
		return fail(c, fiber.StatusForbidden, "You are not assigned to this task")
	case errors.Is(err, models.ErrPayoutDestinationMissing):
		return fail(c, fiber.StatusUnprocessableEntity, "Worker has no payout destination configured")
	case errors.Is(err, models.ErrInsufficientFunds):
		return fail(c, fiber.StatusUnprocessableEntity, "Insufficient funds")
	case errors.Is(err, models.ErrAlreadyPaid):
		return fail(c, fiber.StatusConflict, "Task payout was already executed")
	case errors.Is(err, models.ErrRescoreAfterPayout):
		return fail(c, fiber.StatusConflict, "Cannot re-score a task after payout")
	case errors.Is(err, models.ErrInvalidState):
		return fail(c, fiber.StatusConflict, "Task is not in a valid state for this operation")
	case errors.Is(err, models.ErrVersionConflict):
		return fail(c, fiber.StatusConflict, "Task was modified concurrently, please retry")
	}
	return fail(c, fiber.StatusInternalServerError, "Server error")
}
