package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskhived/backend/internal/models"
)

type TaskHandler struct {
	DB *gorm.DB
}

func NewTaskHandler(db *gorm.DB) *TaskHandler {
	return &TaskHandler{DB: db}
}

type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Payment     int64  `json:"payment"` // cents
}

// Create posts a new task. Client role only (enforced by route middleware).
func (h *TaskHandler) Create(c *fiber.Ctx) error {
	clientID, err := getAuth(c)
	if err != nil {
		return err
	}

	var req CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	errs := FieldErrors{}
	if strings.TrimSpace(req.Title) == "" {
		errs.Add("title", "Title is required")
	}
	if req.Payment < 0 {
		errs.Add("payment", "Payment cannot be negative")
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	task := models.Task{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Payment:     req.Payment,
		ClientID:    clientID,
		Status:      models.TaskStatusOpen,
	}

	if err := h.DB.Create(&task).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to create task")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    task,
	})
}

// ListOpen returns tasks any worker can claim.
func (h *TaskHandler) ListOpen(c *fiber.Ctx) error {
	var tasks []models.Task
	if err := h.DB.Where("status = ?", models.TaskStatusOpen).
		Order("created_at DESC").Find(&tasks).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch tasks")
	}
	return c.JSON(fiber.Map{"success": true, "data": tasks})
}

// ListMine returns the caller's tasks: posted ones for clients, assigned ones
// for workers.
func (h *TaskHandler) ListMine(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	role, _ := c.Locals("role").(string)

	q := h.DB.Order("created_at DESC")
	if role == string(models.RoleWorker) {
		q = q.Where("worker_id = ?", userID)
	} else {
		q = q.Where("client_id = ?", userID)
	}

	var tasks []models.Task
	if err := q.Find(&tasks).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch tasks")
	}
	return c.JSON(fiber.Map{"success": true, "data": tasks})
}

// GetDetail returns one task. Only the client, the worker, or an admin may
// look at it.
func (h *TaskHandler) GetDetail(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	taskID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid task id")
	}

	var task models.Task
	if err := h.DB.Preload("Client").Preload("Worker").
		First(&task, "id = ?", taskID).Error; err != nil {
		return fail(c, fiber.StatusNotFound, "Task not found")
	}

	role, _ := c.Locals("role").(string)
	isParty := task.ClientID == userID ||
		(task.WorkerID != nil && *task.WorkerID == userID)
	if !isParty && role != string(models.RoleAdmin) {
		return fail(c, fiber.StatusForbidden, "Not your task")
	}

	return c.JSON(fiber.Map{"success": true, "data": task})
}

// Claim assigns an open task to the calling worker. The open→assigned flip is
// a single guarded UPDATE, so two racing workers cannot both win.
func (h *TaskHandler) Claim(c *fiber.Ctx) error {
	workerID, err := getAuth(c)
	if err != nil {
		return err
	}
	taskID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid task id")
	}

	var worker models.User
	if err := h.DB.First(&worker, "id = ?", workerID).Error; err != nil {
		return fiber.ErrUnauthorized
	}
	if worker.KYCStatus != models.KYCVerified {
		return fail(c, fiber.StatusForbidden, "Identity verification required before claiming tasks")
	}

	res := h.DB.Model(&models.Task{}).
		Where("id = ? AND status = ? AND worker_id IS NULL", taskID, models.TaskStatusOpen).
		Updates(map[string]interface{}{
			"status":    models.TaskStatusAssigned,
			"worker_id": workerID,
			"version":   gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to claim task")
	}
	if res.RowsAffected == 0 {
		return fail(c, fiber.StatusConflict, "Task is no longer available")
	}

	var task models.Task
	if err := h.DB.First(&task, "id = ?", taskID).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load task")
	}
	return c.JSON(fiber.Map{"success": true, "data": task})
}
