package handlers

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskhived/backend/internal/services/pipeline"
)

type SubmissionHandler struct {
	Pipeline *pipeline.Service
}

func NewSubmissionHandler(p *pipeline.Service) *SubmissionHandler {
	return &SubmissionHandler{Pipeline: p}
}

// Submit hands in the worker's result. Multipart form: "comment" plus an
// optional "file". The worker always gets the same confirmation whether the
// AI pass will approve or flag the work; only admins see the difference.
func (h *SubmissionHandler) Submit(c *fiber.Ctx) error {
	workerID, err := getAuth(c)
	if err != nil {
		return err
	}
	taskID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid task id")
	}

	comment := c.FormValue("comment")
	if comment == "" {
		return fail(c, fiber.StatusBadRequest, "Comment is required")
	}

	var att *pipeline.Attachment
	if fh, err := c.FormFile("file"); err == nil && fh != nil {
		f, err := fh.Open()
		if err == nil {
			data, readErr := io.ReadAll(f)
			f.Close()
			if readErr == nil {
				att = &pipeline.Attachment{Filename: fh.Filename, Data: data}
			} else {
				// best-effort, same policy as a failed store
				zap.L().Warn("could not read attachment", zap.Error(readErr))
			}
		}
	}

	task, err := h.Pipeline.Submit(c.Context(), taskID, workerID, comment, att)
	if err != nil {
		return failFor(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Submission received and queued for validation",
		"data": fiber.Map{
			"task_id":      task.ID,
			"status":       task.Status,
			"submitted_at": task.SubmittedAt,
			"file_path":    task.FilePath,
		},
	})
}
