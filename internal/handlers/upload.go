// Package handlers implements the HTTP API surface.
package handlers

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/kindcoach/kindcoach/internal/queue"
	"github.com/kindcoach/kindcoach/internal/transcription"
	"github.com/kindcoach/kindcoach/internal/types"
)

// UploadHandler accepts recordings and queues them for processing.
type UploadHandler struct {
	workerPool *queue.WorkerPool
	tempDir    string
	maxSizeMB  int
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(workerPool *queue.WorkerPool, tempDir string, maxSizeMB int) *UploadHandler {
	return &UploadHandler{
		workerPool: workerPool,
		tempDir:    tempDir,
		maxSizeMB:  maxSizeMB,
	}
}

// Handle processes the upload request. The multipart form carries the audio
// file plus the recording metadata; child_name, child_age and situation_type
// are required.
func (h *UploadHandler) Handle(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "No file uploaded",
			"code":  "ERR_NO_FILE",
		})
	}

	meta := types.Metadata{
		ChildName:     strings.TrimSpace(c.FormValue("child_name")),
		ChildAge:      strings.TrimSpace(c.FormValue("child_age")),
		RecordingDate: c.FormValue("recording_date"),
		SituationType: strings.TrimSpace(c.FormValue("situation_type")),
		Description:   c.FormValue("description"),
		CreatedBy:     username(c),
		CreatedAt:     time.Now(),
	}
	if purpose := c.FormValue("analysis_purpose"); purpose != "" {
		for _, p := range strings.Split(purpose, ",") {
			if p = strings.TrimSpace(p); p != "" {
				meta.AnalysisPurpose = append(meta.AnalysisPurpose, p)
			}
		}
	}

	if missing := requiredMetadata(meta); len(missing) > 0 {
		return c.Status(400).JSON(fiber.Map{
			"error": fmt.Sprintf("Missing required fields: %s", strings.Join(missing, ", ")),
			"code":  "ERR_MISSING_METADATA",
		})
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if file.Size > maxSize {
		return c.Status(400).JSON(fiber.Map{
			"error": fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB),
			"code":  "ERR_FILE_TOO_LARGE",
		})
	}

	if !transcription.ValidateAudioFormat(file.Filename) {
		return c.Status(400).JSON(fiber.Map{
			"error": "Unsupported audio format",
			"code":  "ERR_INVALID_FORMAT",
		})
	}

	jobID := uuid.New().String()
	tempPath := filepath.Join(h.tempDir, jobID+filepath.Ext(file.Filename))

	if err := c.SaveFile(file, tempPath); err != nil {
		log.Printf("Failed to save uploaded file: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to save file",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	h.workerPool.Enqueue(queue.NewJob(jobID, username(c), tempPath, meta))

	return c.JSON(fiber.Map{
		"job_id":  jobID,
		"status":  "queued",
		"message": "File uploaded successfully, processing started",
	})
}

func requiredMetadata(meta types.Metadata) []string {
	var missing []string
	if meta.ChildName == "" {
		missing = append(missing, "child_name")
	}
	if meta.ChildAge == "" {
		missing = append(missing, "child_age")
	}
	if meta.SituationType == "" {
		missing = append(missing, "situation_type")
	}
	return missing
}

// username resolves the authenticated user set by the auth middleware.
func username(c *fiber.Ctx) string {
	if u, ok := c.Locals("username").(string); ok {
		return u
	}
	return ""
}
