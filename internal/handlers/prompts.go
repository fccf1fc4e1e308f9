package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kindcoach/kindcoach/internal/ai"
)

// PromptHandler manages the editable analysis prompt templates.
type PromptHandler struct {
	prompts *ai.PromptStore
}

// NewPromptHandler creates a new prompt handler.
func NewPromptHandler(prompts *ai.PromptStore) *PromptHandler {
	return &PromptHandler{prompts: prompts}
}

// List returns every prompt template.
func (h *PromptHandler) List(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"prompts": h.prompts.All()})
}

// Get returns one prompt template.
func (h *PromptHandler) Get(c *fiber.Ctx) error {
	prompt, ok := h.prompts.Info(c.Params("id"))
	if !ok {
		return c.Status(404).JSON(fiber.Map{
			"error": "Prompt not found",
			"code":  "ERR_NOT_FOUND",
		})
	}
	return c.JSON(prompt)
}

// Update validates and saves a new template for one prompt, taking a backup
// of the previous state.
func (h *PromptHandler) Update(c *fiber.Ctx) error {
	var body struct {
		Template string `json:"template"`
	}
	if err := c.BodyParser(&body); err != nil || body.Template == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "Request body must carry a template",
			"code":  "ERR_INVALID_BODY",
		})
	}

	id := c.Params("id")
	if problems := h.prompts.Validate(id, body.Template); len(problems) > 0 {
		return c.Status(400).JSON(fiber.Map{
			"error":    "Template validation failed",
			"code":     "ERR_INVALID_TEMPLATE",
			"problems": problems,
		})
	}

	if err := h.prompts.Update(id, body.Template, username(c)); err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to save prompt",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	prompt, _ := h.prompts.Info(id)
	return c.JSON(prompt)
}

// Backups lists available prompt backups, newest first.
func (h *PromptHandler) Backups(c *fiber.Ctx) error {
	backups, err := h.prompts.Backups()
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to list backups",
			"code":  "ERR_LIST_FAILED",
		})
	}
	return c.JSON(fiber.Map{"backups": backups})
}

// Restore replaces the current prompts with a named backup.
func (h *PromptHandler) Restore(c *fiber.Ctx) error {
	var body struct {
		Filename string `json:"filename"`
	}
	if err := c.BodyParser(&body); err != nil || body.Filename == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "Request body must name a backup file",
			"code":  "ERR_INVALID_BODY",
		})
	}

	if err := h.prompts.Restore(body.Filename); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Failed to restore backup",
			"code":  "ERR_RESTORE_FAILED",
		})
	}
	return c.JSON(fiber.Map{"restored": body.Filename})
}
