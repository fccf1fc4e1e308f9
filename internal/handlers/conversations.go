package handlers

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/kindcoach/kindcoach/internal/storage"
)

// ConversationHandler serves stored conversation records.
type ConversationHandler struct {
	store *storage.Store
	index *storage.Index
}

// NewConversationHandler creates a new conversation handler. The index is
// optional.
func NewConversationHandler(store *storage.Store, index *storage.Index) *ConversationHandler {
	return &ConversationHandler{store: store, index: index}
}

// List returns the user's conversations, newest first. The q parameter
// filters by keyword, limit caps the result count. The plain listing is
// served from the SQLite index; keyword search scans the JSON records.
func (h *ConversationHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	if q := c.Query("q"); q == "" && h.index != nil {
		entries, err := h.index.List(username(c), limit)
		if err == nil {
			return c.JSON(fiber.Map{
				"conversations": entries,
				"total":         len(entries),
			})
		}
		log.Printf("Index listing failed, falling back to record scan: %v", err)
	}

	summaries, err := h.store.Search(username(c), c.Query("q"))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to list conversations",
			"code":  "ERR_LIST_FAILED",
		})
	}
	if limit > 0 && limit < len(summaries) {
		summaries = summaries[:limit]
	}
	return c.JSON(fiber.Map{
		"conversations": summaries,
		"total":         len(summaries),
	})
}

// Get returns one full conversation record.
func (h *ConversationHandler) Get(c *fiber.Ctx) error {
	rec, err := h.store.Load(username(c), c.Params("id"))
	if err != nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "Conversation not found",
			"code":  "ERR_NOT_FOUND",
		})
	}
	return c.JSON(rec)
}

// Delete removes a conversation record and its index row.
func (h *ConversationHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.store.Delete(username(c), id); err != nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "Conversation not found",
			"code":  "ERR_NOT_FOUND",
		})
	}
	if h.index != nil {
		if err := h.index.Delete(id); err != nil {
			log.Printf("Failed to remove conversation %s from index: %v", id, err)
		}
	}
	return c.JSON(fiber.Map{"deleted": id})
}

// Export returns the record as a downloadable file. The format query
// parameter selects json (default) or text.
func (h *ConversationHandler) Export(c *fiber.Ctx) error {
	id := c.Params("id")
	format := c.Query("format", "json")

	var (
		data        []byte
		err         error
		contentType string
		ext         string
	)
	switch format {
	case "json":
		data, err = h.store.ExportJSON(username(c), id)
		contentType, ext = fiber.MIMEApplicationJSON, "json"
	case "txt", "text":
		data, err = h.store.ExportText(username(c), id)
		contentType, ext = fiber.MIMETextPlainCharsetUTF8, "txt"
	default:
		return c.Status(400).JSON(fiber.Map{
			"error": "Unsupported export format (use json or txt)",
			"code":  "ERR_INVALID_FORMAT",
		})
	}
	if err != nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "Conversation not found",
			"code":  "ERR_NOT_FOUND",
		})
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s.%s"`, id, ext))
	return c.Send(data)
}
