package handlers

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/kindcoach/kindcoach/internal/storage"
	"github.com/kindcoach/kindcoach/internal/types"
)

// Analyzer produces LLM analyses over a conversation record.
type Analyzer interface {
	Run(ctx context.Context, kind string, rec *types.ConversationRecord) (*types.AnalysisResult, error)
	SummaryReport(ctx context.Context, rec *types.ConversationRecord) (string, error)
}

// AnalysisHandler runs analyses on demand and serves cached results.
type AnalysisHandler struct {
	store    *storage.Store
	analyzer Analyzer
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(store *storage.Store, analyzer Analyzer) *AnalysisHandler {
	return &AnalysisHandler{store: store, analyzer: analyzer}
}

// Run executes one analysis kind for a conversation and stores the result in
// its slot. A completed slot is returned from cache unless refresh=true.
func (h *AnalysisHandler) Run(c *fiber.Ctx) error {
	id := c.Params("id")
	kind := c.Params("kind")

	if !types.ValidAnalysisKind(kind) {
		return c.Status(400).JSON(fiber.Map{
			"error": "Unknown analysis kind",
			"code":  "ERR_INVALID_KIND",
		})
	}

	rec, err := h.store.Load(username(c), id)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "Conversation not found",
			"code":  "ERR_NOT_FOUND",
		})
	}

	if rec.AnalysisStatus[kind] && !c.QueryBool("refresh") {
		return c.JSON(fiber.Map{
			"analysis": rec.Analyses[kind],
			"cached":   true,
		})
	}

	result, err := h.analyzer.Run(c.Context(), kind, rec)
	if err != nil {
		log.Printf("Analysis %s failed for conversation %s: %v", kind, id, err)
		return c.Status(502).JSON(fiber.Map{
			"error": "Analysis failed",
			"code":  "ERR_ANALYSIS_FAILED",
		})
	}

	if err := h.store.SaveAnalysis(username(c), id, result); err != nil {
		log.Printf("Failed to save analysis %s for conversation %s: %v", kind, id, err)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to save analysis",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	return c.JSON(fiber.Map{
		"analysis": result,
		"cached":   false,
	})
}

// Report condenses the conversation's completed analyses into one short
// report for the teacher. At least one analysis must have been run.
func (h *AnalysisHandler) Report(c *fiber.Ctx) error {
	rec, err := h.store.Load(username(c), c.Params("id"))
	if err != nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "Conversation not found",
			"code":  "ERR_NOT_FOUND",
		})
	}

	report, err := h.analyzer.SummaryReport(c.Context(), rec)
	if err != nil {
		log.Printf("Summary report failed for conversation %s: %v", rec.ConversationID, err)
		return c.Status(502).JSON(fiber.Map{
			"error": "Report generation failed",
			"code":  "ERR_REPORT_FAILED",
		})
	}
	return c.JSON(fiber.Map{"report": report})
}

// Get returns a cached analysis result without triggering a new run.
func (h *AnalysisHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	kind := c.Params("kind")

	if !types.ValidAnalysisKind(kind) {
		return c.Status(400).JSON(fiber.Map{
			"error": "Unknown analysis kind",
			"code":  "ERR_INVALID_KIND",
		})
	}

	rec, err := h.store.Load(username(c), id)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "Conversation not found",
			"code":  "ERR_NOT_FOUND",
		})
	}

	if !rec.AnalysisStatus[kind] {
		return c.Status(404).JSON(fiber.Map{
			"error": "Analysis has not been run yet",
			"code":  "ERR_ANALYSIS_PENDING",
		})
	}
	return c.JSON(fiber.Map{"analysis": rec.Analyses[kind], "cached": true})
}
