package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/kindcoach/kindcoach/internal/queue"
	"github.com/kindcoach/kindcoach/internal/types"
)

// JobHandler exposes pipeline job state, as a one-shot status endpoint and as
// a websocket progress stream.
type JobHandler struct {
	workerPool *queue.WorkerPool
}

// NewJobHandler creates a new job handler.
func NewJobHandler(workerPool *queue.WorkerPool) *JobHandler {
	return &JobHandler{workerPool: workerPool}
}

// Status returns the current state of one job.
func (h *JobHandler) Status(c *fiber.Ctx) error {
	job, ok := h.workerPool.Job(c.Params("id"))
	if !ok {
		return c.Status(404).JSON(fiber.Map{
			"error": "Job not found",
			"code":  "ERR_JOB_NOT_FOUND",
		})
	}
	return c.JSON(job)
}

// Stream pushes every job state change over a websocket until the job
// reaches a terminal state or the client disconnects.
func (h *JobHandler) Stream(c *websocket.Conn) {
	jobID := c.Params("id")

	updates, ok := h.workerPool.Subscribe(jobID)
	if !ok {
		c.WriteJSON(fiber.Map{"error": "Job not found"})
		c.Close()
		return
	}
	defer h.workerPool.Unsubscribe(jobID, updates)
	defer c.Close()

	// Read pump: the client sends nothing meaningful, but reading is the only
	// way to notice it went away while the job is idle in the queue.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pushUpdates(c, updates, done)
}

// jobWriter is the slice of the websocket connection the push loop needs.
type jobWriter interface {
	WriteJSON(v interface{}) error
}

// pushUpdates forwards job snapshots until the job finishes, the write side
// fails, or done is closed by the read pump.
func pushUpdates(w jobWriter, updates <-chan queue.Job, done <-chan struct{}) {
	for {
		select {
		case job, ok := <-updates:
			if !ok {
				return
			}
			if err := w.WriteJSON(job); err != nil {
				return
			}
			if job.Status == types.StatusCompleted || job.Status == types.StatusFailed {
				return
			}
		case <-done:
			return
		}
	}
}
