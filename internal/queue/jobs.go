package queue

import (
	"sync"
	"time"

	"github.com/kindcoach/kindcoach/internal/types"
)

// Job tracks one uploaded recording through the processing pipeline.
type Job struct {
	ID             string         `json:"job_id"`
	Username       string         `json:"-"`
	Metadata       types.Metadata `json:"metadata"`
	FilePath       string         `json:"-"`
	Status         string         `json:"status"`
	Stage          string         `json:"stage,omitempty"`
	Error          string         `json:"error,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Pipeline stages reported through job status and the progress stream.
const (
	StageNormalizing  = "normalizing_audio"
	StageTranscribing = "transcribing"
	StageClassifying  = "classifying_speakers"
	StageSaving       = "saving_record"
	StageArchiving    = "archiving"
)

// NewJob creates a queued job for an uploaded audio file.
func NewJob(id, username, filePath string, meta types.Metadata) *Job {
	return &Job{
		ID:        id,
		Username:  username,
		Metadata:  meta,
		FilePath:  filePath,
		Status:    types.StatusQueued,
		CreatedAt: time.Now(),
	}
}

// registry keeps jobs addressable by ID and fans status changes out to
// subscribers (the websocket progress stream).
type registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	subs map[string][]chan Job
}

func newRegistry() *registry {
	return &registry{
		jobs: make(map[string]*Job),
		subs: make(map[string][]chan Job),
	}
}

func (r *registry) add(job *Job) {
	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()
}

// get returns a snapshot of the job so callers never see mid-update state.
func (r *registry) get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// update applies fn to the job under the lock and notifies subscribers.
func (r *registry) update(id string, fn func(*Job)) {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	fn(job)
	snapshot := *job
	subs := append([]chan Job(nil), r.subs[id]...)
	r.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default: // slow subscriber, drop the update
		}
	}
}

// subscribe registers a channel that receives every status change for the
// job. The current state is delivered immediately.
func (r *registry) subscribe(id string) (chan Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	ch := make(chan Job, 8)
	ch <- *job
	r.subs[id] = append(r.subs[id], ch)
	return ch, true
}

func (r *registry) unsubscribe(id string, ch chan Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.subs[id]
	for i, c := range subs {
		if c == ch {
			r.subs[id] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}
