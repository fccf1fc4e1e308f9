// Package queue runs the audio processing pipeline on a fixed pool of
// workers: normalize, transcribe, classify speakers, persist, archive.
package queue

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"time"

	"github.com/kindcoach/kindcoach/internal/analysis"
	"github.com/kindcoach/kindcoach/internal/storage"
	"github.com/kindcoach/kindcoach/internal/transcription"
	"github.com/kindcoach/kindcoach/internal/types"
)

// Transcriber converts an audio file into a diarized transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*types.TranscriptionResult, error)
}

// Archiver mirrors a completed record to off-box storage.
type Archiver interface {
	Archive(rec *types.ConversationRecord) (string, error)
}

// WorkerPool manages a pool of workers processing conversation jobs.
type WorkerPool struct {
	jobQueue    chan *Job
	workerCount int
	tempDir     string

	transcriber Transcriber
	store       *storage.Store
	index       *storage.Index
	archiver    Archiver

	registry *registry
}

// NewWorkerPool creates a new worker pool. The index and archiver are
// optional.
func NewWorkerPool(
	workerCount int,
	tempDir string,
	transcriber Transcriber,
	store *storage.Store,
	index *storage.Index,
	archiver Archiver,
) *WorkerPool {
	return &WorkerPool{
		jobQueue:    make(chan *Job, 100), // Buffer of 100 jobs
		workerCount: workerCount,
		tempDir:     tempDir,
		transcriber: transcriber,
		store:       store,
		index:       index,
		archiver:    archiver,
		registry:    newRegistry(),
	}
}

// Start initializes all workers.
func (wp *WorkerPool) Start() {
	log.Printf("Starting worker pool with %d workers", wp.workerCount)
	for i := 0; i < wp.workerCount; i++ {
		go wp.worker(i)
	}
}

// Enqueue adds a job to the queue.
func (wp *WorkerPool) Enqueue(job *Job) {
	job.Status = types.StatusQueued
	job.CreatedAt = time.Now()
	wp.registry.add(job)
	wp.jobQueue <- job
	log.Printf("Job %s enqueued (user: %s, child: %s)", job.ID, job.Username, job.Metadata.ChildName)
}

// Job returns a snapshot of a job's current state.
func (wp *WorkerPool) Job(id string) (Job, bool) {
	return wp.registry.get(id)
}

// Subscribe returns a channel of job state snapshots, starting with the
// current state. Callers must Unsubscribe when done.
func (wp *WorkerPool) Subscribe(id string) (chan Job, bool) {
	return wp.registry.subscribe(id)
}

// Unsubscribe removes a progress subscription.
func (wp *WorkerPool) Unsubscribe(id string, ch chan Job) {
	wp.registry.unsubscribe(id, ch)
}

// worker processes jobs from the queue.
func (wp *WorkerPool) worker(id int) {
	log.Printf("Worker %d started", id)

	for job := range wp.jobQueue {
		// Panic recovery
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Worker %d: PANIC processing job %s: %v\n%s",
						id, job.ID, r, string(debug.Stack()))
					wp.fail(job, fmt.Errorf("worker panic: %v", r))
				}
			}()

			wp.processJob(id, job)
		}()
	}
}

// processJob handles the complete conversation pipeline.
func (wp *WorkerPool) processJob(workerID int, job *Job) {
	log.Printf("Worker %d: Processing job %s", workerID, job.ID)
	ctx := context.Background()

	// Step 1: Normalize audio for the recognition service
	wp.setStage(job, StageNormalizing)
	normalizedPath, err := transcription.NormalizeAudio(job.FilePath, wp.tempDir)
	if err != nil {
		// The speech service copes with raw uploads, so a conversion failure
		// downgrades to a warning.
		log.Printf("Worker %d: Audio normalization failed for job %s, using original file: %v", workerID, job.ID, err)
		normalizedPath = job.FilePath
	}
	defer wp.cleanupTempFile(job.FilePath)
	if normalizedPath != job.FilePath {
		defer wp.cleanupTempFile(normalizedPath)
	}

	// Step 2: Transcribe with speaker diarization
	wp.setStage(job, StageTranscribing)
	result, err := wp.transcriber.Transcribe(ctx, normalizedPath)
	if err != nil {
		log.Printf("Worker %d: Transcription failed for job %s: %v", workerID, job.ID, err)
		wp.fail(job, fmt.Errorf("transcription failed: %v", err))
		return
	}

	// Step 3: Infer speaker roles and talk balance
	wp.setStage(job, StageClassifying)
	report, err := analysis.Classify(result.Utterances)
	if err != nil {
		log.Printf("Worker %d: Speaker classification failed for job %s: %v", workerID, job.ID, err)
		wp.fail(job, fmt.Errorf("speaker classification failed: %v", err))
		return
	}

	// Step 4: Persist the conversation record
	wp.setStage(job, StageSaving)
	conversationID := storage.GenerateConversationID(result.Transcript)
	rec := types.NewConversationRecord(conversationID, job.Username, job.Metadata, result, report)

	if err := wp.store.Create(rec); err != nil {
		log.Printf("Worker %d: Record save failed for job %s: %v", workerID, job.ID, err)
		wp.fail(job, fmt.Errorf("record save failed: %v", err))
		return
	}
	if wp.index != nil {
		if err := wp.index.Save(rec); err != nil {
			log.Printf("Worker %d: Index save failed for job %s: %v", workerID, job.ID, err)
		}
	}

	// Step 5: Archive to Google Drive (with retry)
	if wp.archiver != nil {
		wp.setStage(job, StageArchiving)
		var archiveErr error
		for attempt := 1; attempt <= 3; attempt++ {
			var url string
			url, archiveErr = wp.archiver.Archive(rec)
			if archiveErr == nil {
				rec.ArchiveURL = url
				if err := wp.store.Update(rec); err != nil {
					log.Printf("Worker %d: Failed to record archive URL: %v", workerID, err)
				}
				break
			}
			log.Printf("Worker %d: Archive attempt %d/3 failed: %v", workerID, attempt, archiveErr)
			if attempt < 3 {
				time.Sleep(time.Duration(attempt*attempt) * time.Second)
			}
		}
		if archiveErr != nil {
			log.Printf("Worker %d: WARNING - archive failed after 3 attempts, continuing with local record only", workerID)
		}
	}

	wp.registry.update(job.ID, func(j *Job) {
		j.Status = types.StatusCompleted
		j.Stage = ""
		j.ConversationID = conversationID
	})
	log.Printf("Worker %d: Job %s completed (conversation: %s)", workerID, job.ID, conversationID)
}

func (wp *WorkerPool) setStage(job *Job, stage string) {
	wp.registry.update(job.ID, func(j *Job) {
		j.Status = types.StatusProcessing
		j.Stage = stage
	})
}

func (wp *WorkerPool) fail(job *Job, err error) {
	wp.registry.update(job.ID, func(j *Job) {
		j.Status = types.StatusFailed
		j.Stage = ""
		j.Error = err.Error()
	})
	wp.cleanupTempFile(job.FilePath)
}

// cleanupTempFile removes a temporary file.
func (wp *WorkerPool) cleanupTempFile(filePath string) {
	if filePath == "" {
		return
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to cleanup temp file %s: %v", filePath, err)
	}
}
