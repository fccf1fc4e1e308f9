package types

import (
	"time"

	"github.com/kindcoach/kindcoach/internal/analysis"
)

// Job status constants
const (
	StatusQueued     = "QUEUED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Analysis kind constants. One slot per kind exists on every conversation
// record; each is filled lazily when the teacher requests that analysis.
const (
	AnalysisComprehensive    = "comprehensive"
	AnalysisQuickFeedback    = "quick_feedback"
	AnalysisChildDevelopment = "child_development"
	AnalysisCoachingTips     = "coaching_tips"
	AnalysisSentiment        = "sentiment_interpretation"
)

// AnalysisKinds lists every supported analysis kind in display order.
var AnalysisKinds = []string{
	AnalysisComprehensive,
	AnalysisQuickFeedback,
	AnalysisChildDevelopment,
	AnalysisCoachingTips,
	AnalysisSentiment,
}

// ValidAnalysisKind reports whether kind names a supported analysis.
func ValidAnalysisKind(kind string) bool {
	for _, k := range AnalysisKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// TranscriptionResult is the diarized output of the speech recognition
// service for one recording.
type TranscriptionResult struct {
	Transcript      string               `json:"transcript"`
	Language        string               `json:"language"`
	Confidence      float64              `json:"confidence"`
	AudioDurationMs int64                `json:"audio_duration_ms"`
	WordCount       int                  `json:"word_count"`
	Utterances      []analysis.Utterance `json:"utterances"`
	ProcessedAt     time.Time            `json:"processed_at"`
}

// Metadata describes the recording context the teacher fills in at upload
// time. ChildName, ChildAge and SituationType are required.
type Metadata struct {
	ChildName       string    `json:"child_name"`
	ChildAge        string    `json:"child_age"`
	RecordingDate   string    `json:"recording_date"`
	SituationType   string    `json:"situation_type"`
	Description     string    `json:"description"`
	AnalysisPurpose []string  `json:"analysis_purpose"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
}

// AnalysisResult is one completed LLM analysis over a conversation.
type AnalysisResult struct {
	Kind             string    `json:"kind"`
	Content          string    `json:"content"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	ProcessedAt      time.Time `json:"processed_at"`
}

// ConversationRecord is the persisted unit of work: one analyzed recording
// with its transcription, balance report and analysis slots. It is stored as
// a single JSON file keyed by ConversationID.
type ConversationRecord struct {
	ConversationID string                     `json:"conversation_id"`
	CreatedAt      time.Time                  `json:"created_at"`
	LastUpdated    time.Time                  `json:"last_updated"`
	Username       string                     `json:"username"`
	Metadata       Metadata                   `json:"metadata"`
	Transcription  *TranscriptionResult       `json:"transcription"`
	Balance        *analysis.BalanceReport    `json:"balance"`
	Analyses       map[string]*AnalysisResult `json:"analyses"`
	AnalysisStatus map[string]bool            `json:"analysis_status"`
	ArchiveURL     string                     `json:"archive_url,omitempty"`
}

// NewConversationRecord creates a record with empty analysis slots for every
// supported kind.
func NewConversationRecord(id, username string, meta Metadata,
	tr *TranscriptionResult, balance *analysis.BalanceReport) *ConversationRecord {

	now := time.Now()
	rec := &ConversationRecord{
		ConversationID: id,
		CreatedAt:      now,
		LastUpdated:    now,
		Username:       username,
		Metadata:       meta,
		Transcription:  tr,
		Balance:        balance,
		Analyses:       make(map[string]*AnalysisResult, len(AnalysisKinds)),
		AnalysisStatus: make(map[string]bool, len(AnalysisKinds)),
	}
	for _, kind := range AnalysisKinds {
		rec.Analyses[kind] = nil
		rec.AnalysisStatus[kind] = false
	}
	return rec
}

// ConversationSummary is the list/search view of a stored conversation.
type ConversationSummary struct {
	ConversationID    string    `json:"conversation_id"`
	CreatedAt         time.Time `json:"created_at"`
	LastUpdated       time.Time `json:"last_updated"`
	Username          string    `json:"username"`
	Metadata          Metadata  `json:"metadata"`
	TranscriptPreview string    `json:"transcript_preview"`
	CompletedAnalyses int       `json:"completed_analyses"`
	TotalAnalyses     int       `json:"total_analyses"`
	FilePath          string    `json:"file_path"`
}
