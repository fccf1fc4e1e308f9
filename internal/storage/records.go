// Package storage persists conversation records: flat JSON files as the
// source of truth, a SQLite index for listings, and an optional Google Drive
// archive.
package storage

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kindcoach/kindcoach/internal/types"
)

const transcriptPreviewLen = 100

// Store reads and writes conversation records under
// <dir>/<username>/<conversation_id>.json.
type Store struct {
	dir string
}

// NewStore creates the record store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %v", err)
	}
	return &Store{dir: dir}, nil
}

// GenerateConversationID derives a stable id from the transcript content and
// the current time: conv_<timestamp>_<md5 prefix>.
func GenerateConversationID(transcript string) string {
	sum := md5.Sum([]byte(transcript))
	return fmt.Sprintf("conv_%s_%x", time.Now().Format("20060102_150405"), sum[:4])
}

func (s *Store) recordPath(username, id string) string {
	return filepath.Join(s.dir, sanitizeFilename(username), filepath.Base(id)+".json")
}

// Create writes a new conversation record.
func (s *Store) Create(rec *types.ConversationRecord) error {
	return s.write(rec)
}

// Update rewrites an existing conversation record in place.
func (s *Store) Update(rec *types.ConversationRecord) error {
	rec.LastUpdated = time.Now()
	return s.write(rec)
}

// Load reads one conversation record.
func (s *Store) Load(username, id string) (*types.ConversationRecord, error) {
	data, err := os.ReadFile(s.recordPath(username, id))
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation %s: %w", id, err)
	}
	var rec types.ConversationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse conversation %s: %v", id, err)
	}
	return &rec, nil
}

// SaveAnalysis stores one analysis result into its slot on the record and
// marks the slot completed.
func (s *Store) SaveAnalysis(username, id string, result *types.AnalysisResult) error {
	rec, err := s.Load(username, id)
	if err != nil {
		return err
	}
	if rec.Analyses == nil {
		rec.Analyses = map[string]*types.AnalysisResult{}
	}
	if rec.AnalysisStatus == nil {
		rec.AnalysisStatus = map[string]bool{}
	}
	rec.Analyses[result.Kind] = result
	rec.AnalysisStatus[result.Kind] = true
	rec.LastUpdated = time.Now()
	return s.write(rec)
}

// List returns summaries of a user's conversations, newest first.
func (s *Store) List(username string) ([]types.ConversationSummary, error) {
	pattern := filepath.Join(s.dir, sanitizeFilename(username), "*.json")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	summaries := make([]types.ConversationSummary, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var rec types.ConversationRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue // Skip unreadable records rather than failing the listing
		}
		summaries = append(summaries, summarize(&rec, path))
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// Search filters a user's conversations by keyword across the transcript
// preview, child name, situation and description.
func (s *Store) Search(username, keyword string) ([]types.ConversationSummary, error) {
	all, err := s.List(username)
	if err != nil {
		return nil, err
	}
	if keyword == "" {
		return all, nil
	}

	kw := strings.ToLower(keyword)
	matched := make([]types.ConversationSummary, 0, len(all))
	for _, sum := range all {
		if strings.Contains(strings.ToLower(sum.TranscriptPreview), kw) ||
			strings.Contains(strings.ToLower(sum.Metadata.ChildName), kw) ||
			strings.Contains(strings.ToLower(sum.Metadata.SituationType), kw) ||
			strings.Contains(strings.ToLower(sum.Metadata.Description), kw) {
			matched = append(matched, sum)
		}
	}
	return matched, nil
}

// Delete removes a conversation record.
func (s *Store) Delete(username, id string) error {
	err := os.Remove(s.recordPath(username, id))
	if os.IsNotExist(err) {
		return fmt.Errorf("conversation %s not found", id)
	}
	return err
}

// ExportJSON returns the raw record JSON.
func (s *Store) ExportJSON(username, id string) ([]byte, error) {
	rec, err := s.Load(username, id)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(rec, "", "  ")
}

// ExportText renders the record as a plain-text report.
func (s *Store) ExportText(username, id string) ([]byte, error) {
	rec, err := s.Load(username, id)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("KindCoach analysis report\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	fmt.Fprintf(&b, "Conversation: %s\n", rec.ConversationID)
	fmt.Fprintf(&b, "Created:      %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Child:        %s (%s)\n", rec.Metadata.ChildName, rec.Metadata.ChildAge)
	fmt.Fprintf(&b, "Situation:    %s\n\n", rec.Metadata.SituationType)

	if rec.Transcription != nil && rec.Transcription.Transcript != "" {
		b.WriteString("Transcript\n" + strings.Repeat("-", 20) + "\n")
		b.WriteString(rec.Transcription.Transcript + "\n\n")
	}

	if rec.Balance != nil {
		b.WriteString("Speaking balance\n" + strings.Repeat("-", 20) + "\n")
		fmt.Fprintf(&b, "dominance: %s, balance score: %.0f (%s)\n",
			rec.Balance.Dominance, rec.Balance.BalanceScore, rec.Balance.BalanceLevel)
		for _, p := range rec.Balance.SpeakerProfiles {
			fmt.Fprintf(&b, "- speaker %s (%s): %.1fs, %d words, %d turns\n",
				p.Label, p.InferredRole, float64(p.TotalSpeakingMs)/1000, p.TotalWords, p.TurnCount)
		}
		b.WriteString("\n")
	}

	for _, kind := range types.AnalysisKinds {
		res := rec.Analyses[kind]
		if res == nil || !rec.AnalysisStatus[kind] {
			continue
		}
		b.WriteString(kind + "\n" + strings.Repeat("-", 30) + "\n")
		b.WriteString(res.Content + "\n\n")
	}

	return []byte(b.String()), nil
}

// write persists a record, creating the user directory on demand.
func (s *Store) write(rec *types.ConversationRecord) error {
	path := s.recordPath(rec.Username, rec.ConversationID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create user directory: %v", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to save record: %v", err)
	}
	return nil
}

func summarize(rec *types.ConversationRecord, path string) types.ConversationSummary {
	completed := 0
	for _, done := range rec.AnalysisStatus {
		if done {
			completed++
		}
	}

	preview := ""
	if rec.Transcription != nil {
		preview = rec.Transcription.Transcript
		if len(preview) > transcriptPreviewLen {
			// Back up to a rune boundary so Korean transcripts are not cut
			// mid-character.
			cut := transcriptPreviewLen
			for cut > 0 && !utf8.RuneStart(preview[cut]) {
				cut--
			}
			preview = preview[:cut] + "..."
		}
	}

	return types.ConversationSummary{
		ConversationID:    rec.ConversationID,
		CreatedAt:         rec.CreatedAt,
		LastUpdated:       rec.LastUpdated,
		Username:          rec.Username,
		Metadata:          rec.Metadata,
		TranscriptPreview: preview,
		CompletedAnalyses: completed,
		TotalAnalyses:     len(types.AnalysisKinds),
		FilePath:          path,
	}
}

// sanitizeFilename strips path separators and characters that are invalid in
// filenames, and caps the length.
func sanitizeFilename(name string) string {
	result := filepath.Base(name)
	for _, ch := range []string{":", "*", "?", "\"", "<", ">", "|"} {
		result = strings.ReplaceAll(result, ch, "_")
	}
	if result == "." || result == string(filepath.Separator) {
		result = "_"
	}
	if len(result) > 100 {
		result = result[:100]
	}
	return result
}
