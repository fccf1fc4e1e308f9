// Package analysis classifies diarized teacher-child conversations.
//
// It is a pure aggregation over the utterance sequence produced by the
// transcription step: per-speaker totals, an inferred teacher/child role for
// two-party exchanges, and speaking-balance metrics. It performs no I/O and
// owns no state, so Classify is safe to call concurrently with independent
// inputs.
package analysis

import (
	"errors"
	"fmt"
)

// Role is the inferred conversational role of a diarized speaker.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleChild   Role = "child"
	RoleUnknown Role = "unknown"
)

// Dominance describes which party, if any, dominates the speaking time.
type Dominance string

const (
	TeacherDominant Dominance = "teacher_dominant"
	ChildDominant   Dominance = "child_dominant"
	BalancedTalk    Dominance = "balanced"
)

// Tunable heuristic parameters. The role heuristic is empirical (children
// tend toward shorter, more frequent utterances in instructional dialogue),
// so the cut-offs are named constants rather than inline literals.
const (
	// ChildMeanWordsMax is the mean words-per-turn below which a speaker's
	// utterances count as characteristically short.
	ChildMeanWordsMax = 5.0

	// DominanceRatio is the share of total speaking time beyond which one
	// party is considered to dominate the exchange.
	DominanceRatio = 0.65
)

// ErrInvalidTranscript reports an empty utterance sequence or malformed
// utterance timing/counts. Callers should surface it and abort the analysis
// for that conversation.
var ErrInvalidTranscript = errors.New("invalid transcript")

// Utterance is one contiguous speech segment attributed to a single speaker,
// as delivered by the diarization service. The sequence order is the
// chronological order of the conversation.
type Utterance struct {
	SpeakerLabel string  `json:"speaker_label"`
	Text         string  `json:"text"`
	StartMs      int64   `json:"start_ms"`
	EndMs        int64   `json:"end_ms"`
	WordCount    int     `json:"word_count"`
	Confidence   float64 `json:"confidence"`
}

// SpeakerProfile aggregates one diarized speaker's contribution. Profiles are
// recomputed on every Classify call; nothing is persisted between runs.
type SpeakerProfile struct {
	Label            string  `json:"label"`
	TotalSpeakingMs  int64   `json:"total_speaking_ms"`
	TotalWords       int     `json:"total_words"`
	TurnCount        int     `json:"turn_count"`
	InferredRole     Role    `json:"inferred_role"`
	TimePercent      float64 `json:"time_percent"`
	WordPercent      float64 `json:"word_percent"`
	MeanWordsPerTurn float64 `json:"mean_words_per_turn"`
	MeanDurationMs   float64 `json:"mean_duration_ms"`
}

// BalanceReport is the classifier output for one conversation. It is created
// once per analysis run and never mutated afterwards.
type BalanceReport struct {
	TeacherRatio    float64          `json:"teacher_ratio"`
	ChildRatio      float64          `json:"child_ratio"`
	Dominance       Dominance        `json:"dominance"`
	BalanceScore    float64          `json:"balance_score"`
	BalanceLevel    string           `json:"balance_level"`
	SpeakerProfiles []SpeakerProfile `json:"speaker_profiles"`
}

// Classify groups the utterances by speaker, infers teacher/child roles for a
// two-party exchange, and computes speaking-balance metrics.
//
// Role inference requires exactly two distinct speakers; with one speaker or
// three and more every profile is reported as RoleUnknown. That is the
// designed fallback for ambiguous speaker counts, not an error.
func Classify(utterances []Utterance) (*BalanceReport, error) {
	if len(utterances) == 0 {
		return nil, fmt.Errorf("%w: empty utterance sequence", ErrInvalidTranscript)
	}

	// Group by speaker label, preserving first-appearance order.
	byLabel := make(map[string]*SpeakerProfile)
	var order []string
	var totalMs int64
	var totalWords int

	for i, u := range utterances {
		if u.EndMs < u.StartMs {
			return nil, fmt.Errorf("%w: utterance %d ends (%dms) before it starts (%dms)",
				ErrInvalidTranscript, i, u.EndMs, u.StartMs)
		}
		if u.WordCount < 0 {
			return nil, fmt.Errorf("%w: utterance %d has negative word count", ErrInvalidTranscript, i)
		}

		p, ok := byLabel[u.SpeakerLabel]
		if !ok {
			p = &SpeakerProfile{Label: u.SpeakerLabel, InferredRole: RoleUnknown}
			byLabel[u.SpeakerLabel] = p
			order = append(order, u.SpeakerLabel)
		}

		dur := u.EndMs - u.StartMs
		p.TotalSpeakingMs += dur
		p.TotalWords += u.WordCount
		p.TurnCount++
		totalMs += dur
		totalWords += u.WordCount
	}

	profiles := make([]SpeakerProfile, 0, len(order))
	for _, label := range order {
		p := byLabel[label]
		if totalMs > 0 {
			p.TimePercent = float64(p.TotalSpeakingMs) / float64(totalMs) * 100
		}
		if totalWords > 0 {
			p.WordPercent = float64(p.TotalWords) / float64(totalWords) * 100
		}
		p.MeanWordsPerTurn = float64(p.TotalWords) / float64(p.TurnCount)
		p.MeanDurationMs = float64(p.TotalSpeakingMs) / float64(p.TurnCount)
		profiles = append(profiles, *p)
	}

	report := &BalanceReport{
		Dominance:       BalancedTalk,
		SpeakerProfiles: profiles,
	}

	if len(profiles) == 2 {
		child := childIndex(profiles[0], profiles[1])
		report.SpeakerProfiles[child].InferredRole = RoleChild
		report.SpeakerProfiles[1-child].InferredRole = RoleTeacher
		scoreBalance(report)
	}

	for _, p := range report.SpeakerProfiles {
		if totalMs == 0 {
			break
		}
		ratio := float64(p.TotalSpeakingMs) / float64(totalMs)
		switch p.InferredRole {
		case RoleTeacher:
			report.TeacherRatio = ratio
		case RoleChild:
			report.ChildRatio = ratio
		}
	}

	switch {
	case report.TeacherRatio > DominanceRatio:
		report.Dominance = TeacherDominant
	case report.ChildRatio > DominanceRatio:
		report.Dominance = ChildDominant
	}

	return report, nil
}

// childIndex decides which of the two profiles is the child. Signals in
// tie-break order: only one speaker under the short-utterance threshold, then
// lower mean words per turn, then lower mean utterance duration, and finally
// the speaker with less total speaking time.
func childIndex(a, b SpeakerProfile) int {
	aShort := a.MeanWordsPerTurn < ChildMeanWordsMax
	bShort := b.MeanWordsPerTurn < ChildMeanWordsMax

	switch {
	case aShort && !bShort:
		return 0
	case bShort && !aShort:
		return 1
	}
	if a.MeanWordsPerTurn != b.MeanWordsPerTurn {
		if a.MeanWordsPerTurn < b.MeanWordsPerTurn {
			return 0
		}
		return 1
	}
	if a.MeanDurationMs != b.MeanDurationMs {
		if a.MeanDurationMs < b.MeanDurationMs {
			return 0
		}
		return 1
	}
	// Last resort: the longer-speaking party takes the teacher role.
	if a.TotalSpeakingMs >= b.TotalSpeakingMs {
		return 1
	}
	return 0
}

// scoreBalance rates a two-party exchange on a 0-100 scale: 100 means a
// perfect 50:50 split of both speaking time and words.
func scoreBalance(r *BalanceReport) {
	timeImbalance := abs(r.SpeakerProfiles[0].TimePercent - 50)
	wordImbalance := abs(r.SpeakerProfiles[0].WordPercent - 50)

	score := 100 - max(timeImbalance, wordImbalance)
	r.BalanceScore = score

	switch {
	case score >= 80:
		r.BalanceLevel = "very balanced"
	case score >= 60:
		r.BalanceLevel = "balanced"
	case score >= 40:
		r.BalanceLevel = "slightly imbalanced"
	default:
		r.BalanceLevel = "very imbalanced"
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
