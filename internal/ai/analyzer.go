// Package ai runs the canned LLM analyses over an analyzed conversation.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/kindcoach/kindcoach/internal/analysis"
	"github.com/kindcoach/kindcoach/internal/types"
)

// Analyzer sends conversation transcripts to the OpenAI chat-completions API
// using the editable prompt templates from the PromptStore.
type Analyzer struct {
	client  oai.Client
	model   string
	prompts *PromptStore
}

// kindParams maps each analysis kind to its system prompt and sampling
// settings. Values mirror the tuning the coaching templates were written for.
var kindParams = map[string]struct {
	system      string
	temperature float64
	maxTokens   int64
}{
	types.AnalysisComprehensive: {
		system:      "You are an expert in early childhood education and child psychology. You provide warm, practical coaching to kindergarten teachers.",
		temperature: 0.7,
		maxTokens:   2000,
	},
	types.AnalysisQuickFeedback: {
		system:      "As an early childhood education expert, you give teachers encouraging and practical feedback.",
		temperature: 0.6,
		maxTokens:   800,
	},
	types.AnalysisChildDevelopment: {
		system:      "As a child development expert, you provide scientific and systematic developmental analysis.",
		temperature: 0.5,
		maxTokens:   1500,
	},
	types.AnalysisCoachingTips: {
		system:      "As a teacher coaching expert, you provide practical, applicable advice.",
		temperature: 0.7,
		maxTokens:   1200,
	},
	types.AnalysisSentiment: {
		system:      "As an expert in emotion and communication, you help teachers improve their emotional awareness and responsiveness.",
		temperature: 0.6,
		maxTokens:   1000,
	},
}

// New constructs an Analyzer.
func New(apiKey, model string, prompts *PromptStore, opts ...option.RequestOption) (*Analyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ai: api key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Analyzer{
		client:  oai.NewClient(reqOpts...),
		model:   model,
		prompts: prompts,
	}, nil
}

// Run executes one analysis kind over the conversation record and returns the
// result. The record is not modified; persisting the result is the caller's
// concern.
func (a *Analyzer) Run(ctx context.Context, kind string, rec *types.ConversationRecord) (*types.AnalysisResult, error) {
	params, ok := kindParams[kind]
	if !ok {
		return nil, fmt.Errorf("ai: unknown analysis kind %q", kind)
	}

	template, ok := a.prompts.Template(kind)
	if !ok {
		return nil, fmt.Errorf("ai: no prompt template for %q", kind)
	}

	prompt := renderTemplate(template, promptVariables(kind, rec))

	resp, err := a.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(a.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(params.system),
			oai.UserMessage(prompt),
		},
		Temperature:         param.NewOpt(params.temperature),
		MaxCompletionTokens: param.NewOpt(params.maxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("ai: %s analysis failed: %w", kind, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("ai: %s analysis returned no choices", kind)
	}

	return &types.AnalysisResult{
		Kind:             kind,
		Content:          resp.Choices[0].Message.Content,
		Model:            a.model,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
		ProcessedAt:      time.Now(),
	}, nil
}

// SummaryReport condenses the completed analyses of a record into one short
// report for the teacher.
func (a *Analyzer) SummaryReport(ctx context.Context, rec *types.ConversationRecord) (string, error) {
	var b strings.Builder
	for _, kind := range types.AnalysisKinds {
		res := rec.Analyses[kind]
		if res == nil || !rec.AnalysisStatus[kind] {
			continue
		}
		fmt.Fprintf(&b, "## %s\n%s\n\n", kind, res.Content)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("ai: no completed analyses to summarize")
	}

	prompt := fmt.Sprintf(`Summarize the following analyses into a report for the teacher with:
1. Three key insights
2. Two priority areas for improvement
3. Three concrete action items
4. A short encouraging message

%s`, b.String())

	resp, err := a.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(a.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage("As an education consultant, you turn analysis results into actionable reports."),
			oai.UserMessage(prompt),
		},
		Temperature:         param.NewOpt(0.6),
		MaxCompletionTokens: param.NewOpt(int64(800)),
	})
	if err != nil {
		return "", fmt.Errorf("ai: summary report failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("ai: summary report returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// promptVariables builds the substitution set for one analysis kind.
func promptVariables(kind string, rec *types.ConversationRecord) map[string]string {
	vars := map[string]string{
		"transcript": transcriptText(rec),
	}

	switch kind {
	case types.AnalysisComprehensive:
		teacher, child := roleProfiles(rec.Balance)
		vars["teacher_info"] = formatSpeakerInfo("Teacher", teacher)
		vars["child_info"] = formatSpeakerInfo("Child", child)
		vars["balance_info"] = formatBalanceInfo(rec.Balance)
	case types.AnalysisChildDevelopment:
		vars["child_utterances"] = childUtterances(rec)
	case types.AnalysisCoachingTips:
		situation := rec.Metadata.SituationType
		if situation == "" {
			situation = "general teacher-child interaction"
		}
		vars["situation"] = situation
	case types.AnalysisSentiment:
		vars["context"] = contextLine(rec.Metadata)
	}
	return vars
}

func renderTemplate(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// transcriptText prefers the speaker-attributed utterance list over the flat
// transcript so the model sees who said what.
func transcriptText(rec *types.ConversationRecord) string {
	if rec.Transcription == nil {
		return ""
	}
	if len(rec.Transcription.Utterances) == 0 {
		return rec.Transcription.Transcript
	}

	labels := roleLabels(rec.Balance)
	var b strings.Builder
	for _, u := range rec.Transcription.Utterances {
		who := u.SpeakerLabel
		if role, ok := labels[u.SpeakerLabel]; ok && role != analysis.RoleUnknown {
			who = string(role)
		}
		fmt.Fprintf(&b, "[%.1fs] %s: %s\n", float64(u.StartMs)/1000, who, u.Text)
	}
	return b.String()
}

// roleLabels maps speaker labels to inferred roles.
func roleLabels(report *analysis.BalanceReport) map[string]analysis.Role {
	labels := map[string]analysis.Role{}
	if report == nil {
		return labels
	}
	for _, p := range report.SpeakerProfiles {
		labels[p.Label] = p.InferredRole
	}
	return labels
}

func roleProfiles(report *analysis.BalanceReport) (teacher, child *analysis.SpeakerProfile) {
	if report == nil {
		return nil, nil
	}
	for i := range report.SpeakerProfiles {
		p := &report.SpeakerProfiles[i]
		switch p.InferredRole {
		case analysis.RoleTeacher:
			teacher = p
		case analysis.RoleChild:
			child = p
		}
	}
	return teacher, child
}

func formatSpeakerInfo(role string, p *analysis.SpeakerProfile) string {
	if p == nil {
		return role + ": no data"
	}
	return fmt.Sprintf(`%s:
- total speaking time: %.1fs (%.1f%%)
- total words: %d (%.1f%%)
- turns: %d
- mean words per turn: %.1f`,
		role,
		float64(p.TotalSpeakingMs)/1000, p.TimePercent,
		p.TotalWords, p.WordPercent,
		p.TurnCount,
		p.MeanWordsPerTurn)
}

func formatBalanceInfo(report *analysis.BalanceReport) string {
	if report == nil {
		return "no balance data"
	}
	return fmt.Sprintf("dominance: %s; teacher speaking share %.0f%%, child %.0f%%; balance score %.0f (%s)",
		report.Dominance, report.TeacherRatio*100, report.ChildRatio*100,
		report.BalanceScore, report.BalanceLevel)
}

// childUtterances extracts only the child's lines, timestamped.
func childUtterances(rec *types.ConversationRecord) string {
	if rec.Transcription == nil {
		return ""
	}
	labels := roleLabels(rec.Balance)

	var b strings.Builder
	for _, u := range rec.Transcription.Utterances {
		if labels[u.SpeakerLabel] != analysis.RoleChild {
			continue
		}
		fmt.Fprintf(&b, "[%.1fs] %s\n", float64(u.StartMs)/1000, u.Text)
	}
	if b.Len() == 0 {
		return "(no utterances attributed to the child)"
	}
	return b.String()
}

func contextLine(meta types.Metadata) string {
	parts := []string{}
	if meta.SituationType != "" {
		parts = append(parts, "situation: "+meta.SituationType)
	}
	if meta.ChildAge != "" {
		parts = append(parts, "child age: "+meta.ChildAge)
	}
	if meta.Description != "" {
		parts = append(parts, meta.Description)
	}
	if len(parts) == 0 {
		return "no additional context"
	}
	return strings.Join(parts, "; ")
}
