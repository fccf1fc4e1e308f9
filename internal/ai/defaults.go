package ai

import "time"

// defaultPrompts seeds the prompt file on first run. Templates are starting
// points; the expectation is that early-childhood specialists iterate on them
// through the prompt endpoints.
func defaultPrompts() map[string]Prompt {
	now := time.Now()
	return map[string]Prompt{
		"comprehensive": {
			Name:        "Comprehensive conversation analysis",
			Description: "Full review of the teacher-child exchange with detailed coaching feedback.",
			Template: `Analyze the following kindergarten teacher-child conversation.

## Transcript
{transcript}

## Speaker statistics
{teacher_info}
{child_info}

## Speaking balance
{balance_info}

Provide:
1. Overall interaction quality assessment
2. Strengths in the teacher's communication
3. Missed opportunities and how to use them next time
4. Three concrete coaching suggestions`,
			RequiredVariables: []string{"transcript", "teacher_info", "child_info", "balance_info"},
			LastModified:      now,
			ModifiedBy:        "system",
		},
		"quick_feedback": {
			Name:        "Quick feedback",
			Description: "Short, encouraging feedback the teacher can read between activities.",
			Template: `Give brief, encouraging feedback on this teacher-child conversation.
Keep it to three short paragraphs: one strength, one suggestion, one encouragement.

## Transcript
{transcript}`,
			RequiredVariables: []string{"transcript"},
			LastModified:      now,
			ModifiedBy:        "system",
		},
		"child_development": {
			Name:        "Child development analysis",
			Description: "Developmental-psychology view of the child's language and engagement.",
			Template: `From a child-development perspective, analyze the child's utterances below.

## Full transcript
{transcript}

## Child utterances
{child_utterances}

Cover: language development indicators, social-emotional signals, and
age-appropriate activities that would support this child's growth.`,
			RequiredVariables: []string{"transcript", "child_utterances"},
			LastModified:      now,
			ModifiedBy:        "system",
		},
		"coaching_tips": {
			Name:        "Situational coaching tips",
			Description: "Practical coaching advice tailored to the recorded situation.",
			Template: `Situation: {situation}

## Transcript
{transcript}

As a teacher coach, give practical, situation-specific tips the teacher can
apply in the same situation tomorrow. Number each tip and keep them concrete.`,
			RequiredVariables: []string{"situation", "transcript"},
			LastModified:      now,
			ModifiedBy:        "system",
		},
		"sentiment_interpretation": {
			Name:        "Sentiment interpretation",
			Description: "Educational interpretation of the emotional flow of the conversation.",
			Template: `Interpret the emotional flow of this conversation from an educational
perspective.

## Context
{context}

## Conversation
{transcript}

Explain how the child's emotional state shifts across the exchange and how the
teacher's responses supported or missed those shifts.`,
			RequiredVariables: []string{"context", "transcript"},
			LastModified:      now,
			ModifiedBy:        "system",
		},
	}
}
