// Package types defines the wire and document shapes shared between the
// queue, the analyzer, and the store gateway.
package types

import (
	"strings"
	"time"
)

// RawPost is one queued item as produced by the streaming collector.
// Field names match the queue wire format.
type RawPost struct {
	TootID    string   `json:"toot_id"`
	Text      string   `json:"text"`
	CreatedAt string   `json:"created_at"`
	Lang      string   `json:"lang,omitempty"`
	Author    string   `json:"author_username"`
	Instance  string   `json:"instance"`
	Hashtags  []string `json:"hashtags,omitempty"`
}

// Language returns the declared language, or fallback when the post carries
// none or an unknown marker.
func (p *RawPost) Language(fallback string) string {
	lang := strings.TrimSpace(strings.ToLower(p.Lang))
	if lang == "" || lang == "unknown" {
		return fallback
	}
	return lang
}

// TokenAnnotation is one token from the linguistic tagger.
type TokenAnnotation struct {
	Text  string `json:"text"`
	Lemma string `json:"lemma"`
	POS   string `json:"pos"`
}

// Tone is the discrete label produced by the critical-tone heuristic.
type Tone string

const (
	ToneNeutral     Tone = "neutral"
	ToneQuestioning Tone = "questioning"
	ToneSkeptical   Tone = "skeptical"
	ToneCritical    Tone = "critical"
)

// ToneAssessment is the result of the critical-tone heuristic. Score is the
// unclamped sum of the weighted signal contributions.
type ToneAssessment struct {
	Tone    Tone     `json:"tone"`
	Score   float64  `json:"critical_score"`
	Signals []string `json:"signals,omitempty"`
}

// SentimentLabel is the polarity of a sentiment judgment.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"

	// SentimentCriticalIronic is the derived override applied when the base
	// label is positive but the critical-tone score is high. It is never
	// produced directly by the classifier.
	SentimentCriticalIronic SentimentLabel = "critical_ironic"
)

// SentimentResult is a label with classifier confidence in [0,1].
type SentimentResult struct {
	Label SentimentLabel `json:"label"`
	Score float64        `json:"score"`
}

// AspectSentiment is the per-aspect sentiment judgment with the context
// window it was scored on.
type AspectSentiment struct {
	Aspect    string          `json:"aspect"`
	Sentiment SentimentResult `json:"sentiment"`
}

// EmotionScore is one ranked emotion from the emotion classifier.
type EmotionScore struct {
	Emotion string  `json:"emotion"`
	Score   float64 `json:"score"`
}

// EmotionsMode selects the storage representation of emotions, resolved once
// at startup by probing the existing index mapping.
type EmotionsMode string

const (
	// EmotionsNested stores emotions as ranked objects plus a flat name list.
	EmotionsNested EmotionsMode = "nested"
	// EmotionsFlat stores only the flat list of emotion names.
	EmotionsFlat EmotionsMode = "flat"
)

// DocumentMetadata carries collector-provided context for dashboard filters.
type DocumentMetadata struct {
	Hashtags []string `json:"hashtags"`
	Author   string   `json:"author"`
	Instance string   `json:"instance"`
}

// AnalysisDocument is the enriched document persisted to the store. Its id is
// the post id, making indexing an idempotent upsert.
type AnalysisDocument struct {
	ID            string            `json:"id"`
	CreatedAt     string            `json:"created_at"`
	Language      string            `json:"language"`
	Text          string            `json:"text"`
	Aspects       []string          `json:"aspects"`
	Sentiment     SentimentResult   `json:"sentiment"`
	AspectDetails []AspectSentiment `json:"aspect_sentiments,omitempty"`
	Emotions      []EmotionScore    `json:"emotions,omitempty"`
	EmotionsFlat  []string          `json:"emotions_flat"`
	CriticalTone  ToneAssessment    `json:"critical_tone"`
	Metadata      DocumentMetadata  `json:"metadata"`
	IndexedAt     time.Time         `json:"indexed_at"`
}
