package absa

import (
	"strconv"
	"strings"

	"github.com/turtacn/FediSent-Analytics/pkg/types"
)

// Critical-tone lexicons. Order matters for signal reporting, so these are
// slices, not sets.
var (
	criticalMetaphors = []string{
		"surveillance capitalism",
		"gig economy",
	}

	criticalKeywords = []string{
		"exploitation",
		"precarious",
		"inequality",
		"unfair",
		"exploité",
		"précaire",
		"inégalité",
		"injustice",
	}

	criticalEmojis = []string{
		"🙄", "😒", "😤", "😠", "😡", "🚩", "⚠️", "❌",
	}
)

const (
	metaphorWeight  = 0.4
	keywordWeight   = 0.15
	keywordCeiling  = 0.5
	emojiWeight     = 0.1
	emojiCeiling    = 0.3
	criticalCut     = 0.65
	skepticalCut    = 0.45
	questioningCut  = 0.25
	ironyOverrideAt = 0.7
)

// AssessTone scores how critical a post reads, independent of model
// sentiment. Three additive signal families: a systemic-critique metaphor
// (first match only), distinct critique keywords (capped), and skeptical
// emoji (capped, counted with multiplicity). The total is intentionally
// left uncapped.
func AssessTone(text string) types.ToneAssessment {
	lower := strings.ToLower(text)

	var score float64
	var signals []string

	for _, phrase := range criticalMetaphors {
		if strings.Contains(lower, phrase) {
			score += metaphorWeight
			signals = append(signals, "metaphor:"+phrase)
			break
		}
	}

	var keywords int
	for _, kw := range criticalKeywords {
		if strings.Contains(lower, kw) {
			keywords++
		}
	}
	if keywords > 0 {
		keywordScore := keywordWeight * float64(keywords)
		if keywordScore > keywordCeiling {
			keywordScore = keywordCeiling
		}
		score += keywordScore
		signals = append(signals, "keywords:"+strconv.Itoa(keywords))
	}

	var emojis int
	for _, emoji := range criticalEmojis {
		emojis += strings.Count(text, emoji)
	}
	if emojis > 0 {
		emojiScore := emojiWeight * float64(emojis)
		if emojiScore > emojiCeiling {
			emojiScore = emojiCeiling
		}
		score += emojiScore
		signals = append(signals, "emoji:"+strconv.Itoa(emojis))
	}

	return types.ToneAssessment{
		Tone:    toneFor(score),
		Score:   score,
		Signals: signals,
	}
}

func toneFor(score float64) types.Tone {
	switch {
	case score >= criticalCut:
		return types.ToneCritical
	case score >= skepticalCut:
		return types.ToneSkeptical
	case score >= questioningCut:
		return types.ToneQuestioning
	}
	return types.ToneNeutral
}

// OverrideIronicPositive rewrites a positive model sentiment to
// critical_ironic when the tone heuristic reads strongly critical.
// Sarcastic posts routinely classify as positive.
func OverrideIronicPositive(sentiment *types.SentimentResult, tone types.ToneAssessment) bool {
	if sentiment == nil {
		return false
	}
	if sentiment.Label == types.SentimentPositive && tone.Score >= ironyOverrideAt {
		sentiment.Label = types.SentimentCriticalIronic
		return true
	}
	return false
}
