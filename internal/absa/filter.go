package absa

import (
	"regexp"
	"strings"

	"github.com/turtacn/FediSent-Analytics/pkg/types"
)

// RejectReason classifies why a candidate aspect was dropped. Checks run in
// a fixed order and the first failing check wins, so counters stay
// comparable across runs.
type RejectReason string

const (
	RejectEmpty         RejectReason = "empty"
	RejectTooShort      RejectReason = "too_short"
	RejectURLOrMention  RejectReason = "url_or_mention"
	RejectStopword      RejectReason = "stopword"
	RejectWrongPOS      RejectReason = "wrong_pos"
	RejectNoAlpha       RejectReason = "no_alpha"
	RejectTooRepetitive RejectReason = "too_repetitive"
)

// RejectReasons lists every reason in check order.
var RejectReasons = []RejectReason{
	RejectEmpty,
	RejectTooShort,
	RejectURLOrMention,
	RejectStopword,
	RejectWrongPOS,
	RejectNoAlpha,
	RejectTooRepetitive,
}

// FilterMode selects a filtering preset.
type FilterMode string

const (
	ModeStrict     FilterMode = "strict"
	ModeBalanced   FilterMode = "balanced"
	ModePermissive FilterMode = "permissive"
)

var (
	urlPattern     = regexp.MustCompile(`(?i)^(https?://\S+|www\.\S+|t\.co/\S+)`)
	mentionPattern = regexp.MustCompile(`^@\w+`)
	alphaPattern   = regexp.MustCompile(`[a-zA-ZÀ-ÿ]`)
)

// baseStopwords are lemmas too generic to carry aspect meaning in the
// mixed French/English corpus.
var baseStopwords = map[string]struct{}{
	"être": {}, "avoir": {}, "faire": {},
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {},
}

// extendedStopwords adds common light verbs and prepositions; only the
// strict preset uses them.
var extendedStopwords = map[string]struct{}{
	"dire": {}, "aller": {}, "pouvoir": {},
	"but": {}, "in": {}, "on": {}, "at": {},
}

// FilterPolicy holds the tunables of one preset.
type FilterPolicy struct {
	Mode          FilterMode
	MinLength     int
	MaxRepetition int
	AllowedPOS    map[string]struct{}
	Stopwords     map[string]struct{}
}

func posSet(tags ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		s[tag] = struct{}{}
	}
	return s
}

func mergeStopwords(sets ...map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for _, set := range sets {
		for w := range set {
			out[w] = struct{}{}
		}
	}
	return out
}

// PolicyFor returns the preset for mode. Unknown modes fall back to
// balanced.
func PolicyFor(mode FilterMode) FilterPolicy {
	switch mode {
	case ModeStrict:
		return FilterPolicy{
			Mode:          ModeStrict,
			MinLength:     3,
			MaxRepetition: 6,
			AllowedPOS:    posSet("NOUN", "PROPN", "ADJ"),
			Stopwords:     mergeStopwords(baseStopwords, extendedStopwords),
		}
	case ModePermissive:
		return FilterPolicy{
			Mode:          ModePermissive,
			MinLength:     2,
			MaxRepetition: 15,
			AllowedPOS:    posSet("NOUN", "PROPN", "ADJ", "VERB", "ADV"),
			Stopwords:     baseStopwords,
		}
	default:
		return FilterPolicy{
			Mode:          ModeBalanced,
			MinLength:     2,
			MaxRepetition: 10,
			AllowedPOS:    posSet("NOUN", "PROPN", "ADJ", "VERB"),
			Stopwords:     baseStopwords,
		}
	}
}

// Check validates one annotated token as an aspect candidate against the
// policy, returning the first failing reason. All checks run on the lowered
// token text (the surface form the post actually contains); the lemma only
// becomes the aspect value downstream. text is the full post the token came
// from; repetition is counted there.
func (p FilterPolicy) Check(token types.TokenAnnotation, text string) (RejectReason, bool) {
	candidate := strings.ToLower(strings.TrimSpace(token.Text))

	if candidate == "" {
		return RejectEmpty, false
	}
	if len([]rune(candidate)) < p.MinLength {
		return RejectTooShort, false
	}
	if urlPattern.MatchString(candidate) || mentionPattern.MatchString(candidate) {
		return RejectURLOrMention, false
	}
	if _, stopped := p.Stopwords[candidate]; stopped {
		return RejectStopword, false
	}
	if _, ok := p.AllowedPOS[token.POS]; !ok {
		return RejectWrongPOS, false
	}
	if !alphaPattern.MatchString(candidate) {
		return RejectNoAlpha, false
	}
	if strings.Count(strings.ToLower(text), candidate) > p.MaxRepetition {
		return RejectTooRepetitive, false
	}
	return "", true
}
