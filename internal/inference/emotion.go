package inference

import (
	"context"
	"sort"
	"time"

	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FediSent-Analytics/pkg/types"
)

// EmotionScorer classifies the emotions expressed in a text.
type EmotionScorer interface {
	Adapter
	Score(ctx context.Context, text string) ([]types.EmotionScore, error)
}

type httpEmotion struct {
	*httpAdapter
	cutoff float64
	window int
}

// NewHTTPEmotionScorer creates a scorer backed by the service at baseURL.
// Emotions scoring at or below cutoff are dropped.
func NewHTTPEmotionScorer(baseURL string, cutoff float64, timeout time.Duration, logger logging.Logger) EmotionScorer {
	if cutoff == 0 {
		cutoff = 0.1
	}
	return &httpEmotion{
		httpAdapter: newHTTPAdapter("emotion", baseURL, timeout, logger),
		cutoff:      cutoff,
		window:      512,
	}
}

type emotionRequest struct {
	Text string `json:"text"`
}

type emotionResponse struct {
	Emotions []struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	} `json:"emotions"`
}

// Score returns the emotions above the cutoff, strongest first. Callers
// keep the top entries appropriate to their storage representation.
func (e *httpEmotion) Score(ctx context.Context, text string) ([]types.EmotionScore, error) {
	text = truncateRunes(text, e.window)

	var resp emotionResponse
	if err := e.postJSON(ctx, "/emotions", emotionRequest{Text: text}, &resp); err != nil {
		return nil, err
	}

	scores := make([]types.EmotionScore, 0, len(resp.Emotions))
	for _, em := range resp.Emotions {
		if em.Score > e.cutoff {
			scores = append(scores, types.EmotionScore{Emotion: em.Label, Score: em.Score})
		}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	return scores, nil
}
