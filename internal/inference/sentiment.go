package inference

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FediSent-Analytics/pkg/types"
)

// SentimentScorer classifies the sentiment of a text window.
type SentimentScorer interface {
	Adapter
	Score(ctx context.Context, text string) (*types.SentimentResult, error)
}

// httpSentiment calls a sentiment classification service over HTTP. Input is
// truncated to the configured window before the call; transformer backends
// reject longer sequences.
type httpSentiment struct {
	*httpAdapter
	window int
}

// NewHTTPSentimentScorer creates a scorer backed by the service at baseURL.
func NewHTTPSentimentScorer(baseURL string, window int, timeout time.Duration, logger logging.Logger) SentimentScorer {
	if window <= 0 {
		window = 512
	}
	return &httpSentiment{
		httpAdapter: newHTTPAdapter("sentiment", baseURL, timeout, logger),
		window:      window,
	}
}

type sentimentRequest struct {
	Text string `json:"text"`
}

type sentimentResponse struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (s *httpSentiment) Score(ctx context.Context, text string) (*types.SentimentResult, error) {
	text = truncateRunes(text, s.window)

	var resp sentimentResponse
	if err := s.postJSON(ctx, "/sentiment", sentimentRequest{Text: text}, &resp); err != nil {
		return nil, err
	}

	return &types.SentimentResult{
		Label: types.SentimentLabel(strings.ToLower(resp.Label)),
		Score: resp.Score,
	}, nil
}

// truncateRunes cuts s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
