package inference

import (
	"github.com/turtacn/FediSent-Analytics/internal/config"
	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/logging"
)

// Registry bundles the three model adapters the pipeline uses. Adapters with
// no configured URL come up permanently disabled; the worker runs degraded
// rather than refusing to start.
type Registry struct {
	Tagger    Tagger
	Sentiment SentimentScorer
	Emotion   EmotionScorer
}

// NewRegistry builds adapters from configuration.
func NewRegistry(cfg config.InferenceConfig, logger logging.Logger) *Registry {
	return &Registry{
		Tagger:    NewHTTPTagger(cfg.TaggerURL, cfg.DefaultLanguage, cfg.RequestTimeout, logger),
		Sentiment: NewHTTPSentimentScorer(cfg.SentimentURL, cfg.SentimentWindow, cfg.RequestTimeout, logger),
		Emotion:   NewHTTPEmotionScorer(cfg.EmotionURL, cfg.EmotionCutoff, cfg.RequestTimeout, logger),
	}
}

// SetObserver attaches o to every adapter that supports instrumentation.
// Call before the pipeline starts; observers are not swapped mid-flight.
func (r *Registry) SetObserver(o Observer) {
	for _, a := range []Adapter{r.Tagger, r.Sentiment, r.Emotion} {
		if s, ok := a.(interface{ setObserver(Observer) }); ok {
			s.setObserver(o)
		}
	}
}

// States reports adapter states keyed by adapter name.
func (r *Registry) States() map[string]string {
	out := make(map[string]string, 3)
	for _, a := range []Adapter{r.Tagger, r.Sentiment, r.Emotion} {
		s := a.State().String()
		if reason := a.DisabledReason(); reason != "" {
			s = s + ": " + reason
		}
		out[a.Name()] = s
	}
	return out
}
