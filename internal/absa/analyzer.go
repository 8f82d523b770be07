package absa

import (
	"context"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/FediSent-Analytics/internal/inference"
	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FediSent-Analytics/pkg/types"
)

const (
	// textBudget bounds the stored copy of the text in runes. Analysis
	// always sees the full post.
	textBudget = 500

	nestedEmotionLimit = 5
	flatEmotionLimit   = 3
)

var sentenceSplit = regexp.MustCompile(`[.!?]+\s+`)

// Analyzer runs the enrichment pipeline over one post: aspect extraction,
// overall and per-aspect sentiment, emotions, and the critical-tone
// heuristic. Adapter failures degrade the document rather than fail it; a
// post with no model output still carries its tone assessment.
type Analyzer struct {
	policy      FilterPolicy
	adapters    *inference.Registry
	cache       *AnalysisCache
	remote      RemoteCache
	remoteTTL   time.Duration
	concurrency int
	stats       *Stats
	metrics     MetricsRecorder
	sf          singleflight.Group
	mode        types.EmotionsMode
	defaultLang string
	logger      logging.Logger
}

// MetricsRecorder receives filter and cache outcomes for export. Stats keeps
// the authoritative counters; this is the Prometheus hook.
type MetricsRecorder interface {
	RecordAspectRejected(reason string)
	RecordCacheLookup(tier string, hit bool)
}

// AnalyzerOptions configures an Analyzer.
type AnalyzerOptions struct {
	Mode         FilterMode
	EmotionsMode types.EmotionsMode
	DefaultLang  string
	Cache        *AnalysisCache
	Stats        *Stats

	// Remote enables the shared cache tier; nil keeps the analyzer
	// single-worker local.
	Remote    RemoteCache
	RemoteTTL time.Duration

	// Concurrency bounds parallel per-aspect sentiment calls. 1 keeps the
	// fully sequential baseline.
	Concurrency int

	Metrics MetricsRecorder
}

// NewAnalyzer creates an Analyzer. A nil cache or stats gets a fresh one.
func NewAnalyzer(adapters *inference.Registry, opts AnalyzerOptions, logger logging.Logger) (*Analyzer, error) {
	cache := opts.Cache
	if cache == nil {
		var err error
		cache, err = NewAnalysisCache(0)
		if err != nil {
			return nil, err
		}
	}
	stats := opts.Stats
	if stats == nil {
		stats = NewStats()
	}
	mode := opts.EmotionsMode
	if mode == "" {
		mode = types.EmotionsNested
	}
	lang := opts.DefaultLang
	if lang == "" {
		lang = "fr"
	}
	remoteTTL := opts.RemoteTTL
	if remoteTTL <= 0 {
		remoteTTL = 6 * time.Hour
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Analyzer{
		policy:      PolicyFor(opts.Mode),
		adapters:    adapters,
		cache:       cache,
		remote:      opts.Remote,
		remoteTTL:   remoteTTL,
		concurrency: concurrency,
		stats:       stats,
		metrics:     opts.Metrics,
		mode:        mode,
		defaultLang: lang,
		logger:      logger.Named("analyzer"),
	}, nil
}

// Stats exposes the shared counters.
func (a *Analyzer) Stats() *Stats { return a.stats }

func (a *Analyzer) recordLookup(tier string, hit bool) {
	if a.metrics != nil {
		a.metrics.RecordCacheLookup(tier, hit)
	}
}

// Cache exposes the memoization tier.
func (a *Analyzer) Cache() *AnalysisCache { return a.cache }

// Analyze enriches one post into an indexable document. A blank post, or
// one whose text yields no surviving aspect, returns (nil, nil): nothing is
// indexed for it and no model beyond the tagger runs. The aspect gate is
// the pipeline's volume control.
func (a *Analyzer) Analyze(ctx context.Context, post *types.RawPost) (*types.AnalysisDocument, error) {
	text := strings.TrimSpace(post.Text)
	if text == "" {
		return nil, nil
	}
	lang := post.Language(a.defaultLang)

	// Tone is model-free and counted for every non-blank post, gated or not.
	tone := AssessTone(text)
	a.stats.RecordTone(tone.Tone)

	aspects := a.extractAspects(ctx, text, lang)
	if len(aspects) == 0 {
		return nil, nil
	}

	doc := &types.AnalysisDocument{
		ID:           post.TootID,
		CreatedAt:    post.CreatedAt,
		Language:     lang,
		Text:         truncateRunes(text, textBudget),
		Aspects:      aspects,
		EmotionsFlat: []string{},
		CriticalTone: tone,
		Metadata: types.DocumentMetadata{
			Hashtags: post.Hashtags,
			Author:   post.Author,
			Instance: post.Instance,
		},
	}

	if sentiment := a.scoreSentiment(ctx, text); sentiment != nil {
		doc.Sentiment = *sentiment
	} else {
		doc.Sentiment = types.SentimentResult{Label: types.SentimentNeutral}
	}

	doc.AspectDetails = a.scoreAspects(ctx, text, aspects)

	a.attachEmotions(ctx, text, doc)

	if OverrideIronicPositive(&doc.Sentiment, tone) {
		a.stats.RecordIronyOverride()
		a.logger.Debug("irony override applied",
			logging.String("id", doc.ID),
			logging.Float64("critical_score", tone.Score))
	}

	return doc, nil
}

// extractAspects tags the text and keeps the lemmas that survive the filter
// policy, deduplicated in first-seen order. Tagger failure yields no aspects.
func (a *Analyzer) extractAspects(ctx context.Context, text, lang string) []string {
	if cached, ok := a.cache.GetAspects(text); ok {
		a.stats.RecordCacheHit()
		a.recordLookup("local", true)
		return cached
	}
	a.recordLookup("local", false)
	if a.remote != nil {
		var cached []string
		if err := a.remote.Get(ctx, AspectsKey(text), &cached); err == nil {
			a.stats.RecordCacheHit()
			a.recordLookup("remote", true)
			a.cache.SetAspects(text, cached)
			return cached
		}
		a.recordLookup("remote", false)
	}
	a.stats.RecordCacheMiss()

	// Concurrent callers with identical text share one tagger call.
	v, _, _ := a.sf.Do(AspectsKey(text), func() (interface{}, error) {
		return a.computeAspects(ctx, text, lang), nil
	})
	return v.([]string)
}

func (a *Analyzer) computeAspects(ctx context.Context, text, lang string) []string {
	tokens, err := a.adapters.Tagger.Annotate(ctx, text, lang)
	if err != nil {
		a.logger.Debug("aspect extraction skipped", logging.Err(err))
		return []string{}
	}

	seen := make(map[string]struct{})
	aspects := []string{}
	for _, token := range tokens {
		reason, ok := a.policy.Check(token, text)
		if !ok {
			a.stats.RecordAspectRejected(reason)
			if a.metrics != nil {
				a.metrics.RecordAspectRejected(string(reason))
			}
			continue
		}
		lemma := strings.ToLower(strings.TrimSpace(token.Lemma))
		if lemma == "" {
			lemma = strings.ToLower(strings.TrimSpace(token.Text))
		}
		if _, dup := seen[lemma]; dup {
			continue
		}
		seen[lemma] = struct{}{}
		aspects = append(aspects, lemma)
		a.stats.RecordAspectKept()
	}

	a.cache.SetAspects(text, aspects)
	if a.remote != nil {
		if err := a.remote.Set(ctx, AspectsKey(text), aspects, a.remoteTTL); err != nil {
			a.logger.Debug("remote cache set failed", logging.Err(err))
		}
	}
	return aspects
}

// scoreSentiment scores the whole text.
func (a *Analyzer) scoreSentiment(ctx context.Context, text string) *types.SentimentResult {
	result, err := a.adapters.Sentiment.Score(ctx, text)
	if err != nil {
		a.logger.Debug("sentiment skipped", logging.Err(err))
		return nil
	}
	return result
}

// scoreAspects scores each aspect on its sentence window, in parallel when
// configured. Output order follows aspect order either way.
func (a *Analyzer) scoreAspects(ctx context.Context, text string, aspects []string) []types.AspectSentiment {
	if len(aspects) == 0 {
		return nil
	}

	results := make([]*types.SentimentResult, len(aspects))
	if a.concurrency <= 1 {
		for i, aspect := range aspects {
			results[i] = a.scoreAspectSentiment(ctx, aspect, sentenceFor(text, aspect))
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.concurrency)
		for i, aspect := range aspects {
			i, aspect := i, aspect
			g.Go(func() error {
				results[i] = a.scoreAspectSentiment(gctx, aspect, sentenceFor(text, aspect))
				return nil
			})
		}
		_ = g.Wait()
	}

	out := make([]types.AspectSentiment, 0, len(aspects))
	for i, aspect := range aspects {
		if results[i] == nil {
			continue
		}
		out = append(out, types.AspectSentiment{Aspect: aspect, Sentiment: *results[i]})
	}
	return out
}

func (a *Analyzer) scoreAspectSentiment(ctx context.Context, aspect, window string) *types.SentimentResult {
	if cached, ok := a.cache.GetSentiment(aspect, window); ok {
		a.stats.RecordCacheHit()
		a.recordLookup("local", true)
		return cached
	}
	a.recordLookup("local", false)
	if a.remote != nil {
		var cached types.SentimentResult
		if err := a.remote.Get(ctx, SentimentKey(aspect, window), &cached); err == nil {
			a.stats.RecordCacheHit()
			a.recordLookup("remote", true)
			a.cache.SetSentiment(aspect, window, &cached)
			return &cached
		}
		a.recordLookup("remote", false)
	}
	a.stats.RecordCacheMiss()

	v, _, _ := a.sf.Do(SentimentKey(aspect, window), func() (interface{}, error) {
		return a.computeAspectSentiment(ctx, aspect, window), nil
	})
	return v.(*types.SentimentResult)
}

func (a *Analyzer) computeAspectSentiment(ctx context.Context, aspect, window string) *types.SentimentResult {
	result, err := a.adapters.Sentiment.Score(ctx, window)
	if err != nil {
		a.logger.Debug("aspect sentiment skipped",
			logging.String("aspect", aspect), logging.Err(err))
		return nil
	}

	a.cache.SetSentiment(aspect, window, result)
	if a.remote != nil {
		if err := a.remote.Set(ctx, SentimentKey(aspect, window), result, a.remoteTTL); err != nil {
			a.logger.Debug("remote cache set failed", logging.Err(err))
		}
	}
	return result
}

// attachEmotions scores emotions and shapes them for the active storage
// representation: ranked objects plus names in nested mode, names only in
// flat mode.
func (a *Analyzer) attachEmotions(ctx context.Context, text string, doc *types.AnalysisDocument) {
	scores, err := a.adapters.Emotion.Score(ctx, text)
	if err != nil {
		a.logger.Debug("emotions skipped", logging.Err(err))
		return
	}

	switch a.mode {
	case types.EmotionsFlat:
		if len(scores) > flatEmotionLimit {
			scores = scores[:flatEmotionLimit]
		}
		doc.EmotionsFlat = emotionNames(scores)
	default:
		if len(scores) > nestedEmotionLimit {
			scores = scores[:nestedEmotionLimit]
		}
		doc.Emotions = scores
		doc.EmotionsFlat = emotionNames(scores)
	}
}

func emotionNames(scores []types.EmotionScore) []string {
	names := make([]string, 0, len(scores))
	for _, s := range scores {
		names = append(names, s.Emotion)
	}
	return names
}

// sentenceFor returns the first sentence of text containing aspect, or the
// whole text when no sentence matches.
func sentenceFor(text, aspect string) string {
	loweredAspect := strings.ToLower(aspect)
	for _, sentence := range sentenceSplit.Split(text, -1) {
		if strings.Contains(strings.ToLower(sentence), loweredAspect) {
			return sentence
		}
	}
	return text
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
