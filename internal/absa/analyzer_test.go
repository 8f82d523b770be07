package absa

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FediSent-Analytics/internal/inference"
	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FediSent-Analytics/pkg/errors"
	"github.com/turtacn/FediSent-Analytics/pkg/types"
)

type stubAdapter struct {
	name     string
	disabled bool
}

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) State() inference.State {
	if s.disabled {
		return inference.StateDisabled
	}
	return inference.StateReady
}
func (s *stubAdapter) DisabledReason() string {
	if s.disabled {
		return "stubbed out"
	}
	return ""
}

type stubTagger struct {
	stubAdapter
	tokens  []types.TokenAnnotation
	calls   int
	gotText string
}

func (s *stubTagger) Annotate(_ context.Context, text, _ string) ([]types.TokenAnnotation, error) {
	s.calls++
	s.gotText = text
	if s.disabled {
		return nil, errors.New(errors.ErrCodeInferenceDisabled, "stubbed out")
	}
	return s.tokens, nil
}

type stubSentiment struct {
	stubAdapter
	result types.SentimentResult
	calls  atomic.Int32
}

func (s *stubSentiment) Score(_ context.Context, _ string) (*types.SentimentResult, error) {
	s.calls.Add(1)
	if s.disabled {
		return nil, errors.New(errors.ErrCodeInferenceDisabled, "stubbed out")
	}
	r := s.result
	return &r, nil
}

type stubEmotion struct {
	stubAdapter
	scores []types.EmotionScore
	calls  int
}

func (s *stubEmotion) Score(_ context.Context, _ string) ([]types.EmotionScore, error) {
	s.calls++
	if s.disabled {
		return nil, errors.New(errors.ErrCodeInferenceDisabled, "stubbed out")
	}
	return append([]types.EmotionScore(nil), s.scores...), nil
}

func newTestAnalyzer(t *testing.T, opts AnalyzerOptions, tagger *stubTagger, sentiment *stubSentiment, emotion *stubEmotion) *Analyzer {
	t.Helper()
	reg := &inference.Registry{Tagger: tagger, Sentiment: sentiment, Emotion: emotion}
	analyzer, err := NewAnalyzer(reg, opts, logging.NewNopLogger())
	require.NoError(t, err)
	return analyzer
}

func TestAnalyze_EnrichesPositivePost(t *testing.T) {
	tagger := &stubTagger{
		stubAdapter: stubAdapter{name: "tagger"},
		tokens: []types.TokenAnnotation{
			{Text: "J'", Lemma: "je", POS: "PRON"},
			{Text: "adore", Lemma: "adorer", POS: "VERB"},
			{Text: "mon", Lemma: "mon", POS: "DET"},
			{Text: "Pixel", Lemma: "pixel", POS: "PROPN"},
			{Text: "écran", Lemma: "écran", POS: "NOUN"},
			{Text: "est", Lemma: "être", POS: "AUX"},
			{Text: "magnifique", Lemma: "magnifique", POS: "ADJ"},
		},
	}
	sentiment := &stubSentiment{
		stubAdapter: stubAdapter{name: "sentiment"},
		result:      types.SentimentResult{Label: types.SentimentPositive, Score: 0.97},
	}
	emotion := &stubEmotion{
		stubAdapter: stubAdapter{name: "emotion"},
		scores: []types.EmotionScore{
			{Emotion: "joy", Score: 0.82},
			{Emotion: "admiration", Score: 0.44},
			{Emotion: "optimism", Score: 0.31},
			{Emotion: "approval", Score: 0.22},
			{Emotion: "excitement", Score: 0.18},
			{Emotion: "gratitude", Score: 0.12},
		},
	}

	analyzer := newTestAnalyzer(t, AnalyzerOptions{Mode: ModeBalanced, DefaultLang: "fr"}, tagger, sentiment, emotion)

	post := &types.RawPost{
		TootID:    "112233",
		Text:      "J'adore mon Pixel. L'écran est magnifique!",
		CreatedAt: "2024-03-07T10:00:00Z",
		Author:    "alice",
		Instance:  "mastodon.example",
		Hashtags:  []string{"tech"},
	}

	doc, err := analyzer.Analyze(context.Background(), post)
	require.NoError(t, err)

	assert.Equal(t, "112233", doc.ID)
	assert.Equal(t, "fr", doc.Language)
	assert.Equal(t, []string{"adorer", "pixel", "écran", "magnifique"}, doc.Aspects)
	assert.Equal(t, types.SentimentPositive, doc.Sentiment.Label)
	require.Len(t, doc.AspectDetails, 4)
	assert.Equal(t, "pixel", doc.AspectDetails[1].Aspect)

	// Nested mode keeps the top five emotions plus the flat name list.
	require.Len(t, doc.Emotions, 5)
	assert.Equal(t, "joy", doc.Emotions[0].Emotion)
	assert.Equal(t, []string{"joy", "admiration", "optimism", "approval", "excitement"}, doc.EmotionsFlat)

	assert.Equal(t, types.ToneNeutral, doc.CriticalTone.Tone)
	assert.Equal(t, "alice", doc.Metadata.Author)
	assert.Equal(t, []string{"tech"}, doc.Metadata.Hashtags)
}

func TestAnalyze_IronyOverride(t *testing.T) {
	tagger := &stubTagger{
		stubAdapter: stubAdapter{name: "tagger"},
		tokens:      []types.TokenAnnotation{{Text: "capitalism", Lemma: "capitalism", POS: "NOUN"}},
	}
	sentiment := &stubSentiment{
		stubAdapter: stubAdapter{name: "sentiment"},
		result:      types.SentimentResult{Label: types.SentimentPositive, Score: 0.91},
	}
	emotion := &stubEmotion{stubAdapter: stubAdapter{name: "emotion"}}

	analyzer := newTestAnalyzer(t, AnalyzerOptions{Mode: ModeBalanced}, tagger, sentiment, emotion)

	post := &types.RawPost{
		TootID: "445566",
		Text:   "Ah oui, le surveillance capitalism c'est tellement unfair 🙄🙄🙄",
	}

	doc, err := analyzer.Analyze(context.Background(), post)
	require.NoError(t, err)

	assert.Equal(t, types.ToneCritical, doc.CriticalTone.Tone)
	assert.InDelta(t, 0.85, doc.CriticalTone.Score, 1e-9)
	assert.Equal(t, types.SentimentCriticalIronic, doc.Sentiment.Label)
	assert.Equal(t, int64(1), analyzer.Stats().Snapshot().IronyOverrides)
}

func TestAnalyze_DegradesWhenAdaptersDisabled(t *testing.T) {
	tagger := &stubTagger{
		stubAdapter: stubAdapter{name: "tagger"},
		tokens:      []types.TokenAnnotation{{Text: "exploitation", Lemma: "exploitation", POS: "NOUN"}},
	}
	sentiment := &stubSentiment{stubAdapter: stubAdapter{name: "sentiment", disabled: true}}
	emotion := &stubEmotion{stubAdapter: stubAdapter{name: "emotion", disabled: true}}

	analyzer := newTestAnalyzer(t, AnalyzerOptions{Mode: ModeBalanced}, tagger, sentiment, emotion)

	doc, err := analyzer.Analyze(context.Background(), &types.RawPost{
		TootID: "778899",
		Text:   "La gig economy reste une exploitation 🚩",
	})
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, []string{"exploitation"}, doc.Aspects)
	assert.Equal(t, types.SentimentNeutral, doc.Sentiment.Label)
	assert.Empty(t, doc.AspectDetails)
	assert.NotNil(t, doc.EmotionsFlat)

	// The heuristic needs no model.
	assert.Equal(t, types.ToneCritical, doc.CriticalTone.Tone)
}

func TestAnalyze_FlatEmotionsMode(t *testing.T) {
	tagger := &stubTagger{
		stubAdapter: stubAdapter{name: "tagger"},
		tokens:      []types.TokenAnnotation{{Text: "grr", Lemma: "grr", POS: "NOUN"}},
	}
	sentiment := &stubSentiment{
		stubAdapter: stubAdapter{name: "sentiment"},
		result:      types.SentimentResult{Label: types.SentimentNeutral, Score: 0.5},
	}
	emotion := &stubEmotion{
		stubAdapter: stubAdapter{name: "emotion"},
		scores: []types.EmotionScore{
			{Emotion: "anger", Score: 0.7},
			{Emotion: "annoyance", Score: 0.5},
			{Emotion: "disgust", Score: 0.3},
			{Emotion: "fear", Score: 0.2},
		},
	}

	analyzer := newTestAnalyzer(t, AnalyzerOptions{
		Mode:         ModeBalanced,
		EmotionsMode: types.EmotionsFlat,
	}, tagger, sentiment, emotion)

	doc, err := analyzer.Analyze(context.Background(), &types.RawPost{TootID: "1", Text: "grr"})
	require.NoError(t, err)

	assert.Nil(t, doc.Emotions)
	assert.Equal(t, []string{"anger", "annoyance", "disgust"}, doc.EmotionsFlat)
}

func TestAnalyze_MemoizesAspectExtraction(t *testing.T) {
	tagger := &stubTagger{
		stubAdapter: stubAdapter{name: "tagger"},
		tokens:      []types.TokenAnnotation{{Text: "réseau", Lemma: "réseau", POS: "NOUN"}},
	}
	sentiment := &stubSentiment{
		stubAdapter: stubAdapter{name: "sentiment"},
		result:      types.SentimentResult{Label: types.SentimentNeutral, Score: 0.5},
	}
	emotion := &stubEmotion{stubAdapter: stubAdapter{name: "emotion"}}

	analyzer := newTestAnalyzer(t, AnalyzerOptions{Mode: ModeBalanced}, tagger, sentiment, emotion)

	post := &types.RawPost{TootID: "1", Text: "le réseau est lent"}
	_, err := analyzer.Analyze(context.Background(), post)
	require.NoError(t, err)

	boost := &types.RawPost{TootID: "2", Text: "le réseau est lent"}
	_, err = analyzer.Analyze(context.Background(), boost)
	require.NoError(t, err)

	assert.Equal(t, 1, tagger.calls, "identical text tags once")

	snap := analyzer.Stats().Snapshot()
	assert.Equal(t, int64(2), snap.CacheHits, "aspect and sentiment lookups hit")
}

func TestAnalyze_TruncatesOnlyStoredText(t *testing.T) {
	tagger := &stubTagger{
		stubAdapter: stubAdapter{name: "tagger"},
		tokens:      []types.TokenAnnotation{{Text: "réseau", Lemma: "réseau", POS: "NOUN"}},
	}
	sentiment := &stubSentiment{
		stubAdapter: stubAdapter{name: "sentiment"},
		result:      types.SentimentResult{Label: types.SentimentNeutral, Score: 0.5},
	}
	emotion := &stubEmotion{stubAdapter: stubAdapter{name: "emotion"}}

	analyzer := newTestAnalyzer(t, AnalyzerOptions{Mode: ModeBalanced}, tagger, sentiment, emotion)

	text := "le réseau " + strings.Repeat("é", 600)
	doc, err := analyzer.Analyze(context.Background(), &types.RawPost{
		TootID: "1",
		Text:   text,
	})
	require.NoError(t, err)
	require.NotNil(t, doc)

	// The models see the whole post; only the stored copy is bounded.
	assert.Equal(t, text, tagger.gotText)
	assert.Equal(t, 500, len([]rune(doc.Text)))
}

func TestAnalyze_LanguageFallback(t *testing.T) {
	tagger := &stubTagger{
		stubAdapter: stubAdapter{name: "tagger"},
		tokens:      []types.TokenAnnotation{{Text: "hello", Lemma: "hello", POS: "NOUN"}},
	}
	sentiment := &stubSentiment{
		stubAdapter: stubAdapter{name: "sentiment"},
		result:      types.SentimentResult{Label: types.SentimentNeutral, Score: 0.5},
	}
	emotion := &stubEmotion{stubAdapter: stubAdapter{name: "emotion"}}

	analyzer := newTestAnalyzer(t, AnalyzerOptions{Mode: ModeBalanced, DefaultLang: "fr"}, tagger, sentiment, emotion)

	doc, err := analyzer.Analyze(context.Background(), &types.RawPost{TootID: "1", Text: "hi", Lang: "unknown"})
	require.NoError(t, err)
	assert.Equal(t, "fr", doc.Language)

	doc, err = analyzer.Analyze(context.Background(), &types.RawPost{TootID: "2", Text: "hello", Lang: "EN"})
	require.NoError(t, err)
	assert.Equal(t, "en", doc.Language)
}

func TestSentenceFor(t *testing.T) {
	text := "Le réseau est lent. L'écran est magnifique! Rien d'autre."

	assert.Equal(t, "L'écran est magnifique", sentenceFor(text, "écran"))
	assert.Equal(t, "Le réseau est lent", sentenceFor(text, "réseau"))
	assert.Equal(t, text, sentenceFor(text, "batterie"), "no match falls back to the whole text")
}

type fakeRemote struct {
	data map[string][]byte
	gets int
	sets int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{data: map[string][]byte{}}
}

func (f *fakeRemote) Get(_ context.Context, key string, dest interface{}) error {
	f.gets++
	raw, ok := f.data[key]
	if !ok {
		return errors.New(errors.ErrCodeCacheMiss, "cache miss")
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeRemote) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.sets++
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.data[key] = raw
	return nil
}

func TestAnalyze_RemoteCacheSharesAcrossWorkers(t *testing.T) {
	remote := newFakeRemote()
	tokens := []types.TokenAnnotation{{Text: "écran", Lemma: "écran", POS: "NOUN"}}

	firstTagger := &stubTagger{stubAdapter: stubAdapter{name: "tagger"}, tokens: tokens}
	firstSentiment := &stubSentiment{
		stubAdapter: stubAdapter{name: "sentiment"},
		result:      types.SentimentResult{Label: types.SentimentPositive, Score: 0.9},
	}
	first := newTestAnalyzer(t,
		AnalyzerOptions{Mode: ModeBalanced, Remote: remote},
		firstTagger, firstSentiment, &stubEmotion{stubAdapter: stubAdapter{name: "emotion"}})

	post := &types.RawPost{TootID: "1", Text: "L'écran est magnifique", Lang: "fr"}
	doc, err := first.Analyze(context.Background(), post)
	require.NoError(t, err)
	assert.Equal(t, []string{"écran"}, doc.Aspects)
	assert.Positive(t, remote.sets, "first worker populates the shared tier")

	// A second worker with a cold local cache reuses the remote results and
	// never calls its tagger.
	secondTagger := &stubTagger{stubAdapter: stubAdapter{name: "tagger"}, tokens: tokens}
	second := newTestAnalyzer(t,
		AnalyzerOptions{Mode: ModeBalanced, Remote: remote},
		secondTagger, firstSentiment, &stubEmotion{stubAdapter: stubAdapter{name: "emotion"}})

	post2 := &types.RawPost{TootID: "2", Text: "L'écran est magnifique", Lang: "fr"}
	doc2, err := second.Analyze(context.Background(), post2)
	require.NoError(t, err)
	assert.Equal(t, []string{"écran"}, doc2.Aspects)
	assert.Zero(t, secondTagger.calls)
	assert.Equal(t, int64(2), second.Stats().Snapshot().CacheHits)
}

type fakeRecorder struct {
	rejected []string
	lookups  []string
}

func (f *fakeRecorder) RecordAspectRejected(reason string) {
	f.rejected = append(f.rejected, reason)
}

func (f *fakeRecorder) RecordCacheLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	f.lookups = append(f.lookups, tier+":"+result)
}

func TestAnalyze_ReportsFilterAndCacheOutcomes(t *testing.T) {
	recorder := &fakeRecorder{}
	tagger := &stubTagger{
		stubAdapter: stubAdapter{name: "tagger"},
		tokens: []types.TokenAnnotation{
			{Text: "Le", Lemma: "le", POS: "DET"},
			{Text: "réseau", Lemma: "réseau", POS: "NOUN"},
		},
	}
	sentiment := &stubSentiment{
		stubAdapter: stubAdapter{name: "sentiment"},
		result:      types.SentimentResult{Label: types.SentimentNegative, Score: 0.8},
	}

	analyzer := newTestAnalyzer(t,
		AnalyzerOptions{Mode: ModeBalanced, Metrics: recorder},
		tagger, sentiment, &stubEmotion{stubAdapter: stubAdapter{name: "emotion"}})

	post := &types.RawPost{TootID: "1", Text: "Le réseau est lent", Lang: "fr"}
	_, err := analyzer.Analyze(context.Background(), post)
	require.NoError(t, err)

	assert.Equal(t, []string{string(RejectWrongPOS)}, recorder.rejected)
	// One miss for aspect extraction, one for the single aspect's sentiment.
	assert.Equal(t, []string{"local:miss", "local:miss"}, recorder.lookups)

	// Same text again hits the local tier for both steps.
	recorder.lookups = nil
	_, err = analyzer.Analyze(context.Background(), &types.RawPost{TootID: "2", Text: "Le réseau est lent", Lang: "fr"})
	require.NoError(t, err)
	assert.Equal(t, []string{"local:hit", "local:hit"}, recorder.lookups)
}

func TestAnalyze_ConcurrentAspectScoring(t *testing.T) {
	tagger := &stubTagger{
		stubAdapter: stubAdapter{name: "tagger"},
		tokens: []types.TokenAnnotation{
			{Text: "écran", Lemma: "écran", POS: "NOUN"},
			{Text: "batterie", Lemma: "batterie", POS: "NOUN"},
			{Text: "clavier", Lemma: "clavier", POS: "NOUN"},
			{Text: "réseau", Lemma: "réseau", POS: "NOUN"},
			{Text: "webcam", Lemma: "webcam", POS: "NOUN"},
			{Text: "autonomie", Lemma: "autonomie", POS: "NOUN"},
		},
	}
	sentiment := &stubSentiment{
		stubAdapter: stubAdapter{name: "sentiment"},
		result:      types.SentimentResult{Label: types.SentimentNegative, Score: 0.88},
	}
	emotion := &stubEmotion{stubAdapter: stubAdapter{name: "emotion"}}

	analyzer := newTestAnalyzer(t,
		AnalyzerOptions{Mode: ModeBalanced, Concurrency: 4},
		tagger, sentiment, emotion)

	doc, err := analyzer.Analyze(context.Background(), &types.RawPost{
		TootID: "1",
		Text:   "écran batterie clavier réseau webcam autonomie",
		Lang:   "fr",
	})
	require.NoError(t, err)

	require.Len(t, doc.AspectDetails, len(doc.Aspects))
	for i, detail := range doc.AspectDetails {
		assert.Equal(t, doc.Aspects[i], detail.Aspect, "details follow aspect order")
		assert.Equal(t, types.SentimentNegative, detail.Sentiment.Label)
	}
	assert.Equal(t, int32(len(doc.Aspects)), sentiment.calls.Load())
}

func TestAnalyze_BlankTextYieldsNothing(t *testing.T) {
	tagger := &stubTagger{stubAdapter: stubAdapter{name: "tagger"}}
	sentiment := &stubSentiment{stubAdapter: stubAdapter{name: "sentiment"}}
	emotion := &stubEmotion{stubAdapter: stubAdapter{name: "emotion"}}

	analyzer := newTestAnalyzer(t, AnalyzerOptions{Mode: ModeBalanced}, tagger, sentiment, emotion)

	for _, text := range []string{"", "   ", "\n\t "} {
		doc, err := analyzer.Analyze(context.Background(), &types.RawPost{TootID: "1", Text: text})
		require.NoError(t, err)
		assert.Nil(t, doc)
	}

	// Nothing to analyze means no model runs at all.
	assert.Zero(t, tagger.calls)
	assert.Zero(t, sentiment.calls.Load())
	assert.Zero(t, emotion.calls)
}

func TestAnalyze_NoAspectsYieldsNothing(t *testing.T) {
	tagger := &stubTagger{
		stubAdapter: stubAdapter{name: "tagger"},
		tokens: []types.TokenAnnotation{
			{Text: "le", Lemma: "le", POS: "DET"},
			{Text: "est", Lemma: "être", POS: "AUX"},
		},
	}
	sentiment := &stubSentiment{stubAdapter: stubAdapter{name: "sentiment"}}
	emotion := &stubEmotion{stubAdapter: stubAdapter{name: "emotion"}}

	analyzer := newTestAnalyzer(t, AnalyzerOptions{Mode: ModeBalanced}, tagger, sentiment, emotion)

	doc, err := analyzer.Analyze(context.Background(), &types.RawPost{
		TootID: "1",
		Text:   "le réseau est 🚩 exploitation",
	})
	require.NoError(t, err)
	assert.Nil(t, doc)

	// The tagger ran; the aspect gate stopped everything downstream.
	assert.Equal(t, 1, tagger.calls)
	assert.Zero(t, sentiment.calls.Load())
	assert.Zero(t, emotion.calls)

	// The tone heuristic still counted the post (🚩 + exploitation = 0.25).
	snap := analyzer.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.Tones[types.ToneQuestioning])
}
