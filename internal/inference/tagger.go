package inference

import (
	"context"
	"time"

	"github.com/turtacn/FediSent-Analytics/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FediSent-Analytics/pkg/errors"
	"github.com/turtacn/FediSent-Analytics/pkg/types"
)

// Tagger produces part-of-speech annotations for a text.
type Tagger interface {
	Adapter
	Annotate(ctx context.Context, text, lang string) ([]types.TokenAnnotation, error)
}

// httpTagger calls a POS tagging service over HTTP.
type httpTagger struct {
	*httpAdapter
	defaultLang string
}

// NewHTTPTagger creates a tagger backed by the service at baseURL. An empty
// baseURL yields a permanently disabled tagger.
func NewHTTPTagger(baseURL, defaultLang string, timeout time.Duration, logger logging.Logger) Tagger {
	if defaultLang == "" {
		defaultLang = "fr"
	}
	return &httpTagger{
		httpAdapter: newHTTPAdapter("tagger", baseURL, timeout, logger),
		defaultLang: defaultLang,
	}
}

type tagRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

type tagResponse struct {
	Tokens []types.TokenAnnotation `json:"tokens"`
}

func (t *httpTagger) Annotate(ctx context.Context, text, lang string) ([]types.TokenAnnotation, error) {
	if lang == "" {
		lang = t.defaultLang
	}

	var resp tagResponse
	err := t.postJSON(ctx, "/tag", tagRequest{Text: text, Lang: lang}, &resp)
	if err != nil && lang != t.defaultLang && errors.IsCode(err, errors.ErrCodeInferenceRequest) {
		// The service answered but has no model for this language.
		t.logger.Warn("tagger model unavailable, falling back",
			logging.String("lang", lang),
			logging.String("fallback", t.defaultLang))
		err = t.postJSON(ctx, "/tag", tagRequest{Text: text, Lang: t.defaultLang}, &resp)
	}
	if err != nil {
		return nil, err
	}
	return resp.Tokens, nil
}
