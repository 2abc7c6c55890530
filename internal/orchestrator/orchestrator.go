// Package orchestrator answers chat, summary and search-suggestion requests
// by combining the response cache, the query classifier and the provider
// registry. Provider failures never reach the caller of GetResponse: they
// turn into a fallback call and, as a last resort, a fixed apology.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/aether/internal/cache"
	"github.com/kalambet/aether/internal/metrics"
	"github.com/kalambet/aether/internal/prompt"
	"github.com/kalambet/aether/internal/provider"
	"github.com/kalambet/aether/internal/query"
	"github.com/kalambet/aether/internal/web"
)

const (
	DefaultCallTimeout = 30 * time.Second

	responseTTL   = 5 * time.Minute
	suggestionTTL = time.Hour
	pageTTL       = time.Hour
)

// Apology is returned when both the selected and the default provider fail.
const Apology = "I'm sorry, I couldn't generate a response right now. Please try again in a moment."

var errEmptyResponse = errors.New("empty response")

// PageFetcher downloads a page and extracts its text.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (web.Page, error)
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Cache    cache.Store
	Registry *provider.Registry
	Fetcher  PageFetcher
	Logger   *slog.Logger
	// Now is used for latency measurement; defaults to time.Now.
	Now func() time.Time
	// CallTimeout bounds every provider call; defaults to DefaultCallTimeout.
	CallTimeout time.Duration
}

type Orchestrator struct {
	cache       cache.Store
	registry    *provider.Registry
	fetcher     PageFetcher
	logger      *slog.Logger
	now         func() time.Time
	callTimeout time.Duration
}

func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		cache:       d.Cache,
		registry:    d.Registry,
		fetcher:     d.Fetcher,
		logger:      d.Logger,
		now:         d.Now,
		callTimeout: d.CallTimeout,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "orchestrator")
	if o.now == nil {
		o.now = time.Now
	}
	if o.callTimeout <= 0 {
		o.callTimeout = DefaultCallTimeout
	}
	if o.cache == nil {
		o.cache = cache.NewMemoryStore(o.now)
	}
	if o.fetcher == nil {
		o.fetcher = web.NewFetcher()
	}
	return o
}

// Request is one chat turn.
type Request struct {
	Message string
	Context string
	History []provider.Message
}

// Response is the answer to a Request. Cached responses carry the query
// type recorded when they were first generated.
type Response struct {
	Text      string      `json:"response"`
	Provider  provider.ID `json:"provider"`
	Cached    bool        `json:"cached"`
	QueryType query.Type  `json:"query_type"`
}

type cachedResponse struct {
	Text      string      `json:"text"`
	Provider  provider.ID `json:"provider"`
	QueryType query.Type  `json:"query_type"`
}

// Fingerprint is the cache key of a chat request: the message, the page
// context and the content of the history turns the prompt would include.
func Fingerprint(req Request) string {
	parts := []string{req.Message, req.Context}
	for _, h := range prompt.RecentHistory(req.History) {
		parts = append(parts, h.Role, h.Content)
	}
	return cache.AIKey(parts...)
}

// GetResponse answers a chat request. It never fails: when every provider
// call fails the result is Apology attributed to the default provider.
func (o *Orchestrator) GetResponse(ctx context.Context, req Request) Response {
	key := Fingerprint(req)

	var hit cachedResponse
	if cache.GetJSON(ctx, o.cache, key, &hit) {
		metrics.CacheResult(cache.NamespaceAI, true)
		return Response{Text: hit.Text, Provider: hit.Provider, Cached: true, QueryType: hit.QueryType}
	}
	metrics.CacheResult(cache.NamespaceAI, false)

	lang := query.DetectLanguage(req.Message)
	qt := query.Classify(req.Message)
	selected := o.registry.Select(qt)
	metrics.ProviderSelections.WithLabelValues(string(selected), string(qt)).Inc()

	msgs := prompt.Build(prompt.Input{
		Message:   req.Message,
		Context:   req.Context,
		History:   req.History,
		Language:  lang,
		QueryType: qt,
	})
	o.logger.Debug("provider selected",
		"provider", selected, "query_type", qt, "language", lang,
		"messages", len(msgs), "est_tokens", prompt.EstimateTokens(msgs))

	text, used, err := o.generateWithFallback(ctx, selected, msgs, qt)
	if err != nil {
		metrics.Apologies.Inc()
		o.logger.Error("all providers failed", "provider", selected, "default", o.registry.Default(), "query_type", qt, "error", err)
		return Response{Text: Apology, Provider: o.registry.Default(), QueryType: qt}
	}

	cache.SetJSON(ctx, o.cache, key, cachedResponse{Text: text, Provider: used, QueryType: qt}, responseTTL)
	return Response{Text: text, Provider: used, QueryType: qt}
}

// generateWithFallback calls selected and, if that fails and selected is
// not the default provider, retries once against the default provider.
func (o *Orchestrator) generateWithFallback(ctx context.Context, selected provider.ID, msgs []provider.Message, qt query.Type) (string, provider.ID, error) {
	text, err := o.call(ctx, selected, msgs, qt)
	if err == nil {
		return text, selected, nil
	}

	def := o.registry.Default()
	if selected == def {
		return "", def, err
	}

	metrics.ProviderFallbacks.WithLabelValues(string(selected), string(def)).Inc()
	o.logger.Warn("provider failed, falling back", "provider", selected, "fallback", def, "query_type", qt, "error", err)

	text, ferr := o.call(ctx, def, msgs, qt)
	if ferr != nil {
		return "", def, fmt.Errorf("%w; fallback: %w", err, ferr)
	}
	return text, def, nil
}

// call runs one adapter call under the call timeout.
func (o *Orchestrator) call(ctx context.Context, id provider.ID, msgs []provider.Message, qt query.Type, opts ...provider.Option) (string, error) {
	adapter, err := o.registry.Adapter(id)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	start := o.now()
	text, err := adapter.Generate(ctx, msgs, qt, opts...)
	elapsed := o.now().Sub(start)
	metrics.ProviderLatency.WithLabelValues(string(id)).Observe(elapsed.Seconds())

	if err == nil && strings.TrimSpace(text) == "" {
		err = &provider.CallError{Provider: id, Err: errEmptyResponse}
	}
	var ce *provider.CallError
	if err != nil && !errors.As(err, &ce) {
		err = &provider.CallError{Provider: id, Err: err}
	}
	if err != nil {
		metrics.ProviderFailures.WithLabelValues(string(id)).Inc()
		o.logger.Warn("provider call failed", "provider", id, "query_type", qt, "duration_ms", elapsed.Milliseconds(), "error", err)
		return "", err
	}
	o.logger.Debug("provider call succeeded", "provider", id, "query_type", qt, "duration_ms", elapsed.Milliseconds())
	return text, nil
}
