// Package hintrouter decides when a transcript segment should trigger a
// coaching overlay: a fast keyword-regex path checked on every segment,
// and a slower semantic path (embedding + vector similarity) for
// paraphrases the keyword rules miss. Both paths share a per-title
// cooldown so the same prompt cannot re-fire within a short window.
package hintrouter

import (
	"context"
	"sync"
	"time"

	"github.com/sentinel-voice/core/internal/embedding"
	"github.com/sentinel-voice/core/internal/events"
	"github.com/sentinel-voice/core/internal/logging"
	"github.com/sentinel-voice/core/internal/vectorstore"
)

// DefaultCooldown is how long a given rule title is suppressed after it
// fires, matching the reference NLP router's 10-second window.
const DefaultCooldown = 10 * time.Second

// SemanticThreshold is the maximum cosine distance (1 - cosine
// similarity) for a vector match to count as a hit.
const SemanticThreshold = 0.35

// Router evaluates transcript segments against keyword rules first and,
// when enabled, a semantic fallback.
type Router struct {
	rules    []*Rule
	cooldown time.Duration

	embedder embedding.Embedder
	vectors  vectorstore.Store
	log      logging.Logger

	mu        sync.Mutex
	lastFired map[string]time.Time
}

// Option configures optional semantic matching. Router works fine with
// zero Options: keyword-only routing never needs an embedder.
type Option func(*Router)

// WithSemanticMatch enables the slow path, backed by embedder and
// vectors.
func WithSemanticMatch(embedder embedding.Embedder, vectors vectorstore.Store) Option {
	return func(r *Router) {
		r.embedder = embedder
		r.vectors = vectors
	}
}

// New builds a Router over rules exactly as given; a nil slice means no
// keyword rules, leaving only the semantic path when it is enabled. Pass
// DefaultRules() for the built-in keyword set.
func New(rules []*Rule, log logging.Logger, opts ...Option) *Router {
	r := &Router{
		rules:     rules,
		cooldown:  DefaultCooldown,
		log:       log,
		lastFired: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process evaluates text and returns the overlay trigger to publish, or
// nil if nothing fired or every candidate is on cooldown.
func (r *Router) Process(ctx context.Context, text string) *events.OverlayTrigger {
	for _, rule := range r.rules {
		if !rule.matches(text) {
			continue
		}
		if !r.tryFire(rule.Title) {
			continue
		}
		trigger := events.NewOverlayTrigger(rule.Content)
		return &trigger
	}

	if r.embedder == nil || r.vectors == nil {
		return nil
	}
	return r.processSemantic(ctx, text)
}

func (r *Router) processSemantic(ctx context.Context, text string) *events.OverlayTrigger {
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		if r.log != nil {
			r.log.Warn("hintrouter: embedding failed", "error", err)
		}
		return nil
	}

	match, distance, err := r.vectors.Nearest(ctx, vec)
	if err != nil {
		if r.log != nil {
			r.log.Warn("hintrouter: vector search failed", "error", err)
		}
		return nil
	}
	if match == nil || distance > SemanticThreshold {
		return nil
	}
	if !r.tryFire(match.Title) {
		return nil
	}
	trigger := events.NewOverlayTrigger(match.Content)
	return &trigger
}

// tryFire reports whether title is off cooldown, and if so marks it as
// fired now. It is the single point of cooldown mutation so the
// keyword and semantic paths share one suppression clock per title.
func (r *Router) tryFire(title string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if last, ok := r.lastFired[title]; ok && now.Sub(last) < r.cooldown {
		return false
	}
	r.lastFired[title] = now
	return true
}
