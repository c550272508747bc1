package hintrouter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentinel-voice/core/internal/embedding"
	"github.com/sentinel-voice/core/internal/events"
	"github.com/sentinel-voice/core/internal/logging"
	"github.com/sentinel-voice/core/internal/vectorstore"
)

func TestProcessFiresOnKeywordMatch(t *testing.T) {
	r := New(DefaultRules(), logging.NewNop())

	trigger := r.Process(context.Background(), "honestly the price feels too expensive for us")
	if trigger == nil {
		t.Fatal("expected a trigger for a pricing-objection keyword")
	}
	if trigger.Content.Title != "Pricing Objection" {
		t.Errorf("Content.Title = %q, want Pricing Objection", trigger.Content.Title)
	}
}

func TestProcessNoMatchReturnsNil(t *testing.T) {
	r := New(DefaultRules(), logging.NewNop())
	if trigger := r.Process(context.Background(), "just chatting about the weather"); trigger != nil {
		t.Errorf("expected nil trigger for non-matching text, got %+v", trigger)
	}
}

func TestProcessRuleOrderIsMatchPriority(t *testing.T) {
	r := New(DefaultRules(), logging.NewNop())
	// Mentions both a pricing keyword and a competitor keyword; the
	// first declared rule (Pricing Objection) must win.
	trigger := r.Process(context.Background(), "the competitor has a lower price")
	if trigger == nil {
		t.Fatal("expected a trigger")
	}
	if trigger.Content.Title != "Pricing Objection" {
		t.Errorf("Content.Title = %q, want Pricing Objection (declaration order wins)", trigger.Content.Title)
	}
}

func TestProcessSuppressesRepeatWithinCooldown(t *testing.T) {
	r := New(DefaultRules(), logging.NewNop())

	first := r.Process(context.Background(), "what about the budget for this")
	if first == nil {
		t.Fatal("expected first call to fire")
	}
	second := r.Process(context.Background(), "the budget is still a concern")
	if second != nil {
		t.Error("expected the same rule to be suppressed within the cooldown window")
	}
}

func TestProcessFiresAgainAfterCooldownExpires(t *testing.T) {
	r := New(DefaultRules(), logging.NewNop())
	r.cooldown = 10 * time.Millisecond

	if trigger := r.Process(context.Background(), "the budget concerns us"); trigger == nil {
		t.Fatal("expected first call to fire")
	}
	time.Sleep(20 * time.Millisecond)
	if trigger := r.Process(context.Background(), "the budget concerns us"); trigger == nil {
		t.Error("expected trigger to fire again after cooldown elapsed")
	}
}

func TestProcessWithoutSemanticOptionSkipsSlowPath(t *testing.T) {
	r := New(DefaultRules(), logging.NewNop())
	if trigger := r.Process(context.Background(), "nothing keyword related here at all"); trigger != nil {
		t.Errorf("expected nil with no semantic option configured, got %+v", trigger)
	}
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vec, f.err
}

type fakeVectorStore struct {
	match    *vectorstore.Match
	distance float64
	err      error
}

func (f *fakeVectorStore) Nearest(_ context.Context, _ []float32) (*vectorstore.Match, float64, error) {
	return f.match, f.distance, f.err
}

var _ embedding.Embedder = (*fakeEmbedder)(nil)
var _ vectorstore.Store = (*fakeVectorStore)(nil)

func TestProcessSemanticFiresWithinThreshold(t *testing.T) {
	match := &vectorstore.Match{Title: "Semantic Hit", Content: events.OverlayContent{Title: "Semantic Hit", Message: "paraphrase detected"}}
	vectors := &fakeVectorStore{match: match, distance: SemanticThreshold - 0.01}
	r := New(nil, logging.NewNop(), WithSemanticMatch(&fakeEmbedder{vec: []float32{0.1, 0.2}}, vectors))

	trigger := r.Process(context.Background(), "a paraphrase with no keyword hits")
	if trigger == nil {
		t.Fatal("expected a semantic trigger within threshold")
	}
	if trigger.Content.Title != "Semantic Hit" {
		t.Errorf("Content.Title = %q, want Semantic Hit", trigger.Content.Title)
	}
}

func TestProcessSemanticSkipsBeyondThreshold(t *testing.T) {
	match := &vectorstore.Match{Title: "Too Far", Content: events.OverlayContent{Title: "Too Far"}}
	vectors := &fakeVectorStore{match: match, distance: SemanticThreshold + 0.01}
	r := New(nil, logging.NewNop(), WithSemanticMatch(&fakeEmbedder{vec: []float32{0.1}}, vectors))

	if trigger := r.Process(context.Background(), "text with no keyword hits"); trigger != nil {
		t.Errorf("expected nil beyond threshold, got %+v", trigger)
	}
}

func TestProcessSemanticHandlesEmbedFailureGracefully(t *testing.T) {
	vectors := &fakeVectorStore{}
	r := New(nil, logging.NewNop(), WithSemanticMatch(&fakeEmbedder{err: errors.New("embedder down")}, vectors))

	if trigger := r.Process(context.Background(), "text"); trigger != nil {
		t.Errorf("expected nil on embedder error, got %+v", trigger)
	}
}

func TestProcessSemanticSharesCooldownWithKeywordPath(t *testing.T) {
	match := &vectorstore.Match{Title: "Pricing Objection", Content: events.OverlayContent{Title: "Pricing Objection"}}
	vectors := &fakeVectorStore{match: match, distance: 0.1}
	r := New(DefaultRules(), logging.NewNop(), WithSemanticMatch(&fakeEmbedder{vec: []float32{0.1}}, vectors))

	if trigger := r.Process(context.Background(), "the price feels high"); trigger == nil {
		t.Fatal("expected keyword path to fire first")
	}
	// Semantic match resolves to the same title the keyword rule just
	// fired; the shared cooldown must suppress it.
	if trigger := r.Process(context.Background(), "nothing keyword-related"); trigger != nil {
		t.Error("expected semantic path to be suppressed by the shared cooldown on the same title")
	}
}
