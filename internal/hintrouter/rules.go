package hintrouter

import (
	"regexp"
	"strings"

	"github.com/sentinel-voice/core/internal/events"
)

// Rule binds a set of trigger keywords to the overlay content shown when
// one of them appears in a transcript segment.
type Rule struct {
	Title    string
	Keywords []string
	Content  events.OverlayContent

	compiled *regexp.Regexp
}

// DefaultRules mirrors the sales-call playbook: pricing objections,
// competitor mentions, and closing signals. Rule order is declaration
// order and also match-priority order: the first rule whose keywords hit
// wins, even if a later rule would also match.
func DefaultRules() []*Rule {
	rules := []*Rule{
		{
			Title:    "Pricing Objection",
			Keywords: []string{"budget", "price", "expensive", "cost"},
			Content: events.OverlayContent{
				Title:    "Pricing Objection",
				Message:  "Focus on Value (ROI), not cost.",
				ColorHex: "#FFA500",
			},
		},
		{
			Title:    "Competitor Detected",
			Keywords: []string{"competitor", "other solution", "using jira"},
			Content: events.OverlayContent{
				Title:    "Competitor Detected",
				Message:  "We offer 24/7 support, they don't.",
				ColorHex: "#FF0000",
			},
		},
		{
			Title:    "Closing Signal",
			Keywords: []string{"timeline", "start date", "implementation"},
			Content: events.OverlayContent{
				Title:    "Closing Signal",
				Message:  "Propose a start date next week.",
				ColorHex: "#00FF00",
			},
		},
	}
	for _, r := range rules {
		r.compile()
	}
	return rules
}

func (r *Rule) compile() {
	escaped := make([]string, len(r.Keywords))
	for i, k := range r.Keywords {
		escaped[i] = regexp.QuoteMeta(k)
	}
	pattern := `\b(` + strings.Join(escaped, "|") + `)\b`
	r.compiled = regexp.MustCompile(`(?i)` + pattern)
}

func (r *Rule) matches(text string) bool {
	return r.compiled.MatchString(text)
}
