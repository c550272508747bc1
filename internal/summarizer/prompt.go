package summarizer

import (
	"fmt"

	"github.com/flosch/pongo2/v6"
)

var summaryTemplate = pongo2.Must(pongo2.FromString(`
You are analyzing a sales call transcript. Read the transcript below and
produce a JSON object with exactly these keys: "summary" (a 2-3 sentence
synopsis), "action_items" (a list of concrete follow-ups), "sentiment"
(one of "Positive", "Neutral", "Negative"), "objections" (a list of
customer objections raised), and "deal_risk_score" (an integer 0-10,
where 10 is highest risk of the deal stalling).

Transcript:
{{ transcript }}
`))

// RenderSummaryPrompt fills the summarization template with transcript.
func RenderSummaryPrompt(transcript string) string {
	out, err := summaryTemplate.Execute(pongo2.Context{"transcript": transcript})
	if err != nil {
		// The template is a compile-time constant; a render failure here
		// means pongo2 itself is broken, not a bad transcript.
		return fmt.Sprintf("Summarize this sales call transcript as JSON:\n%s", transcript)
	}
	return out
}
