// Package summarizer turns a reconstructed call transcript into a
// structured summary (synopsis, action items, sentiment, objections)
// via an LLM, run once per call by the post-call worker.
package summarizer

import (
	"context"
	"encoding/json"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pkoukk/tiktoken-go"

	"github.com/sentinel-voice/core/internal/apperr"
)

// MinTranscriptLength below which summarization is skipped as
// uninformative (a handshake-only or immediately-dropped call).
const MinTranscriptLength = 50

// MaxPromptTokens bounds how much transcript text is sent to the model;
// transcripts longer than this lose their oldest tokens, keeping the
// most recent (and usually most decision-relevant) part of the call.
const MaxPromptTokens = 6000

// Sentiment label values the model is asked to emit.
const (
	SentimentPositive = "Positive"
	SentimentNeutral  = "Neutral"
	SentimentNegative = "Negative"
)

// Summary is the structured result of summarizing a call.
type Summary struct {
	Summary        string   `json:"summary"`
	ActionItems    []string `json:"action_items"`
	Sentiment      string   `json:"sentiment"`
	Objections     []string `json:"objections"`
	DealRiskScore  int      `json:"deal_risk_score"`
}

// SentimentScore maps the categorical sentiment label to the numeric
// score persisted on Call.SentimentScore.
func (s Summary) SentimentScore() float64 {
	switch s.Sentiment {
	case SentimentPositive:
		return 1.0
	case SentimentNegative:
		return 0.0
	default:
		return 0.5
	}
}

const systemPrompt = "You are a helpful AI assistant that outputs JSON."

// Engine calls the configured LLM to produce call summaries.
type Engine struct {
	client oai.Client
	model  string
	tk     *tiktoken.Tiktoken
}

// New builds an Engine. If tiktoken does not recognize the model, token
// budgeting falls back to the cl100k_base encoding; New fails only when
// that encoding cannot be loaded either.
func New(apiKey, model string) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, apperr.Config("summarizer.new", err)
		}
	}
	client := oai.NewClient(option.WithAPIKey(apiKey))
	return &Engine{client: client, model: model, tk: enc}, nil
}

// Summarize renders the prompt for transcript and returns the parsed
// structured summary. A transcript shorter than MinTranscriptLength
// returns a zero Summary with no error: there is nothing to summarize.
func (e *Engine) Summarize(ctx context.Context, transcript string) (Summary, error) {
	if len(transcript) < MinTranscriptLength {
		return Summary{}, nil
	}

	bounded := e.boundToTokenBudget(transcript)
	prompt := RenderSummaryPrompt(bounded)

	resp, err := e.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: oai.ChatModel(e.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage(prompt),
		},
		ResponseFormat: oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &oai.ResponseFormatJSONObjectParam{},
		},
		Temperature: oai.Float(0.3),
	})
	if err != nil {
		return Summary{}, apperr.Transient("summarizer.chat_completion", err)
	}
	if len(resp.Choices) == 0 {
		return Summary{}, apperr.Permanent("summarizer.empty_choices", fmt.Errorf("no choices returned"))
	}

	var out Summary
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return Summary{}, apperr.Permanent("summarizer.parse_json", err)
	}
	return out, nil
}

// boundToTokenBudget trims transcript from the front until it fits
// MaxPromptTokens, preserving the call's most recent exchanges.
func (e *Engine) boundToTokenBudget(transcript string) string {
	tokens := e.tk.Encode(transcript, nil, nil)
	if len(tokens) <= MaxPromptTokens {
		return transcript
	}
	tail := tokens[len(tokens)-MaxPromptTokens:]
	return e.tk.Decode(tail)
}
