package stt

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/sentinel-voice/core/internal/apperr"
)

type deepgramAlternative struct {
	Transcript string `json:"transcript"`
}

type deepgramChannel struct {
	Alternatives []deepgramAlternative `json:"alternatives"`
}

type deepgramResults struct {
	Channels []deepgramChannel `json:"channels"`
}

type deepgramResponse struct {
	Results deepgramResults `json:"results"`
}

// DeepgramClient transcribes segments via Deepgram's prerecorded REST
// endpoint. This is the primary STT vendor.
type DeepgramClient struct {
	client *resty.Client
	model  string
}

// NewDeepgramClient builds a client authenticated with apiKey.
func NewDeepgramClient(apiKey, model string) *DeepgramClient {
	client := resty.New().
		SetBaseURL("https://api.deepgram.com/v1").
		SetHeader("Authorization", "Token "+apiKey)
	if model == "" {
		model = "nova-2"
	}
	return &DeepgramClient{client: client, model: model}
}

// Transcribe implements Client.
func (c *DeepgramClient) Transcribe(ctx context.Context, req Request) (Result, error) {
	if len(req.Audio) == 0 {
		return Result{}, nil
	}

	var out deepgramResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "audio/raw").
		SetQueryParams(map[string]string{
			"model":       c.model,
			"encoding":    "linear16",
			"sample_rate": fmt.Sprintf("%d", req.SampleRateHz),
			"smart_format": "true",
			"punctuate":   "true",
		}).
		SetBody(req.Audio).
		SetResult(&out).
		Post("/listen")
	if err != nil {
		return Result{}, apperr.Transient("stt.deepgram.transcribe", err)
	}
	if resp.IsError() {
		kind := apperr.Transient
		if resp.StatusCode() >= 400 && resp.StatusCode() < 500 {
			kind = apperr.Permanent
		}
		return Result{}, kind("stt.deepgram.transcribe", fmt.Errorf("deepgram: %s", resp.Status()))
	}

	if len(out.Results.Channels) == 0 || len(out.Results.Channels[0].Alternatives) == 0 {
		return Result{}, nil
	}
	return Result{Text: out.Results.Channels[0].Alternatives[0].Transcript}, nil
}
