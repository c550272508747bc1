package stt

import (
	"context"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/sentinel-voice/core/internal/apperr"
)

// GoogleClient is the alternate STT vendor adapter. Nothing in this
// package chooses between vendors; the caller picks which Client to use.
type GoogleClient struct {
	client *speech.Client
}

// NewGoogleClient wraps an already-constructed Cloud Speech client.
// Credentials are resolved the standard Google way (ADC / explicit
// option.WithCredentialsFile at call-site construction), so this
// package takes no API key directly.
func NewGoogleClient(client *speech.Client) *GoogleClient {
	return &GoogleClient{client: client}
}

// Transcribe implements Client.
func (c *GoogleClient) Transcribe(ctx context.Context, req Request) (Result, error) {
	if len(req.Audio) == 0 {
		return Result{}, nil
	}

	resp, err := c.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(req.SampleRateHz),
			LanguageCode:    "en-US",
			Model:           "phone_call",
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: req.Audio},
		},
	})
	if err != nil {
		return Result{}, apperr.Transient("stt.google.transcribe", err)
	}

	var b strings.Builder
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(result.Alternatives[0].Transcript)
	}
	return Result{Text: b.String()}, nil
}
