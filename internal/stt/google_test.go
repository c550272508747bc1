package stt

import (
	"context"
	"testing"
)

func TestGoogleTranscribeEmptyAudioIsNoOp(t *testing.T) {
	c := NewGoogleClient(nil)
	res, err := c.Transcribe(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "" {
		t.Errorf("Text = %q, want empty for a silent segment", res.Text)
	}
}
