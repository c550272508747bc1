package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDeepgramTranscribeEmptyAudioIsNoOp(t *testing.T) {
	c := NewDeepgramClient("key", "")
	res, err := c.Transcribe(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "" {
		t.Errorf("Text = %q, want empty for a silent segment", res.Text)
	}
}

func TestDeepgramTranscribeParsesTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"hello world"}]}]}}`))
	}))
	defer srv.Close()

	c := NewDeepgramClient("key", "nova-2")
	c.client.SetBaseURL(srv.URL)

	res, err := c.Transcribe(context.Background(), Request{Audio: []byte{1, 2, 3}, SampleRateHz: 16000})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello world" {
		t.Errorf("Text = %q, want %q", res.Text, "hello world")
	}
}

func TestDeepgramTranscribeEmptyAlternativesReturnsEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":{"channels":[]}}`))
	}))
	defer srv.Close()

	c := NewDeepgramClient("key", "nova-2")
	c.client.SetBaseURL(srv.URL)

	res, err := c.Transcribe(context.Background(), Request{Audio: []byte{1, 2, 3}, SampleRateHz: 16000})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "" {
		t.Errorf("Text = %q, want empty when no alternatives are returned", res.Text)
	}
}

func TestDeepgramTranscribeSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewDeepgramClient("key", "nova-2")
	c.client.SetBaseURL(srv.URL)

	if _, err := c.Transcribe(context.Background(), Request{Audio: []byte{1, 2, 3}, SampleRateHz: 16000}); err == nil {
		t.Error("expected Transcribe to surface a 401 response as an error")
	}
}

func TestNewDeepgramClientDefaultsModel(t *testing.T) {
	c := NewDeepgramClient("key", "")
	if c.model != "nova-2" {
		t.Errorf("model = %q, want default %q", c.model, "nova-2")
	}
}
