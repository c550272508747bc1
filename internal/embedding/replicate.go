package embedding

import (
	"context"
	"fmt"

	"github.com/replicate/replicate-go"

	"github.com/sentinel-voice/core/internal/apperr"
)

// ReplicateEmbedder calls a hosted sentence-embedding model on Replicate.
type ReplicateEmbedder struct {
	client *replicate.Client
	model  string
}

// NewReplicateEmbedder builds an embedder that calls the given model
// version (owner/name:version) with an API token.
func NewReplicateEmbedder(apiToken, model string) (*ReplicateEmbedder, error) {
	client, err := replicate.NewClient(replicate.WithToken(apiToken))
	if err != nil {
		return nil, apperr.Config("embedding.new_replicate_client", err)
	}
	return &ReplicateEmbedder{client: client, model: model}, nil
}

// Embed runs the configured model against text and decodes its output as
// a flat float vector.
func (e *ReplicateEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	input := replicate.PredictionInput{"text": text}
	output, err := e.client.Run(ctx, e.model, input, nil)
	if err != nil {
		return nil, apperr.Transient("embedding.run", err)
	}

	vec, err := decodeVector(output)
	if err != nil {
		return nil, apperr.Permanent("embedding.decode", err)
	}
	return vec, nil
}

func decodeVector(output replicate.PredictionOutput) ([]float32, error) {
	raw, ok := output.([]interface{})
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("embedding: unexpected output shape %T", output)
	}

	// Some embedding models return [][]float64 (one vector per input
	// item); we always send a single item, so unwrap one level if needed.
	if nested, ok := raw[0].([]interface{}); ok {
		raw = nested
	}

	vec := make([]float32, len(raw))
	for i, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("embedding: element %d is %T, not float64", i, v)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}
