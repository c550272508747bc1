// Package embedding produces vector representations of transcript text
// for the hint router's semantic matching path.
package embedding

import "context"

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
