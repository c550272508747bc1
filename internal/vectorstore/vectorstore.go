// Package vectorstore provides nearest-neighbour lookups for the hint
// router's semantic matching path. The implementation talks to Qdrant
// over its REST API via go-resty, since no Go client for Qdrant is
// available in this module's dependency set.
package vectorstore

import (
	"context"

	"github.com/sentinel-voice/core/internal/events"
)

// Match is a candidate rule returned by a nearest-neighbour search.
type Match struct {
	Title   string
	Content events.OverlayContent
}

// Store looks up the nearest indexed rule vector to a query embedding.
type Store interface {
	// Nearest returns the closest indexed point and its cosine distance
	// (1 - cosine similarity; 0 is identical). A nil Match with nil error
	// means the collection is empty.
	Nearest(ctx context.Context, query []float32) (*Match, float64, error)
}
