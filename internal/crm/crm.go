// Package crm pushes post-call summaries into the customer's CRM as a
// completed activity linked to the customer's Contact or Lead record.
package crm

import (
	"context"

	"github.com/sentinel-voice/core/internal/summarizer"
)

// ActivityInput is everything needed to log one call's summary.
type ActivityInput struct {
	CustomerEmail string
	Summary       summarizer.Summary
}

// Adapter logs a completed call as a CRM activity, returning the ID of
// the record it was linked against. ErrCustomerNotFound is returned (not
// wrapped as fatal) when no Contact or Lead matches: the post-call
// worker treats this as a "crm_failed" transition, not a crash.
type Adapter interface {
	LogCallActivity(ctx context.Context, in ActivityInput) (recordID string, err error)
}
