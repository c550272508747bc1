package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	opensearch "github.com/opensearch-project/opensearch-go/v2"

	"github.com/sentinel-voice/core/internal/apperr"
)

// OpenSearchMirror indexes audit events into an OpenSearch index for
// operator search and dashboards.
type OpenSearchMirror struct {
	client *opensearch.Client
	index  string
}

// NewOpenSearchMirror builds a mirror against the given index name.
func NewOpenSearchMirror(client *opensearch.Client, index string) *OpenSearchMirror {
	return &OpenSearchMirror{client: client, index: index}
}

// Index implements Mirror.
func (m *OpenSearchMirror) Index(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return apperr.Schema("audit.opensearch.marshal", err)
	}

	req := opensearch.IndexRequest{
		Index:      m.index,
		DocumentID: event.ID,
		Body:       bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, m.client)
	if err != nil {
		return apperr.Transient("audit.opensearch.index", err)
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return apperr.Transient("audit.opensearch.index", fmt.Errorf("opensearch: %s", resp.Status()))
	}
	return nil
}
