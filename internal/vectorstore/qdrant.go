package vectorstore

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/sentinel-voice/core/internal/apperr"
	"github.com/sentinel-voice/core/internal/events"
)

// collectionConfig is the body posted to PUT /collections/{name} when
// bootstrapping the rules collection. HNSW and scalar quantization
// parameters match the tuning used for small (<10k point) rule sets:
// fast build, negligible recall loss at int8 precision.
type collectionConfig struct {
	Vectors struct {
		Size     int    `json:"size"`
		Distance string `json:"distance"`
	} `json:"vectors"`
	HNSWConfig struct {
		M             int `json:"m"`
		EfConstruct   int `json:"ef_construct"`
	} `json:"hnsw_config"`
	QuantizationConfig struct {
		Scalar struct {
			Type     string  `json:"type"`
			Quantile float64 `json:"quantile"`
			AlwaysRAM bool   `json:"always_ram"`
		} `json:"scalar"`
	} `json:"quantization_config"`
}

type pointPayload struct {
	Title       string   `json:"title"`
	Message     string   `json:"message"`
	ActionItems []string `json:"action_items,omitempty"`
	Sentiment   string   `json:"sentiment,omitempty"`
	ColorHex    string   `json:"color_hex"`
}

type upsertPoint struct {
	ID      interface{}  `json:"id"`
	Vector  []float32    `json:"vector"`
	Payload pointPayload `json:"payload"`
}

type upsertRequest struct {
	Points []upsertPoint `json:"points"`
}

type searchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type scoredPoint struct {
	Score   float64      `json:"score"`
	Payload pointPayload `json:"payload"`
}

type searchResponse struct {
	Result []scoredPoint `json:"result"`
}

// QdrantStore is the production Store backed by a Qdrant REST endpoint.
type QdrantStore struct {
	client     *resty.Client
	collection string
}

// NewQdrantStore builds a client against baseURL (e.g.
// "http://qdrant:6333") for the given collection name.
func NewQdrantStore(baseURL, collection string) *QdrantStore {
	client := resty.New().SetBaseURL(baseURL)
	return &QdrantStore{client: client, collection: collection}
}

// EnsureCollection creates the rules collection if absent, sized for
// vectorSize-dimensional cosine-distance vectors.
func (s *QdrantStore) EnsureCollection(ctx context.Context, vectorSize int) error {
	body := collectionConfig{}
	body.Vectors.Size = vectorSize
	body.Vectors.Distance = "Cosine"
	body.HNSWConfig.M = 16
	body.HNSWConfig.EfConstruct = 100
	body.QuantizationConfig.Scalar.Type = "int8"
	body.QuantizationConfig.Scalar.Quantile = 0.99
	body.QuantizationConfig.Scalar.AlwaysRAM = true

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(body).
		Put("/collections/" + s.collection)
	if err != nil {
		return apperr.Transient("vectorstore.ensure_collection", err)
	}
	if resp.IsError() {
		return apperr.Transient("vectorstore.ensure_collection", fmt.Errorf("qdrant: %s", resp.Status()))
	}
	return nil
}

// Upsert indexes a rule's vector with its overlay content as payload.
func (s *QdrantStore) Upsert(ctx context.Context, id string, vector []float32, content events.OverlayContent) error {
	req := upsertRequest{Points: []upsertPoint{{
		ID:     id,
		Vector: vector,
		Payload: pointPayload{
			Title:       content.Title,
			Message:     content.Message,
			ActionItems: content.ActionItems,
			Sentiment:   content.Sentiment,
			ColorHex:    content.ColorHex,
		},
	}}}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		Put("/collections/" + s.collection + "/points")
	if err != nil {
		return apperr.Transient("vectorstore.upsert", err)
	}
	if resp.IsError() {
		return apperr.Transient("vectorstore.upsert", fmt.Errorf("qdrant: %s", resp.Status()))
	}
	return nil
}

// Nearest implements Store.
func (s *QdrantStore) Nearest(ctx context.Context, query []float32) (*Match, float64, error) {
	var out searchResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(searchRequest{Vector: query, Limit: 1, WithPayload: true}).
		SetResult(&out).
		Post("/collections/" + s.collection + "/points/search")
	if err != nil {
		return nil, 0, apperr.Transient("vectorstore.search", err)
	}
	if resp.IsError() {
		return nil, 0, apperr.Transient("vectorstore.search", fmt.Errorf("qdrant: %s", resp.Status()))
	}
	if len(out.Result) == 0 {
		return nil, 0, nil
	}

	top := out.Result[0]
	return &Match{
		Title: top.Payload.Title,
		Content: events.OverlayContent{
			Title:       top.Payload.Title,
			Message:     top.Payload.Message,
			ActionItems: top.Payload.ActionItems,
			Sentiment:   top.Payload.Sentiment,
			ColorHex:    top.Payload.ColorHex,
		},
	}, 1 - top.Score, nil
}
