package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
)

// HTTPExtractor posts documents to an extraction service
type HTTPExtractor struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPExtractor creates an extractor for endpoint. apiKey may be empty.
func NewHTTPExtractor(endpoint, apiKey string) *HTTPExtractor {
	return &HTTPExtractor{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

type extractResponse struct {
	Properties []domain.PropertyRecord `json:"properties"`
	Error      string                  `json:"error,omitempty"`
}

// Extract sends doc and decodes the records in the response
func (h *HTTPExtractor) Extract(ctx context.Context, doc []byte) ([]domain.PropertyRecord, error) {
	if h.endpoint == "" {
		return nil, fmt.Errorf("extraction endpoint not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(doc))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", http.DetectContentType(doc))
	req.Header.Set("Accept", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading extraction response: %w", err)
	}

	var out extractResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(body, &out) == nil && out.Error != "" {
			return nil, fmt.Errorf("extraction service returned %d: %s", resp.StatusCode, out.Error)
		}
		return nil, fmt.Errorf("extraction service returned %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding extraction response: %w", err)
	}
	return out.Properties, nil
}
