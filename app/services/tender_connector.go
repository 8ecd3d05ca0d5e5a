// Package services provides external service integrations and technical concerns like connectors and notifications
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tenderwatch/tenderwatch/app/dto"
	"github.com/tenderwatch/tenderwatch/config"
)

// TenderConnector talks to an external tender source API. It owns all network
// access; the ingestion flow never issues requests itself.
type TenderConnector interface {
	FetchTenderList(ctx context.Context) ([]dto.TenderSummary, error)
	FetchTenderDetail(ctx context.Context, tenderID string) (map[string]any, error)
}

// HTTPTenderConnector implements TenderConnector against a JSON-over-HTTP
// tender source.
type HTTPTenderConnector struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPTenderConnector creates a connector for the configured source API
func NewHTTPTenderConnector(cfg config.ConnectorConfig) TenderConnector {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTenderConnector{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPTenderConnector) FetchTenderList(ctx context.Context) ([]dto.TenderSummary, error) {
	body, err := c.get(ctx, "/tenders", nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Items []dto.TenderSummary `json:"items"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode tender list: %w", err)
	}
	return out.Items, nil
}

func (c *HTTPTenderConnector) FetchTenderDetail(ctx context.Context, tenderID string) (map[string]any, error) {
	body, err := c.get(ctx, "/tenders/"+url.PathEscape(tenderID), nil)
	if err != nil {
		return nil, err
	}

	var detail map[string]any
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("failed to decode tender detail %s: %w", tenderID, err)
	}
	return detail, nil
}

func (c *HTTPTenderConnector) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tender source request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tender source response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tender source returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// MockTenderConnector is an in-memory connector for local runs and tests.
// Details are served from the Details map; ids listed in FailIDs return an
// error FailuresPerID times before succeeding.
type MockTenderConnector struct {
	mu       sync.Mutex
	Summaries []dto.TenderSummary
	Details   map[string]map[string]any
	FailIDs   map[string]int
	fetches   map[string]int
}

// NewMockTenderConnector creates an empty mock connector
func NewMockTenderConnector() *MockTenderConnector {
	return &MockTenderConnector{
		Details: make(map[string]map[string]any),
		FailIDs: make(map[string]int),
		fetches: make(map[string]int),
	}
}

func (c *MockTenderConnector) FetchTenderList(_ context.Context) ([]dto.TenderSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]dto.TenderSummary, len(c.Summaries))
	copy(out, c.Summaries)
	return out, nil
}

func (c *MockTenderConnector) FetchTenderDetail(_ context.Context, tenderID string) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fetches[tenderID]++
	if remaining, ok := c.FailIDs[tenderID]; ok && remaining > 0 {
		c.FailIDs[tenderID] = remaining - 1
		return nil, fmt.Errorf("simulated fetch failure for %s", tenderID)
	}

	detail, ok := c.Details[tenderID]
	if !ok {
		return nil, fmt.Errorf("tender %s not found at source", tenderID)
	}
	return detail, nil
}

// FetchCount reports how many detail fetches were attempted for a tender id
func (c *MockTenderConnector) FetchCount(tenderID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches[tenderID]
}
