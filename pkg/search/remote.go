package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteProvider talks to an external search service over HTTP.
type RemoteProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

var _ Provider = &RemoteProvider{}

func NewRemoteProvider(baseURL, apiKey string) *RemoteProvider {
	return &RemoteProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type remoteSearchRequest struct {
	Query        string   `json:"query"`
	Top          int      `json:"top"`
	Filter       string   `json:"filter,omitempty"`
	SelectFields []string `json:"select_fields,omitempty"`
}

type remoteSearchResult struct {
	Id      string                 `json:"id"`
	Content string                 `json:"content"`
	Plan    string                 `json:"plan_name"`
	Score   float64                `json:"score"`
	Fields  map[string]interface{} `json:"fields"`
}

type remoteSearchResponse struct {
	Results []remoteSearchResult `json:"results"`
}

func (p *RemoteProvider) Retrieve(ctx context.Context, query Query) ([]Result, error) {
	reqBody := remoteSearchRequest{
		Query:        query.Text,
		Top:          query.Top,
		Filter:       query.Filter,
		SelectFields: query.SelectFields,
	}

	payloadBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	url := p.BaseURL + "/search"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search error: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var searchResp remoteSearchResponse
	if err := json.Unmarshal(bodyBytes, &searchResp); err != nil {
		return nil, fmt.Errorf("unmarshal search response: %w", err)
	}

	// Empty match set is a valid answer, not a failure
	results := make([]Result, 0, len(searchResp.Results))
	for _, r := range searchResp.Results {
		results = append(results, Result{
			Document: r.Id,
			Content:  r.Content,
			Plan:     r.Plan,
			Score:    r.Score,
			Fields:   r.Fields,
		})
	}

	return results, nil
}
