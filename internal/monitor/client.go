package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/filingqa/internal/qa"
)

// StatsClient reads the stats endpoint of a running filingqa server.
type StatsClient struct {
	baseURL string
	client  *http.Client
}

// NewStatsClient creates a client for the server at baseURL.
func NewStatsClient(baseURL string) *StatsClient {
	return &StatsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

// Stats fetches the current query and index statistics.
func (c *StatsClient) Stats(ctx context.Context) (qa.StatsSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/stats", nil)
	if err != nil {
		return qa.StatsSnapshot{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return qa.StatsSnapshot{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return qa.StatsSnapshot{}, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var snap qa.StatsSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return qa.StatsSnapshot{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return snap, nil
}
