package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ms-boxoffice/internal/models"
)

// Client looks up show instances in the catalog service. The catalog owns
// event metadata and seat pricing tiers; this service only reads them.
type Client struct {
	BaseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type showResponse struct {
	ShowInstanceID string             `json:"show_instance_id"`
	Venue          string             `json:"venue"`
	TotalSeats     int                `json:"total_seats"`
	SeatPrices     map[string]float64 `json:"seat_prices"`
}

// GetShow resolves an (event, show date) pair to a show instance. A 404
// from the catalog maps to ErrNotFound.
func (c *Client) GetShow(ctx context.Context, event models.EventRef, showDate time.Time) (*models.ShowInstance, error) {
	endpoint := fmt.Sprintf("%s/api/events/%s/%s/shows?date=%s",
		c.BaseURL, event.Kind, url.PathEscape(event.ID), url.QueryEscape(showDate.UTC().Format(time.RFC3339)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog service error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, models.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog lookup failed: status %d", resp.StatusCode)
	}

	var body showResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}

	return &models.ShowInstance{
		ID:         body.ShowInstanceID,
		Event:      event,
		ShowDate:   showDate,
		Venue:      body.Venue,
		TotalSeats: body.TotalSeats,
		SeatPrices: body.SeatPrices,
	}, nil
}
