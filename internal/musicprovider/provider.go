// ABOUTME: Thin net/http JSON adapter for the external music search/stream provider
// ABOUTME: No pack repo imports a dedicated HTTP client library for this role, so net/http is idiomatic here too
package musicprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Track is one search result or stream resolution from the provider.
type Track struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	StreamURL string `json:"streamUrl,omitempty"`
}

// Client talks to the provider named by PROVIDER_URL. Out of scope: audio
// byte streaming — STREAM_MUSIC resolves to a playable URL, never bytes.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a Client. An empty baseURL means the adapter is disabled;
// callers should check Enabled() before issuing requests.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Enabled reports whether PROVIDER_URL was configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// Search issues SEARCH_MUSIC{query} against the provider.
func (c *Client) Search(ctx context.Context, query string) ([]Track, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("music provider not configured")
	}
	u := fmt.Sprintf("%s/search?q=%s", c.baseURL, url.QueryEscape(query))
	var tracks []Track
	if err := c.getJSON(ctx, u, &tracks); err != nil {
		return nil, err
	}
	return tracks, nil
}

// Stream resolves STREAM_MUSIC{id} to a playable track.
func (c *Client) Stream(ctx context.Context, id string) (Track, error) {
	if !c.Enabled() {
		return Track{}, fmt.Errorf("music provider not configured")
	}
	u := fmt.Sprintf("%s/stream/%s", c.baseURL, url.PathEscape(id))
	var track Track
	if err := c.getJSON(ctx, u, &track); err != nil {
		return Track{}, err
	}
	return track, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
