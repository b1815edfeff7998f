package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/prismsocial/prism-server/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second
	maxPages       = 100
)

// Client talks to the storage provider's listing API. Listings are
// cached briefly so a manual force-sync right after a scheduled run
// does not hammer the provider.
type Client struct {
	client    *http.Client
	cache     *cache.Cache
	userAgent string
}

func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := http.Client{
		Timeout: timeout,
	}

	c := &Client{
		client:    &httpClient,
		cache:     cache.New(15*time.Second, time.Minute),
		userAgent: "prism-server/1.0",
	}
	httpClient.Transport = c
	return c
}

func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	return http.DefaultTransport.RoundTrip(req)
}

type listingPage struct {
	Items    []domain.ProviderItem `json:"items"`
	NextPage int                   `json:"nextPage"`
}

// ListLibraryItems fetches the complete current listing of one
// provider library, following pagination until exhausted.
func (c *Client) ListLibraryItems(ctx context.Context, lib domain.MediaLibrary) ([]domain.ProviderItem, error) {

	cacheKey := "listing:" + lib.ID
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.([]domain.ProviderItem), nil
	}

	var items []domain.ProviderItem
	page := 1
	for {
		url := fmt.Sprintf("%s/v1/libraries/%s/items?page=%d&pageSize=%d",
			lib.Endpoint, lib.ID, page, lib.PageSize)

		var result listingPage
		if err := c.httpGet(ctx, url, lib.APIKey, &result); err != nil {
			return nil, err
		}

		items = append(items, result.Items...)

		if result.NextPage == 0 || result.NextPage <= page {
			break
		}
		page = result.NextPage
		if page > maxPages {
			return nil, fmt.Errorf("library %s listing exceeds %d pages", lib.ID, maxPages)
		}
	}

	c.cache.Set(cacheKey, items, cache.DefaultExpiration)

	return items, nil
}

func (c *Client) httpGet(ctx context.Context, url, apiKey string, response any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	err = json.NewDecoder(resp.Body).Decode(response)
	if err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}

	return nil
}
