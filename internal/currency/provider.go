package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Provider fetches a live rate for converting one unit of from into to.
type Provider interface {
	FetchRate(ctx context.Context, from, to string) (float64, error)
}

// HTTPProvider queries a Frankfurter-compatible endpoint:
// GET <url>?from=USD&to=EUR -> {"rates":{"EUR":0.92}}
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProvider{baseURL: baseURL, client: client}
}

type ratesResponse struct {
	Rates map[string]float64 `json:"rates"`
}

func (p *HTTPProvider) FetchRate(ctx context.Context, from, to string) (float64, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return 0, fmt.Errorf("parse rate provider url: %w", err)
	}
	q := u.Query()
	q.Set("from", from)
	q.Set("to", to)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("build rate request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch rate %s->%s: %w", from, to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch rate %s->%s: unexpected status %d", from, to, resp.StatusCode)
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode rate response: %w", err)
	}
	rate, ok := body.Rates[to]
	if !ok {
		return 0, fmt.Errorf("rate response missing %s", to)
	}
	if rate <= 0 {
		return 0, fmt.Errorf("rate response has non-positive rate %v for %s", rate, to)
	}
	return rate, nil
}
