// Package coingecko implements a pollworker.Source against CoinGecko's
// free simple-price REST endpoint.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bothan/internal/asset"
	"bothan/internal/decimal"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// Source fetches spot prices for a set of CoinGecko coin ids, each quoted
// in USD. A query id is the bare CoinGecko coin id ("bitcoin", "usd-coin").
type Source struct {
	baseURL string
	client  *http.Client
}

// New builds a Source. baseURL == "" uses the public API.
func New(baseURL string, timeout time.Duration) *Source {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Source{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

// Name identifies this source in the registry and store.
func (s *Source) Name() string { return "coingecko" }

// Fetch retrieves the current USD price for each query id.
func (s *Source) Fetch(ctx context.Context, queryIDs []string) ([]asset.Info, error) {
	if len(queryIDs) == 0 {
		return nil, nil
	}

	reqURL := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd",
		s.baseURL, url.QueryEscape(strings.Join(queryIDs, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "bothand/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coingecko: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("coingecko: status %s", resp.Status)
	}

	var result map[string]struct {
		USD json.Number `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("coingecko: decode: %w", err)
	}

	now := time.Now().Unix()
	infos := make([]asset.Info, 0, len(result))
	for id, quote := range result {
		price, err := decimal.NewFromString(quote.USD.String())
		if err != nil {
			return nil, fmt.Errorf("coingecko: parse price %q for %s: %w", quote.USD, id, err)
		}
		infos = append(infos, asset.Info{
			ID:        id,
			Price:     price,
			Timestamp: now,
		})
	}
	return infos, nil
}
