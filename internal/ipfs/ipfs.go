// Package ipfs fetches a registry blob published to IPFS, addressed by
// content hash (§4.I's setRegistryFromIpfs path).
package ipfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrDoesNotExist means the gateway reported the hash has no content
// (HTTP 404).
type ErrDoesNotExist struct {
	Hash string
}

func (e *ErrDoesNotExist) Error() string { return fmt.Sprintf("ipfs: %s does not exist", e.Hash) }

// ErrTransport wraps a failure to reach the gateway at all (DNS, dial,
// timeout, any status other than 404 or 200).
type ErrTransport struct {
	Hash string
	Err  error
}

func (e *ErrTransport) Error() string { return fmt.Sprintf("ipfs: fetch %s: %v", e.Hash, e.Err) }
func (e *ErrTransport) Unwrap() error { return e.Err }

// Fetcher retrieves the raw bytes stored under an IPFS content hash.
type Fetcher interface {
	Fetch(ctx context.Context, hash string) ([]byte, error)
}

// GatewayFetcher fetches through a public or self-hosted IPFS HTTP
// gateway (e.g. "https://ipfs.io/ipfs").
type GatewayFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewGatewayFetcher builds a fetcher against baseURL with a bounded
// request timeout.
func NewGatewayFetcher(baseURL string, timeout time.Duration) *GatewayFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GatewayFetcher{BaseURL: baseURL, Client: &http.Client{Timeout: timeout}}
}

func (f *GatewayFetcher) Fetch(ctx context.Context, hash string) ([]byte, error) {
	url := f.BaseURL + "/" + hash
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ErrTransport{Hash: hash, Err: err}
	}
	req.Header.Set("User-Agent", "bothand/1.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, &ErrTransport{Hash: hash, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &ErrDoesNotExist{Hash: hash}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ErrTransport{Hash: hash, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ErrTransport{Hash: hash, Err: err}
	}
	return body, nil
}
