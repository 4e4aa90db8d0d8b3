// Package attestation implements the attestation HTTP client and the
// Attestation Poller (spec.md §4.5, §6): the long-running loop that
// queries the attestation authority for each pending transfer's message
// hash and hands completed attestations to the Dispatcher.
package attestation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Response is the attestation endpoint's JSON shape, per spec.md §6.
type Response struct {
	Status      string `json:"status"`
	Attestation string `json:"attestation,omitempty"`
}

// Complete reports whether the response represents a usable attestation:
// status == "complete" and a non-empty attestation, per spec.md §4.5/§6.
func (r Response) Complete() bool {
	return r.Status == "complete" && r.Attestation != ""
}

// Client queries the attestation authority. All non-"complete" outcomes,
// including HTTP errors, are treated identically by the Poller (spec.md
// §6 "All other responses, including HTTP errors, are treated as not
// yet ready").
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a Client with a connection-pool-bounded transport,
// per spec.md §5 "HTTP connections to the attestation endpoint ... are
// pooled per host; connection counts are bounded".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Get queries {base}/{message_hash_hex}, per spec.md §6.
func (c *Client) Get(ctx context.Context, messageHash common.Hash) (Response, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, messageHash.Hex())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, errors.Wrap(err, "build attestation request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, errors.Wrap(err, "attestation request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Response{}, errors.Errorf("attestation endpoint returned status %d", resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, errors.Wrap(err, "decode attestation response")
	}
	return out, nil
}
