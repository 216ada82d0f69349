// Package namingapi implements the outbound Naming API Client external
// interface (spec §6): submitting a parent domain's zone-file update.
package namingapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultTimeout is used when the caller does not configure one. Spec
// §5 requires a configured timeout but does not mandate a value.
const DefaultTimeout = 30 * time.Second

// Response is the outcome of one zone-file submission attempt.
type Response struct {
	StatusCode      int
	TransactionHash string // set when the body parsed and carried a "transaction_hash" field
	Error           string // set when the body parsed and carried an "error" field
	RawBody         string
	BodyParsed      bool
}

// ExceedsMaxLength reports whether the error body signals the batch
// was too large to fit in one update, per spec §6: "may include a
// 'maxLength' substring (case-insensitive)".
func (r Response) ExceedsMaxLength() bool {
	return strings.Contains(strings.ToLower(r.Error), "maxlength") ||
		strings.Contains(strings.ToLower(r.RawBody), "maxlength")
}

// Client submits zone-file updates to the naming API.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *retryablehttp.Client
}

// New builds a Client. timeout configures both the per-attempt network
// timeout and, combined with retryablehttp's backoff, the worst-case
// latency of one SubmitZonefile call.
func New(baseURL, authToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	// Retry only transport failures; any HTTP response, whatever its
	// status, is returned to the caller with its body.
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err != nil {
			return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		}
		return false, nil
	}
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil // the Committer logs outcomes itself; avoid duplicate noise

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authToken:  authToken,
		httpClient: rc,
	}
}

type zonefileRequest struct {
	Zonefile string `json:"zonefile"`
}

type zonefileResponse struct {
	TransactionHash string `json:"transaction_hash"`
	Error           string `json:"error"`
}

// SubmitZonefile issues the PUT described in spec §6. Transport
// failures (no HTTP response at all) are surfaced as an error with
// StatusCode left at zero; the Committer treats that the same as a
// non-202 response carrying the transport error text.
func (c *Client) SubmitZonefile(ctx context.Context, parentDomain, zonefileText string) (Response, error) {
	body, err := json.Marshal(zonefileRequest{Zonefile: zonefileText})
	if err != nil {
		return Response{}, fmt.Errorf("namingapi: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/names/%s/zonefile", c.baseURL, parentDomain)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("namingapi: build request: %w", err)
	}
	req.Header.Set("authorization", "bearer "+c.authToken)
	req.Header.Set("origin", "http://localhost:3000")
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("namingapi: submit zonefile for %s: %w", parentDomain, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{StatusCode: resp.StatusCode}, fmt.Errorf("namingapi: read response body: %w", err)
	}

	out := Response{StatusCode: resp.StatusCode, RawBody: string(raw)}
	var parsed zonefileResponse
	if jsonErr := json.Unmarshal(raw, &parsed); jsonErr == nil {
		out.BodyParsed = true
		out.TransactionHash = parsed.TransactionHash
		out.Error = parsed.Error
	}
	return out, nil
}
