// Package existence implements the Existence Oracle external
// interface (spec §2 item 3): resolving whether a subdomain already
// exists on-chain before Intake enqueues it.
package existence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Oracle looks up whether a subdomain already exists under a parent
// domain on the naming system.
type Oracle interface {
	Exists(ctx context.Context, parentDomain, subdomainName string) (bool, error)
}

// HTTPOracle resolves subdomain existence against the naming system's
// own resolver endpoint, mirroring
// subdomains_registrar.py's queue_name_for_registration, which calls
// subdomains.resolve_subdomain(name, domain) and treats
// SubdomainNotFound as the negative case.
type HTTPOracle struct {
	BaseURL    string
	Client     *http.Client
	AuthHeader string
}

// NewHTTPOracle builds an Oracle backed by the given client, the naming
// system API base URL, and the bearer token used for authenticated
// resolver calls.
func NewHTTPOracle(baseURL string, client *http.Client, bearerToken string) *HTTPOracle {
	return &HTTPOracle{
		BaseURL:    baseURL,
		Client:     client,
		AuthHeader: "bearer " + bearerToken,
	}
}

type resolveResponse struct {
	Subdomain json.RawMessage `json:"subdomain"`
	Error     string          `json:"error"`
}

// Exists returns true if subdomainName already resolves under
// parentDomain. A 404 response is the negative case; any other
// non-2xx status or transport failure is surfaced as an error so the
// caller does not silently treat "the resolver is down" as "free".
func (o *HTTPOracle) Exists(ctx context.Context, parentDomain, subdomainName string) (bool, error) {
	fqdn := subdomainName + "." + parentDomain
	endpoint := o.BaseURL + "/v1/names/" + url.PathEscape(fqdn)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("existence: build request: %w", err)
	}
	req.Header.Set("authorization", o.AuthHeader)

	resp, err := o.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("existence: request %s: %w", fqdn, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var body resolveResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false, fmt.Errorf("existence: decode response for %s: %w", fqdn, err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("existence: unexpected status %d resolving %s", resp.StatusCode, fqdn)
	}
}
