package jurisdiction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Locator maps an IP address to an ISO 3166-1 alpha-2 country code.
// Failures are *LookupError.
type Locator interface {
	Lookup(ctx context.Context, ip string) (string, error)
}

// IPAPILocator queries an ipapi.co-compatible endpoint: GET {base}/{ip}/json/.
type IPAPILocator struct {
	baseURL string
	client  *http.Client
}

// NewIPAPILocator creates a locator. A nil client gets a default one; the
// per-lookup deadline comes from the caller's context.
func NewIPAPILocator(baseURL string, client *http.Client) *IPAPILocator {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &IPAPILocator{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type ipapiResponse struct {
	CountryCode string `json:"country_code"`
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
}

func (l *IPAPILocator) Lookup(ctx context.Context, ip string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/json/", l.baseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", &LookupError{Category: CategoryNetwork, Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &LookupError{Category: CategoryTimeout, Message: "lookup timed out", Err: err}
		}
		return "", &LookupError{Category: CategoryNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &LookupError{Category: CategoryStatus, Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	var body ipapiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return "", &LookupError{Category: CategoryParse, Message: "decode body", Err: err}
	}
	if body.Error {
		return "", &LookupError{Category: CategoryStatus, Message: "provider error: " + body.Reason}
	}
	code := strings.ToUpper(strings.TrimSpace(body.CountryCode))
	if len(code) != 2 {
		return "", &LookupError{Category: CategoryParse, Message: fmt.Sprintf("missing or malformed country_code %q", body.CountryCode)}
	}
	return code, nil
}
