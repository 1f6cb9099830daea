package vendorlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxVendorID bounds ids accepted from the registry to the width the consent
// string can carry.
const maxVendorID = 65535

// maxPayloadBytes bounds the registry response body.
const maxPayloadBytes = 32 << 20

// Fetcher retrieves a complete registry snapshot.
type Fetcher interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// HTTPFetcher loads the registry from a fixed URL and schema-checks it.
type HTTPFetcher struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewHTTPFetcher creates a fetcher for url. A nil client gets one with timeout.
func NewHTTPFetcher(url string, client *http.Client, timeout time.Duration) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPFetcher{url: url, client: client, now: time.Now}
}

type wirePayload struct {
	VendorListVersion int             `json:"vendorListVersion"`
	TCFPolicyVersion  int             `json:"tcfPolicyVersion"`
	LastUpdated       time.Time       `json:"lastUpdated"`
	Vendors           map[int]Vendor  `json:"vendors"`
	Purposes          map[int]Purpose `json:"purposes"`
	Features          map[int]Purpose `json:"features"`
}

// Fetch performs one GET. Every failure is a *FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, &FetchError{Category: CategoryNetwork, Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Category: CategoryNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{
			Category:   CategoryStatus,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	var payload wirePayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPayloadBytes)).Decode(&payload); err != nil {
		return nil, &FetchError{Category: CategoryParse, Message: "decode body", Err: err}
	}
	if err := checkSchema(&payload); err != nil {
		return nil, &FetchError{Category: CategorySchema, Message: "payload rejected", Err: err}
	}

	features := payload.Features
	if features == nil {
		features = map[int]Purpose{}
	}
	return &Snapshot{
		Version:       payload.VendorListVersion,
		PolicyVersion: payload.TCFPolicyVersion,
		LastUpdated:   payload.LastUpdated,
		FetchedAt:     f.now(),
		Vendors:       payload.Vendors,
		Purposes:      payload.Purposes,
		Features:      features,
	}, nil
}

func checkSchema(p *wirePayload) error {
	if p.VendorListVersion <= 0 {
		return errors.New("vendorListVersion must be positive")
	}
	if p.Vendors == nil {
		return errors.New("vendors missing")
	}
	if p.Purposes == nil {
		return errors.New("purposes missing")
	}
	for key, v := range p.Vendors {
		if key < 1 || key > maxVendorID {
			return fmt.Errorf("vendor id %d out of range", key)
		}
		if v.ID != key {
			return fmt.Errorf("vendor key %d does not match id %d", key, v.ID)
		}
	}
	for key, purpose := range p.Purposes {
		if purpose.ID != key {
			return fmt.Errorf("purpose key %d does not match id %d", key, purpose.ID)
		}
	}
	return nil
}
