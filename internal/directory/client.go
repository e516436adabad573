package directory

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// requestTimeout caps every directory call. Lookups run on the single
// serialized scan pipeline, so a slow directory must fail fast rather
// than freeze the kiosk.
const requestTimeout = 3 * time.Second

// tokenExpiryMargin refreshes the bearer token slightly before the
// server-reported expiry to avoid racing the deadline.
const tokenExpiryMargin = 10 * time.Second

// HTTPClient talks to a Sierra-style patron REST API: a token endpoint
// issuing short-lived bearer tokens against a basic-auth client secret,
// and a patrons/find endpoint keyed by barcode.
type HTTPClient struct {
	baseURL    string
	authHeader string // precomputed "Basic ..." value
	http       *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewHTTPClient builds a client for the given API base URL. secret is the
// raw "key:secret" client credential pair.
func NewHTTPClient(baseURL string, secret []byte) (*HTTPClient, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("directory base URL is required")
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("directory client secret is required")
	}

	return &HTTPClient{
		baseURL:    baseURL,
		authHeader: "Basic " + base64.StdEncoding.EncodeToString(secret),
		http:       &http.Client{Timeout: requestTimeout},
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// bearer returns a valid bearer token, requesting a fresh one when the
// cached token is missing or about to expire.
func (c *HTTPClient) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	if c.token != "" && now.Before(c.tokenExpiry.Add(-tokenExpiryMargin)) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"token", nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request: unexpected status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	c.token = tr.AccessToken
	c.tokenExpiry = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	return c.token, nil
}

type patronResponse struct {
	Name           string   `json:"name"` // set to "Record not found" on misses
	Names          []string `json:"names"`
	ExpirationDate string   `json:"expirationDate"`
	BlockInfo      struct {
		Code string `json:"code"`
	} `json:"blockInfo"`
}

// Lookup fetches the patron record for a barcode. The important fields
// are the expiration date and the block code; the name is display-only.
func (c *HTTPClient) Lookup(ctx context.Context, barcode string) (Record, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return Record{}, err
	}

	q := url.Values{}
	q.Set("barcode", barcode)
	q.Set("fields", "names,barcodes,expirationDate,blockInfo")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"patrons/find?"+q.Encode(), nil)
	if err != nil {
		return Record{}, fmt.Errorf("build patron request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("patron request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Record{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return Record{}, fmt.Errorf("patron request: unexpected status %d", resp.StatusCode)
	}

	var pr patronResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&pr); err != nil {
		return Record{}, fmt.Errorf("decode patron response: %w", err)
	}
	if pr.Name == "Record not found" || len(pr.Names) == 0 {
		return Record{}, ErrNotFound
	}

	rec := Record{
		Name:   displayName(pr.Names[0]),
		Blocks: pr.BlockInfo.Code,
	}
	if pr.ExpirationDate != "" {
		exp, err := time.Parse("2006-01-02", pr.ExpirationDate)
		if err != nil {
			return Record{}, fmt.Errorf("parse expiration date %q: %w", pr.ExpirationDate, err)
		}
		rec.Expiration = exp
	}
	return rec, nil
}

// displayName converts the directory's "Last, First" form to
// "First Last". Names without a comma pass through unchanged.
func displayName(name string) string {
	last, first, ok := strings.Cut(name, ",")
	if !ok {
		return strings.TrimSpace(name)
	}
	return strings.TrimSpace(first) + " " + strings.TrimSpace(last)
}
