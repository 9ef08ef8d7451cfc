package platform

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rflorenc/profilemig/internal/models"
)

// Client is a shared HTTP client for the AdminService REST endpoint.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// NewClient creates a Client from a Site.
func NewClient(site *models.Site) *Client {
	transport := &http.Transport{}
	if site.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	} else if site.CACert != "" {
		caCertPool := x509.NewCertPool()
		if caCertPool.AppendCertsFromPEM([]byte(site.CACert)) {
			transport.TLSClientConfig = &tls.Config{RootCAs: caCertPool}
		}
	}
	return &Client{
		baseURL:  site.BaseURL(),
		username: site.Username,
		password: site.Password,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   2 * time.Minute,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Re-apply basic auth on redirects
				if len(via) > 0 {
					req.SetBasicAuth(site.Username, site.Password)
				}
				return nil
			},
		},
	}
}

// odataResponse is the AdminService collection envelope.
type odataResponse struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}

func (c *Client) do(ctx context.Context, method, rawURL string, payload interface{}) ([]byte, int, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("marshaling body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// Get performs an authenticated GET request and returns the response body.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	body, status, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if status < 200 || status >= 300 {
		return body, fmt.Errorf("GET %s: HTTP %d: %s", path, status, truncate(string(body), 200))
	}
	return body, nil
}

// GetJSON performs an authenticated GET and unmarshals the response into dest.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, dest interface{}) error {
	body, err := c.Get(ctx, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// GetAll fetches every page of an OData collection, following
// @odata.nextLink, and returns the raw entries.
func (c *Client) GetAll(ctx context.Context, path string, params url.Values) ([]json.RawMessage, error) {
	var all []json.RawMessage
	currentURL := c.baseURL + path
	if len(params) > 0 {
		currentURL += "?" + params.Encode()
	}

	for currentURL != "" {
		body, status, err := c.do(ctx, http.MethodGet, currentURL, nil)
		if err != nil {
			return nil, fmt.Errorf("GET %s: %w", currentURL, err)
		}
		if status < 200 || status >= 300 {
			return nil, fmt.Errorf("GET %s: HTTP %d: %s", currentURL, status, truncate(string(body), 200))
		}

		var page odataResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
		all = append(all, page.Value...)

		currentURL = page.NextLink
		// If relative URL, make absolute
		if strings.HasPrefix(currentURL, "/") {
			currentURL = c.baseURL + currentURL
		}
	}
	return all, nil
}

// Query fetches an OData collection filtered by the given expression and
// decodes every entry into dest, which must be a pointer to a slice.
func (c *Client) Query(ctx context.Context, path, filter string, dest interface{}) error {
	params := url.Values{}
	if filter != "" {
		params.Set("$filter", filter)
	}
	raw, err := c.GetAll(ctx, path, params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("re-encoding results: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("parsing results: %w", err)
	}
	return nil
}

// Post performs an authenticated POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, payload interface{}) ([]byte, int, error) {
	body, status, err := c.do(ctx, http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return nil, status, fmt.Errorf("POST %s: %w", path, err)
	}
	if status < 200 || status >= 300 {
		return body, status, fmt.Errorf("POST %s: HTTP %d: %s", path, status, truncate(string(body), 200))
	}
	return body, status, nil
}

// Ping checks connectivity by hitting the given path.
func (c *Client) Ping(ctx context.Context, apiPath string) error {
	_, err := c.Get(ctx, apiPath, nil)
	return err
}

// odataString quotes s as an OData string literal.
func odataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
