// Package source is the HTTP transport behind a batch.Engine: it renders a
// batch.Descriptor into a provider GET request and returns the raw body.
package source

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=source_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client sends descriptors to one provider.
type Client struct {
	// name labels error messages.
	name string
	// baseURL is the base URL for the API; descriptor paths are appended.
	baseURL string
	// httpClient is the HTTP client.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// query contains fixed query parameters sent with each request.
	query url.Values
	// apiKeyParam is the query parameter holding the API key, redacted in errors.
	apiKeyParam string
	// primaryParams receive the comma joined ids.
	primaryParams []string
	// secondaryParams receive the comma joined quotes.
	secondaryParams []string
	// pairParams receive every id+quote concatenation, e.g. "btcusd".
	pairParams []string
	// upperCase renders ids and quotes in upper case.
	upperCase bool
}

// Option is a configuration option for the Client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithQuery adds fixed query parameters, e.g. function=CURRENCY_EXCHANGE_RATE.
func WithQuery(query map[string]string) Option {
	return func(c *Client) {
		for key, value := range query {
			c.query.Set(key, value)
		}
	}
}

// WithAPIKey sends key in the named query parameter. An empty key is ignored.
func WithAPIKey(param, key string) Option {
	return func(c *Client) {
		if param != "" && key != "" {
			c.query.Set(param, key)
			c.apiKeyParam = param
		}
	}
}

// WithParams names the query parameters that carry ids and quotes. Several
// names may be given when a provider reads different ones per function.
func WithParams(primary, secondary []string) Option {
	return func(c *Client) {
		c.primaryParams = primary
		c.secondaryParams = secondary
	}
}

// WithPairParams names query parameters that carry concatenated pairs.
func WithPairParams(names []string) Option {
	return func(c *Client) {
		c.pairParams = names
	}
}

// WithUpperCase renders ids and quotes in upper case.
func WithUpperCase(upper bool) Option {
	return func(c *Client) {
		c.upperCase = upper
	}
}

// New creates a new Client.
func New(name string, options ...Option) (*Client, error) {
	var client = &Client{
		name:       name,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		query:      url.Values{},
	}
	for _, option := range options {
		option(client)
	}
	if client.baseURL == "" {
		return nil, fmt.Errorf("%s: base url is required", name)
	}
	if len(client.primaryParams) == 0 && len(client.pairParams) == 0 {
		return nil, fmt.Errorf("%s: no query parameter carries the requested ids", name)
	}
	return client, nil
}
