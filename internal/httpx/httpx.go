// Package httpx builds the outbound HTTP client shared by every provider.
package httpx

import (
	"net"
	"net/http"
	"time"
)

// Client wraps http.Client and fills in the user agent and default headers.
// It satisfies the HTTPClient interface expected by provider sources.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Headers   map[string]string
}

type settings struct {
	timeout               time.Duration
	responseHeaderTimeout time.Duration
	maxConnsPerHost       int
	userAgent             string
	headers               map[string]string
}

// Option tunes the client built by New.
type Option func(*settings)

// WithTimeout bounds a whole request, body included. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithResponseHeaderTimeout bounds the wait for response headers.
func WithResponseHeaderTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.responseHeaderTimeout = d
		}
	}
}

// WithMaxConnsPerHost caps connections per provider host.
func WithMaxConnsPerHost(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxConnsPerHost = n
		}
	}
}

// WithUserAgent overrides the default user agent.
func WithUserAgent(ua string) Option {
	return func(s *settings) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithHeaders adds headers sent unless a request sets them itself.
func WithHeaders(h map[string]string) Option {
	return func(s *settings) {
		s.headers = h
	}
}

func New(opts ...Option) *Client {
	s := settings{
		timeout:               15 * time.Second,
		responseHeaderTimeout: 5 * time.Second,
		maxConnsPerHost:       100,
		userAgent:             "marketfeed/1.0",
	}
	for _, opt := range opts {
		opt(&s)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   s.maxConnsPerHost,
		MaxConnsPerHost:       s.maxConnsPerHost,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: s.responseHeaderTimeout,
	}
	return &Client{
		HTTP:      &http.Client{Timeout: s.timeout, Transport: transport},
		UserAgent: s.userAgent,
		Headers:   s.headers,
	}
}

// Do sends req after filling in the user agent and default headers the
// request does not already set.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return c.HTTP.Do(req)
}
