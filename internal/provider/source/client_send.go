package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strings"

	"marketfeed/internal/batch"
)

// maxBodyBytes caps how much of a provider response is read.
const maxBodyBytes = 8 << 20

// Send performs the GET for d and returns the body of a 2xx response.
// Non-2xx answers become *batch.TransportError.
func (c *Client) Send(ctx context.Context, d batch.Descriptor) ([]byte, error) {
	query := maps.Clone(c.query)
	ids, quotes := c.render(d.Primary), c.render(d.Secondary)
	for _, name := range c.primaryParams {
		query.Set(name, strings.Join(ids, ","))
	}
	if len(quotes) > 0 {
		for _, name := range c.secondaryParams {
			query.Set(name, strings.Join(quotes, ","))
		}
	}
	if len(c.pairParams) > 0 {
		pairs := strings.Join(crossJoin(ids, quotes), ",")
		for _, name := range c.pairParams {
			query.Set(name, pairs)
		}
	}

	endpoint := c.baseURL + d.Path
	if enc := query.Encode(); enc != "" {
		endpoint += "?" + enc
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, &batch.TransportError{StatusCode: http.StatusBadGateway, Message: c.name + ": invalid request", Err: c.redact(err)}
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		err = c.redact(err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &batch.TransportError{StatusCode: http.StatusGatewayTimeout, Message: c.name + ": request timed out", Err: err}
		}
		return nil, &batch.TransportError{StatusCode: http.StatusBadGateway, Message: c.name + ": request failed", Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, &batch.TransportError{StatusCode: http.StatusBadGateway, Message: c.name + ": reading response", Err: err}
	}

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return body, nil

	case res.StatusCode == http.StatusUnauthorized, res.StatusCode == http.StatusForbidden:
		return nil, &batch.TransportError{StatusCode: http.StatusBadGateway, Message: c.name + ": unauthorized"}

	case res.StatusCode == http.StatusTooManyRequests:
		return nil, &batch.TransportError{StatusCode: http.StatusTooManyRequests, Message: c.name + ": rate limited"}

	default:
		return nil, &batch.TransportError{
			StatusCode: http.StatusBadGateway,
			Message:    fmt.Sprintf("%s: unexpected status code: %d", c.name, res.StatusCode),
		}
	}
}

// redact hides the API key in the URL a *url.Error carries.
func (c *Client) redact(err error) error {
	var ue *url.Error
	if c.apiKeyParam == "" || !errors.As(err, &ue) {
		return err
	}
	u, perr := url.Parse(ue.URL)
	if perr != nil {
		return &url.Error{Op: ue.Op, URL: "<redacted>", Err: ue.Err}
	}
	q := u.Query()
	if q.Has(c.apiKeyParam) {
		q.Set(c.apiKeyParam, "REDACTED")
		u.RawQuery = q.Encode()
	}
	return &url.Error{Op: ue.Op, URL: u.String(), Err: ue.Err}
}

func (c *Client) render(keys []string) []string {
	if !c.upperCase {
		return keys
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = strings.ToUpper(k)
	}
	return out
}

// crossJoin concatenates every id with every quote.
func crossJoin(ids, quotes []string) []string {
	if len(quotes) == 0 {
		return ids
	}
	out := make([]string, 0, len(ids)*len(quotes))
	for _, id := range ids {
		for _, q := range quotes {
			out = append(out, id+q)
		}
	}
	return out
}
