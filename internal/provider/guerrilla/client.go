package guerrilla

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/nhle/tempmail/internal/provider"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 8 << 20

// Client is a thin HTTP client for the provider's single RPC endpoint.
// Every call is a GET whose f parameter selects the operation. It never
// retries.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a client for the endpoint at baseURL. A nil
// httpClient gets a default one with the given timeout.
func NewClient(baseURL string, httpClient *http.Client, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing provider url %q", baseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf("provider url %q must be absolute", baseURL)
	}
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    u,
		httpClient: httpClient,
		userAgent:  "tempmail/1.0",
	}, nil
}

// Get performs the RPC selected by op with params and returns the raw
// response body. Transport failures become NetworkError; non-2xx
// statuses become ProviderError.
func (c *Client) Get(ctx context.Context, op string, params url.Values) ([]byte, error) {
	u := *c.baseURL
	q := u.Query()
	q.Set("f", op)
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "creating request for %s", op)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &provider.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &provider.NetworkError{
			Op:  op,
			Err: errors.Wrap(err, "reading response body"),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &provider.ProviderError{
			Op:      op,
			Message: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200)),
		}
	}

	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
