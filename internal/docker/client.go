package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxBody = 10 << 20

// APIError is a non-2xx reply from the engine.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("docker %s: status %d: %s", e.Endpoint, e.Status, e.Message)
}

// IsNotFound reports whether err is an engine 404, e.g. a container removed
// between list and inspect.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to the engine API over its unix socket. Only read endpoints
// are used.
type Client struct {
	http *http.Client
	base string
}

func NewClient(socketPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	sock := strings.TrimPrefix(socketPath, "unix://")
	dialer := &net.Dialer{Timeout: 3 * time.Second}
	return &Client{
		base: "http://docker",
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					return dialer.DialContext(ctx, "unix", sock)
				},
			},
		},
	}
}

func (c *Client) Ping(ctx context.Context) error {
	res, err := c.get(ctx, "/_ping", nil)
	if err != nil {
		return err
	}
	return res.Body.Close()
}

func (c *Client) Info(ctx context.Context) (Info, error) {
	var info Info
	err := c.decode(ctx, "/info", nil, &info)
	return info, err
}

func (c *Client) ListContainers(ctx context.Context) ([]ContainerSummary, error) {
	var list []ContainerSummary
	err := c.decode(ctx, "/containers/json", url.Values{"all": {"1"}}, &list)
	return list, err
}

func (c *Client) InspectContainer(ctx context.Context, id string) (ContainerInspect, error) {
	var in ContainerInspect
	err := c.decode(ctx, "/containers/"+url.PathEscape(id)+"/json", nil, &in)
	return in, err
}

func (c *Client) Stats(ctx context.Context, id string) (Stats, error) {
	var st Stats
	err := c.decode(ctx, "/containers/"+url.PathEscape(id)+"/stats", url.Values{"stream": {"false"}}, &st)
	return st, err
}

// Logs returns the last tail lines of a container's output as the raw,
// possibly multiplexed, stream. The caller closes it.
func (c *Client) Logs(ctx context.Context, id string, tail int) (io.ReadCloser, error) {
	q := url.Values{"stdout": {"1"}, "stderr": {"1"}}
	if tail > 0 {
		q.Set("tail", strconv.Itoa(tail))
	}
	res, err := c.get(ctx, "/containers/"+url.PathEscape(id)+"/logs", q)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

func (c *Client) decode(ctx context.Context, endpoint string, q url.Values, out any) error {
	res, err := c.get(ctx, endpoint, q)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if err := json.NewDecoder(io.LimitReader(res.Body, maxBody)).Decode(out); err != nil {
		return fmt.Errorf("decode docker %s: %w", endpoint, err)
	}
	return nil
}

// get issues a GET and hands back the open response on 2xx. Anything else is
// drained into an APIError.
func (c *Client) get(ctx context.Context, endpoint string, q url.Values) (*http.Response, error) {
	target := c.base + endpoint
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("docker %s: %w", endpoint, err)
	}
	if res.StatusCode/100 == 2 {
		return res, nil
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	apiErr := &APIError{Endpoint: endpoint, Status: res.StatusCode, Message: strings.TrimSpace(string(b))}
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &body) == nil && body.Message != "" {
		apiErr.Message = body.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(res.StatusCode)
	}
	return nil, apiErr
}
