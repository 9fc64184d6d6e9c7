// Package isapi speaks the device's HTTP media-channel protocol: digest
// authenticated PUTs against the fixed two-way-audio endpoints used to open
// the channel, feed it raw audio, and close it again.
package isapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/icholy/digest"
)

const channelPath = "/ISAPI/System/TwoWayAudio/channels/1"

// StatusError reports a non-success response from the device.
type StatusError struct {
	Op     string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: device returned %s", e.Op, e.Status)
}

// Client performs challenge-response authenticated requests against one
// device's media channel. Open and Close are fire-and-verify and safe to
// repeat; a close on an already-closed channel is not an error at this layer.
//
// The client carries no request timeout: open/close block until the device
// answers or the context is cancelled.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient builds a media-channel client for the device at address
// (e.g. "http://192.168.1.20") using digest credentials.
func NewClient(address, username, password string) (*Client, error) {
	base, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid device address %q: %w", address, err)
	}
	return &Client{
		base: base,
		http: &http.Client{
			Transport: &digest.Transport{
				Username: username,
				Password: password,
			},
		},
	}, nil
}

// OpenChannel opens the device's two-way-audio channel.
func (c *Client) OpenChannel(ctx context.Context) error {
	return c.put(ctx, "open channel", channelPath+"/open", nil, nil)
}

// CloseChannel closes the device's two-way-audio channel. Closing a channel
// that is not open succeeds on the device side, so callers may close first to
// clear a channel left open by a previous abnormal end.
func (c *Client) CloseChannel(ctx context.Context) error {
	return c.put(ctx, "close channel", channelPath+"/close", nil, nil)
}

// StreamAudio feeds the open channel from body with a single long-lived PUT.
// The request is associated with ctx, so cancelling the context aborts the
// in-flight body promptly. StreamAudio returns once the device ends the
// request or the context fires.
func (c *Client) StreamAudio(ctx context.Context, body io.Reader) error {
	headers := http.Header{
		"Content-Type": []string{"application/octet-stream"},
		"Connection":   []string{"keep-alive"},
	}
	return c.put(ctx, "stream audio", channelPath+"/audioData", body, headers)
}

func (c *Client) put(ctx context.Context, op, path string, body io.Reader, headers http.Header) error {
	u := *c.base
	u.Path = path

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, Code: resp.StatusCode, Status: resp.Status}
	}
	return nil
}
