// Package httpfetch provides the HTTP client used to retrieve remote
// playlists and to open audio streams. Playlists on FTP servers are
// retrieved too.
package httpfetch

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// DefaultMaxBytes bounds how much of a response body is read. Stream URLs
// answer with endless audio data, so the body is never read unbounded.
const DefaultMaxBytes = 1 << 20

// Config represents HTTP fetch client configuration.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
}

// Client retrieves remote resources as byte streams.
type Client struct {
	httpClient   *http.Client
	streamClient *http.Client
	userAgent    string
	maxBytes     int64
	dialFTP      ftpDialer
}

// Response is an open remote resource.
type Response struct {
	URL         string
	ContentType string // media type, lower-cased, without parameters
	Body        io.ReadCloser
}

// Close releases the response body.
func (r *Response) Close() error {
	return r.Body.Close()
}

type limitedBody struct {
	io.Reader
	io.Closer
}

// New creates a new fetch client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		// Stream bodies are read for as long as playback lasts, so only
		// the wait for response headers is bounded.
		streamClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: timeout,
			},
		},
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
		dialFTP:   dialFTP,
	}
}

// Open issues a GET request and returns the response body with its media
// type. Non-2xx statuses are errors. ftp URLs are retrieved over FTP and
// carry no media type. The caller must close the response.
func (c *Client) Open(ctx context.Context, rawURL string) (*Response, error) {
	if u, err := url.Parse(rawURL); err == nil && strings.EqualFold(u.Scheme, "ftp") {
		return c.openFTP(ctx, rawURL, u)
	}

	resp, err := c.get(ctx, c.httpClient, rawURL)
	if err != nil {
		return nil, err
	}
	return &Response{
		URL:         rawURL,
		ContentType: mediaType(resp.Header.Get("Content-Type")),
		Body: limitedBody{
			Reader: io.LimitReader(resp.Body, c.maxBytes),
			Closer: resp.Body,
		},
	}, nil
}

// Stream is like Open but leaves the body unbounded, for audio streams.
func (c *Client) Stream(ctx context.Context, rawURL string) (*Response, error) {
	resp, err := c.get(ctx, c.streamClient, rawURL)
	if err != nil {
		return nil, err
	}
	return &Response{
		URL:         rawURL,
		ContentType: mediaType(resp.Header.Get("Content-Type")),
		Body:        resp.Body,
	}, nil
}

func (c *Client) get(ctx context.Context, client *http.Client, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, errors.Newf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	zlog.Debug().Msgf("httpfetch: opened %s content-type=%q", rawURL, resp.Header.Get("Content-Type"))
	return resp, nil
}

func mediaType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		mt, _, _ = strings.Cut(header, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
