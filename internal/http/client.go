package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/handiism/deck-media/internal/backoff"
	ioutils "github.com/handiism/deck-media/internal/io"
	"github.com/handiism/deck-media/internal/model"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	acceptImages   = "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8"
	acceptLanguage = "de-DE,de;q=0.9,en-US;q=0.8,en;q=0.7"

	// maxBodyBytes bounds how much of a response is buffered.
	maxBodyBytes = 32 << 20
)

// Options configures a Client.
type Options struct {
	// Timeout bounds one attempt, including the body transfer.
	Timeout time.Duration

	// UserAgent overrides the browser-like default.
	UserAgent string

	// MinSize is the size a body must exceed to count as a real asset.
	MinSize int64

	// Pacer runs before every request. Nil means no pacing.
	Pacer *backoff.Pacer

	// Transform post-processes a complete body before it is written.
	// A transform error keeps the original bytes.
	Transform func(ctx context.Context, data []byte) ([]byte, error)

	// OnBytes receives body byte counts as they arrive.
	OnBytes func(n int64)

	// Transport overrides the HTTP transport.
	Transport http.RoundTripper
}

// Client fetches image assets. Each Fetch call is exactly one attempt;
// retrying is the caller's business.
type Client struct {
	httpClient *http.Client
	opts       Options
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &Client{
		httpClient: &http.Client{Transport: opts.Transport},
		opts:       opts,
	}
}

// Fetch downloads the image named by req.Payload to req.Path and classifies
// the attempt. The destination is written only when the whole body arrived
// and is larger than MinSize.
func (c *Client) Fetch(ctx context.Context, req model.AssetRequest) model.AttemptOutcome {
	start := time.Now()

	target := ExtractImageURL(req.Payload)
	if target == "" {
		return model.Failed(model.PermanentError, fmt.Errorf("no image url in %q", req.Payload), 0)
	}
	if u, err := url.Parse(target); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.Failed(model.PermanentError, fmt.Errorf("unsupported url %q", target), 0)
	}

	if err := c.opts.Pacer.Wait(ctx); err != nil {
		return model.Failed(model.TransientError, err, time.Since(start))
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return model.Failed(model.PermanentError, err, time.Since(start))
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return model.Failed(classifyError(err), err, time.Since(start))
	}
	defer resp.Body.Close()

	if signal, ok := classifyStatus(resp.StatusCode); !ok {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		out := model.Failed(signal, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status), time.Since(start))
		out.StatusCode = resp.StatusCode
		return out
	}

	data, err := c.readBody(resp)
	if err != nil {
		out := model.Failed(classifyError(err), err, time.Since(start))
		out.StatusCode = resp.StatusCode
		return out
	}

	if c.opts.Transform != nil {
		if transformed, err := c.opts.Transform(ctx, data); err == nil {
			data = transformed
		}
	}

	if int64(len(data)) <= c.opts.MinSize {
		out := model.Failed(model.TransientError,
			fmt.Errorf("body of %d bytes is not larger than %d", len(data), c.opts.MinSize), time.Since(start))
		out.StatusCode = resp.StatusCode
		return out
	}

	if err := ioutils.WriteFileAtomic(req.Path, data); err != nil {
		out := model.Failed(model.TransientError, fmt.Errorf("write %s: %w", req.Path, err), time.Since(start))
		out.StatusCode = resp.StatusCode
		return out
	}

	out := model.Succeeded(int64(len(data)), time.Since(start))
	out.StatusCode = resp.StatusCode
	return out
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", acceptImages)
	req.Header.Set("Accept-Language", acceptLanguage)
	req.Header.Set("Cache-Control", "no-cache")
	if ref := referer(req.URL); ref != "" {
		req.Header.Set("Referer", ref)
	}
}

func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if resp.ContentLength > 0 && resp.ContentLength <= maxBodyBytes {
		buf.Grow(int(resp.ContentLength))
	}

	var w io.Writer = &buf
	if c.opts.OnBytes != nil {
		w = &ProgressWriter{
			Writer: &buf,
			Total:  resp.ContentLength,
			OnChunk: func(n int) {
				c.opts.OnBytes(int64(n))
			},
		}
	}

	n, err := io.Copy(w, io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if n > maxBodyBytes {
		return nil, errBodyTooLarge
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return nil, fmt.Errorf("short body: got %d of %d bytes: %w", n, resp.ContentLength, io.ErrUnexpectedEOF)
	}
	return buf.Bytes(), nil
}

var errBodyTooLarge = errors.New("response body exceeds size limit")

// ProgressWriter wraps an io.Writer and reports every chunk written.
type ProgressWriter struct {
	Writer  io.Writer
	Total   int64
	Written int64
	OnChunk func(n int)
}

func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.Written += int64(n)
	if pw.OnChunk != nil && n > 0 {
		pw.OnChunk(n)
	}
	return n, err
}

// referer returns the origin of u with a trailing slash.
func referer(u *url.URL) string {
	if u == nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}

// classifyStatus maps a status code to a signal. ok is true for 2xx.
func classifyStatus(code int) (model.Signal, bool) {
	switch {
	case code >= 200 && code < 300:
		return model.Success, true
	case code == http.StatusTooManyRequests:
		return model.RateLimited, false
	case code >= 500, code == http.StatusRequestTimeout:
		return model.TransientError, false
	default:
		return model.PermanentError, false
	}
}

// classifyError maps a transport or body error to a signal. Timeouts,
// resets and refused connections are all transient.
func classifyError(err error) model.Signal {
	if errors.Is(err, errBodyTooLarge) {
		return model.PermanentError
	}
	return model.TransientError
}
