package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0 Safari/537.36"

	defaultConnectTimeout = 6 * time.Second
	defaultReadTimeout    = 15 * time.Second
	defaultMaxBodyBytes   = 4 << 20 // 4MB

	acceptHeader = "application/rss+xml, application/atom+xml, application/xml;q=0.9, application/json;q=0.9, */*;q=0.8"

	upstreamCharsetHeader = "X-Upstream-Charset"
)

// ErrRateLimited is returned when a source answers 429. It is never retried within a cycle.
var ErrRateLimited = errors.New("rate limited")

// StatusError reports a non-2xx response other than 429.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Fetcher performs a single bounded GET for one source URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherOptions are process-wide fetch settings.
type FetcherOptions struct {
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxBodyBytes   int
	// RateLimitPause is slept once after a 429 before giving up on the source.
	RateLimitPause time.Duration
}

func (o FetcherOptions) withDefaults() FetcherOptions {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = defaultReadTimeout
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaultMaxBodyBytes
	}
	return o
}

// HTTPFetcher fetches sources through a colly collector. A fresh collector is
// built per call so callbacks never leak between sources; the transport is shared.
type HTTPFetcher struct {
	opts      FetcherOptions
	transport http.RoundTripper
}

func NewHTTPFetcher(opts FetcherOptions) *HTTPFetcher {
	opts = opts.withDefaults()
	return &HTTPFetcher{
		opts: opts,
		transport: rawCharset{next: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext,
			TLSHandshakeTimeout:   opts.ConnectTimeout,
			ResponseHeaderTimeout: opts.ReadTimeout,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
		}},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := colly.NewCollector(
		colly.UserAgent(f.opts.UserAgent),
		colly.MaxBodySize(f.opts.MaxBodyBytes),
		colly.AllowURLRevisit(),
		// status handling is done below, colly would otherwise turn every >= 203 into an opaque error
		colly.ParseHTTPErrorResponse(),
	)
	c.WithTransport(f.transport)
	c.SetRequestTimeout(f.opts.ConnectTimeout + f.opts.ReadTimeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", acceptHeader)
	})

	var (
		status   int
		body     []byte
		upstream string
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
		upstream = r.Headers.Get(upstreamCharsetHeader)
	})

	if err := c.Visit(url); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	switch {
	case status == http.StatusTooManyRequests:
		f.pause(ctx)
		return nil, fmt.Errorf("fetch %s: %w", url, ErrRateLimited)
	case status < 200 || status > 299:
		return nil, fmt.Errorf("fetch %s: %w", url, &StatusError{Code: status})
	}
	return toUTF8(body, upstream), nil
}

func (f *HTTPFetcher) pause(ctx context.Context) {
	if f.opts.RateLimitPause <= 0 {
		return
	}
	t := time.NewTimer(f.opts.RateLimitPause)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// rawCharset moves the charset parameter out of Content-Type so colly hands
// over the body untouched; it would otherwise transcode it and the feed
// parser would then decode it a second time per the XML declaration.
type rawCharset struct {
	next http.RoundTripper
}

func (t rawCharset) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	mediaType, params, perr := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if perr != nil {
		return resp, nil
	}
	if cs, ok := params["charset"]; ok {
		delete(params, "charset")
		resp.Header.Set("Content-Type", mime.FormatMediaType(mediaType, params))
		resp.Header.Set(upstreamCharsetHeader, cs)
	}
	return resp, nil
}

// toUTF8 transcodes body from the Content-Type charset, unless the document
// declares its own encoding, which the parser applies itself.
func toUTF8(body []byte, label string) []byte {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" || label == "utf-8" || label == "utf8" || declaresEncoding(body) {
		return body
	}
	r, err := charset.NewReaderLabel(label, bytes.NewReader(body))
	if err != nil {
		return body
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return body
	}
	return out
}

func declaresEncoding(body []byte) bool {
	head := bytes.TrimLeft(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")), " \t\r\n")
	if !bytes.HasPrefix(head, []byte("<?xml")) {
		return false
	}
	end := bytes.Index(head, []byte("?>"))
	if end < 0 {
		return false
	}
	return bytes.Contains(head[:end], []byte("encoding="))
}
