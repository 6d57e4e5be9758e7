// Package fetch implements rescache.Fetcher over net/http.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/unkn0wn-root/rescache"
)

const defaultMaxBytes = 8 << 20

type Options struct {
	Client    *http.Client // nil => client with a 30s timeout
	BaseURL   string       // resolves relative resource URLs
	MaxBytes  int64        // larger bodies fail the fetch; 0 => 8 MiB
	UserAgent string
	Logger    rescache.Logger
}

// HTTP fetches with GET. Any 2xx response is a success.
type HTTP struct {
	client *http.Client
	base   *url.URL
	max    int64
	ua     string
	log    rescache.Logger
}

var _ rescache.Fetcher = (*HTTP)(nil)

func New(opts Options) (*HTTP, error) {
	h := &HTTP{
		client: opts.Client,
		max:    opts.MaxBytes,
		ua:     opts.UserAgent,
		log:    opts.Logger,
	}
	if h.client == nil {
		h.client = &http.Client{Timeout: 30 * time.Second}
	}
	if h.max <= 0 {
		h.max = defaultMaxBytes
	}
	if h.log == nil {
		h.log = rescache.NopLogger{}
	}
	if strings.TrimSpace(opts.BaseURL) != "" {
		b, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("fetch: base url: %w", err)
		}
		h.base = b
	}
	return h, nil
}

func (h *HTTP) Fetch(ctx context.Context, raw string) (string, bool) {
	target, err := h.resolve(raw)
	if err != nil {
		h.log.Warn("fetch: bad url", rescache.Fields{"url": raw, "err": err})
		return "", false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		h.log.Warn("fetch: build request", rescache.Fields{"url": target, "err": err})
		return "", false
	}
	if h.ua != "" {
		req.Header.Set("User-Agent", h.ua)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.log.Debug("fetch: request failed", rescache.Fields{"url": target, "err": err})
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		h.log.Debug("fetch: non-2xx status", rescache.Fields{"url": target, "status": resp.StatusCode})
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.max+1))
	if err != nil {
		h.log.Debug("fetch: read body", rescache.Fields{"url": target, "err": err})
		return "", false
	}
	if int64(len(body)) > h.max {
		h.log.Warn("fetch: body too large", rescache.Fields{"url": target, "max": h.max})
		return "", false
	}
	return string(body), true
}

func (h *HTTP) resolve(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if h.base != nil {
		u = h.base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url %q", u.String())
	}
	return u.String(), nil
}
