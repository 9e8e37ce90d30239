package download

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// ErrUnknownSize is returned when a server does not report the size of a
// file. Such files cannot be checked against a local copy.
var ErrUnknownSize = eris.New("download: remote size unknown")

// HTTPOptions configures the HTTP source.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// RatePerHost is the request rate allowed per host; zero means 2/s.
	RatePerHost rate.Limit
}

// httpSource fetches files over HTTP(S) with one rate limiter per host.
type httpSource struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newHTTPSource(opts HTTPOptions) *httpSource {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "gdivir/1.0"
	}
	if opts.RatePerHost == 0 {
		opts.RatePerHost = 2
	}
	return &httpSource{
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (s *httpSource) limiter(host string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[host]
	if !ok {
		lim = rate.NewLimiter(s.opts.RatePerHost, 1)
		s.limiters[host] = lim
	}
	return lim
}

// open issues a GET for u and returns the body with its declared size.
func (s *httpSource) open(ctx context.Context, u *url.URL) (io.ReadCloser, int64, error) {
	if err := s.limiter(u.Host).Wait(ctx); err != nil {
		return nil, 0, eris.Wrap(err, "download: rate limiter wait")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, eris.Wrap(err, "download: create request")
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, transient(eris.Wrapf(err, "download: get %s", u))
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		_ = resp.Body.Close()
		return nil, 0, transient(eris.Errorf("download: http %d from %s", resp.StatusCode, u))
	case resp.StatusCode != http.StatusOK:
		_ = resp.Body.Close()
		return nil, 0, eris.Errorf("download: unexpected status %d from %s", resp.StatusCode, u)
	case resp.ContentLength < 0:
		_ = resp.Body.Close()
		return nil, 0, eris.Wrapf(ErrUnknownSize, "%s", u)
	}
	return resp.Body, resp.ContentLength, nil
}
