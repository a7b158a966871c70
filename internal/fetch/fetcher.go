package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTimeout       = 10 * time.Second
	DefaultBodyByteLimit = 5 * 1024 * 1024
	MaxRedirects         = 5

	defaultUserAgent = "Skybrief/1.0 (+https://github.com/skybrief/skybrief)"
)

// ErrorKind classifies fetch failures so callers can decide retry behavior.
type ErrorKind int

const (
	ErrInvalidURI ErrorKind = iota
	ErrTooManyRedirects
	ErrHTTPStatus
	ErrTransport
)

// Error is the typed failure a fetch returns. It never escapes as a panic;
// every failure mode maps to a kind.
type Error struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	cause      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrInvalidURI:
		return fmt.Sprintf("invalid URI %q: %v", e.URL, e.cause)
	case ErrTooManyRedirects:
		return fmt.Sprintf("too many redirects fetching %s (max %d)", e.URL, MaxRedirects)
	case ErrHTTPStatus:
		return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.cause)
	}
}

func (e *Error) Unwrap() error { return e.cause }

// Result is a successful fetch: the final URL after redirects plus the body.
type Result struct {
	URL  string
	HTML string
}

// Fetcher performs bounded-redirect GETs with connect and read timeouts.
type Fetcher struct {
	client *http.Client
	limit  int64
}

var errRedirectCeiling = errors.New("redirect ceiling reached")

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// net/http resolves relative Location headers against the
				// current URL before this hook runs.
				if len(via) >= MaxRedirects {
					return errRedirectCeiling
				}
				return nil
			},
		},
		limit: DefaultBodyByteLimit,
	}
}

// Fetch retrieves the page at rawURL, following up to MaxRedirects hops.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Result, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		if err == nil {
			err = fmt.Errorf("missing scheme or host")
		}
		return Result{}, &Error{Kind: ErrInvalidURI, URL: rawURL, cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return Result{}, &Error{Kind: ErrInvalidURI, URL: rawURL, cause: err}
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, errRedirectCeiling) {
			return Result{}, &Error{Kind: ErrTooManyRedirects, URL: rawURL, cause: err}
		}
		return Result{}, &Error{Kind: ErrTransport, URL: rawURL, cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, &Error{Kind: ErrHTTPStatus, URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.limit))
	if err != nil {
		return Result{}, &Error{Kind: ErrTransport, URL: rawURL, cause: err}
	}

	return Result{
		URL:  resp.Request.URL.String(),
		HTML: string(body),
	}, nil
}

// KindOf extracts the error kind from a fetch error. The second return is
// false when err is not a fetch error.
func KindOf(err error) (ErrorKind, bool) {
	var fetchErr *Error
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind, true
	}
	return 0, false
}
