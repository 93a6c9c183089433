package common

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// HttpClient is the transport the platform client issues requests through.
// The cookie jar carries the session credentials (and the CSRF cookie) between
// calls, the same way a browser attaches same-origin cookies.
type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
	Cookies(u *url.URL) []*http.Cookie
	SetCookies(u *url.URL, cookies []*http.Cookie)
	CloseIdleConnections()
}

// APIError is the normalized form of every non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	Details    []string
	Body       []byte
}

func (e *APIError) Error() string {
	return e.Message
}

// errorBody is the error shape the platform API returns.
type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details"`
}

// NewAPIError composes the message from the response body when it carries the
// platform's error shape, falling back to the bare status otherwise.
func NewAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Message:    fmt.Sprintf("HTTP error! status: %d", status),
		Body:       body,
	}
	if len(body) == 0 {
		return apiErr
	}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return apiErr
	}
	if parsed.Error != "" {
		apiErr.Message = parsed.Error
	}
	if len(parsed.Details) > 0 {
		apiErr.Details = parsed.Details
		apiErr.Message = apiErr.Message + ": " + strings.Join(parsed.Details, "; ")
	}
	return apiErr
}

// userAgentRoundTripper is a custom RoundTripper that adds a User-Agent header.
type userAgentRoundTripper struct {
	Wrapped   http.RoundTripper
	UserAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone request to avoid mutating the original
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.UserAgent)
	return rt.Wrapped.RoundTrip(clone)
}

type httpClient struct {
	client *http.Client
}

// NewPlatformHttpClient wraps base with a User-Agent transport and a cookie jar.
// A zero timeout leaves whatever timeout base already has.
func NewPlatformHttpClient(userAgent string, base *http.Client, timeout time.Duration) (HttpClient, error) {
	if base.Transport == nil {
		base.Transport = http.DefaultTransport
	}
	base.Transport = &userAgentRoundTripper{
		Wrapped:   base.Transport,
		UserAgent: userAgent,
	}
	if base.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		base.Jar = jar
	}
	if timeout > 0 {
		base.Timeout = timeout
	}

	return &httpClient{client: base}, nil
}

func (h *httpClient) Do(req *http.Request) (*http.Response, error) {
	return h.client.Do(req)
}

func (h *httpClient) Cookies(u *url.URL) []*http.Cookie {
	return h.client.Jar.Cookies(u)
}

func (h *httpClient) SetCookies(u *url.URL, cookies []*http.Cookie) {
	h.client.Jar.SetCookies(u, cookies)
}

func (h *httpClient) CloseIdleConnections() {
	h.client.CloseIdleConnections()
}
