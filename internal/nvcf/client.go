// Package nvcf provides a client for invoking NVIDIA Cloud Functions
// (NVCF) end to end. An invocation is a multi-step process:
//
//  1. Upload local input files as NVCF assets (create, then PUT bytes)
//  2. Submit the function request referencing the uploaded assets
//  3. Poll the status endpoint while the job is pending (HTTP 202),
//     with exponential backoff between re-checks
//  4. Decode the terminal response: plain JSON, or a zip bundle of
//     named outputs (JSON fragments, an image, a video)
//
// Every invocation produces exactly one Result regardless of whether
// the remote job succeeded; ordinary job failures are data, not errors.
// Only local file errors, polling exhaustion, and transport failures
// surface as errors from Call.
package nvcf

import (
	"net"
	"net/http"
	"time"
)

const (
	// defaultBaseURL is the production NVCF API base URL.
	defaultBaseURL = "https://api.nvcf.nvidia.com/v2/nvcf"

	// defaultFunctionURL is the Cosmos Transfer function endpoint.
	defaultFunctionURL = "https://ai.api.nvidia.com/v1/cosmos/nvidia/cosmos-transfer"

	// Session timeouts. Long-running jobs hold the submission request
	// open for up to the server-side poll window, so the read timeout
	// is generous while the connect timeout stays tight.
	defaultConnectTimeout = 100 * time.Second
	defaultReadTimeout    = 600 * time.Second

	// Pending-poll backoff settings.
	defaultInitialPollDelay = time.Millisecond
	defaultMaxPollAttempts  = 10
	defaultMaxPollBackoff   = 32 * time.Second

	// pollSecondsHint asks the server to hold the request open rather
	// than return 202 immediately. Value in seconds.
	pollSecondsHint = "3600"

	// assetContentType is the content type NVCF expects for uploaded
	// asset bytes.
	assetContentType = "binary/octet-stream"
)

// Client invokes an NVCF function with uploaded assets and polls the
// invocation to completion. Each Call holds its own HTTP connections;
// a Client is safe for concurrent use, with every invocation running
// as one sequential pipeline.
type Client struct {
	httpClient  *http.Client
	token       string
	baseURL     string
	functionURL string

	initialDelay time.Duration
	maxAttempts  int
	maxBackoff   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the NVCF API base URL (asset creation and
// status polling). Mainly used to point tests at a local server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithFunctionURL overrides the function submission endpoint.
func WithFunctionURL(u string) Option {
	return func(c *Client) { c.functionURL = u }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithPollSettings overrides the pending-poll backoff schedule: the
// delay before the second status re-check, the maximum number of
// re-checks, and the cap on the doubled delay.
func WithPollSettings(initialDelay time.Duration, maxAttempts int, maxBackoff time.Duration) Option {
	return func(c *Client) {
		c.initialDelay = initialDelay
		c.maxAttempts = maxAttempts
		c.maxBackoff = maxBackoff
	}
}

// NewClient creates an NVCF client with the given NGC API token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: defaultConnectTimeout,
				}).DialContext,
				ResponseHeaderTimeout: defaultReadTimeout,
			},
		},
		token:        token,
		baseURL:      defaultBaseURL,
		functionURL:  defaultFunctionURL,
		initialDelay: defaultInitialPollDelay,
		maxAttempts:  defaultMaxPollAttempts,
		maxBackoff:   defaultMaxPollBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
