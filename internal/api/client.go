package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Default endpoint paths.
const (
	DefaultLotsPath     = "/api/lots"
	DefaultLotPath      = "/api/lot"
	DefaultQuickBidPath = "/api/auctions/{auctionId}/quick-bid"
)

// Endpoints holds the paths of the lots API, relative to the base URL.
type Endpoints struct {
	Lots     string
	Lot      string
	QuickBid string // {auctionId} is substituted
}

// DefaultEndpoints returns the default endpoint paths.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Lots:     DefaultLotsPath,
		Lot:      DefaultLotPath,
		QuickBid: DefaultQuickBidPath,
	}
}

// Client provides access to the auction lots REST API.
type Client struct {
	baseURL    string
	apiKey     string
	endpoints  Endpoints
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration

	requestID func() string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		endpoints: DefaultEndpoints(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
		requestID:    uuid.NewString,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithEndpoints overrides the endpoint paths. Empty paths keep their default.
func WithEndpoints(e Endpoints) ClientOption {
	return func(c *Client) {
		if e.Lots != "" {
			c.endpoints.Lots = e.Lots
		}
		if e.Lot != "" {
			c.endpoints.Lot = e.Lot
		}
		if e.QuickBid != "" {
			c.endpoints.QuickBid = e.QuickBid
		}
	}
}
