package spotify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/ewilliams-labs/encore/internal/core/ports"
	"github.com/ewilliams-labs/encore/internal/logging"
)

const (
	DefaultBaseURL  = "https://api.spotify.com/v1"
	DefaultTokenURL = "https://accounts.spotify.com/api/token"
)

// Config holds what the adapter needs to talk to the Spotify Web API.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	RedirectURI  string

	Timeout           time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	RequestsPerSecond float64
	Burst             int
	// MatchThreshold is the minimum search confidence for ResolveTrackID.
	MatchThreshold float64
}

// Client is an HTTP client for the Spotify adapter.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration
	threshold   float64
	log         zerolog.Logger
}

// compile-time interface assertions
var (
	_ ports.ListeningHistory = (*Client)(nil)
	_ ports.TrackResolver    = (*Client)(nil)
	_ ports.PlaylistWriter   = (*Client)(nil)
)

// Option tunes a Client built by NewClientWithBaseURL.
type Option func(*Client)

// WithRetry sets the attempt budget and base backoff of the retry loop.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.baseBackoff = backoff
	}
}

// WithRateLimit caps outgoing requests. rps <= 0 disables the limiter.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = newLimiter(rps, burst)
	}
}

// WithMatchThreshold overrides the search confidence threshold.
func WithMatchThreshold(threshold float64) Option {
	return func(c *Client) {
		if threshold > 0 {
			c.threshold = threshold
		}
	}
}

// NewClient builds a client that authenticates with a pre-issued refresh
// token. Access tokens are refreshed by the oauth2 token source as needed.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify adapter: client id, client secret and refresh token are required")
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}
	httpClient := oauth2.NewClient(ctx, oc.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken}))
	httpClient.Timeout = cfg.Timeout

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return NewClientWithBaseURL(httpClient, baseURL,
		WithRetry(cfg.MaxRetries, cfg.RetryBackoff),
		WithRateLimit(cfg.RequestsPerSecond, cfg.Burst),
		WithMatchThreshold(cfg.MatchThreshold),
	), nil
}

// NewClientWithBaseURL constructs a client around an already authenticated
// http.Client. Tests point it at an httptest server.
func NewClientWithBaseURL(httpClient *http.Client, baseURL string, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(baseURL, "/"),
		limiter:     newLimiter(0, 0),
		maxRetries:  defaultMaxRetries,
		baseBackoff: time.Duration(defaultBackoffMs) * time.Millisecond,
		threshold:   searchMatchThreshold,
		log:         logging.With().Str("component", "spotify").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
