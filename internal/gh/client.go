// Package gh provides a GraphQL client for the GitHub Projects v2 API.
// It implements a deep module interface - simple methods hiding complex GraphQL queries.
package gh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/machinebox/graphql"

	"github.com/governify/zh2gh/internal/auth"
	"github.com/governify/zh2gh/internal/logging"
)

// DefaultEndpoint is the public GitHub GraphQL endpoint.
const DefaultEndpoint = "https://api.github.com/graphql"

// Client is a GitHub GraphQL API client for Projects v2.
// Every request is authenticated with the next key of the pool.
type Client struct {
	gql      *graphql.Client
	keys     *auth.KeyPool
	pageSize int
	logger   *slog.Logger
}

// Options configures a Client.
type Options struct {
	// Endpoint defaults to DefaultEndpoint.
	Endpoint string

	// Keys is required.
	Keys *auth.KeyPool

	// PageSize is the `first:` argument for paginated connections. Defaults to 100.
	PageSize int

	// Timeout bounds a single HTTP round trip. Defaults to 30s.
	Timeout time.Duration

	// Transport is the underlying round tripper. Defaults to http.DefaultTransport.
	Transport http.RoundTripper

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// New creates a new GitHub GraphQL client.
func New(opts Options) (*Client, error) {
	if opts.Keys == nil {
		return nil, errors.New("gh: key pool is required")
	}
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	httpClient := &http.Client{
		Timeout:   opts.Timeout,
		Transport: &captureTransport{next: opts.Transport},
	}

	return &Client{
		gql:      graphql.NewClient(opts.Endpoint, graphql.WithHTTPClient(httpClient)),
		keys:     opts.Keys,
		pageSize: opts.PageSize,
		logger:   opts.Logger,
	}, nil
}

// makeRequest executes a GraphQL request with the next API key.
//
// GraphQL errors reported by GitHub come back as *APIError carrying every
// error with its type. Anything else (network, auth, non-200 status) is
// wrapped in ErrTransport. The underlying message is kept but never the key.
func (c *Client) makeRequest(ctx context.Context, req *graphql.Request, resp interface{}) error {
	key, position := c.keys.Next()
	logging.FromContext(ctx, c.logger).Debug("github request", "key", position, "keys", c.keys.Len())

	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Accept", "application/vnd.github.starfox-preview+json")

	sink := &responseSink{}
	err := c.gql.Run(withSink(ctx, sink), req, resp)

	if len(sink.errors) > 0 {
		return &APIError{Errors: sink.errors}
	}
	if sink.status != 0 && sink.status != http.StatusOK {
		return fmt.Errorf("%w: github returned status %d", ErrTransport, sink.status)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}
