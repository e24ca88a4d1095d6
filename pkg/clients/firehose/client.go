// Package firehose is the client for the remote filtered-stream provider:
// rule CRUD, the long-lived filtered stream itself, and bulk post lookup
// with engagement counts.
package firehose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sharmina-lina/livetweets-main/pkg/clients"
	"github.com/sharmina-lina/livetweets-main/pkg/logging"
)

const (
	rulesPath  = "/2/tweets/search/stream/rules"
	streamPath = "/2/tweets/search/stream"
	postsPath  = "/2/tweets"
)

// Client represents a filtered-stream provider API client
type Client struct {
	baseURL     string
	bearerToken string
	httpClient  *http.Client
	// streamClient has no overall timeout; the filtered stream is a
	// long-lived response that outlives any sane request deadline.
	streamClient *http.Client
	logger       logging.Logger
	retryConfig  clients.RetryConfig
}

// Config represents the configuration for the provider client
type Config struct {
	BaseURL     string
	BearerToken string
	Timeout     time.Duration
	Logger      logging.Logger
	RetryConfig *clients.RetryConfig
}

// NewClient creates a new provider API client
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	retryConfig := clients.DefaultRetryConfig()
	if config.RetryConfig != nil {
		retryConfig = *config.RetryConfig
	}

	transport := clients.DefaultTransport()

	return &Client{
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		bearerToken: config.BearerToken,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		streamClient: &http.Client{
			Transport: transport,
		},
		logger:      config.Logger,
		retryConfig: retryConfig,
	}
}

// ListRules fetches the current rule set from the provider
func (c *Client) ListRules(ctx context.Context) ([]Rule, error) {
	req, err := c.newRequest(ctx, http.MethodGet, rulesPath, nil)
	if err != nil {
		return nil, err
	}

	var rules RulesResponse
	if err := c.do(ctx, req, &rules); err != nil {
		return nil, err
	}

	return rules.Data, nil
}

// AddRules submits a batch of new rules and returns the created rules
func (c *Client) AddRules(ctx context.Context, defs []RuleDefinition) ([]Rule, error) {
	body := struct {
		Add []RuleDefinition `json:"add"`
	}{Add: defs}

	req, err := c.newRequest(ctx, http.MethodPost, rulesPath, body)
	if err != nil {
		return nil, err
	}

	var rules RulesResponse
	if err := c.do(ctx, req, &rules); err != nil {
		return nil, err
	}

	return rules.Data, nil
}

// DeleteRules deletes rules by id
func (c *Client) DeleteRules(ctx context.Context, ids []string) error {
	body := struct {
		Delete struct {
			IDs []string `json:"ids"`
		} `json:"delete"`
	}{}
	body.Delete.IDs = ids

	req, err := c.newRequest(ctx, http.MethodPost, rulesPath, body)
	if err != nil {
		return err
	}

	var rules RulesResponse
	return c.do(ctx, req, &rules)
}

// GetPosts bulk-fetches posts by id with their current engagement counts
func (c *Client) GetPosts(ctx context.Context, ids []string) ([]Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("tweet.fields", "public_metrics,referenced_tweets,created_at")

	req, err := c.newRequest(ctx, http.MethodGet, postsPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var posts PostsResponse
	if err := c.do(ctx, req, &posts); err != nil {
		return nil, err
	}

	if len(posts.Errors) > 0 && c.logger != nil {
		c.logger.WithField("error_count", len(posts.Errors)).Warn("Post lookup returned partial errors")
	}

	return posts.Data, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

func (c *Client) do(ctx context.Context, req *http.Request, out interface{}) error {
	resp, err := clients.DoWithRetry(ctx, c.httpClient, req, c.retryConfig)
	if err != nil {
		return fmt.Errorf("failed to call provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeProviderError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// decodeProviderError turns a non-2xx response into a ProviderError
// carrying whatever payload the provider sent.
func decodeProviderError(resp *http.Response) error {
	provErr := &ProviderError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil && len(body) > 0 {
		_ = json.Unmarshal(body, provErr)
		if provErr.Title == "" && provErr.Detail == "" {
			provErr.Detail = strings.TrimSpace(string(body))
		}
	}

	return provErr
}
