// Package balance talks to the external funds ledger. Every stake debit and
// payout credit goes through this service; the trading engine never holds
// money itself.
package balance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/poolhouse/internal/domain"
)

// ClientConfig holds connection parameters for the balance service.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is an HTTP domain.BalanceService. The ref accompanying each
// request lets the remote side deduplicate retried mutations.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

var _ domain.BalanceService = (*Client)(nil)

// NewClient creates a balance service client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		http.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &Client{
		http:   http,
		logger: logger.With(slog.String("component", "balance")),
	}
}

type mutationRequest struct {
	UserID string  `json:"userId"`
	Amount float64 `json:"amount"`
	Ref    string  `json:"ref"`
}

type mutationResponse struct {
	Balance float64 `json:"balance"`
	Error   string  `json:"error,omitempty"`
}

// Debit withdraws amount from a user's balance.
func (c *Client) Debit(ctx context.Context, userID string, amount float64, ref string) error {
	return c.mutate(ctx, "/v1/debit", userID, amount, ref)
}

// Credit deposits amount into a user's balance.
func (c *Client) Credit(ctx context.Context, userID string, amount float64, ref string) error {
	return c.mutate(ctx, "/v1/credit", userID, amount, ref)
}

func (c *Client) mutate(ctx context.Context, path, userID string, amount float64, ref string) error {
	var out mutationResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(mutationRequest{UserID: userID, Amount: amount, Ref: ref}).
		SetResult(&out).
		SetError(&out).
		Post(path)
	if err != nil {
		return fmt.Errorf("balance: %s user %s: %w", path, userID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("balance: %s user %s: status %d: %s", path, userID, resp.StatusCode(), out.Error)
	}

	c.logger.DebugContext(ctx, "balance mutated",
		slog.String("path", path),
		slog.String("user_id", userID),
		slog.Float64("amount", amount),
		slog.String("ref", ref),
	)
	return nil
}
