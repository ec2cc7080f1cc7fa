package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Resolver reports the final outcome of an authorization back to the issuing
// network. Both calls are idempotent on the network side, so a repeated
// resolution with the same outcome is safe.
type Resolver interface {
	Approve(ctx context.Context, authorizationID string) error
	Decline(ctx context.Context, authorizationID, reason string) error
}

type networkClient struct {
	base string
	http *http.Client
}

// NewResolver returns an HTTP client for the issuing network at base.
func NewResolver(base string, hc *http.Client) Resolver {
	if hc == nil {
		hc = &http.Client{}
	}
	return &networkClient{base: strings.TrimRight(base, "/"), http: hc}
}

func (c *networkClient) Approve(ctx context.Context, authorizationID string) error {
	return c.resolve(ctx, authorizationID, "approve", "")
}

func (c *networkClient) Decline(ctx context.Context, authorizationID, reason string) error {
	return c.resolve(ctx, authorizationID, "decline", reason)
}

func (c *networkClient) resolve(ctx context.Context, authorizationID, action, reason string) error {
	var body io.Reader
	if reason != "" {
		b, err := json.Marshal(struct {
			Reason string `json:"reason"`
		}{reason})
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", action, err)
		}
		body = bytes.NewReader(b)
	}

	target := fmt.Sprintf("%s/authorizations/%s/%s", c.base, url.PathEscape(authorizationID), action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return fmt.Errorf("building %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s authorization: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s status=%d body=%s", action, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
