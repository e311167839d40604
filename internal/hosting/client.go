package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hostweaveapp/hostweave/internal/observability"
)

const requestTimeout = 30 * time.Second

// Client talks to the hosting control panel over JSON with bearer auth.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: observability.NewHTTPClient(requestTimeout),
	}
}

type createSitePayload struct {
	Plan       string `json:"plan"`
	Domain     string `json:"domain"`
	AdminEmail string `json:"admin_email"`
}

type siteResponse struct {
	AccountID     string `json:"account_id"`
	AdminPassword string `json:"admin_password"`
	Status        string `json:"status"`
}

// CreateSite provisions a new account and returns the panel-assigned id
// together with the one-time admin password.
func (c *Client) CreateSite(ctx context.Context, req CreateSiteRequest) (*Site, error) {
	if req.Plan == "" || req.Domain == "" {
		return nil, fmt.Errorf("plan and domain are required")
	}

	body, err := c.do(ctx, http.MethodPost, "/sites", createSitePayload{
		Plan:       req.Plan,
		Domain:     req.Domain,
		AdminEmail: req.AdminEmail,
	})
	if err != nil {
		return nil, err
	}

	var site siteResponse
	if err := json.Unmarshal(body, &site); err != nil {
		return nil, fmt.Errorf("failed to parse create site response: %w", err)
	}
	if site.AccountID == "" {
		return nil, fmt.Errorf("hosting panel returned no account id")
	}

	return &Site{
		AccountID:     site.AccountID,
		AdminPassword: site.AdminPassword,
		Status:        site.Status,
	}, nil
}

func (c *Client) SuspendSite(ctx context.Context, accountID string) error {
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	_, err := c.do(ctx, http.MethodPost, "/sites/"+accountID+"/suspend", nil)
	return err
}

func (c *Client) DeleteSite(ctx context.Context, accountID string) error {
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	_, err := c.do(ctx, http.MethodDelete, "/sites/"+accountID, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	body, readErr := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("failed to read hosting panel response: %w", readErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close hosting panel response body: %w", closeErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
