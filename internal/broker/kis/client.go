package kis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"quant-trader/internal/api"
)

// Credentials are the KIS open-API app key pair, read from the environment.
type Credentials struct {
	AppKey    string
	AppSecret string
}

// CredentialsFromEnv reads KIS_APP_KEY and KIS_APP_SECRET.
func CredentialsFromEnv() (Credentials, error) {
	creds := Credentials{
		AppKey:    os.Getenv("KIS_APP_KEY"),
		AppSecret: os.Getenv("KIS_APP_SECRET"),
	}
	if creds.AppKey == "" || creds.AppSecret == "" {
		return Credentials{}, fmt.Errorf("KIS_APP_KEY and KIS_APP_SECRET must be set")
	}
	return creds, nil
}

// Client wraps the KIS REST endpoints the trader needs: token issuance,
// websocket approval keys and cash orders.
type Client struct {
	http  *api.Client
	creds Credentials

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(baseURL string, creds Credentials) *Client {
	return &Client{
		http: api.NewClient(
			api.WithBaseURL(baseURL),
			api.WithTimeout(10*time.Second),
			api.WithLogging(true),
		),
		creds: creds,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// AccessToken returns a cached OAuth token, refreshing it when it is within
// a minute of expiry.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.accessToken, nil
	}

	// Token issuance is idempotent, so transient failures are retried.
	req := api.NewRequest("POST", "/oauth2/tokenP").
		WithContext(ctx).
		WithBody(map[string]string{
			"grant_type": "client_credentials",
			"appkey":     c.creds.AppKey,
			"appsecret":  c.creds.AppSecret,
		})
	resp, err := c.http.DoWithRetry(req, api.DefaultRetryConfig())
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}

	var token tokenResponse
	if err := resp.ParseJSON(&token); err != nil {
		return "", err
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response: %s", resp.String())
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

type approvalResponse struct {
	ApprovalKey string `json:"approval_key"`
}

// ApprovalKey issues the one-time key the realtime websocket requires.
func (c *Client) ApprovalKey(ctx context.Context) (string, error) {
	resp, err := c.http.POST(ctx, "/oauth2/Approval", map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.creds.AppKey,
		"secretkey":  c.creds.AppSecret,
	})
	if err != nil {
		return "", fmt.Errorf("issue approval key: %w", err)
	}

	var approval approvalResponse
	if err := resp.ParseJSON(&approval); err != nil {
		return "", err
	}
	if approval.ApprovalKey == "" {
		return "", fmt.Errorf("empty approval key in response: %s", resp.String())
	}
	return approval.ApprovalKey, nil
}
