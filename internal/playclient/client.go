// Package playclient calls the purchase-verification authority (Google
// Play Developer API) over HTTP. Only its request/response contract is
// used here; credentials and quota are the deployment's concern.
package playclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Purchase states reported by the authority.
const (
	StatePurchased = 0
	StateCanceled  = 1
	StatePending   = 2
)

// Verifier is what the purchase claim processor depends on.
type Verifier interface {
	// VerifyProduct returns the purchase state for (productID, token).
	// A transport or authority failure is an error; a non-purchased
	// state is not.
	VerifyProduct(ctx context.Context, productID, token string) (int, error)
}

// Client verifies product purchases against the androidpublisher v3 API.
type Client struct {
	baseURL     string
	packageName string
	authToken   string
	httpClient  *http.Client
}

// Config wires the client. BaseURL defaults to the public endpoint;
// tests point it at a fake server.
type Config struct {
	BaseURL     string
	PackageName string
	AuthToken   string
	HTTPClient  *http.Client
}

// New constructs a verification client.
func New(cfg Config) (*Client, error) {
	packageName := strings.TrimSpace(cfg.PackageName)
	if packageName == "" {
		return nil, fmt.Errorf("play client requires packageName")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://androidpublisher.googleapis.com"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:     baseURL,
		packageName: packageName,
		authToken:   cfg.AuthToken,
		httpClient:  httpClient,
	}, nil
}

type productPurchase struct {
	PurchaseState *int   `json:"purchaseState"`
	OrderID       string `json:"orderId"`
}

// VerifyProduct fetches the purchase resource and returns its state.
func (c *Client) VerifyProduct(ctx context.Context, productID, token string) (int, error) {
	endpoint := fmt.Sprintf(
		"%s/androidpublisher/v3/applications/%s/purchases/products/%s/tokens/%s",
		c.baseURL,
		url.PathEscape(c.packageName),
		url.PathEscape(productID),
		url.PathEscape(token),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build verify request: %w", err)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("call purchase authority: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("read authority response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("purchase authority status %d", resp.StatusCode)
	}
	var purchase productPurchase
	if err := json.Unmarshal(body, &purchase); err != nil {
		return 0, fmt.Errorf("decode authority response: %w", err)
	}
	if purchase.PurchaseState == nil {
		return 0, fmt.Errorf("authority response missing purchaseState")
	}
	return *purchase.PurchaseState, nil
}
