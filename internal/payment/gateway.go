package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"vending-backend/config"
)

// SnapRequest is the create-transaction parameter sent to the gateway.
type SnapRequest struct {
	TransactionDetails TransactionDetails `json:"transaction_details"`
	ItemDetails        []ItemDetail       `json:"item_details"`
	CustomerDetails    CustomerDetails    `json:"customer_details"`
	EnabledPayments    []string           `json:"enabled_payments,omitempty"`
	Callbacks          *Callbacks         `json:"callbacks,omitempty"`
}

type TransactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type ItemDetail struct {
	ID       string `json:"id"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
	Name     string `json:"name"`
}

type CustomerDetails struct {
	FirstName string `json:"first_name"`
}

type Callbacks struct {
	Finish  string `json:"finish,omitempty"`
	Error   string `json:"error,omitempty"`
	Pending string `json:"pending,omitempty"`
}

// SnapResponse is the gateway's redirect token for a created transaction.
type SnapResponse struct {
	Token       string   `json:"token"`
	RedirectURL string   `json:"redirect_url"`
	ErrorMsgs   []string `json:"error_messages,omitempty"`
}

// StatusResponse is the gateway's view of one transaction.
type StatusResponse struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	StatusMessage     string `json:"status_message"`
}

// Gateway is the payment provider boundary. The production implementation
// talks to the Midtrans Snap and Core APIs; tests substitute a fake.
type Gateway interface {
	CreateTransaction(ctx context.Context, req SnapRequest) (*SnapResponse, error)
	Status(ctx context.Context, orderID string) (*StatusResponse, error)
	Cancel(ctx context.Context, orderID string) error
}

// httpGateway implements Gateway over the gateway's REST API.
type httpGateway struct {
	snapURL    string
	coreAPIURL string
	serverKey  string
	client     *http.Client
}

// NewGateway creates the REST-backed gateway client.
func NewGateway(cfg *config.PaymentConfig) Gateway {
	return &httpGateway{
		snapURL:    cfg.SnapURL,
		coreAPIURL: cfg.CoreAPIURL,
		serverKey:  cfg.ServerKey,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *httpGateway) CreateTransaction(ctx context.Context, req SnapRequest) (*SnapResponse, error) {
	var resp SnapResponse
	if err := g.do(ctx, http.MethodPost, g.snapURL+"/transactions", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.ErrorMsgs) > 0 {
		return nil, fmt.Errorf("gateway rejected transaction: %v", resp.ErrorMsgs)
	}
	return &resp, nil
}

func (g *httpGateway) Status(ctx context.Context, orderID string) (*StatusResponse, error) {
	var resp StatusResponse
	url := fmt.Sprintf("%s/%s/status", g.coreAPIURL, orderID)
	if err := g.do(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (g *httpGateway) Cancel(ctx context.Context, orderID string) error {
	url := fmt.Sprintf("%s/%s/cancel", g.coreAPIURL, orderID)
	return g.do(ctx, http.MethodPost, url, nil, nil)
}

func (g *httpGateway) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal gateway request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(g.serverKey+":")))

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}
	return nil
}
