package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/printhaus/printhaus-api/config"
)

// Gateway-reported payment states.
const (
	GatewayStatusPaid    = "paid"
	GatewayStatusPending = "pending"
	GatewayStatusFailed  = "failed"
)

// GatewayOrderStatus is the authoritative answer of the external payment
// authority for one gateway order.
type GatewayOrderStatus struct {
	Status    string `json:"status"` // paid, pending, failed
	PaymentID string `json:"payment_id,omitempty"`
}

// PaymentGatewayInterface defines the lookup contract against the external
// payment authority. Implementations must bound the call with a timeout; an
// error means "no answer, try later", never "the payment failed".
type PaymentGatewayInterface interface {
	LookupOrderStatus(ctx context.Context, gatewayOrderID string) (*GatewayOrderStatus, error)
}

// PaymentGatewayService talks to the payment authority's order-status
// endpoint over HTTP.
type PaymentGatewayService struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewPaymentGatewayService creates a gateway client from configuration.
// The HTTP timeout is deliberately shorter than any reconciliation period so
// a hung lookup cannot starve the next pass.
func NewPaymentGatewayService(cfg *config.Config) *PaymentGatewayService {
	return &PaymentGatewayService{
		baseURL: strings.TrimRight(cfg.PaymentGatewayURL, "/"),
		apiKey:  cfg.PaymentGatewayAPIKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// LookupOrderStatus fetches the authoritative status of a gateway order.
func (s *PaymentGatewayService) LookupOrderStatus(ctx context.Context, gatewayOrderID string) (*GatewayOrderStatus, error) {
	url := fmt.Sprintf("%s/v1/orders/%s", s.baseURL, gatewayOrderID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway request: %w", err)
	}
	req.Header.Add("Authorization", "Bearer "+s.apiKey)
	req.Header.Add("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway lookup failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d for order %s", resp.StatusCode, gatewayOrderID)
	}

	var status GatewayOrderStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	switch status.Status {
	case GatewayStatusPaid, GatewayStatusPending, GatewayStatusFailed:
	default:
		return nil, fmt.Errorf("gateway returned unknown status %q for order %s", status.Status, gatewayOrderID)
	}

	return &status, nil
}
