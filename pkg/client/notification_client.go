package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// OrderStatusUpdate is the payload of a status email.
type OrderStatusUpdate struct {
	CustomerEmail   string `json:"customerEmail"`
	CustomerName    string `json:"customerName"`
	OrderNumber     string `json:"orderNumber"`
	Status          string `json:"status"`
	DeliveryDate    string `json:"deliveryDate"`
	DeliveryTime    string `json:"deliveryTime"`
	DeliveryAddress string `json:"deliveryAddress"`
	District        string `json:"district"`
	RecipientName   string `json:"recipientName"`
	RecipientPhone  string `json:"recipientPhone"`
}

// OrderConfirmation is the payload of the post-payment confirmation email.
type OrderConfirmation struct {
	CustomerEmail string          `json:"customerEmail"`
	CustomerName  string          `json:"customerName"`
	OrderNumber   string          `json:"orderNumber"`
	DeliveryDate  string          `json:"deliveryDate"`
	Items         json.RawMessage `json:"items,omitempty"`
}

// NotificationSender is the external mailer capability. SendOrderStatusUpdate
// reports whether the mail was actually sent; SendOrderConfirmation is
// fire-and-forget.
type NotificationSender interface {
	SendOrderStatusUpdate(ctx context.Context, update *OrderStatusUpdate) (bool, error)
	SendOrderConfirmation(ctx context.Context, confirmation *OrderConfirmation) error
}

// MailerClient posts to the internal notification service.
type MailerClient struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
}

func NewMailerClient(baseURL string) *MailerClient {
	return &MailerClient{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		timeout:    5 * time.Second,
	}
}

func (c *MailerClient) SendOrderStatusUpdate(ctx context.Context, update *OrderStatusUpdate) (bool, error) {
	var out struct {
		Sent bool `json:"sent"`
	}
	if err := c.post(ctx, "/notifications/order-status", update, &out); err != nil {
		return false, err
	}
	return out.Sent, nil
}

func (c *MailerClient) SendOrderConfirmation(ctx context.Context, confirmation *OrderConfirmation) error {
	return c.post(ctx, "/notifications/order-confirmation", confirmation, nil)
}

func (c *MailerClient) post(ctx context.Context, path string, in, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "marshal notification request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build notification request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "notification call %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.Errorf("notification service returned %d for %s", resp.StatusCode, path)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "decode notification response from %s", path)
		}
	}
	return nil
}
