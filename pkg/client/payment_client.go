package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Gateway result envelope values.
const (
	GatewayStatusSuccess = "success"
	GatewayStatusFailure = "failure"

	PaymentStatusSuccess = "SUCCESS"
	PaymentStatusFailure = "FAILURE"
)

// CheckoutResult is the normalized outcome of a hosted checkout session or
// payment lookup.
type CheckoutResult struct {
	Status          string `json:"status"`
	PaymentStatus   string `json:"paymentStatus"`
	PaymentID       string `json:"paymentId"`
	LastFourDigits  string `json:"lastFourDigits"`
	CardType        string `json:"cardType"`
	CardAssociation string `json:"cardAssociation"`
	Installment     int    `json:"installment"`
	PaidPrice       string `json:"paidPrice"`
	ErrorCode       string `json:"errorCode"`
	ErrorMessage    string `json:"errorMessage"`
}

// Succeeded reports a completed, successful payment.
func (r *CheckoutResult) Succeeded() bool {
	return r.Status == GatewayStatusSuccess && r.PaymentStatus == PaymentStatusSuccess
}

// Failed reports a definitively failed payment. Anything that is neither
// Succeeded nor Failed is still in flight (e.g. 3-D Secure pending).
func (r *CheckoutResult) Failed() bool {
	return r.Status == GatewayStatusFailure || r.PaymentStatus == PaymentStatusFailure
}

type InitializeRequest struct {
	ConversationID string `json:"conversationId"`
	OrderNumber    string `json:"basketId"`
	Price          string `json:"price"`
	PaidPrice      string `json:"paidPrice"`
	Currency       string `json:"currency"`
	CallbackURL    string `json:"callbackUrl"`
	BuyerEmail     string `json:"buyerEmail"`
	BuyerName      string `json:"buyerName"`
}

type InitializeResult struct {
	Status          string `json:"status"`
	Token           string `json:"token"`
	CheckoutFormURL string `json:"paymentPageUrl"`
	ErrorCode       string `json:"errorCode"`
	ErrorMessage    string `json:"errorMessage"`
}

// PaymentGateway is the narrow client to the hosted-checkout provider.
type PaymentGateway interface {
	InitializeCheckout(ctx context.Context, req *InitializeRequest) (*InitializeResult, error)
	RetrieveByToken(ctx context.Context, token, conversationID string) (*CheckoutResult, error)
	RetrieveByPaymentID(ctx context.Context, paymentID, conversationID string) (*CheckoutResult, error)
}

// GatewayClient talks HTTP/JSON to the checkout provider behind a circuit
// breaker with a per-call timeout, so a provider outage degrades to
// skipped orders instead of a hung run.
type GatewayClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	secretKey  string
	cb         *gobreaker.CircuitBreaker
	timeout    time.Duration
}

func NewGatewayClient(baseURL, apiKey, secretKey string, log *logrus.Logger) *GatewayClient {
	st := gobreaker.Settings{
		Name:        "PaymentGateway",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("CircuitBreaker[%s] state changed from %s to %s", name, from, to)
		},
	}

	return &GatewayClient{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		apiKey:     apiKey,
		secretKey:  secretKey,
		cb:         gobreaker.NewCircuitBreaker(st),
		timeout:    8 * time.Second,
	}
}

func (c *GatewayClient) InitializeCheckout(ctx context.Context, req *InitializeRequest) (*InitializeResult, error) {
	var out InitializeResult
	if err := c.post(ctx, "/checkoutform/initialize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *GatewayClient) RetrieveByToken(ctx context.Context, token, conversationID string) (*CheckoutResult, error) {
	req := map[string]string{"token": token, "conversationId": conversationID}
	var out CheckoutResult
	if err := c.post(ctx, "/checkoutform/detail", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *GatewayClient) RetrieveByPaymentID(ctx context.Context, paymentID, conversationID string) (*CheckoutResult, error) {
	req := map[string]string{"paymentId": paymentID, "conversationId": conversationID}
	var out CheckoutResult
	if err := c.post(ctx, "/payment/detail", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *GatewayClient) post(ctx context.Context, path string, in, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "marshal gateway request")
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-Api-Key", c.apiKey)
		httpReq.Header.Set("X-Api-Secret", c.secretKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return nil, errors.Errorf("gateway returned %d", resp.StatusCode)
		}
		return raw, nil
	})
	if err != nil {
		return errors.Wrapf(err, "gateway call %s", path)
	}

	if err := json.Unmarshal(res.([]byte), out); err != nil {
		return errors.Wrapf(err, "decode gateway response from %s", path)
	}
	return nil
}

// customerMessages maps provider decline codes to customer-facing text.
var customerMessages = map[string]string{
	"10051": "Kart limiti yetersiz. Lütfen başka bir kart deneyin.",
	"10005": "İşlem banka tarafından onaylanmadı.",
	"10012": "Geçersiz kart bilgisi. Lütfen kart bilgilerinizi kontrol edin.",
	"10041": "Kart kayıp/çalıntı bildirimli. Lütfen bankanızla iletişime geçin.",
	"10043": "Kartınız internet alışverişine kapalı.",
	"10084": "Güvenlik kodu (CVC) hatalı.",
	"10093": "Kartınız 3-D Secure doğrulamasını geçemedi.",
}

// CustomerMessage returns the customer-facing text for a gateway error
// code, falling back to a generic decline message.
func CustomerMessage(code string) string {
	if msg, ok := customerMessages[code]; ok {
		return msg
	}
	return "Ödeme alınamadı. Lütfen tekrar deneyin veya başka bir kart kullanın."
}
