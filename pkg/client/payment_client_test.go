package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

func TestRetrieveByToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/checkoutform/detail" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "key-1" {
			t.Errorf("missing api key header")
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["token"] != "tok-abc" || req["conversationId"] == "" {
			t.Errorf("unexpected request body: %v", req)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":          "success",
			"paymentStatus":   "SUCCESS",
			"paymentId":       "pay-1",
			"lastFourDigits":  "4242",
			"cardAssociation": "MASTER_CARD",
			"installment":     1,
			"paidPrice":       "199.90",
		})
	}))
	defer srv.Close()

	c := NewGatewayClient(srv.URL, "key-1", "secret-1", testLogger())
	res, err := c.RetrieveByToken(context.Background(), "tok-abc", "conv-1")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if !res.Succeeded() {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.PaymentID != "pay-1" || res.LastFourDigits != "4242" {
		t.Fatalf("fields not mapped: %+v", res)
	}
}

func TestRetrieveByTokenFailureResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":       "failure",
			"errorCode":    "10051",
			"errorMessage": "Insufficient funds",
		})
	}))
	defer srv.Close()

	c := NewGatewayClient(srv.URL, "key-1", "secret-1", testLogger())
	res, err := c.RetrieveByToken(context.Background(), "tok-abc", "conv-1")
	if err != nil {
		t.Fatalf("a declined payment is a result, not an error: %v", err)
	}
	if !res.Failed() || res.ErrorCode != "10051" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestGatewayServerErrorSurfacesAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewGatewayClient(srv.URL, "key-1", "secret-1", testLogger())
	if _, err := c.RetrieveByToken(context.Background(), "tok-abc", "conv-1"); err == nil {
		t.Fatal("expected error on 5xx response")
	}
}

func TestCustomerMessage(t *testing.T) {
	if CustomerMessage("10051") == CustomerMessage("unknown-code") {
		t.Fatal("known code must map to a specific message")
	}
	if CustomerMessage("unknown-code") == "" {
		t.Fatal("unknown code must fall back to a generic message")
	}
}
