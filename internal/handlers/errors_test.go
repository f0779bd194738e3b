package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/payments"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/services"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/shipping"
)

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	errObj, _ := decodeResponse(t, rr)["error"].(map[string]any)
	msg, _ := errObj["message"].(string)
	return msg
}

func TestWriteServiceError(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{
			name:    "prefix stripped",
			err:     fmt.Errorf("%w: code SAVE10", services.ErrCouponNotFound),
			status:  http.StatusNotFound,
			code:    codeCouponNotFound,
			message: "code SAVE10",
		},
		{
			name:    "wrapped twice",
			err:     fmt.Errorf("apply: %w", fmt.Errorf("%w: order ord-1", services.ErrOrderNotFound)),
			status:  http.StatusNotFound,
			code:    codeOrderNotFound,
			message: "apply: " + services.ErrOrderNotFound.Error() + ": order ord-1",
		},
		{
			name:    "shipment not cancellable",
			err:     fmt.Errorf("%w: shipment is delivered", services.ErrShipmentNotCancellable),
			status:  http.StatusBadRequest,
			code:    codeShipmentNotCancelable,
			message: "shipment is delivered",
		},
		{
			name:    "gateway hidden",
			err:     &payments.GatewayError{Provider: payments.ProviderRazorpay, Op: "orders.create", StatusCode: 500, Description: "secret internals"},
			status:  http.StatusBadGateway,
			code:    codePaymentGateway,
			message: "payment gateway request failed",
		},
		{
			name:    "shipping hidden",
			err:     &shipping.AggregatorError{Provider: shipping.ProviderShiprocket, Op: "login", StatusCode: 401, Message: "bad password"},
			status:  http.StatusBadGateway,
			code:    codeShippingProvider,
			message: "shipping provider request failed",
		},
		{
			name:    "repository down",
			err:     fmt.Errorf("load order: %w", services.ErrRepositoryUnavailable),
			status:  http.StatusServiceUnavailable,
			code:    codeServiceUnavailable,
			message: "service temporarily unavailable",
		},
		{
			name:    "unknown",
			err:     errors.New("dial tcp 10.0.0.3:5432: connection refused"),
			status:  http.StatusInternalServerError,
			code:    codeInternal,
			message: "internal server error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeServiceError(context.Background(), rr, tc.err)

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if code := errorCode(t, rr); code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, code)
			}
			if msg := errorMessage(t, rr); msg != tc.message {
				t.Fatalf("expected message %q, got %q", tc.message, msg)
			}
		})
	}
}

func TestWriteServiceErrorValidationDetails(t *testing.T) {
	err := &services.OrderValidationError{
		Kind:      services.OrderValidationInsufficientStock,
		ProductID: "prod-1",
		Size:      "L",
		Requested: 5,
		Available: 2,
		Message:   "only 2 left",
	}

	rr := httptest.NewRecorder()
	writeServiceError(context.Background(), rr, err)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	errObj, _ := decodeResponse(t, rr)["error"].(map[string]any)
	if errObj["code"] != codeInsufficientStock || errObj["message"] != "only 2 left" {
		t.Fatalf("unexpected error %v", errObj)
	}
	details, _ := errObj["details"].(map[string]any)
	if details["product_id"] != "prod-1" || details["size"] != "L" || details["requested"] != 5.0 || details["available"] != 2.0 {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestWriteServiceErrorNil(t *testing.T) {
	rr := httptest.NewRecorder()
	writeServiceError(context.Background(), rr, nil)
	if rr.Body.Len() != 0 {
		t.Fatalf("expected nothing written, got %q", rr.Body.String())
	}
}
