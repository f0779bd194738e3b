package payments

import (
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/auth"
)

// PaymentSignature computes the checkout signature Razorpay hands the client after a
// successful payment: hex(HMAC-SHA256(orderID + "|" + paymentID, keySecret)).
func PaymentSignature(gatewayOrderID, gatewayPaymentID, keySecret string) string {
	return auth.ComputeSignature([]byte(keySecret), []byte(gatewayOrderID+"|"+gatewayPaymentID))
}

// VerifyPaymentSignature reports whether signature matches the checkout signature for the pair.
func VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature, keySecret string) bool {
	if keySecret == "" || gatewayOrderID == "" || gatewayPaymentID == "" {
		return false
	}
	return auth.VerifySignature([]byte(keySecret), []byte(gatewayOrderID+"|"+gatewayPaymentID), signature)
}
