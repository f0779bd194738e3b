package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/payments"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/httpx"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/requestctx"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/services"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/shipping"
)

// Machine readable error codes rendered in the envelope.
const (
	codeValidation            = "VALIDATION_ERROR"
	codeProductUnavailable    = "PRODUCT_UNAVAILABLE"
	codeVariantUnavailable    = "VARIANT_UNAVAILABLE"
	codeInsufficientStock     = "INSUFFICIENT_STOCK"
	codePriceMismatch         = "PRICE_MISMATCH"
	codeInvalidDiscount       = "INVALID_DISCOUNT"
	codeTotalMismatch         = "TOTAL_MISMATCH"
	codeOrderNotFound         = "ORDER_NOT_FOUND"
	codeCannotCancel          = "CANNOT_CANCEL_ORDER"
	codeInvalidTransition     = "INVALID_STATUS_TRANSITION"
	codeOrderConflict         = "ORDER_CONFLICT"
	codeCouponNotFound        = "COUPON_NOT_FOUND"
	codeUsageLimitReached     = "USAGE_LIMIT_REACHED"
	codeAlreadyUsed           = "ALREADY_USED"
	codeNotApplicable         = "NOT_APPLICABLE"
	codeInvalidCoupon         = "INVALID_COUPON"
	codeDuplicateApplication  = "DUPLICATE_APPLICATION"
	codeCouponInUse           = "COUPON_IN_USE"
	codeCouponExists          = "COUPON_EXISTS"
	codeAmountMismatch        = "AMOUNT_MISMATCH"
	codeAlreadyPaid           = "ALREADY_PAID"
	codeInvalidSignature      = "INVALID_SIGNATURE"
	codeNotRefundable         = "NOT_REFUNDABLE"
	codePaymentGateway        = "PAYMENT_GATEWAY_ERROR"
	codeShipmentExists        = "SHIPMENT_ALREADY_EXISTS"
	codeShipmentNotFound      = "SHIPMENT_NOT_FOUND"
	codeShipmentNotCancelable = "SHIPMENT_NOT_CANCELLABLE"
	codeOrderNotPaid          = "ORDER_NOT_PAID"
	codeShippingProvider      = "SHIPPING_PROVIDER_ERROR"
	codeCartItemNotFound      = "CART_ITEM_NOT_FOUND"
	codeCartFull              = "CART_FULL"
	codeRateLimited           = "RATE_LIMITED"
	codeUnauthenticated       = "UNAUTHENTICATED"
	codeForbidden             = "FORBIDDEN"
	codeServiceUnavailable    = "SERVICE_UNAVAILABLE"
	codeInternal              = "INTERNAL_ERROR"
)

type errorMapping struct {
	target error
	code   string
	status int
}

// errorTable is checked in order; the first sentinel matched by errors.Is wins.
var errorTable = []errorMapping{
	{services.ErrOrderProductUnavailable, codeProductUnavailable, http.StatusBadRequest},
	{services.ErrOrderVariantUnavailable, codeVariantUnavailable, http.StatusBadRequest},
	{services.ErrOrderInsufficientStock, codeInsufficientStock, http.StatusBadRequest},
	{services.ErrOrderPriceMismatch, codePriceMismatch, http.StatusBadRequest},
	{services.ErrOrderInvalidDiscount, codeInvalidDiscount, http.StatusBadRequest},
	{services.ErrOrderTotalMismatch, codeTotalMismatch, http.StatusBadRequest},
	{services.ErrOrderNotFound, codeOrderNotFound, http.StatusNotFound},
	{services.ErrOrderCannotCancel, codeCannotCancel, http.StatusBadRequest},
	{services.ErrOrderInvalidTransition, codeInvalidTransition, http.StatusConflict},
	{services.ErrOrderConflict, codeOrderConflict, http.StatusConflict},
	{services.ErrOrderInvalidInput, codeValidation, http.StatusBadRequest},

	{services.ErrCouponNotFound, codeCouponNotFound, http.StatusNotFound},
	{services.ErrCouponUsageLimitReached, codeUsageLimitReached, http.StatusBadRequest},
	{services.ErrCouponAlreadyUsed, codeAlreadyUsed, http.StatusBadRequest},
	{services.ErrCouponNotApplicable, codeNotApplicable, http.StatusBadRequest},
	{services.ErrCouponInvalid, codeInvalidCoupon, http.StatusBadRequest},
	{services.ErrCouponDuplicateApplication, codeDuplicateApplication, http.StatusBadRequest},
	{services.ErrCouponInUse, codeCouponInUse, http.StatusConflict},
	{services.ErrCouponCodeTaken, codeCouponExists, http.StatusConflict},
	{services.ErrCouponInvalidInput, codeValidation, http.StatusBadRequest},
	{domain.ErrCouponDefinition, codeValidation, http.StatusBadRequest},

	{services.ErrPaymentAmountMismatch, codeAmountMismatch, http.StatusBadRequest},
	{services.ErrPaymentAlreadyPaid, codeAlreadyPaid, http.StatusBadRequest},
	{services.ErrPaymentInvalidSignature, codeInvalidSignature, http.StatusBadRequest},
	{services.ErrPaymentOrderMismatch, codeInvalidSignature, http.StatusBadRequest},
	{services.ErrPaymentNotRefundable, codeNotRefundable, http.StatusBadRequest},
	{services.ErrPaymentInvalidInput, codeValidation, http.StatusBadRequest},
	{payments.ErrPaymentGateway, codePaymentGateway, http.StatusBadGateway},

	{services.ErrShipmentAlreadyExists, codeShipmentExists, http.StatusBadRequest},
	{services.ErrShipmentOrderNotPaid, codeOrderNotPaid, http.StatusBadRequest},
	{services.ErrShipmentNotFound, codeShipmentNotFound, http.StatusNotFound},
	{services.ErrShipmentNotCancellable, codeShipmentNotCancelable, http.StatusBadRequest},
	{services.ErrShipmentInvalidInput, codeValidation, http.StatusBadRequest},
	{shipping.ErrShippingProvider, codeShippingProvider, http.StatusBadGateway},

	{services.ErrCartItemNotFound, codeCartItemNotFound, http.StatusNotFound},
	{services.ErrCartProductUnavailable, codeProductUnavailable, http.StatusBadRequest},
	{services.ErrCartFull, codeCartFull, http.StatusBadRequest},
	{services.ErrCartInvalidInput, codeValidation, http.StatusBadRequest},

	{services.ErrRepositoryUnavailable, codeServiceUnavailable, http.StatusServiceUnavailable},
}

// writeServiceError renders err through the envelope table. Unknown errors are logged and
// answered with a generic 500 so internals never leak to clients.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	for _, m := range errorTable {
		if !errors.Is(err, m.target) {
			continue
		}
		message := clientMessage(err, m)
		herr := httpx.NewError(m.code, message, m.status)
		var verr *services.OrderValidationError
		if errors.As(err, &verr) {
			herr = herr.WithDetails(validationDetails(verr))
		}
		if m.status >= http.StatusInternalServerError {
			requestctx.Logger(ctx).Warn("request failed", zap.String("code", m.code), zap.Error(err))
		}
		httpx.WriteError(ctx, w, herr)
		return
	}
	requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError(codeInternal, "internal server error", http.StatusInternalServerError))
}

func clientMessage(err error, m errorMapping) string {
	switch m.code {
	case codePaymentGateway:
		return "payment gateway request failed"
	case codeShippingProvider:
		return "shipping provider request failed"
	case codeServiceUnavailable:
		return "service temporarily unavailable"
	}
	var verr *services.OrderValidationError
	if errors.As(err, &verr) && verr.Message != "" {
		return verr.Message
	}
	msg := err.Error()
	prefix := m.target.Error()
	if rest, ok := strings.CutPrefix(msg, prefix+": "); ok && rest != "" {
		return rest
	}
	return msg
}

func validationDetails(verr *services.OrderValidationError) map[string]any {
	details := make(map[string]any)
	if verr.ProductID != "" {
		details["product_id"] = verr.ProductID
	}
	if verr.Size != "" {
		details["size"] = verr.Size
	}
	if verr.Kind == services.OrderValidationInsufficientStock {
		details["requested"] = verr.Requested
		details["available"] = verr.Available
	}
	if verr.Expected != nil {
		details["expected"] = amount(*verr.Expected)
	}
	if verr.Actual != nil {
		details["actual"] = amount(*verr.Actual)
	}
	return details
}
