package storage

import (
	"fmt"
	"strings"
	"time"
)

// Purpose selects an object layout.
type Purpose string

const (
	// PurposeWebhookPayload stores raw vendor callbacks for audit and replay.
	PurposeWebhookPayload Purpose = "webhook-payload"
	// PurposeOrderSnapshot stores the order document as it was when a refund or cancellation happened.
	PurposeOrderSnapshot Purpose = "order-snapshot"
)

// PathParams carry the identifiers a layout needs.
type PathParams struct {
	Provider   string
	EventID    string
	OrderID    string
	Reason     string
	OccurredAt time.Time
}

// BuildObjectPath returns the object name for purpose.
func BuildObjectPath(purpose Purpose, params PathParams) (string, error) {
	switch purpose {
	case PurposeWebhookPayload:
		provider, err := validateSegment("provider", params.Provider)
		if err != nil {
			return "", err
		}
		eventID, err := validateSegment("eventID", params.EventID)
		if err != nil {
			return "", err
		}
		at := params.OccurredAt.UTC()
		if at.IsZero() {
			return "", fmt.Errorf("storage: occurredAt is required")
		}
		return fmt.Sprintf("webhooks/%s/%s/%s.json", provider, at.Format("2006/01/02"), eventID), nil
	case PurposeOrderSnapshot:
		orderID, err := validateSegment("orderID", params.OrderID)
		if err != nil {
			return "", err
		}
		reason, err := validateSegment("reason", params.Reason)
		if err != nil {
			return "", err
		}
		at := params.OccurredAt.UTC()
		if at.IsZero() {
			return "", fmt.Errorf("storage: occurredAt is required")
		}
		return fmt.Sprintf("orders/%s/snapshots/%s-%s.json", orderID, reason, at.Format("20060102T150405Z")), nil
	default:
		return "", fmt.Errorf("storage: unsupported purpose %q", purpose)
	}
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", fmt.Errorf("storage: %s is required", name)
	case strings.ContainsAny(value, "/\\"):
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	case strings.Contains(value, ".."):
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
