package shipping

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
)

// ErrInvalidWebhook is returned when a webhook body cannot be interpreted.
var ErrInvalidWebhook = errors.New("shipping: invalid webhook payload")

// WebhookEvent is a normalised tracking update pushed by the aggregator.
type WebhookEvent struct {
	TrackingCode      string
	OrderNumber       string
	ExternalStatus    string
	Status            domain.ShipmentStatus
	Courier           string
	OccurredAt        *time.Time
	EstimatedDelivery *time.Time
	Activities        []Activity
}

type shiprocketWebhook struct {
	AWB              json.RawMessage `json:"awb"`
	OrderID          string          `json:"order_id"`
	CurrentStatus    string          `json:"current_status"`
	ShipmentStatus   string          `json:"shipment_status"`
	CurrentTimestamp string          `json:"current_timestamp"`
	ETD              string          `json:"etd"`
	CourierName      string          `json:"courier_name"`
	Scans            []struct {
		Date     string `json:"date"`
		Activity string `json:"activity"`
		Location string `json:"location"`
		Label    string `json:"sr-status-label"`
	} `json:"scans"`
}

// ParseWebhook decodes a Shiprocket tracking webhook.
func ParseWebhook(body []byte) (WebhookEvent, error) {
	var payload shiprocketWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	awb := rawString(payload.AWB)
	if awb == "" {
		return WebhookEvent{}, fmt.Errorf("%w: awb is required", ErrInvalidWebhook)
	}
	external := strings.TrimSpace(payload.CurrentStatus)
	if external == "" {
		external = strings.TrimSpace(payload.ShipmentStatus)
	}
	if external == "" {
		return WebhookEvent{}, fmt.Errorf("%w: status is required", ErrInvalidWebhook)
	}

	event := WebhookEvent{
		TrackingCode:      awb,
		OrderNumber:       strings.TrimSpace(payload.OrderID),
		ExternalStatus:    external,
		Status:            MapStatus(external),
		Courier:           strings.TrimSpace(payload.CourierName),
		OccurredAt:        parseShiprocketTime(payload.CurrentTimestamp),
		EstimatedDelivery: parseShiprocketTime(payload.ETD),
	}
	for _, scan := range payload.Scans {
		activity := Activity{
			Status:      scan.Label,
			Description: scan.Activity,
			Location:    scan.Location,
		}
		if at := parseShiprocketTime(scan.Date); at != nil {
			activity.At = *at
		}
		event.Activities = append(event.Activities, activity)
	}
	return event, nil
}

// awb arrives as a string or a bare number depending on the courier.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
