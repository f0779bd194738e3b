package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
)

// ProviderShiprocket names the Shiprocket aggregator in errors and logs.
const ProviderShiprocket = "shiprocket"

const (
	defaultShiprocketBaseURL = "https://apiv2.shiprocket.in/v1/external"
	defaultTimeout           = 15 * time.Second
	shiprocketTimeFmt        = "2006-01-02 15:04:05"
	shiprocketOrderFmt       = "2006-01-02 15:04"
	maxErrorBody             = 4 << 10

	// Shiprocket tokens are valid for ten days; refresh well before that.
	tokenLifetime = 9 * 24 * time.Hour
)

var ist = time.FixedZone("IST", 5*60*60+30*60)

// Logger receives structured aggregator events.
type Logger func(ctx context.Context, event string, fields map[string]any)

// ShiprocketConfig configures the Shiprocket client.
type ShiprocketConfig struct {
	BaseURL         string
	Email           string
	Password        string
	PickupLocation  string
	DefaultWeightKg float64
	DefaultLengthCm float64
	DefaultWidthCm  float64
	DefaultHeightCm float64
	Timeout         time.Duration
	HTTPClient      *http.Client
	Logger          Logger
	Clock           func() time.Time
}

// ShiprocketClient books and tracks shipments through Shiprocket.
type ShiprocketClient struct {
	cfg    ShiprocketConfig
	http   *http.Client
	logger Logger
	clock  func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

var _ Aggregator = (*ShiprocketClient)(nil)

// NewShiprocketClient constructs a Shiprocket client.
func NewShiprocketClient(cfg ShiprocketConfig) (*ShiprocketClient, error) {
	cfg.Email = strings.TrimSpace(cfg.Email)
	if cfg.Email == "" || cfg.Password == "" {
		return nil, errors.New("shiprocket: email and password are required")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultShiprocketBaseURL
	}
	if strings.TrimSpace(cfg.PickupLocation) == "" {
		cfg.PickupLocation = "Primary"
	}
	if cfg.DefaultWeightKg <= 0 {
		cfg.DefaultWeightKg = 0.5
	}
	if cfg.DefaultLengthCm <= 0 {
		cfg.DefaultLengthCm = 30
	}
	if cfg.DefaultWidthCm <= 0 {
		cfg.DefaultWidthCm = 20
	}
	if cfg.DefaultHeightCm <= 0 {
		cfg.DefaultHeightCm = 10
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &ShiprocketClient{cfg: cfg, http: client, logger: logger, clock: clock}, nil
}

type shiprocketLoginResponse struct {
	Token string `json:"token"`
}

type shiprocketOrderItem struct {
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Units        int     `json:"units"`
	SellingPrice float64 `json:"selling_price"`
}

type shiprocketOrderRequest struct {
	OrderID           string                `json:"order_id"`
	OrderDate         string                `json:"order_date"`
	PickupLocation    string                `json:"pickup_location"`
	BillingName       string                `json:"billing_customer_name"`
	BillingLastName   string                `json:"billing_last_name"`
	BillingAddress    string                `json:"billing_address"`
	BillingAddress2   string                `json:"billing_address_2,omitempty"`
	BillingCity       string                `json:"billing_city"`
	BillingPincode    string                `json:"billing_pincode"`
	BillingState      string                `json:"billing_state"`
	BillingCountry    string                `json:"billing_country"`
	BillingEmail      string                `json:"billing_email"`
	BillingPhone      string                `json:"billing_phone"`
	ShippingIsBilling bool                  `json:"shipping_is_billing"`
	OrderItems        []shiprocketOrderItem `json:"order_items"`
	PaymentMethod     string                `json:"payment_method"`
	SubTotal          float64               `json:"sub_total"`
	TotalDiscount     float64               `json:"total_discount,omitempty"`
	Comment           string                `json:"comment,omitempty"`
	Length            float64               `json:"length"`
	Breadth           float64               `json:"breadth"`
	Height            float64               `json:"height"`
	Weight            float64               `json:"weight"`
}

type shiprocketOrderResponse struct {
	OrderID     json.Number `json:"order_id"`
	ShipmentID  json.Number `json:"shipment_id"`
	Status      string      `json:"status"`
	AWBCode     string      `json:"awb_code"`
	CourierName string      `json:"courier_name"`
}

type shiprocketAWBResponse struct {
	AWBAssignStatus int `json:"awb_assign_status"`
	Response        struct {
		Data struct {
			AWBCode     string `json:"awb_code"`
			CourierName string `json:"courier_name"`
		} `json:"data"`
	} `json:"response"`
	Message string `json:"message"`
}

type shiprocketTrackResponse struct {
	TrackingData struct {
		TrackStatus   int `json:"track_status"`
		ShipmentTrack []struct {
			AWBCode       string `json:"awb_code"`
			CourierName   string `json:"courier_name"`
			CurrentStatus string `json:"current_status"`
			DeliveredDate string `json:"delivered_date"`
			EDD           string `json:"edd"`
		} `json:"shipment_track"`
		Activities []struct {
			Date     string `json:"date"`
			Status   string `json:"status"`
			Activity string `json:"activity"`
			Location string `json:"location"`
			Label    string `json:"sr-status-label"`
		} `json:"shipment_track_activities"`
		TrackURL string `json:"track_url"`
		ETD      string `json:"etd"`
		Error    string `json:"error"`
	} `json:"tracking_data"`
}

type shiprocketErrorBody struct {
	Message string `json:"message"`
}

// CreateShipment creates an adhoc order and assigns an AWB to its shipment.
func (c *ShiprocketClient) CreateShipment(ctx context.Context, req ShipmentRequest) (Shipment, error) {
	if strings.TrimSpace(req.OrderNumber) == "" || len(req.Items) == 0 {
		return Shipment{}, &AggregatorError{Provider: ProviderShiprocket, Op: "create order", Message: "order number and items are required"}
	}
	body := c.orderRequest(req)
	var created shiprocketOrderResponse
	if err := c.do(ctx, "create order", http.MethodPost, "/orders/create/adhoc", body, &created); err != nil {
		return Shipment{}, err
	}
	shipment := Shipment{
		ProviderOrderID: created.OrderID.String(),
		ShipmentID:      created.ShipmentID.String(),
		TrackingCode:    created.AWBCode,
		Courier:         created.CourierName,
		Status:          domain.ShipmentStatusCreated,
	}
	if shipment.ShipmentID == "" {
		return Shipment{}, &AggregatorError{Provider: ProviderShiprocket, Op: "create order", Message: "response carried no shipment id"}
	}

	if shipment.TrackingCode == "" {
		var awb shiprocketAWBResponse
		if err := c.do(ctx, "assign awb", http.MethodPost, "/courier/assign/awb", map[string]any{"shipment_id": shipment.ShipmentID}, &awb); err != nil {
			return Shipment{}, err
		}
		if awb.AWBAssignStatus != 1 || awb.Response.Data.AWBCode == "" {
			return Shipment{}, &AggregatorError{Provider: ProviderShiprocket, Op: "assign awb", Message: defaultString(awb.Message, "awb was not assigned")}
		}
		shipment.TrackingCode = awb.Response.Data.AWBCode
		shipment.Courier = defaultString(awb.Response.Data.CourierName, shipment.Courier)
	}
	shipment.TrackingURL = trackingURL(shipment.TrackingCode)

	c.logger(ctx, "shipping.shiprocket.shipment.created", map[string]any{
		"orderNumber":  req.OrderNumber,
		"shipmentId":   shipment.ShipmentID,
		"trackingCode": shipment.TrackingCode,
		"courier":      shipment.Courier,
	})
	return shipment, nil
}

// Track fetches live tracking for an AWB.
func (c *ShiprocketClient) Track(ctx context.Context, trackingCode string) (Tracking, error) {
	trackingCode = strings.TrimSpace(trackingCode)
	if trackingCode == "" {
		return Tracking{}, &AggregatorError{Provider: ProviderShiprocket, Op: "track", Message: "tracking code is required"}
	}
	var out shiprocketTrackResponse
	if err := c.do(ctx, "track", http.MethodGet, "/courier/track/awb/"+url.PathEscape(trackingCode), nil, &out); err != nil {
		return Tracking{}, err
	}
	data := out.TrackingData
	if data.Error != "" && len(data.ShipmentTrack) == 0 {
		return Tracking{}, &AggregatorError{Provider: ProviderShiprocket, Op: "track", Message: data.Error}
	}

	tracking := Tracking{
		TrackingCode:      trackingCode,
		TrackingURL:       defaultString(data.TrackURL, trackingURL(trackingCode)),
		EstimatedDelivery: parseShiprocketTime(data.ETD),
		Activities:        make([]Activity, 0, len(data.Activities)),
	}
	if len(data.ShipmentTrack) > 0 {
		current := data.ShipmentTrack[0]
		tracking.Courier = current.CourierName
		tracking.ExternalStatus = current.CurrentStatus
		tracking.DeliveredAt = parseShiprocketTime(current.DeliveredDate)
		if tracking.EstimatedDelivery == nil {
			tracking.EstimatedDelivery = parseShiprocketTime(current.EDD)
		}
	}
	for _, a := range data.Activities {
		activity := Activity{
			Status:      defaultString(a.Label, a.Status),
			Description: a.Activity,
			Location:    a.Location,
		}
		if at := parseShiprocketTime(a.Date); at != nil {
			activity.At = *at
		}
		tracking.Activities = append(tracking.Activities, activity)
	}
	if tracking.ExternalStatus == "" && len(tracking.Activities) > 0 {
		tracking.ExternalStatus = tracking.Activities[0].Status
	}
	tracking.Status = MapStatus(tracking.ExternalStatus)
	return tracking, nil
}

// Cancel cancels the given Shiprocket orders.
func (c *ShiprocketClient) Cancel(ctx context.Context, providerOrderIDs ...string) error {
	ids := make([]int64, 0, len(providerOrderIDs))
	for _, raw := range providerOrderIDs {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return &AggregatorError{Provider: ProviderShiprocket, Op: "cancel", Message: fmt.Sprintf("invalid order id %q", raw)}
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return &AggregatorError{Provider: ProviderShiprocket, Op: "cancel", Message: "at least one order id is required"}
	}
	if err := c.do(ctx, "cancel", http.MethodPost, "/orders/cancel", map[string]any{"ids": ids}, nil); err != nil {
		return err
	}
	c.logger(ctx, "shipping.shiprocket.orders.cancelled", map[string]any{"orderIds": providerOrderIDs})
	return nil
}

func (c *ShiprocketClient) orderRequest(req ShipmentRequest) shiprocketOrderRequest {
	first, last := splitName(req.Address.Name)
	orderDate := req.OrderDate
	if orderDate.IsZero() {
		orderDate = c.clock()
	}
	body := shiprocketOrderRequest{
		OrderID:           req.OrderNumber,
		OrderDate:         orderDate.In(ist).Format(shiprocketOrderFmt),
		PickupLocation:    c.cfg.PickupLocation,
		BillingName:       first,
		BillingLastName:   last,
		BillingAddress:    req.Address.Line1,
		BillingAddress2:   req.Address.Line2,
		BillingCity:       req.Address.City,
		BillingPincode:    req.Address.PostalCode,
		BillingState:      req.Address.State,
		BillingCountry:    defaultString(req.Address.Country, "India"),
		BillingEmail:      req.Address.Email,
		BillingPhone:      req.Address.Phone,
		ShippingIsBilling: true,
		PaymentMethod:     "Prepaid",
		SubTotal:          req.SubTotal.InexactFloat64(),
		TotalDiscount:     req.Discount.InexactFloat64(),
		Comment:           req.Notes,
		Length:            c.cfg.DefaultLengthCm,
		Breadth:           c.cfg.DefaultWidthCm,
		Height:            c.cfg.DefaultHeightCm,
	}
	var weight float64
	for _, item := range req.Items {
		body.OrderItems = append(body.OrderItems, shiprocketOrderItem{
			Name:         item.Name,
			SKU:          item.SKU,
			Units:        item.Units,
			SellingPrice: item.UnitPrice.InexactFloat64(),
		})
		w := item.WeightKg
		if w <= 0 {
			w = c.cfg.DefaultWeightKg
		}
		weight += w * float64(item.Units)
	}
	body.Weight = weight
	return body
}

func (c *ShiprocketClient) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.clock().Before(c.tokenExpiry) {
		return c.token, nil
	}
	payload, err := json.Marshal(map[string]string{"email": c.cfg.Email, "password": c.cfg.Password})
	if err != nil {
		return "", &AggregatorError{Provider: ProviderShiprocket, Op: "login", Err: err}
	}
	resp, err := c.send(ctx, http.MethodPost, "/auth/login", payload, "")
	if err != nil {
		return "", &AggregatorError{Provider: ProviderShiprocket, Op: "login", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", readAggregatorError("login", resp)
	}
	var out shiprocketLoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Token == "" {
		return "", &AggregatorError{Provider: ProviderShiprocket, Op: "login", StatusCode: resp.StatusCode, Message: "login response carried no token"}
	}
	c.token = out.Token
	c.tokenExpiry = c.clock().Add(tokenLifetime)
	return c.token, nil
}

func (c *ShiprocketClient) invalidateToken(token string) {
	c.mu.Lock()
	if c.token == token {
		c.token = ""
	}
	c.mu.Unlock()
}

func (c *ShiprocketClient) do(ctx context.Context, op, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return &AggregatorError{Provider: ProviderShiprocket, Op: op, Err: err}
		}
	}

	for attempt := 0; ; attempt++ {
		token, err := c.authToken(ctx)
		if err != nil {
			return err
		}
		resp, err := c.send(ctx, method, path, payload, token)
		if err != nil {
			return &AggregatorError{Provider: ProviderShiprocket, Op: op, Err: err}
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			c.invalidateToken(token)
			continue
		}
		err = c.decode(op, resp, out)
		resp.Body.Close()
		if err != nil {
			c.logger(ctx, "shipping.shiprocket.error", map[string]any{"op": op, "error": err.Error()})
		}
		return err
	}
}

func (c *ShiprocketClient) send(ctx context.Context, method, path string, payload []byte, token string) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.http.Do(req)
}

func (c *ShiprocketClient) decode(op string, resp *http.Response, out any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		return readAggregatorError(op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &AggregatorError{Provider: ProviderShiprocket, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func readAggregatorError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	aggErr := &AggregatorError{Provider: ProviderShiprocket, Op: op, StatusCode: resp.StatusCode}
	var body shiprocketErrorBody
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		aggErr.Message = body.Message
	} else {
		aggErr.Message = strings.TrimSpace(string(raw))
	}
	return aggErr
}

func parseShiprocketTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range []string{shiprocketTimeFmt, shiprocketOrderFmt, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, ist); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

func trackingURL(awb string) string {
	if awb == "" {
		return ""
	}
	return "https://shiprocket.co/tracking/" + url.PathEscape(awb)
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
