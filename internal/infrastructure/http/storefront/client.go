package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tableside/internal/config"
	"tableside/internal/domain/cart"
	"tableside/internal/domain/order"
	"tableside/internal/domain/payment"
)

// Client wraps the remote ordering backend. It is stateless; all cart and
// order scoping happens through the session id passed per call.
type Client struct {
	httpClient *http.Client
	cfg        config.StorefrontConfig
}

func NewClient(cfg config.StorefrontConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
			},
		},
	}
}

// APIError is a non-2xx or success=false response. Message carries the
// server's human-readable explanation when one was present.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storefront: %s (status %d)", e.Message, e.StatusCode)
}

// envelope is the backend's standard response wrapper.
type envelope struct {
	Success *bool           `json:"success,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	var reader io.Reader
	contentType := ""
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}
	return c.doRaw(ctx, method, path, query, reader, contentType)
}

func (c *Client) doRaw(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.BaseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid storefront url: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Token", c.cfg.APIToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call storefront: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("API Error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		if decodeErr == nil && env.Message != "" {
			msg = env.Message
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		// Bare-array payloads don't fit the envelope; hand them to the
		// caller's decoder as-is.
		return raw, nil
	}
	if env.Success != nil && !*env.Success {
		msg := env.Message
		if msg == "" {
			msg = "request rejected"
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	// Some endpoints answer with a bare payload instead of the envelope.
	if env.Data == nil && env.Success == nil {
		return raw, nil
	}
	return env.Data, nil
}

func decodeInto[T any](data json.RawMessage, what string) (*T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	return &out, nil
}

/* ================= locations & tables ================= */

func (c *Client) Locations(ctx context.Context) ([]Location, error) {
	data, err := c.do(ctx, http.MethodGet, "/locations", nil, nil)
	if err != nil {
		return nil, err
	}
	var locations []Location
	if err := json.Unmarshal(data, &locations); err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}
	return locations, nil
}

func (c *Client) Tables(ctx context.Context, locationID int64) ([]Zone, error) {
	q := url.Values{}
	q.Set("location_id", strconv.FormatInt(locationID, 10))
	data, err := c.do(ctx, http.MethodGet, "/tables", q, nil)
	if err != nil {
		return nil, err
	}
	var zones []Zone
	if err := json.Unmarshal(data, &zones); err != nil {
		return nil, fmt.Errorf("decode tables: %w", err)
	}
	return zones, nil
}

func (c *Client) StartTableSession(ctx context.Context, tableID int64) (*TableSession, error) {
	body := map[string]any{"qr_code": nil, "table_id": tableID}
	data, err := c.do(ctx, http.MethodPost, "/table-sessions/start", nil, body)
	if err != nil {
		return nil, err
	}
	return decodeInto[TableSession](data, "table session")
}

/* ================= cart ================= */

func (c *Client) CreateCart(ctx context.Context, sessionID string, tableSessionID *int64) (*cart.Cart, error) {
	body := map[string]any{"session_id": sessionID}
	if tableSessionID != nil {
		body["table_session_id"] = *tableSessionID
	}
	data, err := c.do(ctx, http.MethodPost, "/cart/create", nil, body)
	if err != nil {
		return nil, err
	}
	return decodeInto[cart.Cart](data, "cart")
}

func (c *Client) FetchCart(ctx context.Context, sessionID string) (*cart.Cart, error) {
	q := url.Values{}
	q.Set("session_id", sessionID)
	data, err := c.do(ctx, http.MethodGet, "/cart", q, nil)
	if err != nil {
		return nil, err
	}
	return decodeInto[cart.Cart](data, "cart")
}

func (c *Client) AddItem(ctx context.Context, req cart.AddItemRequest) (*cart.Cart, error) {
	data, err := c.do(ctx, http.MethodPost, "/cart/add", nil, req)
	if err != nil {
		return nil, err
	}
	return decodeInto[cart.Cart](data, "cart")
}

func (c *Client) UpdateItem(ctx context.Context, sessionID string, itemID int64, quantity int) (*cart.Cart, error) {
	body := map[string]any{
		"session_id":   sessionID,
		"cart_item_id": itemID,
		"quantity":     quantity,
	}
	data, err := c.do(ctx, http.MethodPatch, "/cart/update", nil, body)
	if err != nil {
		return nil, err
	}
	return decodeInto[cart.Cart](data, "cart")
}

func (c *Client) RemoveItem(ctx context.Context, sessionID string, itemID int64) (*cart.Cart, error) {
	q := url.Values{}
	q.Set("session_id", sessionID)
	q.Set("cart_item_id", strconv.FormatInt(itemID, 10))
	data, err := c.do(ctx, http.MethodDelete, "/cart/remove", q, nil)
	if err != nil {
		return nil, err
	}
	return decodeInto[cart.Cart](data, "cart")
}

/* ================= payments ================= */

// counterMethod is appended to every payment-method listing regardless of
// server data, so paying at the counter is always available.
var counterMethod = payment.Method{
	ID:       9999,
	Name:     "Pay at Counter",
	Slug:     "pay_at_counter",
	IsEnable: 1,
}

func (c *Client) PaymentMethods(ctx context.Context) ([]payment.Method, error) {
	data, err := c.do(ctx, http.MethodGet, "/payment-methods", nil, nil)
	if err != nil {
		return nil, err
	}
	var methods []payment.Method
	if err := json.Unmarshal(data, &methods); err != nil {
		return nil, fmt.Errorf("decode payment methods: %w", err)
	}
	return append(methods, counterMethod), nil
}

func (c *Client) GenerateCode(ctx context.Context, family payment.Family, req payment.GenerateRequest) (*payment.Record, error) {
	if !family.Valid() {
		return nil, fmt.Errorf("unknown payment family %q", family)
	}
	data, err := c.do(ctx, http.MethodPost, "/payments/"+string(family)+"/qr", nil, req)
	if err != nil {
		return nil, err
	}
	return decodeInto[payment.Record](data, "payment record")
}

func (c *Client) CheckStatus(ctx context.Context, family payment.Family, token string) (*payment.Status, error) {
	if !family.Valid() {
		return nil, fmt.Errorf("unknown payment family %q", family)
	}
	q := url.Values{}
	q.Set("token", token)
	data, err := c.do(ctx, http.MethodGet, "/payments/"+string(family)+"/status", q, nil)
	if err != nil {
		return nil, err
	}
	return decodeInto[payment.Status](data, "payment status")
}

// SubmitManual uploads a staff-verified payment with its proof-of-transfer
// image as multipart form data.
func (c *Client) SubmitManual(ctx context.Context, req payment.ManualRequest) (*payment.ManualResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := map[string]string{
		"cart_id":           strconv.FormatInt(req.CartID, 10),
		"location_id":       strconv.FormatInt(req.LocationID, 10),
		"payment_method_id": strconv.FormatInt(req.MethodID, 10),
		"amount":            req.Amount.String(),
		"order_type":        req.OrderType,
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if len(req.ProofImage) > 0 {
		name := req.ProofFilename
		if name == "" {
			name = "proof.jpg"
		}
		part, err := mw.CreateFormFile("proof_image", name)
		if err != nil {
			return nil, fmt.Errorf("create proof part: %w", err)
		}
		if _, err := part.Write(req.ProofImage); err != nil {
			return nil, fmt.Errorf("write proof: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finish multipart body: %w", err)
	}

	data, err := c.doRaw(ctx, http.MethodPost, "/payments", nil, &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	return decodeInto[payment.ManualResult](data, "manual payment result")
}

/* ================= orders ================= */

func (c *Client) OrderHistory(ctx context.Context, sessionID string) (*order.History, error) {
	q := url.Values{}
	q.Set("session_id", sessionID)
	data, err := c.do(ctx, http.MethodGet, "/order-history", q, nil)
	if err != nil {
		return nil, err
	}
	return decodeInto[order.History](data, "order history")
}
