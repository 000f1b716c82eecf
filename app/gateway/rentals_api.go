package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type RentalsAPIConfig struct {
	BaseURL     string
	APIKey      string
	HTTPTimeout time.Duration
}

type RentalsAPIGateway struct {
	cfg    RentalsAPIConfig
	client *http.Client
}

func NewRentalsAPIGateway(cfg RentalsAPIConfig) *RentalsAPIGateway {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	return &RentalsAPIGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *RentalsAPIGateway) Code() string {
	return CodeRentalsAPI
}

func (g *RentalsAPIGateway) InitiatePushPayment(ctx context.Context, input *PushInput) (*PushOutput, error) {
	body, err := g.do(ctx, http.MethodPost, "/payments/mpesa/stk-push", map[string]interface{}{
		"phoneNumber":      input.PhoneNumber,
		"amount":           input.Amount,
		"accountReference": input.AccountReference,
		"transactionDesc":  input.Narrative,
	})
	if err != nil {
		return nil, err
	}

	payload, err := unwrapRentalsPayload(body)
	if err != nil {
		return nil, err
	}
	if payload.Success != nil && !*payload.Success {
		return nil, &Error{Message: payload.reason()}
	}

	requestID := strings.TrimSpace(payload.CheckoutRequestID)
	if requestID == "" {
		requestID = strings.TrimSpace(payload.RequestID)
	}

	return &PushOutput{
		RequestID:         requestID,
		MerchantRequestID: strings.TrimSpace(payload.MerchantRequestID),
		CustomerMessage:   strings.TrimSpace(payload.CustomerMessage),
	}, nil
}

func (g *RentalsAPIGateway) GetPaymentStatus(ctx context.Context, requestID string) (*StatusOutput, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, errors.New("request id is required")
	}

	body, err := g.do(ctx, http.MethodGet, "/payments/mpesa/status/"+url.PathEscape(requestID), nil)
	if err != nil {
		return nil, err
	}

	payload, err := unwrapRentalsPayload(body)
	if err != nil {
		return nil, err
	}

	result := &StatusOutput{}
	switch {
	case strings.TrimSpace(payload.Status) != "":
		result.Status = strings.ToLower(strings.TrimSpace(payload.Status))
		if result.Status == StatusFailed || result.Status == StatusCancelled {
			result.FailureReason = payload.reason()
		}
	default:
		result.Status, result.FailureReason = statusFromMpesaResult(string(payload.ResultCode), payload.ResultDesc)
	}

	result.ReceiptReference = strings.TrimSpace(payload.MpesaReceiptNumber)
	if result.ReceiptReference == "" {
		result.ReceiptReference = strings.TrimSpace(payload.ReceiptNumber)
	}
	if payload.Amount != nil {
		units := payload.Amount.IntPart()
		result.ConfirmedAmount = &units
	}

	return result, nil
}

func (g *RentalsAPIGateway) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	if g.cfg.BaseURL == "" {
		return nil, errors.New("rentals api base url is not configured")
	}

	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(g.cfg.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		if parsed, perr := unwrapRentalsPayload(body); perr == nil {
			if reason := parsed.reason(); reason != "" {
				return nil, &Error{Code: fmt.Sprintf("http_%d", resp.StatusCode), Message: reason}
			}
		}
		return nil, fmt.Errorf("rentals api request failed: path=%s status=%d body=%s", path, resp.StatusCode, string(body))
	}

	return body, nil
}

type rentalsPayload struct {
	Success            *bool            `json:"success"`
	Message            string           `json:"message"`
	Error              string           `json:"error"`
	RequestID          string           `json:"requestId"`
	CheckoutRequestID  string           `json:"checkoutRequestId"`
	MerchantRequestID  string           `json:"merchantRequestId"`
	CustomerMessage    string           `json:"customerMessage"`
	Status             string           `json:"status"`
	ResultCode         flexString       `json:"resultCode"`
	ResultDesc         string           `json:"resultDesc"`
	FailureReason      string           `json:"failureReason"`
	MpesaReceiptNumber string           `json:"mpesaReceiptNumber"`
	ReceiptNumber      string           `json:"receiptNumber"`
	Amount             *decimal.Decimal `json:"amount"`
}

func (p *rentalsPayload) reason() string {
	for _, candidate := range []string{p.FailureReason, p.ResultDesc, p.Error, p.Message} {
		if s := strings.TrimSpace(candidate); s != "" {
			return s
		}
	}
	return ""
}

// unwrapRentalsPayload flattens the backend's two response shapes: fields
// either sit at the top level or are nested under "data". Nested fields win.
func unwrapRentalsPayload(body []byte) (*rentalsPayload, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if raw, ok := top["data"]; ok {
		delete(top, "data")
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			var nested map[string]json.RawMessage
			if err := json.Unmarshal(trimmed, &nested); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
			}
			for k, v := range nested {
				top[k] = v
			}
		}
	}

	flattened, err := json.Marshal(top)
	if err != nil {
		return nil, err
	}

	var payload rentalsPayload
	if err := json.Unmarshal(flattened, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &payload, nil
}
