package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-rent-payments/app/cache"
)

const (
	defaultMpesaBaseURL         = "https://sandbox.safaricom.co.ke"
	defaultMpesaTransactionType = "CustomerPayBillOnline"

	mpesaAccountReferenceMaxLen = 12
	mpesaTransactionDescMaxLen  = 13

	mpesaResultSuccess          = "0"
	mpesaResultCancelledByUser  = "1032"
	mpesaResultStillProcessing  = "4999"
	mpesaProcessingErrorCode    = "500.001.1001"
	mpesaDefaultTokenTTLSeconds = 3599
)

var ErrMissingCallbackHash = errors.New("mpesa callback hash is required")

var eastAfricaTime = time.FixedZone("EAT", 3*60*60)

type MpesaConfig struct {
	BaseURL          string
	ConsumerKey      string
	ConsumerSecret   string
	ShortCode        string
	PassKey          string
	TransactionType  string
	CallbackBaseURL  string
	HTTPTimeout      time.Duration
	TokenRefreshSkew time.Duration
}

type MpesaGateway struct {
	cfg    MpesaConfig
	client *http.Client
	token  *cache.TTLValue[string]
	now    func() time.Time
}

func NewMpesaGateway(cfg MpesaConfig) *MpesaGateway {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultMpesaBaseURL
	}
	if strings.TrimSpace(cfg.TransactionType) == "" {
		cfg.TransactionType = defaultMpesaTransactionType
	}
	if cfg.TokenRefreshSkew <= 0 {
		cfg.TokenRefreshSkew = time.Minute
	}

	g := &MpesaGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
	g.token = cache.NewTTLValue(g.fetchToken, cfg.TokenRefreshSkew)
	return g
}

func (g *MpesaGateway) Code() string {
	return CodeMpesa
}

func (g *MpesaGateway) InitiatePushPayment(ctx context.Context, input *PushInput) (*PushOutput, error) {
	if err := g.checkCredentials(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(g.cfg.CallbackBaseURL) == "" {
		return nil, errors.New("mpesa callback base url is not configured")
	}
	if strings.TrimSpace(input.CallbackHash) == "" {
		return nil, ErrMissingCallbackHash
	}
	callbackURL := joinCallbackURL(g.cfg.CallbackBaseURL, input.CallbackHash)

	timestamp := mpesaTimestamp(g.now())
	request := map[string]interface{}{
		"BusinessShortCode": g.cfg.ShortCode,
		"Password":          mpesaPassword(g.cfg.ShortCode, g.cfg.PassKey, timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   g.cfg.TransactionType,
		"Amount":            input.Amount,
		"PartyA":            input.PhoneNumber,
		"PartyB":            g.cfg.ShortCode,
		"PhoneNumber":       input.PhoneNumber,
		"CallBackURL":       callbackURL,
		"AccountReference":  truncate(input.AccountReference, mpesaAccountReferenceMaxLen),
		"TransactionDesc":   truncate(input.Narrative, mpesaTransactionDescMaxLen),
	}

	body, err := g.postJSON(ctx, "/mpesa/stkpush/v1/processrequest", request)
	if err != nil {
		return nil, err
	}

	var payload struct {
		MerchantRequestID   string     `json:"MerchantRequestID"`
		CheckoutRequestID   string     `json:"CheckoutRequestID"`
		ResponseCode        flexString `json:"ResponseCode"`
		ResponseDescription string     `json:"ResponseDescription"`
		CustomerMessage     string     `json:"CustomerMessage"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if code := string(payload.ResponseCode); code != "" && code != mpesaResultSuccess {
		return nil, &Error{Code: code, Message: strings.TrimSpace(payload.ResponseDescription)}
	}

	return &PushOutput{
		RequestID:         strings.TrimSpace(payload.CheckoutRequestID),
		MerchantRequestID: strings.TrimSpace(payload.MerchantRequestID),
		CustomerMessage:   strings.TrimSpace(payload.CustomerMessage),
	}, nil
}

func (g *MpesaGateway) GetPaymentStatus(ctx context.Context, requestID string) (*StatusOutput, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, errors.New("checkout request id is required")
	}
	if err := g.checkCredentials(); err != nil {
		return nil, err
	}

	timestamp := mpesaTimestamp(g.now())
	body, err := g.postJSON(ctx, "/mpesa/stkpushquery/v1/query", map[string]interface{}{
		"BusinessShortCode": g.cfg.ShortCode,
		"Password":          mpesaPassword(g.cfg.ShortCode, g.cfg.PassKey, timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": requestID,
	})
	if err != nil {
		var gwErr *Error
		if errors.As(err, &gwErr) && gwErr.Code == mpesaProcessingErrorCode {
			return &StatusOutput{Status: StatusPending}, nil
		}
		return nil, err
	}

	var payload struct {
		ResponseCode flexString `json:"ResponseCode"`
		ResultCode   flexString `json:"ResultCode"`
		ResultDesc   string     `json:"ResultDesc"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	status, reason := statusFromMpesaResult(string(payload.ResultCode), payload.ResultDesc)
	return &StatusOutput{Status: status, FailureReason: reason}, nil
}

func (g *MpesaGateway) ParseCallback(_ context.Context, payload []byte) (*CallbackEvent, error) {
	var envelope struct {
		Body struct {
			StkCallback struct {
				MerchantRequestID string     `json:"MerchantRequestID"`
				CheckoutRequestID string     `json:"CheckoutRequestID"`
				ResultCode        flexString `json:"ResultCode"`
				ResultDesc        string     `json:"ResultDesc"`
				CallbackMetadata  struct {
					Item []struct {
						Name  string      `json:"Name"`
						Value interface{} `json:"Value"`
					} `json:"Item"`
				} `json:"CallbackMetadata"`
			} `json:"stkCallback"`
		} `json:"Body"`
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	cb := envelope.Body.StkCallback
	requestID := strings.TrimSpace(cb.CheckoutRequestID)
	if requestID == "" {
		return nil, fmt.Errorf("%w: checkout request id missing", ErrMalformedResponse)
	}

	status, reason := statusFromMpesaResult(string(cb.ResultCode), cb.ResultDesc)
	event := &CallbackEvent{
		RequestID:         requestID,
		MerchantRequestID: strings.TrimSpace(cb.MerchantRequestID),
		Status:            status,
		ResultCode:        string(cb.ResultCode),
		ResultDesc:        strings.TrimSpace(cb.ResultDesc),
	}
	if status != StatusCompleted {
		event.ResultDesc = reason
	}

	for _, item := range cb.CallbackMetadata.Item {
		value := strings.TrimSpace(fmt.Sprint(item.Value))
		switch item.Name {
		case "MpesaReceiptNumber":
			event.ReceiptReference = value
		case "Amount":
			if amount, err := decimal.NewFromString(value); err == nil {
				units := amount.IntPart()
				event.ConfirmedAmount = &units
			}
		case "PhoneNumber":
			event.PhoneNumber = value
		}
	}

	return event, nil
}

func (g *MpesaGateway) checkCredentials() error {
	if strings.TrimSpace(g.cfg.ConsumerKey) == "" || strings.TrimSpace(g.cfg.ConsumerSecret) == "" {
		return errors.New("mpesa consumer credentials are not configured")
	}
	if strings.TrimSpace(g.cfg.ShortCode) == "" || strings.TrimSpace(g.cfg.PassKey) == "" {
		return errors.New("mpesa short code or passkey is not configured")
	}
	return nil
}

func (g *MpesaGateway) fetchToken(ctx context.Context, now time.Time) (string, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", time.Time{}, err
	}
	req.SetBasicAuth(g.cfg.ConsumerKey, g.cfg.ConsumerSecret)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, err
	}
	if resp.StatusCode >= 400 {
		return "", time.Time{}, fmt.Errorf("mpesa token request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var payload struct {
		AccessToken string     `json:"access_token"`
		ExpiresIn   flexString `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", time.Time{}, err
	}
	token := strings.TrimSpace(payload.AccessToken)
	if token == "" {
		return "", time.Time{}, errors.New("mpesa access token missing")
	}

	seconds, err := strconv.Atoi(string(payload.ExpiresIn))
	if err != nil || seconds <= 0 {
		seconds = mpesaDefaultTokenTTLSeconds
	}

	return token, now.Add(time.Duration(seconds) * time.Second), nil
}

func (g *MpesaGateway) postJSON(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	token, err := g.token.GetOrRefresh(ctx, g.now())
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		g.token.Invalidate()
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			ErrorCode    string `json:"errorCode"`
			ErrorMessage string `json:"errorMessage"`
		}
		if json.Unmarshal(body, &apiErr) == nil && strings.TrimSpace(apiErr.ErrorCode) != "" {
			return nil, &Error{Code: strings.TrimSpace(apiErr.ErrorCode), Message: strings.TrimSpace(apiErr.ErrorMessage)}
		}
		return nil, fmt.Errorf("mpesa request failed: path=%s status=%d body=%s", path, resp.StatusCode, string(body))
	}

	return body, nil
}

func statusFromMpesaResult(resultCode, resultDesc string) (string, string) {
	resultDesc = strings.TrimSpace(resultDesc)
	switch strings.TrimSpace(resultCode) {
	case "", mpesaResultStillProcessing:
		return StatusPending, ""
	case mpesaResultSuccess:
		return StatusCompleted, ""
	case mpesaResultCancelledByUser:
		if resultDesc == "" {
			resultDesc = "Request cancelled by user"
		}
		return StatusCancelled, resultDesc
	default:
		if resultDesc == "" {
			resultDesc = "mpesa result code " + strings.TrimSpace(resultCode)
		}
		return StatusFailed, resultDesc
	}
}

func mpesaTimestamp(now time.Time) string {
	return now.In(eastAfricaTime).Format("20060102150405")
}

func mpesaPassword(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}

// flexString accepts JSON strings and bare numbers; Daraja is not
// consistent about which one it sends for codes and durations.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*f = ""
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	*f = flexString(raw)
	return nil
}
