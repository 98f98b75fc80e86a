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
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/settlement/pkg/settlement"
	"go.uber.org/zap"
)

const (
	pathToken  = "/users/getToken"
	pathFetch  = "/payments/"
	pathCancel = "/payments/cancel"

	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	contentTypeJSON     = "application/json"

	defaultRequestTimeout = 10 * time.Second
	tokenRefreshMargin    = 30 * time.Second
	maxResponseBytes      = 1 << 20
)

var (
	ErrInvalidConfig = errors.New("gateway: invalid config")
	ErrRejected      = errors.New("gateway: request rejected")
	ErrMalformed     = errors.New("gateway: malformed response")
)

// Config describes how to reach the payment gateway.
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// Validate checks the gateway config.
func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return fmt.Errorf("%w: base url: %v", ErrInvalidConfig, err)
	}
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.APISecret) == "" {
		return fmt.Errorf("%w: api key and secret are required", ErrInvalidConfig)
	}
	return nil
}

// Client implements settlement.Gateway over the gateway's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time

	tokenMutex  sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		if httpClient != nil {
			client.httpClient = httpClient
		}
	}
}

// WithLogger attaches a zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(client *Client) {
		if logger != nil {
			client.logger = logger
		}
	}
}

// WithClock overrides the clock used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(client *Client) {
		if now != nil {
			client.now = now
		}
	}
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config, options ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	client := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, option := range options {
		if option != nil {
			option(client)
		}
	}
	return client, nil
}

type envelope struct {
	Code     int             `json:"code"`
	Message  string          `json:"message"`
	Response json.RawMessage `json:"response"`
}

type tokenRequest struct {
	APIKey    string `json:"imp_key"`
	APISecret string `json:"imp_secret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiredAt   int64  `json:"expired_at"`
}

type paymentResponse struct {
	ApprovalID string `json:"imp_uid"`
	Amount     int64  `json:"amount"`
	Status     string `json:"status"`
	Method     string `json:"pay_method"`
}

type cancelRequest struct {
	ApprovalID string `json:"imp_uid"`
	Amount     int64  `json:"amount"`
	Full       bool   `json:"full"`
}

type cancelResponse struct {
	ApprovalID   string `json:"imp_uid"`
	CancelAmount int64  `json:"cancel_amount"`
	Status       string `json:"status"`
}

// FetchPayment returns the gateway's canonical record for approvalID.
func (client *Client) FetchPayment(ctx context.Context, approvalID string) (settlement.GatewayPayment, error) {
	if strings.TrimSpace(approvalID) == "" {
		return settlement.GatewayPayment{}, fmt.Errorf("%w: approval id is empty", ErrRejected)
	}
	var payload paymentResponse
	if err := client.authorizedCall(ctx, http.MethodGet, pathFetch+url.PathEscape(approvalID), nil, &payload); err != nil {
		return settlement.GatewayPayment{}, err
	}
	amount, err := settlement.NewAmount(payload.Amount)
	if err != nil {
		return settlement.GatewayPayment{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return settlement.GatewayPayment{
		ApprovalID: payload.ApprovalID,
		Amount:     amount,
		Status:     strings.ToLower(payload.Status),
		Method:     payload.Method,
	}, nil
}

// CancelPayment refunds amount of approvalID.
func (client *Client) CancelPayment(ctx context.Context, approvalID string, amount settlement.Amount, isFull bool) (settlement.GatewayCancellation, error) {
	request := cancelRequest{ApprovalID: approvalID, Amount: amount.Int64(), Full: isFull}
	var payload cancelResponse
	if err := client.authorizedCall(ctx, http.MethodPost, pathCancel, request, &payload); err != nil {
		return settlement.GatewayCancellation{}, err
	}
	return settlement.GatewayCancellation{
		ApprovalID: payload.ApprovalID,
		Amount:     settlement.Amount(payload.CancelAmount),
		Status:     strings.ToLower(payload.Status),
	}, nil
}

func (client *Client) authorizedCall(ctx context.Context, method string, path string, body any, target any) error {
	token, err := client.accessToken(ctx)
	if err != nil {
		return err
	}
	return client.call(ctx, method, path, token, body, target)
}

// accessToken returns the cached bearer token, refreshing it shortly before expiry.
func (client *Client) accessToken(ctx context.Context) (string, error) {
	client.tokenMutex.Lock()
	defer client.tokenMutex.Unlock()
	if client.token != "" && client.now().Add(tokenRefreshMargin).Before(client.tokenExpiry) {
		return client.token, nil
	}
	var payload tokenResponse
	err := client.call(ctx, http.MethodPost, pathToken, "", tokenRequest{APIKey: client.apiKey, APISecret: client.apiSecret}, &payload)
	if err != nil {
		return "", err
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrMalformed)
	}
	client.token = payload.AccessToken
	client.tokenExpiry = time.Unix(payload.ExpiredAt, 0)
	client.logger.Debug("gateway token refreshed", zap.Time("expires_at", client.tokenExpiry))
	return client.token, nil
}

func (client *Client) call(ctx context.Context, method string, path string, token string, body any, target any) error {
	var requestBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway: encode request: %w", err)
		}
		requestBody = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, requestBody)
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	if body != nil {
		request.Header.Set(headerContentType, contentTypeJSON)
	}
	if token != "" {
		request.Header.Set(headerAuthorization, "Bearer "+token)
	}
	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("gateway: read response: %w", err)
	}
	var decoded envelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if response.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("%w: http %d", ErrRejected, response.StatusCode)
		}
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if response.StatusCode >= http.StatusBadRequest || decoded.Code != 0 {
		client.logger.Warn("gateway rejected request",
			zap.String("path", path),
			zap.Int("http_status", response.StatusCode),
			zap.Int("code", decoded.Code),
			zap.String("message", decoded.Message))
		return fmt.Errorf("%w: code %d: %s", ErrRejected, decoded.Code, decoded.Message)
	}
	if len(decoded.Response) == 0 || string(decoded.Response) == "null" {
		return fmt.Errorf("%w: empty response", ErrMalformed)
	}
	if err := json.Unmarshal(decoded.Response, target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
