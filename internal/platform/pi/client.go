package pi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/keybase-market/pimarket/pkg/config"
)

const DefaultBaseURL = "https://api.minepi.com/v2"

// requestTimeout is the platform API contract; it is not tuned per call.
const requestTimeout = 20 * time.Second

// User is the gateway's profile for a verified access token.
type User struct {
	UID           string `json:"uid"`
	Username      string `json:"username"`
	WalletAddress string `json:"wallet_address"`
}

// PaymentTransaction is the on-ledger part of a payment, present once the
// client runtime has submitted it.
type PaymentTransaction struct {
	TxID     string `json:"txid"`
	Verified bool   `json:"verified"`
}

// PaymentInfo is the gateway's view of a payment object.
type PaymentInfo struct {
	Identifier  string              `json:"identifier"`
	UserUID     string              `json:"user_uid"`
	Amount      float64             `json:"amount"`
	Memo        string              `json:"memo"`
	Metadata    map[string]any      `json:"metadata"`
	Transaction *PaymentTransaction `json:"transaction"`
}

// Client is a thin authenticated wrapper over the Pi platform API. It does
// not retry; retry policy belongs to callers.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.SugaredLogger
}

func NewClient(cfg *config.Config, log *zap.SugaredLogger) (*Client, error) {
	if cfg.Pi.APIKey == "" {
		return nil, errors.New("pi: server API key is required")
	}
	base := cfg.Pi.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  cfg.Pi.APIKey,
		http:    &http.Client{Timeout: requestTimeout},
		log:     log,
	}, nil
}

// VerifyToken resolves a user access token to the gateway's user profile.
func (c *Client) VerifyToken(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrTokenExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newGatewayError("verify_token", resp)
	}

	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("pi: decode /me response: %w", err)
	}
	return &u, nil
}

// ApprovePayment tells the gateway the server acknowledges the payment.
// Not idempotent at this layer; sequencing is the reconciliation flow's job.
func (c *Client) ApprovePayment(ctx context.Context, paymentID string) error {
	return c.post(ctx, "approve_payment", "/payments/"+paymentID+"/approve", nil, nil)
}

// CompletePayment submits the ledger transaction id for a payment. The
// gateway reporting already_completed maps to ErrAlreadyCompleted.
func (c *Client) CompletePayment(ctx context.Context, paymentID, txid string) error {
	err := c.post(ctx, "complete_payment", "/payments/"+paymentID+"/complete", map[string]string{"txid": txid}, nil)
	var gw *GatewayError
	if errors.As(err, &gw) && gw.Code == "already_completed" {
		return ErrAlreadyCompleted
	}
	return err
}

// CancelPayment is best-effort cleanup; callers log failures and move on.
func (c *Client) CancelPayment(ctx context.Context, paymentID string) error {
	return c.post(ctx, "cancel_payment", "/payments/"+paymentID+"/cancel", nil, nil)
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*PaymentInfo, error) {
	var info PaymentInfo
	if err := c.get(ctx, "get_payment", "/payments/"+paymentID, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListIncompletePayments returns server payments left over from interrupted
// sessions, for orphan reconciliation.
func (c *Client) ListIncompletePayments(ctx context.Context) ([]*PaymentInfo, error) {
	var out struct {
		IncompleteServerPayments []*PaymentInfo `json:"incomplete_server_payments"`
	}
	if err := c.get(ctx, "list_incomplete_payments", "/payments/incomplete_server_payments", &out); err != nil {
		return nil, err
	}
	return out.IncompleteServerPayments, nil
}

func (c *Client) post(ctx context.Context, op, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(op, req, out)
}

func (c *Client) get(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(op, req, out)
}

func (c *Client) do(op string, req *http.Request, out any) error {
	req.Header.Set("Authorization", "Key "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrGatewayUnreachable, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newGatewayError(op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pi: decode %s response: %w", op, err)
	}
	return nil
}

func newGatewayError(op string, resp *http.Response) *GatewayError {
	ge := &GatewayError{Op: op, Status: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return ge
	}
	var body struct {
		Error        string `json:"error"`
		ErrorMessage string `json:"error_message"`
		Message      string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		ge.Code = body.Error
		ge.Message = body.ErrorMessage
		if ge.Message == "" {
			ge.Message = body.Message
		}
	}
	if ge.Message == "" {
		ge.Message = strings.TrimSpace(string(raw))
	}
	return ge
}

var Module = fx.Options(
	fx.Provide(NewClient),
)
