package bank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/blnkfinance/hub/internal/apierror"
	"github.com/blnkfinance/hub/internal/request"
)

// FundsClient reserves and moves customer funds on a remote source-bank
// deployment through its balance routes.
type FundsClient struct {
	baseURL string
	headers map[string]string
	client  *http.Client
}

type freezeBody struct {
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
}

type holdBody struct {
	Amount        decimal.Decimal `json:"amount,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
}

type availabilityBody struct {
	Available bool `json:"available"`
}

func NewFundsClient(baseURL string, headers map[string]string, timeout time.Duration) *FundsClient {
	return &FundsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *FundsClient) Freeze(ctx context.Context, accountID string, amount decimal.Decimal, txnID string, expiresAt *time.Time) error {
	return c.call(ctx, http.MethodPost, c.route(accountID, "freeze"), freezeBody{Amount: amount, TransactionID: txnID, ExpiresAt: expiresAt}, nil)
}

func (c *FundsClient) Release(ctx context.Context, accountID, txnID string) error {
	return c.call(ctx, http.MethodPost, c.route(accountID, "unfreeze"), holdBody{TransactionID: txnID}, nil)
}

func (c *FundsClient) Debit(ctx context.Context, accountID string, amount decimal.Decimal, txnID string) error {
	return c.call(ctx, http.MethodPost, c.route(accountID, "debit"), holdBody{Amount: amount, TransactionID: txnID}, nil)
}

func (c *FundsClient) Credit(ctx context.Context, accountID string, amount decimal.Decimal) error {
	return c.call(ctx, http.MethodPost, c.route(accountID, "credit"), holdBody{Amount: amount}, nil)
}

func (c *FundsClient) CheckAvailability(ctx context.Context, accountID string, amount decimal.Decimal) (bool, error) {
	var out availabilityBody
	u := c.route(accountID, "availability") + "?amount=" + url.QueryEscape(amount.String())
	if err := c.call(ctx, http.MethodGet, u, nil, &out); err != nil {
		return false, err
	}
	return out.Available, nil
}

func (c *FundsClient) route(accountID, action string) string {
	return fmt.Sprintf("%s/balances/%s/%s", c.baseURL, url.PathEscape(accountID), action)
}

func (c *FundsClient) call(ctx context.Context, method, u string, payload, out interface{}) error {
	_, err := request.Do(ctx, c.client, method, u, c.headers, payload, out)
	if err == nil {
		return nil
	}

	var se *request.StatusError
	if !errors.As(err, &se) {
		return apierror.NewAPIError(apierror.ErrUpstream, "funds service unreachable", pkgerrors.Wrap(err, u))
	}

	msg := errorMessage(se.Body)
	switch se.StatusCode {
	case http.StatusNotFound:
		return apierror.NewAPIError(apierror.ErrNotFound, msg, nil)
	case http.StatusConflict:
		return apierror.NewAPIError(apierror.ErrConflict, msg, nil)
	case http.StatusUnprocessableEntity:
		return apierror.NewAPIError(apierror.ErrInsufficientFunds, msg, nil)
	case http.StatusBadRequest:
		return apierror.NewAPIError(apierror.ErrInvalidInput, msg, nil)
	default:
		return apierror.NewAPIError(apierror.ErrUpstream, msg, se)
	}
}

// errorMessage pulls the message out of the shim's {success, message} body.
func errorMessage(body string) string {
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err == nil && resp.Message != "" {
		return resp.Message
	}
	return strings.TrimSpace(body)
}
