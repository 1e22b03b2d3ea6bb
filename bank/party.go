// Package bank holds the counter-party adapters the hub authorizes, verifies
// and settles transactions against.
package bank

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/hub/internal/apierror"
	"github.com/blnkfinance/hub/internal/request"
	"github.com/blnkfinance/hub/model"
)

// Party is a bank or switch taking part in a transaction.
type Party interface {
	Name() string
	ProcessTransaction(ctx context.Context, req model.ProcessRequest) (*model.ProcessResult, error)
	VerifyTransaction(ctx context.Context, req model.VerifyRequest) (*model.VerificationResult, error)
	SettleTransaction(ctx context.Context, req model.SettleRequest) (*model.SettleResult, error)
}

// HTTPParty talks JSON to a counter-party over HTTP. Transport failures and
// 5xx answers are retried with exponential backoff, 4xx answers are final.
type HTTPParty struct {
	name       string
	baseURL    string
	headers    map[string]string
	client     *http.Client
	maxRetries uint64
	logger     logrus.FieldLogger
}

func NewHTTPParty(name, baseURL string, headers map[string]string, timeout time.Duration, maxRetries int, logger logrus.FieldLogger) *HTTPParty {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &HTTPParty{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		headers:    headers,
		client:     &http.Client{Timeout: timeout},
		maxRetries: uint64(maxRetries),
		logger:     logger.WithField("party", name),
	}
}

func (p *HTTPParty) Name() string {
	return p.name
}

func (p *HTTPParty) ProcessTransaction(ctx context.Context, req model.ProcessRequest) (*model.ProcessResult, error) {
	var out model.ProcessResult
	if err := p.post(ctx, "/transactions/process", req.ReferenceID, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *HTTPParty) VerifyTransaction(ctx context.Context, req model.VerifyRequest) (*model.VerificationResult, error) {
	var out model.VerificationResult
	if err := p.post(ctx, "/transactions/verify", req.ReferenceID, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *HTTPParty) SettleTransaction(ctx context.Context, req model.SettleRequest) (*model.SettleResult, error) {
	var out model.SettleResult
	if err := p.post(ctx, "/transactions/settle", req.ReferenceID, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *HTTPParty) post(ctx context.Context, path, referenceID string, payload, out interface{}) error {
	url := p.baseURL + path
	attempt := 0

	op := func() error {
		attempt++
		_, err := request.Do(ctx, p.client, http.MethodPost, url, p.headers, payload, out)
		if err == nil {
			return nil
		}
		var se *request.StatusError
		if errors.As(err, &se) && se.Permanent() {
			return backoff.Permanent(err)
		}
		p.logger.WithFields(logrus.Fields{"reference_id": referenceID, "attempt": attempt}).WithError(err).Warn("counter-party call failed")
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), p.maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		wrapped := pkgerrors.Wrapf(err, "%s %s for %s", p.name, path, referenceID)
		return apierror.NewAPIError(apierror.ErrUpstream, wrapped.Error(), wrapped)
	}
	return nil
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second
	return b
}
