package bank

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/blnkfinance/hub/internal/apierror"
	"github.com/blnkfinance/hub/model"
)

// Simulator is a deterministic in-process counter-party. Every request is
// approved unless the account is on the decline list, the reference is
// marked for rejection, or the simulator is switched off.
type Simulator struct {
	name string

	mu             sync.RWMutex
	declined       map[string]string
	rejected       map[string]string
	verifyErrors   map[string]bool
	authorizations sync.Map

	unavailable atomic.Bool
	calls       atomic.Int64
}

var (
	_ Party = (*Simulator)(nil)
	_ Party = (*HTTPParty)(nil)
)

type authorization struct {
	request      model.ProcessRequest
	trackingCode string
	settled      bool
}

func NewSimulator(name string) *Simulator {
	return &Simulator{
		name:         name,
		declined:     make(map[string]string),
		rejected:     make(map[string]string),
		verifyErrors: make(map[string]bool),
	}
}

func (s *Simulator) Name() string {
	return s.name
}

// Decline makes every authorization against account fail with reason.
func (s *Simulator) Decline(account, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.declined[account] = reason
}

// RejectVerification answers verified=false for referenceID.
func (s *Simulator) RejectVerification(referenceID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[referenceID] = message
}

// FailVerification makes verification of referenceID return a transport error.
func (s *Simulator) FailVerification(referenceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifyErrors[referenceID] = true
}

// SetUnavailable turns every call into an upstream failure.
func (s *Simulator) SetUnavailable(down bool) {
	s.unavailable.Store(down)
}

// Calls returns how many requests the simulator has answered.
func (s *Simulator) Calls() int64 {
	return s.calls.Load()
}

func (s *Simulator) ProcessTransaction(_ context.Context, req model.ProcessRequest) (*model.ProcessResult, error) {
	s.calls.Add(1)
	if err := s.available(); err != nil {
		return nil, err
	}
	if req.BankCode != string(model.BankTest) && !model.IsValidBankCode(req.BankCode) {
		return nil, apierror.NewAPIError(apierror.ErrUpstream, fmt.Sprintf("%s: unknown bank code %s", s.name, req.BankCode), nil)
	}

	s.mu.RLock()
	reason, declined := s.declined[req.AccountNumber]
	s.mu.RUnlock()
	if declined {
		return nil, apierror.NewAPIError(apierror.ErrUpstream, fmt.Sprintf("%s declined: %s", s.name, reason), nil)
	}

	tracking := trackingCode()
	s.authorizations.Store(req.ReferenceID, &authorization{request: req, trackingCode: tracking})

	return &model.ProcessResult{
		BankReferenceID:  fmt.Sprintf("%s-%s", strings.ToUpper(s.name), uuid.NewString()[:8]),
		TrackingCode:     tracking,
		VerificationCode: req.VerificationCode,
		Message:          "Transaction authorized",
	}, nil
}

func (s *Simulator) VerifyTransaction(_ context.Context, req model.VerifyRequest) (*model.VerificationResult, error) {
	s.calls.Add(1)
	if err := s.available(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	failing := s.verifyErrors[req.ReferenceID]
	message, rejected := s.rejected[req.ReferenceID]
	s.mu.RUnlock()

	if failing {
		return nil, apierror.NewAPIError(apierror.ErrUpstream, fmt.Sprintf("%s: verification service error", s.name), nil)
	}
	if rejected {
		return &model.VerificationResult{Verified: false, Message: message}, nil
	}

	v, ok := s.authorizations.Load(req.ReferenceID)
	if !ok {
		return &model.VerificationResult{Verified: false, Message: "Transaction not found"}, nil
	}
	auth := v.(*authorization)
	if req.VerificationCode != "" && auth.request.VerificationCode != "" && req.VerificationCode != auth.request.VerificationCode {
		return &model.VerificationResult{Verified: false, Message: "Verification code mismatch"}, nil
	}

	return &model.VerificationResult{Verified: true, Message: "Transaction verified", TrackingCode: auth.trackingCode}, nil
}

func (s *Simulator) SettleTransaction(_ context.Context, req model.SettleRequest) (*model.SettleResult, error) {
	s.calls.Add(1)
	if err := s.available(); err != nil {
		return nil, err
	}

	v, ok := s.authorizations.Load(req.ReferenceID)
	if !ok {
		return &model.SettleResult{Success: false, Message: "Transaction not found"}, nil
	}
	auth := v.(*authorization)
	if !auth.request.Amount.Equal(req.Amount) {
		return &model.SettleResult{Success: false, Message: "Settlement amount mismatch"}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if auth.settled {
		return &model.SettleResult{Success: true, Message: "Transaction already settled"}, nil
	}
	auth.settled = true
	return &model.SettleResult{Success: true, Message: "Transaction settled successfully"}, nil
}

func (s *Simulator) available() error {
	if s.unavailable.Load() {
		return apierror.NewAPIError(apierror.ErrUpstream, fmt.Sprintf("%s is unavailable", s.name), nil)
	}
	return nil
}

func trackingCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TRK" + strings.ToUpper(raw[:12])
}
