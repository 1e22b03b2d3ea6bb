package model

import (
	"fmt"
	"strings"
)

// Status is the canonical transaction status shared by every service
// projection (PSP, switch, interbank network and hub).
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusProcessing      Status = "PROCESSING"
	StatusAuthorized      Status = "AUTHORIZED"
	StatusSettled         Status = "SETTLED"
	StatusFailed          Status = "FAILED"
	StatusCancelled       Status = "CANCELLED"
	StatusRefunded        Status = "REFUNDED"
	StatusPartialRefunded Status = "PARTIAL_REFUNDED"
)

// legacyStatuses maps the vocabularies used by the individual services onto
// the canonical set.
var legacyStatuses = map[string]Status{
	"SUCCESSFUL":            StatusSettled,
	"SUCCESS":               StatusSettled,
	"COMPLETED":             StatusSettled,
	"VERIFIED":              StatusSettled,
	"PENDING_AUTHORIZATION": StatusProcessing,
	"INITIATED":             StatusPending,
	"REJECTED":              StatusFailed,
	"DECLINED":              StatusFailed,
	"REVERSED":              StatusRefunded,
	"PARTIALLY_REFUNDED":    StatusPartialRefunded,
	"CANCELED":              StatusCancelled,
}

var transitions = map[Status][]Status{
	StatusPending:         {StatusProcessing, StatusFailed, StatusCancelled},
	StatusProcessing:      {StatusAuthorized, StatusFailed, StatusCancelled},
	StatusAuthorized:      {StatusSettled, StatusFailed},
	StatusSettled:         {StatusRefunded, StatusPartialRefunded},
	StatusPartialRefunded: {StatusPartialRefunded, StatusRefunded},
}

// ParseStatus normalises a status string, accepting the legacy names.
func ParseStatus(s string) (Status, error) {
	upper := Status(strings.ToUpper(strings.TrimSpace(s)))
	if upper.Valid() {
		return upper, nil
	}
	if canonical, ok := legacyStatuses[string(upper)]; ok {
		return canonical, nil
	}
	return "", fmt.Errorf("unknown transaction status %q", s)
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusAuthorized, StatusSettled,
		StatusFailed, StatusCancelled, StatusRefunded, StatusPartialRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether no further status transition is accepted
// through the regular lifecycle. SETTLED still admits refunds.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSettled, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Cancellable reports whether funds are not yet in flight.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusProcessing
}

// Refundable reports whether a refund may be issued from s.
func (s Status) Refundable() bool {
	return s == StatusSettled || s == StatusPartialRefunded
}

func (s Status) String() string {
	return string(s)
}
