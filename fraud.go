package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/hub/config"
	"github.com/blnkfinance/hub/database"
	"github.com/blnkfinance/hub/model"
)

// FraudGate screens a transaction before any funds move.
type FraudGate struct {
	datasource database.IDataSource
	cfg        config.FraudConfig
	logger     logrus.FieldLogger
	now        func() time.Time
}

func NewFraudGate(ds database.IDataSource, cfg config.FraudConfig, logger logrus.FieldLogger) *FraudGate {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FraudGate{datasource: ds, cfg: cfg, logger: logger, now: time.Now}
}

// Check applies the card, velocity, volume and recent-failure rules in
// that order and stops at the first rejection.
func (g *FraudGate) Check(ctx context.Context, txn *model.Transaction) (*model.FraudResult, error) {
	ctx, span := tracer.Start(ctx, "Fraud check")
	defer span.End()

	result := &model.FraudResult{}
	log := g.logger.WithFields(logrus.Fields{"reference_id": txn.ReferenceID, "account_id": txn.OriginatorAccount})

	if txn.CardNumber != "" && !validCardNumber(txn.CardNumber) {
		return reject(result, "Invalid card number"), nil
	}

	now := g.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	count, total, err := g.datasource.GetAccountActivity(ctx, txn.OriginatorAccount, startOfDay, txn.ID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if count >= g.cfg.MaxDailyTransactionCount {
		return reject(result, fmt.Sprintf("Daily transaction count limit of %d reached", g.cfg.MaxDailyTransactionCount)), nil
	}
	maxDaily := decimal.NewFromFloat(g.cfg.MaxDailyAmount)
	if total.Add(txn.Amount).GreaterThan(maxDaily) {
		return reject(result, fmt.Sprintf("Daily amount limit of %s exceeded", maxDaily)), nil
	}

	window := time.Duration(g.cfg.RecentFailureWindowMinutes) * time.Minute
	failures, err := g.datasource.CountFailedTransactions(ctx, txn.OriginatorAccount, now.Add(-window))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if failures >= g.cfg.MaxRecentFailures {
		return reject(result, fmt.Sprintf("%d failed transactions in the last %s", failures, window)), nil
	}

	if txn.Amount.GreaterThanOrEqual(decimal.NewFromFloat(g.cfg.HighAmountThreshold)) {
		result.Flags = append(result.Flags, "high_amount")
		log.WithField("amount", txn.Amount.String()).Warn("high amount transaction")
	}
	if bin := txn.CardBIN(); bin != "" {
		log.WithField("bin", bin).Debug("card transaction")
	}

	return result, nil
}

func reject(r *model.FraudResult, reason string) *model.FraudResult {
	r.IsFraudulent = true
	r.Reason = reason
	return r
}

func validCardNumber(card string) bool {
	if len(card) < 16 {
		return false
	}
	for _, c := range card {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
