/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package hub

import (
	"context"
	"embed"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/blnkfinance/hub/bank"
	"github.com/blnkfinance/hub/config"
	"github.com/blnkfinance/hub/database"
	"github.com/blnkfinance/hub/model"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

var tracer = otel.Tracer("hub")

// Scheduler defers work to the background workers.
type Scheduler interface {
	ScheduleProcessing(ctx context.Context, txn *model.Transaction, delay time.Duration) error
	ScheduleHoldExpiry(ctx context.Context, accountID, transactionID string, at time.Time) error
}

// Locker serialises operations on one transaction across workers.
// redlock.Manager satisfies it.
type Locker interface {
	Acquire(ctx context.Context, name string) (func(context.Context) error, error)
}

// ErrorNotifier reports failures that need an operator's attention.
type ErrorNotifier interface {
	NotifyError(title string, err error)
}

// ReportArchiver stores settlement reports and returns their location.
type ReportArchiver interface {
	Archive(ctx context.Context, key string, body []byte) (string, error)
}

// Hub drives cross-bank transactions from submission to settlement.
type Hub struct {
	datasource  database.IDataSource
	funds       Funds
	source      bank.Party
	destination bank.Party
	network     bank.Party
	fraud       *FraudGate
	scheduler   Scheduler
	locker      Locker
	events      EventSink
	notifier    ErrorNotifier
	archiver    ReportArchiver
	logger      logrus.FieldLogger
	cfg         *config.Configuration
	now         func() time.Time
}

type Option func(*Hub)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(h *Hub) { h.logger = logger }
}

func WithEventSink(sink EventSink) Option {
	return func(h *Hub) { h.events = sink }
}

// WithParties sets the source bank, destination bank and network adapters.
func WithParties(source, destination, network bank.Party) Option {
	return func(h *Hub) {
		h.source, h.destination, h.network = source, destination, network
	}
}

func WithFunds(funds Funds) Option {
	return func(h *Hub) { h.funds = funds }
}

func WithScheduler(s Scheduler) Option {
	return func(h *Hub) { h.scheduler = s }
}

func WithLocker(l Locker) Option {
	return func(h *Hub) { h.locker = l }
}

func WithNotifier(n ErrorNotifier) Option {
	return func(h *Hub) { h.notifier = n }
}

func WithArchiver(a ReportArchiver) Option {
	return func(h *Hub) { h.archiver = a }
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// NewHub wires a hub over ds. Without options it settles funds in-process
// against ds, talks to simulated counter-parties and schedules nothing.
func NewHub(ds database.IDataSource, cfg *config.Configuration, opts ...Option) *Hub {
	if cfg == nil {
		cfg = config.Defaults()
	}
	h := &Hub{
		datasource: ds,
		cfg:        cfg,
		logger:     logrus.StandardLogger(),
		events:     DiscardSink{},
		scheduler:  noopScheduler{},
		locker:     newLocalLocker(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.source == nil || h.destination == nil || h.network == nil {
		h.source = bank.NewSimulator("source_bank")
		h.destination = bank.NewSimulator("destination_bank")
		h.network = bank.NewSimulator("switch")
	}
	if h.funds == nil {
		store := NewBalanceStore(ds, h.logger)
		store.freezeExpiry = cfg.Transaction.FreezeExpiry()
		store.now = h.now
		h.funds = store
	}
	h.fraud = NewFraudGate(ds, cfg.Fraud, h.logger)
	h.fraud.now = h.now
	return h
}

// Funds exposes the reservation engine the hub settles against.
func (h *Hub) Funds() Funds {
	return h.funds
}

func (h *Hub) parties() []bank.Party {
	return []bank.Party{h.source, h.destination, h.network}
}

func (h *Hub) withLock(ctx context.Context, referenceID string, fn func() error) error {
	release, err := h.locker.Acquire(ctx, "transaction:"+referenceID)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			h.logger.WithField("reference_id", referenceID).WithError(err).Warn("failed to release transaction lock")
		}
	}()
	return fn()
}

func (h *Hub) notify(title string, err error) {
	if h.notifier != nil {
		h.notifier.NotifyError(title, err)
	}
}

func logAndRecordError(span trace.Span, logger logrus.FieldLogger, msg string, err error) error {
	span.RecordError(err)
	logger.WithError(err).Error(msg)
	return err
}

type noopScheduler struct{}

func (noopScheduler) ScheduleProcessing(context.Context, *model.Transaction, time.Duration) error {
	return nil
}

func (noopScheduler) ScheduleHoldExpiry(context.Context, string, string, time.Time) error {
	return nil
}

// localLocker is an in-process Locker keyed by name.
type localLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newLocalLocker() *localLocker {
	return &localLocker{locks: make(map[string]*keyLock)}
}

func (l *localLocker) Acquire(ctx context.Context, name string) (func(context.Context) error, error) {
	l.mu.Lock()
	k, ok := l.locks[name]
	if !ok {
		k = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[name] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(name, k)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-k.ch
			l.drop(name, k)
		})
		return nil
	}, nil
}

func (l *localLocker) drop(name string, k *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(l.locks, name)
	}
}
