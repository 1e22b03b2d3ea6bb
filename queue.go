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
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/hub/config"
	"github.com/blnkfinance/hub/internal/apierror"
	redis_db "github.com/blnkfinance/hub/internal/redis-db"
	"github.com/blnkfinance/hub/model"
)

const (
	TaskExpireHold = "hold:expire"
	TaskSweep      = "maintenance:sweep"
	TaskSettlement = "maintenance:settlement"
)

// Queue schedules the hub's background work on asynq.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	cfg       config.QueueConfig
	logger    logrus.FieldLogger
}

type processPayload struct {
	ReferenceID string `json:"reference_id"`
	Attempt     int    `json:"attempt"`
}

type holdPayload struct {
	AccountID     string `json:"account_id"`
	TransactionID string `json:"transaction_id"`
}

// RedisClientOpt builds the asynq connection options from the redis DSN.
func RedisClientOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	opt, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("error parsing Redis URL: %w", err)
	}
	return asynq.RedisClientOpt{Addr: opt.Addr, Password: opt.Password, DB: opt.DB, TLSConfig: opt.TLSConfig}, nil
}

func NewQueue(conf *config.Configuration, logger logrus.FieldLogger) (*Queue, error) {
	opt, err := RedisClientOpt(conf)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Queue{
		Client:    asynq.NewClient(opt),
		Inspector: asynq.NewInspector(opt),
		cfg:       conf.Queue,
		logger:    logger,
	}, nil
}

func (q *Queue) Close() error {
	if err := q.Inspector.Close(); err != nil {
		return err
	}
	return q.Client.Close()
}

// TransactionQueue picks the queue for an originator account. All of an
// account's transactions hash onto one queue so they run serially.
func (q *Queue) TransactionQueue(account string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(account))
	n := int(h.Sum32()%uint32(q.cfg.NumberOfQueues)) + 1
	return fmt.Sprintf("%s_%d", q.cfg.TransactionQueue, n)
}

// Queues lists every queue a worker should serve with its priority.
func (q *Queue) Queues() map[string]int {
	queues := map[string]int{
		q.cfg.WebhookQueue:     3,
		q.cfg.MaintenanceQueue: 2,
	}
	for i := 1; i <= q.cfg.NumberOfQueues; i++ {
		queues[fmt.Sprintf("%s_%d", q.cfg.TransactionQueue, i)] = 5
	}
	return queues
}

// ScheduleProcessing enqueues a processing attempt for txn after delay. The
// task id makes scheduling the same attempt twice harmless.
func (q *Queue) ScheduleProcessing(ctx context.Context, txn *model.Transaction, delay time.Duration) error {
	payload, err := json.Marshal(processPayload{ReferenceID: txn.ReferenceID, Attempt: txn.RetryCount})
	if err != nil {
		return err
	}
	queue := q.TransactionQueue(txn.OriginatorAccount)
	task := asynq.NewTask(queue, payload,
		asynq.TaskID(fmt.Sprintf("process:%s:%d", txn.ReferenceID, txn.RetryCount)),
		asynq.Queue(queue),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(5),
	)
	return q.enqueue(ctx, task, txn.ReferenceID)
}

// ScheduleHoldExpiry enqueues the release check for a hold at its expiry.
func (q *Queue) ScheduleHoldExpiry(ctx context.Context, accountID, transactionID string, at time.Time) error {
	payload, err := json.Marshal(holdPayload{AccountID: accountID, TransactionID: transactionID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskExpireHold, payload,
		asynq.TaskID("hold:"+transactionID),
		asynq.Queue(q.cfg.MaintenanceQueue),
		asynq.ProcessAt(at),
	)
	return q.enqueue(ctx, task, transactionID)
}

// EnqueueWebhook queues an event for HTTP delivery.
func (q *Queue) EnqueueWebhook(ctx context.Context, event model.Event) error {
	payload, err := json.Marshal(NewWebhook{Event: event.Type, Payload: event})
	if err != nil {
		return err
	}
	task := asynq.NewTask(q.cfg.WebhookQueue, payload, asynq.Queue(q.cfg.WebhookQueue), asynq.MaxRetry(10))
	return q.enqueue(ctx, task, event.ReferenceID)
}

func (q *Queue) enqueue(ctx context.Context, task *asynq.Task, ref string) error {
	info, err := q.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		q.logger.WithField("task", task.Type()).WithError(err).Error("failed to enqueue task")
		return err
	}
	q.logger.WithFields(logrus.Fields{"task": task.Type(), "queue": info.Queue, "ref": ref}).Debug("task enqueued")
	return nil
}

// NewScheduler registers the periodic sweep and settlement tasks.
func NewScheduler(conf *config.Configuration) (*asynq.Scheduler, error) {
	opt, err := RedisClientOpt(conf)
	if err != nil {
		return nil, err
	}
	scheduler := asynq.NewScheduler(opt, nil)
	if _, err := scheduler.Register(conf.Queue.SweepCron, asynq.NewTask(TaskSweep, nil), asynq.Queue(conf.Queue.MaintenanceQueue)); err != nil {
		return nil, err
	}
	if _, err := scheduler.Register(conf.Queue.SettlementCron, asynq.NewTask(TaskSettlement, nil), asynq.Queue(conf.Queue.MaintenanceQueue)); err != nil {
		return nil, err
	}
	return scheduler, nil
}

// RegisterHandlers routes every hub task type to its handler on mux.
func (h *Hub) RegisterHandlers(mux *asynq.ServeMux, q *Queue, webhooks *WebhookDispatcher) {
	for name := range q.Queues() {
		if name == q.cfg.WebhookQueue || name == q.cfg.MaintenanceQueue {
			continue
		}
		mux.HandleFunc(name, h.HandleProcessTask)
	}
	mux.HandleFunc(TaskExpireHold, h.HandleExpireHoldTask)
	mux.HandleFunc(TaskSweep, h.HandleSweepTask)
	mux.HandleFunc(TaskSettlement, h.HandleSettlementTask)
	if webhooks != nil {
		mux.HandleFunc(q.cfg.WebhookQueue, webhooks.ProcessWebhook)
	}
}

// HandleProcessTask runs one processing attempt. Business rejections are
// final; infrastructure errors go back to asynq for a retry.
func (h *Hub) HandleProcessTask(ctx context.Context, t *asynq.Task) error {
	var p processPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	txn, err := h.ProcessTransaction(ctx, p.ReferenceID)
	if err != nil {
		return taskError(err)
	}
	h.logger.WithFields(logrus.Fields{"reference_id": p.ReferenceID, "status": txn.Status}).Info(" [*] Transaction processed")
	return nil
}

func (h *Hub) HandleExpireHoldTask(ctx context.Context, t *asynq.Task) error {
	var p holdPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return taskError(h.ExpireHold(ctx, p.AccountID, p.TransactionID))
}

func (h *Hub) HandleSweepTask(ctx context.Context, _ *asynq.Task) error {
	_, err := h.SweepStuckTransactions(ctx)
	return err
}

func (h *Hub) HandleSettlementTask(ctx context.Context, _ *asynq.Task) error {
	batch, err := h.RunDailySettlement(ctx, h.now())
	if err != nil {
		h.notify("Daily settlement failed", err)
		return taskError(err)
	}
	if batch != nil {
		h.logger.WithFields(logrus.Fields{"batch_number": batch.BatchNumber, "status": batch.Status}).Info(" [*] Daily settlement processed")
	}
	return nil
}

// taskError tells asynq not to retry failures a retry cannot fix.
func taskError(err error) error {
	if err == nil || apierror.Retryable(err) {
		return err
	}
	return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
}
