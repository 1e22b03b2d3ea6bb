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
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/hub/config"
	"github.com/blnkfinance/hub/internal/request"
	"github.com/blnkfinance/hub/model"
)

// NewWebhook represents the structure of a webhook notification.
// It includes an event type and associated payload data.
type NewWebhook struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"data"`
}

// WebhookSink publishes events by enqueueing them for delivery.
type WebhookSink struct {
	queue *Queue
}

func NewWebhookSink(q *Queue) *WebhookSink {
	return &WebhookSink{queue: q}
}

func (s *WebhookSink) Publish(ctx context.Context, event model.Event) error {
	return s.queue.EnqueueWebhook(ctx, event)
}

// WebhookDispatcher delivers queued webhooks to the configured endpoint.
type WebhookDispatcher struct {
	url     string
	headers map[string]string
	client  *http.Client
	logger  logrus.FieldLogger
}

func NewWebhookDispatcher(conf config.WebhookConfig, logger logrus.FieldLogger) *WebhookDispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WebhookDispatcher{
		url:     conf.Url,
		headers: conf.Headers,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// ProcessWebhook posts a queued webhook. 4xx answers are dropped; transport
// failures and 5xx answers are retried by asynq.
func (d *WebhookDispatcher) ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	if d.url == "" {
		return nil
	}

	var payload NewWebhook
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		d.logger.WithError(err).Error("invalid webhook payload")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	_, err := request.Do(ctx, d.client, http.MethodPost, d.url, d.headers, payload, nil)
	if err != nil {
		var se *request.StatusError
		if errors.As(err, &se) && se.Permanent() {
			d.logger.WithFields(logrus.Fields{"event": payload.Event, "status": se.StatusCode}).Warn("webhook rejected by receiver")
			return nil
		}
		d.logger.WithField("event", payload.Event).WithError(err).Warn("webhook delivery failed")
		return err
	}

	d.logger.WithField("event", payload.Event).Info("webhook delivered")
	return nil
}
