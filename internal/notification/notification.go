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

package notification

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/blnkfinance/hub/internal/request"
	"github.com/sirupsen/logrus"
)

const sendTimeout = 10 * time.Second

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

// Notifier reports operator-facing failures such as settlement batches that
// did not complete or ledger commits that were rolled back.
type Notifier struct {
	logger   logrus.FieldLogger
	slackURL string
	client   *http.Client
}

func New(logger logrus.FieldLogger, slackWebhookURL string) *Notifier {
	return &Notifier{logger: logger, slackURL: slackWebhookURL, client: &http.Client{Timeout: sendTimeout}}
}

func slackPayload(title string, err error, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"blocks": []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: title, Emoji: true}},
			{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Error:*\n%v", err)}}},
			{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Time:*\n%s", at.Format(time.RFC822))}}},
		},
	}
}

// Slack posts err to the configured incoming webhook.
func (n *Notifier) Slack(ctx context.Context, title string, err error) error {
	if n.slackURL == "" {
		return nil
	}
	_, sendErr := request.Do(ctx, n.client, http.MethodPost, n.slackURL, nil, slackPayload(title, err, time.Now()), nil)
	return sendErr
}

// NotifyError logs err and forwards it to slack without blocking the caller.
func (n *Notifier) NotifyError(title string, err error) {
	n.logger.WithError(err).Error(title)
	if n.slackURL == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if sendErr := n.Slack(ctx, title, err); sendErr != nil {
			n.logger.WithError(sendErr).Warn("slack notification failed")
		}
	}()
}
