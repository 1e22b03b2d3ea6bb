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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"

	DEFAULT_MAX_RETRY_ATTEMPTS    = 3
	DEFAULT_RETRY_BASE_SECONDS    = 5
	DEFAULT_RETRY_MAX_SECONDS     = 60
	DEFAULT_TXN_TIMEOUT_SECONDS   = 1800
	DEFAULT_FREEZE_EXPIRY_SECONDS = 86400
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL    bool   `json:"ssl" envconfig:"HUB_SERVER_SSL"`
	Domain string `json:"domain" envconfig:"HUB_SERVER_SSL_DOMAIN"`
	Email  string `json:"ssl_email" envconfig:"HUB_SERVER_SSL_EMAIL"`
	Port   string `json:"port" envconfig:"HUB_SERVER_PORT"`

	// SecretKey, when set, is required in the X-Hub-Key header of every request.
	SecretKey string `json:"secret_key" envconfig:"HUB_SERVER_SECRET_KEY"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"HUB_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"HUB_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"HUB_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	TransactionQueue string `json:"transaction_queue" envconfig:"HUB_QUEUE_TRANSACTION"`
	WebhookQueue     string `json:"webhook_queue" envconfig:"HUB_QUEUE_WEBHOOK"`
	MaintenanceQueue string `json:"maintenance_queue" envconfig:"HUB_QUEUE_MAINTENANCE"`
	NumberOfQueues   int    `json:"number_of_queues" envconfig:"HUB_QUEUE_NUMBER_OF_QUEUES"`
	MonitoringPort   string `json:"monitoring_port" envconfig:"HUB_QUEUE_MONITORING_PORT"`
	SweepCron        string `json:"sweep_cron" envconfig:"HUB_QUEUE_SWEEP_CRON"`
	SettlementCron   string `json:"settlement_cron" envconfig:"HUB_QUEUE_SETTLEMENT_CRON"`
}

// TransactionConfig holds the lifecycle knobs of the state machine.
type TransactionConfig struct {
	MaxRetryAttempts          int `json:"max_retry_attempts" envconfig:"HUB_MAX_RETRY_ATTEMPTS"`
	RetryBaseDelaySeconds     int `json:"retry_base_delay_seconds" envconfig:"HUB_RETRY_BASE_DELAY_SECONDS"`
	RetryMaxDelaySeconds      int `json:"retry_max_delay_seconds" envconfig:"HUB_RETRY_MAX_DELAY_SECONDS"`
	TransactionTimeoutSeconds int `json:"transaction_timeout_seconds" envconfig:"HUB_TRANSACTION_TIMEOUT_SECONDS"`
	FreezeExpirySeconds       int `json:"freeze_expiry_seconds" envconfig:"HUB_FREEZE_EXPIRY_SECONDS"`
	LockTTLSeconds            int `json:"lock_ttl_seconds" envconfig:"HUB_LOCK_TTL_SECONDS"`
	LockWaitSeconds           int `json:"lock_wait_seconds" envconfig:"HUB_LOCK_WAIT_SECONDS"`
}

type FraudConfig struct {
	MaxDailyTransactionCount   int     `json:"max_daily_transaction_count" envconfig:"HUB_FRAUD_MAX_DAILY_COUNT"`
	MaxDailyAmount             float64 `json:"max_daily_amount" envconfig:"HUB_FRAUD_MAX_DAILY_AMOUNT"`
	HighAmountThreshold        float64 `json:"high_amount_threshold" envconfig:"HUB_FRAUD_HIGH_AMOUNT_THRESHOLD"`
	MaxRecentFailures          int     `json:"max_recent_failures" envconfig:"HUB_FRAUD_MAX_RECENT_FAILURES"`
	RecentFailureWindowMinutes int     `json:"recent_failure_window_minutes" envconfig:"HUB_FRAUD_RECENT_FAILURE_WINDOW_MINUTES"`
}

type PartyEndpoint struct {
	Url     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

// NetworkConfig points the hub at its counter-parties. With Simulate set the
// in-process simulator is used for all three.
type NetworkConfig struct {
	Simulate           bool          `json:"simulate" envconfig:"HUB_NETWORK_SIMULATE"`
	TimeoutSeconds     int           `json:"timeout_seconds" envconfig:"HUB_NETWORK_TIMEOUT_SECONDS"`
	MaxTransportRetry  int           `json:"max_transport_retry" envconfig:"HUB_NETWORK_MAX_TRANSPORT_RETRY"`
	SourceBank         PartyEndpoint `json:"source_bank"`
	DestinationBank    PartyEndpoint `json:"destination_bank"`
	Switch             PartyEndpoint `json:"switch"`
	RemoteFundsBaseUrl string        `json:"remote_funds_base_url" envconfig:"HUB_NETWORK_REMOTE_FUNDS_URL"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"HUB_SLACK_WEBHOOK_URL"`
}

type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"HUB_WEBHOOK_URL"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
}

type ArchiveConfig struct {
	S3Bucket        string `json:"s3_bucket" envconfig:"HUB_ARCHIVE_S3_BUCKET"`
	S3Region        string `json:"s3_region" envconfig:"HUB_ARCHIVE_S3_REGION"`
	S3Endpoint      string `json:"s3_endpoint" envconfig:"HUB_ARCHIVE_S3_ENDPOINT"`
	AccessKeyId     string `json:"access_key_id" envconfig:"HUB_ARCHIVE_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"secret_access_key" envconfig:"HUB_ARCHIVE_SECRET_ACCESS_KEY"`
}

type TelemetryConfig struct {
	Enabled         bool   `json:"enabled" envconfig:"HUB_TELEMETRY_ENABLED"`
	PosthogKey      string `json:"posthog_key" envconfig:"HUB_TELEMETRY_POSTHOG_KEY"`
	PosthogEndpoint string `json:"posthog_endpoint" envconfig:"HUB_TELEMETRY_POSTHOG_ENDPOINT"`
}

type Configuration struct {
	ProjectName  string            `json:"project_name" envconfig:"HUB_PROJECT_NAME"`
	Server       ServerConfig      `json:"server"`
	DataSource   DataSourceConfig  `json:"data_source"`
	Redis        RedisConfig       `json:"redis"`
	Queue        QueueConfig       `json:"queue"`
	Transaction  TransactionConfig `json:"transaction"`
	Fraud        FraudConfig       `json:"fraud"`
	Network      NetworkConfig     `json:"network"`
	Notification Notification      `json:"notification"`
	Archive      ArchiveConfig     `json:"archive"`
	Telemetry    TelemetryConfig   `json:"telemetry"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("hub", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called hub.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Payment Hub"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	cnf.Queue.addDefaults()
	cnf.Transaction.addDefaults()
	cnf.Fraud.addDefaults()

	if cnf.Network.TimeoutSeconds <= 0 {
		cnf.Network.TimeoutSeconds = 30
	}
	if cnf.Network.MaxTransportRetry <= 0 {
		cnf.Network.MaxTransportRetry = 2
	}
	if cnf.Telemetry.PosthogEndpoint == "" {
		cnf.Telemetry.PosthogEndpoint = "https://us.i.posthog.com"
	}

	return nil
}

func (q *QueueConfig) addDefaults() {
	if q.TransactionQueue == "" {
		q.TransactionQueue = "hub_transactions"
	}
	if q.WebhookQueue == "" {
		q.WebhookQueue = "hub_webhooks"
	}
	if q.MaintenanceQueue == "" {
		q.MaintenanceQueue = "hub_maintenance"
	}
	if q.NumberOfQueues <= 0 {
		q.NumberOfQueues = 20
	}
	if q.MonitoringPort == "" {
		q.MonitoringPort = "5004"
	}
	if q.SweepCron == "" {
		q.SweepCron = "@every 5m"
	}
	if q.SettlementCron == "" {
		q.SettlementCron = "30 23 * * *"
	}
}

func (t *TransactionConfig) addDefaults() {
	if t.MaxRetryAttempts <= 0 {
		t.MaxRetryAttempts = DEFAULT_MAX_RETRY_ATTEMPTS
	}
	if t.RetryBaseDelaySeconds <= 0 {
		t.RetryBaseDelaySeconds = DEFAULT_RETRY_BASE_SECONDS
	}
	if t.RetryMaxDelaySeconds <= 0 {
		t.RetryMaxDelaySeconds = DEFAULT_RETRY_MAX_SECONDS
	}
	if t.TransactionTimeoutSeconds <= 0 {
		t.TransactionTimeoutSeconds = DEFAULT_TXN_TIMEOUT_SECONDS
	}
	if t.FreezeExpirySeconds <= 0 {
		t.FreezeExpirySeconds = DEFAULT_FREEZE_EXPIRY_SECONDS
	}
	if t.LockTTLSeconds <= 0 {
		t.LockTTLSeconds = 60
	}
	if t.LockWaitSeconds <= 0 {
		t.LockWaitSeconds = 10
	}
}

func (f *FraudConfig) addDefaults() {
	if f.MaxDailyTransactionCount <= 0 {
		f.MaxDailyTransactionCount = 20
	}
	if f.MaxDailyAmount <= 0 {
		f.MaxDailyAmount = 300_000_000
	}
	if f.HighAmountThreshold <= 0 {
		f.HighAmountThreshold = 100_000_000
	}
	if f.MaxRecentFailures <= 0 {
		f.MaxRecentFailures = 3
	}
	if f.RecentFailureWindowMinutes <= 0 {
		f.RecentFailureWindowMinutes = 120
	}
}

func (t TransactionConfig) RetryBaseDelay() time.Duration {
	return time.Duration(t.RetryBaseDelaySeconds) * time.Second
}

func (t TransactionConfig) RetryMaxDelay() time.Duration {
	return time.Duration(t.RetryMaxDelaySeconds) * time.Second
}

func (t TransactionConfig) Timeout() time.Duration {
	return time.Duration(t.TransactionTimeoutSeconds) * time.Second
}

func (t TransactionConfig) FreezeExpiry() time.Duration {
	return time.Duration(t.FreezeExpirySeconds) * time.Second
}

func (t TransactionConfig) LockTTL() time.Duration {
	return time.Duration(t.LockTTLSeconds) * time.Second
}

func (t TransactionConfig) LockWait() time.Duration {
	return time.Duration(t.LockWaitSeconds) * time.Second
}

// Defaults returns a configuration with every optional field defaulted. It is
// meant for tests and tools that do not read hub.json.
func Defaults() *Configuration {
	cnf := &Configuration{ProjectName: "Payment Hub"}
	cnf.Server.Port = DEFAULT_PORT
	cnf.Queue.addDefaults()
	cnf.Transaction.addDefaults()
	cnf.Fraud.addDefaults()
	cnf.Network.TimeoutSeconds = 30
	cnf.Network.MaxTransportRetry = 2
	return cnf
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
