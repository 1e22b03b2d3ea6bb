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

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/hub"
	"github.com/blnkfinance/hub/bank"
	"github.com/blnkfinance/hub/cache"
	"github.com/blnkfinance/hub/config"
	"github.com/blnkfinance/hub/database"
	"github.com/blnkfinance/hub/internal/archive"
	"github.com/blnkfinance/hub/internal/lock"
	"github.com/blnkfinance/hub/internal/notification"
	redis_db "github.com/blnkfinance/hub/internal/redis-db"
)

// Hub represents the CLI application, encapsulating the root Cobra command.
type Hub struct {
	cmd *cobra.Command
}

// hubInstance holds the runtime services shared by the commands. Only
// the configuration is loaded up front; setup wires the rest on demand.
type hubInstance struct {
	cnf      *config.Configuration
	hub      *hub.Hub
	balances *hub.BalanceStore
	queue    *hub.Queue
	webhooks *hub.WebhookDispatcher
	closers  []func() error
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration file named by --config before any command runs.
func preRun(app *hubInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(*configFile); err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		app.cnf = cnf
		return nil
	}
}

// setup connects the datasource, redis and the queue, then builds the hub.
func (app *hubInstance) setup() error {
	cnf := app.cnf
	logger := logrus.StandardLogger()

	redisClient, err := redis_db.NewRedisClient(redis_db.SplitDSN(cnf.Redis.Dns), cnf.Redis.SkipTLSVerify)
	if err != nil {
		return fmt.Errorf("error connecting to redis: %w", err)
	}
	app.closers = append(app.closers, redisClient.Close)

	ds, err := database.NewDataSource(cnf, cache.NewCache(redisClient.Client()))
	if err != nil {
		return fmt.Errorf("error getting datasource: %w", err)
	}
	app.closers = append(app.closers, ds.Conn.Close)

	queue, err := hub.NewQueue(cnf, logger)
	if err != nil {
		return fmt.Errorf("error creating queue: %w", err)
	}
	app.closers = append(app.closers, queue.Close)

	notifier := notification.New(logger, cnf.Notification.Slack.WebhookUrl)
	opts := []hub.Option{
		hub.WithLogger(logger),
		hub.WithScheduler(queue),
		hub.WithLocker(lock.NewManager(redisClient.Client(), "hub-lock:", cnf.Transaction.LockTTL(), cnf.Transaction.LockWait())),
		hub.WithNotifier(notifier),
	}
	if cnf.Notification.Webhook.Url != "" {
		opts = append(opts, hub.WithEventSink(hub.NewWebhookSink(queue)))
	}
	if !cnf.Network.Simulate {
		opts = append(opts, hub.WithParties(httpParties(cnf, logger)))
	}
	if cnf.Network.RemoteFundsBaseUrl != "" {
		opts = append(opts, hub.WithFunds(bank.NewFundsClient(cnf.Network.RemoteFundsBaseUrl, cnf.Network.SourceBank.Headers, networkTimeout(cnf))))
	}

	reports, err := archive.New(cnf.Archive)
	switch {
	case err == nil:
		opts = append(opts, hub.WithArchiver(reports))
	case !errors.Is(err, archive.ErrNotConfigured):
		return fmt.Errorf("error creating settlement archive: %w", err)
	}

	app.hub = hub.NewHub(ds, cnf, opts...)
	app.queue = queue
	app.webhooks = hub.NewWebhookDispatcher(cnf.Notification.Webhook, logger)

	// The balance routes are always served from the local store; with remote
	// funds configured the hub itself settles elsewhere.
	if local, ok := app.hub.Funds().(*hub.BalanceStore); ok {
		app.balances = local
	} else {
		app.balances = hub.NewBalanceStore(ds, logger)
	}
	return nil
}

func httpParties(cnf *config.Configuration, logger logrus.FieldLogger) (source, destination, network bank.Party) {
	n := cnf.Network
	timeout := networkTimeout(cnf)
	source = bank.NewHTTPParty("source_bank", n.SourceBank.Url, n.SourceBank.Headers, timeout, n.MaxTransportRetry, logger)
	destination = bank.NewHTTPParty("destination_bank", n.DestinationBank.Url, n.DestinationBank.Headers, timeout, n.MaxTransportRetry, logger)
	network = bank.NewHTTPParty("switch", n.Switch.Url, n.Switch.Headers, timeout, n.MaxTransportRetry, logger)
	return source, destination, network
}

func networkTimeout(cnf *config.Configuration) time.Duration {
	return time.Duration(cnf.Network.TimeoutSeconds) * time.Second
}

// close releases everything setup opened, last opened first.
func (app *hubInstance) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			logrus.WithError(err).Warn("error during shutdown")
		}
	}
	app.closers = nil
}

// NewCLI creates the command-line interface (CLI) for the hub.
func NewCLI() *Hub {
	var configFile string
	app := &hubInstance{}

	var rootCmd = &cobra.Command{
		Use:   "hub",
		Short: "Interbank payment switching hub",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./hub.json", "Configuration file for the hub")
	rootCmd.PersistentPreRunE = preRun(app, &configFile)

	rootCmd.AddCommand(serverCommands(app))
	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(migrateCommands(app))
	rootCmd.AddCommand(configCommands())
	rootCmd.AddCommand(settleCommands(app))
	rootCmd.AddCommand(sweepCommands(app))

	return &Hub{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (h Hub) executeCLI() {
	if err := h.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
