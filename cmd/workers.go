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
	"context"
	"fmt"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
	"golang.org/x/sync/errgroup"

	"github.com/blnkfinance/hub"
	"github.com/blnkfinance/hub/config"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	opt, err := hub.RedisClientOpt(conf)
	if err != nil {
		return nil, err
	}

	return asynq.NewServer(opt, asynq.Config{
		Concurrency: len(queues),
		Queues:      queues,
		Logger:      logrus.StandardLogger(),
	}), nil
}

// monitoringHandler serves asynqmon under /monitoring.
func monitoringHandler(conf *config.Configuration) (http.Handler, error) {
	opt, err := hub.RedisClientOpt(conf)
	if err != nil {
		return nil, err
	}
	return asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: opt,
	}), nil
}

// workerCommands defines the "workers" command. The workers run processing
// attempts, webhook deliveries, hold expiry and the periodic sweep and
// settlement tasks.
func workerCommands(app *hubInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start hub workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			conf := app.cnf

			phClient, shutdown, err := initializeObservability(ctx, conf, "workers")
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					logrus.WithError(err).Warn("error during telemetry shutdown")
				}
			}()
			if phClient != nil {
				defer phClient.Close()
			}

			if err := app.setup(); err != nil {
				return err
			}
			defer app.close()

			srv, err := initializeWorkerServer(conf, app.queue.Queues())
			if err != nil {
				return err
			}
			scheduler, err := hub.NewScheduler(conf)
			if err != nil {
				return fmt.Errorf("error creating scheduler: %w", err)
			}
			monitor, err := monitoringHandler(conf)
			if err != nil {
				return err
			}

			mux := asynq.NewServeMux()
			app.hub.RegisterHandlers(mux, app.queue, app.webhooks)

			g := new(errgroup.Group)
			g.Go(func() error {
				addr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				logrus.Infof("Asynqmon server listening on %s/monitoring", addr)
				return http.ListenAndServe(addr, monitor)
			})
			g.Go(func() error {
				return scheduler.Run()
			})
			g.Go(func() error {
				return srv.Run(mux)
			})
			return g.Wait()
		},
	}

	return cmd
}
