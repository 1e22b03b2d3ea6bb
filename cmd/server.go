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
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/hub/api"
	"github.com/blnkfinance/hub/config"
	"github.com/blnkfinance/hub/internal/traces"
)

/*
serveTLS starts an HTTPS server with certificates managed by CertMagic.
Without a domain the server falls back to localhost.
*/
func serveTLS(r *gin.Engine, conf config.ServerConfig) error {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: "certmagic"}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		logrus.Info("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(context.Background(), domains); err != nil {
		return err
	}

	server := &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}

	logrus.Infof("Starting HTTPS server on %s", conf.Port)
	if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTPS server: %w", err)
	}
	return nil
}

// sendHeartbeat reports a running instance to PostHog every five minutes.
func sendHeartbeat(client posthog.Client, heartbeatID, service string) {
	ticker := time.NewTicker(5 * time.Minute)
	go func() {
		for range ticker.C {
			if err := client.Enqueue(posthog.Capture{
				DistinctId: heartbeatID,
				Event:      "server_heartbeat",
				Properties: map[string]interface{}{
					"service":   service,
					"timestamp": time.Now().UTC(),
				},
			}); err != nil {
				logrus.Warnf("Failed to send heartbeat: %v", err)
			}
		}
	}()
}

func initializePostHog(cfg config.TelemetryConfig, service string) (posthog.Client, error) {
	if cfg.PosthogKey == "" {
		return nil, nil
	}
	client, err := posthog.NewWithConfig(cfg.PosthogKey, posthog.Config{Endpoint: cfg.PosthogEndpoint})
	if err != nil {
		return nil, fmt.Errorf("error creating posthog client: %w", err)
	}
	sendHeartbeat(client, uuid.New().String(), service)
	return client, nil
}

// initializeObservability sets up tracing and the telemetry heartbeat when
// telemetry is enabled. The returned shutdown is never nil.
func initializeObservability(ctx context.Context, cfg *config.Configuration, service string) (posthog.Client, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Telemetry.Enabled {
		return nil, noop, nil
	}

	shutdown, err := traces.SetupOTelSDK(ctx, cfg.ProjectName)
	if err != nil {
		return nil, noop, fmt.Errorf("error setting up OTel SDK: %w", err)
	}

	phClient, err := initializePostHog(cfg.Telemetry, service)
	if err != nil {
		logrus.WithError(err).Warn("telemetry heartbeat disabled")
	}
	return phClient, shutdown, nil
}

func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	if cfg.SSL {
		return serveTLS(router, cfg)
	}
	logrus.Infof("Starting server on http://localhost:%s", cfg.Port)
	return router.Run(":" + cfg.Port)
}

// serverCommands returns the `start` command serving the HTTP routes.
func serverCommands(app *hubInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the hub server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			phClient, shutdown, err := initializeObservability(ctx, app.cnf, "server")
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

			a := api.NewAPI(app.hub, app.balances)
			if a == nil {
				return errors.New("config not loaded")
			}
			return startServer(a.Router(), app.cnf.Server)
		},
	}

	return cmd
}
