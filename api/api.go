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
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/blnkfinance/hub"
	"github.com/blnkfinance/hub/api/middleware"
	"github.com/blnkfinance/hub/config"
	"github.com/blnkfinance/hub/internal/apierror"
)

type Api struct {
	hub      *hub.Hub
	balances *hub.BalanceStore
	router   *gin.Engine
	now      func() time.Time
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/transactions", a.RecordTransaction)
	router.GET("/transactions", a.ListTransactions)
	router.GET("/transactions/:reference", a.GetTransaction)
	router.POST("/transactions/:reference/process", a.ProcessTransaction)
	router.POST("/transactions/:reference/verify", a.VerifyTransaction)
	router.POST("/transactions/:reference/cancel", a.CancelTransaction)
	router.POST("/transactions/:reference/refund", a.RefundTransaction)
	router.PUT("/transactions/:reference/status", a.UpdateTransactionStatus)

	router.POST("/balances", a.OpenBalance)
	router.GET("/balances/:account", a.GetBalance)
	router.POST("/balances/:account/freeze", a.FreezeFunds)
	router.POST("/balances/:account/unfreeze", a.ReleaseFunds)
	router.POST("/balances/:account/debit", a.DebitAccount)
	router.POST("/balances/:account/credit", a.CreditAccount)
	router.GET("/balances/:account/availability", a.CheckAvailability)

	router.GET("/ledger/transactions/:id", a.GetLedgerEntriesByTransaction)
	router.GET("/ledger/banks/:code", a.GetLedgerEntriesByBank)
	router.GET("/ledger/accounts/:account", a.GetLedgerEntriesByAccount)

	router.POST("/settlements", a.CreateSettlementBatch)
	router.GET("/settlements", a.ListSettlementBatches)
	router.GET("/settlements/:id", a.GetSettlementBatch)
	router.POST("/settlements/:id/process", a.ProcessSettlementBatch)

	router.POST("/settle", a.Settle)
	router.GET("/fees", a.GetFee)
	return a.router
}

// NewAPI builds the router over h. balances serves the source-bank routes and
// may be the store h settles against.
func NewAPI(h *hub.Hub, balances *hub.BalanceStore) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(conf.ProjectName), middleware.RequestLogger(logrus.StandardLogger()))
	if conf.Server.SecretKey != "" {
		r.Use(middleware.SecretKeyAuthMiddleware(conf.Server.SecretKey))
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{hub: h, balances: balances, router: r, now: time.Now}
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	message := err.Error()
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		message = apiErr.Message
	}
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{
		"success": false,
		"code":    apierror.CodeOf(err),
		"message": message,
	})
}

// badRequest answers binding and validation failures.
func badRequest(c *gin.Context, err error) {
	respondError(c, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil))
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// timeRange reads from and to. Without them the last 24 hours are used.
func (a Api) timeRange(c *gin.Context) (time.Time, time.Time, error) {
	to := a.now()
	if raw := c.Query("to"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be RFC3339 or YYYY-MM-DD")
		}
		to = t
	}
	from := to.Add(-24 * time.Hour)
	if raw := c.Query("from"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be RFC3339 or YYYY-MM-DD")
		}
		from = t
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must be before to")
	}
	return from, to, nil
}
