package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apimodel "github.com/blnkfinance/hub/api/model"
	"github.com/blnkfinance/hub/model"
)

func (a Api) RecordTransaction(c *gin.Context) {
	var req apimodel.RecordTransaction
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateRecordTransaction(); err != nil {
		badRequest(c, err)
		return
	}

	txn, err := a.hub.RecordTransaction(c.Request.Context(), req.ToTransaction())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}

// GetTransaction looks up by reference id, or by transaction id with ?by=id.
func (a Api) GetTransaction(c *gin.Context) {
	ref := c.Param("reference")

	var (
		txn *model.Transaction
		err error
	)
	if c.Query("by") == "id" {
		txn, err = a.hub.GetTransaction(c.Request.Context(), ref)
	} else {
		txn, err = a.hub.GetTransactionByRef(c.Request.Context(), ref)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (a Api) ListTransactions(c *gin.Context) {
	filter := model.TransactionFilter{
		BankCode: c.Query("bank_code"),
		Account:  c.Query("account"),
	}
	if raw := c.Query("status"); raw != "" {
		status, err := model.ParseStatus(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		filter.Status = status
	}
	if c.Query("from") != "" || c.Query("to") != "" {
		from, to, err := a.timeRange(c)
		if err != nil {
			badRequest(c, err)
			return
		}
		filter.From, filter.To = from, to
	}

	var err error
	if filter.Limit, err = queryInt(c, "limit", 20); err != nil {
		badRequest(c, err)
		return
	}
	if filter.Offset, err = queryInt(c, "offset", 0); err != nil {
		badRequest(c, err)
		return
	}

	txns, err := a.hub.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txns)
}

func (a Api) ProcessTransaction(c *gin.Context) {
	txn, err := a.hub.ProcessTransaction(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (a Api) VerifyTransaction(c *gin.Context) {
	var req apimodel.VerifyTransaction
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateVerifyTransaction(); err != nil {
		badRequest(c, err)
		return
	}

	outcome, err := a.hub.VerifyTransaction(c.Request.Context(), req.ToVerifyRequest(c.Param("reference")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (a Api) CancelTransaction(c *gin.Context) {
	outcome, err := a.hub.CancelTransaction(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (a Api) RefundTransaction(c *gin.Context) {
	var req apimodel.RefundTransaction
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateRefundTransaction(); err != nil {
		badRequest(c, err)
		return
	}

	txn, err := a.hub.RefundTransaction(c.Request.Context(), c.Param("reference"), req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (a Api) UpdateTransactionStatus(c *gin.Context) {
	var req apimodel.UpdateStatus
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateUpdateStatus(); err != nil {
		badRequest(c, err)
		return
	}
	status, _ := model.ParseStatus(req.Status)

	txn, err := a.hub.UpdateTransactionStatus(c.Request.Context(), c.Param("reference"), status, req.Detail)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}
