package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apimodel "github.com/blnkfinance/hub/api/model"
)

func (a Api) OpenBalance(c *gin.Context) {
	var req apimodel.OpenBalance
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateOpenBalance(); err != nil {
		badRequest(c, err)
		return
	}

	balance, err := a.balances.OpenAccount(c.Request.Context(), req.AccountID, req.Currency, req.OpeningBalance)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, balance)
}

func (a Api) GetBalance(c *gin.Context) {
	balance, err := a.balances.GetBalance(c.Request.Context(), c.Param("account"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (a Api) FreezeFunds(c *gin.Context) {
	var req apimodel.FreezeFunds
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateFreezeFunds(); err != nil {
		badRequest(c, err)
		return
	}

	if err := a.balances.Freeze(c.Request.Context(), c.Param("account"), req.Amount, req.TransactionID, req.ExpiresAt); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Funds frozen"})
}

func (a Api) ReleaseFunds(c *gin.Context) {
	var req apimodel.HoldAction
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateRelease(); err != nil {
		badRequest(c, err)
		return
	}

	if err := a.balances.Release(c.Request.Context(), c.Param("account"), req.TransactionID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Funds released"})
}

func (a Api) DebitAccount(c *gin.Context) {
	var req apimodel.HoldAction
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateAmount(); err != nil {
		badRequest(c, err)
		return
	}

	if err := a.balances.Debit(c.Request.Context(), c.Param("account"), req.Amount, req.TransactionID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Account debited"})
}

func (a Api) CreditAccount(c *gin.Context) {
	var req apimodel.HoldAction
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateAmount(); err != nil {
		badRequest(c, err)
		return
	}

	if err := a.balances.Credit(c.Request.Context(), c.Param("account"), req.Amount); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Account credited"})
}

func (a Api) CheckAvailability(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "amount is required. pass it as ?amount="})
		return
	}

	available, err := a.balances.CheckAvailability(c.Request.Context(), c.Param("account"), amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": available})
}

// Settle is called by the switch at end of day to consume a transaction's hold.
func (a Api) Settle(c *gin.Context) {
	var req apimodel.Settle
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateSettle(); err != nil {
		badRequest(c, err)
		return
	}

	result, err := a.balances.Settle(c.Request.Context(), req.TransactionID, req.ReferenceID, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
