package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/blnkfinance/hub/model"
)

func (a Api) GetLedgerEntriesByTransaction(c *gin.Context) {
	entries, err := a.hub.GetLedgerEntriesByTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (a Api) GetLedgerEntriesByBank(c *gin.Context) {
	from, to, err := a.timeRange(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	entries, err := a.hub.GetLedgerEntriesByBank(c.Request.Context(), c.Param("code"), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (a Api) GetLedgerEntriesByAccount(c *gin.Context) {
	from, to, err := a.timeRange(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	entries, err := a.hub.GetLedgerEntriesByAccount(c.Request.Context(), c.Param("account"), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// GetFee quotes the fee the hub would charge for ?amount=.
func (a Api) GetFee(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil || !amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "amount must be a positive number"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"amount":         amount,
		"fee":            model.CalculateFee(amount),
		"policy_version": model.FeePolicyVersion,
	})
}
