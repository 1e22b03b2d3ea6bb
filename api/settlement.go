package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apimodel "github.com/blnkfinance/hub/api/model"
)

func (a Api) CreateSettlementBatch(c *gin.Context) {
	var req apimodel.CreateSettlementBatch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateCreateSettlementBatch(); err != nil {
		badRequest(c, err)
		return
	}

	batch, err := a.hub.CreateSettlementBatch(c.Request.Context(), req.Date(a.now()))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

func (a Api) ProcessSettlementBatch(c *gin.Context) {
	batch, err := a.hub.ProcessSettlementBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (a Api) GetSettlementBatch(c *gin.Context) {
	batch, err := a.hub.GetSettlementBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (a Api) ListSettlementBatches(c *gin.Context) {
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		badRequest(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		badRequest(c, err)
		return
	}

	batches, err := a.hub.ListSettlementBatches(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batches)
}
