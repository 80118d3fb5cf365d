package controllers

import (
	"net/http"

	"payment-connector/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type DiscrepancyController struct {
	discrepancies *services.DiscrepancyService
	logger        *zap.Logger
}

func NewDiscrepancyController(svc *services.DiscrepancyService, logger *zap.Logger) *DiscrepancyController {
	return &DiscrepancyController{discrepancies: svc, logger: logger}
}

type discrepancyRequest struct {
	ChargeIDs []string `json:"charge_ids" binding:"required"`
}

const maxDiscrepancyBatch = 100

// Report compares stored statuses against the gateways, read-only.
func (dc *DiscrepancyController) Report(ctx *gin.Context) {
	ids, ok := dc.bind(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, dc.discrepancies.Report(ctx.Request.Context(), ids))
}

// Resolve additionally corrects the store where the gateway disagrees.
func (dc *DiscrepancyController) Resolve(ctx *gin.Context) {
	ids, ok := dc.bind(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, dc.discrepancies.Resolve(ctx.Request.Context(), ids))
}

func (dc *DiscrepancyController) bind(ctx *gin.Context) ([]string, bool) {
	var req discrepancyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if len(req.ChargeIDs) == 0 || len(req.ChargeIDs) > maxDiscrepancyBatch {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "charge_ids must contain between 1 and 100 ids"})
		return nil, false
	}
	return req.ChargeIDs, true
}
