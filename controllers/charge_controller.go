package controllers

import (
	"errors"
	"net/http"
	"time"

	"payment-connector/gateway"
	"payment-connector/models"
	"payment-connector/repository"
	"payment-connector/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ChargeController struct {
	chargeService *services.ChargeService
	charges       repository.ChargeRepository
	logger        *zap.Logger
}

func NewChargeController(svc *services.ChargeService, charges repository.ChargeRepository, logger *zap.Logger) *ChargeController {
	return &ChargeController{chargeService: svc, charges: charges, logger: logger}
}

type createChargeRequest struct {
	Amount      int64  `json:"amount" binding:"required"`
	Currency    string `json:"currency" binding:"required"`
	Provider    string `json:"provider" binding:"required"`
	Description string `json:"description"`
	ReturnURL   string `json:"return_url"`
}

type authoriseRequest struct {
	CardNumber     string `json:"card_number" binding:"required"`
	CardholderName string `json:"cardholder_name"`
	ExpiryMonth    int64  `json:"expiry_month" binding:"required"`
	ExpiryYear     int64  `json:"expiry_year" binding:"required"`
	CVC            string `json:"cvc" binding:"required"`
}

type threeDSRequest struct {
	Result string `json:"result" binding:"required"`
}

type refundRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

type chargeResponse struct {
	ChargeID  string    `json:"charge_id"`
	Status    string    `json:"status"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
}

func toChargeResponse(c *models.Charge) chargeResponse {
	return chargeResponse{
		ChargeID:  c.ExternalID,
		Status:    string(c.Status),
		Amount:    c.Amount,
		Currency:  c.Currency,
		Provider:  c.PaymentProvider,
		CreatedAt: c.CreatedAt,
	}
}

func (cc *ChargeController) CreateCharge(ctx *gin.Context) {
	var req createChargeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	charge, err := cc.chargeService.Create(ctx.Request.Context(), services.CreateChargeRequest{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Provider:    req.Provider,
		Description: req.Description,
		ReturnURL:   req.ReturnURL,
	})
	if err != nil {
		cc.logger.Error("charge creation failed", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusCreated, toChargeResponse(charge))
}

func (cc *ChargeController) GetCharge(ctx *gin.Context) {
	charge, err := cc.charges.FindByExternalID(ctx.Request.Context(), ctx.Param("chargeId"))
	if err != nil {
		cc.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, toChargeResponse(charge))
}

func (cc *ChargeController) Authorise(ctx *gin.Context) {
	var req authoriseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	charge, err := cc.chargeService.Authorise(ctx.Request.Context(), ctx.Param("chargeId"), gateway.AuthCardDetails{
		CardNumber:     req.CardNumber,
		CardholderName: req.CardholderName,
		ExpiryMonth:    req.ExpiryMonth,
		ExpiryYear:     req.ExpiryYear,
		CVC:            req.CVC,
	})
	if err != nil {
		var ge *gateway.Error
		if errors.As(err, &ge) && ge.Kind == gateway.ErrorKindDeclined {
			// The charge itself records the rejection; the caller gets the
			// final state rather than a 5xx.
			ctx.JSON(http.StatusPaymentRequired, gin.H{
				"error":  "authorisation declined",
				"charge": toChargeResponse(charge),
			})
			return
		}
		cc.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, toChargeResponse(charge))
}

func (cc *ChargeController) Complete3DS(ctx *gin.Context) {
	var req threeDSRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result := services.ThreeDSResult(req.Result)
	switch result {
	case services.ThreeDSAuthorised, services.ThreeDSDeclined, services.ThreeDSError:
	default:
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "result must be authorised, declined or error"})
		return
	}

	charge, err := cc.chargeService.Complete3DS(ctx.Request.Context(), ctx.Param("chargeId"), result)
	if err != nil {
		cc.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, toChargeResponse(charge))
}

func (cc *ChargeController) ApproveCapture(ctx *gin.Context) {
	charge, err := cc.chargeService.ApproveCapture(ctx.Request.Context(), ctx.Param("chargeId"))
	if err != nil {
		if charge != nil {
			// The approval committed but the enqueue did not; report the
			// accepted state so the caller does not retry the approval.
			ctx.JSON(http.StatusAccepted, toChargeResponse(charge))
			return
		}
		cc.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, toChargeResponse(charge))
}

func (cc *ChargeController) Cancel(ctx *gin.Context) {
	charge, err := cc.chargeService.Cancel(ctx.Request.Context(), ctx.Param("chargeId"), true)
	if err != nil {
		cc.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, toChargeResponse(charge))
}

func (cc *ChargeController) SubmitRefund(ctx *gin.Context) {
	var req refundRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	refund, err := cc.chargeService.SubmitRefund(ctx.Request.Context(), ctx.Param("chargeId"), req.Amount)
	if err != nil {
		cc.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, gin.H{
		"refund_id": refund.ExternalID,
		"status":    string(refund.Status),
		"amount":    refund.Amount,
	})
}

// respondError maps domain errors onto status codes. Conflicts (illegal
// transitions, lost update races, in-flight operations) are 409 so the
// caller knows to re-read the charge rather than retry blindly.
func (cc *ChargeController) respondError(ctx *gin.Context, err error) {
	var invalid *services.InvalidTransitionError
	var inProgress *services.OperationInProgressError

	switch {
	case errors.Is(err, repository.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &invalid), errors.As(err, &inProgress),
		errors.Is(err, repository.ErrConcurrentModification):
		ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		cc.logger.Error("charge operation failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
