package controllers

import (
	"context"
	"io"
	"net/http"
	"time"

	"payment-connector/awsclient"
	"payment-connector/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MetricsRecorder is the counter surface the controllers emit to.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	IsEnabled() bool
}

type NotificationController struct {
	reconciler *services.NotificationReconciler
	metrics    MetricsRecorder
	logger     *zap.Logger
}

func NewNotificationController(reconciler *services.NotificationReconciler, metrics MetricsRecorder, logger *zap.Logger) *NotificationController {
	return &NotificationController{reconciler: reconciler, metrics: metrics, logger: logger}
}

const maxNotificationBody = 1 << 20 // 1 MiB

// HandleNotification ingests a provider-pushed status update. Providers
// only distinguish accepted from rejected, so the body is a bare "[OK]"
// on every accepted path, including accept-and-drop.
func (nc *NotificationController) HandleNotification(ctx *gin.Context) {
	provider := ctx.Param("provider")

	raw, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxNotificationBody))
	if err != nil {
		nc.logger.Error("failed to read notification body",
			zap.String("provider", provider), zap.Error(err))
		ctx.String(http.StatusBadRequest, "")
		return
	}

	ok := nc.reconciler.Handle(ctx.Request.Context(), ctx.ClientIP(), provider, raw)
	if !ok {
		nc.count(awsclient.MetricNotificationRejected, provider)
		ctx.String(http.StatusForbidden, "")
		return
	}

	nc.count(awsclient.MetricNotificationAccepted, provider)
	ctx.String(http.StatusOK, "[OK]")
}

func (nc *NotificationController) count(metric, provider string) {
	if nc.metrics == nil || !nc.metrics.IsEnabled() {
		return
	}
	go func() {
		mctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = nc.metrics.RecordCount(mctx, metric, map[string]string{"Provider": provider})
	}()
}
