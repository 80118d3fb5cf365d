package awsclient

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names emitted by the capture worker and notification path.
const (
	MetricCaptureSucceeded = "CaptureSucceeded"
	MetricCaptureRetried   = "CaptureRetried"
	MetricCaptureFailed    = "CaptureFailed"
	MetricCaptureDuplicate = "CaptureDuplicate"

	MetricNotificationAccepted = "NotificationAccepted"
	MetricNotificationRejected = "NotificationRejected"

	MetricHTTPRequests = "HTTPRequests"
	MetricHTTPErrors   = "HTTPErrors"
	MetricHTTPLatency  = "HTTPLatencyMs"
)

// MetricsClient wraps CloudWatch PutMetricData. Disabled unless
// CLOUDWATCH_ENABLED=true so local runs stay quiet.
type MetricsClient struct {
	client    *cloudwatch.Client
	namespace string
	enabled   bool
}

func NewMetricsClient(ctx context.Context) (*MetricsClient, error) {
	enabled := os.Getenv("CLOUDWATCH_ENABLED") == "true"

	cfg, err := LoadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	namespace := os.Getenv("CLOUDWATCH_NAMESPACE")
	if namespace == "" {
		namespace = "PaymentConnector"
	}

	return &MetricsClient{
		client:    cloudwatch.NewFromConfig(cfg),
		namespace: namespace,
		enabled:   enabled,
	}, nil
}

func (m *MetricsClient) IsEnabled() bool {
	return m != nil && m.enabled
}

// RecordCount increments a counter metric with the given dimensions.
func (m *MetricsClient) RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error {
	if !m.IsEnabled() {
		return nil
	}

	dims := make([]types.Dimension, 0, len(dimensions))
	for k, v := range dimensions {
		dims = append(dims, types.Dimension{
			Name:  aws.String(k),
			Value: aws.String(v),
		})
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(metricName),
				Value:      aws.Float64(1),
				Unit:       types.StandardUnitCount,
				Timestamp:  aws.Time(time.Now()),
				Dimensions: dims,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to put metric: %w", err)
	}
	return nil
}

// RecordLatency records a duration metric in milliseconds.
func (m *MetricsClient) RecordLatency(ctx context.Context, metricName string, d time.Duration, dimensions map[string]string) error {
	if !m.IsEnabled() {
		return nil
	}

	dims := make([]types.Dimension, 0, len(dimensions))
	for k, v := range dimensions {
		dims = append(dims, types.Dimension{
			Name:  aws.String(k),
			Value: aws.String(v),
		})
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(metricName),
				Value:      aws.Float64(float64(d.Milliseconds())),
				Unit:       types.StandardUnitMilliseconds,
				Timestamp:  aws.Time(time.Now()),
				Dimensions: dims,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to put metric: %w", err)
	}
	return nil
}
