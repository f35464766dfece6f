package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"envmonitor/internal/types"
)

// RequestCollector buffers API request metrics in memory and ships them to
// CloudWatch on Flush. RecordRequest never blocks on the network.
type RequestCollector struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
	now       func() time.Time

	mu  sync.Mutex
	buf []cwtypes.MetricDatum
}

// NewRequestCollector creates a RequestCollector.
func NewRequestCollector(client CloudWatchClient, namespace string, logger *slog.Logger) *RequestCollector {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestCollector{
		client:    client,
		namespace: namespace,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordRequest buffers an APILatency and an APIRequestCount datum.
func (c *RequestCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimMethod), Value: aws.String(method)},
		{Name: aws.String(types.DimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(types.DimStatus), Value: aws.String(status)},
	}
	ts := aws.Time(c.now())

	c.mu.Lock()
	c.buf = append(c.buf,
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAPILatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
			Timestamp:  ts,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAPIRequestCount),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
			Timestamp:  ts,
		},
	)
	c.mu.Unlock()
}

// Pending returns the number of buffered datums.
func (c *RequestCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// Flush sends all buffered datums in chunks of at most 1000. Datums from a
// failed chunk are dropped and the error is returned after all chunks have
// been attempted.
func (c *RequestCollector) Flush(ctx context.Context) error {
	c.mu.Lock()
	data := c.buf
	c.buf = nil
	c.mu.Unlock()

	var firstErr error
	for start := 0; start < len(data); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(data))
		_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.namespace),
			MetricData: data[start:end],
		})
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to flush request metrics",
				"dropped", end-start,
				"error", err.Error(),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Run flushes every interval until ctx is cancelled, then flushes once more
// with a short grace period.
func (c *RequestCollector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = c.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			_ = c.Flush(ctx)
		}
	}
}
