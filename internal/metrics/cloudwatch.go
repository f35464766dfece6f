// Package metrics publishes operational metrics to AWS CloudWatch: one report
// per scheduled job run, and buffered API request latency and counts.
package metrics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"envmonitor/internal/types"
)

// maxDatumsPerCall is the CloudWatch PutMetricData limit.
const maxDatumsPerCall = 1000

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// JobPublisher emits scheduled job metrics.
//
// Metrics emitted per run, all with the Task dimension:
//   - JobDuration (milliseconds)
//   - JobFailure (count, 0 or 1)
//   - one Count datum per entry in the run's counts
type JobPublisher struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewJobPublisher creates a JobPublisher. An empty namespace selects
// types.MetricNamespace.
func NewJobPublisher(client CloudWatchClient, namespace string, logger *slog.Logger) *JobPublisher {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobPublisher{client: client, namespace: namespace, logger: logger}
}

// PublishJob sends the duration, failure flag and counts of one job run in a
// single PutMetricData call.
func (p *JobPublisher) PublishJob(ctx context.Context, task string, duration time.Duration, failed bool, counts map[string]float64) error {
	dims := []cwtypes.Dimension{{Name: aws.String(types.DimTask), Value: aws.String(task)}}
	now := time.Now()

	failure := 0.0
	if failed {
		failure = 1
	}
	data := []cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricJobDuration),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
			Timestamp:  aws.Time(now),
		},
		{
			MetricName: aws.String(types.MetricJobFailure),
			Value:      aws.Float64(failure),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
			Timestamp:  aws.Time(now),
		},
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(counts[name]),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
			Timestamp:  aws.Time(now),
		})
	}

	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to publish job metrics",
			"task", task,
			"error", err.Error(),
		)
	}
	return err
}
