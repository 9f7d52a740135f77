package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/softcane/cloud-cost-advisor/internal/engine"
	"github.com/softcane/cloud-cost-advisor/internal/metrics"
	"github.com/softcane/cloud-cost-advisor/internal/store"
)

// DefaultCloudWatchLookbackHours is the trailing window pulled per run.
const DefaultCloudWatchLookbackHours = 24

const cloudWatchPeriodSeconds = 3600

// MetricDataAPI is the CloudWatch surface the ingestor needs.
// Satisfied by *cloudwatch.Client; tests substitute a stub.
type MetricDataAPI interface {
	GetMetricData(ctx context.Context, params *cloudwatch.GetMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error)
}

// CloudWatchIngestor pulls hourly EC2 utilization from CloudWatch.
// CloudWatch has no memory metric for EC2 without an agent, so
// mem_utilization stays null for these samples.
type CloudWatchIngestor struct {
	api       MetricDataAPI
	instances InstanceWriter
	samples   MetricWriter
	region    string
	logger    *slog.Logger
	now       func() time.Time
}

// CloudWatchConfig holds the ingestor settings.
type CloudWatchConfig struct {
	Region    string
	Instances InstanceWriter
	Samples   MetricWriter
	Logger    *slog.Logger
	// API is an optional CloudWatch client. If nil, one is created
	// from the default AWS config. Useful for testing.
	API MetricDataAPI
}

// NewCloudWatchIngestor creates a CloudWatch metrics ingestor.
func NewCloudWatchIngestor(ctx context.Context, cfg CloudWatchConfig) (*CloudWatchIngestor, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api := cfg.API
	if api == nil {
		if cfg.Region == "" {
			return nil, fmt.Errorf("region is required")
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		api = cloudwatch.NewFromConfig(awsCfg)
	}

	return &CloudWatchIngestor{
		api:       api,
		instances: cfg.Instances,
		samples:   cfg.Samples,
		region:    cfg.Region,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Ingest pulls metrics for the given EC2 instance IDs and stores them.
// Unknown instances are registered with minimal info so ingestion works
// without pre-registration.
func (c *CloudWatchIngestor) Ingest(ctx context.Context, instanceIDs []string, lookbackHours int) (int64, error) {
	if lookbackHours <= 0 {
		lookbackHours = DefaultCloudWatchLookbackHours
	}
	end := c.now().UTC()
	start := end.Add(-time.Duration(lookbackHours) * time.Hour)

	var total int64
	for _, cloudID := range instanceIDs {
		inst, err := c.registerInstance(ctx, cloudID)
		if err != nil {
			return total, err
		}

		samples, err := c.fetchInstanceMetrics(ctx, cloudID, start, end)
		if err != nil {
			c.logger.Warn("failed to fetch CloudWatch metrics",
				"cloud_instance_id", cloudID,
				"error", err,
			)
			continue
		}
		if len(samples) == 0 {
			c.logger.Info("no CloudWatch datapoints in window", "cloud_instance_id", cloudID)
			continue
		}

		for i := range samples {
			samples[i].InstanceID = inst.ID
		}
		inserted, err := c.samples.InsertBatch(ctx, samples)
		if err != nil {
			return total, fmt.Errorf("store metrics for %s: %w", cloudID, err)
		}
		total += inserted
	}

	metrics.IngestedSamples.WithLabelValues("cloudwatch").Add(float64(total))
	c.logger.Info("CloudWatch ingestion complete",
		"instances", len(instanceIDs),
		"samples", total,
		"lookback_hours", lookbackHours,
	)
	return total, nil
}

// registerInstance returns the registry row for a cloud instance,
// creating a minimal record when the instance is not yet known.
func (c *CloudWatchIngestor) registerInstance(ctx context.Context, cloudID string) (*store.Instance, error) {
	known, err := c.instances.List(ctx, engine.Filters{})
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	for i := range known {
		if known[i].CloudInstanceID == cloudID {
			return &known[i], nil
		}
	}

	env := "prod"
	region := c.region
	inst := store.Instance{
		CloudInstanceID: cloudID,
		CloudProvider:   "aws",
		Region:          &region,
		Environment:     &env,
		Tags:            map[string]string{"ingested_from": "cloudwatch"},
	}
	if err := c.instances.Upsert(ctx, &inst); err != nil {
		return nil, fmt.Errorf("register instance %s: %w", cloudID, err)
	}
	return &inst, nil
}

// fetchInstanceMetrics issues one GetMetricData call covering CPU
// average, network in and network out at hourly resolution.
func (c *CloudWatchIngestor) fetchInstanceMetrics(ctx context.Context, cloudID string, start, end time.Time) ([]store.Metric, error) {
	dimension := cwtypes.Dimension{
		Name:  aws.String("InstanceId"),
		Value: aws.String(cloudID),
	}
	query := func(id, metricName, stat string) cwtypes.MetricDataQuery {
		return cwtypes.MetricDataQuery{
			Id: aws.String(id),
			MetricStat: &cwtypes.MetricStat{
				Metric: &cwtypes.Metric{
					Namespace:  aws.String("AWS/EC2"),
					MetricName: aws.String(metricName),
					Dimensions: []cwtypes.Dimension{dimension},
				},
				Period: aws.Int32(cloudWatchPeriodSeconds),
				Stat:   aws.String(stat),
			},
		}
	}

	input := &cloudwatch.GetMetricDataInput{
		StartTime: aws.Time(start),
		EndTime:   aws.Time(end),
		MetricDataQueries: []cwtypes.MetricDataQuery{
			query("cpu", "CPUUtilization", "Average"),
			query("net_in", "NetworkIn", "Sum"),
			query("net_out", "NetworkOut", "Sum"),
		},
	}

	type datapoint struct {
		cpu    *float64
		netIn  *int64
		netOut *int64
	}
	byTime := make(map[time.Time]*datapoint)
	point := func(ts time.Time) *datapoint {
		key := ts.UTC().Truncate(time.Second)
		dp, ok := byTime[key]
		if !ok {
			dp = &datapoint{}
			byTime[key] = dp
		}
		return dp
	}

	for {
		output, err := c.api.GetMetricData(ctx, input)
		if err != nil {
			return nil, err
		}
		for _, result := range output.MetricDataResults {
			id := aws.ToString(result.Id)
			for i, ts := range result.Timestamps {
				if i >= len(result.Values) {
					break
				}
				value := result.Values[i]
				dp := point(ts)
				switch id {
				case "cpu":
					v := value
					dp.cpu = &v
				case "net_in":
					v := int64(value)
					dp.netIn = &v
				case "net_out":
					v := int64(value)
					dp.netOut = &v
				}
			}
		}
		if output.NextToken == nil {
			break
		}
		input.NextToken = output.NextToken
	}

	samples := make([]store.Metric, 0, len(byTime))
	for ts, dp := range byTime {
		m := store.Metric{
			Timestamp:       ts,
			CPUUtilization:  dp.cpu,
			NetworkInBytes:  dp.netIn,
			NetworkOutBytes: dp.netOut,
		}
		// A query may miss some timestamps; treat absent values as 0.
		if m.CPUUtilization == nil {
			m.CPUUtilization = new(float64)
		}
		if m.NetworkInBytes == nil {
			m.NetworkInBytes = new(int64)
		}
		if m.NetworkOutBytes == nil {
			m.NetworkOutBytes = new(int64)
		}
		samples = append(samples, m)
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	return samples, nil
}
