// Package aws provides the EC2 inventory implementation.
// Uses aws-sdk-go-v2 for real API calls.
package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
)

// InstanceRecord is one EC2 instance as seen by DescribeInstances.
type InstanceRecord struct {
	InstanceID   string
	InstanceType string
	Region       string
	Zone         string
	AccountID    string
	Environment  string
	Tags         map[string]string
	HourlyCost   *float64
}

// InventoryClient reads EC2 inventory and on-demand pricing.
type InventoryClient struct {
	ec2Client     *ec2.Client
	pricingClient *pricing.Client
	logger        *slog.Logger
	region        string

	mu            sync.RWMutex
	onDemandCache map[string]float64 // key: instanceType
}

// NewInventoryClient creates a new AWS inventory client.
func NewInventoryClient(ctx context.Context, region string, logger *slog.Logger) (*InventoryClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &InventoryClient{
		ec2Client: ec2.NewFromConfig(cfg),
		pricingClient: pricing.NewFromConfig(cfg, func(o *pricing.Options) {
			// Pricing API is only available in us-east-1
			o.Region = "us-east-1"
		}),
		logger:        logger,
		region:        region,
		onDemandCache: make(map[string]float64),
	}, nil
}

// ListInstances returns all running EC2 instances in the configured
// region. Hourly cost is attached best-effort from the Pricing API; a
// pricing failure leaves the cost nil rather than failing the listing.
func (c *InventoryClient) ListInstances(ctx context.Context) ([]InstanceRecord, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{
				Name:   aws.String("instance-state-name"),
				Values: []string{"running"},
			},
		},
	}

	var records []InstanceRecord
	paginator := ec2.NewDescribeInstancesPaginator(c.ec2Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe instances: %w", err)
		}
		for _, reservation := range page.Reservations {
			accountID := aws.ToString(reservation.OwnerId)
			for _, inst := range reservation.Instances {
				records = append(records, c.toRecord(ctx, inst, accountID))
			}
		}
	}

	c.logger.Info("EC2 inventory listed", "region", c.region, "instances", len(records))
	return records, nil
}

func (c *InventoryClient) toRecord(ctx context.Context, inst types.Instance, accountID string) InstanceRecord {
	tags := make(map[string]string, len(inst.Tags))
	for _, tag := range inst.Tags {
		tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}

	record := InstanceRecord{
		InstanceID:   aws.ToString(inst.InstanceId),
		InstanceType: string(inst.InstanceType),
		Region:       c.region,
		AccountID:    accountID,
		Environment:  environmentFromTags(tags),
		Tags:         tags,
	}
	if inst.Placement != nil {
		record.Zone = aws.ToString(inst.Placement.AvailabilityZone)
	}

	if price, err := c.GetOnDemandPrice(ctx, record.InstanceType); err == nil {
		record.HourlyCost = &price
	} else {
		c.logger.Warn("no pricing for instance type",
			"instance_type", record.InstanceType,
			"error", err,
		)
	}
	return record
}

// CurrentInstanceType returns the live instance type of one instance.
// When region differs from the client's home region the call is routed
// there via per-operation options.
func (c *InventoryClient) CurrentInstanceType(ctx context.Context, instanceID, region string) (string, error) {
	input := &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	}

	var opts []func(*ec2.Options)
	if region != "" && region != c.region {
		opts = append(opts, func(o *ec2.Options) { o.Region = region })
	}

	result, err := c.ec2Client.DescribeInstances(ctx, input, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to describe instance %s: %w", instanceID, err)
	}
	for _, reservation := range result.Reservations {
		for _, inst := range reservation.Instances {
			if aws.ToString(inst.InstanceId) == instanceID {
				return string(inst.InstanceType), nil
			}
		}
	}
	return "", fmt.Errorf("instance %s not found in %s", instanceID, region)
}

// GetOnDemandPrice fetches the on-demand hourly price for an instance
// type in the client's region.
func (c *InventoryClient) GetOnDemandPrice(ctx context.Context, instanceType string) (float64, error) {
	c.mu.RLock()
	if price, ok := c.onDemandCache[instanceType]; ok {
		c.mu.RUnlock()
		return price, nil
	}
	c.mu.RUnlock()

	// Filter for on-demand, Linux, current region
	input := &pricing.GetProductsInput{
		ServiceCode: aws.String("AmazonEC2"),
		Filters: []pricingtypes.Filter{
			{
				Type:  pricingtypes.FilterTypeTermMatch,
				Field: aws.String("instanceType"),
				Value: aws.String(instanceType),
			},
			{
				Type:  pricingtypes.FilterTypeTermMatch,
				Field: aws.String("operatingSystem"),
				Value: aws.String("Linux"),
			},
			{
				Type:  pricingtypes.FilterTypeTermMatch,
				Field: aws.String("preInstalledSw"),
				Value: aws.String("NA"),
			},
			{
				Type:  pricingtypes.FilterTypeTermMatch,
				Field: aws.String("tenancy"),
				Value: aws.String("Shared"),
			},
			{
				Type:  pricingtypes.FilterTypeTermMatch,
				Field: aws.String("capacitystatus"),
				Value: aws.String("Used"),
			},
			{
				Type:  pricingtypes.FilterTypeTermMatch,
				Field: aws.String("regionCode"),
				Value: aws.String(c.region),
			},
		},
		MaxResults: aws.Int32(1),
	}

	result, err := c.pricingClient.GetProducts(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("failed to get products: %w", err)
	}
	if len(result.PriceList) == 0 {
		return 0, fmt.Errorf("no pricing found for %s", instanceType)
	}

	price, err := parseOnDemandPrice(result.PriceList[0])
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.onDemandCache[instanceType] = price
	c.mu.Unlock()

	return price, nil
}

// environmentFromTags resolves the environment classification from
// common tag spellings.
func environmentFromTags(tags map[string]string) string {
	for _, key := range []string{"environment", "Environment", "env", "Env"} {
		if v, ok := tags[key]; ok && v != "" {
			return strings.ToLower(v)
		}
	}
	return ""
}

// parseOnDemandPrice extracts hourly price from AWS Pricing API response.
func parseOnDemandPrice(priceList string) (float64, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(priceList), &payload); err != nil {
		return 0, fmt.Errorf("failed to parse pricing payload: %w", err)
	}

	termsAny, ok := payload["terms"]
	if !ok {
		return 0, fmt.Errorf("pricing payload missing terms")
	}
	terms, ok := termsAny.(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("invalid terms format in pricing payload")
	}
	onDemandAny, ok := terms["OnDemand"]
	if !ok {
		return 0, fmt.Errorf("pricing payload missing terms.OnDemand")
	}
	onDemand, ok := onDemandAny.(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("invalid OnDemand format in pricing payload")
	}

	best := 0.0
	found := false

	parseUSD := func(v interface{}) (float64, bool) {
		switch val := v.(type) {
		case string:
			p, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil || p <= 0 {
				return 0, false
			}
			return p, true
		case float64:
			if val <= 0 {
				return 0, false
			}
			return val, true
		default:
			return 0, false
		}
	}

	collectDims := func(container map[string]interface{}) {
		dimsAny, ok := container["priceDimensions"]
		if !ok {
			return
		}
		dimsMap, ok := dimsAny.(map[string]interface{})
		if !ok {
			return
		}
		for _, dimAny := range dimsMap {
			dimMap, ok := dimAny.(map[string]interface{})
			if !ok {
				continue
			}
			ppuAny, ok := dimMap["pricePerUnit"]
			if !ok {
				continue
			}
			ppuMap, ok := ppuAny.(map[string]interface{})
			if !ok {
				continue
			}
			usdAny, ok := ppuMap["USD"]
			if !ok {
				continue
			}
			price, ok := parseUSD(usdAny)
			if !ok {
				continue
			}
			if !found || price < best {
				best = price
				found = true
			}
		}
	}

	// GetProducts puts priceDimensions directly under each OnDemand
	// term entry. Probe one level deeper too for older payload dumps
	// that nest an extra offer-term map.
	for _, skuAny := range onDemand {
		skuMap, ok := skuAny.(map[string]interface{})
		if !ok {
			continue
		}
		collectDims(skuMap)
		for _, termAny := range skuMap {
			termMap, ok := termAny.(map[string]interface{})
			if !ok {
				continue
			}
			collectDims(termMap)
		}
	}

	if !found {
		return 0, fmt.Errorf("unable to extract USD on-demand price from payload")
	}
	return best, nil
}
