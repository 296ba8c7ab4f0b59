package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"bsf-dashboard/internal/config"
	"bsf-dashboard/internal/modules/readings/types"
)

// Attribute names written by the sensor uploader.
const (
	AttrTemperature = "Temperature"
	AttrHumidity    = "Humidity"
	AttrTimestamp   = "Timestamp"
)

var errNoTimestamp = errors.New("missing or non-numeric Timestamp")

// DynamoDB scans a whole DynamoDB table. Pagination is followed internally so
// callers always get the complete table.
type DynamoDB struct {
	client dynamodb.ScanAPIClient
	table  string
	logger *slog.Logger
}

func NewDynamoDB(client dynamodb.ScanAPIClient, table string, logger *slog.Logger) *DynamoDB {
	if logger == nil {
		logger = slog.Default()
	}
	return &DynamoDB{client: client, table: table, logger: logger}
}

// NewDynamoDBFromConfig builds the AWS client from the region, optional static
// credentials and optional endpoint override in cfg.
func NewDynamoDBFromConfig(ctx context.Context, cfg config.Config, logger *slog.Logger) (*DynamoDB, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.DynamoDBAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.DynamoDBAccessKeyID, cfg.DynamoDBSecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	})
	return NewDynamoDB(client, cfg.DynamoDBTable, logger), nil
}

func (d *DynamoDB) Name() string {
	return "dynamodb:" + d.table
}

func (d *DynamoDB) ScanAll(ctx context.Context) ([]types.RawReading, error) {
	p := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName: aws.String(d.table),
	})

	var out []types.RawReading
	idx := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", d.table, err)
		}
		for _, item := range page.Items {
			r, err := decodeItem(item, idx)
			idx++
			if err != nil {
				d.logger.Warn("skipping row", "table", d.table, "scan_index", idx-1, "error", err)
				continue
			}
			out = append(out, r)
		}
	}
	return out, nil
}

func decodeItem(item map[string]ddbtypes.AttributeValue, idx int) (types.RawReading, error) {
	ts, err := decodeTimestamp(item[AttrTimestamp])
	if err != nil {
		return types.RawReading{}, err
	}
	r := types.RawReading{
		Temperature: decodeValue(item[AttrTemperature]),
		Humidity:    decodeValue(item[AttrHumidity]),
		Timestamp:   ts,
		ScanIndex:   idx,
	}
	for k, av := range item {
		if k == AttrTemperature || k == AttrHumidity || k == AttrTimestamp {
			continue
		}
		var v any
		if err := attributevalue.Unmarshal(av, &v); err != nil {
			return types.RawReading{}, fmt.Errorf("attribute %s: %w", k, err)
		}
		if r.Attributes == nil {
			r.Attributes = make(map[string]any)
		}
		r.Attributes[k] = v
	}
	return r, nil
}

func decodeValue(av ddbtypes.AttributeValue) types.Value {
	switch v := av.(type) {
	case *ddbtypes.AttributeValueMemberN:
		return types.ParseValue(v.Value)
	case *ddbtypes.AttributeValueMemberS:
		return types.ParseValue(v.Value)
	default:
		return types.Value{}
	}
}

func decodeTimestamp(av ddbtypes.AttributeValue) (int64, error) {
	var s string
	switch v := av.(type) {
	case *ddbtypes.AttributeValueMemberN:
		s = v.Value
	case *ddbtypes.AttributeValueMemberS:
		s = v.Value
	default:
		return 0, errNoTimestamp
	}
	return ParseTimestamp(s)
}

// ParseTimestamp parses epoch seconds. Fractional seconds are truncated.
func ParseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", errNoTimestamp, s)
	}
	return int64(f), nil
}
