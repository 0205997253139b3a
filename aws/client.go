package aws

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/LaithMimi/blendarchatbot2/config"
	"github.com/LaithMimi/blendarchatbot2/pkg/logger"
)

// NewDynamoClient builds a DynamoDB client for the configured region.
// Explicit AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY take precedence over the
// default chain, and Endpoint points the client at DynamoDB Local.
func NewDynamoClient(ctx context.Context, cfg config.AWSConfig) (*dynamodb.Client, error) {
	log := logger.GetLogger("dynamodb")
	startTime := time.Now()

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
		log.Warn("AWS region not set, using default us-east-1")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}

	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, os.Getenv("AWS_SESSION_TOKEN")),
		))
	} else if cfg.Endpoint != "" {
		// DynamoDB Local accepts any credentials
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	log.InfoWithFields("DynamoDB client initialized", map[string]interface{}{
		"region":      region,
		"endpoint":    cfg.Endpoint,
		"duration_ms": time.Since(startTime).Milliseconds(),
	})
	return client, nil
}
