package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// ClientConfig describes how to reach DynamoDB.
type ClientConfig struct {
	Region string

	// Endpoint overrides the service endpoint, e.g. http://localhost:8000
	// for DynamoDB Local. Empty uses the AWS default.
	Endpoint string

	// Static credentials. When both are empty the default credential chain
	// is used, unless Endpoint is set: local DynamoDB does not validate
	// credentials but the SDK requires some.
	AccessKeyID     string
	SecretAccessKey string
}

// NewClient creates a DynamoDB client from cfg.
func NewClient(ctx context.Context, cfg ClientConfig) (*dynamodb.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	accessKey, secretKey := cfg.AccessKeyID, cfg.SecretAccessKey
	if accessKey == "" && secretKey == "" && cfg.Endpoint != "" {
		accessKey, secretKey = "local", "local"
	}
	if accessKey != "" || secretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}
