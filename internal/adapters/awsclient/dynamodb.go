package awsclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"tagindex/internal/domain"
)

// DynamoDBConfig holds connection settings for DynamoDB.
type DynamoDBConfig struct {
	Region string
	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string
	// Static credentials; when both are empty the default AWS credential chain is used.
	AccessKeyID        string
	SecretAccessKey    string
	InsecureSkipVerify bool
}

// NewDynamoDBClient creates a DynamoDB client from config.
func NewDynamoDBClient(ctx context.Context, config DynamoDBConfig, logger *slog.Logger) (*dynamodb.Client, error) {
	if config.Region == "" {
		return nil, fmt.Errorf("%w: empty aws region", domain.ErrInvalidConfig)
	}
	if (config.AccessKeyID == "") != (config.SecretAccessKey == "") {
		return nil, fmt.Errorf("%w: aws access key id and secret must be set together", domain.ErrInvalidConfig)
	}
	if config.InsecureSkipVerify && logger != nil {
		logger.Warn("TLS certificate verification is disabled for DynamoDB; use only in development")
	}
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: config.InsecureSkipVerify,
				MinVersion:         tls.VersionTLS12,
			},
		},
	}

	var awsCfg aws.Config
	if config.AccessKeyID != "" {
		awsCfg = aws.Config{
			Region: config.Region,
			Credentials: aws.NewCredentialsCache(
				credentials.NewStaticCredentialsProvider(
					config.AccessKeyID,
					config.SecretAccessKey,
					"",
				),
			),
			HTTPClient: httpClient,
		}
	} else {
		loaded, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(config.Region),
			awsconfig.WithHTTPClient(httpClient),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: load aws config: %v", domain.ErrInvalidConfig, err)
		}
		awsCfg = loaded
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
	}), nil
}
