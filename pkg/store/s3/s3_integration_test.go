//go:build integration

package s3

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsbroker/pkg/store"
	storetesting "github.com/marmos91/fsbroker/pkg/store/testing"
)

// TestS3Store_Integration runs the store suite against an S3-compatible
// service.
//
// Run with: go test -tags=integration ./pkg/store/s3/...
//
// To start Localstack:
//
//	docker run --rm -p 4566:4566 localstack/localstack
func TestS3Store_Integration(t *testing.T) {
	ctx := context.Background()

	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err)

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	bucket := "fsbroker-test-bucket"
	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	require.NoError(t, err)

	defer func() {
		cleanup := &S3Store{client: client, bucket: bucket}
		keys, _, err := cleanup.listKeys(ctx, "", false)
		if err == nil {
			_ = cleanup.deleteKeys(ctx, keys)
		}
		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
	}()

	suite := &storetesting.StoreTestSuite{
		NewStore: func(t *testing.T) store.Store {
			// Each test gets its own key prefix inside the shared bucket.
			s, err := New(ctx, Config{
				Client:    client,
				Bucket:    bucket,
				KeyPrefix: fmt.Sprintf("suite-%s/", uuid.NewString()),
			})
			require.NoError(t, err)
			return s
		},
	}
	suite.Run(t)
}
