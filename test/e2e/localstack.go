//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const defaultLocalstackEndpoint = "http://localhost:4566"

// localstack is an S3 endpoint for the s3 configurations. Override the
// address with LOCALSTACK_ENDPOINT.
type localstack struct {
	endpoint string
	client   *s3.Client
}

// connectLocalstack returns nil when no S3 endpoint answers, so callers can
// skip the s3 configurations instead of failing.
func connectLocalstack(t *testing.T) *localstack {
	t.Helper()

	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = defaultLocalstackEndpoint
	}

	cfg, err := awsConfig.LoadDefaultConfig(context.Background(),
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
		awsConfig.WithRetryMaxAttempts(1),
	)
	if err != nil {
		t.Fatalf("Failed to load AWS config: %v", err)
	}

	ls := &localstack{
		endpoint: endpoint,
		client: s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := ls.client.ListBuckets(ctx, &s3.ListBucketsInput{}); err != nil {
		return nil
	}
	return ls
}

// useBucket creates a bucket for cfg and points cfg at it. The bucket is
// emptied and deleted when t finishes.
func (ls *localstack) useBucket(t *testing.T, cfg *TestConfig) {
	t.Helper()

	bucket := fmt.Sprintf("fsbroker-e2e-%s-%d", cfg.Name, time.Now().UnixNano())
	_, err := ls.client.CreateBucket(context.Background(), &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		t.Fatalf("Failed to create bucket %s: %v", bucket, err)
	}
	t.Cleanup(func() { ls.dropBucket(bucket) })

	cfg.s3Endpoint = ls.endpoint
	cfg.s3Bucket = bucket
}

func (ls *localstack) dropBucket(bucket string) {
	ctx := context.Background()

	pages := s3.NewListObjectsV2Paginator(ls.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil || len(page.Contents) == 0 {
			break
		}
		ids := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, s3types.ObjectIdentifier{Key: obj.Key})
		}
		_, _ = ls.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
	}

	_, _ = ls.client.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(bucket),
	})
}
