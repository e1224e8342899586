// Package s3 implements a store on Amazon S3 or S3-compatible storage.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/fsbroker/pkg/store"
)

// S3Store implements store.Store on Amazon S3 or S3-compatible storage.
//
// Key Design:
//   - A file "/a/b" is the object "<prefix>a/b"
//   - A directory "/a/b" is an empty marker object "<prefix>a/b/"
//   - The root directory has no marker and always exists
//
// S3 has no append, so Append is a read-modify-write of the whole object,
// serialized per path inside this process. Two brokers appending to the same
// object through one bucket can lose writes.
type S3Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string

	// pathLocks guards writes to a path. A path always maps to the same
	// stripe; unrelated paths may share one.
	pathLocks [pathLockStripes]sync.Mutex
}

const pathLockStripes = 256

var _ store.Store = (*S3Store)(nil)

// Config contains configuration for the S3 store.
type Config struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys.
	// Example: "fsbroker/" results in keys like "fsbroker/tmp/file"
	KeyPrefix string
}

// New creates a S3 store and verifies bucket access. The bucket must already
// exist.
func New(ctx context.Context, cfg Config) (*S3Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: normalizePrefix(cfg.KeyPrefix),
	}, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimPrefix(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

// fileKey returns the object key of a file.
func (s *S3Store) fileKey(p string) string {
	return s.keyPrefix + strings.TrimPrefix(p, "/")
}

// dirKey returns the marker key of a directory, which is also the listing
// prefix of its children.
func (s *S3Store) dirKey(p string) string {
	if p == "/" {
		return s.keyPrefix
	}
	return s.fileKey(p) + "/"
}

// copySource formats key as the CopySource of a CopyObject call.
func (s *S3Store) copySource(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return s.bucket + "/" + strings.Join(parts, "/")
}

// lockStripe returns the index of the pathLocks entry guarding p.
func lockStripe(p string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(p))
	return int(h.Sum32() % pathLockStripes)
}

// lockPath locks p and returns the unlock function. Callers hold at most one
// path lock at a time.
func (s *S3Store) lockPath(p string) func() {
	m := &s.pathLocks[lockStripe(p)]
	m.Lock()
	return m.Unlock
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// ============================================================================
// Object helpers
// ============================================================================

func (s *S3Store) head(ctx context.Context, key string) (*s3.HeadObjectOutput, bool, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to head object %s: %w", key, err)
	}
	return out, true, nil
}

// stat resolves p to a file or a directory marker.
func (s *S3Store) stat(ctx context.Context, p string) (*store.FileInfo, error) {
	if p == "/" {
		return &store.FileInfo{Name: "/", IsDir: true}, nil
	}

	out, ok, err := s.head(ctx, s.fileKey(p))
	if err != nil {
		return nil, err
	}
	if ok {
		info := &store.FileInfo{Name: store.Base(p)}
		if out.ContentLength != nil {
			info.Size = uint64(*out.ContentLength)
		}
		if out.LastModified != nil {
			info.ModTime = *out.LastModified
		}
		return info, nil
	}

	out, ok, err = s.head(ctx, s.dirKey(p))
	if err != nil {
		return nil, err
	}
	if ok {
		info := &store.FileInfo{Name: store.Base(p), IsDir: true}
		if out.LastModified != nil {
			info.ModTime = *out.LastModified
		}
		return info, nil
	}
	return nil, store.ErrNotFound
}

func (s *S3Store) put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}
	return nil
}

// listKeys returns every key below prefix. With delimiter set, it also
// returns the common prefixes one level down.
func (s *S3Store) listKeys(ctx context.Context, prefix string, delimiter bool) ([]string, []string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter {
		input.Delimiter = aws.String("/")
	}

	var keys, prefixes []string
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list objects under %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		for _, cp := range page.CommonPrefixes {
			prefixes = append(prefixes, aws.ToString(cp.Prefix))
		}
	}
	return keys, prefixes, nil
}

// maxDeleteBatch is the largest batch the DeleteObjects API accepts.
const maxDeleteBatch = 1000

func (s *S3Store) deleteKeys(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(keys))

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects: %w", err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("failed to delete %d objects, first %s: %s",
				len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return nil
}

func (s *S3Store) copyKey(ctx context.Context, from, to string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.copySource(from)),
		Key:        aws.String(to),
	})
	if err != nil {
		return fmt.Errorf("failed to copy object %s to %s: %w", from, to, err)
	}
	return nil
}

// Close is a no-op; the S3 client holds no resources that need releasing.
func (s *S3Store) Close() error {
	return nil
}
