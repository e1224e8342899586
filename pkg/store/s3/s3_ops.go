package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/fsbroker/pkg/store"
)

// ============================================================================
// Directories
// ============================================================================

func (s *S3Store) Mkdirs(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, dir := range store.Ancestors(path) {
		info, err := s.stat(ctx, dir)
		switch {
		case err == nil && info.IsDir:
			continue
		case err == nil:
			return fmt.Errorf("mkdirs %s: %s: %w", path, dir, store.ErrNotDir)
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("mkdirs %s: %w", path, err)
		}
		if err := s.put(ctx, s.dirKey(dir), nil); err != nil {
			return fmt.Errorf("mkdirs %s: %w", path, err)
		}
	}
	return nil
}

func (s *S3Store) Rmdir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path == "/" {
		return fmt.Errorf("rmdir %s: %w", path, store.ErrInvalidPath)
	}

	info, err := s.stat(ctx, path)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("rmdir %s: %w", path, err)
	}
	if !info.IsDir {
		return fmt.Errorf("rmdir %s: %w", path, store.ErrNotDir)
	}

	// The marker itself matches the prefix and is deleted with the rest.
	keys, _, err := s.listKeys(ctx, s.dirKey(path), false)
	if err != nil {
		return fmt.Errorf("rmdir %s: %w", path, err)
	}
	if err := s.deleteKeys(ctx, keys); err != nil {
		return fmt.Errorf("rmdir %s: %w", path, err)
	}
	return nil
}

func (s *S3Store) Readdir(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := s.stat(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("readdir %s: %w", path, err)
	}
	if !info.IsDir {
		return nil, fmt.Errorf("readdir %s: %w", path, store.ErrNotDir)
	}

	prefix := s.dirKey(path)
	keys, prefixes, err := s.listKeys(ctx, prefix, true)
	if err != nil {
		return nil, fmt.Errorf("readdir %s: %w", path, err)
	}

	names := make([]string, 0, len(keys)+len(prefixes))
	for _, key := range keys {
		if key == prefix {
			continue
		}
		names = append(names, strings.TrimPrefix(key, prefix))
	}
	for _, p := range prefixes {
		names = append(names, strings.TrimSuffix(strings.TrimPrefix(p, prefix), "/"))
	}
	sort.Strings(names)
	return names, nil
}

// ============================================================================
// Entries
// ============================================================================

func (s *S3Store) Stat(ctx context.Context, path string) (*store.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := s.stat(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return info, nil
}

func (s *S3Store) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := s.stat(ctx, path)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", path, err)
	}
	return true, nil
}

func (s *S3Store) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := s.stat(ctx, path)
	if err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	if info.IsDir {
		return fmt.Errorf("remove %s: %w", path, store.ErrIsDir)
	}

	unlock := s.lockPath(path)
	defer unlock()

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fileKey(path)),
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Rename copies every object of src to its place under dst, then deletes the
// originals. S3 has no atomic rename: a failure midway can leave both trees.
func (s *S3Store) Rename(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if src == "/" || dst == "/" || (src != dst && store.IsWithin(dst, src)) {
		return fmt.Errorf("rename %s to %s: %w", src, dst, store.ErrInvalidPath)
	}

	srcInfo, err := s.stat(ctx, src)
	if err != nil {
		return fmt.Errorf("rename %s: %w", src, err)
	}
	if src == dst {
		return nil
	}

	parent, err := s.stat(ctx, store.Parent(dst))
	if err != nil || !parent.IsDir {
		return fmt.Errorf("rename to %s: parent: %w", dst, store.ErrNotFound)
	}
	dstInfo, err := s.stat(ctx, dst)
	switch {
	case err == nil:
		if dstInfo.IsDir || srcInfo.IsDir {
			return fmt.Errorf("rename to %s: %w", dst, store.ErrExists)
		}
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("rename to %s: %w", dst, err)
	}

	if !srcInfo.IsDir {
		unlock := s.lockPath(src)
		defer unlock()
		if err := s.copyKey(ctx, s.fileKey(src), s.fileKey(dst)); err != nil {
			return fmt.Errorf("rename %s: %w", src, err)
		}
		if err := s.deleteKeys(ctx, []string{s.fileKey(src)}); err != nil {
			return fmt.Errorf("rename %s: %w", src, err)
		}
		return nil
	}

	from, to := s.dirKey(src), s.dirKey(dst)
	keys, _, err := s.listKeys(ctx, from, false)
	if err != nil {
		return fmt.Errorf("rename %s: %w", src, err)
	}
	for _, key := range keys {
		if err := s.copyKey(ctx, key, to+strings.TrimPrefix(key, from)); err != nil {
			return fmt.Errorf("rename %s: %w", src, err)
		}
	}
	if err := s.deleteKeys(ctx, keys); err != nil {
		return fmt.Errorf("rename %s: %w", src, err)
	}
	return nil
}

// ============================================================================
// File contents
// ============================================================================

func (s *S3Store) Create(ctx context.Context, path string, truncate bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := s.stat(ctx, path)
	switch {
	case err == nil && info.IsDir:
		return fmt.Errorf("create %s: %w", path, store.ErrIsDir)
	case err == nil && !truncate:
		return nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("create %s: %w", path, err)
	case err != nil:
		parent, perr := s.stat(ctx, store.Parent(path))
		if perr != nil {
			return fmt.Errorf("create %s: parent: %w", path, perr)
		}
		if !parent.IsDir {
			return fmt.Errorf("create %s: parent: %w", path, store.ErrNotDir)
		}
	}

	unlock := s.lockPath(path)
	defer unlock()

	if err := s.put(ctx, s.fileKey(path), nil); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return nil
}

func (s *S3Store) Append(ctx context.Context, path string, data []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	unlock := s.lockPath(path)
	defer unlock()

	info, err := s.stat(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", path, err)
	}
	if info.IsDir {
		return 0, fmt.Errorf("append %s: %w", path, store.ErrIsDir)
	}

	existing, err := s.getRange(ctx, s.fileKey(path), "")
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", path, err)
	}
	offset := uint64(len(existing))

	if err := s.put(ctx, s.fileKey(path), append(existing, data...)); err != nil {
		return 0, fmt.Errorf("append %s: %w", path, err)
	}
	return offset, nil
}

func (s *S3Store) ReadAt(ctx context.Context, path string, offset uint64, n uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := s.stat(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if info.IsDir {
		return nil, fmt.Errorf("read %s: %w", path, store.ErrIsDir)
	}
	if offset >= info.Size || n == 0 {
		return []byte{}, nil
	}

	end := min(offset+uint64(n), info.Size)
	data, err := s.getRange(ctx, s.fileKey(path), fmt.Sprintf("bytes=%d-%d", offset, end-1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Sync only checks that path is a file: a successful PutObject is already
// durable.
func (s *S3Store) Sync(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := s.stat(ctx, path)
	if err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if info.IsDir {
		return fmt.Errorf("sync %s: %w", path, store.ErrIsDir)
	}
	return nil
}

// getRange downloads key, or the byte range rng of it when rng is set.
func (s *S3Store) getRange(ctx context.Context, key, rng string) ([]byte, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if rng != "" {
		input.Range = aws.String(rng)
	}

	out, err := s.client.GetObject(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}
