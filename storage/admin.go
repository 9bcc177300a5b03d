package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// ObjectInfo describes one stored media object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	ContentType  string    `json:"contentType"`
	ETag         string    `json:"etag"`
}

// BucketStats aggregates the objects under a prefix.
type BucketStats struct {
	TotalObjects int64            `json:"totalObjects"`
	TotalSize    int64            `json:"totalSize"`
	LastModified time.Time        `json:"lastModified"`
	ByExtension  map[string]int64 `json:"byExtension"`
	ByFolder     map[string]int64 `json:"byFolder"`
}

// List returns every object under prefix together with aggregate stats.
func (r *MinioRelay) List(ctx context.Context, prefix string) ([]ObjectInfo, *BucketStats, error) {
	stats := &BucketStats{
		ByExtension: make(map[string]int64),
		ByFolder:    make(map[string]int64),
	}
	var objects []ObjectInfo

	objectCh := r.client.ListObjects(ctx, r.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}

		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}
		stats.ByExtension[extensionOf(object.Key)]++
		stats.ByFolder[folderOf(object.Key)]++

		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
			ETag:         object.ETag,
		})
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, stats, nil
}

// DeletePrefix removes every object under prefix and returns how many were
// removed. An empty prefix is refused so the whole bucket cannot be wiped by
// accident.
func (r *MinioRelay) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	prefix = strings.TrimLeft(prefix, "/")
	if prefix == "" {
		return 0, fmt.Errorf("refusing to delete with an empty prefix")
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	type listResult struct {
		count int
		err   error
	}
	objectsCh := make(chan minio.ObjectInfo)
	listed := make(chan listResult, 1)

	go func() {
		defer close(objectsCh)
		res := listResult{}
		for object := range r.client.ListObjects(ctx, r.bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		}) {
			if object.Err != nil {
				res.err = object.Err
				break
			}
			res.count++
			objectsCh <- object
		}
		listed <- res
	}()

	var failed []string
	for rErr := range r.client.RemoveObjects(ctx, r.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		failed = append(failed, fmt.Sprintf("%s: %v", rErr.ObjectName, rErr.Err))
	}

	res := <-listed
	if res.err != nil {
		return 0, fmt.Errorf("failed to list objects under %s: %w", prefix, res.err)
	}
	if len(failed) > 0 {
		return res.count - len(failed), fmt.Errorf("failed to delete %d objects: %s", len(failed), strings.Join(failed, "; "))
	}
	return res.count, nil
}

// FormatSize renders a byte count in binary units.
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func extensionOf(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	if ext == "" {
		return "none"
	}
	return ext
}

func folderOf(key string) string {
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return "/"
	}
	return key[:idx]
}
