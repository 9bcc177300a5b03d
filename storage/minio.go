package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/Shivansh-Atwal/trackstack/config"
	"github.com/Shivansh-Atwal/trackstack/logger"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Folders under which uploads are stored.
const (
	FolderBeats      = "trackstack/beats"
	FolderRecordings = "trackstack/recordings"
)

// DefaultMaxUploadBytes is the upload ceiling applied when none is configured.
const DefaultMaxUploadBytes int64 = 10 << 20

// MediaPathPrefix is the API route prefix that proxies stored objects.
const MediaPathPrefix = "/media/"

var (
	// ErrTooLarge is returned by Store before any transfer when the payload
	// exceeds the ceiling.
	ErrTooLarge = errors.New("file exceeds upload size limit")
	// ErrUploadFailed wraps any error reported by the object store on Store.
	ErrUploadFailed = errors.New("upload failed")
	// ErrObjectNotFound is returned by Open for an unknown key.
	ErrObjectNotFound = errors.New("object not found")
)

// Asset locates a stored object: a URL for playback and the handle needed to
// delete it later.
type Asset struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
}

// ObjectMeta is what the media proxy needs to serve an object.
type ObjectMeta struct {
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// objectClient is the subset of *minio.Client used by this package.
type objectClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	RemoveObjects(ctx context.Context, bucketName string, objectsCh <-chan minio.ObjectInfo, opts minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError
}

// NewMinioClient creates the MinIO client from configuration. It does not
// contact the server.
func NewMinioClient(cfg *config.Config) (*minio.Client, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return client, nil
}

// EnsureBucket creates bucket when it does not exist yet.
func EnsureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if exists {
		logger.Info("MinIO bucket ready", logger.String("bucket", bucket))
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	logger.Info("MinIO bucket created", logger.String("bucket", bucket))
	return nil
}

// MinioRelay forwards uploaded audio to MinIO and deletes it by handle.
// The handle (PublicID) is the object key.
type MinioRelay struct {
	client        objectClient
	bucket        string
	publicBaseURL string
	maxBytes      int64
}

// NewMinioRelay builds a relay on bucket. With an empty publicBaseURL,
// asset URLs point at the API's /media/ proxy.
func NewMinioRelay(client objectClient, bucket, publicBaseURL string, maxBytes int64) *MinioRelay {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &MinioRelay{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		maxBytes:      maxBytes,
	}
}

// MaxBytes is the upload ceiling enforced by Store.
func (r *MinioRelay) MaxBytes() int64 {
	return r.maxBytes
}

// Store uploads data under folder and returns its URL and handle.
func (r *MinioRelay) Store(ctx context.Context, data []byte, folder, filename, contentType string) (Asset, error) {
	if int64(len(data)) > r.maxBytes {
		return Asset{}, ErrTooLarge
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := path(folder, uuid.NewString()+fileExtension(filename, contentType))

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.client.PutObject(ctx, r.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:      contentType,
		DisableMultipart: true,
	})
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	logger.Info("[Upload] object stored",
		logger.String("key", key),
		logger.Int("bytes", len(data)),
		logger.String("contentType", contentType))

	return Asset{URL: r.URLFor(key), PublicID: key}, nil
}

// Delete removes the object behind publicID. It is idempotent: an empty
// handle, an unknown key and an already deleted object all succeed.
func (r *MinioRelay) Delete(ctx context.Context, publicID string) error {
	if publicID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := r.client.RemoveObject(ctx, r.bucket, publicID, minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("failed to delete object %s: %w", publicID, err)
	}
	return nil
}

// Open returns a reader for key. The caller closes it.
func (r *MinioRelay) Open(ctx context.Context, key string) (io.ReadCloser, ObjectMeta, error) {
	info, err := r.client.StatObject(ctx, r.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ObjectMeta{}, ErrObjectNotFound
		}
		return nil, ObjectMeta{}, fmt.Errorf("failed to stat object %s: %w", key, err)
	}

	object, err := r.client.GetObject(ctx, r.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectMeta{}, fmt.Errorf("failed to get object %s: %w", key, err)
	}

	return object, ObjectMeta{
		Size:         info.Size,
		ContentType:  info.ContentType,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

// URLFor returns the public URL of key.
func (r *MinioRelay) URLFor(key string) string {
	if r.publicBaseURL != "" {
		return r.publicBaseURL + "/" + key
	}
	return MediaPathPrefix + key
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchObject"
}

func path(folder, name string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

var extensionsByType = map[string]string{
	"audio/webm":  ".webm",
	"video/webm":  ".webm",
	"audio/ogg":   ".ogg",
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/flac":  ".flac",
	"audio/aac":   ".aac",
	"audio/mp4":   ".m4a",
}

// fileExtension picks the object key extension from the upload's filename,
// falling back to its content type.
func fileExtension(filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if isSafeExtension(ext) {
		return ext
	}
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if ext, ok := extensionsByType[strings.ToLower(mediaType)]; ok {
		return ext
	}
	return ".bin"
}

func isSafeExtension(ext string) bool {
	if len(ext) < 2 || len(ext) > 6 || ext[0] != '.' {
		return false
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
