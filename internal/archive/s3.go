// Package archive uploads the outputs of a harness run (the report and the
// last artifacts the daemon produced) to S3-compatible object storage.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/roach88/camconform/internal/config"
)

// objectClient is the subset of *minio.Client the archive uses.
type objectClient interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// File is one local file to archive under Name.
type File struct {
	Name string
	Path string
}

// S3Store writes run outputs under "<run-id>/<name>" in one bucket.
type S3Store struct {
	client     objectClient
	bucketName string
	region     string
	logger     *slog.Logger
	initOnce   sync.Once
	initErr    error
}

// New creates a store from the archive configuration.
func New(cfg config.ArchiveConfig, logger *slog.Logger) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return newStore(client, bucket, region, logger), nil
}

func newStore(client objectClient, bucket, region string, logger *slog.Logger) *S3Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &S3Store{
		client:     client,
		bucketName: bucket,
		region:     region,
		logger:     logger,
	}
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// UploadRun uploads files for runID and returns the object keys written.
// Files that do not exist locally are skipped: a failed case may leave no
// artifact behind. Any other error stops the upload.
func (s *S3Store) UploadRun(ctx context.Context, runID string, files []File) ([]string, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run_id is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	keys := make([]string, 0, len(files))
	for _, f := range files {
		key, err := s.put(ctx, runID, f)
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("skipping missing file", "name", f.Name, "path", f.Path)
			continue
		}
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *S3Store) put(ctx context.Context, runID string, f File) (string, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return "", err
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", f.Path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("archive %s: not a regular file", f.Path)
	}

	key := objectKey(runID, f.Name)
	_, err = s.client.PutObject(ctx, s.bucketName, key, fh, info.Size(), minio.PutObjectOptions{
		ContentType: contentType(f.Name),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	s.logger.Info("archived file", "key", key, "bytes", info.Size())
	return key, nil
}

// RunFiles lists the outputs of a run: the report and the artifact paths the
// daemon writes to.
func RunFiles(paths config.Paths, reportPath string) []File {
	files := []File{}
	if reportPath != "" {
		files = append(files, File{Name: filepath.Base(reportPath), Path: reportPath})
	}
	for _, p := range []struct{ dir, path string }{
		{"still", paths.Still},
		{"video", paths.Video},
		{"preview", paths.Preview},
		{"motion", paths.Motion},
	} {
		if p.path == "" {
			continue
		}
		files = append(files, File{Name: p.dir + "/" + filepath.Base(p.path), Path: p.path})
	}
	return files
}

func objectKey(runID, path string) string {
	normalized := strings.TrimLeft(strings.TrimSpace(path), "/")
	return strings.TrimSpace(runID) + "/" + normalized
}

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".h264": "video/h264",
	".txt":  "text/plain; charset=utf-8",
	".json": "application/json",
}

func contentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}
