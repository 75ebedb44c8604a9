package analytics

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aarel/market-watch/internal/universe"
)

// RotationService archives a universe's JSONL analytics files and uploads
// the archive to an S3-compatible bucket, rotating out old archives
// beyond a retention window.
type RotationService struct {
	client  *s3.Client
	bucket  string
	uploader *manager.Uploader
	u       universe.Universe
	log     zerolog.Logger
}

// NewRotationService builds a RotationService for universe u against
// bucket, using the ambient AWS/R2-compatible credential chain. endpoint
// is optional and overrides the default AWS endpoint resolution (set it
// for an S3-compatible provider such as Cloudflare R2).
func NewRotationService(ctx context.Context, u universe.Universe, bucket, endpoint string, log zerolog.Logger) (*RotationService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("analytics: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &RotationService{
		client:   client,
		bucket:   bucket,
		uploader: manager.NewUploader(client),
		u:        u,
		log:      log.With().Str("component", "AnalyticsRotation").Str("universe", string(u)).Logger(),
	}, nil
}

// archiveObjectPrefix keys uploaded archives per universe so rotating one
// universe's history never touches another's.
func (r *RotationService) archiveObjectPrefix() string {
	return fmt.Sprintf("market-watch-analytics-%s-", r.u)
}

// CreateAndUpload tars+gzips the universe's equity/trades JSONL files and
// uploads the archive to the bucket.
func (r *RotationService) CreateAndUpload(ctx context.Context, equityPath, tradesPath string) error {
	stagingDir, err := os.MkdirTemp("", "analytics-rotation-")
	if err != nil {
		return fmt.Errorf("analytics: create staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	timestamp := time.Now().UTC().Format("2006-01-02-150405")
	archiveName := fmt.Sprintf("%s%s.tar.gz", r.archiveObjectPrefix(), timestamp)
	archivePath := filepath.Join(stagingDir, archiveName)

	if err := createArchive(archivePath, map[string]string{
		"equity.jsonl": equityPath,
		"trades.jsonl": tradesPath,
	}); err != nil {
		return fmt.Errorf("analytics: create archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("analytics: open archive: %w", err)
	}
	defer archiveFile.Close()

	if _, err := r.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(archiveName),
		Body:   archiveFile,
	}); err != nil {
		return fmt.Errorf("analytics: upload archive to s3: %w", err)
	}

	r.log.Info().Str("archive", archiveName).Msg("uploaded analytics rotation archive")
	return nil
}

type archivedObject struct {
	key       string
	timestamp time.Time
}

// RotateOld deletes archives older than retentionDays, always keeping at
// least minKeep of the most recent regardless of age.
func (r *RotationService) RotateOld(ctx context.Context, retentionDays, minKeep int) error {
	prefix := r.archiveObjectPrefix()
	out, err := r.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return fmt.Errorf("analytics: list s3 archives: %w", err)
	}

	var archives []archivedObject
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		ts, ok := parseArchiveTimestamp(*obj.Key, prefix)
		if !ok {
			continue
		}
		archives = append(archives, archivedObject{key: *obj.Key, timestamp: ts})
	}

	sort.Slice(archives, func(i, j int) bool { return archives[i].timestamp.After(archives[j].timestamp) })

	if len(archives) <= minKeep {
		return nil
	}

	var cutoff time.Time
	if retentionDays > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -retentionDays)
	}

	deleted := 0
	for i, a := range archives {
		if i < minKeep {
			continue
		}
		if retentionDays == 0 || a.timestamp.After(cutoff) {
			continue
		}
		if _, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(a.key),
		}); err != nil {
			r.log.Error().Err(err).Str("key", a.key).Msg("failed to delete old analytics archive")
			continue
		}
		deleted++
	}

	r.log.Info().Int("deleted", deleted).Int("remaining", len(archives)-deleted).Msg("analytics rotation complete")
	return nil
}

func parseArchiveTimestamp(key, prefix string) (time.Time, bool) {
	if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, ".tar.gz") {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(key, prefix), ".tar.gz")
	t, err := time.Parse("2006-01-02-150405", raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func createArchive(archivePath string, files map[string]string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for nameInArchive, sourcePath := range files {
		if _, err := os.Stat(sourcePath); os.IsNotExist(err) {
			continue
		}
		if err := addFileToArchive(tarWriter, sourcePath, nameInArchive); err != nil {
			return fmt.Errorf("add %s to archive: %w", nameInArchive, err)
		}
	}
	return nil
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	if _, err := io.Copy(tarWriter, file); err != nil {
		return err
	}
	return nil
}
