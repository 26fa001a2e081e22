// Package s3util moves session files between the local workspace and S3:
// staging inputs before a run and publishing results after it.
package s3util

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// GetAPI is the subset of the S3 client used for downloads.
type GetAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// StageAPI lists and downloads objects.
type StageAPI interface {
	GetAPI
	s3.ListObjectsV2APIClient
}

// DownloadToFile downloads an S3 object to localPath, replacing any
// existing file. A partial file is removed on failure.
func DownloadToFile(ctx context.Context, client GetAPI, bucket, key, localPath string) error {
	log.Debug().Str("bucket", bucket).Str("key", key).Str("localPath", localPath).Msg("Downloading from S3")
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket, Key: &key,
	})
	if err != nil {
		return fmt.Errorf("S3 GetObject %s: %w", key, err)
	}
	defer result.Body.Close()

	f, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, result.Body); err != nil {
		f.Close()
		os.Remove(localPath)
		return fmt.Errorf("download %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(localPath)
		return fmt.Errorf("close %s: %w", localPath, err)
	}
	return nil
}

// Staged counts the files a Stage call wrote.
type Staged struct {
	Artifacts int
	Sidecars  int
}

// Stage copies every object directly under bucket/prefix whose name ends
// in artifactExt into sessionsDir and every ".json" object into
// secretsDir. Nested keys and other files are ignored.
func Stage(ctx context.Context, client StageAPI, bucket, prefix, artifactExt, sessionsDir, secretsDir string) (Staged, error) {
	var staged Staged

	for _, dir := range []string{sessionsDir, secretsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return staged, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	listPrefix := strings.TrimPrefix(prefix, "/")
	if listPrefix != "" && !strings.HasSuffix(listPrefix, "/") {
		listPrefix += "/"
	}

	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: &bucket,
		Prefix: aws.String(listPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return staged, fmt.Errorf("S3 ListObjectsV2: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, listPrefix)
			if name == "" || strings.Contains(name, "/") || name == "." || name == ".." {
				continue
			}

			var dest string
			switch {
			case strings.HasSuffix(name, artifactExt):
				dest = filepath.Join(sessionsDir, path.Base(name))
				staged.Artifacts++
			case strings.HasSuffix(name, ".json"):
				dest = filepath.Join(secretsDir, path.Base(name))
				staged.Sidecars++
			default:
				continue
			}
			if err := DownloadToFile(ctx, client, bucket, key, dest); err != nil {
				return staged, err
			}
		}
	}

	log.Info().
		Str("bucket", bucket).
		Str("prefix", listPrefix).
		Int("artifacts", staged.Artifacts).
		Int("sidecars", staged.Sidecars).
		Msg("Sessions staged from S3")
	return staged, nil
}
