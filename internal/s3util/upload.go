package s3util

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// PutAPI is the subset of the S3 client used for uploads.
type PutAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// PublishAPI is what Publish needs: uploads, a server-side copy for the
// latest pointer, and tagging of that copy.
type PublishAPI interface {
	PutAPI
	TaggingAPI
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
}

// UploadFile uploads a local file to bucket/key with the project tag.
func UploadFile(ctx context.Context, client PutAPI, bucket, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        f,
		ContentType: aws.String(contentType(localPath)),
		Tagging:     ProjectTagging(),
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", key, err)
	}
	log.Debug().Str("bucket", bucket).Str("key", key).Msg("Uploaded to S3")
	return nil
}

// RunKey returns "<prefix>/<runID>/<name>".
func RunKey(prefix, runID, name string) string {
	return path.Join(strings.Trim(prefix, "/"), runID, name)
}

// Publication lists what a Publish call uploaded.
type Publication struct {
	Keys      []string
	ReportKey string
	LatestKey string
}

// Publish uploads the report, optional extra files (such as the archive)
// and every valid artifact under <prefix>/<runID>/. Artifacts land in a
// "valid/" sub-prefix. The report is then copied to <prefix>/latest/ so
// the newest run can be found without listing.
func Publish(ctx context.Context, client PublishAPI, bucket, prefix, runID, reportPath string, extras, artifacts []string) (*Publication, error) {
	pub := &Publication{}

	upload := func(localPath, name string) error {
		key := RunKey(prefix, runID, name)
		if err := UploadFile(ctx, client, bucket, key, localPath); err != nil {
			return err
		}
		pub.Keys = append(pub.Keys, key)
		return nil
	}

	if err := upload(reportPath, filepath.Base(reportPath)); err != nil {
		return pub, err
	}
	pub.ReportKey = pub.Keys[0]

	for _, p := range extras {
		if err := upload(p, filepath.Base(p)); err != nil {
			return pub, err
		}
	}
	for _, p := range artifacts {
		if err := upload(p, "valid/"+filepath.Base(p)); err != nil {
			return pub, err
		}
	}

	latest := path.Join(strings.Trim(prefix, "/"), "latest", filepath.Base(reportPath))
	_, err := client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     &bucket,
		Key:        &latest,
		CopySource: aws.String(bucket + "/" + pub.ReportKey),
	})
	if err != nil {
		return pub, fmt.Errorf("S3 CopyObject %s: %w", latest, err)
	}
	if err := TagObject(ctx, client, bucket, latest, runID); err != nil {
		return pub, err
	}
	pub.LatestKey = latest

	log.Info().
		Str("bucket", bucket).
		Str("runId", runID).
		Int("objects", len(pub.Keys)).
		Str("latest", latest).
		Msg("Run published to S3")
	return pub, nil
}

func contentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".zip":
		return "application/zip"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
