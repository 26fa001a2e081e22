package s3util

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// projectTag is the URL-encoded object tagging string applied to every
// uploaded run artifact for cost allocation.
const projectTag = "Project=session-check"

// ProjectTagging returns a pointer to the URL-encoded tagging string for
// PutObjectInput.Tagging.
func ProjectTagging() *string {
	t := projectTag
	return &t
}

// TaggingAPI is the subset of the S3 client used by TagObject.
type TaggingAPI interface {
	PutObjectTagging(ctx context.Context, in *s3.PutObjectTaggingInput, optFns ...func(*s3.Options)) (*s3.PutObjectTaggingOutput, error)
}

// TagObject applies the project tag and the run ID to an existing object.
// Used for the "latest" report pointer, which is copied rather than uploaded.
func TagObject(ctx context.Context, client TaggingAPI, bucket, key, runID string) error {
	_, err := client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket: &bucket,
		Key:    &key,
		Tagging: &s3types.Tagging{
			TagSet: []s3types.Tag{
				{Key: aws.String("Project"), Value: aws.String("session-check")},
				{Key: aws.String("RunId"), Value: aws.String(runID)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("PutObjectTagging: %w", err)
	}
	return nil
}
