// Package awsboot loads AWS configuration and the clients the session checker
// needs: S3 for staging and publishing, SSM for credential lookup.
//
// AWS is optional. Nothing here is called unless the configuration asks for
// an S3 bucket or an SSM parameter.
package awsboot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

// ErrEmptyParameter is returned when an SSM parameter exists but has no value.
var ErrEmptyParameter = errors.New("ssm parameter has no value")

// Clients holds the AWS config and the SDK clients built from it.
type Clients struct {
	Config aws.Config
	S3     *s3.Client
	SSM    *ssm.Client
}

// ParameterAPI is the subset of the SSM client used for parameter lookups.
type ParameterAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Init loads the default AWS config (env, shared profile, instance role).
func Init(ctx context.Context) (*Clients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return &Clients{
		Config: cfg,
		S3:     s3.NewFromConfig(cfg),
		SSM:    ssm.NewFromConfig(cfg),
	}, nil
}

// GetParameter reads a single SSM parameter. Only the name is logged.
func GetParameter(ctx context.Context, api ParameterAPI, name string, decrypt bool) (string, error) {
	start := time.Now()
	out, err := api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(decrypt),
	})
	if err != nil {
		return "", fmt.Errorf("read SSM parameter %s: %w", name, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("%s: %w", name, ErrEmptyParameter)
	}
	log.Debug().Str("param", name).Dur("elapsed", time.Since(start)).Msg("SSM parameter loaded")
	return aws.ToString(out.Parameter.Value), nil
}
