package awsboot

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeSSM struct {
	values  map[string]string
	err     error
	decrypt *bool
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.decrypt = in.WithDecryption
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[aws.ToString(in.Name)]
	if !ok {
		return &ssm.GetParameterOutput{}, nil
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(v)}}, nil
}

func TestGetParameter(t *testing.T) {
	api := &fakeSSM{values: map[string]string{"/session-check/api-hash": "abc123"}}

	got, err := GetParameter(context.Background(), api, "/session-check/api-hash", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "abc123" {
		t.Errorf("value = %q, want abc123", got)
	}
	if api.decrypt == nil || !*api.decrypt {
		t.Error("expected WithDecryption=true")
	}
}

func TestGetParameterEmpty(t *testing.T) {
	api := &fakeSSM{values: map[string]string{}}

	_, err := GetParameter(context.Background(), api, "/missing", false)
	if !errors.Is(err, ErrEmptyParameter) {
		t.Errorf("expected ErrEmptyParameter, got %v", err)
	}
}

func TestGetParameterError(t *testing.T) {
	boom := errors.New("access denied")
	api := &fakeSSM{err: boom}

	_, err := GetParameter(context.Background(), api, "/x", true)
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}
