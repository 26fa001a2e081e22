// Package config loads session-check settings.
//
// Sources are applied in order, later ones winning: built-in defaults, a
// YAML file, SESSION_CHECK_* environment variables, then command-line flags
// (applied by the caller). Relative paths resolve against BaseDir.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/fpang/session-check/internal/awsboot"
	"github.com/fpang/session-check/internal/checker"
	"github.com/fpang/session-check/internal/report"
	"github.com/fpang/session-check/internal/session"
	"github.com/fpang/session-check/internal/telegram"
)

// FileName is the config file looked up in the base directory when no
// explicit path is given.
const FileName = "session-check.yaml"

// Environment variables read by ApplyEnv.
const (
	EnvAPIID   = "SESSION_CHECK_API_ID"
	EnvAPIHash = "SESSION_CHECK_API_HASH"
	EnvProxy   = "SESSION_CHECK_PROXY"
	EnvGateway = "SESSION_CHECK_GATEWAY"
)

// DefaultGateway is the session gateway address used when none is configured.
const DefaultGateway = "http://127.0.0.1:8080"

// Config is the full set of run settings.
type Config struct {
	BaseDir     string `yaml:"base_dir"`
	SessionsDir string `yaml:"sessions_dir"`
	SecretsDir  string `yaml:"secrets_dir"`
	ValidDir    string `yaml:"valid_dir"`
	ReportPath  string `yaml:"report_path"`

	ArtifactExt string `yaml:"artifact_ext"`
	SecretField string `yaml:"secret_field"`

	Probe   string        `yaml:"probe"`
	Timeout time.Duration `yaml:"timeout"`
	Proxy   string        `yaml:"proxy"`
	Gateway string        `yaml:"gateway"`

	Credentials Credentials `yaml:"credentials"`
	Report      Report      `yaml:"report"`
	Archive     bool        `yaml:"archive"`
	S3          S3          `yaml:"s3"`
	Metrics     bool        `yaml:"metrics"`
}

// Credentials identify the client application to the remote service.
type Credentials struct {
	APIID   int    `yaml:"api_id"`
	APIHash string `yaml:"api_hash"`
	// APIHashSSMParam names an SSM parameter holding the hash. It is only
	// read when APIHash is still empty after every other source.
	APIHashSSMParam string `yaml:"api_hash_ssm_param"`
}

// Report controls how the run report is written.
type Report struct {
	Mode string `yaml:"mode"`
}

// S3 configures optional staging from and publishing to a bucket.
type S3 struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	SourcePrefix string `yaml:"source_prefix"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		BaseDir:     ".",
		SessionsDir: "sessions",
		SecretsDir:  "tg_sessions",
		ValidDir:    "valid",
		ReportPath:  "report.txt",
		ArtifactExt: session.DefaultExt,
		SecretField: session.DefaultSecretField,
		Probe:       checker.DefaultProbe,
		Timeout:     telegram.DefaultTimeout,
		Gateway:     DefaultGateway,
		Report:      Report{Mode: string(report.ModeSummary)},
		S3:          S3{Prefix: "session-check"},
	}
}

// Load reads path over the defaults. A missing file is an error only when
// required is true; otherwise the defaults are returned.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			log.Debug().Str("path", path).Msg("No config file, using defaults")
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML from %s: %w", path, err)
	}
	log.Debug().Str("path", path).Msg("Config file loaded")
	return cfg, nil
}

// ApplyEnv overlays SESSION_CHECK_* variables that are set and non-empty.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvAPIID); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", EnvAPIID, v)
		}
		c.Credentials.APIID = id
	}
	if v := os.Getenv(EnvAPIHash); v != "" {
		c.Credentials.APIHash = v
	}
	if v := os.Getenv(EnvProxy); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv(EnvGateway); v != "" {
		c.Gateway = v
	}
	return nil
}

// ResolvePaths makes BaseDir absolute, resolves every relative path
// against it, and then checks the result with ValidatePaths.
func (c *Config) ResolvePaths() error {
	if strings.TrimSpace(c.ValidDir) == "" {
		return errors.New("valid_dir is required")
	}
	base, err := filepath.Abs(c.BaseDir)
	if err != nil {
		return fmt.Errorf("resolve base directory: %w", err)
	}
	c.BaseDir = base
	for _, p := range []*string{&c.SessionsDir, &c.SecretsDir, &c.ValidDir, &c.ReportPath} {
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
		*p = filepath.Clean(*p)
	}
	return c.ValidatePaths()
}

// ValidatePaths checks resolved paths. ValidDir is emptied on every run, so
// it must be kept apart from the inputs: it may not equal, contain, or sit
// inside SessionsDir or SecretsDir, and may not equal or contain BaseDir.
func (c *Config) ValidatePaths() error {
	if c.ValidDir == "" {
		return errors.New("valid_dir is required")
	}
	valid := filepath.Clean(c.ValidDir)

	var errs []error
	for _, in := range []struct{ name, path string }{
		{"sessions_dir", c.SessionsDir},
		{"secrets_dir", c.SecretsDir},
	} {
		p := filepath.Clean(in.path)
		if within(valid, p) || within(p, valid) {
			errs = append(errs, fmt.Errorf("valid_dir %s overlaps %s %s", valid, in.name, p))
		}
	}
	if within(c.BaseDir, valid) {
		errs = append(errs, fmt.Errorf("valid_dir %s must not be or contain base_dir %s", valid, c.BaseDir))
	}
	return errors.Join(errs...)
}

// within reports whether path equals dir or lies beneath it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel))
}

// ResolveAPIHash fills an empty API hash from SSM when a parameter name is
// configured. api is only used in that case.
func (c *Config) ResolveAPIHash(ctx context.Context, api awsboot.ParameterAPI) error {
	if c.Credentials.APIHash != "" || c.Credentials.APIHashSSMParam == "" {
		return nil
	}
	v, err := awsboot.GetParameter(ctx, api, c.Credentials.APIHashSSMParam, true)
	if err != nil {
		return fmt.Errorf("api hash: %w", err)
	}
	c.Credentials.APIHash = v
	return nil
}

// NeedsSSM reports whether ResolveAPIHash will call SSM.
func (c *Config) NeedsSSM() bool {
	return c.Credentials.APIHash == "" && c.Credentials.APIHashSSMParam != ""
}

// NeedsAWS reports whether any AWS client is required for this run.
func (c *Config) NeedsAWS() bool {
	return c.NeedsSSM() || c.S3.Bucket != ""
}

// ProxySettings parses the proxy string. A nil result means no proxy.
func (c *Config) ProxySettings() (*telegram.Proxy, error) {
	return telegram.ParseProxy(c.Proxy)
}

// ReportMode parses the configured report mode.
func (c *Config) ReportMode() (report.Mode, error) {
	return report.ParseMode(c.Report.Mode)
}

// Validate checks the settings that a run cannot proceed without.
func (c *Config) Validate() error {
	var errs []error
	if c.Credentials.APIID <= 0 {
		errs = append(errs, errors.New("credentials.api_id must be a positive integer"))
	}
	if c.Credentials.APIHash == "" {
		errs = append(errs, errors.New("credentials.api_hash is required"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.ArtifactExt == "" {
		errs = append(errs, errors.New("artifact_ext is required"))
	}
	if c.Probe == "" {
		errs = append(errs, errors.New("probe is required"))
	}
	if u, err := url.ParseRequestURI(c.Gateway); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("gateway %q is not an absolute URL", c.Gateway))
	}
	if _, err := c.ProxySettings(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ReportMode(); err != nil {
		errs = append(errs, err)
	}
	if c.S3.SourcePrefix != "" && c.S3.Bucket == "" {
		errs = append(errs, errors.New("s3.source_prefix requires s3.bucket"))
	}
	return errors.Join(errs...)
}
