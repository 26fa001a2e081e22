package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RunLogger collects a run's directories, remote endpoints, and feature
// flags, then emits a single structured event describing how the run was
// configured. Secrets are never registered; callers pass hosts and
// parameter names only.
type RunLogger struct {
	name       string
	version    string
	loadedFrom string

	dirs     map[string]string
	remotes  map[string]string
	features map[string]bool
	config   map[string]string
	timeout  time.Duration
}

// NewRunLogger creates a RunLogger for the named command.
func NewRunLogger(name string) *RunLogger {
	return &RunLogger{
		name:     name,
		dirs:     make(map[string]string),
		remotes:  make(map[string]string),
		features: make(map[string]bool),
		config:   make(map[string]string),
	}
}

// Version sets the build version baked into the binary.
func (r *RunLogger) Version(v string) *RunLogger {
	r.version = v
	return r
}

// ConfigFile records which config file was read, if any.
func (r *RunLogger) ConfigFile(path string) *RunLogger {
	r.loadedFrom = path
	return r
}

// Dir registers a directory used by the run.
func (r *RunLogger) Dir(label, path string) *RunLogger {
	r.dirs[label] = path
	return r
}

// Remote registers a remote endpoint (gateway, proxy host, bucket, SSM
// parameter name). Empty values are skipped.
func (r *RunLogger) Remote(label, value string) *RunLogger {
	if value != "" {
		r.remotes[label] = value
	}
	return r
}

// Feature registers a boolean feature flag.
func (r *RunLogger) Feature(name string, enabled bool) *RunLogger {
	r.features[name] = enabled
	return r
}

// Config registers a non-sensitive configuration key-value pair.
func (r *RunLogger) Config(key, value string) *RunLogger {
	r.config[key] = value
	return r
}

// Timeout records the per-operation timeout.
func (r *RunLogger) Timeout(d time.Duration) *RunLogger {
	r.timeout = d
	return r
}

// Log emits the event on the global logger.
func (r *RunLogger) Log() {
	r.LogTo(log.Logger)
}

// LogTo emits a single INFO event with everything collected.
func (r *RunLogger) LogTo(logger zerolog.Logger) {
	evt := logger.Info()

	proc := zerolog.Dict().
		Str("name", r.name).
		Str("goVersion", runtime.Version()).
		Str("os", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Str("logLevel", os.Getenv(LevelEnv))
	if r.version != "" {
		proc = proc.Str("version", r.version)
	}
	evt = evt.Dict("process", proc)

	if r.loadedFrom != "" {
		evt = evt.Str("configFile", r.loadedFrom)
	}
	if len(r.dirs) > 0 {
		evt = evt.Dict("dirs", dictFromMap(r.dirs))
	}
	if len(r.remotes) > 0 {
		evt = evt.Dict("remotes", dictFromMap(r.remotes))
	}
	if len(r.features) > 0 {
		d := zerolog.Dict()
		for k, v := range r.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}
	if len(r.config) > 0 {
		evt = evt.Dict("config", dictFromMap(r.config))
	}
	if r.timeout > 0 {
		evt = evt.Dur("timeout", r.timeout)
	}

	evt.Msg("Session check configured")
}

// dictFromMap converts a map[string]string into a zerolog dict.
func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, v := range m {
		d = d.Str(k, v)
	}
	return d
}
