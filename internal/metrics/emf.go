// Package metrics emits CloudWatch Embedded Metric Format (EMF) documents.
// Each flush writes one JSON line; when the process runs under a CloudWatch
// agent or Lambda, the metrics are extracted from the log stream with no
// API calls.
//
// See: https://docs.aws.amazon.com/AmazonCloudWatch/latest/monitoring/CloudWatch_Embedded_Metric_Format_Specification.html
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// Standard CloudWatch metric units.
const (
	UnitMilliseconds = "Milliseconds"
	UnitCount        = "Count"
	UnitNone         = "None"
)

type metricDef struct {
	Name string `json:"Name"`
	Unit string `json:"Unit"`
}

// emfDirective is the _aws metadata block required by EMF.
type emfDirective struct {
	Timestamp         int64      `json:"Timestamp"`
	CloudWatchMetrics []cwMetric `json:"CloudWatchMetrics"`
}

type cwMetric struct {
	Namespace  string      `json:"Namespace"`
	Dimensions [][]string  `json:"Dimensions"`
	Metrics    []metricDef `json:"Metrics"`
}

// Recorder accumulates dimensions, metrics, and properties for a single EMF
// flush. It is not safe for concurrent use.
type Recorder struct {
	namespace  string
	out        io.Writer
	now        func() time.Time
	dimensions map[string]string
	metrics    map[string]metricDef
	values     map[string]any
	properties map[string]any
}

// New creates a Recorder for namespace that writes to stdout.
func New(namespace string) *Recorder {
	return &Recorder{
		namespace:  namespace,
		out:        os.Stdout,
		now:        time.Now,
		dimensions: make(map[string]string),
		metrics:    make(map[string]metricDef),
		values:     make(map[string]any),
		properties: make(map[string]any),
	}
}

// To redirects the EMF line to w.
func (r *Recorder) To(w io.Writer) *Recorder {
	r.out = w
	return r
}

// Dimension adds a dimension key-value pair.
func (r *Recorder) Dimension(key, value string) *Recorder {
	r.dimensions[key] = value
	return r
}

// Metric records a named metric value with a CloudWatch unit.
func (r *Recorder) Metric(name string, value float64, unit string) *Recorder {
	r.metrics[name] = metricDef{Name: name, Unit: unit}
	r.values[name] = value
	return r
}

// Count records a count metric.
func (r *Recorder) Count(name string, n int) *Recorder {
	return r.Metric(name, float64(n), UnitCount)
}

// Property adds a non-metric field. Properties are searchable in Logs
// Insights but do not create metrics.
func (r *Recorder) Property(key string, value any) *Recorder {
	r.properties[key] = value
	return r
}

// Flush writes the EMF document as a single JSON line. It does nothing if
// no metric was recorded.
func (r *Recorder) Flush() error {
	if len(r.metrics) == 0 {
		return nil
	}

	doc := make(map[string]any, 1+len(r.dimensions)+len(r.values)+len(r.properties))

	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	metricDefs := make([]metricDef, 0, len(names))
	for _, name := range names {
		metricDefs = append(metricDefs, r.metrics[name])
	}

	dimKeys := make([]string, 0, len(r.dimensions))
	for k := range r.dimensions {
		dimKeys = append(dimKeys, k)
	}
	sort.Strings(dimKeys)

	doc["_aws"] = emfDirective{
		Timestamp: r.now().UnixMilli(),
		CloudWatchMetrics: []cwMetric{{
			Namespace:  r.namespace,
			Dimensions: [][]string{dimKeys},
			Metrics:    metricDefs,
		}},
	}

	// Dimensions and metrics override properties of the same name.
	for k, v := range r.properties {
		doc[k] = v
	}
	for k, v := range r.dimensions {
		doc[k] = v
	}
	for k, v := range r.values {
		doc[k] = v
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("emf: marshal metrics: %w", err)
	}
	if _, err := fmt.Fprintln(r.out, string(data)); err != nil {
		return fmt.Errorf("emf: write metrics: %w", err)
	}
	log.Debug().Str("namespace", r.namespace).Int("metrics", len(names)).Msg("EMF metrics flushed")
	return nil
}
