package context

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/maps"
)

var MetricsLogLevel = 5

var LatencyBuckets = []float64{
	float64(10 * time.Millisecond),
	float64(100 * time.Millisecond),
	float64(500 * time.Millisecond),
	float64(1 * time.Second),
	float64(10 * time.Second),
}

var (
	ctxHistograms sync.Map
	ctxCounters   sync.Map
)

func stringSliceToMap(labels []string) map[string]string {
	m := make(map[string]string, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		m[labels[i]] = labels[i+1]
	}
	return m
}

func metricKey(name string, labels map[string]string) (string, []string) {
	keys := maps.Keys(labels)
	slices.Sort(keys)
	return strings.Join(append(slices.Clone(keys), name), "."), keys
}

type Histogram struct {
	Context   Context
	Name      string
	Histogram *prometheus.HistogramVec
	Labels    map[string]string
}

// Histogram returns a lazily registered histogram; labels are key/value pairs.
func (k Context) Histogram(name string, buckets []float64, labels ...string) Histogram {
	labelMap := stringSliceToMap(labels)
	key, labelKeys := metricKey(name, labelMap)

	h := Histogram{Context: k, Name: name, Labels: labelMap}
	if existing, ok := ctxHistograms.Load(key); ok {
		h.Histogram = existing.(*prometheus.HistogramVec)
		return h
	}

	h.Histogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Buckets: buckets}, labelKeys)
	if err := prometheus.Register(h.Histogram); err != nil {
		k.Errorf("error registering histogram[%s/%v]: %v", name, labels, err)
	}
	ctxHistograms.Store(key, h.Histogram)
	return h
}

func (h Histogram) Label(k, v string) Histogram {
	h.Labels[k] = v
	return h
}

func (h Histogram) Record(d time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			h.Context.Errorf("error observing histogram[%s/%v]: %v", h.Name, h.Labels, r)
		}
	}()

	if log := logger.GetLogger("metrics." + h.Name); log.IsLevelEnabled(4) {
		log.V(MetricsLogLevel).Infof("%v %s", h.Labels, d)
	}
	h.Histogram.With(prometheus.Labels(h.Labels)).Observe(float64(d))
}

func (h Histogram) Since(s time.Time) {
	h.Record(time.Since(s))
}

type Counter struct {
	Context Context
	Name    string
	Labels  map[string]string
	Counter *prometheus.CounterVec
}

// Counter returns a lazily registered counter; labels are key/value pairs.
func (k Context) Counter(name string, labels ...string) Counter {
	labelMap := stringSliceToMap(labels)
	key, labelKeys := metricKey(name, labelMap)

	c := Counter{Context: k, Name: name, Labels: labelMap}
	if existing, ok := ctxCounters.Load(key); ok {
		c.Counter = existing.(*prometheus.CounterVec)
		return c
	}

	c.Counter = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labelKeys)
	if err := prometheus.Register(c.Counter); err != nil {
		k.Errorf("error registering counter[%s/%v]: %v", name, labels, err)
	}
	ctxCounters.Store(key, c.Counter)
	return c
}

func (c Counter) Label(k, v string) Counter {
	c.Labels[k] = v
	return c
}

func (c Counter) Add(count int) {
	defer func() {
		if r := recover(); r != nil {
			c.Context.Errorf("error adding to counter[%s/%v]: %v", c.Name, c.Labels, r)
		}
	}()

	c.Counter.With(prometheus.Labels(c.Labels)).Add(float64(count))
}

// RecordTransition counts a workflow operation by kind (incident, capa,
// risk_assessment), transition name and result (success, noop, error).
func (k Context) RecordTransition(kind, transition, result string) {
	k.Counter("hse_transitions_total", "kind", kind, "transition", transition, "result", result).Add(1)
}

func TransitionResult(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
