package storage

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"videotube/metrics"
)

// Observer captures telemetry for remote storage operations.
type Observer interface {
	RecordUpload(duration time.Duration, sizeBytes int64, err error)
	RecordDelete(duration time.Duration, err error)
}

// PrometheusObserver exports storage metrics to Prometheus.
type PrometheusObserver struct {
	duration    *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	uploadBytes prometheus.Counter
}

// NewPrometheusObserver registers upload/delete metrics on reg.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = metrics.Namespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	observer := &PrometheusObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Latency for remote storage operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operation_errors_total",
			Help:      "Count of remote storage failures.",
		}, []string{"operation"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "uploaded_bytes_total",
			Help:      "Cumulative payload size successfully uploaded.",
		}),
	}
	var err error
	if observer.duration, err = metrics.Register(reg, observer.duration); err != nil {
		return nil, err
	}
	if observer.errors, err = metrics.Register(reg, observer.errors); err != nil {
		return nil, err
	}
	if observer.uploadBytes, err = metrics.Register(reg, observer.uploadBytes); err != nil {
		return nil, err
	}
	return observer, nil
}

func (o *PrometheusObserver) RecordUpload(duration time.Duration, sizeBytes int64, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues("upload").Observe(duration.Seconds())
	if err != nil {
		o.errors.WithLabelValues("upload").Inc()
		return
	}
	o.uploadBytes.Add(float64(sizeBytes))
}

func (o *PrometheusObserver) RecordDelete(duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues("delete").Observe(duration.Seconds())
	if err != nil {
		o.errors.WithLabelValues("delete").Inc()
	}
}

// Instrumented wraps a Provider and reports every call to an Observer.
type Instrumented struct {
	Provider
	observer Observer
}

// Instrument returns p unchanged when o is nil.
func Instrument(p Provider, o Observer) Provider {
	if o == nil {
		return p
	}
	return &Instrumented{Provider: p, observer: o}
}

func (i *Instrumented) Upload(ctx context.Context, localPath string) (*Asset, error) {
	start := time.Now()
	asset, err := i.Provider.Upload(ctx, localPath)
	var size int64
	if asset != nil {
		size = asset.Bytes
	}
	i.observer.RecordUpload(time.Since(start), size, err)
	return asset, err
}

func (i *Instrumented) Delete(ctx context.Context, remoteID string) error {
	start := time.Now()
	err := i.Provider.Delete(ctx, remoteID)
	i.observer.RecordDelete(time.Since(start), err)
	return err
}
