package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Publish outcomes.
const (
	OutcomeSuccess      = "success"
	OutcomeInvalid      = "invalid"
	OutcomeUploadFailed = "upload_failed"
	OutcomeCommitFailed = "commit_failed"
	OutcomeSlugFailed   = "slug_failed"
)

// PublishMetrics instruments the gallery publishing pipeline.
type PublishMetrics struct {
	duration      *prometheus.HistogramVec
	uploadedBytes prometheus.Counter
	uploadedFiles prometheus.Counter
	compensations *prometheus.CounterVec
	waveSize      prometheus.Histogram
}

func NewPublishMetrics(reg prometheus.Registerer) *PublishMetrics {
	if reg == nil {
		return &PublishMetrics{}
	}
	m := &PublishMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gallery_publish_duration_seconds",
			Help:      "End-to-end duration of gallery publishes by outcome.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gallery_uploaded_bytes_total",
			Help:      "Bytes written to the object store by the publisher.",
		}),
		uploadedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gallery_uploaded_files_total",
			Help:      "Objects written to the object store by the publisher.",
		}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gallery_compensations_total",
			Help:      "Compensating deletes by result.",
		}, []string{"result"}),
		waveSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gallery_upload_wave_size",
			Help:      "Number of uploads started together in one wave.",
			Buckets:   []float64{1, 5, 10, 15, 20},
		}),
	}
	reg.MustRegister(m.duration, m.uploadedBytes, m.uploadedFiles, m.compensations, m.waveSize)
	return m
}

func (m *PublishMetrics) ObservePublish(outcome string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(outcome)).Observe(d.Seconds())
}

func (m *PublishMetrics) AddUploaded(bytes int64) {
	if m == nil || m.uploadedBytes == nil {
		return
	}
	m.uploadedFiles.Inc()
	if bytes > 0 {
		m.uploadedBytes.Add(float64(bytes))
	}
}

func (m *PublishMetrics) ObserveWave(size int) {
	if m == nil || m.waveSize == nil {
		return
	}
	m.waveSize.Observe(float64(size))
}

// IncCompensation records one compensating delete; ok reports whether it fully succeeded.
func (m *PublishMetrics) IncCompensation(ok bool) {
	if m == nil || m.compensations == nil {
		return
	}
	result := "failed"
	if ok {
		result = "ok"
	}
	m.compensations.WithLabelValues(result).Inc()
}
