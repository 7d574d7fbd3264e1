package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPublishMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPublishMetrics(reg)
	m.ObservePublish(OutcomeSuccess, 3*time.Second)
	m.AddUploaded(1024)
	m.AddUploaded(2048)
	m.IncCompensation(false)
	m.ObserveWave(5)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if mf := findMetricFamily(mfs, "shutterdesk_gallery_uploaded_bytes_total"); mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 3072 {
		t.Fatalf("unexpected uploaded bytes family %v", mf)
	}
	if mf := findMetricFamily(mfs, "shutterdesk_gallery_uploaded_files_total"); mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 2 {
		t.Fatalf("unexpected uploaded files family %v", mf)
	}
	if got, err := fetchCounterValue(mfs, "shutterdesk_gallery_compensations_total", "result", "failed"); err != nil || got != 1 {
		t.Fatalf("expected one failed compensation, got %f err=%v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "shutterdesk_gallery_publish_duration_seconds", "outcome", OutcomeSuccess); err != nil || got != 3 {
		t.Fatalf("expected duration sum 3, got %f err=%v", got, err)
	}
}

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.Inc("gallery_published", "published")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "shutterdesk_outbox_events_total", "result", "published"); err != nil || got != 1 {
		t.Fatalf("expected one published event, got %f err=%v", got, err)
	}
}

func TestPublishMetricsNilSafe(t *testing.T) {
	var m *PublishMetrics
	m.ObservePublish(OutcomeInvalid, time.Second)
	m.AddUploaded(10)
	m.IncCompensation(true)
	NewPublishMetrics(nil).ObserveWave(3)
	NewOutboxMetrics(nil).Inc("x", "y")
}
