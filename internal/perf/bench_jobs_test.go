package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/odyssey-erp/odyssey-admin/internal/jobs"
	"github.com/odyssey-erp/odyssey-admin/internal/mailer"
	"github.com/odyssey-erp/odyssey-admin/jobs"
)

func TestJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	// Mail deliveries are quick and mostly successful.
	for i := 0; i < 60; i++ {
		tracker := metrics.Track(jobs.TaskTypeSendEmail)
		time.Sleep(2 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending mail tracker: %v", err)
		}
		metrics.MailSent(mailer.TemplateWelcome)
	}

	// Session purges are slower but stay well inside their timeout.
	for i := 0; i < 5; i++ {
		tracker := metrics.Track(jobs.TaskPurgeSessions)
		time.Sleep(10 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending purge tracker: %v", err)
		}
		metrics.AddPurgedSessions(4)
	}

	// A relay outage fails a few deliveries.
	for i := 0; i < 3; i++ {
		tracker := metrics.Track(jobs.TaskTypeSendEmail)
		if err := tracker.End(errors.New("smtp: connection refused")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "odyssey_jobs_total", map[string]string{"job": jobs.TaskTypeSendEmail, "status": "success"})
	failure := metricValue(t, families, "odyssey_jobs_total", map[string]string{"job": jobs.TaskTypeSendEmail, "status": "failure"})
	if success+failure == 0 {
		t.Fatal("no mail job executions recorded")
	}
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("mail job success ratio too low: %f", ratio)
	}

	if sent := metricValue(t, families, "odyssey_mail_sent_total", map[string]string{"template": mailer.TemplateWelcome}); sent != 60 {
		t.Fatalf("expected 60 welcome mails, got %f", sent)
	}

	purgeDuration := histogramMean(t, families, "odyssey_job_duration_seconds", map[string]string{"job": jobs.TaskPurgeSessions})
	if purgeDuration > time.Minute.Seconds() {
		t.Fatalf("purge duration above budget: %f", purgeDuration)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
