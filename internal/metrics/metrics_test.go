package metrics

import (
	"testing"
)

func TestNew_GathersMetrics(t *testing.T) {
	m := New()

	m.RequestsTotal.WithLabelValues("POST", "202", "/batch/echo").Inc()
	m.BatchParts.WithLabelValues(KindQuery).Inc()
	m.BatchParseErrors.WithLabelValues(ErrorSyntax).Inc()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	want := map[string]bool{
		"odata_batch_http_requests_total": false,
		"odata_batch_parts_total":         false,
		"odata_batch_parse_errors_total":  false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %s in gathered metrics", name)
		}
	}
}

// counterValue returns the value of the counter named name whose label
// matches value, or -1 when no such series was gathered.
func counterValue(t *testing.T, m *Metrics, name, label, value string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return -1
}

func TestObserveWrite(t *testing.T) {
	m := New()

	m.ObserveWrite(DirectionRequest, 512, false)
	m.ObserveWrite(DirectionRequest, 1<<20, true)
	m.ObserveWrite(DirectionResponse, 100, false)

	if got := counterValue(t, m, "odata_batch_spills_total", "direction", DirectionRequest); got != 1 {
		t.Errorf("request spills = %v, want 1", got)
	}
	if got := counterValue(t, m, "odata_batch_spills_total", "direction", DirectionResponse); got != -1 {
		t.Errorf("response spills = %v, want no series", got)
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != "odata_batch_payload_bytes" {
			continue
		}
		var samples uint64
		for _, metric := range f.GetMetric() {
			samples += metric.GetHistogram().GetSampleCount()
		}
		if samples != 3 {
			t.Errorf("payload samples = %d, want 3", samples)
		}
		return
	}
	t.Error("odata_batch_payload_bytes not gathered")
}

func TestObserveWrite_NilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveWrite(DirectionRequest, 10, true)
}

func TestNormalizeMethod(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{"GET", "GET"},
		{"POST", "POST"},
		{"PUT", "PUT"},
		{"DELETE", "DELETE"},
		{"PATCH", "PATCH"},
		{"HEAD", "HEAD"},
		{"OPTIONS", "OPTIONS"},
		{"MERGE", "other"},
		{"get", "other"},
		{"", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got := NormalizeMethod(tt.method)
			if got != tt.want {
				t.Errorf("NormalizeMethod(%q) = %q, want %q", tt.method, got, tt.want)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/$batch", "/$batch"},
		{"/$batch?sap-client=100", "/$batch"},
		{"/batch/echo", "/batch/echo"},
		{"/batch/validate", "/batch/validate"},
		{"/batch", "other"},
		{"/healthz", "/healthz"},
		{"/status", "/status"},
		{"/metrics", "/metrics"},
		{"/unknown", "other"},
		{"/", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := NormalizePath(tt.path)
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
