package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertSpec struct {
	Groups []alertGroup `yaml:"groups"`
}

func TestStockroomAlertRules(t *testing.T) {
	path := filepath.Join("..", "..", "deploy", "prometheus", "alerts", "stockroom.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read alert file: %v", err)
	}

	var spec alertSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		t.Fatalf("failed to unmarshal alert file: %v", err)
	}

	if len(spec.Groups) == 0 {
		t.Fatal("expected at least one alert group")
	}

	var group *alertGroup
	for i := range spec.Groups {
		if spec.Groups[i].Name == "stockroom" {
			group = &spec.Groups[i]
			break
		}
	}
	if group == nil {
		t.Fatal("stockroom alert group missing")
	}

	expected := map[string]struct {
		severity string
		runbook  string
	}{
		"HighErrorRate":          {severity: "critical", runbook: "docs/runbook.md#high-error-rate"},
		"HighLatency":            {severity: "warning", runbook: "docs/runbook.md#high-latency"},
		"DispatchRejectionSpike": {severity: "warning", runbook: "docs/runbook.md#dispatch-rejections"},
		"LowStockScanFailing":    {severity: "warning", runbook: "docs/runbook.md#low-stock-scan"},
	}

	if len(group.Rules) != len(expected) {
		t.Fatalf("expected %d rules, got %d", len(expected), len(group.Rules))
	}

	for _, rule := range group.Rules {
		want, ok := expected[rule.Alert]
		if !ok {
			t.Fatalf("unexpected rule %q", rule.Alert)
		}
		if rule.Labels["severity"] != want.severity {
			t.Fatalf("rule %s severity mismatch: %s", rule.Alert, rule.Labels["severity"])
		}
		if rule.Annotations["runbook"] != want.runbook {
			t.Fatalf("rule %s runbook mismatch: %s", rule.Alert, rule.Annotations["runbook"])
		}
		if rule.Annotations["summary"] == "" || rule.Annotations["description"] == "" {
			t.Fatalf("rule %s must include summary and description annotations", rule.Alert)
		}
		if rule.Expr == "" {
			t.Fatalf("rule %s must define an expression", rule.Alert)
		}
		if rule.For == "" {
			t.Fatalf("rule %s must define a hold duration", rule.Alert)
		}
		if !referencesExportedMetric(rule.Expr) {
			t.Fatalf("rule %s queries no exported stockroom metric: %s", rule.Alert, rule.Expr)
		}
	}
}

var exportedMetrics = []string{
	"stockroom_http_requests_total",
	"stockroom_http_request_duration_seconds",
	"stockroom_dispatches_total",
	"stockroom_import_rows_total",
	"stockroom_jobs_total",
	"stockroom_jobs_failures_total",
	"stockroom_job_duration_seconds",
	"stockroom_low_stock_items",
}

func referencesExportedMetric(expr string) bool {
	for _, name := range exportedMetrics {
		if strings.Contains(expr, name) {
			return true
		}
	}
	return false
}
