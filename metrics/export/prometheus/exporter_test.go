package prometheus

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/calthas/authcore"
	"github.com/calthas/authcore/metrics/export/internaldefs"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f *fakeSource) AuditDropped() uint64                      { return f.dropped }

func newFakeSource() *fakeSource {
	f := &fakeSource{dropped: 2}
	f.snapshot.Counters = map[authcore.MetricID]uint64{
		authcore.MetricLoginSuccess:         7,
		authcore.MetricRefreshReuseDetected: 1,
	}
	return f
}

func TestRenderExpositionFormat(t *testing.T) {
	exporter := NewExporterFromSource(newFakeSource())
	out := exporter.Render()

	for _, want := range []string{
		"# HELP authcore_login_success_total Successful logins.\n",
		"# TYPE authcore_login_success_total counter\n",
		"authcore_login_success_total 7\n",
		"authcore_refresh_reuse_detected_total 1\n",
		"authcore_register_success_total 0\n",
		"authcore_audit_dropped_total 2\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestRenderCoversEveryCounter(t *testing.T) {
	out := NewExporterFromSource(&fakeSource{}).Render()

	for _, def := range internaldefs.CounterDefs {
		if !strings.Contains(out, "# TYPE "+def.Name+" counter\n") {
			t.Errorf("counter %s not rendered", def.Name)
		}
	}
}

func TestHandler(t *testing.T) {
	exporter := NewExporterFromSource(newFakeSource())

	rec := httptest.NewRecorder()
	exporter.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("content type = %q", got)
	}
	if !strings.Contains(rec.Body.String(), "authcore_login_success_total 7") {
		t.Fatal("body missing counter line")
	}
}

func TestRenderNilSafe(t *testing.T) {
	var exporter *Exporter
	if out := exporter.Render(); out != "" {
		t.Fatalf("nil exporter must render empty, got %q", out)
	}
}
