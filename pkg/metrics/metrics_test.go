package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsExposedOverHandler(t *testing.T) {
	m := New("voxrunner_test")
	m.SetPoolOccupancy(2, 1)
	m.ObserveInitialization(true)
	m.ObserveInitialization(false)
	m.ObservePingRTT(0.05)
	m.IncPingTimeout()
	m.ObserveJobLaunched()
	m.ObserveJobDuration(12.5)
	m.ObserveTurnDuration("completed", 1.2)
	m.IncToolCall("get_weather", "ok")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"voxrunner_test_pool_idle_processes 2",
		"voxrunner_test_pool_active_processes 1",
		"voxrunner_test_pool_initializations_total 2",
		"voxrunner_test_pool_initialization_failures_total 1",
		`voxrunner_test_session_tool_calls_total{outcome="ok",tool="get_weather"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q, got:\n%s", want, body)
		}
	}
}
