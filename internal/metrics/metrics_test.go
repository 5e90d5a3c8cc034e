package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	t.Parallel()
	m := New()

	m.MessageAppended("text", false)
	m.MessageAppended("text", false)
	m.MessageAppended("image", false)
	m.MessageAppended("text", true)
	m.NotModified("conversations")
	m.UnreadDrift(3)
	m.UnreadDrift(-1)

	if got := testutil.ToFloat64(m.messagesAppended.WithLabelValues("text")); got != 2 {
		t.Fatalf("text appends = %v", got)
	}
	if got := testutil.ToFloat64(m.replays); got != 1 {
		t.Fatalf("replays = %v", got)
	}
	if got := testutil.ToFloat64(m.unreadDrift); got != 3 {
		t.Fatalf("drift = %v", got)
	}
}

func TestGateStateIsOneHot(t *testing.T) {
	t.Parallel()
	m := New()
	m.GateState("ready")

	for _, s := range gateStates {
		want := 0.0
		if s == "ready" {
			want = 1
		}
		if got := testutil.ToFloat64(m.gateState.WithLabelValues(s)); got != want {
			t.Fatalf("state %s = %v, want %v", s, got, want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.MessageAppended("text", false)
	m.NotModified("x")
	m.GateState("ready")
	m.HealAttempt("ok")
	m.UnreadDrift(1)
}

func TestHandlerExposesRegistry(t *testing.T) {
	t.Parallel()
	m := New()
	m.HealAttempt("success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `marketchat_schema_heal_attempts_total{result="success"} 1`) {
		t.Fatalf("heal counter missing from output:\n%s", body)
	}
}
