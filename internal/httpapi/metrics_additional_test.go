package httpapi

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"tensord/internal/manager"
)

func TestMetricsPublisher_CountsManagerEvents(t *testing.T) {
	mem := manager.NewMemoryPublisher()
	p := MetricsPublisher{Next: mem}

	loads := testutil.ToFloat64(managerLoadsTotal.WithLabelValues("pub-test", "ok"))
	loadErrs := testutil.ToFloat64(managerLoadsTotal.WithLabelValues("pub-test", "error"))
	infers := testutil.ToFloat64(managerInferencesTotal.WithLabelValues("pub-test", "ok"))
	switches := testutil.ToFloat64(managerDeviceSwitchesTotal.WithLabelValues("pub-test", "gpu"))

	p.Publish(manager.Event{Name: manager.EventLoadDone, Model: "pub-test"})
	p.Publish(manager.Event{Name: manager.EventInjectError, Model: "pub-test"})
	p.Publish(manager.Event{Name: manager.EventInferDone, Model: "pub-test", Fields: map[string]any{"dur_s": 0.01}})
	p.Publish(manager.Event{Name: manager.EventDeviceSwitch, Model: "pub-test", Fields: map[string]any{"device": "gpu"}})
	p.Publish(manager.Event{Name: manager.EventLoadStart, Model: "pub-test"})

	if got := testutil.ToFloat64(managerLoadsTotal.WithLabelValues("pub-test", "ok")); got != loads+1 {
		t.Fatalf("loads ok=%v", got)
	}
	if got := testutil.ToFloat64(managerLoadsTotal.WithLabelValues("pub-test", "error")); got != loadErrs+1 {
		t.Fatalf("loads error=%v", got)
	}
	if got := testutil.ToFloat64(managerInferencesTotal.WithLabelValues("pub-test", "ok")); got != infers+1 {
		t.Fatalf("inferences=%v", got)
	}
	if got := testutil.ToFloat64(managerDeviceSwitchesTotal.WithLabelValues("pub-test", "gpu")); got != switches+1 {
		t.Fatalf("switches=%v", got)
	}
	if n := len(mem.Names()); n != 5 {
		t.Fatalf("expected every event forwarded, got %d", n)
	}
	// a nil Next is allowed
	MetricsPublisher{}.Publish(manager.Event{Name: manager.EventLoadDone, Model: "pub-test"})
}
