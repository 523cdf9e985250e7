package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountCall(t *testing.T) {
	before := testutil.ToFloat64(externalCalls.WithLabelValues("geocode", "timeout"))
	CountCall("geocode", "timeout")
	CountCall("geocode", "timeout")
	if got := testutil.ToFloat64(externalCalls.WithLabelValues("geocode", "timeout")) - before; got != 2 {
		t.Errorf("calls: got %v, want 2", got)
	}
}

func TestJobStarted(t *testing.T) {
	base := testutil.ToFloat64(jobsInFlight)
	done := JobStarted()
	if got := testutil.ToFloat64(jobsInFlight); got != base+1 {
		t.Errorf("in flight while running: got %v, want %v", got, base+1)
	}
	done("completed")
	if got := testutil.ToFloat64(jobsInFlight); got != base {
		t.Errorf("in flight after finish: got %v, want %v", got, base)
	}
}

func TestConnectionGauge(t *testing.T) {
	base := testutil.ToFloat64(hubConnections)
	ConnectionOpened()
	ConnectionOpened()
	ConnectionClosed()
	if got := testutil.ToFloat64(hubConnections); got != base+1 {
		t.Errorf("connections: got %v, want %v", got, base+1)
	}
	ConnectionClosed()
}

func TestCountSwept_IgnoresZero(t *testing.T) {
	base := testutil.ToFloat64(storeSwept)
	CountSwept(0)
	CountSwept(3)
	if got := testutil.ToFloat64(storeSwept) - base; got != 3 {
		t.Errorf("swept: got %v, want 3", got)
	}
}

func TestSetStoreEntries(t *testing.T) {
	SetStoreEntries(7)
	if got := testutil.ToFloat64(storeEntries); got != 7 {
		t.Errorf("entries: got %v, want 7", got)
	}
}

func TestObserveSearch(t *testing.T) {
	ObserveSearch("sync", "NONE", 20*time.Millisecond, 4)
	if n := testutil.CollectAndCount(searchDuration); n == 0 {
		t.Error("expected a search duration series")
	}
}
