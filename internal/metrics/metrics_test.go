package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetModelInfo(t *testing.T) {
	SetModelInfo("v0.1")
	if got := testutil.ToFloat64(ModelInfo.WithLabelValues("v0.1")); got != 1 {
		t.Errorf("model_info{model_version=v0.1} = %v, want 1", got)
	}

	// A reload replaces the label, never accumulates versions.
	SetModelInfo("v0.2")
	if got := testutil.CollectAndCount(ModelInfo); got != 1 {
		t.Errorf("model_info exports %d series after reload, want 1", got)
	}
	if got := testutil.ToFloat64(ModelInfo.WithLabelValues("v0.2")); got != 1 {
		t.Errorf("model_info{model_version=v0.2} = %v, want 1", got)
	}
}

func TestIncVerifyResult(t *testing.T) {
	before := testutil.ToFloat64(VerifyActions.WithLabelValues("verified"))
	IncVerifyResult("verified")
	after := testutil.ToFloat64(VerifyActions.WithLabelValues("verified"))
	if after != before+1 {
		t.Errorf("verify_actions_total{result=verified} = %v, want %v", after, before+1)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/recommendations", "200"))
	RecordHTTPRequest("GET", "/recommendations", 200, 0.012)
	after := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/recommendations", "200"))
	if after != before+1 {
		t.Errorf("http_requests_total = %v, want %v", after, before+1)
	}
}
