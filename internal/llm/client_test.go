package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/softcane/cloud-cost-advisor/internal/engine"
)

func testRecommendation() engine.Recommendation {
	cost := 0.096
	return engine.Recommendation{
		InstanceID:              4,
		CloudInstanceID:         "i-0004",
		Environment:             "dev",
		Region:                  "us-west-2",
		InstanceType:            "m5.large",
		HourlyCost:              &cost,
		Action:                  engine.ActionDownsize,
		ConfidenceDownsize:      0.91,
		ProjectedMonthlySavings: 27.65,
		Reasons:                 []string{"Average CPU utilization is low (9.5%)"},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	if client == nil {
		t.Fatal("NewClient returned nil with an API key set")
	}
	return client, srv
}

func completionResponse(content string) []byte {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
	b, _ := json.Marshal(resp)
	return b
}

func TestNewClientWithoutKey(t *testing.T) {
	if c := NewClient(Config{}); c != nil {
		t.Fatal("expected nil client when no API key is configured")
	}
}

func TestExplainRecommendation(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Write(completionResponse("  Downsizing saves money.  "))
	})

	got, err := client.ExplainRecommendation(context.Background(), testRecommendation())
	if err != nil {
		t.Fatalf("ExplainRecommendation: %v", err)
	}
	if got != "Downsizing saves money." {
		t.Errorf("explanation = %q", got)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", gotBody.Model)
	}
	if gotBody.MaxTokens != 200 {
		t.Errorf("max_tokens = %d", gotBody.MaxTokens)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Fatalf("unexpected messages %+v", gotBody.Messages)
	}
	user := gotBody.Messages[1].Content
	for _, want := range []string{
		"Action: downsize",
		"Instance: i-0004 (m5.large)",
		"Current hourly cost: $0.096/hr",
		"Projected monthly savings: $27.65",
		"Downsize confidence: 91.0%",
		"Average CPU utilization is low (9.5%)",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q:\n%s", want, user)
		}
	}
}

func TestExplainRecommendationCaches(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write(completionResponse("cached answer"))
	})

	rec := testRecommendation()
	for i := 0; i < 3; i++ {
		got, err := client.ExplainRecommendation(context.Background(), rec)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if got != "cached answer" {
			t.Errorf("call %d: explanation = %q", i, got)
		}
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}
}

func TestExplainRecommendationUpstreamErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http 500",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "invalid key",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
		},
		{
			name: "api error payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"error": {"message": "rate limited", "code": "rate_limit_exceeded"}}`))
			},
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"choices": []}`))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, tt.handler)
			_, err := client.ExplainRecommendation(context.Background(), testRecommendation())
			if !errors.Is(err, engine.ErrUpstreamUnavailable) {
				t.Errorf("err = %v, want ErrUpstreamUnavailable", err)
			}
		})
	}
}
