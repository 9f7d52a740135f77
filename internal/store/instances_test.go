package store

import (
	"reflect"
	"testing"

	"github.com/softcane/cloud-cost-advisor/internal/engine"
)

func TestInstanceFilterClause(t *testing.T) {
	tests := []struct {
		name      string
		filters   engine.Filters
		prefix    string
		argOffset int
		want      string
		wantArgs  []any
	}{
		{
			name:     "empty filters",
			filters:  engine.Filters{},
			want:     "",
			wantArgs: []any{},
		},
		{
			name:     "environment only",
			filters:  engine.Filters{Environment: "prod"},
			want:     " WHERE environment = $1",
			wantArgs: []any{"prod"},
		},
		{
			name:     "all filters",
			filters:  engine.Filters{Environment: "dev", Region: "us-west-2", InstanceType: "m5.large"},
			want:     " WHERE environment = $1 AND region = $2 AND instance_type = $3",
			wantArgs: []any{"dev", "us-west-2", "m5.large"},
		},
		{
			name:      "prefixed with offset for joined query",
			filters:   engine.Filters{Environment: "prod", Region: "eu-central-1"},
			prefix:    "i.",
			argOffset: 1,
			want:      " WHERE i.environment = $2 AND i.region = $3",
			wantArgs:  []any{"prod", "eu-central-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, args := instanceFilterClause(tt.filters, tt.prefix, tt.argOffset)
			if got != tt.want {
				t.Errorf("clause = %q, want %q", got, tt.want)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestParseCost(t *testing.T) {
	got, err := parseCost("0.0960")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0.096 {
		t.Errorf("parseCost = %v, want 0.096", got)
	}

	if _, err := parseCost("not-a-number"); err == nil {
		t.Error("invalid numeric must fail")
	}
}
