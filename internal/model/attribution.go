package model

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/softcane/cloud-cost-advisor/internal/engine"
)

// Explainer attributes classifier output to input features by
// occlusion: each schema feature is reverted to its training mean (a
// standardized value of zero) in turn and the row is re-scored; the
// probability shift measures that feature's marginal contribution.
// It implements engine.Attributor.
type Explainer struct {
	classifier *Classifier

	mu    sync.Mutex
	plans map[string]*occlusionPlan
}

// occlusionPlan is the per-artifact precomputation, cached by artifact
// identity so a reloaded classifier gets a fresh plan.
type occlusionPlan struct {
	schema []FeatureStat
}

// NewExplainer wraps the classifier for feature attribution.
func NewExplainer(classifier *Classifier) *Explainer {
	return &Explainer{
		classifier: classifier,
		plans:      make(map[string]*occlusionPlan),
	}
}

func (e *Explainer) plan() *occlusionPlan {
	meta := e.classifier.Meta()

	e.mu.Lock()
	defer e.mu.Unlock()
	key := meta.identity()
	if p, ok := e.plans[key]; ok {
		return p
	}
	p := &occlusionPlan{schema: meta.FeatureSchema}
	e.plans[key] = p
	return p
}

// TopAttributions returns up to topK ordered reason strings for each
// selected matrix row, most influential feature first.
func (e *Explainer) TopAttributions(ctx context.Context, m engine.FeatureMatrix, rows []int, topK int) ([][]string, error) {
	if len(rows) == 0 {
		return [][]string{}, nil
	}
	if topK <= 0 {
		topK = engine.DefaultAttributionTopK
	}
	for _, r := range rows {
		if r < 0 || r >= m.Len() {
			return nil, fmt.Errorf("row %d out of range for %d-row matrix", r, m.Len())
		}
	}

	plan := e.plan()
	d := len(plan.schema)

	e.classifier.mu.RLock()
	session := e.classifier.session
	e.classifier.mu.RUnlock()
	if session == nil {
		return nil, engine.ErrModelUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// One scoring batch holds, per selected row, the row itself
	// followed by d occluded variants.
	standardized := standardizeRows(plan.schema, m, rows)
	batch := make([][]float32, 0, len(rows)*(d+1))
	for _, row := range standardized {
		batch = append(batch, row)
		for j := 0; j < d; j++ {
			occluded := make([]float32, d)
			copy(occluded, row)
			occluded[j] = 0
			batch = append(batch, occluded)
		}
	}

	probs, err := session.Score(batch)
	if err != nil {
		return nil, err
	}
	if len(probs) != len(batch) {
		return nil, fmt.Errorf("model returned %d probabilities for %d rows", len(probs), len(batch))
	}

	rawCols := make([]int, d)
	for j, f := range plan.schema {
		rawCols[j] = m.ColumnIndex(f.Name)
	}

	out := make([][]string, len(rows))
	for i, r := range rows {
		base := probs[i*(d+1)]

		order := make([]int, d)
		impact := make([]float64, d)
		for j := 0; j < d; j++ {
			order[j] = j
			impact[j] = abs(float64(base - probs[i*(d+1)+1+j]))
		}
		sort.SliceStable(order, func(a, b int) bool {
			return impact[order[a]] > impact[order[b]]
		})

		reasons := make([]string, 0, topK)
		for _, j := range order {
			raw := 0.0
			if rawCols[j] >= 0 {
				raw = m.Rows[r][rawCols[j]]
			}
			reason := reasonForFeature(plan.schema[j].Name, raw)
			if reason != "" && !contains(reasons, reason) {
				reasons = append(reasons, reason)
			}
			if len(reasons) >= topK {
				break
			}
		}
		out[i] = reasons
	}
	return out, nil
}

// reasonForFeature renders one feature as a human-readable phrase. The
// thresholds match the decision rule's utilization cut-offs so the
// wording agrees with the rule-based reasons shown next to it.
func reasonForFeature(name string, value float64) string {
	switch name {
	case "p95_cpu":
		if value < 20 {
			return fmt.Sprintf("Low P95 CPU utilization (%.1f%%)", value)
		}
		return fmt.Sprintf("High P95 CPU utilization (%.1f%%)", value)
	case "avg_cpu":
		if value < 20 {
			return fmt.Sprintf("Low avg CPU utilization (%.1f%%)", value)
		}
		return fmt.Sprintf("High avg CPU utilization (%.1f%%)", value)
	case "p95_mem":
		if value < 25 {
			return fmt.Sprintf("Low P95 memory utilization (%.1f%%)", value)
		}
		return fmt.Sprintf("High P95 memory utilization (%.1f%%)", value)
	case "avg_mem":
		if value < 25 {
			return fmt.Sprintf("Low avg memory utilization (%.1f%%)", value)
		}
		return fmt.Sprintf("High avg memory utilization (%.1f%%)", value)
	case "avg_net_in_mb":
		if value < 1 {
			return fmt.Sprintf("Low inbound network (%.2f MB)", value)
		}
		return fmt.Sprintf("High inbound network (%.2f MB)", value)
	case "avg_net_out_mb":
		if value < 1 {
			return fmt.Sprintf("Low outbound network (%.2f MB)", value)
		}
		return fmt.Sprintf("High outbound network (%.2f MB)", value)
	case "is_prod":
		if value < 0.5 {
			return "Non-production environment"
		}
		return "Production environment"
	}
	if family, ok := strings.CutPrefix(name, "family_"); ok && value >= 0.5 {
		return "Instance family: " + family
	}
	return strings.ReplaceAll(name, "_", " ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
