// Package plans loads the hosting plan catalog from plans.yaml.
package plans

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Plan struct {
	ID                string `yaml:"id"`
	Name              string `yaml:"name"`
	MonthlyPriceCents int    `yaml:"monthly_price_cents"`
	DiskMB            int    `yaml:"disk_mb"`
	BandwidthGB       int    `yaml:"bandwidth_gb"`
}

type catalogFile struct {
	Plans []Plan `yaml:"plans"`
}

// Catalog is the validated set of sellable hosting plans, keyed by plan id.
type Catalog struct {
	plans map[string]Plan
	order []string
}

func Parse(content []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse plan catalog YAML: %w", err)
	}

	if len(file.Plans) == 0 {
		return nil, fmt.Errorf("at least one plan is required")
	}

	catalog := &Catalog{plans: make(map[string]Plan, len(file.Plans))}
	for i, plan := range file.Plans {
		if err := validatePlan(&plan); err != nil {
			return nil, fmt.Errorf("plan %d validation failed: %w", i, err)
		}
		if _, dup := catalog.plans[plan.ID]; dup {
			return nil, fmt.Errorf("duplicate plan id: %s", plan.ID)
		}
		catalog.plans[plan.ID] = plan
		catalog.order = append(catalog.order, plan.ID)
	}

	return catalog, nil
}

func Load(path string) (*Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan catalog: %w", err)
	}
	return Parse(content)
}

func validatePlan(plan *Plan) error {
	if strings.TrimSpace(plan.ID) == "" {
		return fmt.Errorf("plan id is required")
	}
	if strings.TrimSpace(plan.Name) == "" {
		return fmt.Errorf("plan name is required")
	}
	if plan.MonthlyPriceCents <= 0 {
		return fmt.Errorf("plan monthly price must be positive")
	}
	if plan.DiskMB <= 0 {
		return fmt.Errorf("plan disk quota must be positive")
	}
	if plan.BandwidthGB <= 0 {
		return fmt.Errorf("plan bandwidth quota must be positive")
	}
	return nil
}

func (c *Catalog) Get(id string) (Plan, bool) {
	plan, ok := c.plans[id]
	return plan, ok
}

// All returns plans in catalog file order.
func (c *Catalog) All() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id])
	}
	return out
}
