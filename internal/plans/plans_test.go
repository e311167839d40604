package plans

import (
	"strings"
	"testing"
)

const validCatalog = `
plans:
  - id: starter
    name: Starter
    monthly_price_cents: 499
    disk_mb: 5120
    bandwidth_gb: 100
  - id: business
    name: Business
    monthly_price_cents: 1499
    disk_mb: 20480
    bandwidth_gb: 500
`

func TestParseValidCatalog(t *testing.T) {
	t.Parallel()

	catalog, err := Parse([]byte(validCatalog))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	plan, ok := catalog.Get("starter")
	if !ok {
		t.Fatal("starter plan missing")
	}
	if plan.MonthlyPriceCents != 499 || plan.DiskMB != 5120 {
		t.Errorf("unexpected starter plan %+v", plan)
	}

	if _, ok := catalog.Get("enterprise"); ok {
		t.Error("unknown plan id should not resolve")
	}

	all := catalog.All()
	if len(all) != 2 || all[0].ID != "starter" || all[1].ID != "business" {
		t.Errorf("All() order wrong: %+v", all)
	}
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"empty", "plans: []", "at least one plan"},
		{
			"duplicate id",
			`
plans:
  - {id: starter, name: A, monthly_price_cents: 100, disk_mb: 1, bandwidth_gb: 1}
  - {id: starter, name: B, monthly_price_cents: 200, disk_mb: 1, bandwidth_gb: 1}
`,
			"duplicate plan id",
		},
		{
			"zero price",
			`
plans:
  - {id: free, name: Free, monthly_price_cents: 0, disk_mb: 1, bandwidth_gb: 1}
`,
			"monthly price must be positive",
		},
		{
			"missing name",
			`
plans:
  - {id: starter, monthly_price_cents: 100, disk_mb: 1, bandwidth_gb: 1}
`,
			"plan name is required",
		},
		{"not yaml", "plans: [', ", "failed to parse"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}
