// Package tiers defines the PlanGuard editions.
// An edition maps to scan limits and feature flags unlocked by a
// verified license.
package tiers

// Edition identifies a feature tier.
type Edition string

const (
	EditionFree       Edition = "free"
	EditionPro        Edition = "pro"
	EditionEnterprise Edition = "enterprise"
)

// Limits defines per-edition scan limits.
type Limits struct {
	MaxResourcesPerScan int // -1 = unlimited; exceeding annotates the report, never truncates
	MaxPolicyRules      int // -1 = unlimited
	MaxConcurrency      int // -1 = unlimited worker pool size
	AuditRetentionDays  int
}

// Tier describes an edition with its limits and features.
type Tier struct {
	ID          Edition
	Name        string
	Description string
	Limits      Limits
	Features    []string
}

// All available editions
var (
	Free = Tier{
		ID:          EditionFree,
		Name:        "Free",
		Description: "For individuals and small plans",
		Limits: Limits{
			MaxResourcesPerScan: 500,
			MaxPolicyRules:      50,
			MaxConcurrency:      4,
			AuditRetentionDays:  30,
		},
		Features: []string{"builtin_evaluator", "json_output", "markdown_output"},
	}

	Pro = Tier{
		ID:          EditionPro,
		Name:        "Pro",
		Description: "For teams and production plans",
		Limits: Limits{
			MaxResourcesPerScan: 50_000,
			MaxPolicyRules:      5_000,
			MaxConcurrency:      -1,
			AuditRetentionDays:  365,
		},
		Features: []string{
			"builtin_evaluator",
			"json_output",
			"markdown_output",
			"custom_rules",
			"usage_estimates",
		},
	}

	Enterprise = Tier{
		ID:          EditionEnterprise,
		Name:        "Enterprise",
		Description: "For organizations with compliance needs",
		Limits: Limits{
			MaxResourcesPerScan: -1,
			MaxPolicyRules:      -1,
			MaxConcurrency:      -1,
			AuditRetentionDays:  -1,
		},
		Features: []string{
			"all",
			"premium_module",
			"audit_exports",
		},
	}

	// AllTiers contains all available editions
	AllTiers = map[Edition]Tier{
		EditionFree:       Free,
		EditionPro:        Pro,
		EditionEnterprise: Enterprise,
	}
)

// Get returns a tier by edition, or nil if not found.
func Get(id Edition) *Tier {
	tier, ok := AllTiers[id]
	if !ok {
		return nil
	}
	return &tier
}

// Valid reports whether id names a known edition.
func Valid(id Edition) bool {
	_, ok := AllTiers[id]
	return ok
}

// HasFeature checks if a tier has a specific feature.
func (t *Tier) HasFeature(feature string) bool {
	for _, f := range t.Features {
		if f == feature || f == "all" {
			return true
		}
	}
	return false
}

// IsUnlimited checks if a limit is unlimited (-1).
func IsUnlimited(limit int) bool {
	return limit < 0
}
