package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// PlanPricing holds prices for one plan, per billing cycle
type PlanPricing struct {
	Monthly float64 `json:"monthly"`
	Yearly  float64 `json:"yearly"`
}

// PlanCatalog holds all plan prices and the description template sent to the
// payment gateway
type PlanCatalog struct {
	Basic   PlanPricing `json:"basic"`
	Premium PlanPricing `json:"premium"`

	// DescriptionFormat receives plan and billing cycle
	DescriptionFormat string `json:"description_format"`

	// YearlyAmountThreshold is used to infer a yearly purchase from webhook
	// payloads that carry no explicit cycle
	YearlyAmountThreshold float64 `json:"yearly_amount_threshold"`
}

// DefaultPlanCatalog returns the built-in prices
func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Basic: PlanPricing{
			Monthly: 0,
			Yearly:  0,
		},
		Premium: PlanPricing{
			Monthly: 30,
			Yearly:  288, // 20% discount for annual
		},
		DescriptionFormat:     "BlendAr %s plan (%s)",
		YearlyAmountThreshold: 100,
	}
}

// LoadPlanCatalog loads prices from PLAN_CONFIG_FILE or falls back to defaults.
// Fields missing from the file keep their default values.
func LoadPlanCatalog() (PlanCatalog, error) {
	catalog := DefaultPlanCatalog()

	configFile := os.Getenv("PLAN_CONFIG_FILE")
	if configFile == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return catalog, fmt.Errorf("failed to read plan config file: %w", err)
	}
	if err := json.Unmarshal(data, &catalog); err != nil {
		return DefaultPlanCatalog(), fmt.Errorf("failed to parse plan config file: %w", err)
	}

	return catalog, nil
}

// Price returns the price for a plan and billing cycle
func (c PlanCatalog) Price(plan, cycle string) (float64, error) {
	var pricing PlanPricing
	switch plan {
	case "basic":
		pricing = c.Basic
	case "premium":
		pricing = c.Premium
	default:
		return 0, fmt.Errorf("unknown plan: %s", plan)
	}

	switch cycle {
	case "monthly":
		return pricing.Monthly, nil
	case "yearly":
		return pricing.Yearly, nil
	default:
		return 0, fmt.Errorf("unknown billing cycle: %s", cycle)
	}
}

// Description renders the gateway description for a plan purchase
func (c PlanCatalog) Description(plan, cycle string) string {
	format := c.DescriptionFormat
	if format == "" {
		format = "BlendAr %s plan (%s)"
	}
	return fmt.Sprintf(format, plan, cycle)
}

// LooksYearly applies the amount heuristic for payloads without an explicit
// billing cycle
func (c PlanCatalog) LooksYearly(amount float64) bool {
	threshold := c.YearlyAmountThreshold
	if threshold <= 0 {
		threshold = 100
	}
	return amount >= threshold
}
