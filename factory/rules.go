/*
Package factory provides JSON to Go rule conversion.

PURPOSE:
  Converts JSON rule definitions into the engine's code tables, balance
  configuration and validation overlays. This enables rule changes without
  code changes - actuarial staff can tune factors, account mappings and
  coverage caps in JSON, and the factory creates the proper Go structs.

WHY JSON?
  - Non-developers can modify rules
  - Version control for rule definitions
  - Per-environment rule sets (dev, UAT, production)

JSON SCHEMA:
  {
    "factors": [
      {"line": 14, "factor": 2}
    ],
    "claim_types": [
      {"line": 14, "code": "life"}
    ],
    "components": [
      {"account": "claims-reserve", "polarity": 1},
      {"account": "claims-expense", "polarity": -1}
    ],
    "movement_descriptions": [
      {"code": 3, "description": "reserve adjustment"}
    ],
    "balance": {
      "disbursement_type_min": 200,
      "disbursement_type_max": 299,
      "excluded_payment_types": [14, 15],
      "excluded_movement_types": [9, 10, 11]
    },
    "overlays": [
      {
        "type": "day_cap",
        "accounting_line": 14,
        "coverage_code": "FUNERAL",
        "daily_cap": "150.00",
        "max_days": 365
      }
    ]
  }

KEY FEATURES:
  - Validates JSON structure
  - Absent sections fall back to the engine defaults
  - Monetary values parse as decimal strings, never floats

USAGE:
  factory := NewRuleFactory()
  cfg, err := factory.ParseRules(jsonString)

  service := claims.NewService(store, directory, cfg.Tables, claims.Options{
      Overlays: cfg.Overlays,
  })
  service.Aggregator.Config = cfg.Balance

SEE ALSO:
  - claims/collab.go: The code-table contract this populates
  - reserve/overlay.go: The overlay types this instantiates
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jaimotivus/claims-reserve/claims"
	"github.com/jaimotivus/claims-reserve/reserve"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RulesJSON is the JSON representation of a rule set.
type RulesJSON struct {
	Factors      []FactorJSON      `json:"factors,omitempty"`
	ClaimTypes   []ClaimTypeJSON   `json:"claim_types,omitempty"`
	Components   []ComponentJSON   `json:"components,omitempty"`
	Descriptions []DescriptionJSON `json:"movement_descriptions,omitempty"`
	Balance      *BalanceJSON      `json:"balance,omitempty"`
	Overlays     []OverlayJSON     `json:"overlays,omitempty"`
}

// FactorJSON maps a policy line to its max indemnification factor.
type FactorJSON struct {
	Line   int `json:"line"`
	Factor int `json:"factor"`
}

// ClaimTypeJSON maps a policy line to its claim type code.
type ClaimTypeJSON struct {
	Line int    `json:"line"`
	Code string `json:"code"`
}

// ComponentJSON is one row of the chart-of-accounts mapping.
type ComponentJSON struct {
	Account  string `json:"account"`
	Polarity int    `json:"polarity"`
}

// DescriptionJSON labels a movement type code.
type DescriptionJSON struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

// BalanceJSON overrides the aggregation code sets.
type BalanceJSON struct {
	DisbursementTypeMin   int   `json:"disbursement_type_min"`
	DisbursementTypeMax   int   `json:"disbursement_type_max"`
	ExcludedPaymentTypes  []int `json:"excluded_payment_types,omitempty"`
	ExcludedMovementTypes []int `json:"excluded_movement_types,omitempty"`
}

// OverlayJSON is one configured validation overlay.
type OverlayJSON struct {
	Type string `json:"type"` // day_cap

	// day_cap fields
	AccountingLine int    `json:"accounting_line,omitempty"`
	CoverageCode   string `json:"coverage_code,omitempty"`
	DailyCap       string `json:"daily_cap,omitempty"`
	MaxDays        int    `json:"max_days,omitempty"`
}

// =============================================================================
// FACTORY
// =============================================================================

// RuleConfig is the parsed, engine-ready rule set.
type RuleConfig struct {
	Tables   *claims.StaticTables
	Balance  reserve.BalanceConfig
	Overlays []reserve.Overlay
}

// RuleFactory converts JSON rule sets to engine configuration.
type RuleFactory struct{}

func NewRuleFactory() *RuleFactory {
	return &RuleFactory{}
}

// ParseRules parses a JSON rule set.
func (f *RuleFactory) ParseRules(jsonStr string) (*RuleConfig, error) {
	var rules RulesJSON
	if err := json.Unmarshal([]byte(jsonStr), &rules); err != nil {
		return nil, fmt.Errorf("invalid rules JSON: %w", err)
	}
	return f.FromJSON(rules)
}

// FromJSON converts an already-decoded rule set.
func (f *RuleFactory) FromJSON(rules RulesJSON) (*RuleConfig, error) {
	tables := claims.DefaultTables()

	if len(rules.Factors) > 0 {
		tables.Factors = make(map[int]int, len(rules.Factors))
		for _, fac := range rules.Factors {
			if fac.Factor <= 0 {
				return nil, fmt.Errorf("factor for line %d must be positive, got %d", fac.Line, fac.Factor)
			}
			tables.Factors[fac.Line] = fac.Factor
		}
	}

	if len(rules.ClaimTypes) > 0 {
		tables.ClaimTypes = make(map[int]string, len(rules.ClaimTypes))
		for _, ct := range rules.ClaimTypes {
			tables.ClaimTypes[ct.Line] = ct.Code
		}
	}

	if len(rules.Components) > 0 {
		tables.Components = tables.Components[:0]
		for _, comp := range rules.Components {
			if comp.Account == "" {
				return nil, fmt.Errorf("component account must not be empty")
			}
			if comp.Polarity != 1 && comp.Polarity != -1 {
				return nil, fmt.Errorf("component %s polarity must be 1 or -1, got %d", comp.Account, comp.Polarity)
			}
			tables.Components = append(tables.Components, reserve.AccountingComponent{
				Account:  comp.Account,
				Polarity: comp.Polarity,
			})
		}
	}

	for _, d := range rules.Descriptions {
		tables.Descriptions[reserve.MovementType(d.Code)] = d.Description
	}

	balance, err := f.balanceConfig(rules.Balance)
	if err != nil {
		return nil, err
	}

	overlays, err := f.overlays(rules.Overlays)
	if err != nil {
		return nil, err
	}

	return &RuleConfig{Tables: tables, Balance: balance, Overlays: overlays}, nil
}

func (f *RuleFactory) balanceConfig(b *BalanceJSON) (reserve.BalanceConfig, error) {
	cfg := reserve.DefaultBalanceConfig()
	if b == nil {
		return cfg, nil
	}

	if b.DisbursementTypeMin > b.DisbursementTypeMax {
		return cfg, fmt.Errorf("disbursement window [%d, %d] is empty",
			b.DisbursementTypeMin, b.DisbursementTypeMax)
	}
	cfg.DisbursementTypeMin = b.DisbursementTypeMin
	cfg.DisbursementTypeMax = b.DisbursementTypeMax

	if b.ExcludedPaymentTypes != nil {
		cfg.ExcludedPaymentTypes = make(map[int]bool, len(b.ExcludedPaymentTypes))
		for _, t := range b.ExcludedPaymentTypes {
			cfg.ExcludedPaymentTypes[t] = true
		}
	}
	if b.ExcludedMovementTypes != nil {
		cfg.ExcludedMovementTypes = make(map[reserve.MovementType]bool, len(b.ExcludedMovementTypes))
		for _, t := range b.ExcludedMovementTypes {
			cfg.ExcludedMovementTypes[reserve.MovementType(t)] = true
		}
	}
	return cfg, nil
}

func (f *RuleFactory) overlays(defs []OverlayJSON) ([]reserve.Overlay, error) {
	var overlays []reserve.Overlay
	for _, def := range defs {
		switch def.Type {
		case "day_cap":
			cap, err := decimal.NewFromString(def.DailyCap)
			if err != nil {
				return nil, fmt.Errorf("day_cap overlay: invalid daily_cap %q: %w", def.DailyCap, err)
			}
			if !cap.IsPositive() {
				return nil, fmt.Errorf("day_cap overlay: daily_cap must be positive, got %s", cap)
			}
			overlays = append(overlays, &reserve.ProratedDayCap{
				Coverage: reserve.CoverageKey{
					AccountingLine: def.AccountingLine,
					Code:           def.CoverageCode,
				},
				DailyCap: cap,
				MaxDays:  def.MaxDays,
			})
		default:
			return nil, fmt.Errorf("unknown overlay type %q", def.Type)
		}
	}
	return overlays, nil
}
