/*
Package factory provides JSON to Go policy conversion.

PURPOSE:
  Converts JSON policy definitions into distribution.Policy values. The
  numbers behind the quota formula (threshold, bonus step, weights) change
  from one sales team to the next; a JSON file lets a supervisor tune them
  without a release.

JSON SCHEMA:
  {
    "threshold": 3000,
    "bonus_step": "2000",
    "weight_a": 2,
    "weight_b": 1,
    "tie_break": "stable",
    "seed": 0
  }

  Every field is optional. Missing fields take the default policy values.
  Money fields accept numbers or strings.

USAGE:
  f := factory.NewPolicyFactory()
  policy, err := f.ParsePolicy(jsonString)
  policy, err := f.LoadFile("policy.json")

SEE ALSO:
  - distribution/policy.go: Policy type and validation
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/warp/lead-engine/distribution"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a policy.
type PolicyJSON struct {
	Threshold *decimal.Decimal `json:"threshold,omitempty"`
	BonusStep *decimal.Decimal `json:"bonus_step,omitempty"`
	WeightA   *decimal.Decimal `json:"weight_a,omitempty"`
	WeightB   *decimal.Decimal `json:"weight_b,omitempty"`
	TieBreak  string           `json:"tie_break,omitempty"`
	Seed      int64            `json:"seed,omitempty"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON policies to Go structs.
type PolicyFactory struct{}

func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a JSON string into a validated Policy.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (distribution.Policy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return distribution.Policy{}, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// LoadFile reads and parses a policy file.
func (f *PolicyFactory) LoadFile(path string) (distribution.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return distribution.Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	return f.ParsePolicy(string(data))
}

// FromJSON fills defaults and validates.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (distribution.Policy, error) {
	policy := distribution.DefaultPolicy()

	if pj.Threshold != nil {
		policy.Threshold = *pj.Threshold
	}
	if pj.BonusStep != nil {
		policy.BonusStep = *pj.BonusStep
	}
	if pj.WeightA != nil {
		policy.WeightA = *pj.WeightA
	}
	if pj.WeightB != nil {
		policy.WeightB = *pj.WeightB
	}
	if pj.TieBreak != "" {
		policy.TieBreak = distribution.TieBreak(pj.TieBreak)
	}
	policy.Seed = pj.Seed

	if err := policy.Validate(); err != nil {
		return distribution.Policy{}, err
	}
	return policy, nil
}

// ToJSON converts a Policy back to its JSON form, every field set.
func (f *PolicyFactory) ToJSON(p distribution.Policy) PolicyJSON {
	return PolicyJSON{
		Threshold: &p.Threshold,
		BonusStep: &p.BonusStep,
		WeightA:   &p.WeightA,
		WeightB:   &p.WeightB,
		TieBreak:  string(p.TieBreak),
		Seed:      p.Seed,
	}
}

// Marshal renders a Policy as JSON, the form stored with each run.
func (f *PolicyFactory) Marshal(p distribution.Policy) (string, error) {
	data, err := json.Marshal(f.ToJSON(p))
	if err != nil {
		return "", fmt.Errorf("failed to marshal policy: %w", err)
	}
	return string(data), nil
}
