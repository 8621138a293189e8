// Package strategy holds the betting strategy and filter shapes shared by the
// config file, the control-plane API, and the prediction engine.
package strategy

import (
	"fmt"

	"github.com/Graze/Graze/internal/model"
)

// Points sizes a bet against the current balance: floor(percent * balance),
// capped at MaxValue when MaxValue is non-zero. Percent is stored as a
// fraction after normalization.
type Points struct {
	MaxValue int64   `yaml:"max_value" json:"max_value"`
	Percent  float64 `yaml:"percent" json:"percent"`
}

// Value computes the bet size for the given balance.
func (p Points) Value(balance int64) int64 {
	amount := int64(p.Percent * float64(balance))
	if p.MaxValue > 0 && amount > p.MaxValue {
		return p.MaxValue
	}
	return amount
}

// OddsComparison selects the direction of a rule threshold.
type OddsComparison string

const (
	CompareLe OddsComparison = "Le"
	CompareGe OddsComparison = "Ge"
)

// DetailedOdds is one ordered rule: fire when the outcome's implied
// probability passes the threshold and a Bernoulli trial with AttemptRate
// succeeds.
type DetailedOdds struct {
	Type        OddsComparison `yaml:"_type" json:"_type"`
	Threshold   float64        `yaml:"threshold" json:"threshold"`
	AttemptRate float64        `yaml:"attempt_rate" json:"attempt_rate"`
	Points      Points         `yaml:"points" json:"points"`
}

// DefaultPrediction is the fallback band when no detailed rule fires.
type DefaultPrediction struct {
	MaxPercentage float64 `yaml:"max_percentage" json:"max_percentage"`
	MinPercentage float64 `yaml:"min_percentage" json:"min_percentage"`
	Points        Points  `yaml:"points" json:"points"`
}

// Detailed is the rule-list strategy.
type Detailed struct {
	Detailed []DetailedOdds    `yaml:"detailed,omitempty" json:"detailed,omitempty"`
	Default  DefaultPrediction `yaml:"default" json:"default"`
}

// Normalize converts percent-unit fields (0-100) to fractions. Must be
// applied exactly once, at load or on a mutating API call.
func (d *Detailed) Normalize() {
	for i := range d.Detailed {
		d.Detailed[i].Threshold /= 100
		d.Detailed[i].AttemptRate /= 100
		d.Detailed[i].Points.Percent /= 100
	}
	d.Default.MaxPercentage /= 100
	d.Default.MinPercentage /= 100
	d.Default.Points.Percent /= 100
}

// Validate checks pre-normalization percent ranges.
func (d *Detailed) Validate() error {
	checkPercent := func(name string, v float64) error {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s must be within [0, 100], got %v", name, v)
		}
		return nil
	}
	for i, rule := range d.Detailed {
		if rule.Type != CompareLe && rule.Type != CompareGe {
			return fmt.Errorf("detailed[%d]._type must be Le or Ge, got %q", i, rule.Type)
		}
		if err := checkPercent(fmt.Sprintf("detailed[%d].threshold", i), rule.Threshold); err != nil {
			return err
		}
		if err := checkPercent(fmt.Sprintf("detailed[%d].attempt_rate", i), rule.AttemptRate); err != nil {
			return err
		}
		if err := checkPercent(fmt.Sprintf("detailed[%d].points.percent", i), rule.Points.Percent); err != nil {
			return err
		}
	}
	if err := checkPercent("default.min_percentage", d.Default.MinPercentage); err != nil {
		return err
	}
	if err := checkPercent("default.max_percentage", d.Default.MaxPercentage); err != nil {
		return err
	}
	return checkPercent("default.points.percent", d.Default.Points.Percent)
}

// Bet is a strategy decision.
type Bet struct {
	OutcomeID string
	Points    int64
}

// Evaluate runs the strategy over the event's outcomes against the given
// balance. randFloat supplies the Bernoulli trials and is injected so tests
// are deterministic. Returns false when no rule or band matches.
//
// Outcomes are scanned in order; for each, the ordered rule list is tried
// first and the default band second. The first hit wins.
func (d *Detailed) Evaluate(outcomes []model.Outcome, balance int64, randFloat func() float64) (Bet, bool) {
	if len(outcomes) < 2 {
		return Bet{}, false
	}
	total := model.TotalStaked(outcomes)

	for _, outcome := range outcomes {
		var p float64
		if outcome.TotalPoints != 0 && total != 0 {
			p = float64(outcome.TotalPoints) / float64(total)
		}

		for _, rule := range d.Detailed {
			ok := false
			switch rule.Type {
			case CompareLe:
				ok = p <= rule.Threshold
			case CompareGe:
				ok = p >= rule.Threshold
			}
			if ok && randFloat() < rule.AttemptRate {
				return Bet{OutcomeID: outcome.ID, Points: rule.Points.Value(balance)}, true
			}
		}
		if p >= d.Default.MinPercentage && p <= d.Default.MaxPercentage {
			return Bet{OutcomeID: outcome.ID, Points: d.Default.Points.Value(balance)}, true
		}
	}
	return Bet{}, false
}
