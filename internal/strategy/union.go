package strategy

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/Graze/Graze/internal/model"
)

// Strategy is a tagged union over the known strategy shapes. On the wire and
// in the config file it is a single-key mapping, e.g. {"Detailed": {...}}.
type Strategy struct {
	Detailed *Detailed
}

// Normalize applies percent normalization to the active variant.
func (s *Strategy) Normalize() {
	if s.Detailed != nil {
		s.Detailed.Normalize()
	}
}

// Validate checks the active variant.
func (s *Strategy) Validate() error {
	if s.Detailed == nil {
		return fmt.Errorf("strategy must carry a Detailed variant")
	}
	return s.Detailed.Validate()
}

// Evaluate dispatches to the active variant.
func (s Strategy) Evaluate(outcomes []model.Outcome, balance int64, randFloat func() float64) (Bet, bool) {
	if s.Detailed == nil {
		return Bet{}, false
	}
	return s.Detailed.Evaluate(outcomes, balance, randFloat)
}

func (s Strategy) MarshalJSON() ([]byte, error) {
	if s.Detailed == nil {
		return nil, fmt.Errorf("strategy has no variant set")
	}
	return json.Marshal(map[string]*Detailed{"Detailed": s.Detailed})
}

func (s *Strategy) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return s.fromKeys(len(raw), func(out any) (string, error) {
		for key, value := range raw {
			return key, json.Unmarshal(value, out)
		}
		return "", nil
	})
}

func (s Strategy) MarshalYAML() (any, error) {
	if s.Detailed == nil {
		return nil, fmt.Errorf("strategy has no variant set")
	}
	return map[string]*Detailed{"Detailed": s.Detailed}, nil
}

func (s *Strategy) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return s.fromKeys(len(raw), func(out any) (string, error) {
		for key, value := range raw {
			return key, value.Decode(out)
		}
		return "", nil
	})
}

func (s *Strategy) fromKeys(count int, decodeFirst func(out any) (string, error)) error {
	if count != 1 {
		return fmt.Errorf("strategy must be a single-variant mapping, got %d keys", count)
	}
	var detailed Detailed
	key, err := decodeFirst(&detailed)
	if err != nil {
		return fmt.Errorf("decode strategy variant: %w", err)
	}
	if key != "Detailed" {
		return fmt.Errorf("unknown strategy variant %q", key)
	}
	s.Detailed = &detailed
	return nil
}
