package strategy

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Graze/Graze/internal/model"
)

// Filter gates strategy evaluation. Exactly one variant is set; the wire
// form is a single-key mapping such as {"TotalUsers": 300}.
type Filter struct {
	TotalUsers      *int64
	DelaySeconds    *int64
	DelayPercentage *float64
}

// Matches reports whether the event passes the filter at the given time.
func (f Filter) Matches(ev *model.Event, now time.Time) bool {
	switch {
	case f.TotalUsers != nil:
		return model.TotalUsers(ev.Outcomes) >= *f.TotalUsers
	case f.DelaySeconds != nil:
		return int64(now.Sub(ev.CreatedAt).Seconds()) >= *f.DelaySeconds
	case f.DelayPercentage != nil:
		required := float64(ev.PredictionWindowSeconds) * (*f.DelayPercentage / 100)
		return now.Sub(ev.CreatedAt).Seconds() >= required
	}
	return true
}

// Validate rejects empty or multi-variant filters.
func (f Filter) Validate() error {
	set := 0
	if f.TotalUsers != nil {
		set++
	}
	if f.DelaySeconds != nil {
		set++
	}
	if f.DelayPercentage != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("filter must have exactly one variant, got %d", set)
	}
	if f.DelayPercentage != nil && (*f.DelayPercentage < 0 || *f.DelayPercentage > 100) {
		return fmt.Errorf("DelayPercentage must be within [0, 100], got %v", *f.DelayPercentage)
	}
	return nil
}

func (f Filter) variant() (string, any) {
	switch {
	case f.TotalUsers != nil:
		return "TotalUsers", *f.TotalUsers
	case f.DelaySeconds != nil:
		return "DelaySeconds", *f.DelaySeconds
	case f.DelayPercentage != nil:
		return "DelayPercentage", *f.DelayPercentage
	}
	return "", nil
}

func (f *Filter) setVariant(key string, decode func(out any) error) error {
	*f = Filter{}
	switch key {
	case "TotalUsers":
		f.TotalUsers = new(int64)
		return decode(f.TotalUsers)
	case "DelaySeconds":
		f.DelaySeconds = new(int64)
		return decode(f.DelaySeconds)
	case "DelayPercentage":
		f.DelayPercentage = new(float64)
		return decode(f.DelayPercentage)
	}
	return fmt.Errorf("unknown filter variant %q", key)
}

func (f Filter) MarshalJSON() ([]byte, error) {
	key, value := f.variant()
	if key == "" {
		return nil, fmt.Errorf("filter has no variant set")
	}
	return json.Marshal(map[string]any{key: value})
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("filter must be a single-variant mapping, got %d keys", len(raw))
	}
	for key, value := range raw {
		return f.setVariant(key, func(out any) error { return json.Unmarshal(value, out) })
	}
	return nil
}

func (f Filter) MarshalYAML() (any, error) {
	key, value := f.variant()
	if key == "" {
		return nil, fmt.Errorf("filter has no variant set")
	}
	return map[string]any{key: value}, nil
}

func (f *Filter) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("filter must be a single-variant mapping, got %d keys", len(raw))
	}
	for key, value := range raw {
		return f.setVariant(key, func(out any) error { return value.Decode(out) })
	}
	return nil
}
