package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Ordered is a string-keyed map that preserves insertion order across YAML
// and JSON round trips. The config file's streamer order is meaningful (it
// drives watch ordering), so a plain map will not do.
type Ordered[V any] struct {
	keys   []string
	values map[string]V
}

// NewOrdered returns an empty ordered map.
func NewOrdered[V any]() *Ordered[V] {
	return &Ordered[V]{values: map[string]V{}}
}

func (o *Ordered[V]) init() {
	if o.values == nil {
		o.values = map[string]V{}
	}
}

// Get looks up a key.
func (o *Ordered[V]) Get(key string) (V, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Set inserts or replaces a key, appending new keys at the end.
func (o *Ordered[V]) Set(key string, value V) {
	o.init()
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Delete removes a key if present.
func (o *Ordered[V]) Delete(key string) {
	if _, exists := o.values[key]; !exists {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order. The slice is shared; do not mutate.
func (o *Ordered[V]) Keys() []string {
	return o.keys
}

// Len returns the number of entries.
func (o *Ordered[V]) Len() int {
	return len(o.keys)
}

func (o *Ordered[V]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("expected a mapping, got yaml kind %d", node.Kind)
	}
	*o = Ordered[V]{values: map[string]V{}}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key string
		if err := node.Content[i].Decode(&key); err != nil {
			return err
		}
		var value V
		if err := node.Content[i+1].Decode(&value); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		o.Set(key, value)
	}
	return nil
}

func (o Ordered[V]) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, key := range o.keys {
		keyNode := &yaml.Node{}
		keyNode.SetString(key)
		valueNode := &yaml.Node{}
		if err := valueNode.Encode(o.values[key]); err != nil {
			return nil, fmt.Errorf("encode %q: %w", key, err)
		}
		node.Content = append(node.Content, keyNode, valueNode)
	}
	return node, nil
}

func (o Ordered[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyData, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		valueData, err := json.Marshal(o.values[key])
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", key, err)
		}
		buf.Write(keyData)
		buf.WriteByte(':')
		buf.Write(valueData)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *Ordered[V]) UnmarshalJSON(data []byte) error {
	*o = Ordered[V]{values: map[string]V{}}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected an object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)
		var value V
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		o.Set(key, value)
	}
	_, err = dec.Token() // closing brace
	return err
}
